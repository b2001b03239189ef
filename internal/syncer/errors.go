package syncer

import "fmt"

// VersionConflictError rejects a sync whose base version no longer matches
// the server's. Recoverable: the client re-fetches the bill and builds a
// fresh delta. Never auto-resolved here; partial automatic merges of
// financial data hide correctness bugs.
type VersionConflictError struct {
	BillID         string
	CurrentVersion int64
	BaseVersion    int64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("bill %s changed: server is at version %d, client based on %d",
		e.BillID, e.CurrentVersion, e.BaseVersion)
}

// RefIntegrityError rejects a delta that references an identifier
// unresolvable both in-flight and in persisted state. Fatal for the
// request: it indicates stale client state, and the same payload must not
// be retried.
type RefIntegrityError struct {
	Entity string // which entity carried the bad reference, e.g. `expense "e1"`
	Field  string
	Ref    string
}

func (e *RefIntegrityError) Error() string {
	return fmt.Sprintf("%s references unknown %s %q", e.Entity, e.Field, e.Ref)
}

// PersistenceError wraps a storage failure. The transaction never committed,
// so the same sync is safe to retry unchanged.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failed during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
