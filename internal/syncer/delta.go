// Package syncer merges client deltas into the authoritative bill state.
//
// A delta is everything a client changed since the server version it last
// saw. The coordinator serializes deltas per bill, gates them on that base
// version, applies them entity by entity and commits the result together
// with a single version bump. Clients key their entities by local IDs; the
// response carries the local-to-remote mapping table the client applies
// before its next sync.
package syncer

// MemberUpsert is the full payload of one member in a delta. RemoteID is
// empty for entities the client created offline.
type MemberUpsert struct {
	LocalID      string
	RemoteID     string
	Name         string
	DisplayOrder int
	LinkedUserID string
	ClaimedAt    int64
}

// MemberDelta is the member section of a delta. DeletedIDs carry remote IDs
// only: an entity that was never synced and is deleted locally never
// reaches the server.
type MemberDelta struct {
	Upserts    []MemberUpsert
	DeletedIDs []string
}

// ItemUpsert is the full payload of one expense line item. Payer and
// participants are referenced by the IDs the client knows, local or remote.
type ItemUpsert struct {
	LocalID        string
	RemoteID       string
	Name           string
	Amount         float64
	PaidBy         string
	ParticipantIDs []string
}

// ItemDelta is the line-item section nested under an expense upsert.
type ItemDelta struct {
	Upserts    []ItemUpsert
	DeletedIDs []string
}

// ExpenseUpsert is the full payload of one expense in a delta.
type ExpenseUpsert struct {
	LocalID           string
	RemoteID          string
	Name              string
	Amount            float64
	ServiceFeePercent float64
	IsItemized        bool
	PaidBy            string
	ParticipantIDs    []string
	Items             ItemDelta
}

// ExpenseDelta is the expense section of a delta.
type ExpenseDelta struct {
	Upserts    []ExpenseUpsert
	DeletedIDs []string
}

// SettledEntry is one settled-transfer marker as the client sees it. The
// amount is the client's snapshot from the moment the transfer was marked
// paid.
type SettledEntry struct {
	From   string
	To     string
	Amount float64
}

// Delta is one client's complete change set against a base version.
type Delta struct {
	// BillID is the remote bill ID, empty on the very first sync of a bill
	// created offline.
	BillID string

	// BillLocalID is the client's local identifier for the bill itself.
	BillLocalID string

	// BaseVersion is the server version the client believes it is editing.
	BaseVersion int64

	// Name renames the bill when non-empty.
	Name string

	Members  MemberDelta
	Expenses ExpenseDelta

	// SettledTransfers replaces the bill's marker set when
	// ReplaceSettledTransfers is true; a request that omits the section
	// leaves markers untouched.
	SettledTransfers        []SettledEntry
	ReplaceSettledTransfers bool

	// ActorID identifies the syncing user, when known. Carried on the
	// change notification so other subscribers can attribute the update.
	ActorID string

	// ClientTimestamp is the client's wall clock at submission (Unix
	// seconds).
	ClientTimestamp int64
}

// IDMappings is the local-to-remote identifier table produced by one merge.
// The client applies it to its local store before the next sync.
type IDMappings struct {
	Members      map[string]string
	Expenses     map[string]string
	ExpenseItems map[string]string
}

// Result is a successful sync outcome.
type Result struct {
	BillID    string
	ShareCode string

	NewVersion int64

	// Created reports that this sync brought the bill into existence;
	// NewVersion may still equal the base version when the first delta was
	// effectively empty.
	Created bool

	Mappings        IDMappings
	ServerTimestamp int64
}
