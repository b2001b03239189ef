package syncer

import "sync"

// billLocks serializes mutations per bill: only one sync (or server-side
// mutation) may be merging and persisting a given bill at a time, while
// different bills proceed in parallel. Entries are reference-counted and
// removed when the last holder unlocks, so the map does not grow with the
// number of bills ever touched.
type billLocks struct {
	mu      sync.Mutex
	entries map[string]*billLock
}

type billLock struct {
	mu   sync.Mutex
	refs int
}

func newBillLocks() *billLocks {
	return &billLocks{entries: make(map[string]*billLock)}
}

func (l *billLocks) lock(billID string) {
	l.mu.Lock()
	e, ok := l.entries[billID]
	if !ok {
		e = &billLock{}
		l.entries[billID] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
}

func (l *billLocks) unlock(billID string) {
	l.mu.Lock()
	e := l.entries[billID]
	e.refs--
	if e.refs == 0 {
		delete(l.entries, billID)
	}
	l.mu.Unlock()

	e.mu.Unlock()
}
