package events

import (
	"context"
	"log/slog"
	"sync"
)

// MemoryPublisher fans BillUpdated events out to in-process subscribers,
// keyed by bill ID. It backs the server's notification boundary when no
// external broker is configured and doubles as the test publisher.
type MemoryPublisher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int]chan BillUpdated
	nextID      int
}

var _ Publisher = (*MemoryPublisher)(nil)

// NewMemoryPublisher creates an empty in-process publisher.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{subscribers: make(map[string]map[int]chan BillUpdated)}
}

// Publish delivers the event to every subscriber of the bill. Slow
// subscribers are skipped rather than blocking the publisher; delivery is
// best-effort.
func (p *MemoryPublisher) Publish(ctx context.Context, event BillUpdated) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, ch := range p.subscribers[event.BillID] {
		select {
		case ch <- event:
		default:
			slog.Warn("Dropping bill event for slow subscriber", "bill_id", event.BillID, "version", event.Version)
		}
	}
	return nil
}

// Subscribe registers interest in one bill's events. The returned cancel
// function unregisters and closes the channel.
func (p *MemoryPublisher) Subscribe(billID string) (<-chan BillUpdated, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.subscribers[billID] == nil {
		p.subscribers[billID] = make(map[int]chan BillUpdated)
	}
	id := p.nextID
	p.nextID++
	ch := make(chan BillUpdated, 16)
	p.subscribers[billID][id] = ch

	cancel := func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if subs, ok := p.subscribers[billID]; ok {
			if _, ok := subs[id]; ok {
				delete(subs, id)
				close(ch)
				if len(subs) == 0 {
					delete(p.subscribers, billID)
				}
			}
		}
	}
	return ch, cancel
}
