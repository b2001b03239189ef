// Package events defines the change-notification boundary. The core emits
// a single event kind, BillUpdated, after a successful commit; transport,
// fan-out and client subscriptions live outside this module.
package events

import (
	"context"
	"time"
)

// BillUpdated announces that a bill reached a new version. Subscribers
// react by re-fetching the bill; the event intentionally carries no delta.
type BillUpdated struct {
	BillID     string    `json:"billId"`
	Version    int64     `json:"version"`
	ActorID    string    `json:"actorId,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Publisher delivers BillUpdated events to whoever is listening. Publishing
// is best-effort: a lost notification must never cost bill data, at worst a
// client learns about a change on its next explicit fetch.
type Publisher interface {
	Publish(ctx context.Context, event BillUpdated) error
}
