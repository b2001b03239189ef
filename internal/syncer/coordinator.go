package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tallyapp/tally/internal/events"
	"github.com/tallyapp/tally/internal/metrics"
	"github.com/tallyapp/tally/internal/models"
	"github.com/tallyapp/tally/internal/storage"
)

// Coordinator runs the sync pipeline for one server: version gate, merge,
// atomic commit, change notification. Mutations to the same bill are
// strictly serialized by a per-bill lock; the version check therefore runs
// in the same critical section as the commit, which closes the
// check-then-act race between two clients syncing against the same base.
type Coordinator struct {
	store     storage.Store
	publisher events.Publisher
	locks     *billLocks
}

// NewCoordinator wires the sync pipeline to its storage and notification
// boundaries.
func NewCoordinator(store storage.Store, publisher events.Publisher) *Coordinator {
	return &Coordinator{
		store:     store,
		publisher: publisher,
		locks:     newBillLocks(),
	}
}

// Sync applies one client delta. An empty BillID creates the bill (default
// state, version 0, fresh share code) and commits it together with the
// merged delta, so a rejected first sync persists nothing.
//
// The error is one of the taxonomy types: *VersionConflictError (retry
// after re-fetch), *RefIntegrityError or *models.ValidationError (client
// bug, do not retry the same payload), or *PersistenceError (nothing was
// committed, safe to retry unchanged).
func (c *Coordinator) Sync(ctx context.Context, d *Delta) (*Result, error) {
	start := time.Now()
	result, err := c.sync(ctx, d)
	metrics.SyncDuration.Observe(time.Since(start).Seconds())
	metrics.SyncsTotal.WithLabelValues(syncOutcome(d, result, err)).Inc()
	return result, err
}

func (c *Coordinator) sync(ctx context.Context, d *Delta) (*Result, error) {
	if d.BillID == "" {
		return c.syncNew(ctx, d)
	}

	c.locks.lock(d.BillID)
	defer c.locks.unlock(d.BillID)

	bill, err := c.store.GetBill(ctx, d.BillID)
	if err != nil {
		if errors.Is(err, storage.ErrBillNotFound) {
			return nil, err
		}
		return nil, &PersistenceError{Op: "load bill", Err: err}
	}

	if err := checkBaseVersion(bill.ID, bill.Version, d.BaseVersion); err != nil {
		return nil, err
	}

	rec, changed, err := applyDelta(bill, d)
	if err != nil {
		return nil, err
	}

	result := &Result{
		BillID:          bill.ID,
		ShareCode:       bill.ShareCode,
		NewVersion:      bill.Version,
		ServerTimestamp: time.Now().Unix(),
	}
	if rec != nil {
		result.Mappings = rec.mappings()
	}
	if !changed {
		// Idempotence: an empty effective delta must not bump the version.
		return result, nil
	}

	// The caller may cancel up to this point; once persisting starts the
	// operation runs to completion or fails atomically.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	expected := bill.Version
	bill.Version++
	bill.UpdatedAt = time.Now().Unix()
	if err := c.store.SaveBill(context.WithoutCancel(ctx), bill, expected); err != nil {
		return nil, &PersistenceError{Op: "save bill", Err: err}
	}
	result.NewVersion = bill.Version

	c.notify(bill.ID, bill.Version, d.ActorID)
	return result, nil
}

// syncNew handles the first sync of an offline-created bill. The default
// aggregate is built and merged entirely in memory; nothing touches storage
// until the delta has passed the gate and the merge, so a rejected first
// sync leaves no orphan bill behind and a retry can mint a fresh one safely.
// No per-bill lock is needed: the new ID is unknown to every other client.
func (c *Coordinator) syncNew(ctx context.Context, d *Delta) (*Result, error) {
	bill := newBill(d.Name)

	if err := checkBaseVersion(bill.ID, bill.Version, d.BaseVersion); err != nil {
		return nil, err
	}

	rec, changed, err := applyDelta(bill, d)
	if err != nil {
		return nil, err
	}
	if changed {
		bill.Version = 1
		bill.UpdatedAt = time.Now().Unix()
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.store.CreateBill(context.WithoutCancel(ctx), bill); err != nil {
		return nil, &PersistenceError{Op: "create bill", Err: err}
	}
	slog.Info("Bill created", "bill_id", bill.ID, "local_id", d.BillLocalID, "version", bill.Version)

	result := &Result{
		BillID:          bill.ID,
		ShareCode:       bill.ShareCode,
		NewVersion:      bill.Version,
		Created:         true,
		Mappings:        rec.mappings(),
		ServerTimestamp: time.Now().Unix(),
	}
	c.notify(bill.ID, bill.Version, d.ActorID)
	return result, nil
}

// Mutate runs a server-side mutation (claiming a member, toggling a settled
// transfer) under the same serialization and commit rules as a sync. The
// callback returns whether it changed anything; an unchanged bill is not
// persisted and does not bump the version.
func (c *Coordinator) Mutate(ctx context.Context, billID, actorID string, fn func(*models.Bill) (bool, error)) (*models.Bill, error) {
	c.locks.lock(billID)
	defer c.locks.unlock(billID)

	bill, err := c.store.GetBill(ctx, billID)
	if err != nil {
		if errors.Is(err, storage.ErrBillNotFound) {
			return nil, err
		}
		return nil, &PersistenceError{Op: "load bill", Err: err}
	}

	changed, err := fn(bill)
	if err != nil {
		return nil, err
	}
	if !changed {
		return bill, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	expected := bill.Version
	bill.Version++
	bill.UpdatedAt = time.Now().Unix()
	if err := c.store.SaveBill(context.WithoutCancel(ctx), bill, expected); err != nil {
		return nil, &PersistenceError{Op: "save bill", Err: err}
	}

	c.notify(bill.ID, bill.Version, actorID)
	return bill, nil
}

// notify publishes BillUpdated fire-and-forget: the syncing client already
// holds the authoritative state, and a lost notification only delays other
// clients until their next fetch.
func (c *Coordinator) notify(billID string, version int64, actorID string) {
	event := events.BillUpdated{
		BillID:     billID,
		Version:    version,
		ActorID:    actorID,
		OccurredAt: time.Now(),
	}
	go func() {
		if err := c.publisher.Publish(context.Background(), event); err != nil {
			slog.Warn("Failed to publish bill update", "bill_id", billID, "version", version, "error", err)
			return
		}
		metrics.EventsPublished.Inc()
	}()
}

func newBill(name string) *models.Bill {
	if name == "" {
		name = "New bill"
	}
	now := time.Now().Unix()
	return &models.Bill{
		ID:        uuid.New().String(),
		Name:      name,
		ShareCode: newShareCode(),
		Version:   0,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// newShareCode derives a short join code from a fresh UUID. Collisions are
// as unlikely as UUID prefix collisions within one deployment's bill count.
func newShareCode() string {
	id := uuid.New()
	return fmt.Sprintf("%x", id[:5])
}

func syncOutcome(d *Delta, result *Result, err error) string {
	var (
		conflict *VersionConflictError
		refErr   *RefIntegrityError
		valErr   *models.ValidationError
	)
	switch {
	// A created bill is a committed write even when the first delta was
	// effectively empty.
	case err == nil && result != nil && result.Created:
		return metrics.OutcomeAccepted
	case err == nil && result != nil && result.NewVersion == d.BaseVersion:
		return metrics.OutcomeNoChange
	case err == nil && result != nil:
		return metrics.OutcomeAccepted
	case errors.As(err, &conflict):
		return metrics.OutcomeConflict
	case errors.As(err, &refErr), errors.As(err, &valErr):
		return metrics.OutcomeRejected
	default:
		return metrics.OutcomeFailed
	}
}
