// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"

	"github.com/tallyapp/tally/internal/models"
)

// ErrBillNotFound is returned when a bill ID or share code matches nothing.
var ErrBillNotFound = errors.New("bill not found")

// ErrVersionMismatch is returned by SaveBill when the bill's persisted
// version no longer equals the expected one. Under the coordinator's
// per-bill serialization this should never fire; it is the in-transaction
// backstop against a lost check-then-act race.
var ErrVersionMismatch = errors.New("bill version changed since read")

// Store defines the interface for bill and user persistence. The
// abstraction keeps the sync engine independent of the storage backend.
type Store interface {
	// CreateBill persists a new bill aggregate, children included, in one
	// transaction.
	CreateBill(ctx context.Context, bill *models.Bill) error

	// GetBill loads the full aggregate, tombstones included.
	GetBill(ctx context.Context, billID string) (*models.Bill, error)

	// GetBillByShareCode loads the full aggregate by its share code.
	GetBillByShareCode(ctx context.Context, code string) (*models.Bill, error)

	// SaveBill commits the whole aggregate in one transaction, bumping the
	// persisted version from expectedVersion to bill.Version. Returns
	// ErrVersionMismatch without writing anything when the persisted
	// version is not expectedVersion.
	SaveBill(ctx context.Context, bill *models.Bill, expectedVersion int64) error

	// CreateUser persists a new user account.
	CreateUser(ctx context.Context, user *models.User) error

	// GetUserByEmail returns the user with the given email, or nil.
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	// GetUserByID returns the user with the given ID, or nil.
	GetUserByID(ctx context.Context, id string) (*models.User, error)

	// Close releases any resources held by the store.
	Close() error
}
