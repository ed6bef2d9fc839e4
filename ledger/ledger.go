// Package ledger is the shared, multi-writer store of driver and user records.
//
// Every counter mutation is a single server-side increment. Callers never read
// a counter, add to it and write it back; concurrent installs and redemptions
// from many devices serialize inside the database instead.
package ledger

import (
	"context"
	"errors"
	"regexp"

	"referral-ledger/models"
)

var (
	// ErrNotFound means the referenced driver or user does not exist. Not retryable.
	ErrNotFound = errors.New("ledger: record not found")
	// ErrTransient covers network, timeout and database failures. Retry on the next trigger.
	ErrTransient = errors.New("ledger: transient remote failure")
	// ErrInvalid rejects malformed identifiers, counter fields or deltas.
	ErrInvalid = errors.New("ledger: invalid request")
	// ErrConflict is returned when creating a record whose id is already taken.
	ErrConflict = errors.New("ledger: record already exists")
)

// IsNotFound reports whether err carries ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsTransient reports whether err carries ErrTransient.
func IsTransient(err error) bool { return errors.Is(err, ErrTransient) }

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidID reports whether id can key a driver or user record.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// Ledger is the remote store consumed by install logging, redemption
// crediting, the presentation API and driver administration.
type Ledger interface {
	GetDriver(ctx context.Context, id string) (models.Driver, error)
	ListDrivers(ctx context.Context) ([]models.Driver, error)
	CreateDriver(ctx context.Context, d models.Driver) (models.Driver, error)
	RenameDriver(ctx context.Context, id, name string) error
	// ReassignDriver moves a driver to a new id, keeping its counters.
	ReassignDriver(ctx context.Context, oldID, newID, name string) (models.Driver, error)
	DeleteDriver(ctx context.Context, id string) error

	GetUser(ctx context.Context, id string) (models.UserRecord, error)
	// SetUser overwrites the whole record, creating it when absent.
	SetUser(ctx context.Context, id string, rec models.UserRecord) error
	UpdateUser(ctx context.Context, id string, patch models.UserPatch) error

	// IncrementDriverCounter adds delta (> 0) to one counter atomically.
	IncrementDriverCounter(ctx context.Context, id string, field models.CounterField, delta int64) error
	// CreditRedemption records the user's redemption token and increments the
	// driver's redemption counter in one step. It returns false, without
	// incrementing, when the user was already credited.
	CreditRedemption(ctx context.Context, userID, driverID string) (bool, error)
}
