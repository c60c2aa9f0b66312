/*
store.go - Persistence interfaces for users, seats, bookings and audit

PURPOSE:
  Defines the interface between the allocation rules and the database.
  Different implementations can use SQLite or in-memory storage; the
  engine only ever talks to these interfaces.

KEY INTERFACES:
  UserStore:    Read access to the identity provider's users (plus seeding)
  SeatStore:    Seat Directory persistence, including the release slot
  BookingStore: Booking Ledger persistence
  AuditLog:     Who did what when
  TxStore:      All of the above plus WithTx (all-or-nothing)

CONDITIONAL INSERT:
  InsertBooking is the ONLY place the one-active-booking invariants are
  enforced. It must fail with ErrDuplicateUserBooking (same user, same
  date) or ErrSeatAlreadyBooked (same seat, same date) when another Active
  booking exists, atomically with the write. Read-then-insert in the
  caller is only a pre-pass for precise error messages.

NO DELETE:
  Bookings are never deleted. Status changes go through
  UpdateBookingStatus, which is a compare-and-swap on the old status.

ERRORS:
  Any driver failure is returned as *StoreError (matches
  ErrStoreUnavailable). Missing rows return ErrNotFound / ErrUserNotFound.

IMPLEMENTATIONS:
  - seating/store/memory.go: In-memory for tests and dev
  - store/sqlite/sqlite.go: SQLite with UNIQUE partial indexes

SEE ALSO:
  - directory.go, ledger.go: Higher-level wrappers used by the engine
*/
package seating

import (
	"context"
	"time"
)

// =============================================================================
// USERS
// =============================================================================

type UserStore interface {
	// GetUser returns ErrUserNotFound when the user does not exist.
	GetUser(ctx context.Context, id UserID) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	// SaveUser inserts or replaces a user. Used by seeding only.
	SaveUser(ctx context.Context, u User) error
}

// =============================================================================
// SEATS
// =============================================================================

type SeatStore interface {
	// ListSeats returns every seat ordered by Number.
	ListSeats(ctx context.Context) ([]Seat, error)
	// GetSeat returns ErrNotFound when the seat does not exist.
	GetSeat(ctx context.Context, id SeatID) (Seat, error)
	// FindSeatByOwner returns the designated seat owned by userID, if any.
	FindSeatByOwner(ctx context.Context, userID UserID) (Seat, bool, error)
	// SaveSeat inserts or replaces a seat. Used by seeding only.
	SaveSeat(ctx context.Context, s Seat) error
	// SetRelease overwrites the release slot of a seat.
	SetRelease(ctx context.Context, id SeatID, r Release) error
	// ClearReleasesBefore resets every release dated before d. Returns the count.
	ClearReleasesBefore(ctx context.Context, d Date) (int, error)
}

// =============================================================================
// BOOKINGS
// =============================================================================

// BookingFilter selects bookings. Nil fields match everything.
// From/To bound the date inclusively.
type BookingFilter struct {
	UserID *UserID
	SeatID *SeatID
	Date   *Date
	From   *Date
	To     *Date
	Status *BookingStatus
	Type   *BookingType
}

func (f BookingFilter) Matches(b Booking) bool {
	if f.UserID != nil && b.UserID != *f.UserID {
		return false
	}
	if f.SeatID != nil && b.SeatID != *f.SeatID {
		return false
	}
	if f.Date != nil && !b.Date.Equal(*f.Date) {
		return false
	}
	if f.From != nil && b.Date.Before(*f.From) {
		return false
	}
	if f.To != nil && b.Date.After(*f.To) {
		return false
	}
	if f.Status != nil && b.Status != *f.Status {
		return false
	}
	if f.Type != nil && b.Type != *f.Type {
		return false
	}
	return true
}

type BookingStore interface {
	// InsertBooking is the atomic conditional insert (see package doc).
	InsertBooking(ctx context.Context, b Booking) error
	// GetBooking returns ErrNotFound when the booking does not exist.
	GetBooking(ctx context.Context, id BookingID) (Booking, error)
	// UpdateBookingStatus moves a booking from one status to another.
	// Returns ErrNotFound if absent and ErrConcurrentModification if the
	// current status is not from. CancelledAt is stamped with at when to
	// is StatusCancelled.
	UpdateBookingStatus(ctx context.Context, id BookingID, from, to BookingStatus, at time.Time) error
	// FindBookings returns matches ordered by (Date, BookedAt, ID).
	FindBookings(ctx context.Context, f BookingFilter) ([]Booking, error)
	// CompleteBookingsBefore marks Active bookings dated before d Completed.
	CompleteBookingsBefore(ctx context.Context, d Date) (int, error)
}

// =============================================================================
// AUDIT LOG - Separate from the ledger, tracks who did what when
// =============================================================================

type AuditAction string

const (
	AuditBookingCreated   AuditAction = "booking_created"
	AuditBookingCancelled AuditAction = "booking_cancelled"
	AuditSeatReleased     AuditAction = "seat_released"
	AuditReleaseCleared   AuditAction = "release_cleared"
	AuditSweep            AuditAction = "sweep"
)

type AuditEntry struct {
	ID        string
	Timestamp time.Time
	ActorID   UserID // empty for system actions
	Action    AuditAction
	SeatID    SeatID
	BookingID BookingID
	Date      Date
	Payload   map[string]any
}

type AuditFilter struct {
	ActorID *UserID
	SeatID  *SeatID
	Date    *Date
	Actions []AuditAction
	Limit   int // 0 means no limit
}

func (f AuditFilter) Matches(e AuditEntry) bool {
	if f.ActorID != nil && e.ActorID != *f.ActorID {
		return false
	}
	if f.SeatID != nil && e.SeatID != *f.SeatID {
		return false
	}
	if f.Date != nil && !e.Date.Equal(*f.Date) {
		return false
	}
	if len(f.Actions) > 0 {
		for _, a := range f.Actions {
			if e.Action == a {
				return true
			}
		}
		return false
	}
	return true
}

type AuditLog interface {
	AppendAudit(ctx context.Context, e AuditEntry) error
	// QueryAudit returns matches newest first.
	QueryAudit(ctx context.Context, f AuditFilter) ([]AuditEntry, error)
}

// =============================================================================
// COMBINED + TRANSACTIONAL STORE
// =============================================================================

type Store interface {
	UserStore
	SeatStore
	BookingStore
	AuditLog
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, every write made through the Store passed to fn
	// is rolled back. If fn returns nil, they are committed together.
	WithTx(ctx context.Context, fn func(Store) error) error
}
