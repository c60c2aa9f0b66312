/*
errors.go - Centralized error types for the allocation engine

PURPOSE:
  All error kinds in one place. Every failure the engine returns matches
  exactly one sentinel below via errors.Is, and structured errors carry the
  seat/date/user context a caller needs to render a message.

ERROR CATEGORIES:
  1. Input errors      - InvalidTimeRange, OutsideBookingHorizon, InvalidDateRange
  2. Invariant errors  - DuplicateUserBooking, SeatAlreadyBooked
  3. Seat errors       - NoDesignatedSeat, NotDesignatedSeat
  4. Lifecycle errors  - NotFound, AlreadyCancelled, BookingCompleted
  5. Access errors     - Forbidden, UserNotFound
  6. Store errors      - StoreUnavailable, ConcurrentModification

USAGE:
  if errors.Is(err, seating.ErrSeatAlreadyBooked) {
      var c *seating.ConflictError
      errors.As(err, &c) // c.ExistingID is the booking holding the seat
  }

SEE ALSO:
  - store.go: Stores return ErrStoreUnavailable wrapped in *StoreError
  - allocation/engine.go: Produces these errors
*/
package seating

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrOutsideBookingHorizon = errors.New("date is outside the booking horizon")
	ErrInvalidTimeRange      = errors.New("end time must be after start time")
	ErrDuplicateUserBooking  = errors.New("user already has a booking for this date")
	ErrSeatAlreadyBooked     = errors.New("seat is already booked for this date")
	ErrNoDesignatedSeat      = errors.New("user has no designated seat")
	ErrNotDesignatedSeat     = errors.New("seat is not a designated seat")
	ErrForbidden             = errors.New("forbidden")
	ErrNotFound              = errors.New("not found")
	ErrAlreadyCancelled      = errors.New("booking is already cancelled")
	ErrUserNotFound          = errors.New("user not found")
	ErrStoreUnavailable      = errors.New("store unavailable")

	// ErrBookingCompleted is returned when cancelling a booking whose day is over.
	ErrBookingCompleted = errors.New("booking is already completed")

	// ErrFloatingWindowClosed is returned when floating-window enforcement is on
	// and the pool for the date has not opened yet.
	ErrFloatingWindowClosed = errors.New("floating seats are not bookable yet for this date")

	// ErrInvalidDateRange is returned for reversed or oversized schedule ranges.
	ErrInvalidDateRange = errors.New("invalid date range")

	// ErrConcurrentModification is returned when a status compare-and-swap loses.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// HorizonError describes a date outside [First, Last].
type HorizonError struct {
	Date  Date
	First Date
	Last  Date
}

func (e *HorizonError) Error() string {
	if e.Date.Before(e.First) {
		return fmt.Sprintf("cannot book for past date %s", e.Date)
	}
	return fmt.Sprintf("bookings are only allowed from %s to %s (requested %s)", e.First, e.Last, e.Date)
}

func (e *HorizonError) Unwrap() error { return ErrOutsideBookingHorizon }

// ConflictError describes a violated one-active-booking invariant.
// Err is ErrDuplicateUserBooking or ErrSeatAlreadyBooked.
type ConflictError struct {
	Err        error
	UserID     UserID
	SeatID     SeatID
	Date       Date
	ExistingID BookingID // empty when only the store constraint reported it
}

func (e *ConflictError) Error() string {
	if errors.Is(e.Err, ErrSeatAlreadyBooked) {
		return fmt.Sprintf("seat %s is already booked for %s", e.SeatID, e.Date)
	}
	return fmt.Sprintf("user %s already has a booking for %s", e.UserID, e.Date)
}

func (e *ConflictError) Unwrap() error { return e.Err }

// StoreError wraps a persistence failure. It matches both ErrStoreUnavailable
// and the underlying driver error.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() []error { return []error{ErrStoreUnavailable, e.Err} }

// NewStoreError wraps err unless it is nil or already a domain error.
func NewStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

var codes = []struct {
	err  error
	code string
}{
	{ErrOutsideBookingHorizon, "OutsideBookingHorizon"},
	{ErrInvalidTimeRange, "InvalidTimeRange"},
	{ErrDuplicateUserBooking, "DuplicateUserBooking"},
	{ErrSeatAlreadyBooked, "SeatAlreadyBooked"},
	{ErrNoDesignatedSeat, "NoDesignatedSeat"},
	{ErrNotDesignatedSeat, "NotDesignatedSeat"},
	{ErrForbidden, "Forbidden"},
	{ErrUserNotFound, "UserNotFound"},
	{ErrNotFound, "NotFound"},
	{ErrAlreadyCancelled, "AlreadyCancelled"},
	{ErrBookingCompleted, "BookingCompleted"},
	{ErrFloatingWindowClosed, "FloatingWindowClosed"},
	{ErrInvalidDateRange, "InvalidDateRange"},
	{ErrConcurrentModification, "ConcurrentModification"},
	{ErrStoreUnavailable, "StoreUnavailable"},
}

// Code returns the stable kind name of err, or "Internal".
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "Internal"
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrConcurrentModification)
}

// IsConflict returns true if the error is a one-booking invariant violation.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateUserBooking) || errors.Is(err, ErrSeatAlreadyBooked)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrUserNotFound)
}
