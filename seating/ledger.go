/*
ledger.go - Booking Ledger

PURPOSE:
  Record of reservations. Each booking is an immutable intent (user, seat,
  date, type, time range) with a mutable lifecycle status.

CRITICAL INVARIANTS:
  1. For every (user, date): at most one Active booking
  2. For every (seat, date): at most one Active booking
  3. NO DELETE: cancellation is a status transition, history is preserved

  1 and 2 are enforced by BookingStore.InsertBooking, never by the
  Find* lookups here. The lookups only give callers a precise error
  before they attempt the insert.

LIFECYCLE:
  Active ──cancel──> Cancelled
  Active ──sweep───> Completed   (date has passed)

SEE ALSO:
  - store.go: BookingStore contract
  - allocation/engine.go: Sequences ledger and directory writes
*/
package seating

import (
	"context"
	"errors"
	"sort"
	"time"
)

type Ledger struct {
	Store BookingStore
}

func NewLedger(store BookingStore) *Ledger {
	return &Ledger{Store: store}
}

func (l *Ledger) Get(ctx context.Context, id BookingID) (Booking, error) {
	return l.Store.GetBooking(ctx, id)
}

// FindActiveForUserOnDate returns the Active booking of userID on date.
func (l *Ledger) FindActiveForUserOnDate(ctx context.Context, userID UserID, date Date) (Booking, bool, error) {
	status := StatusActive
	return l.first(ctx, BookingFilter{UserID: &userID, Date: &date, Status: &status})
}

// FindActiveForSeatOnDate returns the Active booking of seatID on date.
func (l *Ledger) FindActiveForSeatOnDate(ctx context.Context, seatID SeatID, date Date) (Booking, bool, error) {
	status := StatusActive
	return l.first(ctx, BookingFilter{SeatID: &seatID, Date: &date, Status: &status})
}

// FindCancelledOwnerBookingForSeatOnDate returns a Cancelled booking made by
// userID on seatID for date. This is the "released by cancellation" signal.
func (l *Ledger) FindCancelledOwnerBookingForSeatOnDate(ctx context.Context, seatID SeatID, userID UserID, date Date) (Booking, bool, error) {
	status := StatusCancelled
	return l.first(ctx, BookingFilter{SeatID: &seatID, UserID: &userID, Date: &date, Status: &status})
}

func (l *Ledger) first(ctx context.Context, f BookingFilter) (Booking, bool, error) {
	bookings, err := l.Store.FindBookings(ctx, f)
	if err != nil {
		return Booking{}, false, err
	}
	if len(bookings) == 0 {
		return Booking{}, false, nil
	}
	return bookings[0], true, nil
}

// Create inserts an Active booking. Fails with *ConflictError when either
// invariant would be violated.
func (l *Ledger) Create(ctx context.Context, b Booking) (Booking, error) {
	b.Status = StatusActive
	b.CancelledAt = nil
	if err := l.Store.InsertBooking(ctx, b); err != nil {
		return Booking{}, err
	}
	return b, nil
}

// Cancel moves an Active booking to Cancelled and stamps CancelledAt.
func (l *Ledger) Cancel(ctx context.Context, id BookingID, at time.Time) (Booking, error) {
	b, err := l.Store.GetBooking(ctx, id)
	if err != nil {
		return Booking{}, err
	}
	switch b.Status {
	case StatusCancelled:
		return Booking{}, ErrAlreadyCancelled
	case StatusCompleted:
		return Booking{}, ErrBookingCompleted
	}
	if err := l.Store.UpdateBookingStatus(ctx, id, StatusActive, StatusCancelled, at); err != nil {
		if errors.Is(err, ErrConcurrentModification) {
			// Lost the race to another cancel.
			return Booking{}, ErrAlreadyCancelled
		}
		return Booking{}, err
	}
	b.Status = StatusCancelled
	b.CancelledAt = &at
	return b, nil
}

// ListForUser returns every booking of userID, newest date first.
// A non-nil date restricts the result to that day.
func (l *Ledger) ListForUser(ctx context.Context, userID UserID, date *Date) ([]Booking, error) {
	bookings, err := l.Store.FindBookings(ctx, BookingFilter{UserID: &userID, Date: date})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(bookings, func(i, j int) bool {
		if !bookings[i].Date.Equal(bookings[j].Date) {
			return bookings[i].Date.After(bookings[j].Date)
		}
		return bookings[i].BookedAt.After(bookings[j].BookedAt)
	})
	return bookings, nil
}

// ListActiveOnDate returns Active bookings on date in store order.
func (l *Ledger) ListActiveOnDate(ctx context.Context, date Date) ([]Booking, error) {
	status := StatusActive
	return l.Store.FindBookings(ctx, BookingFilter{Date: &date, Status: &status})
}

// ListCancelledDesignatedOnDate returns Cancelled bookings of Designated
// type on date. Their seats count as released for that date.
func (l *Ledger) ListCancelledDesignatedOnDate(ctx context.Context, date Date) ([]Booking, error) {
	status := StatusCancelled
	typ := BookingDesignated
	return l.Store.FindBookings(ctx, BookingFilter{Date: &date, Status: &status, Type: &typ})
}

// ListOccupyingBetween returns Active and Completed bookings with
// from <= date <= to, in store order.
func (l *Ledger) ListOccupyingBetween(ctx context.Context, from, to Date) ([]Booking, error) {
	bookings, err := l.Store.FindBookings(ctx, BookingFilter{From: &from, To: &to})
	if err != nil {
		return nil, err
	}
	out := bookings[:0]
	for _, b := range bookings {
		if b.Occupies() {
			out = append(out, b)
		}
	}
	return out, nil
}
