/*
Package seating provides the core desk allocation model.

PURPOSE:
  This package contains the types and rules shared by every part of the
  system: users, seats, bookings, the calendar rules that decide who is in
  the office on which day, and the persistence contract the engine relies on.

KEY CONCEPTS IN THIS FILE (types.go):
  - User: An employee with a batch (1,2), a squad (1..5) and maybe a desk
  - Seat: A physical desk, either Designated (bound to a batch/squad/owner)
          or Floating (shared pool)
  - Release: The single-slot "released for date X" marker of a designated seat
  - Booking: One user on one seat for one day, with a lifecycle status

DESIGN PRINCIPLES:
  1. Closed variants: SeatKind, ReleaseState, BookingType and BookingStatus
     are small integer enums. Unknown values cannot be parsed or persisted.
  2. Bookings are never deleted. Cancellation is a status transition.
  3. A released seat is released for ONE date. Always compare Release.Date
     with the date in question (see Seat.ReleasedOn).

USAGE:
  seat := seating.Seat{
      ID:      "seat-d001",
      Number:  "D001",
      Kind:    seating.KindDesignated,
      Batch:   1,
      Squad:   1,
      OwnerID: "emp-1",
  }
  if seat.ReleasedOn(date) { ... }

SEE ALSO:
  - calendar.go: Working-day, floating-window and horizon rules
  - store.go: Persistence interfaces
  - ledger.go: Booking Ledger
  - directory.go: Seat Directory
*/
package seating

import (
	"fmt"
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type SeatID string
type BookingID string

// Batch is the rotation group of a user: 1 or 2.
type Batch int

func (b Batch) Valid() bool { return b == 1 || b == 2 }

// Squad is the team of a user inside a batch: 1..5.
type Squad int

func (s Squad) Valid() bool { return s >= 1 && s <= 5 }

// =============================================================================
// USER - Consumed read-only from the identity provider
// =============================================================================

type Role string

const (
	RoleEmployee Role = "employee"
	RoleAdmin    Role = "admin"
)

type User struct {
	ID               UserID
	Name             string
	Email            string
	Batch            Batch
	Squad            Squad
	DesignatedSeatID SeatID // weak reference, empty when the user has no desk
	Role             Role
}

// =============================================================================
// SEAT
// =============================================================================

type SeatKind int

const (
	KindDesignated SeatKind = iota + 1
	KindFloating
)

func (k SeatKind) String() string {
	switch k {
	case KindDesignated:
		return "designated"
	case KindFloating:
		return "floating"
	default:
		return fmt.Sprintf("SeatKind(%d)", int(k))
	}
}

func ParseSeatKind(s string) (SeatKind, error) {
	switch s {
	case "designated":
		return KindDesignated, nil
	case "floating":
		return KindFloating, nil
	}
	return 0, fmt.Errorf("unknown seat kind %q", s)
}

func (k SeatKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *SeatKind) UnmarshalText(b []byte) error {
	v, err := ParseSeatKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

type ReleaseState int

const (
	ReleaseNormal ReleaseState = iota
	ReleaseReleased
)

func (r ReleaseState) String() string {
	switch r {
	case ReleaseNormal:
		return "normal"
	case ReleaseReleased:
		return "released"
	default:
		return fmt.Sprintf("ReleaseState(%d)", int(r))
	}
}

func ParseReleaseState(s string) (ReleaseState, error) {
	switch s {
	case "normal", "":
		return ReleaseNormal, nil
	case "released":
		return ReleaseReleased, nil
	}
	return 0, fmt.Errorf("unknown release state %q", s)
}

func (r ReleaseState) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *ReleaseState) UnmarshalText(b []byte) error {
	v, err := ParseReleaseState(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// Release is the single release slot of a designated seat.
// State=Released only means something for Date.
type Release struct {
	State ReleaseState
	Date  Date
	By    UserID
}

// NormalRelease is the zero release slot.
var NormalRelease = Release{State: ReleaseNormal}

type Seat struct {
	ID     SeatID
	Number string // human label, unique (e.g. "D001", "F003")
	Kind   SeatKind

	// Designated seats only
	Squad   Squad
	Batch   Batch
	OwnerID UserID

	Release Release
}

func (s Seat) IsDesignated() bool { return s.Kind == KindDesignated }
func (s Seat) IsFloating() bool   { return s.Kind == KindFloating }

// OwnedBy reports whether the seat is the designated seat of userID.
func (s Seat) OwnedBy(userID UserID) bool {
	return s.Kind == KindDesignated && s.OwnerID != "" && s.OwnerID == userID
}

// ReleasedOn reports whether the seat is released for exactly this date.
func (s Seat) ReleasedOn(d Date) bool {
	return s.Kind == KindDesignated &&
		s.Release.State == ReleaseReleased &&
		s.Release.Date.Equal(d)
}

// =============================================================================
// BOOKING
// =============================================================================

type BookingType int

const (
	BookingDesignated BookingType = iota + 1
	BookingFloating
)

func (t BookingType) String() string {
	switch t {
	case BookingDesignated:
		return "designated"
	case BookingFloating:
		return "floating"
	default:
		return fmt.Sprintf("BookingType(%d)", int(t))
	}
}

func ParseBookingType(s string) (BookingType, error) {
	switch s {
	case "designated":
		return BookingDesignated, nil
	case "floating":
		return BookingFloating, nil
	}
	return 0, fmt.Errorf("unknown booking type %q", s)
}

func (t BookingType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *BookingType) UnmarshalText(b []byte) error {
	v, err := ParseBookingType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// BookingTypeFor derives the booking type at creation time: Designated iff
// the seat is the user's own designated seat. A stranger's released seat
// is booked as Floating.
func BookingTypeFor(seat Seat, userID UserID) BookingType {
	if seat.OwnedBy(userID) {
		return BookingDesignated
	}
	return BookingFloating
}

type BookingStatus int

const (
	StatusActive BookingStatus = iota + 1
	StatusCancelled
	StatusCompleted
)

func (s BookingStatus) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusCancelled:
		return "cancelled"
	case StatusCompleted:
		return "completed"
	default:
		return fmt.Sprintf("BookingStatus(%d)", int(s))
	}
}

func ParseBookingStatus(s string) (BookingStatus, error) {
	switch s {
	case "active":
		return StatusActive, nil
	case "cancelled":
		return StatusCancelled, nil
	case "completed":
		return StatusCompleted, nil
	}
	return 0, fmt.Errorf("unknown booking status %q", s)
}

func (s BookingStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *BookingStatus) UnmarshalText(b []byte) error {
	v, err := ParseBookingStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Booking is an immutable reservation intent with a mutable status.
// Date, Type, Start and End never change after creation.
type Booking struct {
	ID          BookingID
	UserID      UserID
	SeatID      SeatID
	Date        Date
	Type        BookingType
	Start       TimeOfDay
	End         TimeOfDay
	Status      BookingStatus
	BookedAt    time.Time
	CancelledAt *time.Time
}

// Occupies reports whether the booking holds its seat for its date.
// Completed bookings still do: they are past days that were used.
func (b Booking) Occupies() bool {
	return b.Status == StatusActive || b.Status == StatusCompleted
}
