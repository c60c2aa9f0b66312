package allocation

import (
	"context"
	"time"

	"github.com/warp/seat-engine/seating"
)

// SeatAvailability is one seat as seen by one user on one date.
type SeatAvailability struct {
	Seat seating.Seat

	IsBooked               bool
	IsAvailable            bool
	BookedByRequestingUser bool
	// ReleasedByOwner is true only on the requesting user's own seat when
	// they released it. A stranger's released seat shows as ReleasedForDate
	// and nothing else.
	ReleasedByOwner bool
	ReleasedForDate bool
	InFloatingPool  bool
}

// FloatingInfo describes the floating pool for a date: floating seats plus
// the designated seats released for that date.
type FloatingInfo struct {
	Total        int `json:"total"`
	Booked       int `json:"booked"`
	Available    int `json:"available"`
	BaseFloating int `json:"base_floating"`
	Released     int `json:"released"`
}

type AvailabilitySnapshot struct {
	UserID seating.UserID
	Date   seating.Date

	IsWorkingDay          bool
	BatchInOffice         seating.Batch
	FloatingWindowOpen    bool
	FloatingWindowOpensAt time.Time

	Seats    []SeatAvailability
	Floating FloatingInfo

	UserHasBooking     bool
	CurrentBooking     *seating.Booking
	OwnSeat            *seating.Seat
	HasReleasedOwnSeat bool
}

// Available returns the seats nobody holds for the date.
func (s AvailabilitySnapshot) Available() []seating.Seat {
	var out []seating.Seat
	for _, sa := range s.Seats {
		if sa.IsAvailable {
			out = append(out, sa.Seat)
		}
	}
	return out
}

// ComputeAvailability returns every seat annotated for userID on date.
// Eligibility is checked again by Reserve; an available seat here is not a
// promise.
func (e *Engine) ComputeAvailability(ctx context.Context, userID seating.UserID, date seating.Date) (AvailabilitySnapshot, error) {
	now, today := e.now()
	if err := e.Calendar.CheckHorizon(date, today); err != nil {
		return AvailabilitySnapshot{}, err
	}

	user, err := e.Store.GetUser(ctx, userID)
	if err != nil {
		return AvailabilitySnapshot{}, err
	}
	seats, err := e.Store.ListSeats(ctx)
	if err != nil {
		return AvailabilitySnapshot{}, err
	}
	ledger := seating.NewLedger(e.Store)
	active, err := ledger.ListActiveOnDate(ctx, date)
	if err != nil {
		return AvailabilitySnapshot{}, err
	}
	cancelled, err := ledger.ListCancelledDesignatedOnDate(ctx, date)
	if err != nil {
		return AvailabilitySnapshot{}, err
	}

	snap := AvailabilitySnapshot{
		UserID:                userID,
		Date:                  date,
		IsWorkingDay:          seating.IsDesignatedWorkingDay(date, user.Batch),
		BatchInOffice:         seating.BatchInOffice(date),
		FloatingWindowOpen:    e.Calendar.FloatingWindowOpen(date, now),
		FloatingWindowOpensAt: e.Calendar.FloatingWindowOpensAt(date),
	}

	bySeat := make(map[seating.SeatID]seating.Booking, len(active))
	for _, b := range active {
		b := b
		bySeat[b.SeatID] = b
		if b.UserID == userID {
			snap.UserHasBooking = true
			snap.CurrentBooking = &b
		}
	}

	pool := floatingPool(seats, active, cancelled, date)
	snap.Floating = pool.info

	for _, s := range seats {
		s := s
		if s.OwnedBy(userID) {
			snap.OwnSeat = &s
		}
	}
	if snap.OwnSeat != nil {
		snap.HasReleasedOwnSeat, err = e.hasReleased(ctx, ledger, *snap.OwnSeat, userID, date, bySeat)
		if err != nil {
			return AvailabilitySnapshot{}, err
		}
	}

	snap.Seats = make([]SeatAvailability, 0, len(seats))
	for _, s := range seats {
		b, booked := bySeat[s.ID]
		released := pool.released[s.ID]
		snap.Seats = append(snap.Seats, SeatAvailability{
			Seat:                   s,
			IsBooked:               booked,
			IsAvailable:            !booked,
			BookedByRequestingUser: booked && b.UserID == userID,
			ReleasedByOwner:        s.OwnedBy(userID) && snap.HasReleasedOwnSeat,
			ReleasedForDate:        released,
			InFloatingPool:         s.IsFloating() || released,
		})
	}
	return snap, nil
}

// hasReleased reports whether userID gave up their own seat for date: no
// booking of theirs on it, and either the release slot names the date or
// they cancelled a booking on it that day.
func (e *Engine) hasReleased(ctx context.Context, ledger *seating.Ledger, own seating.Seat, userID seating.UserID, date seating.Date, bySeat map[seating.SeatID]seating.Booking) (bool, error) {
	if b, ok := bySeat[own.ID]; ok && b.UserID == userID {
		return false, nil
	}
	if own.ReleasedOn(date) {
		return true, nil
	}
	_, cancelled, err := ledger.FindCancelledOwnerBookingForSeatOnDate(ctx, own.ID, userID, date)
	return cancelled, err
}

type poolState struct {
	info     FloatingInfo
	released map[seating.SeatID]bool
}

// floatingPool computes the floating pool for date. A designated seat is
// released for date when its release slot names the date or when a
// Designated booking on it was cancelled for that date.
func floatingPool(seats []seating.Seat, occupying, cancelledDesignated []seating.Booking, date seating.Date) poolState {
	kinds := make(map[seating.SeatID]seating.SeatKind, len(seats))
	p := poolState{released: make(map[seating.SeatID]bool)}
	for _, s := range seats {
		kinds[s.ID] = s.Kind
		switch {
		case s.IsFloating():
			p.info.BaseFloating++
		case s.ReleasedOn(date):
			p.released[s.ID] = true
		}
	}
	for _, b := range cancelledDesignated {
		if kinds[b.SeatID] == seating.KindDesignated {
			p.released[b.SeatID] = true
		}
	}
	p.info.Released = len(p.released)
	p.info.Total = p.info.BaseFloating + p.info.Released

	for _, b := range occupying {
		if kinds[b.SeatID] == seating.KindFloating || p.released[b.SeatID] {
			p.info.Booked++
		}
	}
	p.info.Available = p.info.Total - p.info.Booked
	if p.info.Available < 0 {
		p.info.Available = 0
	}
	return p
}
