package seating

import "context"

// =============================================================================
// SEAT DIRECTORY - The fixed set of seats and their release slot
// =============================================================================

// Directory wraps a SeatStore with the release rules.
// Seats are only mutated through MarkReleased and ClearRelease.
type Directory struct {
	Store SeatStore
}

func NewDirectory(store SeatStore) *Directory {
	return &Directory{Store: store}
}

func (d *Directory) ListSeats(ctx context.Context) ([]Seat, error) {
	return d.Store.ListSeats(ctx)
}

func (d *Directory) GetSeat(ctx context.Context, id SeatID) (Seat, error) {
	return d.Store.GetSeat(ctx, id)
}

// FindOwnedSeat returns the designated seat of userID. The bool is false
// when the user owns no seat.
func (d *Directory) FindOwnedSeat(ctx context.Context, userID UserID) (Seat, bool, error) {
	if userID == "" {
		return Seat{}, false, nil
	}
	return d.Store.FindSeatByOwner(ctx, userID)
}

// MarkReleased puts a designated seat into the floating pool for date.
// Overwrites any earlier release: the slot holds one date at a time.
// The overwritten release is returned alongside the updated seat.
func (d *Directory) MarkReleased(ctx context.Context, seatID SeatID, by UserID, date Date) (Seat, Release, error) {
	seat, err := d.Store.GetSeat(ctx, seatID)
	if err != nil {
		return Seat{}, Release{}, err
	}
	if !seat.IsDesignated() {
		return Seat{}, Release{}, ErrNotDesignatedSeat
	}
	prev := seat.Release
	seat.Release = Release{State: ReleaseReleased, Date: date, By: by}
	if err := d.Store.SetRelease(ctx, seatID, seat.Release); err != nil {
		return Seat{}, Release{}, err
	}
	return seat, prev, nil
}

// ClearRelease resets the release slot. No-op when already Normal.
// Returns true when something was cleared.
func (d *Directory) ClearRelease(ctx context.Context, seatID SeatID) (bool, error) {
	seat, err := d.Store.GetSeat(ctx, seatID)
	if err != nil {
		return false, err
	}
	if seat.Release.State == ReleaseNormal {
		return false, nil
	}
	return true, d.Store.SetRelease(ctx, seatID, NormalRelease)
}
