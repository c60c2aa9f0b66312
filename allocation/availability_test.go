package allocation_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/seat-engine/allocation"
	"github.com/warp/seat-engine/seating"
)

func seatIn(t *testing.T, snap allocation.AvailabilitySnapshot, id seating.SeatID) allocation.SeatAvailability {
	t.Helper()
	for _, s := range snap.Seats {
		if s.Seat.ID == id {
			return s
		}
	}
	t.Fatalf("seat %s not in snapshot", id)
	return allocation.SeatAvailability{}
}

func TestAvailability_WorkingDayByBatch(t *testing.T) {
	// GIVEN: Monday of week 1
	f := newFixture(t)
	ctx := context.Background()

	// WHEN: a batch-1 and a batch-2 user look at the day
	b1, err := f.engine.ComputeAvailability(ctx, owner, f.today)
	require.NoError(t, err)
	b2, err := f.engine.ComputeAvailability(ctx, stranger, f.today)
	require.NoError(t, err)

	// THEN: only batch 1 is scheduled in
	assert.True(t, b1.IsWorkingDay)
	assert.False(t, b2.IsWorkingDay)
	assert.Equal(t, seating.Batch(1), b1.BatchInOffice)
	assert.True(t, b1.FloatingWindowOpen)
}

func TestAvailability_EmptyFloor(t *testing.T) {
	f := newFixture(t)

	snap, err := f.engine.ComputeAvailability(context.Background(), owner, f.today.AddDays(1))
	require.NoError(t, err)

	assert.Len(t, snap.Seats, 50)
	assert.Len(t, snap.Available(), 50)
	assert.False(t, snap.UserHasBooking)
	assert.Nil(t, snap.CurrentBooking)
	require.NotNil(t, snap.OwnSeat)
	assert.Equal(t, "D001", snap.OwnSeat.Number)
	assert.False(t, snap.HasReleasedOwnSeat)
	assert.Equal(t, allocation.FloatingInfo{Total: 10, Booked: 0, Available: 10, BaseFloating: 10, Released: 0}, snap.Floating)
}

func TestAvailability_OutsideHorizon(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.ComputeAvailability(ctx, owner, f.today.AddDays(15))
	assert.ErrorIs(t, err, seating.ErrOutsideBookingHorizon)

	_, err = f.engine.ComputeAvailability(ctx, owner, f.today.AddDays(-1))
	assert.ErrorIs(t, err, seating.ErrOutsideBookingHorizon)

	_, err = f.engine.ComputeAvailability(ctx, "ghost", f.today)
	assert.ErrorIs(t, err, seating.ErrUserNotFound)
}

func TestAvailability_FloatingWindowFlag(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tomorrow := f.today.AddDays(1)

	f.clock.Set(at(14, 59))
	snap, err := f.engine.ComputeAvailability(ctx, owner, tomorrow)
	require.NoError(t, err)
	assert.False(t, snap.FloatingWindowOpen)
	assert.Equal(t, at(15, 0), snap.FloatingWindowOpensAt)

	f.clock.Set(at(15, 0))
	snap, err = f.engine.ComputeAvailability(ctx, owner, tomorrow)
	require.NoError(t, err)
	assert.True(t, snap.FloatingWindowOpen)
}

func TestAvailability_BookedSeats(t *testing.T) {
	// GIVEN: the owner on D001 and a stranger on F001
	f := newFixture(t)
	ctx := context.Background()
	date := f.today.AddDays(1)
	mine := f.reserve(t, owner, seatD001, date)
	f.reserve(t, stranger, seatF001, date)

	// WHEN: the owner looks at the day
	snap, err := f.engine.ComputeAvailability(ctx, owner, date)
	require.NoError(t, err)

	// THEN: both seats are taken and only D001 is theirs
	d001 := seatIn(t, snap, seatD001)
	assert.True(t, d001.IsBooked)
	assert.False(t, d001.IsAvailable)
	assert.True(t, d001.BookedByRequestingUser)

	f001 := seatIn(t, snap, seatF001)
	assert.True(t, f001.IsBooked)
	assert.False(t, f001.BookedByRequestingUser)
	assert.True(t, f001.InFloatingPool)

	assert.True(t, snap.UserHasBooking)
	require.NotNil(t, snap.CurrentBooking)
	assert.Equal(t, mine.ID, snap.CurrentBooking.ID)
	assert.False(t, snap.HasReleasedOwnSeat)
	assert.Len(t, snap.Available(), 48)
	assert.Equal(t, 1, snap.Floating.Booked)
	assert.Equal(t, 9, snap.Floating.Available)
}

func TestAvailability_ExplicitRelease(t *testing.T) {
	// GIVEN: the owner released D001
	f := newFixture(t)
	ctx := context.Background()
	date := f.today.AddDays(2)
	_, err := f.engine.Release(ctx, owner, date)
	require.NoError(t, err)

	// WHEN: the owner and a stranger look at the day
	own, err := f.engine.ComputeAvailability(ctx, owner, date)
	require.NoError(t, err)
	other, err := f.engine.ComputeAvailability(ctx, stranger, date)
	require.NoError(t, err)

	// THEN: the owner sees their own release
	assert.True(t, own.HasReleasedOwnSeat)
	assert.True(t, seatIn(t, own, seatD001).ReleasedByOwner)

	// AND: the stranger sees a plain extra floating seat
	d001 := seatIn(t, other, seatD001)
	assert.False(t, d001.ReleasedByOwner)
	assert.True(t, d001.ReleasedForDate)
	assert.True(t, d001.InFloatingPool)
	assert.True(t, d001.IsAvailable)
	assert.False(t, other.HasReleasedOwnSeat)

	assert.Equal(t, allocation.FloatingInfo{Total: 11, Booked: 0, Available: 11, BaseFloating: 10, Released: 1}, other.Floating)

	// AND: the release is for that date only
	next, err := f.engine.ComputeAvailability(ctx, owner, date.AddDays(1))
	require.NoError(t, err)
	assert.False(t, next.HasReleasedOwnSeat)
	assert.Equal(t, 0, next.Floating.Released)
}

func TestAvailability_ReleaseByCancellation(t *testing.T) {
	// GIVEN: the owner booked D001 and cancelled
	f := newFixture(t)
	ctx := context.Background()
	date := f.today.AddDays(1)
	b := f.reserve(t, owner, seatD001, date)
	_, err := f.engine.Cancel(ctx, b.ID, owner, false)
	require.NoError(t, err)

	// WHEN: the stranger takes the seat
	f.reserve(t, stranger, seatD001, date)

	// THEN: the owner still shows as having released (the cancelled booking
	// is kept), and the stranger's booking counts against the pool
	snap, err := f.engine.ComputeAvailability(ctx, owner, date)
	require.NoError(t, err)
	assert.True(t, snap.HasReleasedOwnSeat)
	assert.False(t, snap.UserHasBooking)

	d001 := seatIn(t, snap, seatD001)
	assert.True(t, d001.IsBooked)
	assert.True(t, d001.ReleasedForDate)
	assert.Equal(t, allocation.FloatingInfo{Total: 11, Booked: 1, Available: 10, BaseFloating: 10, Released: 1}, snap.Floating)
}

func TestAvailability_OwnerRebooksAfterRelease(t *testing.T) {
	// GIVEN: the owner released D001 and then changed their mind
	f := newFixture(t)
	ctx := context.Background()
	date := f.today.AddDays(1)
	_, err := f.engine.Release(ctx, owner, date)
	require.NoError(t, err)
	b := f.reserve(t, owner, seatD001, date)
	assert.Equal(t, seating.BookingDesignated, b.Type)

	// THEN: they no longer count as having released their seat
	snap, err := f.engine.ComputeAvailability(ctx, owner, date)
	require.NoError(t, err)
	assert.False(t, snap.HasReleasedOwnSeat)
	assert.False(t, seatIn(t, snap, seatD001).ReleasedByOwner)
}
