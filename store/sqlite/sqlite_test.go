package sqlite

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/seat-engine/seating"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

var testDay = seating.MustParseDate("2026-06-10")

func testBooking(id, user, seat string) seating.Booking {
	return seating.Booking{
		ID:       seating.BookingID(id),
		UserID:   seating.UserID(user),
		SeatID:   seating.SeatID(seat),
		Date:     testDay,
		Type:     seating.BookingFloating,
		Start:    seating.DefaultStart,
		End:      seating.DefaultEnd,
		Status:   seating.StatusActive,
		BookedAt: time.Date(2026, 6, 9, 10, 0, 0, 0, time.UTC),
	}
}

func TestSQLite_SeatRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	seat := seating.Seat{
		ID: "seat-D001", Number: "D001", Kind: seating.KindDesignated,
		Batch: 1, Squad: 2, OwnerID: "alice",
	}
	require.NoError(t, store.SaveSeat(ctx, seat))
	require.NoError(t, store.SaveSeat(ctx, seating.Seat{ID: "seat-F001", Number: "F001", Kind: seating.KindFloating}))

	got, err := store.GetSeat(ctx, "seat-D001")
	require.NoError(t, err)
	assert.Equal(t, seat, got)

	owned, ok, err := store.FindSeatByOwner(ctx, "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, seating.SeatID("seat-D001"), owned.ID)

	release := seating.Release{State: seating.ReleaseReleased, Date: testDay, By: "alice"}
	require.NoError(t, store.SetRelease(ctx, "seat-D001", release))
	got, err = store.GetSeat(ctx, "seat-D001")
	require.NoError(t, err)
	assert.Equal(t, release, got.Release)

	_, err = store.GetSeat(ctx, "seat-X")
	assert.ErrorIs(t, err, seating.ErrNotFound)
	assert.ErrorIs(t, store.SetRelease(ctx, "seat-X", release), seating.ErrNotFound)

	seats, err := store.ListSeats(ctx)
	require.NoError(t, err)
	require.Len(t, seats, 2)
	assert.Equal(t, "D001", seats[0].Number)
}

func TestSQLite_UserNotFound(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.GetUser(ctx, "ghost")
	assert.ErrorIs(t, err, seating.ErrUserNotFound)

	u := seating.User{ID: "alice", Name: "Alice", Batch: 1, Squad: 3, DesignatedSeatID: "seat-D009", Role: seating.RoleEmployee}
	require.NoError(t, store.SaveUser(ctx, u))
	got, err := store.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, u, got)
}

func TestSQLite_UniqueIndexesEnforceInvariants(t *testing.T) {
	// GIVEN: An Active booking for alice on s1
	// WHEN: Inserting a second Active booking for the same user or seat
	// THEN: The partial unique indexes reject it with the matching error
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.InsertBooking(ctx, testBooking("b1", "alice", "s1")))

	err := store.InsertBooking(ctx, testBooking("b2", "alice", "s2"))
	require.ErrorIs(t, err, seating.ErrDuplicateUserBooking)

	err = store.InsertBooking(ctx, testBooking("b3", "bob", "s1"))
	require.ErrorIs(t, err, seating.ErrSeatAlreadyBooked)
	var ce *seating.ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, seating.SeatID("s1"), ce.SeatID)
	assert.False(t, seating.IsRetryable(err))

	// After cancelling, the seat and the user are free again.
	require.NoError(t, store.UpdateBookingStatus(ctx, "b1", seating.StatusActive, seating.StatusCancelled, time.Now()))
	require.NoError(t, store.InsertBooking(ctx, testBooking("b4", "bob", "s1")))
	require.NoError(t, store.InsertBooking(ctx, testBooking("b5", "alice", "s2")))
}

func TestSQLite_BookingRoundTripAndFilter(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	b := testBooking("b1", "alice", "s1")
	b.Type = seating.BookingDesignated
	b.Start = seating.TimeOfDay{Hour: 8, Minute: 30}
	require.NoError(t, store.InsertBooking(ctx, b))

	got, err := store.GetBooking(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, b.Start, got.Start)
	assert.Equal(t, seating.BookingDesignated, got.Type)
	assert.True(t, b.BookedAt.Equal(got.BookedAt))
	assert.Nil(t, got.CancelledAt)

	other := testBooking("b2", "bob", "s2")
	other.Date = testDay.AddDays(1)
	require.NoError(t, store.InsertBooking(ctx, other))

	from, to := testDay, testDay.AddDays(1)
	all, err := store.FindBookings(ctx, seating.BookingFilter{From: &from, To: &to})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, seating.BookingID("b1"), all[0].ID)

	typ := seating.BookingDesignated
	designated, err := store.FindBookings(ctx, seating.BookingFilter{Type: &typ})
	require.NoError(t, err)
	require.Len(t, designated, 1)

	at := time.Date(2026, 6, 9, 11, 0, 0, 0, time.UTC)
	require.NoError(t, store.UpdateBookingStatus(ctx, "b1", seating.StatusActive, seating.StatusCancelled, at))
	got, err = store.GetBooking(ctx, "b1")
	require.NoError(t, err)
	require.NotNil(t, got.CancelledAt)
	assert.True(t, at.Equal(*got.CancelledAt))

	err = store.UpdateBookingStatus(ctx, "b1", seating.StatusActive, seating.StatusCancelled, at)
	assert.ErrorIs(t, err, seating.ErrConcurrentModification)
	err = store.UpdateBookingStatus(ctx, "missing", seating.StatusActive, seating.StatusCancelled, at)
	assert.ErrorIs(t, err, seating.ErrNotFound)
}

func TestSQLite_WithTx_RollsBack(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.SaveSeat(ctx, seating.Seat{ID: "s1", Number: "D001", Kind: seating.KindDesignated}))

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(tx seating.Store) error {
		if err := tx.InsertBooking(ctx, testBooking("b1", "alice", "s1")); err != nil {
			return err
		}
		// Reads inside the transaction see the uncommitted row.
		if _, err := tx.GetBooking(ctx, "b1"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = store.GetBooking(ctx, "b1")
	assert.ErrorIs(t, err, seating.ErrNotFound)
}

func TestSQLite_ConcurrentTransactions_OneWinner(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	const n = 20
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.WithTx(ctx, func(tx seating.Store) error {
				return tx.InsertBooking(ctx, testBooking(fmt.Sprintf("b%d", i), fmt.Sprintf("u%d", i), "s1"))
			})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, seating.ErrSeatAlreadyBooked)
	}
	assert.Equal(t, 1, wins)
}

func TestSQLite_HousekeepingAndAudit(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.SaveSeat(ctx, seating.Seat{ID: "s1", Number: "D001", Kind: seating.KindDesignated,
		Release: seating.Release{State: seating.ReleaseReleased, Date: testDay, By: "alice"}}))
	require.NoError(t, store.InsertBooking(ctx, testBooking("b1", "alice", "s2")))

	n, err := store.ClearReleasesBefore(ctx, testDay.AddDays(1))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	seat, err := store.GetSeat(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, seating.NormalRelease, seat.Release)

	n, err = store.CompleteBookingsBefore(ctx, testDay.AddDays(1))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	for i, action := range []seating.AuditAction{seating.AuditBookingCreated, seating.AuditSeatReleased} {
		require.NoError(t, store.AppendAudit(ctx, seating.AuditEntry{
			ID:        fmt.Sprintf("a%d", i),
			Timestamp: time.Now(),
			ActorID:   "alice",
			Action:    action,
			Date:      testDay,
			Payload:   map[string]any{"seat": "D001"},
		}))
	}
	entries, err := store.QueryAudit(ctx, seating.AuditFilter{Actions: []seating.AuditAction{seating.AuditSeatReleased}})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "D001", entries[0].Payload["seat"])

	entries, err = store.QueryAudit(ctx, seating.AuditFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a1", entries[0].ID)
}
