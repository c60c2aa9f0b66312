/*
Package allocation is the desk allocation engine.

PURPOSE:
  Orchestrates the Seat Directory and the Booking Ledger: decides which
  seats a user can take on a date and sequences the seat-state and ledger
  writes that a reservation, cancellation or release implies.

KEY OPERATIONS:
  ComputeAvailability  Seats for (user, date) with booked/available flags
  Reserve              Create a booking (one per user per day, one per seat per day)
  Cancel               Active -> Cancelled, frees an owner's seat for the day
  Release              Owner gives their seat to the floating pool for one date
  ListMyBookings       A user's history, newest date first
  DailyStats, WeekSchedule, SeatsOnDate (aggregator.go)
  Sweep (housekeeping.go)

ATOMICITY:
  Every mutation runs inside one Store.WithTx. The pre-pass lookups only
  produce precise errors; BookingStore.InsertBooking is the authoritative
  conditional write. A failed call leaves no partial booking or seat change.

SIDE EFFECTS AFTER COMMIT:
  - Domain events are published (failures logged, never returned)
  - The cached daily stats of every date the write changed are invalidated

NO RETRIES:
  Store failures surface as ErrStoreUnavailable. Retrying is the caller's call.

SEE ALSO:
  - seating/: model, calendar rules, store contract
  - availability.go: ComputeAvailability
*/
package allocation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/warp/seat-engine/cache"
	"github.com/warp/seat-engine/events"
	"github.com/warp/seat-engine/seating"
)

// Policy holds optional rules on top of the base allocation rules.
type Policy struct {
	// EnforceFloatingWindow rejects Floating-type reservations for a date
	// whose floating window has not opened yet. Off by default.
	EnforceFloatingWindow bool
}

// DefaultStatsTTL is how long daily stats stay cached.
const DefaultStatsTTL = 30 * time.Second

type Engine struct {
	Store    seating.TxStore
	Calendar seating.Calendar
	Clock    seating.Clock
	Policy   Policy

	Events   events.Publisher
	Cache    cache.Service
	StatsTTL time.Duration
	Logger   *slog.Logger

	// NewID generates booking and audit IDs.
	NewID func() string
}

// NewEngine creates an engine with default calendar, system clock and no
// events or caching. Override the exported fields as needed.
func NewEngine(store seating.TxStore) *Engine {
	return &Engine{
		Store:    store,
		Calendar: seating.DefaultCalendar(nil),
		Clock:    seating.SystemClock{},
		Events:   events.Nop{},
		Cache:    cache.Nop{},
		StatsTTL: DefaultStatsTTL,
		Logger:   slog.Default(),
		NewID:    uuid.NewString,
	}
}

func (e *Engine) now() (time.Time, seating.Date) {
	now := e.Clock.Now()
	return now, e.Calendar.Today(now)
}

// Today returns the current office calendar day.
func (e *Engine) Today() seating.Date {
	_, today := e.now()
	return today
}

// =============================================================================
// RESERVE
// =============================================================================

type ReserveRequest struct {
	UserID seating.UserID
	SeatID seating.SeatID
	Date   seating.Date
	// Nil means the default booking hours (09:00-18:00).
	Start *seating.TimeOfDay
	End   *seating.TimeOfDay
}

type ReserveResult struct {
	Booking        seating.Booking
	Seat           seating.Seat
	ReleaseCleared bool
}

// Reserve books seatID for userID on date.
func (e *Engine) Reserve(ctx context.Context, req ReserveRequest) (ReserveResult, error) {
	start, end := seating.DefaultStart, seating.DefaultEnd
	if req.Start != nil {
		start = *req.Start
	}
	if req.End != nil {
		end = *req.End
	}
	if !start.Before(end) {
		return ReserveResult{}, fmt.Errorf("%w (%s-%s)", seating.ErrInvalidTimeRange, start, end)
	}

	now, today := e.now()
	if err := e.Calendar.CheckHorizon(req.Date, today); err != nil {
		return ReserveResult{}, err
	}

	var result ReserveResult
	err := e.Store.WithTx(ctx, func(tx seating.Store) error {
		ledger := seating.NewLedger(tx)
		dir := seating.NewDirectory(tx)

		if _, err := tx.GetUser(ctx, req.UserID); err != nil {
			return err
		}
		seat, err := dir.GetSeat(ctx, req.SeatID)
		if err != nil {
			return wrapNotFound(err, "seat %s", req.SeatID)
		}

		// Pre-pass for precise errors. InsertBooking re-checks atomically.
		if existing, ok, err := ledger.FindActiveForUserOnDate(ctx, req.UserID, req.Date); err != nil {
			return err
		} else if ok {
			return &seating.ConflictError{Err: seating.ErrDuplicateUserBooking, UserID: req.UserID, SeatID: req.SeatID, Date: req.Date, ExistingID: existing.ID}
		}
		if existing, ok, err := ledger.FindActiveForSeatOnDate(ctx, req.SeatID, req.Date); err != nil {
			return err
		} else if ok {
			return &seating.ConflictError{Err: seating.ErrSeatAlreadyBooked, UserID: req.UserID, SeatID: req.SeatID, Date: req.Date, ExistingID: existing.ID}
		}

		bookingType := seating.BookingTypeFor(seat, req.UserID)
		if bookingType == seating.BookingFloating && e.Policy.EnforceFloatingWindow &&
			!e.Calendar.FloatingWindowOpen(req.Date, now) {
			opensAt := e.Calendar.FloatingWindowOpensAt(req.Date)
			return fmt.Errorf("%w: opens %s", seating.ErrFloatingWindowClosed, opensAt.Format("2006-01-02 15:04"))
		}

		booking, err := ledger.Create(ctx, seating.Booking{
			ID:       seating.BookingID(e.NewID()),
			UserID:   req.UserID,
			SeatID:   req.SeatID,
			Date:     req.Date,
			Type:     bookingType,
			Start:    start,
			End:      end,
			BookedAt: now,
		})
		if err != nil {
			return err
		}

		// A release only binds the date it was made for.
		cleared := false
		if seat.ReleasedOn(req.Date) {
			if cleared, err = dir.ClearRelease(ctx, seat.ID); err != nil {
				return err
			}
			seat.Release = seating.NormalRelease
		}
		if cleared {
			if err := e.audit(ctx, tx, seating.AuditEntry{
				Timestamp: now,
				ActorID:   req.UserID,
				Action:    seating.AuditReleaseCleared,
				SeatID:    seat.ID,
				BookingID: booking.ID,
				Date:      req.Date,
			}); err != nil {
				return err
			}
		}

		result = ReserveResult{Booking: booking, Seat: seat, ReleaseCleared: cleared}
		return e.audit(ctx, tx, seating.AuditEntry{
			Timestamp: now,
			ActorID:   req.UserID,
			Action:    seating.AuditBookingCreated,
			SeatID:    seat.ID,
			BookingID: booking.ID,
			Date:      req.Date,
			Payload: map[string]any{
				"seat_number":     seat.Number,
				"booking_type":    bookingType.String(),
				"start":           start.String(),
				"end":             end.String(),
				"release_cleared": cleared,
			},
		})
	})
	if err != nil {
		return ReserveResult{}, err
	}

	e.Logger.InfoContext(ctx, "seat reserved",
		slog.String("booking_id", string(result.Booking.ID)),
		slog.String("user_id", string(req.UserID)),
		slog.String("seat", result.Seat.Number),
		slog.String("date", req.Date.String()),
		slog.String("type", result.Booking.Type.String()),
	)
	evs := []events.Event{bookingEvent(events.BookingCreated, now, req.UserID, result.Booking, result.Seat)}
	if result.ReleaseCleared {
		cleared := releaseEvent(now, req.UserID, result.Seat, req.Date)
		cleared.Type = events.ReleaseCleared
		evs = append(evs, cleared)
	}
	e.afterCommit(ctx, []seating.Date{req.Date}, evs...)
	return result, nil
}

// =============================================================================
// CANCEL
// =============================================================================

type CancelResult struct {
	Booking      seating.Booking
	SeatReleased bool
	Message      string
}

// Cancel cancels a booking. Only its owner or an admin may do so. Cancelling
// a Designated booking for today or later releases the seat for that date.
func (e *Engine) Cancel(ctx context.Context, bookingID seating.BookingID, requester seating.UserID, isAdmin bool) (CancelResult, error) {
	now, today := e.now()

	var (
		result CancelResult
		seat   seating.Seat
		prev   seating.Release
	)
	err := e.Store.WithTx(ctx, func(tx seating.Store) error {
		ledger := seating.NewLedger(tx)
		dir := seating.NewDirectory(tx)

		booking, err := ledger.Get(ctx, bookingID)
		if err != nil {
			return wrapNotFound(err, "booking %s", bookingID)
		}
		if booking.UserID != requester && !isAdmin {
			return fmt.Errorf("%w: booking %s belongs to another user", seating.ErrForbidden, bookingID)
		}

		booking, err = ledger.Cancel(ctx, bookingID, now)
		if err != nil {
			return err
		}
		result.Booking = booking
		if seat, err = dir.GetSeat(ctx, booking.SeatID); err != nil {
			return err
		}

		// Past-dated cancellations never touch seat state.
		if booking.Type == seating.BookingDesignated && booking.Date.AfterOrEqual(today) {
			released, replaced, err := dir.MarkReleased(ctx, booking.SeatID, requester, booking.Date)
			if err != nil && !errors.Is(err, seating.ErrNotDesignatedSeat) {
				return err
			}
			if err == nil {
				seat, prev, result.SeatReleased = released, replaced, true
			}
		}

		if result.SeatReleased {
			result.Message = "Booking cancelled. Your seat is now available as a floating seat for others."
		} else {
			result.Message = "Booking cancelled successfully."
		}

		return e.audit(ctx, tx, seating.AuditEntry{
			Timestamp: now,
			ActorID:   requester,
			Action:    seating.AuditBookingCancelled,
			SeatID:    booking.SeatID,
			BookingID: booking.ID,
			Date:      booking.Date,
			Payload: map[string]any{
				"owner_id":      string(booking.UserID),
				"by_admin":      isAdmin && booking.UserID != requester,
				"seat_released": result.SeatReleased,
			},
		})
	})
	if err != nil {
		return CancelResult{}, err
	}

	e.Logger.InfoContext(ctx, "booking cancelled",
		slog.String("booking_id", string(bookingID)),
		slog.String("by", string(requester)),
		slog.Bool("seat_released", result.SeatReleased),
	)
	evs := []events.Event{bookingEvent(events.BookingCancelled, now, requester, result.Booking, seat)}
	if result.SeatReleased {
		evs = append(evs, releaseEvent(now, requester, seat, result.Booking.Date))
	}
	e.afterCommit(ctx, statsDates(result.Booking.Date, prev), evs...)
	return result, nil
}

// =============================================================================
// RELEASE
// =============================================================================

type ReleaseResult struct {
	Seat seating.Seat
	// CancelledBooking is the owner's own booking that was cancelled, if any.
	CancelledBooking *seating.Booking
	// AlreadyReleased is true when the call changed nothing.
	AlreadyReleased bool
	Message         string
}

// Release puts userID's designated seat into the floating pool for date.
// A second call for the same date is a no-op.
func (e *Engine) Release(ctx context.Context, userID seating.UserID, date seating.Date) (ReleaseResult, error) {
	now, _ := e.now()

	var (
		result ReleaseResult
		prev   seating.Release
	)
	err := e.Store.WithTx(ctx, func(tx seating.Store) error {
		ledger := seating.NewLedger(tx)
		dir := seating.NewDirectory(tx)

		if _, err := tx.GetUser(ctx, userID); err != nil {
			return err
		}
		seat, ok, err := dir.FindOwnedSeat(ctx, userID)
		if err != nil {
			return err
		}
		if !ok {
			return seating.ErrNoDesignatedSeat
		}

		active, booked, err := ledger.FindActiveForSeatOnDate(ctx, seat.ID, date)
		if err != nil {
			return err
		}
		if booked {
			if active.UserID != userID {
				return fmt.Errorf("%w: seat %s is booked by someone else for %s", seating.ErrForbidden, seat.Number, date)
			}
			// Cancelled directly through the ledger: the release below is
			// the only seat write.
			cancelled, err := ledger.Cancel(ctx, active.ID, now)
			if err != nil {
				return err
			}
			result.CancelledBooking = &cancelled
		}

		if seat.ReleasedOn(date) && result.CancelledBooking == nil {
			result.Seat = seat
			result.AlreadyReleased = true
			result.Message = "Seat is already released for this date."
			return nil
		}

		if seat, prev, err = dir.MarkReleased(ctx, seat.ID, userID, date); err != nil {
			return err
		}
		result.Seat = seat
		if result.CancelledBooking != nil {
			result.Message = "Booking cancelled and seat released. It is now available as a floating seat for others."
		} else {
			result.Message = "Seat released. It is now available as a floating seat."
		}

		payload := map[string]any{"seat_number": seat.Number}
		if result.CancelledBooking != nil {
			payload["cancelled_booking_id"] = string(result.CancelledBooking.ID)
		}
		return e.audit(ctx, tx, seating.AuditEntry{
			Timestamp: now,
			ActorID:   userID,
			Action:    seating.AuditSeatReleased,
			SeatID:    seat.ID,
			Date:      date,
			Payload:   payload,
		})
	})
	if err != nil {
		return ReleaseResult{}, err
	}
	if result.AlreadyReleased {
		return result, nil
	}

	e.Logger.InfoContext(ctx, "seat released",
		slog.String("user_id", string(userID)),
		slog.String("seat", result.Seat.Number),
		slog.String("date", date.String()),
	)
	var evs []events.Event
	if result.CancelledBooking != nil {
		evs = append(evs, bookingEvent(events.BookingCancelled, now, userID, *result.CancelledBooking, result.Seat))
	}
	evs = append(evs, releaseEvent(now, userID, result.Seat, date))
	e.afterCommit(ctx, statsDates(date, prev), evs...)
	return result, nil
}

// =============================================================================
// MY BOOKINGS
// =============================================================================

// BookingView is a booking with the seat details a caller shows next to it.
type BookingView struct {
	seating.Booking
	SeatNumber string
	SeatKind   seating.SeatKind
}

// ListMyBookings returns userID's bookings (all statuses), newest date first.
// A non-nil date restricts the result to that day.
func (e *Engine) ListMyBookings(ctx context.Context, userID seating.UserID, date *seating.Date) ([]BookingView, error) {
	bookings, err := seating.NewLedger(e.Store).ListForUser(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	seats, err := e.seatIndex(ctx)
	if err != nil {
		return nil, err
	}

	views := make([]BookingView, 0, len(bookings))
	for _, b := range bookings {
		v := BookingView{Booking: b}
		if s, ok := seats[b.SeatID]; ok {
			v.SeatNumber = s.Number
			v.SeatKind = s.Kind
		}
		views = append(views, v)
	}
	return views, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (e *Engine) seatIndex(ctx context.Context) (map[seating.SeatID]seating.Seat, error) {
	seats, err := e.Store.ListSeats(ctx)
	if err != nil {
		return nil, err
	}
	idx := make(map[seating.SeatID]seating.Seat, len(seats))
	for _, s := range seats {
		idx[s.ID] = s
	}
	return idx, nil
}

func (e *Engine) audit(ctx context.Context, tx seating.Store, entry seating.AuditEntry) error {
	entry.ID = e.NewID()
	return tx.AppendAudit(ctx, entry)
}

// afterCommit publishes events and invalidates the cached stats of dates.
// Neither failure is returned: the mutation already committed.
func (e *Engine) afterCommit(ctx context.Context, dates []seating.Date, evs ...events.Event) {
	e.invalidateStats(ctx, dates...)
	for _, ev := range evs {
		ev.ID = e.NewID()
		if err := e.Events.Publish(ctx, ev); err != nil {
			e.Logger.WarnContext(ctx, "event publish failed",
				slog.String("type", string(ev.Type)), slog.Any("error", err))
		}
	}
}

// statsDates is date plus the date of a release slot the write overwrote.
func statsDates(date seating.Date, replaced seating.Release) []seating.Date {
	dates := []seating.Date{date}
	if replaced.State == seating.ReleaseReleased && !replaced.Date.Equal(date) {
		dates = append(dates, replaced.Date)
	}
	return dates
}

func bookingEvent(t events.Type, at time.Time, actor seating.UserID, b seating.Booking, seat seating.Seat) events.Event {
	return events.Event{
		Type:        t,
		OccurredAt:  at,
		ActorID:     string(actor),
		UserID:      string(b.UserID),
		SeatID:      string(b.SeatID),
		SeatNumber:  seat.Number,
		BookingID:   string(b.ID),
		BookingType: b.Type.String(),
		Date:        b.Date.String(),
	}
}

func releaseEvent(at time.Time, actor seating.UserID, seat seating.Seat, date seating.Date) events.Event {
	return events.Event{
		Type:       events.SeatReleased,
		OccurredAt: at,
		ActorID:    string(actor),
		UserID:     string(seat.OwnerID),
		SeatID:     string(seat.ID),
		SeatNumber: seat.Number,
		Date:       date.String(),
	}
}

func wrapNotFound(err error, format string, args ...any) error {
	if seating.IsNotFound(err) {
		return fmt.Errorf(format+": %w", append(args, err)...)
	}
	return err
}
