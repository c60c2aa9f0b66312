package allocation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/warp/seat-engine/cache"
	"github.com/warp/seat-engine/seating"
)

// =============================================================================
// DAILY STATS
// =============================================================================

// MaxScheduleDays bounds WeekSchedule ranges.
const MaxScheduleDays = 31

// DefaultScheduleDays is the span used when WeekSchedule gets no end date.
const DefaultScheduleDays = 14

// DailyStats is the occupancy summary of one day. It is cached as JSON.
type DailyStats struct {
	Date            seating.Date    `json:"date"`
	TotalSeats      int             `json:"total_seats"`
	DesignatedTotal int             `json:"designated_total"`
	BaseFloating    int             `json:"base_floating"`
	ReleasedForDate int             `json:"released_for_date"`
	TotalFloating   int             `json:"total_floating"`
	Booked          int             `json:"booked"`
	Available       int             `json:"available"`
	Floating        FloatingInfo    `json:"floating"`
	Utilization     decimal.Decimal `json:"utilization"`
}

// DailyStats returns the occupancy of date. Results are served from the
// cache when present; cache errors fall through to the store. A StatsTTL of
// zero or less disables caching.
func (e *Engine) DailyStats(ctx context.Context, date seating.Date) (DailyStats, error) {
	if e.StatsTTL <= 0 {
		return e.computeDailyStats(ctx, date)
	}

	// The key is read before the store so a write that commits during the
	// computation leaves this entry under a version nobody reads.
	key, err := e.statsKey(ctx, date)
	if err != nil {
		e.Logger.WarnContext(ctx, "stats cache read failed", slog.String("date", date.String()), slog.Any("error", err))
		return e.computeDailyStats(ctx, date)
	}

	var stats DailyStats
	err = e.Cache.Get(ctx, key, &stats)
	if err == nil {
		return stats, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		e.Logger.WarnContext(ctx, "stats cache read failed", slog.String("key", key), slog.Any("error", err))
	}

	stats, err = e.computeDailyStats(ctx, date)
	if err != nil {
		return DailyStats{}, err
	}
	if err := e.Cache.Set(ctx, key, stats, e.StatsTTL); err != nil {
		e.Logger.WarnContext(ctx, "stats cache write failed", slog.String("key", key), slog.Any("error", err))
	}
	return stats, nil
}

func (e *Engine) statsKey(ctx context.Context, date seating.Date) (string, error) {
	var gen, ver int64
	if err := e.Cache.Get(ctx, cache.GenerationKey, &gen); err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		return "", err
	}
	if err := e.Cache.Get(ctx, cache.VersionKey(date), &ver); err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		return "", err
	}
	return cache.StatsKey(date, gen, ver), nil
}

// invalidateStats bumps the stats version of each date.
func (e *Engine) invalidateStats(ctx context.Context, dates ...seating.Date) {
	seen := make(map[string]bool, len(dates))
	for _, d := range dates {
		key := cache.VersionKey(d)
		if seen[key] {
			continue
		}
		seen[key] = true
		if _, err := e.Cache.Incr(ctx, key); err != nil {
			e.Logger.WarnContext(ctx, "stats cache invalidation failed",
				slog.String("date", d.String()), slog.Any("error", err))
		}
	}
}

// invalidateAllStats bumps the generation shared by every date.
func (e *Engine) invalidateAllStats(ctx context.Context) {
	if _, err := e.Cache.Incr(ctx, cache.GenerationKey); err != nil {
		e.Logger.WarnContext(ctx, "stats cache invalidation failed", slog.Any("error", err))
	}
}

func (e *Engine) computeDailyStats(ctx context.Context, date seating.Date) (DailyStats, error) {
	seats, err := e.Store.ListSeats(ctx)
	if err != nil {
		return DailyStats{}, err
	}
	ledger := seating.NewLedger(e.Store)
	occupying, err := ledger.ListOccupyingBetween(ctx, date, date)
	if err != nil {
		return DailyStats{}, err
	}
	cancelled, err := ledger.ListCancelledDesignatedOnDate(ctx, date)
	if err != nil {
		return DailyStats{}, err
	}

	pool := floatingPool(seats, occupying, cancelled, date)
	stats := DailyStats{
		Date:            date,
		TotalSeats:      len(seats),
		BaseFloating:    pool.info.BaseFloating,
		DesignatedTotal: len(seats) - pool.info.BaseFloating,
		ReleasedForDate: pool.info.Released,
		TotalFloating:   pool.info.Total,
		Booked:          len(occupying),
		Floating:        pool.info,
		Utilization:     decimal.Zero,
	}
	stats.Available = stats.TotalSeats - stats.Booked
	if stats.TotalSeats > 0 {
		stats.Utilization = decimal.NewFromInt(int64(stats.Booked)).
			Div(decimal.NewFromInt(int64(stats.TotalSeats))).
			Round(4)
	}
	return stats, nil
}

// =============================================================================
// WEEK SCHEDULE
// =============================================================================

// Allocation is one occupied seat on one day.
type Allocation struct {
	BookingID   seating.BookingID
	SeatID      seating.SeatID
	SeatNumber  string
	SeatKind    seating.SeatKind
	UserID      seating.UserID
	UserName    string
	Batch       seating.Batch
	Squad       seating.Squad
	BookingType seating.BookingType
	Start       seating.TimeOfDay
	End         seating.TimeOfDay
}

type ScheduleDay struct {
	Date               seating.Date
	WeekOfCycle        int
	BatchInOffice      seating.Batch
	IsWorkingDay       bool
	FloatingWindowOpen bool
	MyBooking          *seating.Booking
	TotalBookings      int
	Allocations        []Allocation
}

type Schedule struct {
	UserID seating.UserID
	Start  seating.Date
	End    seating.Date
	Days   []ScheduleDay
}

// WeekSchedule lists, for each day in [start, end], who sits where. A zero
// start means today and a zero end means start+14 days.
func (e *Engine) WeekSchedule(ctx context.Context, userID seating.UserID, start, end seating.Date) (Schedule, error) {
	now, today := e.now()
	if start.IsZero() {
		start = today
	}
	if end.IsZero() {
		end = start.AddDays(DefaultScheduleDays)
	}
	if end.Before(start) {
		return Schedule{}, fmt.Errorf("%w: end %s is before start %s", seating.ErrInvalidDateRange, end, start)
	}
	if start.DaysUntil(end) > MaxScheduleDays {
		return Schedule{}, fmt.Errorf("%w: at most %d days", seating.ErrInvalidDateRange, MaxScheduleDays)
	}

	user, err := e.Store.GetUser(ctx, userID)
	if err != nil {
		return Schedule{}, err
	}
	seats, err := e.seatIndex(ctx)
	if err != nil {
		return Schedule{}, err
	}
	users, err := e.userIndex(ctx)
	if err != nil {
		return Schedule{}, err
	}
	bookings, err := seating.NewLedger(e.Store).ListOccupyingBetween(ctx, start, end)
	if err != nil {
		return Schedule{}, err
	}

	byDate := make(map[string][]seating.Booking)
	for _, b := range bookings {
		byDate[b.Date.String()] = append(byDate[b.Date.String()], b)
	}

	sched := Schedule{UserID: userID, Start: start, End: end}
	for d := start; !d.After(end); d = d.AddDays(1) {
		day := ScheduleDay{
			Date:               d,
			WeekOfCycle:        seating.WeekOfCycle(d),
			BatchInOffice:      seating.BatchInOffice(d),
			IsWorkingDay:       seating.IsDesignatedWorkingDay(d, user.Batch),
			FloatingWindowOpen: e.Calendar.FloatingWindowOpen(d, now),
		}
		for _, b := range byDate[d.String()] {
			b := b
			if b.UserID == userID {
				day.MyBooking = &b
			}
			day.Allocations = append(day.Allocations, allocationOf(b, seats, users))
		}
		sortAllocations(day.Allocations)
		day.TotalBookings = len(day.Allocations)
		sched.Days = append(sched.Days, day)
	}
	return sched, nil
}

// =============================================================================
// SEATS ON DATE
// =============================================================================

// SeatOccupancy is a seat with whoever holds it on a date.
type SeatOccupancy struct {
	Seat            seating.Seat
	Booking         *seating.Booking
	Occupant        *seating.User
	ReleasedForDate bool
}

// SeatsOnDate returns every seat, in number order, with its occupant for date.
func (e *Engine) SeatsOnDate(ctx context.Context, date seating.Date) ([]SeatOccupancy, error) {
	seats, err := e.Store.ListSeats(ctx)
	if err != nil {
		return nil, err
	}
	users, err := e.userIndex(ctx)
	if err != nil {
		return nil, err
	}
	ledger := seating.NewLedger(e.Store)
	occupying, err := ledger.ListOccupyingBetween(ctx, date, date)
	if err != nil {
		return nil, err
	}
	cancelled, err := ledger.ListCancelledDesignatedOnDate(ctx, date)
	if err != nil {
		return nil, err
	}
	pool := floatingPool(seats, occupying, cancelled, date)

	bySeat := make(map[seating.SeatID]seating.Booking, len(occupying))
	for _, b := range occupying {
		bySeat[b.SeatID] = b
	}

	out := make([]SeatOccupancy, 0, len(seats))
	for _, s := range seats {
		occ := SeatOccupancy{Seat: s, ReleasedForDate: pool.released[s.ID]}
		if b, ok := bySeat[s.ID]; ok {
			occ.Booking = &b
			if u, ok := users[b.UserID]; ok {
				occ.Occupant = &u
			}
		}
		out = append(out, occ)
	}
	return out, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (e *Engine) userIndex(ctx context.Context) (map[seating.UserID]seating.User, error) {
	users, err := e.Store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	idx := make(map[seating.UserID]seating.User, len(users))
	for _, u := range users {
		idx[u.ID] = u
	}
	return idx, nil
}

func allocationOf(b seating.Booking, seats map[seating.SeatID]seating.Seat, users map[seating.UserID]seating.User) Allocation {
	a := Allocation{
		BookingID:   b.ID,
		SeatID:      b.SeatID,
		UserID:      b.UserID,
		BookingType: b.Type,
		Start:       b.Start,
		End:         b.End,
	}
	if s, ok := seats[b.SeatID]; ok {
		a.SeatNumber = s.Number
		a.SeatKind = s.Kind
	}
	if u, ok := users[b.UserID]; ok {
		a.UserName = u.Name
		a.Batch = u.Batch
		a.Squad = u.Squad
	}
	return a
}

func sortAllocations(as []Allocation) {
	sort.Slice(as, func(i, j int) bool { return as[i].SeatNumber < as[j].SeatNumber })
}
