package seating

import "time"

// =============================================================================
// ROTATION - Which batch is in the office on which day
// =============================================================================
//
// The month is cut into 7-day blocks starting on the 1st. Odd blocks are
// "week 1", even blocks are "week 2":
//
//   week 1: Monday..Wednesday  -> batch 1
//   week 2: Thursday..Friday   -> batch 2
//
// Every other day has no batch in the office.

// WeekOfCycle returns 1 or 2 for the rotation week that contains d.
func WeekOfCycle(d Date) int {
	week := (d.Day()-1)/7 + 1
	if week%2 == 0 {
		return 2
	}
	return 1
}

// BatchInOffice returns the batch whose designated working day d is,
// or 0 when no batch is scheduled.
func BatchInOffice(d Date) Batch {
	wd := d.Weekday()
	switch WeekOfCycle(d) {
	case 1:
		if wd >= time.Monday && wd <= time.Wednesday {
			return 1
		}
	case 2:
		if wd == time.Thursday || wd == time.Friday {
			return 2
		}
	}
	return 0
}

func IsDesignatedWorkingDay(d Date, batch Batch) bool {
	b := BatchInOffice(d)
	return b != 0 && b == batch
}

// =============================================================================
// CALENDAR - Time-gated rules (need a location and "now")
// =============================================================================

const (
	DefaultHorizonDays = 14
)

// DefaultFloatingCutoff is when the floating pool opens on the day before.
var DefaultFloatingCutoff = TimeOfDay{Hour: 15}

type Calendar struct {
	// Location is the office time zone. Nil means time.Local.
	Location *time.Location

	// FloatingCutoff is the time of day, on the prior calendar day, at which
	// floating seats for a future date become bookable.
	FloatingCutoff TimeOfDay

	// HorizonDays is how far ahead bookings are allowed (inclusive).
	HorizonDays int
}

func DefaultCalendar(loc *time.Location) Calendar {
	return Calendar{
		Location:       loc,
		FloatingCutoff: DefaultFloatingCutoff,
		HorizonDays:    DefaultHorizonDays,
	}
}

func (c Calendar) location() *time.Location {
	if c.Location == nil {
		return time.Local
	}
	return c.Location
}

// Today returns the office calendar day of now.
func (c Calendar) Today(now time.Time) Date {
	return DateOf(now.In(c.location()))
}

// FloatingWindowOpensAt is the instant floating seats for d become bookable.
func (c Calendar) FloatingWindowOpensAt(d Date) time.Time {
	return d.AddDays(-1).At(c.FloatingCutoff, c.location())
}

// FloatingWindowOpen reports whether the floating pool for d is open at now.
// Past dates never are, today always is, future dates open at the cutoff
// on the prior day (inclusive).
func (c Calendar) FloatingWindowOpen(d Date, now time.Time) bool {
	today := c.Today(now)
	if d.Before(today) {
		return false
	}
	if d.Equal(today) {
		return true
	}
	return !now.Before(c.FloatingWindowOpensAt(d))
}

// LastBookableDate is the final day inside the booking horizon.
func (c Calendar) LastBookableDate(today Date) Date {
	return today.AddDays(c.HorizonDays)
}

// WithinBookingHorizon reports today <= d <= today+HorizonDays.
func (c Calendar) WithinBookingHorizon(d, today Date) bool {
	return d.AfterOrEqual(today) && d.BeforeOrEqual(c.LastBookableDate(today))
}

// CheckHorizon returns a *HorizonError when d is outside the horizon.
func (c Calendar) CheckHorizon(d, today Date) error {
	if c.WithinBookingHorizon(d, today) {
		return nil
	}
	return &HorizonError{Date: d, First: today, Last: c.LastBookableDate(today)}
}
