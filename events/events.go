// Package events publishes domain events after an allocation change commits.
//
// Events are informational: a failed publish is logged by the caller and
// never rolls back or fails the operation that produced it.
package events

import (
	"context"
	"sync"
	"time"
)

type Type string

const (
	BookingCreated   Type = "booking.created"
	BookingCancelled Type = "booking.cancelled"
	SeatReleased     Type = "seat.released"
	ReleaseCleared   Type = "seat.release_cleared"
	HousekeepingRun  Type = "housekeeping.swept"
)

// Event is the message payload. Enough context for consumers to notify or
// run analytics without querying the primary database.
type Event struct {
	ID          string    `json:"id"`
	Type        Type      `json:"type"`
	OccurredAt  time.Time `json:"occurred_at"`
	ActorID     string    `json:"actor_id,omitempty"`
	UserID      string    `json:"user_id,omitempty"`
	SeatID      string    `json:"seat_id,omitempty"`
	SeatNumber  string    `json:"seat_number,omitempty"`
	BookingID   string    `json:"booking_id,omitempty"`
	BookingType string    `json:"booking_type,omitempty"`
	Date        string    `json:"date,omitempty"`
	Count       int       `json:"count,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// =============================================================================
// NOP
// =============================================================================

type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// =============================================================================
// RECORDER - Keeps events in memory (tests)
// =============================================================================

type Recorder struct {
	mu     sync.Mutex
	events []Event
	Err    error // returned by every Publish when set
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns the published events of type t.
func (r *Recorder) OfType(t Type) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
