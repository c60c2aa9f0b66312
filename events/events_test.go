package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_KeepsEventsInOrder(t *testing.T) {
	ctx := context.Background()
	r := &Recorder{}

	require.NoError(t, r.Publish(ctx, Event{ID: "1", Type: BookingCreated}))
	require.NoError(t, r.Publish(ctx, Event{ID: "2", Type: SeatReleased}))
	require.NoError(t, r.Publish(ctx, Event{ID: "3", Type: BookingCreated}))

	assert.Len(t, r.Events(), 3)
	created := r.OfType(BookingCreated)
	require.Len(t, created, 2)
	assert.Equal(t, "3", created[1].ID)

	r.Err = errors.New("broker down")
	assert.Error(t, r.Publish(ctx, Event{ID: "4"}))
	assert.Len(t, r.Events(), 3)
}

func TestEvent_JSONShape(t *testing.T) {
	e := Event{
		ID:         "evt-1",
		Type:       SeatReleased,
		OccurredAt: time.Date(2026, 6, 10, 9, 0, 0, 0, time.UTC),
		UserID:     "alice",
		SeatNumber: "D001",
		Date:       "2026-06-11",
	}
	b, err := json.Marshal(e)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, "seat.released", m["type"])
	assert.Equal(t, "D001", m["seat_number"])
	assert.NotContains(t, m, "booking_id")
}

func TestNewAMQPPublisher_BadURL(t *testing.T) {
	_, err := NewAMQPPublisher("not-a-broker-url", "", nil)
	assert.Error(t, err)
}
