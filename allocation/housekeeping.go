package allocation

import (
	"context"
	"log/slog"

	"github.com/warp/seat-engine/events"
	"github.com/warp/seat-engine/seating"
)

type SweepResult struct {
	Today            seating.Date
	BookingsComplete int
	ReleasesCleared  int
}

// Sweep closes out past days: Active bookings dated before today become
// Completed and release slots dated before today go back to Normal.
// Stale releases are inert for every other operation, so running Sweep is
// never required for correctness.
func (e *Engine) Sweep(ctx context.Context) (SweepResult, error) {
	now, today := e.now()
	result := SweepResult{Today: today}

	var staleDates []seating.Date
	err := e.Store.WithTx(ctx, func(tx seating.Store) error {
		seats, err := tx.ListSeats(ctx)
		if err != nil {
			return err
		}
		for _, s := range seats {
			if s.Release.State == seating.ReleaseReleased && s.Release.Date.Before(today) {
				staleDates = append(staleDates, s.Release.Date)
			}
		}

		if result.BookingsComplete, err = tx.CompleteBookingsBefore(ctx, today); err != nil {
			return err
		}
		if result.ReleasesCleared, err = tx.ClearReleasesBefore(ctx, today); err != nil {
			return err
		}
		if result.BookingsComplete == 0 && result.ReleasesCleared == 0 {
			return nil
		}
		return e.audit(ctx, tx, seating.AuditEntry{
			Timestamp: now,
			Action:    seating.AuditSweep,
			Date:      today,
			Payload: map[string]any{
				"bookings_completed": result.BookingsComplete,
				"releases_cleared":   result.ReleasesCleared,
			},
		})
	})
	if err != nil {
		return SweepResult{}, err
	}
	if result.BookingsComplete == 0 && result.ReleasesCleared == 0 {
		return result, nil
	}

	e.Logger.InfoContext(ctx, "housekeeping sweep",
		slog.Int("bookings_completed", result.BookingsComplete),
		slog.Int("releases_cleared", result.ReleasesCleared),
	)

	e.invalidateStats(ctx, staleDates...)

	ev := events.Event{
		ID:         e.NewID(),
		Type:       events.HousekeepingRun,
		OccurredAt: now,
		Date:       today.String(),
		Count:      result.BookingsComplete + result.ReleasesCleared,
	}
	if err := e.Events.Publish(ctx, ev); err != nil {
		e.Logger.WarnContext(ctx, "event publish failed", slog.String("type", string(ev.Type)), slog.Any("error", err))
	}
	return result, nil
}
