package allocation

import (
	"context"
	"log/slog"

	"github.com/warp/seat-engine/seating"
)

type SeedResult struct {
	Users    int
	Seats    int
	Assigned int
}

// Seed stores users and seats in one transaction, first giving every
// employee without a desk a designated seat of their batch and squad.
// Existing rows with the same IDs are replaced and every cached stats
// entry is invalidated.
func (e *Engine) Seed(ctx context.Context, users []seating.User, seats []seating.Seat) (SeedResult, error) {
	users = append([]seating.User(nil), users...)
	seats = append([]seating.Seat(nil), seats...)
	assigned := seating.AssignDesignatedSeats(users, seats)

	err := e.Store.WithTx(ctx, func(tx seating.Store) error {
		for _, s := range seats {
			if err := tx.SaveSeat(ctx, s); err != nil {
				return err
			}
		}
		for _, u := range users {
			if err := tx.SaveUser(ctx, u); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return SeedResult{}, err
	}

	e.invalidateAllStats(ctx)

	res := SeedResult{Users: len(users), Seats: len(seats), Assigned: assigned}
	e.Logger.InfoContext(ctx, "seeded office",
		slog.Int("users", res.Users),
		slog.Int("seats", res.Seats),
		slog.Int("assigned", res.Assigned),
	)
	return res, nil
}
