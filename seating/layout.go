package seating

import (
	"fmt"
	"sort"
)

// =============================================================================
// OFFICE LAYOUT - Seeding helpers
// =============================================================================
//
// The default floor has 4 designated seats per (batch, squad), numbered
// D001..D040 in batch-major order, plus 10 floating seats F001..F010.

const (
	SeatsPerSquad = 4
	FloatingSeats = 10
	UsersPerSquad = 8
)

const (
	MaxBatch Batch = 2
	MaxSquad Squad = 5
)

// SeatIDFor returns the stable seat ID for a seat label.
func SeatIDFor(number string) SeatID {
	return SeatID("seat-" + number)
}

// DefaultLayout returns the standard floor with no owners assigned.
func DefaultLayout() []Seat {
	seats := make([]Seat, 0, int(MaxBatch)*int(MaxSquad)*SeatsPerSquad+FloatingSeats)
	n := 1
	for b := Batch(1); b <= MaxBatch; b++ {
		for s := Squad(1); s <= MaxSquad; s++ {
			for i := 0; i < SeatsPerSquad; i++ {
				number := fmt.Sprintf("D%03d", n)
				seats = append(seats, Seat{
					ID:     SeatIDFor(number),
					Number: number,
					Kind:   KindDesignated,
					Batch:  b,
					Squad:  s,
				})
				n++
			}
		}
	}
	for i := 1; i <= FloatingSeats; i++ {
		number := fmt.Sprintf("F%03d", i)
		seats = append(seats, Seat{ID: SeatIDFor(number), Number: number, Kind: KindFloating})
	}
	return seats
}

// DemoUsers returns UsersPerSquad employees per (batch, squad) and one admin.
func DemoUsers() []User {
	users := []User{{
		ID:    "admin",
		Name:  "Office Admin",
		Email: "admin@example.com",
		Batch: 1,
		Squad: 1,
		Role:  RoleAdmin,
	}}
	for b := Batch(1); b <= MaxBatch; b++ {
		for s := Squad(1); s <= MaxSquad; s++ {
			for i := 1; i <= UsersPerSquad; i++ {
				id := fmt.Sprintf("b%ds%du%02d", b, s, i)
				users = append(users, User{
					ID:    UserID(id),
					Name:  fmt.Sprintf("Batch%d Squad%d User%d", b, s, i),
					Email: id + "@example.com",
					Batch: b,
					Squad: s,
					Role:  RoleEmployee,
				})
			}
		}
	}
	return users
}

// AssignDesignatedSeats gives every employee without a seat the first free
// designated seat of their batch and squad, in seat-number order. Users and
// seats are updated in place. Returns the number of assignments made.
// Users left over once their squad's seats run out keep no seat.
func AssignDesignatedSeats(users []User, seats []Seat) int {
	order := make([]int, len(seats))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return seats[order[a]].Number < seats[order[b]].Number })

	assigned := 0
	for ui := range users {
		u := &users[ui]
		if u.DesignatedSeatID != "" || u.Role != RoleEmployee {
			continue
		}
		for _, si := range order {
			s := &seats[si]
			if s.IsDesignated() && s.OwnerID == "" && s.Batch == u.Batch && s.Squad == u.Squad {
				s.OwnerID = u.ID
				u.DesignatedSeatID = s.ID
				assigned++
				break
			}
		}
	}
	return assigned
}
