/*
Package factory provides JSON to Go office layout conversion.

PURPOSE:
  Converts a JSON floor plan (seats and, optionally, employees) into
  seating.Seat and seating.User values ready for allocation.Engine.Seed.
  This lets facilities describe a floor without code changes.

JSON SCHEMA:
  {
    "name": "HQ floor 3",
    "seats": [
      {"number": "D001", "type": "designated", "batch": 1, "squad": 1, "owner": "b1s1u01"},
      {"number": "F001", "type": "floating"}
    ],
    "users": [
      {"id": "b1s1u01", "name": "Ada", "email": "ada@example.com", "batch": 1, "squad": 1}
    ]
  }

  "seats" may be replaced by "generate" to build a regular floor:
    "generate": {"seats_per_squad": 4, "floating": 10}

KEY FEATURES:
  - Validates seat numbers, kinds, batches and squads
  - Resolves explicit owners in both directions (seat and user)
  - Leaves unowned seats for AssignDesignatedSeats

USAGE:
  f := NewLayoutFactory()
  office, err := f.ParseOffice(data)
  engine.Seed(ctx, office.Users, office.Seats)

SEE ALSO:
  - seating/layout.go: DefaultLayout and AssignDesignatedSeats
  - cmd/seatctl: "seed --layout" command
*/
package factory

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/warp/seat-engine/seating"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// OfficeJSON is the JSON representation of a floor.
type OfficeJSON struct {
	Name     string        `json:"name,omitempty"`
	Seats    []SeatJSON    `json:"seats,omitempty"`
	Generate *GenerateJSON `json:"generate,omitempty"`
	Users    []UserJSON    `json:"users,omitempty"`
}

// SeatJSON represents one seat.
type SeatJSON struct {
	Number string `json:"number"`
	Type   string `json:"type"` // designated, floating
	Batch  int    `json:"batch,omitempty"`
	Squad  int    `json:"squad,omitempty"`
	Owner  string `json:"owner,omitempty"`
}

// GenerateJSON builds a regular floor: seats_per_squad designated seats for
// every (batch, squad), then the floating seats.
type GenerateJSON struct {
	SeatsPerSquad int `json:"seats_per_squad"`
	Floating      int `json:"floating"`
}

// UserJSON represents one employee.
type UserJSON struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Batch int    `json:"batch"`
	Squad int    `json:"squad"`
	Role  string `json:"role,omitempty"` // employee (default), admin
}

// Office is a parsed floor.
type Office struct {
	Name  string
	Seats []seating.Seat
	Users []seating.User
}

// =============================================================================
// FACTORY
// =============================================================================

// LayoutFactory converts JSON floor plans.
type LayoutFactory struct{}

func NewLayoutFactory() *LayoutFactory {
	return &LayoutFactory{}
}

// ParseOffice parses and validates a floor plan. All problems are reported
// together.
func (f *LayoutFactory) ParseOffice(data []byte) (Office, error) {
	var doc OfficeJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return Office{}, fmt.Errorf("invalid layout JSON: %w", err)
	}
	return f.FromJSON(doc)
}

func (f *LayoutFactory) FromJSON(doc OfficeJSON) (Office, error) {
	var errs []error

	seatsJSON := doc.Seats
	switch {
	case doc.Generate != nil && len(doc.Seats) > 0:
		return Office{}, errors.New(`"seats" and "generate" are mutually exclusive`)
	case doc.Generate != nil:
		var err error
		seatsJSON, err = generate(*doc.Generate)
		if err != nil {
			return Office{}, err
		}
	case len(doc.Seats) == 0:
		return Office{}, errors.New("layout has no seats")
	}

	users := make([]seating.User, 0, len(doc.Users))
	userIdx := make(map[seating.UserID]int, len(doc.Users))
	for i, uj := range doc.Users {
		u, err := parseUser(uj)
		if err != nil {
			errs = append(errs, fmt.Errorf("users[%d]: %w", i, err))
			continue
		}
		if _, dup := userIdx[u.ID]; dup {
			errs = append(errs, fmt.Errorf("users[%d]: duplicate id %q", i, u.ID))
			continue
		}
		userIdx[u.ID] = len(users)
		users = append(users, u)
	}

	seats := make([]seating.Seat, 0, len(seatsJSON))
	numbers := make(map[string]bool, len(seatsJSON))
	for i, sj := range seatsJSON {
		s, err := parseSeat(sj)
		if err != nil {
			errs = append(errs, fmt.Errorf("seats[%d]: %w", i, err))
			continue
		}
		if numbers[s.Number] {
			errs = append(errs, fmt.Errorf("seats[%d]: duplicate number %q", i, s.Number))
			continue
		}
		numbers[s.Number] = true

		if s.OwnerID != "" {
			ui, ok := userIdx[s.OwnerID]
			switch {
			case !ok:
				errs = append(errs, fmt.Errorf("seats[%d]: owner %q is not a listed user", i, s.OwnerID))
				continue
			case users[ui].DesignatedSeatID != "":
				errs = append(errs, fmt.Errorf("seats[%d]: owner %q already has seat %s", i, s.OwnerID, users[ui].DesignatedSeatID))
				continue
			}
			users[ui].DesignatedSeatID = s.ID
		}
		seats = append(seats, s)
	}

	if err := errors.Join(errs...); err != nil {
		return Office{}, err
	}
	return Office{Name: doc.Name, Seats: seats, Users: users}, nil
}

// =============================================================================
// CONVERSION
// =============================================================================

func parseSeat(sj SeatJSON) (seating.Seat, error) {
	number := strings.TrimSpace(sj.Number)
	if number == "" {
		return seating.Seat{}, errors.New("number is required")
	}
	kind, err := seating.ParseSeatKind(strings.ToLower(sj.Type))
	if err != nil {
		return seating.Seat{}, err
	}

	s := seating.Seat{ID: seating.SeatIDFor(number), Number: number, Kind: kind}
	if kind == seating.KindFloating {
		if sj.Batch != 0 || sj.Squad != 0 || sj.Owner != "" {
			return seating.Seat{}, fmt.Errorf("floating seat %s cannot have batch, squad or owner", number)
		}
		return s, nil
	}

	s.Batch = seating.Batch(sj.Batch)
	s.Squad = seating.Squad(sj.Squad)
	if !s.Batch.Valid() {
		return seating.Seat{}, fmt.Errorf("seat %s: invalid batch %d", number, sj.Batch)
	}
	if !s.Squad.Valid() {
		return seating.Seat{}, fmt.Errorf("seat %s: invalid squad %d", number, sj.Squad)
	}
	s.OwnerID = seating.UserID(strings.TrimSpace(sj.Owner))
	return s, nil
}

func parseUser(uj UserJSON) (seating.User, error) {
	id := strings.TrimSpace(uj.ID)
	if id == "" {
		return seating.User{}, errors.New("id is required")
	}
	u := seating.User{
		ID:    seating.UserID(id),
		Name:  uj.Name,
		Email: uj.Email,
		Batch: seating.Batch(uj.Batch),
		Squad: seating.Squad(uj.Squad),
		Role:  seating.RoleEmployee,
	}
	switch strings.ToLower(uj.Role) {
	case "", string(seating.RoleEmployee):
	case string(seating.RoleAdmin):
		u.Role = seating.RoleAdmin
	default:
		return seating.User{}, fmt.Errorf("user %s: unknown role %q", id, uj.Role)
	}
	if u.Name == "" {
		u.Name = id
	}
	if !u.Batch.Valid() {
		return seating.User{}, fmt.Errorf("user %s: invalid batch %d", id, uj.Batch)
	}
	if !u.Squad.Valid() {
		return seating.User{}, fmt.Errorf("user %s: invalid squad %d", id, uj.Squad)
	}
	return u, nil
}

func generate(g GenerateJSON) ([]SeatJSON, error) {
	if g.SeatsPerSquad < 0 || g.Floating < 0 {
		return nil, errors.New("generate: counts must not be negative")
	}
	if g.SeatsPerSquad == 0 && g.Floating == 0 {
		return nil, errors.New("generate: no seats requested")
	}
	var out []SeatJSON
	n := 1
	for b := seating.Batch(1); b <= seating.MaxBatch; b++ {
		for s := seating.Squad(1); s <= seating.MaxSquad; s++ {
			for i := 0; i < g.SeatsPerSquad; i++ {
				out = append(out, SeatJSON{Number: fmt.Sprintf("D%03d", n), Type: "designated", Batch: int(b), Squad: int(s)})
				n++
			}
		}
	}
	for i := 1; i <= g.Floating; i++ {
		out = append(out, SeatJSON{Number: fmt.Sprintf("F%03d", i), Type: "floating"})
	}
	return out, nil
}
