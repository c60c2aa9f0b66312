/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the domain model (seating, allocation) from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Request bodies carry go-playground/validator tags and are checked by
  Handler.decode before any engine call. Dates are "YYYY-MM-DD", times "HH:MM".

SEE ALSO:
  - handlers.go: Uses these types
  - errors.go: ErrorResponse and status mapping
*/
package api

import (
	"time"

	"github.com/warp/seat-engine/allocation"
	"github.com/warp/seat-engine/seating"
)

// =============================================================================
// REQUESTS
// =============================================================================

// ReserveRequest books a seat for the caller.
type ReserveRequest struct {
	SeatID    string `json:"seat_id" validate:"required"`
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime string `json:"start_time,omitempty" validate:"omitempty,datetime=15:04"`
	EndTime   string `json:"end_time,omitempty" validate:"omitempty,datetime=15:04"`
}

// ReleaseRequest releases the caller's designated seat for a date.
type ReleaseRequest struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
}

// =============================================================================
// USERS AND SEATS
// =============================================================================

type UserDTO struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Email            string `json:"email,omitempty"`
	Batch            int    `json:"batch"`
	Squad            int    `json:"squad"`
	DesignatedSeatID string `json:"designated_seat_id,omitempty"`
	Role             string `json:"role"`
}

func toUserDTO(u seating.User) UserDTO {
	return UserDTO{
		ID:               string(u.ID),
		Name:             u.Name,
		Email:            u.Email,
		Batch:            int(u.Batch),
		Squad:            int(u.Squad),
		DesignatedSeatID: string(u.DesignatedSeatID),
		Role:             string(u.Role),
	}
}

type SeatDTO struct {
	ID           string `json:"id"`
	Number       string `json:"seat_number"`
	Kind         string `json:"seat_type"`
	Batch        int    `json:"batch,omitempty"`
	Squad        int    `json:"squad,omitempty"`
	OwnerID      string `json:"owner_id,omitempty"`
	ReleaseState string `json:"release_state,omitempty"`
	ReleaseDate  string `json:"release_date,omitempty"`
	ReleasedBy   string `json:"released_by,omitempty"`
}

func toSeatDTO(s seating.Seat) SeatDTO {
	dto := SeatDTO{
		ID:      string(s.ID),
		Number:  s.Number,
		Kind:    s.Kind.String(),
		Batch:   int(s.Batch),
		Squad:   int(s.Squad),
		OwnerID: string(s.OwnerID),
	}
	if s.IsDesignated() {
		dto.ReleaseState = s.Release.State.String()
		if s.Release.State == seating.ReleaseReleased {
			dto.ReleaseDate = s.Release.Date.String()
			dto.ReleasedBy = string(s.Release.By)
		}
	}
	return dto
}

// =============================================================================
// BOOKINGS
// =============================================================================

type BookingDTO struct {
	ID          string  `json:"id"`
	UserID      string  `json:"user_id"`
	SeatID      string  `json:"seat_id"`
	SeatNumber  string  `json:"seat_number,omitempty"`
	SeatKind    string  `json:"seat_type,omitempty"`
	Date        string  `json:"date"`
	BookingType string  `json:"booking_type"`
	StartTime   string  `json:"start_time"`
	EndTime     string  `json:"end_time"`
	Status      string  `json:"status"`
	BookedAt    string  `json:"booked_at"`
	CancelledAt *string `json:"cancelled_at,omitempty"`
}

func toBookingDTO(b seating.Booking) BookingDTO {
	dto := BookingDTO{
		ID:          string(b.ID),
		UserID:      string(b.UserID),
		SeatID:      string(b.SeatID),
		Date:        b.Date.String(),
		BookingType: b.Type.String(),
		StartTime:   b.Start.String(),
		EndTime:     b.End.String(),
		Status:      b.Status.String(),
		BookedAt:    b.BookedAt.UTC().Format(time.RFC3339),
	}
	if b.CancelledAt != nil {
		s := b.CancelledAt.UTC().Format(time.RFC3339)
		dto.CancelledAt = &s
	}
	return dto
}

func toBookingDTOPtr(b *seating.Booking) *BookingDTO {
	if b == nil {
		return nil
	}
	dto := toBookingDTO(*b)
	return &dto
}

func toBookingViewDTO(v allocation.BookingView) BookingDTO {
	dto := toBookingDTO(v.Booking)
	dto.SeatNumber = v.SeatNumber
	if v.SeatKind != 0 {
		dto.SeatKind = v.SeatKind.String()
	}
	return dto
}

type ReserveResponse struct {
	Booking        BookingDTO `json:"booking"`
	Seat           SeatDTO    `json:"seat"`
	ReleaseCleared bool       `json:"release_cleared"`
}

type CancelResponse struct {
	Booking      BookingDTO `json:"booking"`
	SeatReleased bool       `json:"seat_released"`
	Message      string     `json:"message"`
}

type ReleaseResponse struct {
	Seat             SeatDTO     `json:"seat"`
	CancelledBooking *BookingDTO `json:"cancelled_booking,omitempty"`
	AlreadyReleased  bool        `json:"already_released"`
	Message          string      `json:"message"`
}

// =============================================================================
// AVAILABILITY
// =============================================================================

type SeatAvailabilityDTO struct {
	SeatDTO
	IsBooked               bool `json:"is_booked"`
	IsAvailable            bool `json:"is_available"`
	BookedByRequestingUser bool `json:"booked_by_me"`
	ReleasedByOwner        bool `json:"released_by_owner"`
	ReleasedForDate        bool `json:"released_for_date"`
	InFloatingPool         bool `json:"in_floating_pool"`
}

type AvailabilityResponse struct {
	Date                  string                  `json:"date"`
	UserID                string                  `json:"user_id"`
	IsWorkingDay          bool                    `json:"is_working_day"`
	BatchInOffice         int                     `json:"batch_in_office"`
	FloatingWindowOpen    bool                    `json:"floating_window_open"`
	FloatingWindowOpensAt string                  `json:"floating_window_opens_at"`
	UserHasBooking        bool                    `json:"user_has_booking"`
	CurrentBooking        *BookingDTO             `json:"current_booking,omitempty"`
	OwnSeat               *SeatDTO                `json:"own_seat,omitempty"`
	HasReleasedOwnSeat    bool                    `json:"has_released_own_seat"`
	FloatingInfo          allocation.FloatingInfo `json:"floating_info"`
	Seats                 []SeatAvailabilityDTO   `json:"seats"`
}

func toAvailabilityResponse(s allocation.AvailabilitySnapshot) AvailabilityResponse {
	resp := AvailabilityResponse{
		Date:                  s.Date.String(),
		UserID:                string(s.UserID),
		IsWorkingDay:          s.IsWorkingDay,
		BatchInOffice:         int(s.BatchInOffice),
		FloatingWindowOpen:    s.FloatingWindowOpen,
		FloatingWindowOpensAt: s.FloatingWindowOpensAt.Format(time.RFC3339),
		UserHasBooking:        s.UserHasBooking,
		CurrentBooking:        toBookingDTOPtr(s.CurrentBooking),
		HasReleasedOwnSeat:    s.HasReleasedOwnSeat,
		FloatingInfo:          s.Floating,
		Seats:                 make([]SeatAvailabilityDTO, len(s.Seats)),
	}
	if s.OwnSeat != nil {
		own := toSeatDTO(*s.OwnSeat)
		resp.OwnSeat = &own
	}
	for i, sa := range s.Seats {
		resp.Seats[i] = SeatAvailabilityDTO{
			SeatDTO:                toSeatDTO(sa.Seat),
			IsBooked:               sa.IsBooked,
			IsAvailable:            sa.IsAvailable,
			BookedByRequestingUser: sa.BookedByRequestingUser,
			ReleasedByOwner:        sa.ReleasedByOwner,
			ReleasedForDate:        sa.ReleasedForDate,
			InFloatingPool:         sa.InFloatingPool,
		}
	}
	return resp
}

// =============================================================================
// SCHEDULE AND SEAT VIEWS
// =============================================================================

type AllocationDTO struct {
	BookingID   string `json:"booking_id"`
	SeatID      string `json:"seat_id"`
	SeatNumber  string `json:"seat_number"`
	SeatKind    string `json:"seat_type"`
	UserID      string `json:"user_id"`
	UserName    string `json:"user_name"`
	Batch       int    `json:"batch"`
	Squad       int    `json:"squad"`
	BookingType string `json:"booking_type"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
}

type ScheduleDayDTO struct {
	Date               string          `json:"date"`
	WeekOfCycle        int             `json:"week_of_cycle"`
	BatchInOffice      int             `json:"batch_in_office"`
	IsWorkingDay       bool            `json:"is_working_day"`
	FloatingWindowOpen bool            `json:"floating_window_open"`
	MyBooking          *BookingDTO     `json:"my_booking,omitempty"`
	TotalBookings      int             `json:"total_bookings"`
	Allocations        []AllocationDTO `json:"allocations"`
}

type ScheduleResponse struct {
	UserID string           `json:"user_id"`
	Start  string           `json:"start"`
	End    string           `json:"end"`
	Days   []ScheduleDayDTO `json:"days"`
}

func toScheduleResponse(s allocation.Schedule) ScheduleResponse {
	resp := ScheduleResponse{
		UserID: string(s.UserID),
		Start:  s.Start.String(),
		End:    s.End.String(),
		Days:   make([]ScheduleDayDTO, len(s.Days)),
	}
	for i, d := range s.Days {
		day := ScheduleDayDTO{
			Date:               d.Date.String(),
			WeekOfCycle:        d.WeekOfCycle,
			BatchInOffice:      int(d.BatchInOffice),
			IsWorkingDay:       d.IsWorkingDay,
			FloatingWindowOpen: d.FloatingWindowOpen,
			MyBooking:          toBookingDTOPtr(d.MyBooking),
			TotalBookings:      d.TotalBookings,
			Allocations:        make([]AllocationDTO, len(d.Allocations)),
		}
		for j, a := range d.Allocations {
			day.Allocations[j] = AllocationDTO{
				BookingID:   string(a.BookingID),
				SeatID:      string(a.SeatID),
				SeatNumber:  a.SeatNumber,
				SeatKind:    a.SeatKind.String(),
				UserID:      string(a.UserID),
				UserName:    a.UserName,
				Batch:       int(a.Batch),
				Squad:       int(a.Squad),
				BookingType: a.BookingType.String(),
				StartTime:   a.Start.String(),
				EndTime:     a.End.String(),
			}
		}
		resp.Days[i] = day
	}
	return resp
}

type SeatOccupancyDTO struct {
	SeatDTO
	ReleasedForDate bool        `json:"released_for_date"`
	Booking         *BookingDTO `json:"booking,omitempty"`
	Occupant        *UserDTO    `json:"occupant,omitempty"`
}

func toSeatOccupancyDTO(o allocation.SeatOccupancy) SeatOccupancyDTO {
	dto := SeatOccupancyDTO{
		SeatDTO:         toSeatDTO(o.Seat),
		ReleasedForDate: o.ReleasedForDate,
		Booking:         toBookingDTOPtr(o.Booking),
	}
	if o.Occupant != nil {
		u := toUserDTO(*o.Occupant)
		dto.Occupant = &u
	}
	return dto
}

// MeResponse is the caller's profile and desk.
type MeResponse struct {
	User    UserDTO  `json:"user"`
	Seat    *SeatDTO `json:"seat,omitempty"`
	IsAdmin bool     `json:"is_admin"`
}

// =============================================================================
// ADMIN
// =============================================================================

type AuditEntryDTO struct {
	ID        string         `json:"id"`
	Timestamp string         `json:"timestamp"`
	ActorID   string         `json:"actor_id,omitempty"`
	Action    string         `json:"action"`
	SeatID    string         `json:"seat_id,omitempty"`
	BookingID string         `json:"booking_id,omitempty"`
	Date      string         `json:"date,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

func toAuditEntryDTO(e seating.AuditEntry) AuditEntryDTO {
	return AuditEntryDTO{
		ID:        e.ID,
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339),
		ActorID:   string(e.ActorID),
		Action:    string(e.Action),
		SeatID:    string(e.SeatID),
		BookingID: string(e.BookingID),
		Date:      e.Date.String(),
		Payload:   e.Payload,
	}
}

type SweepResponse struct {
	Today            string `json:"today"`
	BookingsComplete int    `json:"bookings_completed"`
	ReleasesCleared  int    `json:"releases_cleared"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}
