/*
handlers.go - HTTP API handlers for the seat allocation engine

PURPOSE:
  Exposes the allocation engine via REST API. Handles HTTP request/response,
  JSON serialization and validation, and delegates to allocation.Engine.

ENDPOINTS:
  Employee:
    GET    /api/me                       Caller profile and designated seat
    GET    /api/availability/{date}      Seat availability snapshot
    POST   /api/bookings                 Reserve a seat
    DELETE /api/bookings/{id}            Cancel a booking
    POST   /api/bookings/release         Release own designated seat
    GET    /api/bookings/mine?date=      Caller's bookings
    GET    /api/schedule?start=&end=     Day-by-day schedule

  Floor:
    GET    /api/seats                    Seat inventory
    GET    /api/seats/stats?date=        Daily statistics
    GET    /api/seats/date/{date}        Seat occupancy for a date

  Admin:
    GET    /api/admin/audit              Audit log query
    POST   /api/admin/sweep              Run housekeeping now

REQUEST FLOW:
  1. Resolve caller (auth.go middleware)
  2. Parse and validate input
  3. Call allocation.Engine
  4. Serialize response
  5. Map errors (errors.go)

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/warp/seat-engine/allocation"
	"github.com/warp/seat-engine/seating"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

type Handler struct {
	Engine *allocation.Engine
	Logger *slog.Logger

	// Scheduler, when set, runs manual sweeps so its last-run state stays current.
	Scheduler *HousekeepingScheduler

	// Checks are reported by /healthz, keyed by dependency name.
	Checks map[string]HealthCheck

	validate *validator.Validate
}

func NewHandler(engine *allocation.Engine, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = engine.Logger
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{
		Engine:   engine,
		Logger:   logger,
		Checks:   make(map[string]HealthCheck),
		validate: v,
	}
}

// decode reads a JSON body into dst and validates it.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeValidationError(w, err)
		return false
	}
	return true
}

func caller(r *http.Request) Identity {
	id, _ := IdentityFrom(r.Context())
	return id
}

func parseDateParam(w http.ResponseWriter, raw string) (seating.Date, bool) {
	d, err := seating.ParseDate(raw)
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, "InvalidDate", "Invalid date, expected YYYY-MM-DD", err)
		return seating.Date{}, false
	}
	return d, true
}

// optionalDate parses a query parameter, returning the zero Date when absent.
func optionalDate(w http.ResponseWriter, r *http.Request, name string) (seating.Date, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return seating.Date{}, true
	}
	return parseDateParam(w, raw)
}

func optionalTime(raw string) (*seating.TimeOfDay, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := seating.ParseTimeOfDay(raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// =============================================================================
// HEALTH
// =============================================================================

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	checks := make(map[string]string, len(h.Checks))
	for name, check := range h.Checks {
		if err := check(r.Context()); err != nil {
			status = http.StatusServiceUnavailable
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}
	writeJSON(w, status, map[string]any{
		"status": http.StatusText(status),
		"checks": checks,
	})
}

// =============================================================================
// EMPLOYEE ENDPOINTS
// =============================================================================

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	id := caller(r)
	ctx := r.Context()

	user, err := h.Engine.Store.GetUser(ctx, id.UserID)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	// Admin rights come from the token or header role, as for every
	// admin check.
	resp := MeResponse{User: toUserDTO(user), IsAdmin: id.IsAdmin()}

	seat, ok, err := seating.NewDirectory(h.Engine.Store).FindOwnedSeat(ctx, user.ID)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	if ok {
		dto := toSeatDTO(seat)
		resp.Seat = &dto
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	date, ok := parseDateParam(w, chi.URLParam(r, "date"))
	if !ok {
		return
	}
	snap, err := h.Engine.ComputeAvailability(r.Context(), caller(r).UserID, date)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAvailabilityResponse(snap))
}

func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req ReserveRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, ok := parseDateParam(w, req.Date)
	if !ok {
		return
	}
	start, err := optionalTime(req.StartTime)
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, "InvalidTime", "Invalid start_time, expected HH:MM", err)
		return
	}
	end, err := optionalTime(req.EndTime)
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, "InvalidTime", "Invalid end_time, expected HH:MM", err)
		return
	}

	res, err := h.Engine.Reserve(r.Context(), allocation.ReserveRequest{
		UserID: caller(r).UserID,
		SeatID: seating.SeatID(req.SeatID),
		Date:   date,
		Start:  start,
		End:    end,
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	booking := toBookingDTO(res.Booking)
	booking.SeatNumber = res.Seat.Number
	booking.SeatKind = res.Seat.Kind.String()
	writeJSON(w, http.StatusCreated, ReserveResponse{
		Booking:        booking,
		Seat:           toSeatDTO(res.Seat),
		ReleaseCleared: res.ReleaseCleared,
	})
}

func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	id := caller(r)
	bookingID := seating.BookingID(chi.URLParam(r, "id"))

	res, err := h.Engine.Cancel(r.Context(), bookingID, id.UserID, id.IsAdmin())
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CancelResponse{
		Booking:      toBookingDTO(res.Booking),
		SeatReleased: res.SeatReleased,
		Message:      res.Message,
	})
}

func (h *Handler) ReleaseSeat(w http.ResponseWriter, r *http.Request) {
	var req ReleaseRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, ok := parseDateParam(w, req.Date)
	if !ok {
		return
	}

	res, err := h.Engine.Release(r.Context(), caller(r).UserID, date)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ReleaseResponse{
		Seat:             toSeatDTO(res.Seat),
		CancelledBooking: toBookingDTOPtr(res.CancelledBooking),
		AlreadyReleased:  res.AlreadyReleased,
		Message:          res.Message,
	})
}

func (h *Handler) ListMyBookings(w http.ResponseWriter, r *http.Request) {
	date, ok := optionalDate(w, r, "date")
	if !ok {
		return
	}
	var filter *seating.Date
	if !date.IsZero() {
		filter = &date
	}

	views, err := h.Engine.ListMyBookings(r.Context(), caller(r).UserID, filter)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	dtos := make([]BookingDTO, len(views))
	for i, v := range views {
		dtos[i] = toBookingViewDTO(v)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	start, ok := optionalDate(w, r, "start")
	if !ok {
		return
	}
	end, ok := optionalDate(w, r, "end")
	if !ok {
		return
	}

	sched, err := h.Engine.WeekSchedule(r.Context(), caller(r).UserID, start, end)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleResponse(sched))
}

// =============================================================================
// FLOOR ENDPOINTS
// =============================================================================

func (h *Handler) ListSeats(w http.ResponseWriter, r *http.Request) {
	seats, err := seating.NewDirectory(h.Engine.Store).ListSeats(r.Context())
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	dtos := make([]SeatDTO, len(seats))
	for i, s := range seats {
		dtos[i] = toSeatDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	date, ok := optionalDate(w, r, "date")
	if !ok {
		return
	}
	if date.IsZero() {
		date = h.Engine.Today()
	}

	stats, err := h.Engine.DailyStats(r.Context(), date)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) SeatsOnDate(w http.ResponseWriter, r *http.Request) {
	date, ok := parseDateParam(w, chi.URLParam(r, "date"))
	if !ok {
		return
	}
	occ, err := h.Engine.SeatsOnDate(r.Context(), date)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	dtos := make([]SeatOccupancyDTO, len(occ))
	for i, o := range occ {
		dtos[i] = toSeatOccupancyDTO(o)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ADMIN ENDPOINTS
// =============================================================================

func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := seating.AuditFilter{Limit: defaultAuditLimit}

	if v := q.Get("actor"); v != "" {
		actor := seating.UserID(v)
		filter.ActorID = &actor
	}
	if v := q.Get("seat"); v != "" {
		seat := seating.SeatID(v)
		filter.SeatID = &seat
	}
	date, ok := optionalDate(w, r, "date")
	if !ok {
		return
	}
	if !date.IsZero() {
		filter.Date = &date
	}
	for _, a := range q["action"] {
		filter.Actions = append(filter.Actions, seating.AuditAction(a))
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		filter.Limit = min(n, maxAuditLimit)
	}

	entries, err := h.Engine.Store.QueryAudit(r.Context(), filter)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	dtos := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toAuditEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	var (
		res allocation.SweepResult
		err error
	)
	if h.Scheduler != nil {
		res, err = h.Scheduler.RunNow(r.Context())
	} else {
		res, err = h.Engine.Sweep(r.Context())
	}
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SweepResponse{
		Today:            res.Today.String(),
		BookingsComplete: res.BookingsComplete,
		ReleasesCleared:  res.ReleasesCleared,
	})
}

// notFound keeps unknown API paths in the JSON error format.
func notFound(w http.ResponseWriter, r *http.Request) {
	writeErrorCode(w, http.StatusNotFound, "NotFound", "Route not found", errors.New(r.URL.Path))
}
