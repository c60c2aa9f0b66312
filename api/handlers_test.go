/*
handlers_test.go - HTTP tests for API handlers

Tests for:
- Identity resolution (headers and JWT)
- Booking lifecycle over HTTP (reserve, conflict, cancel, release)
- Error mapping and validation responses
- Admin-only routes and housekeeping
*/
package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/seat-engine/allocation"
	"github.com/warp/seat-engine/api"
	"github.com/warp/seat-engine/logging"
	"github.com/warp/seat-engine/seating"
	"github.com/warp/seat-engine/seating/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

const (
	owner    seating.UserID = "b1s1u01" // owns D001
	stranger seating.UserID = "b2s1u01"
	admin    seating.UserID = "admin"
)

var (
	seatD001 = seating.SeatIDFor("D001")
	seatF001 = seating.SeatIDFor("F001")
)

type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type testServer struct {
	router  http.Handler
	handler *api.Handler
	engine  *allocation.Engine
	mem     *store.Memory
	clock   *fixedClock
	today   seating.Date
	secret  []byte
}

// Monday 1 June 2026, 10:00 UTC.
func newTestServer(t *testing.T, secret []byte) *testServer {
	t.Helper()
	mem := store.NewMemory()
	clock := &fixedClock{t: time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)}

	engine := allocation.NewEngine(mem)
	engine.Calendar = seating.DefaultCalendar(time.UTC)
	engine.Clock = clock
	engine.Logger = logging.Discard()
	_, err := engine.Seed(context.Background(), seating.DemoUsers(), seating.DefaultLayout())
	require.NoError(t, err)

	h := api.NewHandler(engine, logging.Discard())
	return &testServer{
		router:  api.NewRouter(h, api.RouterOptions{Auth: api.Authenticator{Secret: secret}}),
		handler: h,
		engine:  engine,
		mem:     mem,
		clock:   clock,
		today:   seating.NewDate(2026, time.June, 1),
		secret:  secret,
	}
}

// do sends a request as user (header mode); an empty user sends no identity.
func (s *testServer) do(t *testing.T, method, path string, user seating.UserID, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(api.HeaderUserID, string(user))
		if user == admin {
			req.Header.Set(api.HeaderUserRole, "admin")
		}
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s *testServer) book(t *testing.T, user seating.UserID, seat seating.SeatID, date seating.Date) api.ReserveResponse {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/bookings", user, api.ReserveRequest{SeatID: string(seat), Date: date.String()})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[api.ReserveResponse](t, rec)
}

// =============================================================================
// IDENTITY
// =============================================================================

func TestAuth_HeaderMode(t *testing.T) {
	s := newTestServer(t, nil)

	// No identity
	rec := s.do(t, http.MethodGet, "/api/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Unauthenticated", decodeBody[api.ErrorResponse](t, rec).Code)

	// Known user
	rec = s.do(t, http.MethodGet, "/api/me", owner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decodeBody[api.MeResponse](t, rec)
	assert.Equal(t, string(owner), me.User.ID)
	require.NotNil(t, me.Seat)
	assert.Equal(t, "D001", me.Seat.Number)
	assert.False(t, me.IsAdmin)

	// Unknown user
	rec = s.do(t, http.MethodGet, "/api/me", "ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "UserNotFound", decodeBody[api.ErrorResponse](t, rec).Code)
}

func TestAuth_JWTMode(t *testing.T) {
	secret := []byte("test-secret")
	s := newTestServer(t, secret)

	get := func(auth string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		return rec
	}

	token, err := api.IssueToken(secret, owner, seating.RoleEmployee, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, get("Bearer "+token).Code)

	forged, err := api.IssueToken([]byte("other-secret"), owner, seating.RoleAdmin, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, get("Bearer "+forged).Code)

	expired, err := api.IssueToken(secret, owner, seating.RoleEmployee, -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, get("Bearer "+expired).Code)

	assert.Equal(t, http.StatusUnauthorized, get("").Code)

	// Headers are ignored once a secret is configured
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set(api.HeaderUserID, string(owner))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestParseToken_Claims(t *testing.T) {
	secret := []byte("k")
	token, err := api.IssueToken(secret, admin, seating.RoleAdmin, time.Hour)
	require.NoError(t, err)

	id, err := api.ParseToken(secret, token)
	require.NoError(t, err)
	assert.Equal(t, admin, id.UserID)
	assert.True(t, id.IsAdmin())
}

// =============================================================================
// BOOKINGS
// =============================================================================

func TestCreateBooking_Conflicts(t *testing.T) {
	// GIVEN: the owner holds D001 tomorrow
	s := newTestServer(t, nil)
	date := s.today.AddDays(1)
	res := s.book(t, owner, seatD001, date)
	assert.Equal(t, "designated", res.Booking.BookingType)
	assert.Equal(t, "D001", res.Booking.SeatNumber)
	assert.Equal(t, "09:00", res.Booking.StartTime)

	// WHEN: a stranger tries the same seat
	rec := s.do(t, http.MethodPost, "/api/bookings", stranger, api.ReserveRequest{SeatID: string(seatD001), Date: date.String()})

	// THEN: 409 with the holder's booking ID
	assert.Equal(t, http.StatusConflict, rec.Code)
	errResp := decodeBody[api.ErrorResponse](t, rec)
	assert.Equal(t, "SeatAlreadyBooked", errResp.Code)
	assert.Equal(t, map[string]any{"existing_booking_id": res.Booking.ID}, errResp.Details)

	// AND: the owner cannot take a second seat that day
	rec = s.do(t, http.MethodPost, "/api/bookings", owner, api.ReserveRequest{SeatID: string(seatF001), Date: date.String()})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "DuplicateUserBooking", decodeBody[api.ErrorResponse](t, rec).Code)
}

func TestCreateBooking_Validation(t *testing.T) {
	s := newTestServer(t, nil)
	tomorrow := s.today.AddDays(1).String()

	tests := []struct {
		name     string
		body     any
		wantCode string
		field    string
	}{
		{"missing seat", api.ReserveRequest{Date: tomorrow}, "ValidationFailed", "seat_id"},
		{"bad date", api.ReserveRequest{SeatID: string(seatF001), Date: "01/06/2026"}, "ValidationFailed", "date"},
		{"bad time", api.ReserveRequest{SeatID: string(seatF001), Date: tomorrow, StartTime: "9am"}, "ValidationFailed", "start_time"},
		{"reversed times", api.ReserveRequest{SeatID: string(seatF001), Date: tomorrow, StartTime: "17:00", EndTime: "09:00"}, "InvalidTimeRange", ""},
		{"not json", "{", "BadRequest", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/bookings", owner, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			errResp := decodeBody[api.ErrorResponse](t, rec)
			assert.Equal(t, tt.wantCode, errResp.Code)
			if tt.field != "" {
				details, ok := errResp.Details.(map[string]any)
				require.True(t, ok)
				assert.Contains(t, details, tt.field)
			}
		})
	}
}

func TestCreateBooking_OutsideHorizon(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/api/bookings", owner,
		api.ReserveRequest{SeatID: string(seatD001), Date: s.today.AddDays(30).String()})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	errResp := decodeBody[api.ErrorResponse](t, rec)
	assert.Equal(t, "OutsideBookingHorizon", errResp.Code)
	assert.Equal(t, map[string]any{
		"date":  s.today.AddDays(30).String(),
		"first": s.today.String(),
		"last":  s.today.AddDays(14).String(),
	}, errResp.Details)
}

func TestCancelBooking_Permissions(t *testing.T) {
	// GIVEN: the owner's booking of their own seat
	s := newTestServer(t, nil)
	date := s.today.AddDays(1)
	res := s.book(t, owner, seatD001, date)
	path := "/api/bookings/" + res.Booking.ID

	// WHEN: a stranger cancels
	rec := s.do(t, http.MethodDelete, path, stranger, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// WHEN: an admin cancels
	rec = s.do(t, http.MethodDelete, path, admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cancelled := decodeBody[api.CancelResponse](t, rec)
	assert.Equal(t, "cancelled", cancelled.Booking.Status)
	assert.True(t, cancelled.SeatReleased)
	assert.NotEmpty(t, cancelled.Message)

	// THEN: a second cancel conflicts
	rec = s.do(t, http.MethodDelete, path, owner, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "AlreadyCancelled", decodeBody[api.ErrorResponse](t, rec).Code)

	// AND: unknown IDs are 404
	rec = s.do(t, http.MethodDelete, "/api/bookings/nope", owner, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReleaseSeat_ThenStrangerBooks(t *testing.T) {
	s := newTestServer(t, nil)
	date := s.today.AddDays(2)

	// GIVEN: the owner releases D001
	rec := s.do(t, http.MethodPost, "/api/bookings/release", owner, api.ReleaseRequest{Date: date.String()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rel := decodeBody[api.ReleaseResponse](t, rec)
	assert.False(t, rel.AlreadyReleased)
	assert.Equal(t, "released", rel.Seat.ReleaseState)
	assert.Equal(t, date.String(), rel.Seat.ReleaseDate)

	// AND: again is a no-op
	rec = s.do(t, http.MethodPost, "/api/bookings/release", owner, api.ReleaseRequest{Date: date.String()})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[api.ReleaseResponse](t, rec).AlreadyReleased)

	// WHEN: the stranger looks at the day
	rec = s.do(t, http.MethodGet, "/api/availability/"+date.String(), stranger, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decodeBody[api.AvailabilityResponse](t, rec)
	assert.Equal(t, 11, snap.FloatingInfo.Total)
	assert.Equal(t, 1, snap.FloatingInfo.Released)

	// THEN: they can take it as a floating booking
	res := s.book(t, stranger, seatD001, date)
	assert.Equal(t, "floating", res.Booking.BookingType)
	assert.True(t, res.ReleaseCleared)

	// AND: users without a desk cannot release
	rec = s.do(t, http.MethodPost, "/api/bookings/release", admin, api.ReleaseRequest{Date: date.String()})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "NoDesignatedSeat", decodeBody[api.ErrorResponse](t, rec).Code)
}

func TestListMyBookings(t *testing.T) {
	s := newTestServer(t, nil)
	s.book(t, owner, seatD001, s.today.AddDays(1))
	s.book(t, owner, seatF001, s.today.AddDays(2))

	rec := s.do(t, http.MethodGet, "/api/bookings/mine", owner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	all := decodeBody[[]api.BookingDTO](t, rec)
	assert.Len(t, all, 2)

	rec = s.do(t, http.MethodGet, "/api/bookings/mine?date="+s.today.AddDays(2).String(), owner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	one := decodeBody[[]api.BookingDTO](t, rec)
	require.Len(t, one, 1)
	assert.Equal(t, "F001", one[0].SeatNumber)

	rec = s.do(t, http.MethodGet, "/api/bookings/mine?date=tomorrow", owner, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "InvalidDate", decodeBody[api.ErrorResponse](t, rec).Code)
}

// =============================================================================
// FLOOR VIEWS
// =============================================================================

func TestFloorViews(t *testing.T) {
	s := newTestServer(t, nil)
	s.book(t, stranger, seatF001, s.today)

	rec := s.do(t, http.MethodGet, "/api/seats", owner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]api.SeatDTO](t, rec), 50)

	// Stats default to today
	rec = s.do(t, http.MethodGet, "/api/seats/stats", owner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decodeBody[map[string]any](t, rec)
	assert.Equal(t, s.today.String(), stats["date"])
	assert.EqualValues(t, 1, stats["booked"])

	rec = s.do(t, http.MethodGet, "/api/seats/date/"+s.today.String(), owner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	occ := decodeBody[[]api.SeatOccupancyDTO](t, rec)
	var occupied int
	for _, o := range occ {
		if o.Occupant != nil {
			occupied++
			assert.Equal(t, string(stranger), o.Occupant.ID)
		}
	}
	assert.Equal(t, 1, occupied)

	rec = s.do(t, http.MethodGet, "/api/schedule?start="+s.today.String()+"&end="+s.today.AddDays(6).String(), owner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sched := decodeBody[api.ScheduleResponse](t, rec)
	require.Len(t, sched.Days, 7)
	assert.Equal(t, 1, sched.Days[0].TotalBookings)

	rec = s.do(t, http.MethodGet, "/api/schedule?start="+s.today.AddDays(3).String()+"&end="+s.today.String(), owner, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "InvalidDateRange", decodeBody[api.ErrorResponse](t, rec).Code)
}

// =============================================================================
// ADMIN
// =============================================================================

func TestAdmin_RequiresRole(t *testing.T) {
	s := newTestServer(t, nil)

	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, "/api/admin/audit", owner, nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodPost, "/api/admin/sweep", owner, nil).Code)
}

func TestAdmin_RoleComesFromIdentity(t *testing.T) {
	// GIVEN: the stored admin user calling without an admin role claim
	s := newTestServer(t, nil)
	res := s.book(t, owner, seatD001, s.today.AddDays(1))

	send := func(method, path, role string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		req.Header.Set(api.HeaderUserID, string(admin))
		if role != "" {
			req.Header.Set(api.HeaderUserRole, role)
		}
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		return rec
	}

	// THEN: /me and cancel agree that they are not an admin
	rec := send(http.MethodGet, "/api/me", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeBody[api.MeResponse](t, rec).IsAdmin)
	rec = send(http.MethodDelete, "/api/bookings/"+res.Booking.ID, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// WHEN: the admin role is presented
	// THEN: both grant it
	rec = send(http.MethodGet, "/api/me", "admin")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[api.MeResponse](t, rec).IsAdmin)
	rec = send(http.MethodDelete, "/api/bookings/"+res.Booking.ID, "admin")
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestAdmin_AuditQuery(t *testing.T) {
	s := newTestServer(t, nil)
	date := s.today.AddDays(1)
	s.book(t, owner, seatD001, date)
	s.book(t, stranger, seatF001, date)

	rec := s.do(t, http.MethodGet, "/api/admin/audit?actor="+string(owner), admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	entries := decodeBody[[]api.AuditEntryDTO](t, rec)
	require.Len(t, entries, 1)
	assert.Equal(t, "booking_created", entries[0].Action)
	assert.Equal(t, date.String(), entries[0].Date)

	rec = s.do(t, http.MethodGet, "/api/admin/audit?action=booking_created&limit=5", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]api.AuditEntryDTO](t, rec), 2)

	rec = s.do(t, http.MethodGet, "/api/admin/audit?limit=-1", admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdmin_Sweep(t *testing.T) {
	// GIVEN: a booking today, swept three days later
	s := newTestServer(t, nil)
	s.book(t, stranger, seatF001, s.today)
	s.clock.Set(time.Date(2026, 6, 4, 10, 0, 0, 0, time.UTC))

	// WHEN
	rec := s.do(t, http.MethodPost, "/api/admin/sweep", admin, nil)

	// THEN
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeBody[api.SweepResponse](t, rec)
	assert.Equal(t, "2026-06-04", res.Today)
	assert.Equal(t, 1, res.BookingsComplete)
}

// =============================================================================
// HEALTH AND ERRORS
// =============================================================================

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	s.handler.Checks["store"] = func(context.Context) error { return nil }

	rec := s.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	s.handler.Checks["cache"] = func(context.Context) error { return errors.New("connection refused") }
	rec = s.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, map[string]any{"store": "ok", "cache": "connection refused"}, body["checks"])
}

func TestStoreFailure_Is503(t *testing.T) {
	s := newTestServer(t, nil)
	s.mem.InjectFault("InsertBooking", errors.New("disk full"))

	rec := s.do(t, http.MethodPost, "/api/bookings", owner,
		api.ReserveRequest{SeatID: string(seatD001), Date: s.today.AddDays(1).String()})

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	errResp := decodeBody[api.ErrorResponse](t, rec)
	assert.Equal(t, "StoreUnavailable", errResp.Code)
	assert.NotContains(t, rec.Body.String(), "disk full")
}

// =============================================================================
// CORS
// =============================================================================

func preflight(router http.Handler, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodOptions, "/api/me", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCORS_DefaultOrigins(t *testing.T) {
	// GIVEN: a router with no configured origins
	s := newTestServer(t, nil)

	// WHEN: the dev frontend sends a preflight
	rec := preflight(s.router, "http://localhost:5173")

	// THEN: the origin is echoed with credentials allowed
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	// AND: an unknown origin gets no grant
	rec = preflight(s.router, "https://evil.example")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_WildcardDropsCredentials(t *testing.T) {
	s := newTestServer(t, nil)
	router := api.NewRouter(s.handler, api.RouterOptions{AllowedOrigins: []string{"*"}})

	rec := preflight(router, "https://any.example")

	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{seating.ErrSeatAlreadyBooked, http.StatusConflict},
		{&seating.HorizonError{}, http.StatusBadRequest},
		{seating.ErrForbidden, http.StatusForbidden},
		{seating.ErrUserNotFound, http.StatusNotFound},
		{seating.NewStoreError("x", errors.New("boom")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, api.StatusFor(tt.err), tt.err.Error())
	}
}
