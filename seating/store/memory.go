// Package store provides in-memory seating.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/seat-engine/seating"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements seating.TxStore. A single RWMutex guards all state, so
// InsertBooking's check-and-insert is atomic and WithTx serializes writers.
type Memory struct {
	mu sync.RWMutex
	state

	faultMu sync.Mutex
	faults  map[string]error
}

type state struct {
	users    map[seating.UserID]seating.User
	seats    map[seating.SeatID]seating.Seat
	bookings map[seating.BookingID]seating.Booking
	audit    []seating.AuditEntry
}

func NewMemory() *Memory {
	return &Memory{
		state: state{
			users:    make(map[seating.UserID]seating.User),
			seats:    make(map[seating.SeatID]seating.Seat),
			bookings: make(map[seating.BookingID]seating.Booking),
		},
		faults: make(map[string]error),
	}
}

// InjectFault makes the next call of op fail with a *seating.StoreError
// wrapping err. op is the method name, e.g. "SetRelease".
func (m *Memory) InjectFault(op string, err error) {
	m.faultMu.Lock()
	defer m.faultMu.Unlock()
	m.faults[op] = err
}

func (m *Memory) fault(op string) error {
	m.faultMu.Lock()
	defer m.faultMu.Unlock()
	err, ok := m.faults[op]
	if !ok {
		return nil
	}
	delete(m.faults, op)
	return seating.NewStoreError(op, err)
}

// =============================================================================
// LOCKED ACCESSORS - Public methods take the lock, the tx view does not
// =============================================================================

func (m *Memory) read(op string, fn func(*state) error) error {
	if err := m.fault(op); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(&m.state)
}

func (m *Memory) write(op string, fn func(*state) error) error {
	if err := m.fault(op); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&m.state)
}

// Users

func (m *Memory) GetUser(_ context.Context, id seating.UserID) (u seating.User, err error) {
	err = m.read("GetUser", func(s *state) error { u, err = s.getUser(id); return err })
	return u, err
}

func (m *Memory) ListUsers(_ context.Context) (users []seating.User, err error) {
	err = m.read("ListUsers", func(s *state) error { users = s.listUsers(); return nil })
	return users, err
}

func (m *Memory) SaveUser(_ context.Context, u seating.User) error {
	return m.write("SaveUser", func(s *state) error { s.users[u.ID] = u; return nil })
}

// Seats

func (m *Memory) ListSeats(_ context.Context) (seats []seating.Seat, err error) {
	err = m.read("ListSeats", func(s *state) error { seats = s.listSeats(); return nil })
	return seats, err
}

func (m *Memory) GetSeat(_ context.Context, id seating.SeatID) (seat seating.Seat, err error) {
	err = m.read("GetSeat", func(s *state) error { seat, err = s.getSeat(id); return err })
	return seat, err
}

func (m *Memory) FindSeatByOwner(_ context.Context, userID seating.UserID) (seat seating.Seat, ok bool, err error) {
	err = m.read("FindSeatByOwner", func(s *state) error { seat, ok = s.findSeatByOwner(userID); return nil })
	return seat, ok, err
}

func (m *Memory) SaveSeat(_ context.Context, seat seating.Seat) error {
	return m.write("SaveSeat", func(s *state) error { s.seats[seat.ID] = seat; return nil })
}

func (m *Memory) SetRelease(_ context.Context, id seating.SeatID, r seating.Release) error {
	return m.write("SetRelease", func(s *state) error { return s.setRelease(id, r) })
}

func (m *Memory) ClearReleasesBefore(_ context.Context, d seating.Date) (n int, err error) {
	err = m.write("ClearReleasesBefore", func(s *state) error { n = s.clearReleasesBefore(d); return nil })
	return n, err
}

// Bookings

func (m *Memory) InsertBooking(_ context.Context, b seating.Booking) error {
	return m.write("InsertBooking", func(s *state) error { return s.insertBooking(b) })
}

func (m *Memory) GetBooking(_ context.Context, id seating.BookingID) (b seating.Booking, err error) {
	err = m.read("GetBooking", func(s *state) error { b, err = s.getBooking(id); return err })
	return b, err
}

func (m *Memory) UpdateBookingStatus(_ context.Context, id seating.BookingID, from, to seating.BookingStatus, at time.Time) error {
	return m.write("UpdateBookingStatus", func(s *state) error { return s.updateBookingStatus(id, from, to, at) })
}

func (m *Memory) FindBookings(_ context.Context, f seating.BookingFilter) (out []seating.Booking, err error) {
	err = m.read("FindBookings", func(s *state) error { out = s.findBookings(f); return nil })
	return out, err
}

func (m *Memory) CompleteBookingsBefore(_ context.Context, d seating.Date) (n int, err error) {
	err = m.write("CompleteBookingsBefore", func(s *state) error { n = s.completeBookingsBefore(d); return nil })
	return n, err
}

// Audit

func (m *Memory) AppendAudit(_ context.Context, e seating.AuditEntry) error {
	return m.write("AppendAudit", func(s *state) error { s.audit = append(s.audit, e); return nil })
}

func (m *Memory) QueryAudit(_ context.Context, f seating.AuditFilter) (out []seating.AuditEntry, err error) {
	err = m.read("QueryAudit", func(s *state) error { out = s.queryAudit(f); return nil })
	return out, err
}

// =============================================================================
// STATE OPERATIONS - Caller holds the lock
// =============================================================================

func (s *state) getUser(id seating.UserID) (seating.User, error) {
	u, ok := s.users[id]
	if !ok {
		return seating.User{}, seating.ErrUserNotFound
	}
	return u, nil
}

func (s *state) listUsers() []seating.User {
	out := make([]seating.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *state) listSeats() []seating.Seat {
	out := make([]seating.Seat, 0, len(s.seats))
	for _, seat := range s.seats {
		out = append(out, seat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

func (s *state) getSeat(id seating.SeatID) (seating.Seat, error) {
	seat, ok := s.seats[id]
	if !ok {
		return seating.Seat{}, seating.ErrNotFound
	}
	return seat, nil
}

func (s *state) findSeatByOwner(userID seating.UserID) (seating.Seat, bool) {
	for _, seat := range s.seats {
		if seat.OwnedBy(userID) {
			return seat, true
		}
	}
	return seating.Seat{}, false
}

func (s *state) setRelease(id seating.SeatID, r seating.Release) error {
	seat, ok := s.seats[id]
	if !ok {
		return seating.ErrNotFound
	}
	seat.Release = r
	s.seats[id] = seat
	return nil
}

func (s *state) clearReleasesBefore(d seating.Date) int {
	n := 0
	for id, seat := range s.seats {
		if seat.Release.State == seating.ReleaseReleased && seat.Release.Date.Before(d) {
			seat.Release = seating.NormalRelease
			s.seats[id] = seat
			n++
		}
	}
	return n
}

// insertBooking is the conditional insert: both invariants are checked and
// the row written under the same lock.
func (s *state) insertBooking(b seating.Booking) error {
	if _, exists := s.bookings[b.ID]; exists {
		return seating.NewStoreError("InsertBooking", errDuplicateID(b.ID))
	}
	if b.Status == seating.StatusActive {
		for _, other := range s.bookings {
			if other.Status != seating.StatusActive || !other.Date.Equal(b.Date) {
				continue
			}
			if other.UserID == b.UserID {
				return &seating.ConflictError{Err: seating.ErrDuplicateUserBooking, UserID: b.UserID, SeatID: b.SeatID, Date: b.Date, ExistingID: other.ID}
			}
			if other.SeatID == b.SeatID {
				return &seating.ConflictError{Err: seating.ErrSeatAlreadyBooked, UserID: b.UserID, SeatID: b.SeatID, Date: b.Date, ExistingID: other.ID}
			}
		}
	}
	s.bookings[b.ID] = b
	return nil
}

func (s *state) getBooking(id seating.BookingID) (seating.Booking, error) {
	b, ok := s.bookings[id]
	if !ok {
		return seating.Booking{}, seating.ErrNotFound
	}
	return b, nil
}

func (s *state) updateBookingStatus(id seating.BookingID, from, to seating.BookingStatus, at time.Time) error {
	b, ok := s.bookings[id]
	if !ok {
		return seating.ErrNotFound
	}
	if b.Status != from {
		return seating.ErrConcurrentModification
	}
	b.Status = to
	if to == seating.StatusCancelled {
		stamp := at
		b.CancelledAt = &stamp
	}
	s.bookings[id] = b
	return nil
}

func (s *state) findBookings(f seating.BookingFilter) []seating.Booking {
	var out []seating.Booking
	for _, b := range s.bookings {
		if f.Matches(b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		if !out[i].BookedAt.Equal(out[j].BookedAt) {
			return out[i].BookedAt.Before(out[j].BookedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *state) completeBookingsBefore(d seating.Date) int {
	n := 0
	for id, b := range s.bookings {
		if b.Status == seating.StatusActive && b.Date.Before(d) {
			b.Status = seating.StatusCompleted
			s.bookings[id] = b
			n++
		}
	}
	return n
}

func (s *state) queryAudit(f seating.AuditFilter) []seating.AuditEntry {
	var out []seating.AuditEntry
	for i := len(s.audit) - 1; i >= 0; i-- {
		if f.Matches(s.audit[i]) {
			out = append(out, s.audit[i])
			if f.Limit > 0 && len(out) == f.Limit {
				break
			}
		}
	}
	return out
}

func (s *state) clone() state {
	c := state{
		users:    make(map[seating.UserID]seating.User, len(s.users)),
		seats:    make(map[seating.SeatID]seating.Seat, len(s.seats)),
		bookings: make(map[seating.BookingID]seating.Booking, len(s.bookings)),
		audit:    append([]seating.AuditEntry(nil), s.audit...),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.seats {
		c.seats[k] = v
	}
	for k, v := range s.bookings {
		c.bookings[k] = v
	}
	return c
}

type errDuplicateID seating.BookingID

func (e errDuplicateID) Error() string { return "duplicate booking id " + string(e) }

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn while holding the write lock.
// Simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(_ context.Context, fn func(seating.Store) error) error {
	if err := m.fault("WithTx"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	view := &txView{m: m}

	if err := fn(view); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

// txView operates directly on the parent's state; the lock is already held.
type txView struct {
	m *Memory
}

func (v *txView) do(op string, fn func(*state) error) error {
	if err := v.m.fault(op); err != nil {
		return err
	}
	return fn(&v.m.state)
}

func (v *txView) GetUser(_ context.Context, id seating.UserID) (u seating.User, err error) {
	err = v.do("GetUser", func(s *state) error { u, err = s.getUser(id); return err })
	return u, err
}

func (v *txView) ListUsers(_ context.Context) (users []seating.User, err error) {
	err = v.do("ListUsers", func(s *state) error { users = s.listUsers(); return nil })
	return users, err
}

func (v *txView) SaveUser(_ context.Context, u seating.User) error {
	return v.do("SaveUser", func(s *state) error { s.users[u.ID] = u; return nil })
}

func (v *txView) ListSeats(_ context.Context) (seats []seating.Seat, err error) {
	err = v.do("ListSeats", func(s *state) error { seats = s.listSeats(); return nil })
	return seats, err
}

func (v *txView) GetSeat(_ context.Context, id seating.SeatID) (seat seating.Seat, err error) {
	err = v.do("GetSeat", func(s *state) error { seat, err = s.getSeat(id); return err })
	return seat, err
}

func (v *txView) FindSeatByOwner(_ context.Context, userID seating.UserID) (seat seating.Seat, ok bool, err error) {
	err = v.do("FindSeatByOwner", func(s *state) error { seat, ok = s.findSeatByOwner(userID); return nil })
	return seat, ok, err
}

func (v *txView) SaveSeat(_ context.Context, seat seating.Seat) error {
	return v.do("SaveSeat", func(s *state) error { s.seats[seat.ID] = seat; return nil })
}

func (v *txView) SetRelease(_ context.Context, id seating.SeatID, r seating.Release) error {
	return v.do("SetRelease", func(s *state) error { return s.setRelease(id, r) })
}

func (v *txView) ClearReleasesBefore(_ context.Context, d seating.Date) (n int, err error) {
	err = v.do("ClearReleasesBefore", func(s *state) error { n = s.clearReleasesBefore(d); return nil })
	return n, err
}

func (v *txView) InsertBooking(_ context.Context, b seating.Booking) error {
	return v.do("InsertBooking", func(s *state) error { return s.insertBooking(b) })
}

func (v *txView) GetBooking(_ context.Context, id seating.BookingID) (b seating.Booking, err error) {
	err = v.do("GetBooking", func(s *state) error { b, err = s.getBooking(id); return err })
	return b, err
}

func (v *txView) UpdateBookingStatus(_ context.Context, id seating.BookingID, from, to seating.BookingStatus, at time.Time) error {
	return v.do("UpdateBookingStatus", func(s *state) error { return s.updateBookingStatus(id, from, to, at) })
}

func (v *txView) FindBookings(_ context.Context, f seating.BookingFilter) (out []seating.Booking, err error) {
	err = v.do("FindBookings", func(s *state) error { out = s.findBookings(f); return nil })
	return out, err
}

func (v *txView) CompleteBookingsBefore(_ context.Context, d seating.Date) (n int, err error) {
	err = v.do("CompleteBookingsBefore", func(s *state) error { n = s.completeBookingsBefore(d); return nil })
	return n, err
}

func (v *txView) AppendAudit(_ context.Context, e seating.AuditEntry) error {
	return v.do("AppendAudit", func(s *state) error { s.audit = append(s.audit, e); return nil })
}

func (v *txView) QueryAudit(_ context.Context, f seating.AuditFilter) (out []seating.AuditEntry, err error) {
	err = v.do("QueryAudit", func(s *state) error { out = s.queryAudit(f); return nil })
	return out, err
}

var (
	_ seating.TxStore = (*Memory)(nil)
	_ seating.Store   = (*txView)(nil)
)
