/*
Package sqlite provides a SQLite-backed implementation of the seating store.

PURPOSE:
  Implements seating.TxStore (users, seats, bookings, audit log) on SQLite.
  The same schema ports to PostgreSQL with only minor dialect changes
  (partial unique indexes exist there too).

KEY TABLES:
  users:     Identity records consumed read-only by the engine
  seats:     Seat Directory, including the single release slot
  bookings:  Booking Ledger (never deleted, status is the only mutable column)
  audit_log: Who did what when

INVARIANT ENFORCEMENT:
  The one-active-booking rules are enforced by the database, not by Go:
  - idx_bookings_active_user: UNIQUE (user_id, date) WHERE status = 'active'
  - idx_bookings_active_seat: UNIQUE (seat_id, date) WHERE status = 'active'
  An INSERT that would create a second Active row fails with a UNIQUE
  constraint error, which InsertBooking maps to ErrDuplicateUserBooking or
  ErrSeatAlreadyBooked. Two concurrent reservations cannot both commit.

CONCURRENCY:
  Every query runs through a querier (*sql.DB or *sql.Tx). Code inside
  WithTx only ever touches the *sql.Tx, so a transaction never waits on
  itself. The pool is limited to one connection: SQLite allows a single
  writer anyway, and ":memory:" databases are per-connection.

WAL MODE:
  File databases are opened with WAL and a busy timeout.

USAGE:
  store, err := sqlite.New("./data/seats.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - seating/store.go: Interface definitions
  - seating/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/warp/seat-engine/seating"
)

// Store implements seating.TxStore using SQLite.
type Store struct {
	conn
	db *sql.DB
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_foreign_keys=on&_busy_timeout=5000&_txlock=immediate"
	if dbPath != ":memory:" {
		dsn += "&_journal_mode=WAL"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{conn: conn{q: db}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		batch INTEGER NOT NULL CHECK (batch IN (1, 2)),
		squad INTEGER NOT NULL CHECK (squad BETWEEN 1 AND 5),
		designated_seat_id TEXT,
		role TEXT NOT NULL DEFAULT 'employee'
	);

	CREATE TABLE IF NOT EXISTS seats (
		id TEXT PRIMARY KEY,
		number TEXT NOT NULL UNIQUE,
		kind TEXT NOT NULL CHECK (kind IN ('designated', 'floating')),
		squad INTEGER,
		batch INTEGER,
		owner_id TEXT,
		release_state TEXT NOT NULL DEFAULT 'normal' CHECK (release_state IN ('normal', 'released')),
		release_date TEXT,
		released_by TEXT
	);

	-- A user owns at most one seat.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_seats_owner
		ON seats(owner_id) WHERE owner_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS bookings (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		seat_id TEXT NOT NULL,
		date TEXT NOT NULL,
		booking_type TEXT NOT NULL CHECK (booking_type IN ('designated', 'floating')),
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('active', 'cancelled', 'completed')),
		booked_at TEXT NOT NULL,
		cancelled_at TEXT
	);

	-- CRITICAL: one Active booking per (user, date) and per (seat, date)
	CREATE UNIQUE INDEX IF NOT EXISTS idx_bookings_active_user
		ON bookings(user_id, date) WHERE status = 'active';
	CREATE UNIQUE INDEX IF NOT EXISTS idx_bookings_active_seat
		ON bookings(seat_id, date) WHERE status = 'active';

	CREATE INDEX IF NOT EXISTS idx_bookings_date_status
		ON bookings(date, status);
	CREATE INDEX IF NOT EXISTS idx_bookings_user_date
		ON bookings(user_id, date);

	CREATE TABLE IF NOT EXISTS audit_log (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		timestamp TEXT NOT NULL,
		actor_id TEXT,
		action TEXT NOT NULL,
		seat_id TEXT,
		booking_id TEXT,
		date TEXT,
		payload_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_actor ON audit_log(actor_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (seating.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store seating.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return seating.NewStoreError("begin", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{conn: conn{q: sqlTx}}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return seating.NewStoreError("commit", err)
	}
	return nil
}

type txStore struct {
	conn
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	tables := []string{"bookings", "audit_log", "seats", "users"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return seating.NewStoreError("reset", err)
		}
	}
	return nil
}

// =============================================================================
// CONN - All queries, shared by Store and txStore
// =============================================================================

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type conn struct {
	q querier
}

// =============================================================================
// USERS
// =============================================================================

const userColumns = `id, name, email, batch, squad, designated_seat_id, role`

func (c conn) GetUser(ctx context.Context, id seating.UserID) (seating.User, error) {
	row := c.q.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", string(id))
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return seating.User{}, seating.ErrUserNotFound
	}
	if err != nil {
		return seating.User{}, seating.NewStoreError("get user", err)
	}
	return u, nil
}

func (c conn) ListUsers(ctx context.Context) ([]seating.User, error) {
	rows, err := c.q.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY id")
	if err != nil {
		return nil, seating.NewStoreError("list users", err)
	}
	defer rows.Close()

	var users []seating.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, seating.NewStoreError("list users", err)
		}
		users = append(users, u)
	}
	return users, wrapRowsErr("list users", rows)
}

func (c conn) SaveUser(ctx context.Context, u seating.User) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO users (id, name, email, batch, squad, designated_seat_id, role)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			batch = excluded.batch,
			squad = excluded.squad,
			designated_seat_id = excluded.designated_seat_id,
			role = excluded.role
	`, string(u.ID), u.Name, u.Email, int(u.Batch), int(u.Squad), nullString(string(u.DesignatedSeatID)), string(u.Role))
	return seating.NewStoreError("save user", err)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(r scanner) (seating.User, error) {
	var (
		u      seating.User
		seatID sql.NullString
		role   string
	)
	if err := r.Scan(&u.ID, &u.Name, &u.Email, &u.Batch, &u.Squad, &seatID, &role); err != nil {
		return u, err
	}
	u.DesignatedSeatID = seating.SeatID(seatID.String)
	u.Role = seating.Role(role)
	return u, nil
}

// =============================================================================
// SEATS
// =============================================================================

const seatColumns = `id, number, kind, squad, batch, owner_id, release_state, release_date, released_by`

func (c conn) ListSeats(ctx context.Context) ([]seating.Seat, error) {
	return c.querySeats(ctx, "SELECT "+seatColumns+" FROM seats ORDER BY number")
}

func (c conn) GetSeat(ctx context.Context, id seating.SeatID) (seating.Seat, error) {
	seats, err := c.querySeats(ctx, "SELECT "+seatColumns+" FROM seats WHERE id = ?", string(id))
	if err != nil {
		return seating.Seat{}, err
	}
	if len(seats) == 0 {
		return seating.Seat{}, seating.ErrNotFound
	}
	return seats[0], nil
}

func (c conn) FindSeatByOwner(ctx context.Context, userID seating.UserID) (seating.Seat, bool, error) {
	seats, err := c.querySeats(ctx,
		"SELECT "+seatColumns+" FROM seats WHERE owner_id = ? AND kind = 'designated'", string(userID))
	if err != nil || len(seats) == 0 {
		return seating.Seat{}, false, err
	}
	return seats[0], true, nil
}

func (c conn) SaveSeat(ctx context.Context, s seating.Seat) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO seats (id, number, kind, squad, batch, owner_id, release_state, release_date, released_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			number = excluded.number,
			kind = excluded.kind,
			squad = excluded.squad,
			batch = excluded.batch,
			owner_id = excluded.owner_id,
			release_state = excluded.release_state,
			release_date = excluded.release_date,
			released_by = excluded.released_by
	`,
		string(s.ID), s.Number, s.Kind.String(),
		nullInt(int(s.Squad)), nullInt(int(s.Batch)),
		nullString(string(s.OwnerID)),
		s.Release.State.String(),
		nullString(s.Release.Date.String()),
		nullString(string(s.Release.By)),
	)
	return seating.NewStoreError("save seat", err)
}

func (c conn) SetRelease(ctx context.Context, id seating.SeatID, r seating.Release) error {
	res, err := c.q.ExecContext(ctx,
		"UPDATE seats SET release_state = ?, release_date = ?, released_by = ? WHERE id = ?",
		r.State.String(), nullString(r.Date.String()), nullString(string(r.By)), string(id))
	if err != nil {
		return seating.NewStoreError("set release", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return seating.ErrNotFound
	}
	return nil
}

func (c conn) ClearReleasesBefore(ctx context.Context, d seating.Date) (int, error) {
	res, err := c.q.ExecContext(ctx, `
		UPDATE seats SET release_state = 'normal', release_date = NULL, released_by = NULL
		WHERE release_state = 'released' AND release_date < ?
	`, d.String())
	if err != nil {
		return 0, seating.NewStoreError("clear releases", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (c conn) querySeats(ctx context.Context, query string, args ...any) ([]seating.Seat, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, seating.NewStoreError("query seats", err)
	}
	defer rows.Close()

	var seats []seating.Seat
	for rows.Next() {
		var (
			s                              seating.Seat
			kind, releaseState             string
			squad, batch                   sql.NullInt64
			owner, releaseDate, releasedBy sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.Number, &kind, &squad, &batch, &owner, &releaseState, &releaseDate, &releasedBy); err != nil {
			return nil, seating.NewStoreError("scan seat", err)
		}
		if s.Kind, err = seating.ParseSeatKind(kind); err != nil {
			return nil, seating.NewStoreError("scan seat", err)
		}
		if s.Release.State, err = seating.ParseReleaseState(releaseState); err != nil {
			return nil, seating.NewStoreError("scan seat", err)
		}
		if releaseDate.Valid {
			if s.Release.Date, err = seating.ParseDate(releaseDate.String); err != nil {
				return nil, seating.NewStoreError("scan seat", err)
			}
		}
		s.Squad = seating.Squad(squad.Int64)
		s.Batch = seating.Batch(batch.Int64)
		s.OwnerID = seating.UserID(owner.String)
		s.Release.By = seating.UserID(releasedBy.String)
		seats = append(seats, s)
	}
	return seats, wrapRowsErr("query seats", rows)
}

// =============================================================================
// BOOKINGS
// =============================================================================

const bookingColumns = `id, user_id, seat_id, date, booking_type, start_time, end_time, status, booked_at, cancelled_at`

// InsertBooking relies on the partial unique indexes for atomicity.
func (c conn) InsertBooking(ctx context.Context, b seating.Booking) error {
	var cancelledAt sql.NullString
	if b.CancelledAt != nil {
		cancelledAt = nullString(formatTime(*b.CancelledAt))
	}
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO bookings (`+bookingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		string(b.ID), string(b.UserID), string(b.SeatID), b.Date.String(), b.Type.String(),
		b.Start.String(), b.End.String(), b.Status.String(),
		formatTime(b.BookedAt), cancelledAt,
	)
	if err == nil {
		return nil
	}
	if conflict := bookingConflict(err); conflict != nil {
		conflict.UserID, conflict.SeatID, conflict.Date = b.UserID, b.SeatID, b.Date
		return conflict
	}
	return seating.NewStoreError("insert booking", err)
}

func (c conn) GetBooking(ctx context.Context, id seating.BookingID) (seating.Booking, error) {
	bookings, err := c.queryBookings(ctx, "SELECT "+bookingColumns+" FROM bookings WHERE id = ?", string(id))
	if err != nil {
		return seating.Booking{}, err
	}
	if len(bookings) == 0 {
		return seating.Booking{}, seating.ErrNotFound
	}
	return bookings[0], nil
}

func (c conn) UpdateBookingStatus(ctx context.Context, id seating.BookingID, from, to seating.BookingStatus, at time.Time) error {
	query := "UPDATE bookings SET status = ? WHERE id = ? AND status = ?"
	args := []any{to.String(), string(id), from.String()}
	if to == seating.StatusCancelled {
		query = "UPDATE bookings SET status = ?, cancelled_at = ? WHERE id = ? AND status = ?"
		args = []any{to.String(), formatTime(at), string(id), from.String()}
	}

	res, err := c.q.ExecContext(ctx, query, args...)
	if err != nil {
		if conflict := bookingConflict(err); conflict != nil {
			return conflict
		}
		return seating.NewStoreError("update booking", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	// Nothing updated: either missing or the status moved underneath us.
	var exists int
	err = c.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM bookings WHERE id = ?", string(id)).Scan(&exists)
	if err != nil {
		return seating.NewStoreError("update booking", err)
	}
	if exists == 0 {
		return seating.ErrNotFound
	}
	return seating.ErrConcurrentModification
}

func (c conn) FindBookings(ctx context.Context, f seating.BookingFilter) ([]seating.Booking, error) {
	var (
		where []string
		args  []any
	)
	if f.UserID != nil {
		where = append(where, "user_id = ?")
		args = append(args, string(*f.UserID))
	}
	if f.SeatID != nil {
		where = append(where, "seat_id = ?")
		args = append(args, string(*f.SeatID))
	}
	if f.Date != nil {
		where = append(where, "date = ?")
		args = append(args, f.Date.String())
	}
	if f.From != nil {
		where = append(where, "date >= ?")
		args = append(args, f.From.String())
	}
	if f.To != nil {
		where = append(where, "date <= ?")
		args = append(args, f.To.String())
	}
	if f.Status != nil {
		where = append(where, "status = ?")
		args = append(args, f.Status.String())
	}
	if f.Type != nil {
		where = append(where, "booking_type = ?")
		args = append(args, f.Type.String())
	}

	query := "SELECT " + bookingColumns + " FROM bookings"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date ASC, booked_at ASC, id ASC"

	return c.queryBookings(ctx, query, args...)
}

func (c conn) CompleteBookingsBefore(ctx context.Context, d seating.Date) (int, error) {
	res, err := c.q.ExecContext(ctx,
		"UPDATE bookings SET status = 'completed' WHERE status = 'active' AND date < ?", d.String())
	if err != nil {
		return 0, seating.NewStoreError("complete bookings", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (c conn) queryBookings(ctx context.Context, query string, args ...any) ([]seating.Booking, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, seating.NewStoreError("query bookings", err)
	}
	defer rows.Close()

	var bookings []seating.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, seating.NewStoreError("scan booking", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, wrapRowsErr("query bookings", rows)
}

func scanBooking(r scanner) (seating.Booking, error) {
	var (
		b                                 seating.Booking
		date, typ, start, end, status, at string
		cancelledAt                       sql.NullString
	)
	if err := r.Scan(&b.ID, &b.UserID, &b.SeatID, &date, &typ, &start, &end, &status, &at, &cancelledAt); err != nil {
		return b, err
	}

	var err error
	if b.Date, err = seating.ParseDate(date); err != nil {
		return b, err
	}
	if b.Type, err = seating.ParseBookingType(typ); err != nil {
		return b, err
	}
	if b.Start, err = seating.ParseTimeOfDay(start); err != nil {
		return b, err
	}
	if b.End, err = seating.ParseTimeOfDay(end); err != nil {
		return b, err
	}
	if b.Status, err = seating.ParseBookingStatus(status); err != nil {
		return b, err
	}
	if b.BookedAt, err = parseTime(at); err != nil {
		return b, err
	}
	if cancelledAt.Valid {
		t, err := parseTime(cancelledAt.String)
		if err != nil {
			return b, err
		}
		b.CancelledAt = &t
	}
	return b, nil
}

// bookingConflict maps a violation of the active-booking indexes to a
// *seating.ConflictError. Returns nil for any other error.
func bookingConflict(err error) *seating.ConflictError {
	var se sqlite3.Error
	if !errors.As(err, &se) || se.ExtendedCode != sqlite3.ErrConstraintUnique {
		return nil
	}
	// SQLite names the indexed columns: "UNIQUE constraint failed: bookings.seat_id, bookings.date"
	msg := se.Error()
	switch {
	case strings.Contains(msg, "bookings.seat_id"):
		return &seating.ConflictError{Err: seating.ErrSeatAlreadyBooked}
	case strings.Contains(msg, "bookings.user_id"):
		return &seating.ConflictError{Err: seating.ErrDuplicateUserBooking}
	}
	return nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (c conn) AppendAudit(ctx context.Context, e seating.AuditEntry) error {
	var payload sql.NullString
	if len(e.Payload) > 0 {
		b, err := json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("marshal audit payload: %w", err)
		}
		payload = nullString(string(b))
	}
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO audit_log (id, timestamp, actor_id, action, seat_id, booking_id, date, payload_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID, formatTime(e.Timestamp), nullString(string(e.ActorID)), string(e.Action),
		nullString(string(e.SeatID)), nullString(string(e.BookingID)), nullString(e.Date.String()), payload,
	)
	return seating.NewStoreError("append audit", err)
}

func (c conn) QueryAudit(ctx context.Context, f seating.AuditFilter) ([]seating.AuditEntry, error) {
	var (
		where []string
		args  []any
	)
	if f.ActorID != nil {
		where = append(where, "actor_id = ?")
		args = append(args, string(*f.ActorID))
	}
	if f.SeatID != nil {
		where = append(where, "seat_id = ?")
		args = append(args, string(*f.SeatID))
	}
	if f.Date != nil {
		where = append(where, "date = ?")
		args = append(args, f.Date.String())
	}
	if len(f.Actions) > 0 {
		marks := make([]string, len(f.Actions))
		for i, a := range f.Actions {
			marks[i] = "?"
			args = append(args, string(a))
		}
		where = append(where, "action IN ("+strings.Join(marks, ", ")+")")
	}

	query := "SELECT id, timestamp, actor_id, action, seat_id, booking_id, date, payload_json FROM audit_log"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, seating.NewStoreError("query audit", err)
	}
	defer rows.Close()

	var entries []seating.AuditEntry
	for rows.Next() {
		var (
			e                               seating.AuditEntry
			ts, action                      string
			actor, seat, booking, date, pay sql.NullString
		)
		if err := rows.Scan(&e.ID, &ts, &actor, &action, &seat, &booking, &date, &pay); err != nil {
			return nil, seating.NewStoreError("scan audit", err)
		}
		e.Timestamp, _ = parseTime(ts)
		e.ActorID = seating.UserID(actor.String)
		e.Action = seating.AuditAction(action)
		e.SeatID = seating.SeatID(seat.String)
		e.BookingID = seating.BookingID(booking.String)
		if date.Valid {
			e.Date, _ = seating.ParseDate(date.String)
		}
		if pay.Valid && pay.String != "" {
			json.Unmarshal([]byte(pay.String), &e.Payload)
		}
		entries = append(entries, e)
	}
	return entries, wrapRowsErr("query audit", rows)
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt(n int) sql.NullInt64 {
	if n == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(n), Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func wrapRowsErr(op string, rows *sql.Rows) error {
	return seating.NewStoreError(op, rows.Err())
}

var (
	_ seating.TxStore = (*Store)(nil)
	_ seating.Store   = (*txStore)(nil)
)
