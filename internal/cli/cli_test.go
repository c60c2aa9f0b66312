package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/seat-engine/api"
	"github.com/warp/seat-engine/seating"
)

type harness struct {
	db  string
	env string
}

func newHarness(t *testing.T) harness {
	dir := t.TempDir()
	t.Setenv("TIMEZONE", "UTC")
	return harness{
		db:  filepath.Join(dir, "seats.db"),
		env: filepath.Join(dir, "missing.env"),
	}
}

func (h harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--db", h.db, "--env-file", h.env}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func (h harness) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := h.run(t, args...)
	require.NoError(t, err, out)
	return out
}

func TestSeatctl_Lifecycle(t *testing.T) {
	h := newHarness(t)
	tomorrow := seating.DateOf(time.Now().UTC()).AddDays(1).String()

	// GIVEN: the demo floor
	out := h.mustRun(t, "seed")
	assert.Contains(t, out, "50 seats, 81 users, 40 designated seats assigned")

	// WHEN: the owner of D001 releases it
	out = h.mustRun(t, "release", "--user", "b1s1u01", "--date", tomorrow)
	assert.Contains(t, out, "D001")

	// THEN: the floating pool grows by one
	out = h.mustRun(t, "stats", "--date", tomorrow)
	assert.Contains(t, out, "10 base + 1 released = 11")

	out = h.mustRun(t, "availability", "--user", "b1s1u01", "--date", tomorrow)
	assert.Contains(t, out, "own seat released")

	// WHEN: a stranger books it
	out = h.mustRun(t, "book", "--user", "b2s1u01", "--seat", "d001", "--date", tomorrow)
	assert.Contains(t, out, "Booked D001")

	out = h.mustRun(t, "stats", "--date", tomorrow)
	assert.Regexp(t, `Booked\s+1`, out)

	// AND: the second booking of the same seat is refused
	_, err := h.run(t, "book", "--user", "b2s1u02", "--seat", "D001", "--date", tomorrow)
	assert.ErrorIs(t, err, seating.ErrSeatAlreadyBooked)

	out = h.mustRun(t, "audit", "--actor", "b2s1u01")
	assert.Contains(t, out, "booking_created")

	out = h.mustRun(t, "schedule", "--user", "b2s1u01")
	assert.Equal(t, 16, strings.Count(strings.TrimSpace(out), "\n")+1, out) // header + 15 days

	h.mustRun(t, "sweep")
}

func TestSeatctl_SeedLayout(t *testing.T) {
	h := newHarness(t)
	layout := filepath.Join(t.TempDir(), "floor.json")
	require.NoError(t, os.WriteFile(layout, []byte(`{
		"name": "annex",
		"generate": {"seats_per_squad": 1, "floating": 2}
	}`), 0o644))

	out := h.mustRun(t, "seed", "--reset", "--layout", layout)
	assert.Contains(t, out, `Seeded "annex": 12 seats, 81 users, 10 designated seats assigned`)

	out = h.mustRun(t, "stats")
	assert.Regexp(t, `Total seats\s+12`, out)
}

func TestSeatctl_Token(t *testing.T) {
	h := newHarness(t)

	t.Setenv("JWT_SECRET", "")
	_, err := h.run(t, "token", "--user", "admin")
	assert.Error(t, err)

	t.Setenv("JWT_SECRET", "cli-secret")
	out := h.mustRun(t, "token", "--user", "admin", "--role", "admin")

	id, err := api.ParseToken([]byte("cli-secret"), strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, seating.UserID("admin"), id.UserID)
	assert.True(t, id.IsAdmin())

	_, err = h.run(t, "token", "--user", "admin", "--role", "root")
	assert.Error(t, err)
}
