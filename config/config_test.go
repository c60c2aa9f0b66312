package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allKeys = []string{
	"PORT", "DB_PATH", "TIMEZONE", "FLOATING_CUTOFF", "BOOKING_HORIZON_DAYS",
	"ENFORCE_FLOATING_WINDOW", "JWT_SECRET", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
	"STATS_CACHE_TTL", "AMQP_URL", "AMQP_QUEUE", "SWEEP_INTERVAL", "LOG_LEVEL",
	"LOG_FORMAT", "CORS_ORIGINS",
}

// clearEnv blanks every key for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, "seats.db", cfg.DBPath)
	assert.Equal(t, "15:00", cfg.FloatingCutoff.String())
	assert.Equal(t, 14, cfg.HorizonDays)
	assert.False(t, cfg.EnforceFloatingWindow)
	assert.Equal(t, 30*time.Second, cfg.StatsCacheTTL)
	assert.Equal(t, time.Hour, cfg.SweepInterval)
	assert.Equal(t, "seat.events", cfg.AMQPQueue)
	assert.Empty(t, cfg.CORSOrigins)
	assert.Empty(t, cfg.JWTSecret)
}

func TestFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("TIMEZONE", "Europe/Paris")
	t.Setenv("FLOATING_CUTOFF", "16:30")
	t.Setenv("BOOKING_HORIZON_DAYS", "7")
	t.Setenv("ENFORCE_FLOATING_WINDOW", "true")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("REDIS_DB", "3")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "Europe/Paris", cfg.Location.String())
	assert.True(t, cfg.EnforceFloatingWindow)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)

	cal := cfg.Calendar()
	assert.Equal(t, 7, cal.HorizonDays)
	assert.Equal(t, 16, cal.FloatingCutoff.Hour)
	assert.Equal(t, 30, cal.FloatingCutoff.Minute)
}

func TestFromEnv_ReportsEveryBadValue(t *testing.T) {
	clearEnv(t)
	t.Setenv("BOOKING_HORIZON_DAYS", "two weeks")
	t.Setenv("SWEEP_INTERVAL", "hourly")
	t.Setenv("FLOATING_CUTOFF", "3pm")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BOOKING_HORIZON_DAYS")
	assert.Contains(t, err.Error(), "SWEEP_INTERVAL")
	assert.Contains(t, err.Error(), "FLOATING_CUTOFF")
}

func TestLoad_DotEnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("PORT=9090\nJWT_SECRET=s3cret\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("PORT")
		os.Unsetenv("JWT_SECRET")
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Addr())
	assert.Equal(t, "s3cret", cfg.JWTSecret)

	// Missing files are fine.
	_, err = Load(filepath.Join(t.TempDir(), "absent.env"))
	assert.NoError(t, err)
}
