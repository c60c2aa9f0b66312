/*
Package config loads runtime settings.

PURPOSE:
  One place that turns the environment (optionally seeded from a .env file)
  into typed settings for the server and the operator CLI. Command-line
  flags override what is loaded here.

KEYS (defaults in brackets):
  PORT [8080]                    HTTP listen port
  DB_PATH [seats.db]             SQLite file, ":memory:" for a throwaway store
  TIMEZONE [Local]               Office time zone (IANA name)
  FLOATING_CUTOFF [15:00]        Floating pool opens at this time the day before
  BOOKING_HORIZON_DAYS [14]      Bookings allowed today..today+N
  ENFORCE_FLOATING_WINDOW [false]
  JWT_SECRET []                  HS256 secret; empty means header identity (dev)
  REDIS_ADDR [] REDIS_PASSWORD [] REDIS_DB [0]
  STATS_CACHE_TTL [30s]          0 disables the stats cache
  AMQP_URL [] AMQP_QUEUE [seat.events]
  SWEEP_INTERVAL [1h]            0 disables the housekeeping scheduler
  LOG_LEVEL [info] LOG_FORMAT [json]
  CORS_ORIGINS []                Comma separated; empty means the local dev origins
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/warp/seat-engine/seating"
)

type Config struct {
	Port   string
	DBPath string

	Location              *time.Location
	FloatingCutoff        seating.TimeOfDay
	HorizonDays           int
	EnforceFloatingWindow bool

	JWTSecret string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	StatsCacheTTL time.Duration

	AMQPURL   string
	AMQPQueue string

	SweepInterval time.Duration

	LogLevel    string
	LogFormat   string
	CORSOrigins []string
}

// Load reads the given .env files (".env" when none are given; missing files
// are skipped), then the environment. Variables already set in the
// environment win over .env values.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (Config, error) {
	var errs []error

	cfg := Config{
		Port:          getenv("PORT", "8080"),
		DBPath:        getenv("DB_PATH", "seats.db"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		AMQPURL:       os.Getenv("AMQP_URL"),
		AMQPQueue:     getenv("AMQP_QUEUE", "seat.events"),
		LogLevel:      getenv("LOG_LEVEL", "info"),
		LogFormat:     getenv("LOG_FORMAT", "json"),
		CORSOrigins:   splitList(getenv("CORS_ORIGINS", "")),
	}

	loc, err := time.LoadLocation(getenv("TIMEZONE", "Local"))
	if err != nil {
		errs = append(errs, fmt.Errorf("TIMEZONE: %w", err))
	}
	cfg.Location = loc

	if cfg.FloatingCutoff, err = seating.ParseTimeOfDay(getenv("FLOATING_CUTOFF", "15:00")); err != nil {
		errs = append(errs, fmt.Errorf("FLOATING_CUTOFF: %w", err))
	}
	if cfg.HorizonDays, err = atoi("BOOKING_HORIZON_DAYS", "14"); err != nil {
		errs = append(errs, err)
	} else if cfg.HorizonDays < 0 {
		errs = append(errs, fmt.Errorf("BOOKING_HORIZON_DAYS: must not be negative"))
	}
	if cfg.EnforceFloatingWindow, err = parseBool("ENFORCE_FLOATING_WINDOW", "false"); err != nil {
		errs = append(errs, err)
	}
	if cfg.RedisDB, err = atoi("REDIS_DB", "0"); err != nil {
		errs = append(errs, err)
	}
	if cfg.StatsCacheTTL, err = parseDur("STATS_CACHE_TTL", "30s"); err != nil {
		errs = append(errs, err)
	}
	if cfg.SweepInterval, err = parseDur("SWEEP_INTERVAL", "1h"); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Calendar returns the office calendar described by the config.
func (c Config) Calendar() seating.Calendar {
	cal := seating.DefaultCalendar(c.Location)
	cal.FloatingCutoff = c.FloatingCutoff
	cal.HorizonDays = c.HorizonDays
	return cal
}

// Addr is the HTTP listen address.
func (c Config) Addr() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

// =============================================================================
// HELPERS
// =============================================================================

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func atoi(key, def string) (int, error) {
	n, err := strconv.Atoi(getenv(key, def))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func parseDur(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenv(key, def))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func parseBool(key, def string) (bool, error) {
	b, err := strconv.ParseBool(getenv(key, def))
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
