// Package app wires the allocation engine to its backing services from a
// Config. Both the HTTP server and the operator CLI start here.
package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/warp/seat-engine/allocation"
	"github.com/warp/seat-engine/cache"
	"github.com/warp/seat-engine/config"
	"github.com/warp/seat-engine/events"
	"github.com/warp/seat-engine/store/sqlite"
)

// App holds the engine and everything it owns.
type App struct {
	Config config.Config
	Logger *slog.Logger
	Store  *sqlite.Store
	Engine *allocation.Engine
	Cache  cache.Service
	Events events.Publisher

	closers []func() error
}

// Open builds an App. Redis and AMQP are optional: when configured but
// unreachable the engine runs without them and a warning is logged.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Logger: logger, Store: store}
	a.closers = append(a.closers, store.Close)

	a.Cache = cache.Nop{}
	if cfg.RedisAddr != "" {
		client, err := cache.Dial(ctx, cache.RedisConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			logger.Warn("stats cache disabled", "error", err)
		} else {
			r := cache.NewRedis(client)
			a.Cache = r
			a.closers = append(a.closers, r.Close)
			logger.Info("stats cache connected", "addr", cfg.RedisAddr)
		}
	}

	a.Events = events.Nop{}
	if cfg.AMQPURL != "" {
		p, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Warn("event publishing disabled", "error", err)
		} else {
			a.Events = p
			a.closers = append(a.closers, p.Close)
			logger.Info("event publisher connected", "queue", cfg.AMQPQueue)
		}
	}

	e := allocation.NewEngine(store)
	e.Calendar = cfg.Calendar()
	e.Policy.EnforceFloatingWindow = cfg.EnforceFloatingWindow
	e.Cache = a.Cache
	e.Events = a.Events
	e.StatsTTL = cfg.StatsCacheTTL
	e.Logger = logger
	a.Engine = e

	return a, nil
}

// HealthChecks returns the dependency probes for /healthz.
func (a *App) HealthChecks() map[string]func(context.Context) error {
	checks := map[string]func(context.Context) error{
		"store": a.Store.Ping,
	}
	if _, ok := a.Cache.(*cache.Redis); ok {
		checks["cache"] = a.Cache.Ping
	}
	return checks
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}
