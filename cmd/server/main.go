/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the seat allocation server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, flags)
  2. Open SQLite store, optional Redis cache and AMQP publisher
  3. Create allocation engine and API handler
  4. Start housekeeping scheduler
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS (override environment):
  --port      HTTP server port
  --db        SQLite database path (":memory:" for in-memory)
  --env-file  .env file to load (default: .env)
  --seed      Seed the demo floor when the store is empty

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler
  4. Close broker, cache and database connections

EXAMPLES:
  ./server --db=./data/seats.db
  ./server --db=:memory: --seed
  JWT_SECRET=change-me REDIS_ADDR=localhost:6379 ./server

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Environment keys
  - internal/app: Service wiring
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/warp/seat-engine/api"
	"github.com/warp/seat-engine/config"
	"github.com/warp/seat-engine/internal/app"
	"github.com/warp/seat-engine/logging"
	"github.com/warp/seat-engine/seating"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		port    string
		dbPath  string
		envFile string
		seed    bool
	)

	cmd := &cobra.Command{
		Use:           "server",
		Short:         "Seat allocation HTTP server",
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if cmd.Flags().Changed("db") {
				cfg.DBPath = dbPath
			}
			return run(cmd.Context(), cfg, seed)
		},
	}

	cmd.Flags().StringVar(&port, "port", "8080", "HTTP server port")
	cmd.Flags().StringVar(&dbPath, "db", "seats.db", "SQLite database path")
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before the environment")
	cmd.Flags().BoolVar(&seed, "seed", false, "seed the demo floor when no seats exist")
	return cmd
}

func run(ctx context.Context, cfg config.Config, seed bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("shutdown", "error", err)
		}
	}()

	if seed {
		if err := seedIfEmpty(ctx, a); err != nil {
			return err
		}
	}

	// Handler and router
	handler := api.NewHandler(a.Engine, logger)
	for name, check := range a.HealthChecks() {
		handler.Checks[name] = check
	}

	scheduler := api.NewHousekeepingScheduler(a.Engine, logger)
	scheduler.CheckInterval = cfg.SweepInterval
	scheduler.Enabled = cfg.SweepInterval > 0
	handler.Scheduler = scheduler

	if cfg.JWTSecret == "" {
		logger.Warn("JWT_SECRET not set: trusting X-User-ID headers")
	}
	router := api.NewRouter(handler, api.RouterOptions{
		Auth:           api.Authenticator{Secret: []byte(cfg.JWTSecret)},
		AllowedOrigins: cfg.CORSOrigins,
	})

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	scheduler.Start()
	defer scheduler.Stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", server.Addr, "db", cfg.DBPath, "timezone", cfg.Location.String())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func seedIfEmpty(ctx context.Context, a *app.App) error {
	seats, err := a.Store.ListSeats(ctx)
	if err != nil {
		return err
	}
	if len(seats) > 0 {
		return nil
	}
	_, err = a.Engine.Seed(ctx, seating.DemoUsers(), seating.DefaultLayout())
	return err
}
