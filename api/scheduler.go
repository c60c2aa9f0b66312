/*
scheduler.go - Automated housekeeping scheduler

PURPOSE:
  Periodically closes out past days: completes bookings dated before today
  and clears release flags whose date has passed (allocation.Engine.Sweep).

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on start, then on every tick
  - Keeps the result of the last run for the admin endpoint and logs

CONFIGURATION:
  - CheckInterval: How often to sweep (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewHousekeepingScheduler(engine, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerSweep endpoint (manual sweep)
  - allocation/housekeeping.go: Sweep
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/seat-engine/allocation"
)

// HousekeepingScheduler runs allocation sweeps on an interval.
type HousekeepingScheduler struct {
	Engine        *allocation.Engine
	Logger        *slog.Logger
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	runMu   sync.Mutex
	lastRun time.Time
	last    allocation.SweepResult
	lastErr error
}

func NewHousekeepingScheduler(engine *allocation.Engine, logger *slog.Logger) *HousekeepingScheduler {
	if logger == nil {
		logger = engine.Logger
	}
	return &HousekeepingScheduler{
		Engine:        engine,
		Logger:        logger.With("component", "housekeeping"),
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
	}
}

// Start begins the scheduler.
func (hs *HousekeepingScheduler) Start() {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	if !hs.Enabled || hs.CheckInterval <= 0 {
		hs.Logger.Info("scheduler disabled, not starting")
		return
	}
	if hs.ticker != nil {
		return
	}

	hs.ticker = time.NewTicker(hs.CheckInterval)
	hs.stop = make(chan struct{})
	hs.wg.Add(1)

	go hs.run(hs.ticker, hs.stop)

	hs.Logger.Info("scheduler started", "interval", hs.CheckInterval)
}

// Stop stops the scheduler and waits for an in-flight sweep.
func (hs *HousekeepingScheduler) Stop() {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	if hs.ticker != nil {
		hs.ticker.Stop()
		close(hs.stop)
		hs.wg.Wait()
		hs.ticker = nil
		hs.Logger.Info("scheduler stopped")
	}
}

func (hs *HousekeepingScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer hs.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	// Run immediately on start
	hs.RunNow(ctx)

	for {
		select {
		case <-ticker.C:
			hs.RunNow(ctx)
		case <-stop:
			return
		}
	}
}

// RunNow sweeps immediately and records the outcome.
func (hs *HousekeepingScheduler) RunNow(ctx context.Context) (allocation.SweepResult, error) {
	hs.runMu.Lock()
	defer hs.runMu.Unlock()

	res, err := hs.Engine.Sweep(ctx)
	hs.lastRun = time.Now()
	hs.last = res
	hs.lastErr = err
	if err != nil {
		hs.Logger.ErrorContext(ctx, "sweep failed", "error", err)
		return res, err
	}
	if res.BookingsComplete > 0 || res.ReleasesCleared > 0 {
		hs.Logger.InfoContext(ctx, "sweep completed",
			"bookings_completed", res.BookingsComplete,
			"releases_cleared", res.ReleasesCleared,
		)
	}
	return res, nil
}

// LastRun returns when the last sweep ran and its outcome.
func (hs *HousekeepingScheduler) LastRun() (time.Time, allocation.SweepResult, error) {
	hs.runMu.Lock()
	defer hs.runMu.Unlock()
	return hs.lastRun, hs.last, hs.lastErr
}

// GetNextRunTime returns when the next scheduled sweep will occur.
func (hs *HousekeepingScheduler) GetNextRunTime() time.Time {
	hs.runMu.Lock()
	defer hs.runMu.Unlock()
	if hs.lastRun.IsZero() {
		return time.Now()
	}
	return hs.lastRun.Add(hs.CheckInterval)
}
