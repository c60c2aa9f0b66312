// Package cli implements seatctl, the operator command line for the seat
// allocation engine. Every command opens the same store the server uses.
package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/warp/seat-engine/config"
	"github.com/warp/seat-engine/internal/app"
	"github.com/warp/seat-engine/logging"
	"github.com/warp/seat-engine/seating"
)

type rootOptions struct {
	envFile string
	dbPath  string
	verbose bool
}

// NewRootCmd returns the seatctl command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "seatctl",
		Short:         "Operate the seat allocation engine",
		Long:          `Seed floors, inspect daily allocation, book on behalf of users and run housekeeping.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file to load before the environment")
	cmd.PersistentFlags().StringVar(&opts.dbPath, "db", "", "SQLite database path (default from DB_PATH)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log engine activity to stderr")

	cmd.AddCommand(seedCmd(opts))
	cmd.AddCommand(statsCmd(opts))
	cmd.AddCommand(availabilityCmd(opts))
	cmd.AddCommand(bookCmd(opts))
	cmd.AddCommand(cancelCmd(opts))
	cmd.AddCommand(releaseCmd(opts))
	cmd.AddCommand(scheduleCmd(opts))
	cmd.AddCommand(sweepCmd(opts))
	cmd.AddCommand(auditCmd(opts))
	cmd.AddCommand(tokenCmd(opts))
	return cmd
}

func (o *rootOptions) config() (config.Config, error) {
	cfg, err := config.Load(o.envFile)
	if err != nil {
		return config.Config{}, err
	}
	if o.dbPath != "" {
		cfg.DBPath = o.dbPath
	}
	return cfg, nil
}

// open loads config and builds the App. Callers must Close it.
func (o *rootOptions) open(cmd *cobra.Command) (*app.App, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, err
	}
	level := "warn"
	if o.verbose {
		level = "debug"
	}
	logger := logging.New(level, logging.FormatText, cmd.ErrOrStderr())
	return app.Open(commandContext(cmd), cfg, logger)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// dateFlag parses an optional YYYY-MM-DD flag value; empty means today.
func dateFlag(a *app.App, raw string) (seating.Date, error) {
	if raw == "" {
		return a.Engine.Today(), nil
	}
	d, err := seating.ParseDate(raw)
	if err != nil {
		return seating.Date{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", raw)
	}
	return d, nil
}

var (
	okMark   = color.New(color.FgHiGreen).Sprint("✓")
	warnMark = color.New(color.FgYellow).Sprint("!")
)

func kindLabel(k seating.SeatKind) string {
	switch k {
	case seating.KindDesignated:
		return color.New(color.FgHiBlue).Sprint(k.String())
	case seating.KindFloating:
		return color.New(color.FgHiMagenta).Sprint(k.String())
	}
	return k.String()
}

func statusLabel(s seating.BookingStatus) string {
	switch s {
	case seating.StatusActive:
		return color.New(color.FgHiGreen).Sprint(s.String())
	case seating.StatusCancelled:
		return color.New(color.FgRed).Sprint(s.String())
	case seating.StatusCompleted:
		return color.New(color.FgHiBlack).Sprint(s.String())
	}
	return s.String()
}
