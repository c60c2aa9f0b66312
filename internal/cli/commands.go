package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/warp/seat-engine/allocation"
	"github.com/warp/seat-engine/api"
	"github.com/warp/seat-engine/factory"
	"github.com/warp/seat-engine/seating"
)

// =============================================================================
// SETUP
// =============================================================================

func seedCmd(opts *rootOptions) *cobra.Command {
	var (
		layoutPath string
		reset      bool
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load a floor and its employees",
		Long: `Store seats and users, assigning designated seats to employees without one.

Without --layout the built-in floor is used: 40 designated seats (4 per
batch and squad) and 10 floating seats, with 80 demo employees and an admin.
A layout without "users" is combined with the demo employees.

Examples:
  seatctl seed
  seatctl seed --layout floor3.json --reset`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			users, seats, name := seating.DemoUsers(), seating.DefaultLayout(), "default"
			if layoutPath != "" {
				data, err := os.ReadFile(layoutPath)
				if err != nil {
					return err
				}
				office, err := factory.NewLayoutFactory().ParseOffice(data)
				if err != nil {
					return err
				}
				seats, name = office.Seats, office.Name
				if len(office.Users) > 0 {
					users = office.Users
				}
			}

			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := commandContext(cmd)

			if reset {
				if err := a.Store.Reset(ctx); err != nil {
					return err
				}
			}
			res, err := a.Engine.Seed(ctx, users, seats)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Seeded %q: %d seats, %d users, %d designated seats assigned\n",
				okMark, name, res.Seats, res.Users, res.Assigned)
			return nil
		},
	}
	cmd.Flags().StringVar(&layoutPath, "layout", "", "JSON floor layout file")
	cmd.Flags().BoolVar(&reset, "reset", false, "delete all existing data first")
	return cmd
}

// =============================================================================
// READ COMMANDS
// =============================================================================

func statsCmd(opts *rootOptions) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show daily seat statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			d, err := dateFlag(a, date)
			if err != nil {
				return err
			}
			s, err := a.Engine.DailyStats(commandContext(cmd), d)
			if err != nil {
				return err
			}

			batch := seating.BatchInOffice(d)
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "📊 %s (week %d, batch %d in office)\n\n", s.Date, seating.WeekOfCycle(d), batch)
			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "Total seats\t%d\n", s.TotalSeats)
			fmt.Fprintf(tw, "Designated\t%d\n", s.DesignatedTotal)
			fmt.Fprintf(tw, "Floating\t%d base + %d released = %d\n", s.BaseFloating, s.ReleasedForDate, s.TotalFloating)
			fmt.Fprintf(tw, "Booked\t%d\n", s.Booked)
			fmt.Fprintf(tw, "Available\t%d\n", s.Available)
			fmt.Fprintf(tw, "Floating booked\t%d of %d\n", s.Floating.Booked, s.Floating.Total)
			fmt.Fprintf(tw, "Utilization\t%s%%\n", s.Utilization.Shift(2).StringFixed(1))
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day to report (default today)")
	return cmd
}

func availabilityCmd(opts *rootOptions) *cobra.Command {
	var (
		user, date string
		onlyFree   bool
	)
	cmd := &cobra.Command{
		Use:   "availability",
		Short: "Show seat availability for a user and day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			d, err := dateFlag(a, date)
			if err != nil {
				return err
			}
			snap, err := a.Engine.ComputeAvailability(commandContext(cmd), seating.UserID(user), d)
			if err != nil {
				return err
			}
			printAvailability(cmd.OutOrStdout(), snap, onlyFree)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user ID")
	cmd.Flags().StringVar(&date, "date", "", "day (default today)")
	cmd.Flags().BoolVar(&onlyFree, "free", false, "list available seats only")
	cmd.MarkFlagRequired("user")
	return cmd
}

func printAvailability(w io.Writer, snap allocation.AvailabilitySnapshot, onlyFree bool) {
	inOffice := "remote"
	if snap.IsWorkingDay {
		inOffice = "in office"
	}
	window := "open"
	if !snap.FloatingWindowOpen {
		window = "opens " + snap.FloatingWindowOpensAt.Format("Mon 15:04")
	}
	fmt.Fprintf(w, "%s for %s: %s, floating pool %s (%d/%d free)\n",
		snap.Date, snap.UserID, inOffice, window, snap.Floating.Available, snap.Floating.Total)
	if snap.CurrentBooking != nil {
		fmt.Fprintf(w, "%s booked %s (%s)\n", okMark, snap.CurrentBooking.SeatID, snap.CurrentBooking.Type)
	}
	if snap.HasReleasedOwnSeat {
		fmt.Fprintf(w, "%s own seat released for this day\n", warnMark)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEAT\tTYPE\tSTATE")
	for _, s := range snap.Seats {
		if onlyFree && !s.IsAvailable {
			continue
		}
		state := "free"
		switch {
		case s.BookedByRequestingUser:
			state = "yours"
		case s.IsBooked:
			state = "booked"
		case s.ReleasedForDate:
			state = "free (released)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Seat.Number, kindLabel(s.Seat.Kind), state)
	}
	tw.Flush()
}

func scheduleCmd(opts *rootOptions) *cobra.Command {
	var user, start, end string
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Show the day-by-day schedule for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			var from, to seating.Date
			if start != "" {
				if from, err = dateFlag(a, start); err != nil {
					return err
				}
			}
			if end != "" {
				if to, err = dateFlag(a, end); err != nil {
					return err
				}
			}
			sched, err := a.Engine.WeekSchedule(commandContext(cmd), seating.UserID(user), from, to)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "DATE\tWEEK\tBATCH\tYOU\tMY SEAT\tBOOKINGS")
			for _, d := range sched.Days {
				you := "-"
				if d.IsWorkingDay {
					you = "in"
				}
				seat := ""
				if d.MyBooking != nil {
					seat = string(d.MyBooking.SeatID)
				}
				fmt.Fprintf(tw, "%s %s\t%d\t%d\t%s\t%s\t%d\n",
					d.Date, d.Date.Weekday().String()[:3], d.WeekOfCycle, d.BatchInOffice, you, seat, d.TotalBookings)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user ID")
	cmd.Flags().StringVar(&start, "start", "", "first day (default today)")
	cmd.Flags().StringVar(&end, "end", "", "last day (default start + 14)")
	cmd.MarkFlagRequired("user")
	return cmd
}

func auditCmd(opts *rootOptions) *cobra.Command {
	var (
		actor string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent audit entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			filter := seating.AuditFilter{Limit: limit}
			if actor != "" {
				id := seating.UserID(actor)
				filter.ActorID = &id
			}
			entries, err := a.Store.QueryAudit(commandContext(cmd), filter)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tACTOR\tACTION\tSEAT\tDATE")
			for _, e := range entries {
				actor := string(e.ActorID)
				if actor == "" {
					actor = "system"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					e.Timestamp.Format(time.DateTime), actor, e.Action, e.SeatID, e.Date)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "only entries by this user")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum entries")
	return cmd
}

// =============================================================================
// WRITE COMMANDS
// =============================================================================

// seatRef accepts a seat ID ("seat-D001") or a seat number ("D001").
func seatRef(s string) seating.SeatID {
	if strings.HasPrefix(s, "seat-") {
		return seating.SeatID(s)
	}
	return seating.SeatIDFor(strings.ToUpper(s))
}

func bookCmd(opts *rootOptions) *cobra.Command {
	var user, seat, date, start, end string
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Reserve a seat on behalf of a user",
		Long: `Reserve a seat on behalf of a user.

Examples:
  seatctl book --user b1s1u01 --seat D001 --date 2026-06-02
  seatctl book --user b2s3u04 --seat F003 --start 10:00 --end 16:00`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			d, err := dateFlag(a, date)
			if err != nil {
				return err
			}
			req := allocation.ReserveRequest{UserID: seating.UserID(user), SeatID: seatRef(seat), Date: d}
			if start != "" {
				t, err := seating.ParseTimeOfDay(start)
				if err != nil {
					return err
				}
				req.Start = &t
			}
			if end != "" {
				t, err := seating.ParseTimeOfDay(end)
				if err != nil {
					return err
				}
				req.End = &t
			}

			res, err := a.Engine.Reserve(commandContext(cmd), req)
			if err != nil {
				return err
			}
			b := res.Booking
			fmt.Fprintf(cmd.OutOrStdout(), "%s Booked %s (%s) for %s on %s, %s-%s\n   booking %s\n",
				okMark, res.Seat.Number, kindLabel(res.Seat.Kind), b.UserID, b.Date, b.Start, b.End, b.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user ID")
	cmd.Flags().StringVar(&seat, "seat", "", "seat number or ID")
	cmd.Flags().StringVar(&date, "date", "", "day (default today)")
	cmd.Flags().StringVar(&start, "start", "", "start time HH:MM")
	cmd.Flags().StringVar(&end, "end", "", "end time HH:MM")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("seat")
	return cmd
}

func cancelCmd(opts *rootOptions) *cobra.Command {
	var (
		user    string
		asAdmin bool
	)
	cmd := &cobra.Command{
		Use:   "cancel <booking-id>",
		Short: "Cancel a booking",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Engine.Cancel(commandContext(cmd), seating.BookingID(args[0]), seating.UserID(user), asAdmin)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", okMark, res.Message, statusLabel(res.Booking.Status))
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user cancelling")
	cmd.Flags().BoolVar(&asAdmin, "admin", false, "cancel with admin rights")
	cmd.MarkFlagRequired("user")
	return cmd
}

func releaseCmd(opts *rootOptions) *cobra.Command {
	var user, date string
	cmd := &cobra.Command{
		Use:   "release",
		Short: "Release a user's designated seat for a day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			d, err := dateFlag(a, date)
			if err != nil {
				return err
			}
			res, err := a.Engine.Release(commandContext(cmd), seating.UserID(user), d)
			if err != nil {
				return err
			}
			mark := okMark
			if res.AlreadyReleased {
				mark = warnMark
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s on %s\n", mark, res.Message, res.Seat.Number, d)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "seat owner")
	cmd.Flags().StringVar(&date, "date", "", "day (default today)")
	cmd.MarkFlagRequired("user")
	return cmd
}

func sweepCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Complete past bookings and clear expired releases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Engine.Sweep(commandContext(cmd))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Swept before %s: %d bookings completed, %d releases cleared\n",
				okMark, res.Today, res.BookingsComplete, res.ReleasesCleared)
			return nil
		},
	}
}

// =============================================================================
// TOKENS
// =============================================================================

func tokenCmd(opts *rootOptions) *cobra.Command {
	var (
		user, role string
		ttl        time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development JWT signed with JWT_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return errors.New("JWT_SECRET is not set")
			}
			r := seating.Role(strings.ToLower(role))
			if r != seating.RoleEmployee && r != seating.RoleAdmin {
				return fmt.Errorf("unknown role %q", role)
			}
			token, err := api.IssueToken([]byte(cfg.JWTSecret), seating.UserID(user), r, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "subject user ID")
	cmd.Flags().StringVar(&role, "role", string(seating.RoleEmployee), "employee or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	cmd.MarkFlagRequired("user")
	return cmd
}
