package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/example/reservationd/internal/config"
	"github.com/example/reservationd/internal/reservation"
	"github.com/spf13/cobra"
)

func newReservationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "reservation",
		Aliases: []string{"res"},
		Short:   "Manage reservations without the HTTP API",
	}
	cmd.AddCommand(newReservationCreateCmd())
	cmd.AddCommand(newReservationGetCmd())
	cmd.AddCommand(newReservationListCmd())
	cmd.AddCommand(newReservationStatusCmd())
	cmd.AddCommand(newReservationCancelCmd())
	return cmd
}

// withManager runs fn against a postgres-backed manager.
func withManager(fn func(ctx context.Context, m *reservation.Manager) error) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	ctx := context.Background()
	a, err := buildApp(ctx, cfg, "postgres", false)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a.manager)
}

func printReservation(w io.Writer, r reservation.Reservation) {
	fmt.Fprintf(w, "id=%d restaurant=%s table=%s time=%s party=%d status=%s user=%s\n",
		r.ID, r.RestaurantID, r.TableID, r.ReservationTime.Format(time.RFC3339), r.PartySize, r.Status, r.UserID)
}

func newReservationCreateCmd() *cobra.Command {
	var (
		userID   string
		req      reservation.Request
		whenFlag string
	)
	c := &cobra.Command{
		Use:   "create",
		Short: "Create a PENDING reservation after admission checks",
		RunE: func(cmd *cobra.Command, args []string) error {
			at, err := time.Parse(time.RFC3339, whenFlag)
			if err != nil {
				return fmt.Errorf("invalid --time (want RFC3339): %w", err)
			}
			req.ReservationTime = at
			return withManager(func(ctx context.Context, m *reservation.Manager) error {
				r, err := m.Create(ctx, req, userID)
				if err != nil {
					return err
				}
				printReservation(os.Stdout, r)
				return nil
			})
		},
	}
	c.Flags().StringVar(&userID, "user-id", "", "user id")
	c.Flags().StringVar(&req.RestaurantID, "restaurant-id", "", "restaurant id")
	c.Flags().StringVar(&req.TableID, "table-id", "", "table id")
	c.Flags().StringVar(&whenFlag, "time", "", "reservation time, RFC3339")
	c.Flags().IntVar(&req.PartySize, "party-size", 2, "party size")
	c.Flags().StringVar(&req.SpecialRequests, "special-requests", "", "free text, up to 500 characters")
	for _, f := range []string{"user-id", "restaurant-id", "table-id", "time"} {
		_ = c.MarkFlagRequired(f)
	}
	return c
}

func newReservationGetCmd() *cobra.Command {
	var id int64
	c := &cobra.Command{
		Use:   "get",
		Short: "Show one reservation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(func(ctx context.Context, m *reservation.Manager) error {
				r, err := m.Get(ctx, id)
				if err != nil {
					return err
				}
				printReservation(os.Stdout, r)
				return nil
			})
		},
	}
	c.Flags().Int64Var(&id, "id", 0, "reservation id")
	_ = c.MarkFlagRequired("id")
	return c
}

func newReservationListCmd() *cobra.Command {
	var userID, restaurantID, status, from, to string
	c := &cobra.Command{
		Use:   "list",
		Short: "List reservations for a user or a restaurant",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (userID == "") == (restaurantID == "") {
				return fmt.Errorf("exactly one of --user-id or --restaurant-id is required")
			}
			return withManager(func(ctx context.Context, m *reservation.Manager) error {
				var (
					rs  []reservation.Reservation
					err error
				)
				switch {
				case userID != "":
					rs, err = m.ListByUser(ctx, userID)
				case status != "":
					var st reservation.Status
					if st, err = reservation.ParseStatus(status); err == nil {
						rs, err = m.ListByStatus(ctx, restaurantID, st)
					}
				case from != "" || to != "":
					var f, t time.Time
					if f, err = time.Parse(time.RFC3339, from); err != nil {
						return fmt.Errorf("invalid --from: %w", err)
					}
					if t, err = time.Parse(time.RFC3339, to); err != nil {
						return fmt.Errorf("invalid --to: %w", err)
					}
					rs, err = m.ListByTimeRange(ctx, restaurantID, f, t)
				default:
					rs, err = m.ListByRestaurant(ctx, restaurantID)
				}
				if err != nil {
					return err
				}
				for _, r := range rs {
					printReservation(os.Stdout, r)
				}
				return nil
			})
		},
	}
	c.Flags().StringVar(&userID, "user-id", "", "list a user's reservations")
	c.Flags().StringVar(&restaurantID, "restaurant-id", "", "list a restaurant's reservations")
	c.Flags().StringVar(&status, "status", "", "filter restaurant reservations by status")
	c.Flags().StringVar(&from, "from", "", "range start, RFC3339 (with --to)")
	c.Flags().StringVar(&to, "to", "", "range end, RFC3339 (with --from)")
	return c
}

func newReservationStatusCmd() *cobra.Command {
	var (
		id     int64
		status string
	)
	c := &cobra.Command{
		Use:   "status",
		Short: "Move a reservation to a new status",
		RunE: func(cmd *cobra.Command, args []string) error {
			to, err := reservation.ParseStatus(status)
			if err != nil {
				return err
			}
			return withManager(func(ctx context.Context, m *reservation.Manager) error {
				r, err := m.UpdateStatus(ctx, id, to)
				if err != nil {
					return err
				}
				printReservation(os.Stdout, r)
				return nil
			})
		},
	}
	c.Flags().Int64Var(&id, "id", 0, "reservation id")
	c.Flags().StringVar(&status, "status", "", "CONFIRMED, CANCELLED, COMPLETED or NO_SHOW")
	_ = c.MarkFlagRequired("id")
	_ = c.MarkFlagRequired("status")
	return c
}

func newReservationCancelCmd() *cobra.Command {
	var id int64
	c := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel a reservation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(func(ctx context.Context, m *reservation.Manager) error {
				r, err := m.Cancel(ctx, id)
				if err != nil {
					return err
				}
				printReservation(os.Stdout, r)
				return nil
			})
		},
	}
	c.Flags().Int64Var(&id, "id", 0, "reservation id")
	_ = c.MarkFlagRequired("id")
	return c
}
