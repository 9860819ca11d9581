package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/example/reservationd/internal/config"
	"github.com/spf13/cobra"
)

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one pending expiry pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
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

			res, err := a.sweeper().Sweep(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "found=%d cancelled=%d skipped=%d failed=%d\n",
				res.Found, res.Cancelled, res.Skipped, res.Failed)
			return nil
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			d, err := openDB(context.Background(), cfg, true)
			if err != nil {
				return err
			}
			d.Close()
			fmt.Fprintln(os.Stdout, "migrations applied")
			return nil
		},
	}
}
