package cmd

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/reservationd/internal/auth"
	"github.com/example/reservationd/internal/config"
	"github.com/example/reservationd/internal/web"
	"github.com/spf13/cobra"
)

// noLogin refuses every login; used when there is no users table.
type noLogin struct{}

func (noLogin) Authenticate(context.Context, string, string) (int64, error) {
	return 0, auth.ErrInvalidCredentials
}

func newServerCmd() *cobra.Command {
	var (
		migrateUp bool
		storeKind string
		noSweep   bool
	)

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the HTTP API and the pending expiry sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			if err := cfg.RequireCookieKeys(); err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := buildApp(ctx, cfg, storeKind, migrateUp)
			if err != nil {
				return err
			}
			defer a.close()

			authStore := auth.NewStore(a.db, cfg.CookieHashKey, cfg.CookieBlockKey)
			var users web.Authenticator = authStore
			if a.db == nil {
				users = noLogin{}
			}

			if !noSweep {
				s := a.sweeper()
				go func() {
					if err := s.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
						log.Printf("scheduler: stopped: %v", err)
					}
				}()
			}

			ws := &web.Server{Auth: authStore, Users: users, Reservations: a.manager}
			return web.Start(ctx, cfg.ListenAddr, ws.Routes())
		},
	}

	cmd.Flags().BoolVar(&migrateUp, "migrate", true, "run database migrations on startup")
	cmd.Flags().Lookup("migrate").NoOptDefVal = "true"
	cmd.Flags().StringVar(&storeKind, "store", "postgres", "reservation store: postgres or memory")
	cmd.Flags().BoolVar(&noSweep, "no-sweep", false, "do not run the pending expiry sweeper in this process")
	return cmd
}
