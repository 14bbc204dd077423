package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/website-archiver/internal/scheduler"
)

// newScheduleCmd creates the 'serve' subcommand: cron-driven runs plus the status server.
func newScheduleCmd() *cobra.Command {
	var noServer bool
	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"schedule"},
		Short:   "Run archives on the configured schedule and serve status endpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a)
			cfg := a.Config()

			sched, err := scheduler.New(cfg.Schedule.Cron, func(ctx context.Context) error {
				_, err := a.RunOnce(ctx)
				return err
			}, a.Logger())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return sched.Run(ctx, cfg.Schedule.RunOnStart)
			})
			if !noServer {
				g.Go(func() error {
					return a.Server().ListenAndServe(ctx, cfg.Server.Addr)
				})
			}
			err = g.Wait()
			if errors.Is(err, context.Canceled) {
				err = nil
			}
			a.Logger().Info("shutdown complete", zap.Error(err))
			return err
		},
	}
	cmd.Flags().BoolVar(&noServer, "no-server", false, "do not start the status server")
	return cmd
}
