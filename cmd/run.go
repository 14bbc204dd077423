package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/website-archiver/internal/app"
	"github.com/JakeFAU/website-archiver/internal/clock/system"
	"github.com/JakeFAU/website-archiver/internal/report"
)

// newRunCmd creates the 'run' subcommand, which performs a single archive run.
func newRunCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Check and archive every website once",
		Long: `Checks every tracked website, updates changed liveness flags and archives
the live ones under <output_dir>/<id>/<date>. Interrupting the command stops
the in-flight archive processes and prints what finished.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var opts []app.Option
			if date != "" {
				clock, err := system.ParseFixed(date)
				if err != nil {
					return err
				}
				opts = append(opts, app.WithClock(clock))
			}
			a, err := openApp(cmd, opts...)
			if err != nil {
				return err
			}
			defer closeApp(a)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rep, runErr := a.RunOnce(ctx)
			if runErr != nil && !app.IsInterrupted(runErr) {
				return fmt.Errorf("archive run: %w", runErr)
			}
			report.Render(cmd.OutOrStdout(), rep)
			if runErr != nil {
				a.Logger().Warn("archive run interrupted", zap.Error(runErr))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "archive date (YYYY-MM-DD) used for destination directories; defaults to today")
	return cmd
}
