package cmd

import (
	"github.com/spf13/cobra"

	"github.com/JakeFAU/website-archiver/internal/report"
)

// newWebsitesCmd lists the tracked websites and their stored liveness flags.
func newWebsitesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "websites",
		Short: "List tracked websites",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a)

			sites, err := a.Store().ListWebsites(cmd.Context())
			if err != nil {
				return err
			}
			report.Websites(cmd.OutOrStdout(), sites)
			return nil
		},
	}
}

// newRunsCmd lists recent archive runs from the run history.
func newRunsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent archive runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a)

			runs, err := a.History().ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			report.Runs(cmd.OutOrStdout(), runs)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to show")
	return cmd
}
