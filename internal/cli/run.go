package cli

import (
	"context"
	"encoding/json"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/arvig-etl/internal/observability"
	"github.com/spf13/cobra"
)

var (
	runScrape bool
	runReport bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Refresh the panels once and exit",
	Long: `run loads the raw chronicle years, cleans, geocodes and merges them with
the district boundaries, and writes the panels to every configured sink.

With --scrape, years missing from the data directory and the current year
are fetched from the chronicle first.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := buildApp(ctx, cfg, logger, observability.NewMetrics(), runScrape)
		if err != nil {
			return err
		}
		defer a.close()

		report, err := a.pipeline.Refresh(ctx)
		if err != nil {
			return err
		}
		if !runReport {
			return nil
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	runCmd.Flags().BoolVar(&runScrape, "scrape", false, "fetch missing years from the chronicle first")
	runCmd.Flags().BoolVar(&runReport, "report", false, "print the refresh report as JSON")
	rootCmd.AddCommand(runCmd)
}
