package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Download raw chronicle years into the data directory",
	Long: `scrape writes attacks_YYYY.csv for every year from FIRST_YEAR (but not
before the chronicle's first year) to LAST_YEAR. Years already on disk are
skipped, so an interrupted scrape resumes where it stopped.`,
	Args: cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		from := max(cfg.FirstYear, cfg.ChronicleFirstYear)
		logger.Info("scraping chronicle", "from", from, "to", cfg.LastYear, "dir", cfg.DataDir)
		return newChronicleClient(cfg, logger).SaveYears(ctx, cfg.DataDir, from, cfg.LastYear)
	},
}

func init() {
	rootCmd.AddCommand(scrapeCmd)
}
