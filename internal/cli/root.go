// Package cli implements the arvig command line.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/couchcryptid/arvig-etl/internal/config"
	"github.com/couchcryptid/arvig-etl/internal/observability"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X ...cli.version=...".
var version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "arvig",
	Short: "ARVIG - anti-refugee violence in Germany",
	Long: `arvig scrapes the public chronicle of anti-refugee incidents, cleans and
geocodes the records, assigns them to districts and publishes dense
incident panels per year, month and week.

Configuration comes from environment variables and an optional YAML file;
environment variables win.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "arvig %s\n", version)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", os.Getenv("CONFIG_FILE"), "YAML config file (env CONFIG_FILE)")
	rootCmd.AddCommand(versionCmd)
}

// setup loads the configuration and builds the logger.
func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, observability.NewLogger(cfg), nil
}
