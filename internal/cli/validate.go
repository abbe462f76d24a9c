package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/couchcryptid/arvig-etl/internal/adapter/csvfile"
	"github.com/couchcryptid/arvig-etl/internal/domain"
	"github.com/couchcryptid/arvig-etl/internal/timeseries"
	"github.com/spf13/cobra"
)

var validateDir string

// errValidation is returned when at least one check failed.
var errValidation = errors.New("validation failed")

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the exported panel CSVs for integrity",
	Long: `validate reads panel_<granularity>.csv from the panel directory and checks
that every locality carries the same dense grid, that states, regions and
districts sum to the country, that "All" covers the named categories and
that every rate matches its count and population.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		dir := validateDir
		if dir == "" {
			cfg, _, err := setup()
			if err != nil {
				return err
			}
			dir = cfg.PanelCSVDir
		}
		return validatePanels(cmd.OutOrStdout(), dir, domain.Granularities())
	},
}

func init() {
	validateCmd.Flags().StringVar(&validateDir, "dir", "", "panel directory (default PANEL_CSV_DIR)")
	rootCmd.AddCommand(validateCmd)
}

func validatePanels(w io.Writer, dir string, granularities []domain.Granularity) error {
	fmt.Fprintln(w, "=== ARVIG Panel Integrity Validation ===")
	fmt.Fprintln(w)

	allPassed := true
	var failed []*timeseries.Check
	for _, g := range granularities {
		cells, err := csvfile.ReadPanel(csvfile.PanelPath(dir, g), g)
		if err != nil {
			return fmt.Errorf("load %s panel: %w", g, err)
		}
		fmt.Fprintf(w, "%s panel: %d cells\n", g, len(cells))
		for _, c := range timeseries.Verify(cells) {
			status := "PASS"
			if !c.Passed() {
				status = fmt.Sprintf("FAIL (%d errors)", len(c.Problems))
				allPassed = false
				c.Name = string(g) + ": " + c.Name
				failed = append(failed, c)
			}
			fmt.Fprintf(w, "  %-34s %s\n", c.Name, status)
		}
	}

	for _, c := range failed {
		fmt.Fprintf(w, "\n--- %s ---\n", c.Name)
		for i, p := range c.Problems {
			if i == 20 {
				fmt.Fprintf(w, "  ... and %d more\n", len(c.Problems)-i)
				break
			}
			fmt.Fprintf(w, "  %s\n", p)
		}
	}

	fmt.Fprintln(w)
	if !allPassed {
		fmt.Fprintln(w, "Validation FAILED.")
		return errValidation
	}
	fmt.Fprintln(w, "All checks passed.")
	return nil
}
