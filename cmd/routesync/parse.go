package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/route33/routesync/internal/core"
)

// asJSON dumps the full batch instead of the human summary.
var asJSON bool

var parseCmd = &cobra.Command{
	Use:   "parse <file>",
	Short: "Parse an export and report what a sync would see",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		norm, err := loadNormalizer()
		if err != nil {
			return err
		}

		batch, err := parseFile(cmd, args[0], norm)
		if err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(batch)
		}

		printBatchSummary(cmd, args[0], batch)
		return nil
	},
}

func init() {
	parseCmd.Flags().BoolVar(&asJSON, "json", false,
		"emit the full batch as JSON (usable as the previous side of diff)")
}

// parseFile opens and parses one export. A partial batch from a failed
// parse is discarded; the CLI reports only the failure.
func parseFile(cmd *cobra.Command, path string, norm *core.Normalizer) (*core.Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	ctx := cmd.Context()
	batch, err := core.Parse(ctx, f, path, norm)
	if err != nil {
		return nil, err
	}
	return batch, nil
}

func printBatchSummary(cmd *cobra.Command, path string, batch *core.Batch) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\n", path)
	fmt.Fprintf(out, "  rows:          %d\n", batch.Stats.TotalRows)
	fmt.Fprintf(out, "  customers:     %d\n", batch.Stats.UniqueCustomers)
	fmt.Fprintf(out, "  relationships: %d\n", batch.Stats.CustomerItems)
	fmt.Fprintf(out, "  catalog items: %d\n", batch.Stats.UniqueItems)
	fmt.Fprintf(out, "  errors:        %d\n", batch.Stats.Errors)

	for _, pe := range batch.Errors {
		fmt.Fprintf(out, "    row %d: %s\n", pe.RowIndex, pe.Message)
	}
}
