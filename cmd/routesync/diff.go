package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/route33/routesync/internal/core"
)

// diffJSON dumps the full change sets instead of the human summary.
var diffJSON bool

var diffCmd = &cobra.Command{
	Use:   "diff <previous.json> <file>",
	Short: "Diff a fresh export against a saved batch dump",
	Long: `Diff compares a fresh export against the JSON batch produced by
"routesync parse --json". The output mirrors what the sync service would
stage for review: additions, removals and field-level updates.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		norm, err := loadNormalizer()
		if err != nil {
			return err
		}

		previous, err := loadBatchDump(args[0])
		if err != nil {
			return err
		}

		current, err := parseFile(cmd, args[1], norm)
		if err != nil {
			return err
		}

		changes, err := core.Diff(previous.Customers, current.Customers, core.DefaultDiffPolicy())
		if err != nil {
			return err
		}

		if diffJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(changes)
		}

		printChangeSummary(cmd, changes)
		return nil
	},
}

func init() {
	diffCmd.Flags().BoolVar(&diffJSON, "json", false, "emit the full change sets as JSON")
}

// loadBatchDump reads a batch previously written by "parse --json".
func loadBatchDump(path string) (*core.Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	var batch core.Batch
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("parse batch dump %s: %w", path, err)
	}
	return &batch, nil
}

func printChangeSummary(cmd *cobra.Command, changes *core.ChangeSets) {
	out := cmd.OutOrStdout()
	counts := changes.Counts()
	fmt.Fprintf(out, "additions: %d  removals: %d  updates: %d  total: %d\n",
		counts.Additions, counts.Removals, counts.Updates, counts.Total)

	for _, c := range changes.Additions {
		fmt.Fprintf(out, "  + %d %s (route %d, %s)\n",
			c.CustomerNumber, c.AccountName, c.RouteNumber, c.RiskLevel)
	}
	for _, c := range changes.Removals {
		fmt.Fprintf(out, "  - %d %s (route %d, %s)\n",
			c.CustomerNumber, c.AccountName, c.RouteNumber, c.RiskLevel)
	}
	for _, c := range changes.Updates {
		fmt.Fprintf(out, "  ~ %d %s (%s)\n", c.CustomerNumber, c.AccountName, c.RiskLevel)
		for _, fc := range c.Changes {
			fmt.Fprintf(out, "      %s: %q -> %q\n", fc.Field, fc.OldValue, fc.NewValue)
		}
	}
}
