package main

import (
	"github.com/spf13/cobra"

	"github.com/route33/routesync/internal/core"
	"github.com/route33/routesync/internal/logging"
)

// mappingsFile optionally overrides the built-in lookup tables.
var mappingsFile string

// logLevel controls diagnostic output.
var logLevel string

var rootCmd = &cobra.Command{
	Use:   "routesync",
	Short: "Inspect and diff customer master exports offline",
	Long: `routesync parses CustomerMasterAnalysisReport exports (.csv or .xlsx),
reports what a sync would see, and diffs a fresh export against a saved
batch dump. It never connects to the database; use the sync service to
stage and apply changes.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Setup(logLevel, "text")
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&mappingsFile, "mappings", "",
		"YAML file overriding the built-in plant/frequency/category tables")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn",
		"log level: debug, info, warn, error")

	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(diffCmd)
}

// loadNormalizer builds a Normalizer from --mappings, or the defaults.
func loadNormalizer() (*core.Normalizer, error) {
	m := core.DefaultMappings()
	if mappingsFile != "" {
		var err error
		m, err = core.LoadMappings(mappingsFile)
		if err != nil {
			return nil, err
		}
	}
	return core.NewNormalizer(m), nil
}
