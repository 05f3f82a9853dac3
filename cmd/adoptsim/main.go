package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// Set via ldflags at build time.
var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "adoptsim",
		Short: "Adoption simulation and design exploration",
		Long: `adoptsim estimates how a group of users will respond to a feature.

It runs Monte Carlo simulations of persona populations against a feature
scorecard, and beam-searches scorecard changes that move the population's
success rate toward a goal.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	rootCmd.PersistentFlags().String("root", ".", "Project root directory")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: info, debug or trace (overrides config)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newInitCmd(),
		newSimulateCmd(),
		newExploreCmd(),
		newPathCmd(),
		newListCmd(),
		newShowCmd(),
		newDeleteCmd(),
		newGraphCmd(),
		newValidateCmd(),
		newExportCmd(),
		newBackupCmd(),
		newImportCmd(),
		newConfigCmd(),
		newMCPServerCmd(),
	)

	return rootCmd
}

// writeJSON encodes v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func valueOrDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
