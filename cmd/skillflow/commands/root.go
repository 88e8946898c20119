package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "skillflow",
		Short: "Skillflow - Automation Orchestration Core",
		Long: `Skillflow admits named intents exactly once and executes them as ordered
chains of idempotent skills over a shared context.

Features:
  - Fingerprint-based idempotency admission
  - Ordered skill chains with last-writer-wins context merging
  - Durable execution with classified retries and saga compensation
  - SQLite-backed run status with a recent-runs index
  - Prometheus metrics and optional OpenTelemetry tracing`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newSubmitCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newRecentCommand())
	rootCmd.AddCommand(newWorkerCommand())
	rootCmd.AddCommand(newPurgeCommand())

	return rootCmd
}
