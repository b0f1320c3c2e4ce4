// Package main implements the frc CLI for fleet reconciliation runs and
// manual operations against the fleetrecond HTTP server.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// version is stamped at build time via -ldflags.
var version = "dev"

// serverURL is shared by every subcommand that talks to fleetrecond.
var serverURL string

var rootCmd = &cobra.Command{
	Use:   "frc",
	Short: "CLI for fleet device-lifecycle reconciliation",
	Long: `frc is a command-line interface for the fleetrecon reconciliation pipeline.
It runs local reconciliation passes over CSV exports and talks to the
fleetrecond HTTP server for scrubbing, health checks, and the dashboard.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:9090", "fleetrecond server URL")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
