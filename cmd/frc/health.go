// Package main implements the health command for probing fleetrecond
// liveness.
package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	httpapi "github.com/fyrsmithlabs/fleetrecon/internal/http"
)

func init() {
	rootCmd.AddCommand(healthCmd)
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check fleetrecond server health",
	Long: `Probe the fleetrecond HTTP server and report its status.

Examples:
  frc health
  frc health --server http://fleet.internal:9090`,
	RunE: runHealth,
}

func runHealth(cmd *cobra.Command, args []string) error {
	var resp httpapi.HealthResponse
	if err := newAPIClient(5*time.Second).getJSON(cmd.Context(), "/health", &resp); err != nil {
		return fmt.Errorf("fleetrecond at %s is unreachable: %w", serverURL, err)
	}

	fmt.Printf("%s: %s\n", serverURL, resp.Status)
	return nil
}
