// Package main implements the board command, a terminal dashboard over the
// fleetrecond stats API.
package main

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/fleetrecon/internal/monitor"
)

var (
	// boardInterval is how often the dashboard polls /api/v1/stats.
	boardInterval time.Duration
)

func init() {
	rootCmd.AddCommand(boardCmd)

	boardCmd.Flags().DurationVar(&boardInterval, "interval", 5*time.Second, "stats polling interval")
}

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Show the live reconciliation dashboard",
	Long: `Show a terminal dashboard over the fleetrecond stats API: run totals,
the last run's fleet summary, a duration sparkline, and validity bars.

Press q to quit, r to refresh immediately.

Examples:
  # Dashboard against the default server
  frc board

  # Faster polling against a remote server
  frc board --server http://fleet.internal:9090 --interval 2s`,
	RunE: runBoard,
}

func runBoard(cmd *cobra.Command, args []string) error {
	model := monitor.NewModel(serverURL, boardInterval)
	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("dashboard error: %w", err)
	}
	return nil
}
