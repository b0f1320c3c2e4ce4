// Package main implements the watch command for continuous local
// reconciliation over a changing ingest directory.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/fleetrecon/internal/config"
	"github.com/fyrsmithlabs/fleetrecon/internal/export"
	"github.com/fyrsmithlabs/fleetrecon/internal/ingest"
	"github.com/fyrsmithlabs/fleetrecon/internal/logging"
	"github.com/fyrsmithlabs/fleetrecon/internal/pipeline"
	"github.com/fyrsmithlabs/fleetrecon/internal/watch"
)

var (
	// watchConfigPath is the config file for watch mode
	watchConfigPath string
	// watchDirFlag overrides the watched directory
	watchDirFlag string
	// watchDebounce overrides the debounce window
	watchDebounce time.Duration
)

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVar(&watchConfigPath, "config", "", "path to config file (default ~/.config/fleetrecon/config.yaml)")
	watchCmd.Flags().StringVar(&watchDirFlag, "dir", "", "directory to watch (defaults to the ingest directory)")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 0, "debounce window for change bursts (default from config)")
}

// watchCmd re-runs reconciliation whenever the CSV exports change
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-run reconciliation when the CSV exports change",
	Long: `Watch the ingest directory and re-run the reconciliation pass whenever a
CSV export is created or rewritten. Changes are debounced so one refresh
of all three files triggers a single run. Runs locally like frc run.

Examples:
  # Watch the configured ingest directory
  frc watch

  # Watch a different directory with a longer debounce
  frc watch --dir ./exports --debounce 5s`,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithFile(watchConfigPath)
	if err != nil {
		return err
	}

	cfg.Watch.Enabled = true
	if watchDirFlag != "" {
		cfg.Watch.Dir = watchDirFlag
	}
	if cfg.Watch.Dir == "" {
		cfg.Watch.Dir = filepath.Dir(cfg.Ingest.Installations)
	}
	if watchDebounce > 0 {
		cfg.Watch.Debounce = config.Duration(watchDebounce)
	}

	svc, err := buildService(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	exporter := export.NewWriter(cfg.Export, logging.Nop())

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	watcher, err := watch.New(cfg.Watch, logging.Nop())
	if err != nil {
		return err
	}
	if err := watcher.Start(ctx); err != nil {
		return err
	}
	defer watcher.Stop()

	fmt.Printf("Watching %s (debounce %s). Press Ctrl-C to stop.\n",
		cfg.Watch.Dir, cfg.Watch.Debounce.Duration())

	// Initial pass so the report reflects the files already on disk
	if err := watchPass(ctx, cfg, svc, exporter); err != nil {
		fmt.Fprintf(os.Stderr, "frc: %v\n", err)
	}

	watcher.Run(ctx, func(ctx context.Context, ev watch.Event) error {
		fmt.Printf("\nChanged: %s\n", strings.Join(ev.Paths, ", "))
		if err := watchPass(ctx, cfg, svc, exporter); err != nil {
			fmt.Fprintf(os.Stderr, "frc: %v\n", err)
		}
		return nil
	})

	return nil
}

// watchPass runs one reconciliation pass and prints the report.
func watchPass(ctx context.Context, cfg *config.Config, svc pipeline.Service, exporter *export.Writer) error {
	sources, err := ingest.LoadSources(cfg.Ingest)
	if err != nil {
		return fmt.Errorf("load sources: %w", err)
	}

	res, err := svc.Run(ctx, &pipeline.RunRequest{
		Installations: sources.Installations,
		Incidents:     sources.Incidents,
		Returns:       sources.Returns,
		Trigger:       "watch",
		RunID:         pipeline.NewRunID(time.Now().UTC()),
	})
	if err != nil {
		return fmt.Errorf("run pipeline: %w", err)
	}

	manifest, err := exporter.Write(ctx, res)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}

	for _, line := range formatReport(res, manifest, false) {
		fmt.Println(line)
	}
	return nil
}
