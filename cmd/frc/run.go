// Package main implements the run and validate commands for local
// reconciliation passes over CSV exports, no fleetrecond server required.
package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/fleetrecon/internal/config"
	"github.com/fyrsmithlabs/fleetrecon/internal/dates"
	"github.com/fyrsmithlabs/fleetrecon/internal/export"
	"github.com/fyrsmithlabs/fleetrecon/internal/ingest"
	"github.com/fyrsmithlabs/fleetrecon/internal/logging"
	"github.com/fyrsmithlabs/fleetrecon/internal/pipeline"
	"github.com/fyrsmithlabs/fleetrecon/internal/scrub"
)

var (
	// runConfigPath is the config file for local runs
	runConfigPath string
	// runInstallations, runIncidents, runReturns override the configured CSV paths
	runInstallations string
	runIncidents     string
	runReturns       string
	// runExportDir overrides the configured export directory
	runExportDir string
	// runNoExport skips writing export artifacts
	runNoExport bool
	// runTimings prints per-stage timings in the report
	runTimings bool
)

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)

	runCmd.Flags().StringVar(&runConfigPath, "config", "", "path to config file (default ~/.config/fleetrecon/config.yaml)")
	runCmd.Flags().StringVar(&runInstallations, "installations", "", "installations CSV (overrides config)")
	runCmd.Flags().StringVar(&runIncidents, "incidents", "", "incidents CSV (overrides config)")
	runCmd.Flags().StringVar(&runReturns, "returns", "", "returns CSV (overrides config)")
	runCmd.Flags().StringVar(&runExportDir, "out", "", "export directory (overrides config)")
	runCmd.Flags().BoolVar(&runNoExport, "no-export", false, "skip writing export artifacts")
	runCmd.Flags().BoolVar(&runTimings, "timings", false, "print per-stage timings")

	validateCmd.Flags().StringVar(&runConfigPath, "config", "", "path to config file (default ~/.config/fleetrecon/config.yaml)")
	validateCmd.Flags().StringVar(&runInstallations, "installations", "", "installations CSV (overrides config)")
	validateCmd.Flags().StringVar(&runIncidents, "incidents", "", "incidents CSV (overrides config)")
	validateCmd.Flags().StringVar(&runReturns, "returns", "", "returns CSV (overrides config)")
}

// runCmd runs a full reconciliation pass locally
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a reconciliation pass over the configured CSV exports",
	Long: `Run a full reconciliation pass locally: load the three CSV exports,
reconcile them into per-device lifecycle records, write the export
artifacts, and print a run report.

Examples:
  # Run with the configured sources
  frc run

  # Run over explicit files into an explicit directory
  frc run --installations inst.csv --incidents inc.csv --returns ret.csv --out ./out

  # Run without writing artifacts
  frc run --no-export --timings`,
	RunE: runRun,
}

// validateCmd checks config and source bindings without reconciling
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate config and source field bindings",
	Long: `Load the configuration and the three CSV exports, then check that every
configured field resolves to a column. Nothing is reconciled or written.

Examples:
  # Validate the configured sources
  frc validate

  # Validate explicit files
  frc validate --installations inst.csv --incidents inc.csv --returns ret.csv`,
	RunE: runValidate,
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig()
	if err != nil {
		return err
	}

	svc, err := buildService(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	var (
		sources  *ingest.Sources
		res      *pipeline.Result
		manifest *export.Manifest
	)

	steps := []struct {
		name string
		fn   func() error
	}{
		{"load sources", func() error {
			sources, err = ingest.LoadSources(cfg.Ingest)
			return err
		}},
		{"reconcile", func() error {
			res, err = svc.Run(cmd.Context(), &pipeline.RunRequest{
				Installations: sources.Installations,
				Incidents:     sources.Incidents,
				Returns:       sources.Returns,
				Trigger:       "cli",
				RunID:         pipeline.NewRunID(time.Now().UTC()),
			})
			return err
		}},
		{"export", func() error {
			if runNoExport {
				return nil
			}
			manifest, err = export.NewWriter(cfg.Export, logging.Nop()).Write(cmd.Context(), res)
			return err
		}},
	}

	bar := progressbar.Default(int64(len(steps)))
	for _, step := range steps {
		if err := step.fn(); err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
		_ = bar.Add(1)
	}

	for _, line := range formatReport(res, manifest, runTimings) {
		fmt.Println(line)
	}

	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig()
	if err != nil {
		return err
	}

	sources, err := ingest.LoadSources(cfg.Ingest)
	if err != nil {
		return err
	}

	fmt.Printf("Config: OK\n")
	fmt.Printf("Rows read: %d installations, %d incidents, %d returns\n",
		sources.Installations.Len(), sources.Incidents.Len(), sources.Returns.Len())

	svc, err := buildService(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.Validate(cmd.Context(), &pipeline.RunRequest{
		Installations: sources.Installations,
		Incidents:     sources.Incidents,
		Returns:       sources.Returns,
	}); err != nil {
		return fmt.Errorf("field bindings: %w", err)
	}

	fmt.Printf("Field bindings: OK\n")
	return nil
}

// loadRunConfig loads the config file and applies the CLI path overrides.
func loadRunConfig() (*config.Config, error) {
	cfg, err := config.LoadWithFile(runConfigPath)
	if err != nil {
		return nil, err
	}
	if runInstallations != "" {
		cfg.Ingest.Installations = runInstallations
	}
	if runIncidents != "" {
		cfg.Ingest.Incidents = runIncidents
	}
	if runReturns != "" {
		cfg.Ingest.Returns = runReturns
	}
	if runExportDir != "" {
		cfg.Export.Dir = runExportDir
	}
	return cfg, nil
}

// buildService wires a pipeline service with a silent logger. The report
// lines are the CLI's output; pipeline logs stay out of the way.
func buildService(cfg *config.Config) (pipeline.Service, error) {
	scrubber, err := scrub.New(scrub.Options{
		ProjectPath: cfg.Scrub.ProjectPath,
		UserPath:    cfg.Scrub.UserPath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create scrubber: %w", err)
	}

	pcfg, err := pipeline.FromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline config: %w", err)
	}

	return pipeline.New(pcfg, scrubber, logging.Nop())
}

// formatReport renders the post-run report lines.
func formatReport(res *pipeline.Result, manifest *export.Manifest, timings bool) []string {
	mergedRows := 0
	if res.Merged != nil {
		mergedRows = res.Merged.Len()
	}

	lines := []string{
		fmt.Sprintf("Run: %s (%s) in %s", res.RunID, res.Trigger, res.Duration.Round(time.Millisecond)),
		fmt.Sprintf("Rows read: %d installations, %d incidents, %d returns",
			res.SourceRows.Installations, res.SourceRows.Incidents, res.SourceRows.Returns),
		fmt.Sprintf("Rows written (merged): %d", mergedRows),
		fmt.Sprintf("Duplicates removed: %d", res.DuplicatesRemoved),
		fmt.Sprintf("Invalid serials: %d", res.InvalidSerials),
	}

	lines = append(lines, formatDateFailures(res.DateStats)...)

	lines = append(lines, fmt.Sprintf("Devices: %d (%d with incident, %d with return)",
		res.Summary.TotalDevices, res.Summary.DevicesWithIncident, res.Summary.DevicesWithReturn))
	if res.Summary.MTTFDays != nil {
		lines = append(lines, fmt.Sprintf("MTTF: %.1f days", *res.Summary.MTTFDays))
	}
	if res.Summary.AnomalousTTF > 0 {
		lines = append(lines, fmt.Sprintf("Anomalous TTF: %d", res.Summary.AnomalousTTF))
	}
	if res.ScrubFindings > 0 {
		lines = append(lines, fmt.Sprintf("Scrubbed descriptions: %d finding(s)", res.ScrubFindings))
	}
	if res.CacheHit {
		lines = append(lines, "Cache: hit")
	}

	if timings {
		lines = append(lines, "Stage timings:")
		for _, st := range res.Stages {
			lines = append(lines, fmt.Sprintf("  %s: %s", st.Stage, st.Duration.Round(time.Microsecond)))
		}
	}

	if manifest != nil && len(manifest.Files) > 0 {
		lines = append(lines, "Exports:")
		for _, f := range manifest.Files {
			lines = append(lines, "  "+f)
		}
	}

	return lines
}

// formatDateFailures renders one line per date column with parse failures.
func formatDateFailures(stats map[string]dates.ColumnStats) []string {
	keys := make([]string, 0, len(stats))
	for key, cs := range stats {
		if cs.Failed > 0 {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return []string{"Date failures: none"}
	}

	sort.Strings(keys)
	lines := []string{"Date failures:"}
	for _, key := range keys {
		cs := stats[key]
		lines = append(lines, fmt.Sprintf("  %s: %d failed (%d parsed, %d blank)", key, cs.Failed, cs.Parsed, cs.Blank))
	}
	return lines
}
