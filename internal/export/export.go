// Package export writes reconciliation results to disk.
//
// Three formats are supported: CSV (merged table, one file per
// aggregation, summary), SQLite (runs, merged_records, aggregates
// tables accumulating history across runs), and JSON (the full run
// result). CSV and JSON files are latest-run snapshots under the
// export directory; the SQLite database keys everything by run ID.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/fleetrecon/internal/config"
	"github.com/fyrsmithlabs/fleetrecon/internal/logging"
	"github.com/fyrsmithlabs/fleetrecon/internal/pipeline"
)

// Manifest lists the artifacts one Write produced.
type Manifest struct {
	Files []string `json:"files"`
}

// Writer persists run results according to the export configuration.
type Writer struct {
	cfg    config.ExportConfig
	logger *logging.Logger
}

// NewWriter creates a Writer. A nil logger falls back to a no-op logger.
func NewWriter(cfg config.ExportConfig, logger *logging.Logger) *Writer {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Writer{cfg: cfg, logger: logger}
}

// Write exports res in every configured format and returns the files
// written. Formats are written in configuration order; the first failure
// aborts the export.
func (w *Writer) Write(ctx context.Context, res *pipeline.Result) (*Manifest, error) {
	if res == nil {
		return nil, fmt.Errorf("result is required")
	}
	if err := os.MkdirAll(w.cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}

	manifest := &Manifest{}
	for _, format := range w.cfg.Formats {
		switch strings.ToLower(strings.TrimSpace(format)) {
		case "csv":
			files, err := w.writeCSV(res)
			if err != nil {
				return nil, fmt.Errorf("csv export: %w", err)
			}
			manifest.Files = append(manifest.Files, files...)
		case "sqlite":
			path := w.cfg.SQLitePath
			if err := w.writeSQLite(ctx, path, res); err != nil {
				return nil, fmt.Errorf("sqlite export: %w", err)
			}
			manifest.Files = append(manifest.Files, path)
		case "json":
			path := filepath.Join(w.cfg.Dir, "result.json")
			if err := w.writeJSON(path, res); err != nil {
				return nil, fmt.Errorf("json export: %w", err)
			}
			manifest.Files = append(manifest.Files, path)
		default:
			return nil, fmt.Errorf("unknown export format %q", format)
		}
	}

	w.logger.Info(ctx, "export complete",
		zap.String("run_id", res.RunID),
		zap.Strings("formats", w.cfg.Formats),
		zap.Int("files", len(manifest.Files)),
	)
	return manifest, nil
}

// groupingFileName derives the per-aggregation CSV name, e.g.
// by_model_subsidiary.csv.
func groupingFileName(dims []string) string {
	return "by_" + strings.Join(dims, "_") + ".csv"
}
