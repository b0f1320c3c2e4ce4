package export

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fyrsmithlabs/fleetrecon/internal/dataset"
	"github.com/fyrsmithlabs/fleetrecon/internal/pipeline"
)

// mergedColumnTypes maps merged columns to SQLite types; unlisted
// columns are TEXT. Flags are stored as 0/1 integers.
var mergedColumnTypes = map[string]string{
	"serial_valid":                "INTEGER",
	"incident_count":              "INTEGER",
	"return_count":                "INTEGER",
	"time_to_failure_days":        "INTEGER",
	"time_to_failure_months":      "REAL",
	"ttf_anomalous":               "INTEGER",
	"age_since_installation_days": "INTEGER",
	"age_since_fabrication_days":  "INTEGER",
	"stock_duration_days":         "INTEGER",
	"inactivity_days":             "INTEGER",
	"incident_without_return":     "INTEGER",
}

const runsSchema = `CREATE TABLE IF NOT EXISTS "runs" (
	"run_id" TEXT PRIMARY KEY,
	"trigger" TEXT,
	"started" TEXT,
	"finished" TEXT,
	"duration_ms" INTEGER,
	"cache_hit" INTEGER,
	"installations_rows" INTEGER,
	"incidents_rows" INTEGER,
	"returns_rows" INTEGER,
	"invalid_serials" INTEGER,
	"duplicates_removed" INTEGER,
	"scrub_findings" INTEGER,
	"total_devices" INTEGER,
	"devices_with_incident" INTEGER,
	"devices_with_return" INTEGER,
	"incident_rate" REAL,
	"return_rate" REAL,
	"mean_ttf_days" REAL,
	"max_ttf_days" INTEGER,
	"mttf_days" REAL,
	"mean_age_days" REAL
)`

const aggregatesSchema = `CREATE TABLE IF NOT EXISTS "aggregates" (
	"run_id" TEXT,
	"dimensions" TEXT,
	"key" TEXT,
	"count" INTEGER,
	"mean_ttf_days" REAL,
	"min_ttf_days" INTEGER,
	"max_ttf_days" INTEGER,
	"ttf_count" INTEGER,
	"mean_age_days" REAL,
	"age_count" INTEGER
)`

// writeSQLite appends one run to the history database. Re-exporting the
// same run replaces its rows instead of duplicating them.
func (w *Writer) writeSQLite(ctx context.Context, path string, res *pipeline.Result) error {
	if path == "" {
		return fmt.Errorf("sqlite_path not set")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := ensureSchema(ctx, db); err != nil {
		return err
	}

	merged := res.Merged
	if merged == nil {
		merged = pipeline.MaterializeMerged(res.Records)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := insertRun(ctx, tx, res); err != nil {
		return err
	}
	if err := insertMerged(ctx, tx, res.RunID, merged); err != nil {
		return err
	}
	if err := insertAggregates(ctx, tx, res.RunID, res.Groups); err != nil {
		return err
	}
	return tx.Commit()
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	defs := make([]string, 0, len(pipeline.MergedColumns)+1)
	defs = append(defs, `"run_id" TEXT`)
	for _, col := range pipeline.MergedColumns {
		typ := mergedColumnTypes[col]
		if typ == "" {
			typ = "TEXT"
		}
		defs = append(defs, fmt.Sprintf("%q %s", col, typ))
	}
	stmts := []string{
		runsSchema,
		`CREATE TABLE IF NOT EXISTS "merged_records" (` + strings.Join(defs, ",") + `)`,
		aggregatesSchema,
		`CREATE INDEX IF NOT EXISTS idx_merged_records_run ON merged_records(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_merged_records_serial ON merged_records(serial)`,
		`CREATE INDEX IF NOT EXISTS idx_aggregates_run ON aggregates(run_id)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func insertRun(ctx context.Context, tx *sql.Tx, res *pipeline.Result) error {
	s := res.Summary
	_, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO "runs" (
		"run_id","trigger","started","finished","duration_ms","cache_hit",
		"installations_rows","incidents_rows","returns_rows",
		"invalid_serials","duplicates_removed","scrub_findings",
		"total_devices","devices_with_incident","devices_with_return",
		"incident_rate","return_rate","mean_ttf_days","max_ttf_days","mttf_days","mean_age_days"
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		res.RunID, res.Trigger,
		res.Started.Format(time.RFC3339), res.Finished.Format(time.RFC3339),
		res.Duration.Milliseconds(), boolInt(res.CacheHit),
		res.SourceRows.Installations, res.SourceRows.Incidents, res.SourceRows.Returns,
		res.InvalidSerials, res.DuplicatesRemoved, res.ScrubFindings,
		s.TotalDevices, s.DevicesWithIncident, s.DevicesWithReturn,
		s.IncidentRate, s.ReturnRate,
		nullFloat(s.MeanTTFDays), nullInt(s.MaxTTFDays), nullFloat(s.MTTFDays), nullFloat(s.MeanAgeDays),
	)
	return err
}

func insertMerged(ctx context.Context, tx *sql.Tx, runID string, merged *dataset.Table) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM "merged_records" WHERE "run_id" = ?`, runID); err != nil {
		return err
	}

	quoted := make([]string, 0, len(merged.Columns)+1)
	quoted = append(quoted, `"run_id"`)
	for _, col := range merged.Columns {
		quoted = append(quoted, fmt.Sprintf("%q", col))
	}
	placeholders := strings.TrimRight(strings.Repeat("?,", len(quoted)), ",")

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO "merged_records" (`+
		strings.Join(quoted, ",")+`) VALUES (`+placeholders+`)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	args := make([]any, len(merged.Columns)+1)
	for _, row := range merged.Rows {
		args[0] = runID
		for i, col := range merged.Columns {
			args[i+1] = sqliteCell(col, row[col])
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return err
		}
	}
	return nil
}

func insertAggregates(ctx context.Context, tx *sql.Tx, runID string, groups []pipeline.Grouping) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM "aggregates" WHERE "run_id" = ?`, runID); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO "aggregates" (
		"run_id","dimensions","key","count",
		"mean_ttf_days","min_ttf_days","max_ttf_days","ttf_count",
		"mean_age_days","age_count"
	) VALUES (?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, g := range groups {
		dims := strings.Join(g.Dimensions, ",")
		for _, b := range g.Buckets {
			key, err := json.Marshal(b.Key)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx,
				runID, dims, string(key), b.Count,
				nullFloat(b.MeanTTFDays), nullInt(b.MinTTFDays), nullInt(b.MaxTTFDays), b.TTFCount,
				nullFloat(b.MeanAgeDays), b.AgeCount,
			); err != nil {
				return err
			}
		}
	}
	return nil
}

// sqliteCell converts a materialized cell to its SQLite value. Flag
// strings become 0/1 and integral floats become integers when the
// column is typed INTEGER.
func sqliteCell(col string, v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case time.Time:
		return formatTime(t)
	case string:
		if mergedColumnTypes[col] == "INTEGER" {
			return boolInt(t == "true")
		}
		return t
	case float64:
		if mergedColumnTypes[col] == "INTEGER" && t == float64(int64(t)) {
			return int64(t)
		}
		return t
	default:
		return t
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullFloat(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}
