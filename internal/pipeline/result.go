package pipeline

import (
	"time"

	"github.com/fyrsmithlabs/fleetrecon/internal/aggregate"
	"github.com/fyrsmithlabs/fleetrecon/internal/dataset"
	"github.com/fyrsmithlabs/fleetrecon/internal/dates"
	"github.com/fyrsmithlabs/fleetrecon/internal/lifecycle"
)

// RunRequest carries the three raw source tables for one reconciliation
// run. Trigger names the entry point (cli, http, watch, workflow) and flows
// into log correlation and metrics; empty means manual.
type RunRequest struct {
	Installations *dataset.Table
	Incidents     *dataset.Table
	Returns       *dataset.Table
	Trigger       string

	// RunID pre-assigns the run identifier. Empty means the service
	// mints one (see NewRunID). Pre-assignment keeps the ID stable when
	// a caller announces the run before executing it.
	RunID string
}

// SourceRows counts the raw input rows per source.
type SourceRows struct {
	Installations int `json:"installations"`
	Incidents     int `json:"incidents"`
	Returns       int `json:"returns"`
}

// Grouping holds the aggregation output for one dimension set.
type Grouping struct {
	Dimensions []string           `json:"dimensions"`
	Buckets    []aggregate.Bucket `json:"buckets"`
}

// StageTiming records how long one pipeline stage took.
type StageTiming struct {
	Stage    string        `json:"stage"`
	Duration time.Duration `json:"duration_ns"`
}

// Result is the complete output of one reconciliation run.
type Result struct {
	RunID    string        `json:"run_id"`
	Trigger  string        `json:"trigger"`
	Started  time.Time     `json:"started"`
	Finished time.Time     `json:"finished"`
	Duration time.Duration `json:"duration_ns"`

	// CacheHit marks results served from the fingerprint cache; such
	// results carry a fresh run identity over previously computed data.
	CacheHit bool `json:"cache_hit"`

	SourceRows SourceRows `json:"source_rows"`

	// DateStats keys are "source.field" (e.g. "incidents.date").
	DateStats map[string]dates.ColumnStats `json:"date_stats"`

	InvalidSerials    int `json:"invalid_serials"`
	DuplicatesRemoved int `json:"duplicates_removed"`
	ScrubFindings     int `json:"scrub_findings"`

	// Records are the per-device reconciled records after deduplication
	// and metric computation.
	Records []lifecycle.Record `json:"records"`

	// Merged is Records materialized as a table in the stable column
	// order (see MergedColumns).
	Merged *dataset.Table `json:"merged,omitempty"`

	Groups  []Grouping        `json:"groups"`
	Summary aggregate.Summary `json:"summary"`

	Stages []StageTiming `json:"stages"`
}
