// Package pipeline orchestrates the reconciliation stages: date
// normalization, serial decoding, merge, deduplication, lifecycle metrics,
// optional scrubbing, and aggregation. Field bindings resolve up front so a
// misconfigured run fails with the complete list of missing fields before
// any stage touches data.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/fleetrecon/internal/aggregate"
	"github.com/fyrsmithlabs/fleetrecon/internal/config"
	"github.com/fyrsmithlabs/fleetrecon/internal/dataset"
	"github.com/fyrsmithlabs/fleetrecon/internal/dates"
	"github.com/fyrsmithlabs/fleetrecon/internal/dedupe"
	"github.com/fyrsmithlabs/fleetrecon/internal/lifecycle"
	"github.com/fyrsmithlabs/fleetrecon/internal/logging"
	"github.com/fyrsmithlabs/fleetrecon/internal/merge"
	"github.com/fyrsmithlabs/fleetrecon/internal/scrub"
	"github.com/fyrsmithlabs/fleetrecon/internal/serial"
)

const instrumentationName = "github.com/fyrsmithlabs/fleetrecon/internal/pipeline"

// Service runs device-lifecycle reconciliation over raw source tables.
type Service interface {
	// Run executes the full pipeline and returns the run result. The
	// request tables are never mutated.
	Run(ctx context.Context, req *RunRequest) (*Result, error)

	// Validate resolves the configured field bindings against the request
	// tables without running the pipeline. The returned error lists every
	// missing field across all sources.
	Validate(ctx context.Context, req *RunRequest) error

	// InvalidateCache drops all cached run results.
	InvalidateCache()

	// Close marks the service unusable. Further Run calls fail.
	Close() error
}

// FieldMaps carries one binding per source table.
type FieldMaps struct {
	Installations dataset.Binding
	Incidents     dataset.Binding
	Returns       dataset.Binding
}

// LongTail folds low-share aggregation buckets into a single labeled
// bucket. Presentation-only.
type LongTail struct {
	Enabled   bool
	Threshold float64
	Label     string
}

// Config configures the pipeline service.
type Config struct {
	Fields FieldMaps
	Dates  dates.Config
	Serial serial.Config

	// DedupeKeys are the record fields forming the duplicate key.
	DedupeKeys []string

	// AsOf pins the reference clock for lifecycle metrics. Zero means
	// wall clock at run start.
	AsOf time.Time

	// Dimensions holds one dimension set per requested aggregation.
	Dimensions [][]string
	LongTail   LongTail

	ScrubDescriptions bool

	CacheEnabled    bool
	CacheTTL        time.Duration
	CacheMaxEntries int
}

// DefaultConfig returns the identity field mapping onto canonical column
// headers and the default stage settings.
func DefaultConfig() *Config {
	return &Config{
		Fields: FieldMaps{
			Installations: dataset.Binding{
				"serial":            "serial",
				"model":             "model",
				"subsidiary":        "subsidiary",
				"fabrication_date":  "fabrication_date",
				"installation_date": "installation_date",
				"last_connection":   "last_connection_date",
			},
			Incidents: dataset.Binding{
				"serial":      "serial",
				"date":        "incident_date",
				"description": "description",
			},
			Returns: dataset.Binding{
				"serial": "serial",
				"date":   "return_date",
				"rma":    "rma",
			},
		},
		DedupeKeys: []string{"model", "serial"},
		Dimensions: [][]string{
			{"model"},
			{"subsidiary"},
			{"model", "subsidiary"},
		},
		LongTail: LongTail{Threshold: 0.02, Label: "Other"},
	}
}

// FromConfig maps the application configuration onto a pipeline Config.
func FromConfig(app *config.Config) (*Config, error) {
	cfg := &Config{
		Fields: FieldMaps{
			Installations: dataset.Binding(app.Pipeline.Fields.Installations),
			Incidents:     dataset.Binding(app.Pipeline.Fields.Incidents),
			Returns:       dataset.Binding(app.Pipeline.Fields.Returns),
		},
		Dates: dates.Config{
			Layouts:     app.Pipeline.Dates.Layouts,
			ExcelSerial: app.Pipeline.Dates.ExcelSerial,
		},
		Serial: serial.Config{
			Length:      app.Pipeline.Serial.Length,
			YearMin:     app.Pipeline.Serial.YearMin,
			YearMax:     app.Pipeline.Serial.YearMax,
			CenturyBase: app.Pipeline.Serial.CenturyBase,
		},
		DedupeKeys: app.Pipeline.Dedupe.Keys,
		Dimensions: app.Pipeline.Aggregate.Dimensions,
		LongTail: LongTail{
			Enabled:   app.Pipeline.Aggregate.LongTail.Enabled,
			Threshold: app.Pipeline.Aggregate.LongTail.Threshold,
			Label:     app.Pipeline.Aggregate.LongTail.Label,
		},
		ScrubDescriptions: app.Pipeline.ScrubDescriptions,
		CacheEnabled:      app.Cache.Enabled,
		CacheTTL:          app.Cache.TTL.Duration(),
		CacheMaxEntries:   app.Cache.MaxEntries,
	}

	if app.Pipeline.Metrics.AsOf != "" {
		asOf, err := time.Parse("2006-01-02", app.Pipeline.Metrics.AsOf)
		if err != nil {
			return nil, fmt.Errorf("invalid metrics as_of date %q: %w", app.Pipeline.Metrics.AsOf, err)
		}
		cfg.AsOf = asOf.UTC()
	}

	return cfg, nil
}

// requiredFields must be bound for each source; the join and event dates
// cannot be defaulted away.
var requiredFields = map[string][]string{
	"installations": {"serial"},
	"incidents":     {"serial", "date"},
	"returns":       {"serial", "date"},
}

// Date-bearing semantic fields per source.
var (
	installationDateFields = []string{"fabrication_date", "installation_date", "last_connection"}
	eventDateFields        = []string{"date"}
)

// service is the concrete pipeline. All methods are safe for concurrent use.
type service struct {
	cfg        *Config
	logger     *logging.Logger
	scrubber   *scrub.Scrubber
	normalizer *dates.Normalizer
	parser     *serial.Parser
	cache      *resultCache

	// otel instruments, nil when registration failed
	tracer            trace.Tracer
	meter             metric.Meter
	runCounter        metric.Int64Counter
	runDuration       metric.Float64Histogram
	rowsMerged        metric.Int64Counter
	invalidSerials    metric.Int64Counter
	duplicatesRemoved metric.Int64Counter
	dateFailures      metric.Int64Counter

	mu     sync.RWMutex
	closed bool
}

// New creates a pipeline service. The scrubber may be nil; description
// scrubbing is then skipped even when enabled in config.
func New(cfg *Config, scrubber *scrub.Scrubber, logger *logging.Logger) (Service, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logging.Nop()
	}

	s := &service{
		cfg:        cfg,
		logger:     logger,
		scrubber:   scrubber,
		normalizer: dates.New(cfg.Dates),
		parser:     serial.New(cfg.Serial),
		tracer:     otel.Tracer(instrumentationName),
		meter:      otel.Meter(instrumentationName),
	}

	if cfg.CacheEnabled && cfg.CacheTTL > 0 && cfg.CacheMaxEntries > 0 {
		s.cache = newResultCache(cfg.CacheTTL, cfg.CacheMaxEntries)
	}

	s.initMetrics()

	return s, nil
}

// initMetrics registers the pipeline instruments. A failed registration
// logs a warning and leaves that instrument nil.
func (s *service) initMetrics() {
	var err error

	s.runCounter, err = s.meter.Int64Counter(
		"fleetrecon.pipeline.runs_total",
		metric.WithDescription("Total number of reconciliation runs"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		s.logger.Underlying().Warn("failed to create run counter", zap.Error(err))
	}

	s.runDuration, err = s.meter.Float64Histogram(
		"fleetrecon.pipeline.run_duration_seconds",
		metric.WithDescription("End-to-end run duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		s.logger.Underlying().Warn("failed to create run duration histogram", zap.Error(err))
	}

	s.rowsMerged, err = s.meter.Int64Counter(
		"fleetrecon.pipeline.rows_merged_total",
		metric.WithDescription("Reconciled records produced across runs"),
		metric.WithUnit("{row}"),
	)
	if err != nil {
		s.logger.Underlying().Warn("failed to create rows merged counter", zap.Error(err))
	}

	s.invalidSerials, err = s.meter.Int64Counter(
		"fleetrecon.pipeline.invalid_serials_total",
		metric.WithDescription("Serial codes rejected by validation"),
		metric.WithUnit("{serial}"),
	)
	if err != nil {
		s.logger.Underlying().Warn("failed to create invalid serials counter", zap.Error(err))
	}

	s.duplicatesRemoved, err = s.meter.Int64Counter(
		"fleetrecon.pipeline.duplicates_removed_total",
		metric.WithDescription("Duplicate records removed across runs"),
		metric.WithUnit("{row}"),
	)
	if err != nil {
		s.logger.Underlying().Warn("failed to create duplicates counter", zap.Error(err))
	}

	s.dateFailures, err = s.meter.Int64Counter(
		"fleetrecon.pipeline.date_parse_failures_total",
		metric.WithDescription("Date cells that failed every configured layout"),
		metric.WithUnit("{cell}"),
	)
	if err != nil {
		s.logger.Underlying().Warn("failed to create date failures counter", zap.Error(err))
	}
}

// Run executes the full pipeline.
func (s *service) Run(ctx context.Context, req *RunRequest) (*Result, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, errors.New("pipeline service is closed")
	}
	s.mu.RUnlock()

	trigger := req.Trigger
	if trigger == "" {
		trigger = "manual"
	}

	started := time.Now().UTC()
	runID := req.RunID
	if runID == "" {
		runID = NewRunID(started)
	}

	ctx = logging.WithRun(ctx, &logging.Run{ID: runID, Trigger: trigger})
	ctx, span := s.tracer.Start(ctx, "pipeline.run")
	defer span.End()

	span.SetAttributes(
		attribute.String("run_id", runID),
		attribute.String("trigger", trigger),
	)

	if err := s.resolve(req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error(ctx, "field binding resolution failed", zap.Error(err))
		RecordRunFailure()
		return nil, err
	}

	fp := s.fingerprint(req)
	if s.cache != nil {
		if cached, ok := s.cache.Get(fp); ok {
			s.logger.Info(ctx, "run served from cache",
				zap.String("fingerprint", fp[:12]),
			)
			s.recordRun(ctx, trigger, true, time.Since(started))
			out := *cached
			out.RunID = runID
			out.Trigger = trigger
			out.CacheHit = true
			RecordRunMetrics(&out)
			return &out, nil
		}
	}

	result := &Result{
		RunID:   runID,
		Trigger: trigger,
		Started: started,
		SourceRows: SourceRows{
			Installations: req.Installations.Len(),
			Incidents:     req.Incidents.Len(),
			Returns:       req.Returns.Len(),
		},
		DateStats: make(map[string]dates.ColumnStats),
	}

	// Stages work on clones; the caller keeps its tables.
	installations := req.Installations.Clone()
	incidents := req.Incidents.Clone()
	returns := req.Returns.Clone()

	s.stage(ctx, result, "dates", func(ctx context.Context) {
		s.normalizeDates(ctx, result, "installations", installations, s.cfg.Fields.Installations, installationDateFields)
		s.normalizeDates(ctx, result, "incidents", incidents, s.cfg.Fields.Incidents, eventDateFields)
		s.normalizeDates(ctx, result, "returns", returns, s.cfg.Fields.Returns, eventDateFields)
	})

	var serialCodes []serial.Code
	s.stage(ctx, result, "serial", func(ctx context.Context) {
		serialCodes = s.parseSerials(ctx, result, installations)
	})

	var merged []merge.Merged
	s.stage(ctx, result, "merge", func(ctx context.Context) {
		incidentSums := merge.SummarizeIncidents(incidents, s.cfg.Fields.Incidents)
		returnSums := merge.SummarizeReturns(returns, s.cfg.Fields.Returns)
		merged = merge.Merge(installations, s.cfg.Fields.Installations, incidentSums, returnSums)
		// Merge preserves installation row order, so codes line up by index.
		for i := range merged {
			merged[i].Code = serialCodes[i]
		}
	})

	s.stage(ctx, result, "dedupe", func(ctx context.Context) {
		var removed int
		merged, removed = dedupe.Dedupe(merged, s.cfg.DedupeKeys)
		result.DuplicatesRemoved = removed
	})

	s.stage(ctx, result, "lifecycle", func(ctx context.Context) {
		calc := lifecycle.New(lifecycle.Config{Now: s.cfg.AsOf})
		result.Records = calc.ComputeAll(merged)
	})

	if s.cfg.ScrubDescriptions && s.scrubber != nil {
		s.stage(ctx, result, "scrub", func(ctx context.Context) {
			result.Records, result.ScrubFindings = s.scrubber.ScrubRecords(result.Records)
		})
	}

	s.stage(ctx, result, "aggregate", func(ctx context.Context) {
		for _, dims := range s.cfg.Dimensions {
			buckets := aggregate.Aggregate(result.Records, dims)
			if s.cfg.LongTail.Enabled {
				buckets = aggregate.CollapseLongTail(buckets, s.cfg.LongTail.Threshold, s.cfg.LongTail.Label)
			}
			result.Groups = append(result.Groups, Grouping{Dimensions: dims, Buckets: buckets})
		}
		result.Summary = aggregate.Summarize(result.Records)
	})

	s.stage(ctx, result, "materialize", func(ctx context.Context) {
		result.Merged = MaterializeMerged(result.Records)
	})

	result.Finished = time.Now().UTC()
	result.Duration = result.Finished.Sub(result.Started)

	if s.cache != nil {
		s.cache.Set(fp, result)
	}

	s.recordRun(ctx, trigger, false, result.Duration)
	RecordRunMetrics(result)
	if s.rowsMerged != nil {
		s.rowsMerged.Add(ctx, int64(len(result.Records)))
	}
	if s.invalidSerials != nil && result.InvalidSerials > 0 {
		s.invalidSerials.Add(ctx, int64(result.InvalidSerials))
	}
	if s.duplicatesRemoved != nil && result.DuplicatesRemoved > 0 {
		s.duplicatesRemoved.Add(ctx, int64(result.DuplicatesRemoved))
	}

	span.SetAttributes(
		attribute.Int("rows_merged", len(result.Records)),
		attribute.Int("duplicates_removed", result.DuplicatesRemoved),
		attribute.Int("invalid_serials", result.InvalidSerials),
	)

	s.logger.Info(ctx, "run complete",
		zap.Int("installations", result.SourceRows.Installations),
		zap.Int("incidents", result.SourceRows.Incidents),
		zap.Int("returns", result.SourceRows.Returns),
		zap.Int("merged", len(result.Records)),
		zap.Int("duplicates_removed", result.DuplicatesRemoved),
		zap.Int("invalid_serials", result.InvalidSerials),
		zap.Duration("duration", result.Duration),
	)

	return result, nil
}

// Validate resolves the configured bindings without running the pipeline.
func (s *service) Validate(ctx context.Context, req *RunRequest) error {
	_, span := s.tracer.Start(ctx, "pipeline.validate")
	defer span.End()

	if err := s.resolve(req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// InvalidateCache drops all cached run results.
func (s *service) InvalidateCache() {
	if s.cache != nil {
		s.cache.Clear()
	}
}

// Close is idempotent.
func (s *service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return nil
}

// resolve checks all three bindings and joins the failures so the caller
// sees every missing field in one error.
func (s *service) resolve(req *RunRequest) error {
	var errs []error
	if err := resolveSource(req.Installations, s.cfg.Fields.Installations, "installations"); err != nil {
		errs = append(errs, err)
	}
	if err := resolveSource(req.Incidents, s.cfg.Fields.Incidents, "incidents"); err != nil {
		errs = append(errs, err)
	}
	if err := resolveSource(req.Returns, s.cfg.Fields.Returns, "returns"); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func resolveSource(t *dataset.Table, b dataset.Binding, source string) error {
	if t == nil {
		return fmt.Errorf("%s table is required", source)
	}

	// Force unbound required fields into the resolution report.
	effective := dataset.Binding{}
	for field, column := range b {
		effective[field] = column
	}
	for _, field := range requiredFields[source] {
		if _, ok := effective[field]; !ok {
			effective[field] = ""
		}
	}

	return effective.Resolve(t, source)
}

// stage runs one pipeline stage with log correlation, a span, and timing.
func (s *service) stage(ctx context.Context, result *Result, name string, fn func(context.Context)) {
	ctx = logging.WithStage(ctx, name)
	ctx, span := s.tracer.Start(ctx, "pipeline."+name)
	defer span.End()

	start := time.Now()
	fn(ctx)
	elapsed := time.Since(start)

	result.Stages = append(result.Stages, StageTiming{Stage: name, Duration: elapsed})
	s.logger.Debug(ctx, "stage complete", zap.Duration("elapsed", elapsed))
}

// normalizeDates normalizes every bound date column of one source table
// and collects per-column stats.
func (s *service) normalizeDates(ctx context.Context, result *Result, source string, t *dataset.Table, b dataset.Binding, fields []string) {
	for _, field := range fields {
		column := b.Column(field)
		if column == "" || !t.HasColumn(column) {
			continue
		}

		stats := s.normalizer.NormalizeColumn(t, column)
		result.DateStats[source+"."+field] = stats

		if stats.Failed > 0 {
			if s.dateFailures != nil {
				s.dateFailures.Add(ctx, int64(stats.Failed), metric.WithAttributes(
					attribute.String("source", source),
					attribute.String("field", field),
				))
			}
			s.logger.Warn(ctx, "date cells failed to parse",
				zap.String("source", source),
				zap.String("field", field),
				zap.Int("failed", stats.Failed),
				zap.Int("parsed", stats.Parsed),
				zap.Int("blank", stats.Blank),
			)
		}
	}
}

// parseSerials decodes the serial of every installation row, in row order.
func (s *service) parseSerials(ctx context.Context, result *Result, installations *dataset.Table) []serial.Code {
	column := s.cfg.Fields.Installations.Column("serial")
	codes := make([]serial.Code, installations.Len())
	for i, row := range installations.Rows {
		raw, _ := row.String(column)
		codes[i] = s.parser.Parse(raw)
		if !codes[i].Valid {
			result.InvalidSerials++
			s.logger.Trace(ctx, "serial rejected",
				logging.MaskedSerial("serial", raw),
				zap.Int("row", i),
				zap.String("reason", string(codes[i].Reason)),
			)
		}
	}
	return codes
}

func (s *service) recordRun(ctx context.Context, trigger string, cacheHit bool, d time.Duration) {
	if s.runCounter != nil {
		s.runCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("trigger", trigger),
			attribute.Bool("cache_hit", cacheHit),
		))
	}
	if s.runDuration != nil {
		s.runDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
			attribute.String("trigger", trigger),
			attribute.Bool("cache_hit", cacheHit),
		))
	}
}

// NewRunID builds a run identifier like run-20240315-a1b2c3d4. Callers
// that announce a run before executing it (event publishing, workflow
// activities) mint the ID up front and pass it via RunRequest.RunID.
func NewRunID(started time.Time) string {
	return fmt.Sprintf("run-%s-%s", started.Format("20060102"), uuid.NewString()[:8])
}
