package http

import (
	"sync"
	"time"

	"github.com/fyrsmithlabs/fleetrecon/internal/aggregate"
	"github.com/fyrsmithlabs/fleetrecon/internal/pipeline"
)

// recentDurations bounds the duration history kept for sparklines.
const recentDurations = 32

// RunStats summarizes one completed run for the stats endpoint.
type RunStats struct {
	RunID             string              `json:"run_id"`
	Trigger           string              `json:"trigger"`
	Finished          time.Time           `json:"finished"`
	DurationMS        int64               `json:"duration_ms"`
	CacheHit          bool                `json:"cache_hit"`
	SourceRows        pipeline.SourceRows `json:"source_rows"`
	InvalidSerials    int                 `json:"invalid_serials"`
	DuplicatesRemoved int                 `json:"duplicates_removed"`
	Summary           aggregate.Summary   `json:"summary"`
}

// StatsResponse is the response body for GET /api/v1/stats.
type StatsResponse struct {
	TotalRuns         int       `json:"total_runs"`
	CacheHits         int       `json:"cache_hits"`
	FailedRuns        int       `json:"failed_runs"`
	LastRun           *RunStats `json:"last_run,omitempty"`
	RecentDurationsMS []int64   `json:"recent_durations_ms"`
}

// Recorder accumulates run statistics across triggers. The daemon
// shares one Recorder between the HTTP handler and the watch loop so
// the stats endpoint sees every run, not just HTTP-triggered ones.
type Recorder struct {
	mu         sync.Mutex
	totalRuns  int
	cacheHits  int
	failedRuns int
	lastRun    *RunStats
	durations  []int64
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// RecordRun records a completed run.
func (r *Recorder) RecordRun(res *pipeline.Result) {
	if res == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.totalRuns++
	if res.CacheHit {
		r.cacheHits++
	}
	r.lastRun = &RunStats{
		RunID:             res.RunID,
		Trigger:           res.Trigger,
		Finished:          res.Finished,
		DurationMS:        res.Duration.Milliseconds(),
		CacheHit:          res.CacheHit,
		SourceRows:        res.SourceRows,
		InvalidSerials:    res.InvalidSerials,
		DuplicatesRemoved: res.DuplicatesRemoved,
		Summary:           res.Summary,
	}
	r.durations = append(r.durations, res.Duration.Milliseconds())
	if len(r.durations) > recentDurations {
		r.durations = r.durations[len(r.durations)-recentDurations:]
	}
}

// RecordFailure records a run that failed before producing a result.
func (r *Recorder) RecordFailure() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totalRuns++
	r.failedRuns++
}

// Snapshot returns a copy of the current statistics.
func (r *Recorder) Snapshot() StatsResponse {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := StatsResponse{
		TotalRuns:         r.totalRuns,
		CacheHits:         r.cacheHits,
		FailedRuns:        r.failedRuns,
		RecentDurationsMS: append([]int64(nil), r.durations...),
	}
	if r.lastRun != nil {
		lastRun := *r.lastRun
		out.LastRun = &lastRun
	}
	return out
}
