package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus collectors for the daemon's /metrics scrape. The OTel
// instruments on the service feed the OTLP export path; these feed
// promhttp.
var (
	// RunsTotal counts reconciliation runs by result.
	// Labels: result (success, cached, error)
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fleetrecon",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of reconciliation runs by result",
		},
		[]string{"result"},
	)

	// RunDurationSeconds tracks end-to-end run durations.
	RunDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fleetrecon",
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "End-to-end reconciliation run duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// FleetDevices reports the device count of the most recent run.
	FleetDevices = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fleetrecon",
			Subsystem: "pipeline",
			Name:      "fleet_devices",
			Help:      "Devices in the most recently reconciled fleet",
		},
	)

	// InvalidSerialsTotal counts serial codes rejected by validation.
	InvalidSerialsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fleetrecon",
			Subsystem: "pipeline",
			Name:      "invalid_serials_total",
			Help:      "Total number of serial codes rejected by validation",
		},
	)

	// DuplicatesRemovedTotal counts records dropped by deduplication.
	DuplicatesRemovedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fleetrecon",
			Subsystem: "pipeline",
			Name:      "duplicates_removed_total",
			Help:      "Total number of duplicate records removed",
		},
	)
)

// RecordRunMetrics updates the Prometheus collectors from a completed run.
func RecordRunMetrics(res *Result) {
	if res == nil {
		return
	}

	// A cache hit re-serves an already-counted computation.
	if res.CacheHit {
		RunsTotal.WithLabelValues("cached").Inc()
		return
	}

	RunsTotal.WithLabelValues("success").Inc()
	RunDurationSeconds.Observe(res.Duration.Seconds())
	FleetDevices.Set(float64(res.Summary.TotalDevices))

	if res.InvalidSerials > 0 {
		InvalidSerialsTotal.Add(float64(res.InvalidSerials))
	}
	if res.DuplicatesRemoved > 0 {
		DuplicatesRemovedTotal.Add(float64(res.DuplicatesRemoved))
	}
}

// RecordRunFailure records a run that failed before producing a result.
func RecordRunFailure() {
	RunsTotal.WithLabelValues("error").Inc()
}
