// Command generate_metrics serves fabricated fleetrecond pipeline metrics so
// Grafana dashboards can be developed without a live daemon or real fleet data.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics for testing dashboards. Names mirror what fleetrecond exposes on
// /metrics so panels built against this generator work against the daemon.
var (
	pipelineRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetrecon_pipeline_runs_total",
			Help: "Reconciliation runs by outcome",
		},
		[]string{"result"},
	)
	pipelineRunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleetrecon_pipeline_run_duration_seconds",
			Help:    "Wall time of completed reconciliation runs",
			Buckets: prometheus.DefBuckets,
		},
	)
	pipelineFleetDevices = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleetrecon_pipeline_fleet_devices",
			Help: "Devices in the most recently reconciled fleet",
		},
	)
	pipelineInvalidSerials = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetrecon_pipeline_invalid_serials_total",
			Help: "Source rows rejected by serial validation",
		},
	)
	pipelineDuplicates = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetrecon_pipeline_duplicates_removed_total",
			Help: "Duplicate installation rows removed",
		},
	)
)

func init() {
	prometheus.MustRegister(
		pipelineRuns,
		pipelineRunDuration,
		pipelineFleetDevices,
		pipelineInvalidSerials,
		pipelineDuplicates,
	)
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		// 9091 leaves 9090 free for a real daemon running alongside.
		port = "9091"
	}

	seedHistory()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go streamRuns(ctx)

	server := &http.Server{Addr: ":" + port, Handler: promhttp.Handler()}
	go func() {
		<-ctx.Done()
		server.Shutdown(context.Background())
	}()

	fmt.Printf("Fake fleetrecond metrics at http://localhost:%s/metrics (Ctrl+C stops)\n", port)
	fmt.Println("\nScrape stanza for prometheus.yml:")
	fmt.Printf("  - job_name: 'fleetrecon-dev'\n    static_configs:\n      - targets: ['localhost:%s']\n", port)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}

// recordRun simulates one reconciliation run's worth of metric movement.
func recordRun() {
	switch {
	case rand.Float64() < 0.05:
		pipelineRuns.WithLabelValues("error").Inc()
		return
	case rand.Float64() < 0.3:
		// Cache hits re-serve an already-counted computation
		pipelineRuns.WithLabelValues("cached").Inc()
		return
	}

	pipelineRuns.WithLabelValues("success").Inc()
	pipelineRunDuration.Observe(0.2 + rand.Float64()*4.0)
	pipelineFleetDevices.Set(float64(9500 + rand.Intn(400)))

	if invalid := rand.Intn(8); invalid > 0 {
		pipelineInvalidSerials.Add(float64(invalid))
	}
	if dupes := rand.Intn(25); dupes > 0 {
		pipelineDuplicates.Add(float64(dupes))
	}
}

// seedHistory backfills a day's worth of watch-triggered runs so rate()
// panels have data on first load.
func seedHistory() {
	for i := 0; i < 60; i++ {
		recordRun()
	}
}

// streamRuns keeps the collectors moving while the server is up.
func streamRuns(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if rand.Float64() > 0.4 {
				recordRun()
			}
		}
	}
}
