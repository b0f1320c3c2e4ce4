// Fleetrecond is the device-lifecycle reconciliation daemon.
//
// This binary starts the fleetrecon HTTP server with full service
// initialization, including the reconciliation pipeline, secret scrubber,
// export writer, and the optional NATS publisher, Temporal worker, and
// source-directory watcher.
//
// Configuration is loaded from a YAML file and environment variables. See
// internal/config for details.
//
// Usage:
//
//	# Start the daemon with defaults
//	fleetrecond
//
//	# Point at an explicit config file
//	fleetrecond -config /etc/fleetrecon/config.yaml
//
//	# Override via environment
//	SERVER_HTTP_PORT=9090 WATCH_ENABLED=true fleetrecond
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/fleetrecon/internal/config"
	"github.com/fyrsmithlabs/fleetrecon/internal/export"
	httpapi "github.com/fyrsmithlabs/fleetrecon/internal/http"
	"github.com/fyrsmithlabs/fleetrecon/internal/logging"
	"github.com/fyrsmithlabs/fleetrecon/internal/notify"
	"github.com/fyrsmithlabs/fleetrecon/internal/pipeline"
	"github.com/fyrsmithlabs/fleetrecon/internal/scrub"
	"github.com/fyrsmithlabs/fleetrecon/internal/telemetry"
	"github.com/fyrsmithlabs/fleetrecon/internal/watch"
	"github.com/fyrsmithlabs/fleetrecon/internal/workflows"
)

// Set via -ldflags at release build time.
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default ~/.config/fleetrecon/config.yaml)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion || (flag.NArg() > 0 && flag.Arg(0) == "version") {
		fmt.Printf("fleetrecond %s (commit %s, built %s)\n", version, gitCommit, buildDate)
		return
	}
	if flag.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "unknown command %q, run fleetrecond -h for usage\n", flag.Arg(0))
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintln(os.Stderr, "fleetrecond:", err)
		os.Exit(1)
	}
}

// run wires the full daemon and blocks until ctx is cancelled or the HTTP
// server fails. Startup order matters: telemetry first so the logger can
// ride the OTLP pipe, then the pipeline and its infrastructure, then the
// HTTP surface.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	tel, err := initTelemetry(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancelFlush := context.WithTimeout(context.Background(), cfg.Telemetry.ShutdownTimeout.Duration())
		defer cancelFlush()
		_ = tel.Shutdown(flushCtx)
	}()

	logger, err := initLogger(cfg, tel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info(ctx, "Starting fleetrecond",
		zap.String("version", version),
		zap.String("addr", cfg.Server.Address()),
		zap.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout))

	deps, err := initDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init dependencies: %w", err)
	}
	defer deps.Close()

	logger.Info(ctx, "Dependencies initialized",
		zap.Bool("nats_connected", deps.natsConn != nil),
		zap.Bool("workflow_worker", deps.worker != nil),
		zap.Bool("watcher", deps.watcher != nil))

	srv, err := httpapi.NewServer(deps.pipeline, deps.scrubber, deps.recorder, logger, &cfg.Server)
	if err != nil {
		return fmt.Errorf("create http server: %w", err)
	}

	// Prometheus scrape endpoint alongside the OTLP push exporters.
	srv.Echo().GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Start the watch loop with an initial pass so the stats endpoint has
	// data before the first directory change arrives
	if deps.watcher != nil {
		rnr := newRunner(cfg, deps, logger)

		go deps.watcher.Run(ctx, func(ctx context.Context, ev watch.Event) error {
			_, err := rnr.runOnce(ctx, "watch")
			return err
		})

		if _, err := rnr.runOnce(ctx, "startup"); err != nil {
			logger.Warn(ctx, "Initial reconciliation failed", zap.Error(err))
		}
	}

	logger.Info(ctx, "Server configured",
		zap.String("health_endpoint", fmt.Sprintf("http://%s/health", cfg.Server.Address())),
		zap.String("api_prefix", "/api/v1"),
		zap.String("metrics_endpoint", "/metrics"))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info(ctx, "Shutdown signal received",
			zap.Duration("grace", cfg.Server.ShutdownTimeout))
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	logger.Info(context.Background(), "Shutdown complete")
	return nil
}

// dependencies holds the pipeline and all infrastructure dependencies.
type dependencies struct {
	scrubber  *scrub.Scrubber
	pipeline  pipeline.Service
	exporter  *export.Writer
	recorder  *httpapi.Recorder
	natsConn  *nats.Conn
	publisher *notify.Publisher
	worker    *workflows.Worker
	watcher   *watch.Watcher
}

// Close releases all infrastructure resources in reverse start order.
func (d *dependencies) Close() {
	if d.watcher != nil {
		d.watcher.Stop()
	}
	if d.worker != nil {
		d.worker.Stop()
	}
	if d.natsConn != nil {
		d.natsConn.Close()
	}
	if d.pipeline != nil {
		_ = d.pipeline.Close()
	}
}

// initTelemetry builds the OTel providers from the daemon config. The
// telemetry section carries a thin slice of the option surface in
// internal/telemetry, so defaults fill whatever the section leaves unset.
func initTelemetry(ctx context.Context, cfg *config.Config) (*telemetry.Telemetry, error) {
	tcfg := telemetry.NewDefaultConfig()
	tcfg.Enabled = cfg.Telemetry.Enabled
	tcfg.ServiceVersion = version
	if cfg.Telemetry.ServiceName != "" {
		tcfg.ServiceName = cfg.Telemetry.ServiceName
	}
	if cfg.Telemetry.Endpoint != "" {
		tcfg.Endpoint = cfg.Telemetry.Endpoint
	}
	if cfg.Telemetry.Protocol != "" {
		tcfg.Protocol = cfg.Telemetry.Protocol
	}
	tcfg.Insecure = cfg.Telemetry.Insecure
	tcfg.TLSSkipVerify = cfg.Telemetry.TLSSkipVerify
	if cfg.Telemetry.SampleRate > 0 {
		tcfg.Sampling.Rate = cfg.Telemetry.SampleRate
	}
	if cfg.Telemetry.ExportInterval > 0 {
		tcfg.Metrics.ExportInterval = cfg.Telemetry.ExportInterval
	}
	if cfg.Telemetry.ShutdownTimeout > 0 {
		tcfg.Shutdown.Timeout = cfg.Telemetry.ShutdownTimeout
	}

	return telemetry.New(ctx, tcfg)
}

// initLogger builds the structured logger, routing records to the OTLP
// exporter when both the logging section and telemetry ask for it.
func initLogger(cfg *config.Config, tel *telemetry.Telemetry) (*logging.Logger, error) {
	lcfg := logging.NewDefaultConfig()
	if cfg.Logging.Level != "" {
		level, err := logging.LevelFromString(cfg.Logging.Level)
		if err != nil {
			return nil, err
		}
		lcfg.Level = level
	}
	if cfg.Logging.Format != "" {
		lcfg.Format = cfg.Logging.Format
	}
	lcfg.Output.OTEL = cfg.Logging.OTEL && tel.IsEnabled()
	lcfg.Redaction.MaskSerials = cfg.Logging.MaskSerials
	lcfg.Redaction.Fields = append(lcfg.Redaction.Fields, cfg.Logging.RedactFields...)

	return logging.NewLogger(lcfg, tel.LoggerProvider())
}

// initDependencies builds the scrubber, the pipeline service, and the
// optional infrastructure around them. Anything already started when a
// later step fails is closed again before returning.
func initDependencies(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*dependencies, error) {
	scrubber, err := scrub.New(scrub.Options{
		ProjectPath: cfg.Scrub.ProjectPath,
		UserPath:    cfg.Scrub.UserPath,
	})
	if err != nil {
		return nil, fmt.Errorf("create scrubber: %w", err)
	}

	pcfg, err := pipeline.FromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("build pipeline config: %w", err)
	}

	svc, err := pipeline.New(pcfg, scrubber, logger)
	if err != nil {
		return nil, fmt.Errorf("create pipeline service: %w", err)
	}

	deps := &dependencies{
		scrubber: scrubber,
		pipeline: svc,
		exporter: export.NewWriter(cfg.Export, logger),
		recorder: httpapi.NewRecorder(),
	}

	// Connect to NATS for run lifecycle events
	if cfg.Notify.Enabled {
		nc, err := notify.Connect(cfg.Notify)
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("connect to NATS at %s: %w", cfg.Notify.URL, err)
		}
		deps.natsConn = nc
		deps.publisher = notify.NewPublisher(nc, cfg.Notify, logger)

		logger.Info(ctx, "Connected to NATS",
			zap.String("url", cfg.Notify.URL),
			zap.String("subject_prefix", cfg.Notify.SubjectPrefix))
	}

	// Start the Temporal worker for scheduled reconciliation workflows
	if cfg.Workflow.Enabled {
		activities, err := workflows.NewActivities(cfg.Ingest, svc, deps.exporter, deps.publisher)
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("create workflow activities: %w", err)
		}

		worker, err := workflows.NewWorker(cfg.Workflow, activities, logger)
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("create workflow worker: %w", err)
		}
		if err := worker.Start(); err != nil {
			deps.Close()
			return nil, fmt.Errorf("start workflow worker: %w", err)
		}
		deps.worker = worker

		logger.Info(ctx, "Workflow worker started",
			zap.String("host_port", cfg.Workflow.HostPort),
			zap.String("task_queue", cfg.Workflow.TaskQueue))
	}

	// Watch the ingest directory for changed source files
	if cfg.Watch.Enabled {
		watcher, err := watch.New(cfg.Watch, logger)
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("create watcher: %w", err)
		}
		if err := watcher.Start(ctx); err != nil {
			deps.Close()
			return nil, fmt.Errorf("start watcher: %w", err)
		}
		deps.watcher = watcher

		logger.Info(ctx, "Watching for source changes",
			zap.String("dir", cfg.Watch.Dir),
			zap.Duration("debounce", cfg.Watch.Debounce.Duration()))
	}

	return deps, nil
}
