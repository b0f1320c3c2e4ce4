package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/fleetrecon/internal/config"
	"github.com/fyrsmithlabs/fleetrecon/internal/export"
	httpapi "github.com/fyrsmithlabs/fleetrecon/internal/http"
	"github.com/fyrsmithlabs/fleetrecon/internal/ingest"
	"github.com/fyrsmithlabs/fleetrecon/internal/logging"
	"github.com/fyrsmithlabs/fleetrecon/internal/notify"
	"github.com/fyrsmithlabs/fleetrecon/internal/pipeline"
)

// runner executes daemon-triggered reconciliation passes (the startup pass
// and directory-watch passes). Runs submitted over HTTP go through the
// server handler instead and carry their own tables.
type runner struct {
	cfg       *config.Config
	pipeline  pipeline.Service
	exporter  *export.Writer
	recorder  *httpapi.Recorder
	publisher *notify.Publisher
	logger    *logging.Logger
}

func newRunner(cfg *config.Config, deps *dependencies, logger *logging.Logger) *runner {
	return &runner{
		cfg:       cfg,
		pipeline:  deps.pipeline,
		exporter:  deps.exporter,
		recorder:  deps.recorder,
		publisher: deps.publisher,
		logger:    logger,
	}
}

// runOnce loads the three source tables, runs the pipeline, exports the
// result, and records the run for the stats endpoint. The run ID is minted
// before the pipeline starts so the started event and the result share it.
// Publish and export failures are logged without failing the run.
func (r *runner) runOnce(ctx context.Context, trigger string) (*pipeline.Result, error) {
	sources, err := r.loadSources(ctx)
	if err != nil {
		r.recorder.RecordFailure()
		return nil, fmt.Errorf("load sources: %w", err)
	}

	req := &pipeline.RunRequest{
		Installations: sources.Installations,
		Incidents:     sources.Incidents,
		Returns:       sources.Returns,
		Trigger:       trigger,
		RunID:         pipeline.NewRunID(time.Now().UTC()),
	}

	if r.publisher != nil {
		rows := pipeline.SourceRows{
			Installations: req.Installations.Len(),
			Incidents:     req.Incidents.Len(),
			Returns:       req.Returns.Len(),
		}
		if err := r.publisher.RunStarted(ctx, req.RunID, trigger, rows); err != nil {
			r.logger.Warn(ctx, "Failed to publish run started event", zap.Error(err))
		}
	}

	res, err := r.pipeline.Run(ctx, req)
	if err != nil {
		r.recorder.RecordFailure()
		if r.publisher != nil {
			if perr := r.publisher.RunFailed(ctx, req.RunID, trigger, err); perr != nil {
				r.logger.Warn(ctx, "Failed to publish run failed event", zap.Error(perr))
			}
		}
		return nil, fmt.Errorf("run pipeline: %w", err)
	}

	if _, err := r.exporter.Write(ctx, res); err != nil {
		r.logger.Warn(ctx, "Failed to export run artifacts",
			zap.String("run_id", res.RunID),
			zap.Error(err))
	}

	r.recorder.RecordRun(res)

	if r.publisher != nil {
		if err := r.publisher.RunCompleted(ctx, res); err != nil {
			r.logger.Warn(ctx, "Failed to publish run completed event", zap.Error(err))
		}
	}

	r.logger.Info(ctx, "Reconciliation run complete",
		zap.String("run_id", res.RunID),
		zap.String("trigger", res.Trigger),
		zap.Bool("cache_hit", res.CacheHit),
		zap.Duration("duration", res.Duration),
		zap.Int("devices", res.Summary.TotalDevices),
		zap.Int("invalid_serials", res.InvalidSerials),
		zap.Int("duplicates_removed", res.DuplicatesRemoved))

	return res, nil
}

// loadSources reads the three tables from the remote fleet API when remote
// ingest is enabled and from the local CSV files otherwise.
func (r *runner) loadSources(ctx context.Context) (*ingest.Sources, error) {
	if r.cfg.Ingest.Remote.Enabled {
		client, err := ingest.NewClient(ctx, r.cfg.Ingest.Remote)
		if err != nil {
			return nil, err
		}
		return client.FetchSources(ctx)
	}
	return ingest.LoadSources(r.cfg.Ingest)
}
