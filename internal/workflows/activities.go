package workflows

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/sdk/activity"

	"github.com/fyrsmithlabs/fleetrecon/internal/config"
	"github.com/fyrsmithlabs/fleetrecon/internal/export"
	"github.com/fyrsmithlabs/fleetrecon/internal/ingest"
	"github.com/fyrsmithlabs/fleetrecon/internal/notify"
	"github.com/fyrsmithlabs/fleetrecon/internal/pipeline"
)

// Activities bundles the daemon dependencies reconciliation activities use.
// Temporal serializes activity inputs and outputs, so the dependencies stay
// on the worker side and never cross the wire.
type Activities struct {
	ingest    config.IngestConfig
	pipeline  pipeline.Service
	exporter  *export.Writer
	publisher *notify.Publisher
}

// NewActivities creates the activity set. The publisher may be nil when run
// events are disabled; publishing then reports not-published without error.
func NewActivities(ingestCfg config.IngestConfig, svc pipeline.Service, exporter *export.Writer, publisher *notify.Publisher) (*Activities, error) {
	if svc == nil {
		return nil, errors.New("pipeline service cannot be nil")
	}
	if exporter == nil {
		return nil, errors.New("export writer cannot be nil")
	}
	return &Activities{
		ingest:    ingestCfg,
		pipeline:  svc,
		exporter:  exporter,
		publisher: publisher,
	}, nil
}

// LoadSourcesActivity reads the three source tables, from the remote export
// API when one is configured, otherwise from the local files.
func (a *Activities) LoadSourcesActivity(ctx context.Context) (*ingest.Sources, error) {
	logger := activity.GetLogger(ctx)

	if a.ingest.Remote.BaseURL != "" {
		logger.Info("Loading sources from remote export API", "base_url", a.ingest.Remote.BaseURL)
		client, err := ingest.NewClient(ctx, a.ingest.Remote)
		if err != nil {
			return nil, fmt.Errorf("failed to create remote client: %w", err)
		}
		sources, err := client.FetchSources(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch sources: %w", err)
		}
		return sources, nil
	}

	logger.Info("Loading sources from local files",
		"installations", a.ingest.Installations,
		"incidents", a.ingest.Incidents,
		"returns", a.ingest.Returns)
	sources, err := ingest.LoadSources(a.ingest)
	if err != nil {
		return nil, fmt.Errorf("failed to load sources: %w", err)
	}
	return sources, nil
}

// ReconcileActivity runs the pipeline over the loaded tables.
func (a *Activities) ReconcileActivity(ctx context.Context, input ReconcileInput) (*pipeline.Result, error) {
	result, err := a.pipeline.Run(ctx, &pipeline.RunRequest{
		Installations: input.Sources.Installations,
		Incidents:     input.Sources.Incidents,
		Returns:       input.Sources.Returns,
		RunID:         input.RunID,
		Trigger:       input.Trigger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to run pipeline: %w", err)
	}
	return result, nil
}

// ExportResultsActivity persists the run result in the configured formats.
func (a *Activities) ExportResultsActivity(ctx context.Context, input ExportInput) (*export.Manifest, error) {
	manifest, err := a.exporter.Write(ctx, input.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to write exports: %w", err)
	}
	return manifest, nil
}

// PublishRunEventActivity publishes the run event to NATS. Returns whether an
// event went out; a disabled publisher is not an error.
func (a *Activities) PublishRunEventActivity(ctx context.Context, input PublishRunEventInput) (bool, error) {
	if a.publisher == nil {
		activity.GetLogger(ctx).Debug("Run events disabled, skipping publish", "event", input.Event)
		return false, nil
	}

	switch input.Event {
	case notify.EventCompleted:
		if input.Result == nil {
			return false, errors.New("completion event requires a run result")
		}
		if err := a.publisher.RunCompleted(ctx, input.Result); err != nil {
			return false, fmt.Errorf("failed to publish completion event: %w", err)
		}
	case notify.EventFailed:
		if err := a.publisher.RunFailed(ctx, input.RunID, input.Trigger, errors.New(input.Error)); err != nil {
			return false, fmt.Errorf("failed to publish failure event: %w", err)
		}
	default:
		return false, fmt.Errorf("unknown run event %q", input.Event)
	}
	return true, nil
}
