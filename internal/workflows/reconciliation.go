// Package workflows provides Temporal workflow definitions for fleetrecond
// automation.
package workflows

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/fyrsmithlabs/fleetrecon/internal/export"
	"github.com/fyrsmithlabs/fleetrecon/internal/ingest"
	"github.com/fyrsmithlabs/fleetrecon/internal/notify"
	"github.com/fyrsmithlabs/fleetrecon/internal/pipeline"
)

// ReconciliationConfig configures the reconciliation workflow.
type ReconciliationConfig struct {
	RunID   string // Pre-minted run ID; empty to mint one inside the workflow
	Trigger string // Trigger recorded on the run (default "workflow")
}

// ReconciliationResult contains the headline numbers of a completed run.
type ReconciliationResult struct {
	RunID             string              // Run identity shared by exports and events
	Trigger           string              // Trigger the run was recorded under
	SourceRows        pipeline.SourceRows // Raw row counts per source table
	TotalDevices      int                 // Reconciled records after dedupe
	InvalidSerials    int                 // Source rows with invalid serial codes
	DuplicatesRemoved int                 // Rows removed by deduplication
	CacheHit          bool                // Whether the result came from the run cache
	DurationMS        int64               // Pipeline execution time
	ExportedFiles     []string            // Artifacts written by the export step
	EventPublished    bool                // Whether the completion event reached NATS
	Errors            []string            // Any errors encountered
}

// ReconciliationWorkflow runs one full reconciliation: load the three source
// tables (local files or the remote export API), run the pipeline, export
// the result in the configured formats, then publish the run event to NATS.
//
// Load, reconcile, and export failures fail the workflow after publishing a
// failure event; a lost completion event is recorded but never fails a run
// that already produced its artifacts.
func ReconciliationWorkflow(ctx workflow.Context, config ReconciliationConfig) (*ReconciliationResult, error) {
	logger := workflow.GetLogger(ctx)

	trigger := config.Trigger
	if trigger == "" {
		trigger = "workflow"
	}

	// Mint the run ID via a side effect so replays keep the identity the
	// original execution announced.
	runID := config.RunID
	if runID == "" {
		if err := workflow.SideEffect(ctx, func(ctx workflow.Context) interface{} {
			return pipeline.NewRunID(workflow.Now(ctx).UTC())
		}).Get(&runID); err != nil {
			return nil, fmt.Errorf("failed to mint run ID: %w", err)
		}
	}

	logger.Info("Starting reconciliation",
		"run_id", runID,
		"trigger", trigger)

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	result := &ReconciliationResult{RunID: runID, Trigger: trigger}

	var a *Activities

	// Step 1: Load source tables
	logger.Info("Loading source tables")
	var sources ingest.Sources
	err := workflow.ExecuteActivity(ctx, a.LoadSourcesActivity).Get(ctx, &sources)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("failed to load sources: %v", err))
		publishFailureEvent(ctx, result, err)
		return result, err
	}
	result.SourceRows = pipeline.SourceRows{
		Installations: sources.Installations.Len(),
		Incidents:     sources.Incidents.Len(),
		Returns:       sources.Returns.Len(),
	}

	// Step 2: Run the pipeline. Large fleets need more room than the
	// default activity timeout, and a deterministic pipeline gains nothing
	// from a third attempt.
	logger.Info("Running reconciliation pipeline",
		"installations", result.SourceRows.Installations,
		"incidents", result.SourceRows.Incidents,
		"returns", result.SourceRows.Returns)
	runCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 2,
		},
	})
	var runResult pipeline.Result
	err = workflow.ExecuteActivity(runCtx, a.ReconcileActivity, ReconcileInput{
		Sources: sources,
		RunID:   runID,
		Trigger: trigger,
	}).Get(ctx, &runResult)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("failed to reconcile: %v", err))
		publishFailureEvent(ctx, result, err)
		return result, err
	}

	result.TotalDevices = runResult.Summary.TotalDevices
	result.InvalidSerials = runResult.InvalidSerials
	result.DuplicatesRemoved = runResult.DuplicatesRemoved
	result.CacheHit = runResult.CacheHit
	result.DurationMS = runResult.Duration.Milliseconds()

	// Step 3: Export the result
	logger.Info("Exporting run result", "devices", result.TotalDevices)
	var manifest export.Manifest
	err = workflow.ExecuteActivity(runCtx, a.ExportResultsActivity, ExportInput{
		Result: &runResult,
	}).Get(ctx, &manifest)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("failed to export results: %v", err))
		publishFailureEvent(ctx, result, err)
		return result, err
	}
	result.ExportedFiles = manifest.Files

	// Step 4: Publish the completion event. The run already has its
	// artifacts, so a lost event is recorded but does not fail the run.
	logger.Info("Publishing run event")
	var published bool
	err = workflow.ExecuteActivity(ctx, a.PublishRunEventActivity, PublishRunEventInput{
		Event:  notify.EventCompleted,
		Result: &runResult,
	}).Get(ctx, &published)
	if err != nil {
		logger.Error("Failed to publish completion event", "error", err)
		result.Errors = append(result.Errors, fmt.Sprintf("failed to publish run event: %v", err))
	} else {
		result.EventPublished = published
	}

	logger.Info("Reconciliation complete",
		"run_id", result.RunID,
		"devices", result.TotalDevices,
		"exported_files", len(result.ExportedFiles),
		"event_published", result.EventPublished)

	return result, nil
}

// publishFailureEvent best-effort publishes a failure event before the
// workflow fails. Log only; the original error must not be masked.
func publishFailureEvent(ctx workflow.Context, result *ReconciliationResult, cause error) {
	var a *Activities
	var published bool
	err := workflow.ExecuteActivity(ctx, a.PublishRunEventActivity, PublishRunEventInput{
		Event:   notify.EventFailed,
		RunID:   result.RunID,
		Trigger: result.Trigger,
		Error:   cause.Error(),
	}).Get(ctx, &published)
	if err != nil {
		workflow.GetLogger(ctx).Warn("Failed to publish failure event (non-fatal)", "error", err)
	}
}

// Inputs and outputs below cross the Temporal data converter, so they carry
// only serializable state.

type ReconcileInput struct {
	Sources ingest.Sources
	RunID   string
	Trigger string
}

type ExportInput struct {
	Result *pipeline.Result
}

// PublishRunEventInput selects the event to publish. Completion events carry
// the full result; failure events carry the run identity and the error.
type PublishRunEventInput struct {
	Event   string
	Result  *pipeline.Result
	RunID   string
	Trigger string
	Error   string
}
