package workflows

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/fleetrecon/internal/config"
	"github.com/fyrsmithlabs/fleetrecon/internal/logging"
)

// Worker hosts the reconciliation workflow on a Temporal task queue. The
// daemon embeds one when workflow execution is enabled in config.
type Worker struct {
	client    client.Client
	worker    worker.Worker
	taskQueue string
	logger    *logging.Logger
}

// NewWorker dials the Temporal server and registers the reconciliation
// workflow and its activities on the configured task queue.
func NewWorker(cfg config.WorkflowConfig, activities *Activities, logger *logging.Logger) (*Worker, error) {
	if activities == nil {
		return nil, errors.New("activities cannot be nil")
	}
	if logger == nil {
		logger = logging.Nop()
	}

	c, err := client.Dial(client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create Temporal client: %w", err)
	}

	w := worker.New(c, cfg.TaskQueue, worker.Options{})
	w.RegisterWorkflow(ReconciliationWorkflow)
	w.RegisterActivity(activities)

	return &Worker{
		client:    c,
		worker:    w,
		taskQueue: cfg.TaskQueue,
		logger:    logger,
	}, nil
}

// Start begins polling the task queue. Non-blocking; pair with Stop.
func (w *Worker) Start() error {
	w.logger.Info(context.Background(), "starting workflow worker",
		zap.String("task_queue", w.taskQueue))
	if err := w.worker.Start(); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}
	return nil
}

// Stop drains in-flight activities and closes the Temporal client.
func (w *Worker) Stop() {
	w.logger.Info(context.Background(), "stopping workflow worker")
	w.worker.Stop()
	w.client.Close()
}
