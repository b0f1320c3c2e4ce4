// Package notify publishes run lifecycle events to NATS.
//
// Every run transition publishes one JSON event on
//
//	{prefix}.{trigger}.{run_id}.{event}
//
// so consumers can subscribe to everything ({prefix}.>), one trigger
// ({prefix}.watch.>), or one run. Publishing is disabled by default;
// the Publisher borrows its connection and never closes it.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/fleetrecon/internal/config"
	"github.com/fyrsmithlabs/fleetrecon/internal/logging"
	"github.com/fyrsmithlabs/fleetrecon/internal/pipeline"
)

// Event names carried in the subject and payload.
const (
	EventStarted   = "started"
	EventCompleted = "completed"
	EventFailed    = "failed"
)

// RunEvent is the payload published for every run transition.
type RunEvent struct {
	RunID     string    `json:"run_id"`
	Event     string    `json:"event"`
	Trigger   string    `json:"trigger"`
	Timestamp time.Time `json:"timestamp"`

	SourceRows *pipeline.SourceRows `json:"source_rows,omitempty"`

	TotalDevices      int   `json:"total_devices,omitempty"`
	InvalidSerials    int   `json:"invalid_serials,omitempty"`
	DuplicatesRemoved int   `json:"duplicates_removed,omitempty"`
	DurationMS        int64 `json:"duration_ms,omitempty"`
	CacheHit          bool  `json:"cache_hit,omitempty"`

	Error string `json:"error,omitempty"`
}

// Connect dials the configured NATS server. The connection retries in
// the background, so a daemon can start before its broker.
func Connect(cfg config.NotifyConfig) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("fleetrecon"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1 * time.Second),
	}
	if cfg.Credentials.IsSet() {
		opts = append(opts, nats.Token(cfg.Credentials.Value()))
	}
	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", cfg.URL, err)
	}
	return nc, nil
}

// Publisher publishes run events on a borrowed NATS connection.
type Publisher struct {
	nc     *nats.Conn
	prefix string
	logger *logging.Logger
}

// NewPublisher creates a Publisher. An empty subject prefix falls back
// to "runs"; a nil logger falls back to a no-op logger.
func NewPublisher(nc *nats.Conn, cfg config.NotifyConfig, logger *logging.Logger) *Publisher {
	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = "runs"
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Publisher{nc: nc, prefix: prefix, logger: logger}
}

// RunStarted publishes the started event before the pipeline executes.
func (p *Publisher) RunStarted(ctx context.Context, runID, trigger string, rows pipeline.SourceRows) error {
	event := RunEvent{
		RunID:      runID,
		Event:      EventStarted,
		Trigger:    defaultTrigger(trigger),
		Timestamp:  time.Now().UTC(),
		SourceRows: &rows,
	}
	return p.publish(ctx, event)
}

// RunCompleted publishes the completed event with the run's headline
// numbers.
func (p *Publisher) RunCompleted(ctx context.Context, res *pipeline.Result) error {
	rows := res.SourceRows
	event := RunEvent{
		RunID:             res.RunID,
		Event:             EventCompleted,
		Trigger:           defaultTrigger(res.Trigger),
		Timestamp:         time.Now().UTC(),
		SourceRows:        &rows,
		TotalDevices:      res.Summary.TotalDevices,
		InvalidSerials:    res.InvalidSerials,
		DuplicatesRemoved: res.DuplicatesRemoved,
		DurationMS:        res.Duration.Milliseconds(),
		CacheHit:          res.CacheHit,
	}
	return p.publish(ctx, event)
}

// RunFailed publishes the failed event with the error message.
func (p *Publisher) RunFailed(ctx context.Context, runID, trigger string, runErr error) error {
	event := RunEvent{
		RunID:     runID,
		Event:     EventFailed,
		Trigger:   defaultTrigger(trigger),
		Timestamp: time.Now().UTC(),
	}
	if runErr != nil {
		event.Error = runErr.Error()
	}
	return p.publish(ctx, event)
}

func (p *Publisher) publish(ctx context.Context, event RunEvent) error {
	subject := fmt.Sprintf("%s.%s.%s.%s", p.prefix, event.Trigger, event.RunID, event.Event)
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal run event: %w", err)
	}
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s event: %w", event.Event, err)
	}
	p.logger.Debug(ctx, "run event published",
		zap.String("subject", subject),
		zap.String("run_id", event.RunID),
	)
	return nil
}

func defaultTrigger(trigger string) string {
	if trigger == "" {
		return "manual"
	}
	return trigger
}
