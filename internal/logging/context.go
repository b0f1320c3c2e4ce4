// internal/logging/context.go
package logging

import (
	"context"
	"fmt"
	"regexp"
	"unicode/utf8"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Length caps for correlation values.
const (
	maxRunFieldLen = 64
	maxIDLen       = 128
)

// tokenPattern is the shape of every correlation value: run IDs, triggers,
// stage names and request IDs.
var tokenPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// validateToken rejects empty, malformed or oversized correlation values.
func validateToken(val, name string, max int) error {
	switch {
	case val == "":
		return fmt.Errorf("%s is empty", name)
	case !utf8.ValidString(val):
		return fmt.Errorf("%s is not valid UTF-8", name)
	case len(val) > max:
		return fmt.Errorf("%s exceeds max length %d", name, max)
	case !tokenPattern.MatchString(val):
		return fmt.Errorf("%s has characters outside [a-zA-Z0-9_-]", name)
	}
	return nil
}

type runKey struct{}
type stageKey struct{}
type requestKey struct{}
type loggerKey struct{}

// Run identifies one pipeline invocation and what triggered it (cli, http,
// watch, workflow).
type Run struct {
	ID      string
	Trigger string
}

// WithRun attaches a run to ctx. Correlation values come from our own code,
// so invalid ones panic rather than silently corrupting log correlation.
func WithRun(ctx context.Context, run *Run) context.Context {
	if run == nil {
		panic("logging: run cannot be nil")
	}
	if err := validateToken(run.ID, "run.ID", maxRunFieldLen); err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	if err := validateToken(run.Trigger, "run.Trigger", maxRunFieldLen); err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	return context.WithValue(ctx, runKey{}, run)
}

// RunFromContext returns the run attached to ctx, or nil.
func RunFromContext(ctx context.Context) *Run {
	r, _ := ctx.Value(runKey{}).(*Run)
	return r
}

// WithStage attaches a pipeline stage name to ctx. Panics on invalid names.
func WithStage(ctx context.Context, stage string) context.Context {
	if err := validateToken(stage, "stage", maxIDLen); err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	return context.WithValue(ctx, stageKey{}, stage)
}

// StageFromContext returns the stage attached to ctx, or "".
func StageFromContext(ctx context.Context) string {
	s, _ := ctx.Value(stageKey{}).(string)
	return s
}

// WithRequestID attaches an HTTP request ID to ctx. Panics on invalid IDs;
// callers stamping inbound values must validate them first.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if err := validateToken(requestID, "requestID", maxIDLen); err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	return context.WithValue(ctx, requestKey{}, requestID)
}

// RequestIDFromContext returns the request ID attached to ctx, or "".
func RequestIDFromContext(ctx context.Context) string {
	r, _ := ctx.Value(requestKey{}).(string)
	return r
}

// WithLogger stores a logger in ctx.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger stored in ctx, or a nop logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey{}).(*Logger); ok {
		return l
	}
	return Nop()
}

// ContextFields collects the correlation fields for one entry: active span,
// run, stage and request ID, in that order.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 8)

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
		if sc.IsSampled() {
			fields = append(fields, zap.Bool("trace_sampled", true))
		}
	}

	if run := RunFromContext(ctx); run != nil {
		fields = append(fields,
			zap.String("run.id", run.ID),
			zap.String("run.trigger", run.Trigger),
		)
	}

	if stage := StageFromContext(ctx); stage != "" {
		fields = append(fields, zap.String("stage", stage))
	}

	if id := RequestIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("request.id", id))
	}

	return fields
}
