// internal/logging/integration_test.go
package logging

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/fyrsmithlabs/fleetrecon/internal/config"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Smoke test for the assembled pipeline: config, encoder, redaction, child
// loggers, all levels. Output goes to stdout and is not inspected here; the
// encoder-level assertions live in redact_test.go.
func TestIntegration_FullPipeline(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Level = TraceLevel
	cfg.Sampling.Enabled = false

	logger, err := NewLogger(cfg, nil)
	require.NoError(t, err)
	defer func() { _ = logger.Sync() }()

	ctx := WithRun(context.Background(), &Run{ID: "run-integration-1", Trigger: "cli"})
	ctx = WithStage(ctx, "merge")
	ctx = WithRequestID(ctx, "req_0d9f31")

	logger.Trace(ctx, "trace message", zap.String("detail", "row-level parse"))
	logger.Debug(ctx, "debug message", zap.String("cache", "miss"))
	logger.Info(ctx, "info message", zap.Duration("duration", 82*time.Millisecond))
	logger.Warn(ctx, "warn message", zap.Int("invalid_serials", 3))
	logger.Error(ctx, "error message", zap.Error(fmt.Errorf("incidents.csv: short row")))

	logger.Info(ctx, "remote source configured",
		zap.String("base_url", "https://fleet.example.com/api"),
		Secret("client_secret", config.Secret("super-secret")),
	)

	logger.With(zap.String("component", "ingest")).Info(ctx, "child log")
	logger.Named("subsystem").Info(ctx, "named log")
}

func TestIntegration_ContextFieldInjection(t *testing.T) {
	tl := NewTestLogger()

	ctx := WithRun(context.Background(), &Run{ID: "run-20240315-a1b2", Trigger: "watch"})
	ctx = WithStage(ctx, "lifecycle")

	tl.Info(ctx, "stage complete", zap.Int("rows", 1200))

	tl.AssertLogged(t, zapcore.InfoLevel, "stage complete")
	tl.AssertField(t, "stage complete", "run.id", "run-20240315-a1b2")
	tl.AssertField(t, "stage complete", "run.trigger", "watch")
	tl.AssertField(t, "stage complete", "stage", "lifecycle")
	tl.AssertField(t, "stage complete", "rows", int64(1200))
	tl.AssertRunCorrelation(t, "stage complete")
}

func TestIntegration_SecretRedaction(t *testing.T) {
	tl := NewTestLogger()

	tl.Info(context.Background(), "auth",
		Secret("credentials", config.Secret("my-secret-token")),
	)

	tl.AssertLogged(t, zapcore.InfoLevel, "auth")
	tl.AssertNoSecrets(t)
}
