package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lognoop "go.opentelemetry.io/otel/log/noop"
	"go.uber.org/zap/zapcore"
)

func TestNewCore_StdoutOnly(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Output = OutputConfig{Stdout: true}

	core, err := newCore(cfg, nil)
	require.NoError(t, err)
	assert.True(t, core.Enabled(zapcore.InfoLevel))
	assert.False(t, core.Enabled(zapcore.DebugLevel), "default level is info")
}

func TestNewCore_OTELWithoutProvider(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Output = OutputConfig{OTEL: true}

	_, err := newCore(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no log output")
}

func TestNewCore_OTELOnly(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Output = OutputConfig{OTEL: true}

	core, err := newCore(cfg, lognoop.NewLoggerProvider())
	require.NoError(t, err)
	assert.NotNil(t, core)
}

func TestNewCore_BothOutputs(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Output = OutputConfig{Stdout: true, OTEL: true}

	core, err := newCore(cfg, lognoop.NewLoggerProvider())
	require.NoError(t, err)
	assert.NotNil(t, core)
}

func TestNewCore_BadRedactionPattern(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Redaction.Patterns = []string{"(unclosed"}

	_, err := newCore(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redacting encoder")
}
