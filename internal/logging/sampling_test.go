package logging

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/fyrsmithlabs/fleetrecon/internal/config"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// sampledLogger builds a Logger whose core applies the given sampling,
// recording everything that survives.
func sampledLogger(t *testing.T, sampling SamplingConfig) (*Logger, *observer.ObservedLogs) {
	t.Helper()
	core, observed := observer.New(TraceLevel)
	return &Logger{base: zap.New(newSampledCore(core, sampling)), cfg: NewDefaultConfig()}, observed
}

func TestNewSampledCore_Disabled(t *testing.T) {
	core, _ := observer.New(zapcore.InfoLevel)

	sampled := newSampledCore(core, SamplingConfig{Enabled: false})

	assert.Equal(t, core, sampled, "disabled sampling must return the core untouched")
}

func TestNewSampledCore_InitialBudget(t *testing.T) {
	logger, observed := sampledLogger(t, SamplingConfig{
		Enabled: true,
		Tick:    config.Duration(time.Minute),
		Levels: map[zapcore.Level]LevelSamplingConfig{
			zapcore.InfoLevel: {Initial: 5, Thereafter: 0},
		},
	})

	ctx := context.Background()
	for i := 0; i < 50; i++ {
		logger.Info(ctx, "repeated message")
	}

	got := observed.FilterMessage("repeated message").Len()
	assert.GreaterOrEqual(t, got, 5, "the initial budget must pass")
	// A tick boundary mid-loop can grant one extra budget.
	assert.LessOrEqual(t, got, 10, "everything past the budget must drop")
}

func TestNewSampledCore_Thereafter(t *testing.T) {
	logger, observed := sampledLogger(t, SamplingConfig{
		Enabled: true,
		Tick:    config.Duration(time.Minute),
		Levels: map[zapcore.Level]LevelSamplingConfig{
			zapcore.InfoLevel: {Initial: 5, Thereafter: 2},
		},
	})

	ctx := context.Background()
	for i := 0; i < 100; i++ {
		logger.Info(ctx, "repeated message")
	}

	// 5 initial plus every 2nd of the remaining 95.
	got := observed.FilterMessage("repeated message").Len()
	assert.GreaterOrEqual(t, got, 52)
	assert.Less(t, got, 100, "sampling must drop part of the volume")
}

func TestNewSampledCore_ErrorsAlwaysPass(t *testing.T) {
	logger, observed := sampledLogger(t, SamplingConfig{
		Enabled: true,
		Tick:    config.Duration(time.Minute),
		Levels: map[zapcore.Level]LevelSamplingConfig{
			zapcore.InfoLevel: {Initial: 1, Thereafter: 0},
		},
	})

	ctx := context.Background()
	for i := 0; i < 100; i++ {
		logger.Error(ctx, "row rejected", zap.Int("row", i))
	}

	assert.Equal(t, 100, observed.FilterMessage("row rejected").Len())
}

func TestNewSampledCore_DPanicInErrorBand(t *testing.T) {
	logger, observed := sampledLogger(t, SamplingConfig{
		Enabled: true,
		Tick:    config.Duration(time.Minute),
		Levels: map[zapcore.Level]LevelSamplingConfig{
			zapcore.InfoLevel: {Initial: 1, Thereafter: 0},
		},
	})

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		logger.DPanic(ctx, "invariant broken")
	}

	assert.Equal(t, 20, observed.FilterMessage("invariant broken").Len())
}

func TestLevelBand_Bounds(t *testing.T) {
	tests := []struct {
		lo, hi zapcore.Level
		lvl    zapcore.Level
		want   bool
	}{
		{zapcore.ErrorLevel, zapcore.FatalLevel, zapcore.WarnLevel, false},
		{zapcore.ErrorLevel, zapcore.FatalLevel, zapcore.ErrorLevel, true},
		{zapcore.ErrorLevel, zapcore.FatalLevel, zapcore.FatalLevel, true},
		{TraceLevel, zapcore.WarnLevel, TraceLevel, true},
		{TraceLevel, zapcore.WarnLevel, zapcore.InfoLevel, true},
		{TraceLevel, zapcore.WarnLevel, zapcore.WarnLevel, true},
		{TraceLevel, zapcore.WarnLevel, zapcore.ErrorLevel, false},
		// Info (level 0) works as a lower bound.
		{zapcore.InfoLevel, zapcore.WarnLevel, zapcore.DebugLevel, false},
		{zapcore.InfoLevel, zapcore.WarnLevel, zapcore.InfoLevel, true},
	}

	for _, tt := range tests {
		name := fmt.Sprintf("band[%v,%v]_%v", tt.lo, tt.hi, tt.lvl)
		t.Run(name, func(t *testing.T) {
			core, _ := observer.New(TraceLevel)
			band := levelBand(core, tt.lo, tt.hi)
			assert.Equal(t, tt.want, band.Enabled(tt.lvl))
		})
	}
}

func TestLevelBand_WithKeepsBand(t *testing.T) {
	core, observed := observer.New(TraceLevel)
	band := levelBand(core, zapcore.ErrorLevel, zapcore.FatalLevel)

	logger := &Logger{base: zap.New(band), cfg: NewDefaultConfig()}
	child := logger.With(zap.String("component", "merge"))

	ctx := context.Background()
	child.Info(ctx, "info message")
	child.Warn(ctx, "warn message")
	child.Error(ctx, "error message")

	logs := observed.All()
	assert.Len(t, logs, 1, "only the error is inside the band")
	assert.Equal(t, "error message", logs[0].Message)
	assert.Equal(t, "merge", logs[0].ContextMap()["component"])
}
