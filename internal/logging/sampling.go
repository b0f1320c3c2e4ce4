// internal/logging/sampling.go
package logging

import (
	"go.uber.org/zap/zapcore"
)

// newSampledCore applies level-aware sampling to core. Entries at Error and
// above always pass. Everything below shares one token bucket tuned by the
// Info-level rates, refilled every cfg.Tick.
func newSampledCore(core zapcore.Core, cfg SamplingConfig) zapcore.Core {
	if !cfg.Enabled {
		return core
	}

	rates := cfg.Levels[zapcore.InfoLevel]
	sampled := zapcore.NewSamplerWithOptions(
		levelBand(core, TraceLevel, zapcore.WarnLevel),
		cfg.Tick.Duration(),
		rates.Initial,
		rates.Thereafter,
	)

	return zapcore.NewTee(
		levelBand(core, zapcore.ErrorLevel, zapcore.FatalLevel),
		sampled,
	)
}

// bandCore restricts a core to an inclusive level range. Both bounds are
// real levels, so InfoLevel (0) works as a bound like any other.
type bandCore struct {
	zapcore.Core
	lo, hi zapcore.Level
}

func levelBand(core zapcore.Core, lo, hi zapcore.Level) zapcore.Core {
	return &bandCore{Core: core, lo: lo, hi: hi}
}

func (c *bandCore) Enabled(lvl zapcore.Level) bool {
	return lvl >= c.lo && lvl <= c.hi && c.Core.Enabled(lvl)
}

func (c *bandCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(e.Level) {
		return ce
	}
	return c.Core.Check(e, ce)
}

func (c *bandCore) With(fields []zapcore.Field) zapcore.Core {
	return &bandCore{Core: c.Core.With(fields), lo: c.lo, hi: c.hi}
}
