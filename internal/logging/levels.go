// internal/logging/levels.go
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"
)

// TraceLevel sits one step below zapcore.DebugLevel. It carries wire data,
// per-row reconciliation decisions and other output too noisy for debug, and
// is filtered everywhere except deep debugging sessions.
const TraceLevel = zapcore.Level(-2)

// LevelFromString parses a level name. On top of the names zapcore accepts
// it understands "trace" and the common "warning" alias.
func LevelFromString(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return TraceLevel, nil
	case "warning":
		return zapcore.WarnLevel, nil
	}

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q: %w", s, err)
	}
	return lvl, nil
}
