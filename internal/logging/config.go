// internal/logging/config.go
package logging

import (
	"fmt"
	"regexp"
	"time"

	"github.com/fyrsmithlabs/fleetrecon/internal/config"
	"go.uber.org/zap/zapcore"
)

// maxRedactPattern caps redaction pattern length as a cheap guard against
// pathological regexes arriving through config.
const maxRedactPattern = 200

// Config is the logging section of the daemon configuration.
type Config struct {
	Level      zapcore.Level     `koanf:"level"`
	Format     string            `koanf:"format"`
	Output     OutputConfig      `koanf:"output"`
	Sampling   SamplingConfig    `koanf:"sampling"`
	Caller     CallerConfig      `koanf:"caller"`
	Stacktrace StacktraceConfig  `koanf:"stacktrace"`
	Fields     map[string]string `koanf:"fields"`
	Redaction  RedactionConfig   `koanf:"redaction"`
}

// OutputConfig selects where entries are written. Both outputs may be on at
// once; at least one must be.
type OutputConfig struct {
	Stdout bool `koanf:"stdout"`
	OTEL   bool `koanf:"otel"`
}

// SamplingConfig bounds log volume below Error level.
type SamplingConfig struct {
	Enabled bool                                  `koanf:"enabled"`
	Tick    config.Duration                       `koanf:"tick"`
	Levels  map[zapcore.Level]LevelSamplingConfig `koanf:"levels"`
}

// LevelSamplingConfig is one level's token-bucket shape: Initial entries per
// tick pass untouched, then one in Thereafter.
type LevelSamplingConfig struct {
	Initial    int `koanf:"initial"`
	Thereafter int `koanf:"thereafter"`
}

// CallerConfig controls caller annotation. Skip counts extra frames above
// the Logger wrapper, for callers that wrap it again.
type CallerConfig struct {
	Enabled bool `koanf:"enabled"`
	Skip    int  `koanf:"skip"`
}

// StacktraceConfig sets the level at which stacktraces are captured.
type StacktraceConfig struct {
	Level zapcore.Level `koanf:"level"`
}

// RedactionConfig controls sensitive data redaction. MaskSerials additionally
// masks device serial values so runs over customer fleets can be debugged
// without spraying hardware identifiers into log storage.
type RedactionConfig struct {
	Enabled     bool     `koanf:"enabled"`
	Fields      []string `koanf:"fields"`
	Patterns    []string `koanf:"patterns"`
	MaskSerials bool     `koanf:"mask_serials"`
}

// NewDefaultConfig returns production-ready defaults: JSON to stdout at Info,
// sampling on, redaction on.
func NewDefaultConfig() *Config {
	return &Config{
		Level:  zapcore.InfoLevel,
		Format: "json",
		Output: OutputConfig{Stdout: true},
		Sampling: SamplingConfig{
			Enabled: true,
			Tick:    config.Duration(time.Second),
			Levels:  defaultLevelSampling(),
		},
		Caller:     CallerConfig{Enabled: true},
		Stacktrace: StacktraceConfig{Level: zapcore.ErrorLevel},
		Fields:     map[string]string{"service": "fleetrecond"},
		Redaction: RedactionConfig{
			Enabled: true,
			Fields: []string{
				"password", "secret", "token", "api_key",
				"authorization", "bearer", "credential", "client_secret",
			},
			Patterns: []string{
				`(?i)bearer\s+\S+`,
				`(?i)api[_-]?key[=:]\s*\S+`,
			},
		},
	}
}

// defaultLevelSampling keeps trace output to a trickle and leaves warnings
// mostly intact. Error and above are never sampled.
func defaultLevelSampling() map[zapcore.Level]LevelSamplingConfig {
	return map[zapcore.Level]LevelSamplingConfig{
		TraceLevel:         {Initial: 1, Thereafter: 0},
		zapcore.DebugLevel: {Initial: 10, Thereafter: 0},
		zapcore.InfoLevel:  {Initial: 100, Thereafter: 10},
		zapcore.WarnLevel:  {Initial: 100, Thereafter: 100},
	}
}

// Validate checks the config for errors.
func (c *Config) Validate() error {
	switch c.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unsupported format %q, expected json or console", c.Format)
	}

	if !c.Output.Stdout && !c.Output.OTEL {
		return fmt.Errorf("no log outputs enabled, turn on stdout or otel")
	}

	if c.Sampling.Enabled && c.Sampling.Tick.Duration() <= 0 {
		return fmt.Errorf("sampling is enabled but tick is not positive")
	}

	if c.Caller.Enabled && c.Caller.Skip < 0 {
		return fmt.Errorf("negative caller skip %d", c.Caller.Skip)
	}

	if c.Redaction.Enabled {
		if err := validatePatterns(c.Redaction.Patterns); err != nil {
			return err
		}
	}

	for k, v := range c.Fields {
		if k == "" {
			return fmt.Errorf("static field with empty key")
		}
		if v == "" {
			return fmt.Errorf("static field %q with empty value", k)
		}
	}

	return nil
}

func validatePatterns(patterns []string) error {
	for _, p := range patterns {
		if len(p) > maxRedactPattern {
			return fmt.Errorf("redaction pattern too long (max %d chars): %q", maxRedactPattern, p)
		}
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("redaction pattern %q does not compile: %w", p, err)
		}
	}
	return nil
}
