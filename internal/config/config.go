// Package config provides configuration loading for fleetrecon.
//
// Configuration is loaded from a YAML file with environment variable
// overrides. This package covers the server, pipeline, and adapter settings;
// the logging and telemetry packages keep richer option structs of their own
// and are seeded from the sections here.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete fleetrecon configuration.
type Config struct {
	Server    ServerConfig
	Logging   LoggingConfig
	Telemetry TelemetryConfig
	Pipeline  PipelineConfig
	Cache     CacheConfig
	Ingest    IngestConfig
	Export    ExportConfig
	Scrub     ScrubConfig
	Watch     WatchConfig
	Notify    NotifyConfig
	Workflow  WorkflowConfig
}

// ServerConfig is the listen address and throttle for the daemon's HTTP API.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	RateLimitRPS    float64       `koanf:"rate_limit_rps"`
	RateLimitBurst  int           `koanf:"rate_limit_burst"`
}

// Address returns the host:port pair the HTTP server binds to.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig holds the daemon-facing logging knobs. The full option
// surface (sampling, caller, stacktraces) lives in internal/logging.
type LoggingConfig struct {
	Level        string   `koanf:"level"`
	Format       string   `koanf:"format"`
	OTEL         bool     `koanf:"otel"`
	MaskSerials  bool     `koanf:"mask_serials"`
	RedactFields []string `koanf:"redact_fields"`
}

// TelemetryConfig holds the daemon-facing OpenTelemetry knobs.
type TelemetryConfig struct {
	Enabled         bool     `koanf:"enabled"`
	ServiceName     string   `koanf:"service_name"`
	Endpoint        string   `koanf:"endpoint"`
	Protocol        string   `koanf:"protocol"`
	Insecure        bool     `koanf:"insecure"`
	TLSSkipVerify   bool     `koanf:"tls_skip_verify"`
	SampleRate      float64  `koanf:"sample_rate"`
	ExportInterval  Duration `koanf:"export_interval"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// PipelineConfig holds the reconciliation pipeline configuration.
type PipelineConfig struct {
	Fields            FieldsConfig    `koanf:"fields"`
	Dates             DatesConfig     `koanf:"dates"`
	Serial            SerialConfig    `koanf:"serial"`
	Dedupe            DedupeConfig    `koanf:"dedupe"`
	Metrics           MetricsConfig   `koanf:"metrics"`
	Aggregate         AggregateConfig `koanf:"aggregate"`
	ScrubDescriptions bool            `koanf:"scrub_descriptions"`
}

// FieldsConfig maps semantic field names to source column headers, one map
// per source table. The pipeline never hardcodes source column names.
type FieldsConfig struct {
	Installations map[string]string `koanf:"installations"`
	Incidents     map[string]string `koanf:"incidents"`
	Returns       map[string]string `koanf:"returns"`
}

// DatesConfig controls date normalization.
type DatesConfig struct {
	Layouts     []string `koanf:"layouts"`
	ExcelSerial bool     `koanf:"excel_serial"`
}

// SerialConfig controls serial code validation.
type SerialConfig struct {
	Length      int `koanf:"length"`
	YearMin     int `koanf:"year_min"`
	YearMax     int `koanf:"year_max"`
	CenturyBase int `koanf:"century_base"`
}

// DedupeConfig controls duplicate removal.
type DedupeConfig struct {
	Keys []string `koanf:"keys"`
}

// MetricsConfig controls lifecycle metric computation.
type MetricsConfig struct {
	// AsOf pins the reference clock for reproducible runs (YYYY-MM-DD).
	// Empty means wall clock at run start.
	AsOf string `koanf:"as_of"`
}

// AggregateConfig controls grouping and long-tail folding.
type AggregateConfig struct {
	Dimensions [][]string     `koanf:"dimensions"`
	LongTail   LongTailConfig `koanf:"long_tail"`
}

// LongTailConfig folds low-share buckets into a single labeled bucket.
type LongTailConfig struct {
	Enabled   bool    `koanf:"enabled"`
	Threshold float64 `koanf:"threshold"`
	Label     string  `koanf:"label"`
}

// CacheConfig controls the run fingerprint cache.
type CacheConfig struct {
	Enabled    bool     `koanf:"enabled"`
	TTL        Duration `koanf:"ttl"`
	MaxEntries int      `koanf:"max_entries"`
}

// IngestConfig holds source file locations and the optional remote source.
type IngestConfig struct {
	Installations string       `koanf:"installations"`
	Incidents     string       `koanf:"incidents"`
	Returns       string       `koanf:"returns"`
	Remote        RemoteConfig `koanf:"remote"`
}

// RemoteConfig holds OAuth2 client-credentials settings for pulling source
// exports from a fleet platform API.
type RemoteConfig struct {
	Enabled      bool     `koanf:"enabled"`
	BaseURL      string   `koanf:"base_url"`
	TokenURL     string   `koanf:"token_url"`
	ClientID     string   `koanf:"client_id"`
	ClientSecret Secret   `koanf:"client_secret"`
	Timeout      Duration `koanf:"timeout"`
}

// ExportConfig holds output settings.
type ExportConfig struct {
	Dir        string   `koanf:"dir"`
	Formats    []string `koanf:"formats"`
	SQLitePath string   `koanf:"sqlite_path"`
}

// ScrubConfig locates the allowlists for the description scrubber. Empty
// paths skip the corresponding allowlist.
type ScrubConfig struct {
	// ProjectPath is the directory containing .gitleaks.toml.
	ProjectPath string `koanf:"project_path"`
	// UserPath is the full path to the user allowlist.toml.
	UserPath string `koanf:"user_path"`
}

// WatchConfig controls the source-directory watcher.
type WatchConfig struct {
	Enabled  bool     `koanf:"enabled"`
	Dir      string   `koanf:"dir"`
	Debounce Duration `koanf:"debounce"`
}

// NotifyConfig controls the NATS run-event publisher.
type NotifyConfig struct {
	Enabled       bool   `koanf:"enabled"`
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
	Credentials   Secret `koanf:"credentials"`
}

// WorkflowConfig controls the optional Temporal worker.
type WorkflowConfig struct {
	Enabled   bool   `koanf:"enabled"`
	HostPort  string `koanf:"host_port"`
	Namespace string `koanf:"namespace"`
	TaskQueue string `koanf:"task_queue"`
}

// Default returns the full default configuration tree, equivalent to loading
// with no config file and no environment overrides.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// exportFormats enumerates the supported export formats.
var exportFormats = map[string]bool{
	"csv":    true,
	"json":   true,
	"sqlite": true,
}

// Validate checks the assembled tree before the daemon starts and returns
// the first problem found: a server port outside 1-65535, a non-positive
// timeout or rate limit, inconsistent serial code geometry, empty dedupe
// keys, a long-tail threshold outside (0, 1), an unknown export format, or
// an enabled adapter (remote, watch, notify, workflow) missing required
// settings.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d, want 1-65535", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("server shutdown timeout must be positive")
	}
	if c.Server.RateLimitRPS <= 0 {
		return errors.New("rate_limit_rps must be positive")
	}
	if c.Server.RateLimitBurst < 1 {
		return errors.New("rate_limit_burst must be at least 1")
	}

	if c.Telemetry.Enabled && c.Telemetry.ServiceName == "" {
		return errors.New("telemetry requires a service_name when enabled")
	}
	switch c.Telemetry.Protocol {
	case "", "grpc", "http/protobuf":
	default:
		return fmt.Errorf("invalid telemetry protocol: %q (must be grpc or http/protobuf)", c.Telemetry.Protocol)
	}

	// Serial geometry: month (2 digits) and year (2 digits) must fit.
	if c.Pipeline.Serial.Length < 4 {
		return fmt.Errorf("serial length must be at least 4, got %d", c.Pipeline.Serial.Length)
	}
	if c.Pipeline.Serial.YearMin > c.Pipeline.Serial.YearMax {
		return fmt.Errorf("serial year window inverted: min %d > max %d",
			c.Pipeline.Serial.YearMin, c.Pipeline.Serial.YearMax)
	}
	if c.Pipeline.Serial.CenturyBase <= 0 {
		return fmt.Errorf("serial century_base must be positive, got %d", c.Pipeline.Serial.CenturyBase)
	}

	if len(c.Pipeline.Dedupe.Keys) == 0 {
		return errors.New("dedupe keys must not be empty")
	}

	if c.Pipeline.Metrics.AsOf != "" {
		if _, err := time.Parse("2006-01-02", c.Pipeline.Metrics.AsOf); err != nil {
			return fmt.Errorf("invalid metrics as_of date %q: %w", c.Pipeline.Metrics.AsOf, err)
		}
	}

	lt := c.Pipeline.Aggregate.LongTail
	if lt.Enabled && (lt.Threshold <= 0 || lt.Threshold >= 1) {
		return fmt.Errorf("long_tail threshold must be in (0, 1), got %g", lt.Threshold)
	}

	for _, f := range c.Export.Formats {
		if !exportFormats[f] {
			return fmt.Errorf("unknown export format: %q", f)
		}
	}

	if c.Cache.Enabled {
		if c.Cache.TTL.Duration() <= 0 {
			return errors.New("cache ttl must be positive when cache is enabled")
		}
		if c.Cache.MaxEntries < 1 {
			return errors.New("cache max_entries must be at least 1 when cache is enabled")
		}
	}

	r := c.Ingest.Remote
	if r.Enabled {
		if r.BaseURL == "" || r.TokenURL == "" || r.ClientID == "" {
			return errors.New("remote ingest requires base_url, token_url, and client_id")
		}
	}

	if c.Watch.Enabled {
		if c.Watch.Dir == "" {
			return errors.New("watch requires a dir when enabled")
		}
		if c.Watch.Debounce.Duration() <= 0 {
			return errors.New("watch debounce must be positive when enabled")
		}
	}

	if c.Notify.Enabled && c.Notify.URL == "" {
		return errors.New("notify requires a url when enabled")
	}

	if c.Workflow.Enabled {
		if c.Workflow.HostPort == "" || c.Workflow.TaskQueue == "" {
			return errors.New("workflow requires host_port and task_queue when enabled")
		}
	}

	return nil
}
