package config

import (
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Errorf("Server.ShutdownTimeout = %v, want 10s", cfg.Server.ShutdownTimeout)
	}
	if cfg.Server.Address() != ":9090" {
		t.Errorf("Server.Address() = %q, want :9090", cfg.Server.Address())
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
	if cfg.Telemetry.Enabled {
		t.Error("Telemetry.Enabled = true, want false (disabled by default)")
	}
	if cfg.Telemetry.ServiceName != "fleetrecond" {
		t.Errorf("Telemetry.ServiceName = %q, want fleetrecond", cfg.Telemetry.ServiceName)
	}

	// Pipeline defaults
	if cfg.Pipeline.Serial.Length != 7 {
		t.Errorf("Serial.Length = %d, want 7", cfg.Pipeline.Serial.Length)
	}
	if cfg.Pipeline.Serial.YearMin != 17 || cfg.Pipeline.Serial.YearMax != 26 {
		t.Errorf("Serial year window = [%d, %d], want [17, 26]",
			cfg.Pipeline.Serial.YearMin, cfg.Pipeline.Serial.YearMax)
	}
	if cfg.Pipeline.Serial.CenturyBase != 2000 {
		t.Errorf("Serial.CenturyBase = %d, want 2000", cfg.Pipeline.Serial.CenturyBase)
	}
	if got := cfg.Pipeline.Dedupe.Keys; len(got) != 2 || got[0] != "model" || got[1] != "serial" {
		t.Errorf("Dedupe.Keys = %v, want [model serial]", got)
	}
	if cfg.Pipeline.Fields.Installations["serial"] != "serial" {
		t.Errorf("Fields.Installations[serial] = %q, want serial", cfg.Pipeline.Fields.Installations["serial"])
	}
	if cfg.Pipeline.Fields.Incidents["date"] != "incident_date" {
		t.Errorf("Fields.Incidents[date] = %q, want incident_date", cfg.Pipeline.Fields.Incidents["date"])
	}
	if cfg.Pipeline.Aggregate.LongTail.Threshold != 0.02 {
		t.Errorf("LongTail.Threshold = %g, want 0.02", cfg.Pipeline.Aggregate.LongTail.Threshold)
	}
	if cfg.Pipeline.Aggregate.LongTail.Label != "Other" {
		t.Errorf("LongTail.Label = %q, want Other", cfg.Pipeline.Aggregate.LongTail.Label)
	}
	if len(cfg.Pipeline.Aggregate.Dimensions) != 3 {
		t.Errorf("Aggregate.Dimensions = %v, want 3 default groupings", cfg.Pipeline.Aggregate.Dimensions)
	}

	// Adapter defaults
	if cfg.Cache.TTL.Duration() != 15*time.Minute {
		t.Errorf("Cache.TTL = %v, want 15m", cfg.Cache.TTL.Duration())
	}
	if cfg.Notify.URL != "nats://127.0.0.1:4222" {
		t.Errorf("Notify.URL = %q, want nats://127.0.0.1:4222", cfg.Notify.URL)
	}
	if cfg.Notify.SubjectPrefix != "runs" {
		t.Errorf("Notify.SubjectPrefix = %q, want runs", cfg.Notify.SubjectPrefix)
	}
	if cfg.Workflow.TaskQueue != "fleetrecon" {
		t.Errorf("Workflow.TaskQueue = %q, want fleetrecon", cfg.Workflow.TaskQueue)
	}
	if cfg.Watch.Debounce.Duration() != 2*time.Second {
		t.Errorf("Watch.Debounce = %v, want 2s", cfg.Watch.Debounce.Duration())
	}

	// Defaults must validate cleanly
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() = %v, want nil", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid defaults",
			mutate: func(cfg *Config) {},
		},
		{
			name:    "port too large",
			mutate:  func(cfg *Config) { cfg.Server.Port = 99999 },
			wantErr: "invalid server port",
		},
		{
			name:    "zero shutdown timeout",
			mutate:  func(cfg *Config) { cfg.Server.ShutdownTimeout = 0 },
			wantErr: "shutdown timeout",
		},
		{
			name:    "negative rate limit",
			mutate:  func(cfg *Config) { cfg.Server.RateLimitRPS = -1 },
			wantErr: "rate_limit_rps",
		},
		{
			name: "telemetry enabled without service name",
			mutate: func(cfg *Config) {
				cfg.Telemetry.Enabled = true
				cfg.Telemetry.ServiceName = ""
			},
			wantErr: "requires a service_name",
		},
		{
			name:    "bad telemetry protocol",
			mutate:  func(cfg *Config) { cfg.Telemetry.Protocol = "udp" },
			wantErr: "invalid telemetry protocol",
		},
		{
			name:    "serial too short",
			mutate:  func(cfg *Config) { cfg.Pipeline.Serial.Length = 3 },
			wantErr: "serial length",
		},
		{
			name: "inverted year window",
			mutate: func(cfg *Config) {
				cfg.Pipeline.Serial.YearMin = 30
				cfg.Pipeline.Serial.YearMax = 17
			},
			wantErr: "year window inverted",
		},
		{
			name:    "empty dedupe keys",
			mutate:  func(cfg *Config) { cfg.Pipeline.Dedupe.Keys = nil },
			wantErr: "dedupe keys",
		},
		{
			name:    "bad as_of date",
			mutate:  func(cfg *Config) { cfg.Pipeline.Metrics.AsOf = "21/03/2024" },
			wantErr: "as_of",
		},
		{
			name: "long tail threshold out of range",
			mutate: func(cfg *Config) {
				cfg.Pipeline.Aggregate.LongTail.Enabled = true
				cfg.Pipeline.Aggregate.LongTail.Threshold = 1.5
			},
			wantErr: "long_tail threshold",
		},
		{
			name:    "unknown export format",
			mutate:  func(cfg *Config) { cfg.Export.Formats = []string{"parquet"} },
			wantErr: "unknown export format",
		},
		{
			name: "remote ingest missing client id",
			mutate: func(cfg *Config) {
				cfg.Ingest.Remote.Enabled = true
				cfg.Ingest.Remote.BaseURL = "https://fleet.example.com"
				cfg.Ingest.Remote.TokenURL = "https://fleet.example.com/oauth/token"
			},
			wantErr: "remote ingest requires",
		},
		{
			name:    "watch enabled without dir",
			mutate:  func(cfg *Config) { cfg.Watch.Enabled = true },
			wantErr: "watch requires a dir",
		},
		{
			name: "notify enabled without url",
			mutate: func(cfg *Config) {
				cfg.Notify.Enabled = true
				cfg.Notify.URL = ""
			},
			wantErr: "notify requires a url",
		},
		{
			name: "workflow enabled without task queue",
			mutate: func(cfg *Config) {
				cfg.Workflow.Enabled = true
				cfg.Workflow.TaskQueue = ""
			},
			wantErr: "workflow requires",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}
