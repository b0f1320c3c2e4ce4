// Package config provides configuration loading for fleetrecon.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// maxConfigFileSize caps config files at 1MB.
const maxConfigFileSize = 1 << 20

// LoadWithFile loads configuration from a YAML file and overrides it with
// environment variables. Precedence, highest first:
//
//  1. Environment variables (SERVER_HTTP_PORT, NOTIFY_URL, ...)
//  2. The YAML file at configPath, default ~/.config/fleetrecon/config.yaml
//  3. Built-in defaults
//
// The file must live under ~/.config/fleetrecon/ or /etc/fleetrecon/, be at
// most 1MB, and carry 0600 or 0400 permissions. Remote source credentials
// ride in this file, so a world-readable one is rejected outright.
//
// Environment variables map to config paths by lowercasing and splitting on
// the first underscore: SERVER_HTTP_PORT becomes server.http_port,
// NOTIFY_SUBJECT_PREFIX becomes notify.subject_prefix.
func LoadWithFile(configPath string) (*Config, error) {
	if configPath == "" {
		def, err := defaultConfigPath()
		if err != nil {
			return nil, err
		}
		configPath = def
	}

	// The path check runs whether or not the file exists, so a bad -config
	// flag fails loudly instead of silently falling back to defaults.
	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path %s: %w", configPath, err)
	}

	k := koanf.New(".")

	if _, err := os.Stat(configPath); err == nil {
		if err := loadConfigFile(k, configPath); err != nil {
			return nil, err
		}
	}

	if err := k.Load(env.Provider("", ".", envToPath), nil); err != nil {
		return nil, fmt.Errorf("load environment overrides: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// loadConfigFile reads path into k. The file is opened once and validated
// through its descriptor, so the content read is the content checked.
func loadConfigFile(k *koanf.Koanf, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat config file: %w", err)
	}
	if err := validateConfigFileProperties(info); err != nil {
		return fmt.Errorf("check config file: %w", err)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// envToPath maps an environment variable name to a config path. The first
// underscore separates section from field; later underscores stay in the
// field name.
func envToPath(s string) string {
	lower := strings.ToLower(s)
	section, field, found := strings.Cut(lower, "_")
	if !found {
		return lower
	}
	return section + "." + field
}

func defaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "fleetrecon", "config.yaml"), nil
}

// EnsureConfigDir creates ~/.config/fleetrecon with 0700 permissions so new
// installs have a place for their config before first write.
func EnsureConfigDir() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("resolve home directory: %w", err)
	}

	dir := filepath.Join(home, ".config", "fleetrecon")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create config directory %s: %w", dir, err)
	}
	return nil
}

// validateConfigPath rejects paths outside the allowed config directories.
// Symlinks are resolved first so a link cannot smuggle a file in from
// elsewhere.
func validateConfigPath(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}

	// EvalSymlinks fails for files that do not exist yet; validate the
	// absolute path in that case.
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		resolved = abs
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("resolve home directory: %w", err)
	}

	for _, dir := range []string{
		filepath.Join(home, ".config", "fleetrecon"),
		filepath.Join("/etc", "fleetrecon"),
	} {
		if underDir(resolved, dir) {
			return nil
		}
	}
	return fmt.Errorf("config file must be in ~/.config/fleetrecon/ or /etc/fleetrecon/")
}

// underDir reports whether path sits inside dir. The comparison respects
// path boundaries: /etc/fleetrecon-evil is not under /etc/fleetrecon.
func underDir(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// validateConfigFileProperties checks permissions and size on an already
// opened file, closing the gap between check and read.
func validateConfigFileProperties(info os.FileInfo) error {
	// Windows has no Unix permission bits worth checking.
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions %v, want 0600 or 0400", perm)
		}
	}

	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large at %d bytes, limit is %d", info.Size(), maxConfigFileSize)
	}
	return nil
}

// applyDefaults fills every zero-valued field that has a meaningful default.
func applyDefaults(cfg *Config) {
	applyServerDefaults(cfg)
	applyObservabilityDefaults(cfg)
	applyPipelineDefaults(cfg)
	applyIntegrationDefaults(cfg)
}

func applyServerDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9090
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Server.RateLimitRPS == 0 {
		cfg.Server.RateLimitRPS = 20
	}
	if cfg.Server.RateLimitBurst == 0 {
		cfg.Server.RateLimitBurst = 40
	}
}

func applyObservabilityDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "fleetrecond"
	}
	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1.0
	}
	if cfg.Telemetry.ExportInterval == 0 {
		cfg.Telemetry.ExportInterval = Duration(15 * time.Second)
	}
	if cfg.Telemetry.ShutdownTimeout == 0 {
		cfg.Telemetry.ShutdownTimeout = Duration(5 * time.Second)
	}
}

func applyPipelineDefaults(cfg *Config) {
	// Field mapping defaults: identity mapping onto canonical headers.
	if cfg.Pipeline.Fields.Installations == nil {
		cfg.Pipeline.Fields.Installations = map[string]string{
			"serial":            "serial",
			"model":             "model",
			"subsidiary":        "subsidiary",
			"fabrication_date":  "fabrication_date",
			"installation_date": "installation_date",
			"last_connection":   "last_connection_date",
		}
	}
	if cfg.Pipeline.Fields.Incidents == nil {
		cfg.Pipeline.Fields.Incidents = map[string]string{
			"serial":      "serial",
			"date":        "incident_date",
			"description": "description",
		}
	}
	if cfg.Pipeline.Fields.Returns == nil {
		cfg.Pipeline.Fields.Returns = map[string]string{
			"serial": "serial",
			"date":   "return_date",
			"rma":    "rma",
		}
	}

	// Serial code defaults: 7 digits, MMYY prefix, years 2017-2026.
	if cfg.Pipeline.Serial.Length == 0 {
		cfg.Pipeline.Serial.Length = 7
	}
	if cfg.Pipeline.Serial.YearMin == 0 {
		cfg.Pipeline.Serial.YearMin = 17
	}
	if cfg.Pipeline.Serial.YearMax == 0 {
		cfg.Pipeline.Serial.YearMax = 26
	}
	if cfg.Pipeline.Serial.CenturyBase == 0 {
		cfg.Pipeline.Serial.CenturyBase = 2000
	}

	if len(cfg.Pipeline.Dedupe.Keys) == 0 {
		cfg.Pipeline.Dedupe.Keys = []string{"model", "serial"}
	}

	if len(cfg.Pipeline.Aggregate.Dimensions) == 0 {
		cfg.Pipeline.Aggregate.Dimensions = [][]string{
			{"model"},
			{"subsidiary"},
			{"model", "subsidiary"},
		}
	}
	if cfg.Pipeline.Aggregate.LongTail.Threshold == 0 {
		cfg.Pipeline.Aggregate.LongTail.Threshold = 0.02
	}
	if cfg.Pipeline.Aggregate.LongTail.Label == "" {
		cfg.Pipeline.Aggregate.LongTail.Label = "Other"
	}
}

func applyIntegrationDefaults(cfg *Config) {
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = Duration(15 * time.Minute)
	}
	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = 64
	}

	if cfg.Ingest.Remote.Timeout == 0 {
		cfg.Ingest.Remote.Timeout = Duration(30 * time.Second)
	}

	if cfg.Export.Dir == "" {
		cfg.Export.Dir = "out"
	}
	if len(cfg.Export.Formats) == 0 {
		cfg.Export.Formats = []string{"csv"}
	}
	if cfg.Export.SQLitePath == "" {
		cfg.Export.SQLitePath = filepath.Join(cfg.Export.Dir, "fleetrecon.db")
	}

	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = Duration(2 * time.Second)
	}

	if cfg.Notify.URL == "" {
		cfg.Notify.URL = "nats://127.0.0.1:4222"
	}
	if cfg.Notify.SubjectPrefix == "" {
		cfg.Notify.SubjectPrefix = "runs"
	}

	if cfg.Workflow.HostPort == "" {
		cfg.Workflow.HostPort = "127.0.0.1:7233"
	}
	if cfg.Workflow.Namespace == "" {
		cfg.Workflow.Namespace = "default"
	}
	if cfg.Workflow.TaskQueue == "" {
		cfg.Workflow.TaskQueue = "fleetrecon"
	}
}
