// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/fleetvault/config.yaml",
	"/etc/fleetvault/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8093,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      60 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			CORSOrigins:       []string{"*"},
			RateLimitRequests: 300,
			RateLimitWindow:   time.Minute,
		},
		Registry: RegistryConfig{
			Address:           "localhost",
			Timeout:           10 * time.Second,
			RequestsPerSecond: 1,
			Burst:             3,
			FailureThreshold:  3,
			OpenTimeout:       time.Minute,
		},
		Scanner: ScannerConfig{
			Dwell:       10 * time.Second,
			Port:        9000,
			Concurrency: 16,
		},
		Scheduler: SchedulerConfig{
			Interval:          300 * time.Second,
			Workers:           4,
			JobTimeout:        600 * time.Second,
			DiscoveryAttempts: 3,
			EmptyRetryDelay:   5 * time.Second,
			ErrorRetryDelay:   10 * time.Second,
			FailureThreshold:  5,
			MaxProcessingAge:  time.Hour,
			MaxErrorAge:       24 * time.Hour,
		},
		Backup: BackupConfig{
			Mode:          "mirror",
			ResultsDir:    "/ethoscope_data/results",
			BackupResults: true,
			BackupVideos:  true,
			DevicePort:    9000,
			SSHUser:       "ethoscope",
			SSHKeyPath:    "/etc/fleetvault/keys/id_ed25519",
			RsyncBinary:   "rsync",
			RsyncTimeout:  300 * time.Second,
			RecentMaxAge:  time.Hour,
		},
		Mirror: MirrorConfig{
			User:           "ethoscope",
			Password:       "ethoscope",
			Port:           3306,
			ConnectTimeout: 10 * time.Second,
			ChunkSize:      200,
			BatchSize:      10000,
		},
		History: HistoryConfig{
			Dir:        "/var/lib/fleetvault/history",
			Retention:  50,
			GCInterval: 10 * time.Minute,
		},
		Cache: CacheConfig{
			FileTTL:     5 * time.Minute,
			ManifestTTL: 30 * time.Second,
		},
	}
}

// Load reads configuration with precedence env > file > defaults and
// validates it.
func Load() (*Config, error) {
	return load(findConfigFile())
}

// LoadFile is Load with an explicit config file path; an empty path skips
// the file layer.
func LoadFile(path string) (*Config, error) {
	return load(path)
}

func load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are split on commas when they arrive as strings.
var sliceConfigPaths = []string{
	"server.cors_origins",
	"scanner.hosts",
	"backup.force_devices",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		trimmed := []string{}
		for _, p := range strings.Split(strVal, ",") {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variable names (lower case) to koanf paths.
var envMappings = map[string]string{
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	"http_host":           "server.host",
	"http_port":           "server.port",
	"http_read_timeout":   "server.read_timeout",
	"http_write_timeout":  "server.write_timeout",
	"shutdown_timeout":    "server.shutdown_timeout",
	"cors_origins":        "server.cors_origins",
	"rate_limit_requests": "server.rate_limit_requests",
	"rate_limit_window":   "server.rate_limit_window",
	"disable_rate_limit":  "server.rate_limit_disabled",

	"node_address":               "registry.address",
	"registry_timeout":           "registry.timeout",
	"registry_rps":               "registry.requests_per_second",
	"registry_failure_threshold": "registry.failure_threshold",

	"scanner_dwell": "scanner.dwell",
	"scanner_port":  "scanner.port",
	"scanner_hosts": "scanner.hosts",

	"backup_interval":         "scheduler.interval",
	"max_workers":             "scheduler.workers",
	"job_timeout":             "scheduler.job_timeout",
	"discovery_attempts":      "scheduler.discovery_attempts",
	"cycle_failure_threshold": "scheduler.failure_threshold",

	"backup_mode":    "backup.mode",
	"results_dir":    "backup.results_dir",
	"videos_dir":     "backup.videos_dir",
	"backup_results": "backup.backup_results",
	"backup_videos":  "backup.backup_videos",
	"device_port":    "backup.device_port",
	"ssh_user":       "backup.ssh_user",
	"ssh_key_path":   "backup.ssh_key_path",
	"rsync_binary":   "backup.rsync_binary",
	"rsync_timeout":  "backup.rsync_timeout",
	"skip_if_recent": "backup.skip_if_recent",
	"force_devices":  "backup.force_devices",

	"mysql_user":     "mirror.user",
	"mysql_password": "mirror.password",
	"mysql_port":     "mirror.port",

	"history_dir":       "history.dir",
	"history_in_memory": "history.in_memory",
	"history_retention": "history.retention",

	"file_cache_ttl":     "cache.file_ttl",
	"manifest_cache_ttl": "cache.manifest_ttl",
}

// envTransformFunc maps an environment variable to its koanf path, or ""
// to skip it.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
