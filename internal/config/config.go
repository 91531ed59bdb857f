// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

package config

import (
	"net"
	"strconv"
	"time"
)

// Config is the complete application configuration.
type Config struct {
	Logging   LoggingConfig   `koanf:"logging"`
	Server    ServerConfig    `koanf:"server"`
	Registry  RegistryConfig  `koanf:"registry"`
	Scanner   ScannerConfig   `koanf:"scanner"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Backup    BackupConfig    `koanf:"backup"`
	Mirror    MirrorConfig    `koanf:"mirror"`
	History   HistoryConfig   `koanf:"history"`
	Cache     CacheConfig     `koanf:"cache"`
}

// LoggingConfig holds zerolog settings.
//
// Environment Variables:
//   - LOG_LEVEL: trace, debug, info, warn, error (default: info)
//   - LOG_FORMAT: json, console (default: json)
//   - LOG_CALLER: include caller file:line (default: false)
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal panic disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// ServerConfig holds status API settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitRequests int           `koanf:"rate_limit_requests" validate:"min=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// Addr returns host:port for net.Listen.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// RegistryConfig points at the node's device registry.
//
// Environment Variables:
//   - NODE_ADDRESS: host[:port] of the node serving /devices (default: localhost)
//   - REGISTRY_TIMEOUT: request timeout (default: 10s)
type RegistryConfig struct {
	Address           string        `koanf:"address"`
	Timeout           time.Duration `koanf:"timeout"`
	RequestsPerSecond float64       `koanf:"requests_per_second" validate:"min=0"`
	Burst             int           `koanf:"burst" validate:"min=0"`
	FailureThreshold  uint32        `koanf:"failure_threshold"`
	OpenTimeout       time.Duration `koanf:"open_timeout"`
}

// ScannerConfig configures the fallback probe. With no hosts the
// scanner is disabled and a registry failure yields no devices.
type ScannerConfig struct {
	Dwell       time.Duration `koanf:"dwell"`
	Port        int           `koanf:"port" validate:"min=0,max=65535"`
	Hosts       []string      `koanf:"hosts"`
	Concurrency int           `koanf:"concurrency" validate:"min=0"`
}

// SchedulerConfig tunes the backup loop.
type SchedulerConfig struct {
	Interval          time.Duration `koanf:"interval"`
	Workers           int           `koanf:"workers" validate:"min=1,max=64"`
	JobTimeout        time.Duration `koanf:"job_timeout"`
	DiscoveryAttempts int           `koanf:"discovery_attempts" validate:"min=1"`
	EmptyRetryDelay   time.Duration `koanf:"empty_retry_delay"`
	ErrorRetryDelay   time.Duration `koanf:"error_retry_delay"`
	FailureThreshold  int           `koanf:"failure_threshold" validate:"min=1"`

	// MaxProcessingAge and MaxErrorAge bound how long problematic registry
	// entries survive a recovery attempt.
	MaxProcessingAge time.Duration `koanf:"max_processing_age"`
	MaxErrorAge      time.Duration `koanf:"max_error_age"`
}

// BackupConfig selects what is backed up and where.
type BackupConfig struct {
	Mode          string `koanf:"mode" validate:"oneof=mirror video unified"`
	ResultsDir    string `koanf:"results_dir" validate:"required"`
	VideosDir     string `koanf:"videos_dir"`
	BackupResults bool   `koanf:"backup_results"`
	BackupVideos  bool   `koanf:"backup_videos"`

	DevicePort   int           `koanf:"device_port" validate:"min=1,max=65535"`
	SSHUser      string        `koanf:"ssh_user"`
	SSHKeyPath   string        `koanf:"ssh_key_path"`
	RsyncBinary  string        `koanf:"rsync_binary"`
	RsyncTimeout time.Duration `koanf:"rsync_timeout"`

	SkipIfRecent bool          `koanf:"skip_if_recent"`
	RecentMaxAge time.Duration `koanf:"recent_max_age"`

	// ForceDevices runs one backup of the named devices and exits.
	ForceDevices []string `koanf:"force_devices"`
}

// MirrorConfig holds the MariaDB credentials used on every device.
type MirrorConfig struct {
	User           string        `koanf:"user"`
	Password       string        `koanf:"password"`
	Port           int           `koanf:"port" validate:"min=1,max=65535"`
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
	ChunkSize      int           `koanf:"chunk_size" validate:"min=1"`
	BatchSize      int           `koanf:"batch_size" validate:"min=1"`
}

// HistoryConfig configures the badger run history.
type HistoryConfig struct {
	Dir        string        `koanf:"dir"`
	InMemory   bool          `koanf:"in_memory"`
	Retention  int           `koanf:"retention" validate:"min=1"`
	GCInterval time.Duration `koanf:"gc_interval"`
}

// CacheConfig holds cache lifetimes.
type CacheConfig struct {
	FileTTL     time.Duration `koanf:"file_ttl"`
	ManifestTTL time.Duration `koanf:"manifest_ttl"`
}
