// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

package config

import (
	"fmt"
	"time"

	"github.com/tomtom215/fleetvault/internal/validation"
)

// Validate checks struct tags first, then the rules tags cannot express.
func (c *Config) Validate() error {
	if verr := validation.ValidateStruct(c); verr != nil {
		return verr
	}
	if err := c.validateDurations(); err != nil {
		return err
	}
	return c.validateBackup()
}

func (c *Config) validateDurations() error {
	positive := []struct {
		name string
		d    time.Duration
	}{
		{"scheduler.interval", c.Scheduler.Interval},
		{"scheduler.job_timeout", c.Scheduler.JobTimeout},
		{"registry.timeout", c.Registry.Timeout},
		{"backup.rsync_timeout", c.Backup.RsyncTimeout},
		{"cache.file_ttl", c.Cache.FileTTL},
	}
	for _, p := range positive {
		if p.d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", p.name, p.d)
		}
	}
	if c.Scheduler.EmptyRetryDelay < 0 || c.Scheduler.ErrorRetryDelay < 0 {
		return fmt.Errorf("scheduler retry delays must not be negative")
	}
	if !c.Server.RateLimitDisabled && c.Server.RateLimitRequests > 0 && c.Server.RateLimitWindow <= 0 {
		return fmt.Errorf("server.rate_limit_window must be positive when rate limiting is enabled")
	}
	return nil
}

func (c *Config) validateBackup() error {
	switch c.Backup.Mode {
	case "mirror":
		if c.Mirror.User == "" {
			return fmt.Errorf("mirror.user is required in mirror mode")
		}
	case "unified":
		if !c.Backup.BackupResults && !c.Backup.BackupVideos {
			return fmt.Errorf("unified mode needs backup.backup_results or backup.backup_videos")
		}
	}
	if c.Backup.Mode != "mirror" && c.Backup.SSHKeyPath == "" {
		return fmt.Errorf("backup.ssh_key_path is required in %s mode", c.Backup.Mode)
	}
	if !c.History.InMemory && c.History.Dir == "" {
		return fmt.Errorf("history.dir is required unless history.in_memory is set")
	}
	return nil
}
