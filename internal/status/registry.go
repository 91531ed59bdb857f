// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

// Package status keeps the per-device backup status and derives health
// and statistics from it.
//
// The Registry is the only structure written by several goroutines at
// once. Every access takes its mutex, and readers receive deep copies so a
// snapshot can be serialized after the lock is released.
package status

import (
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/fleetvault/internal/backup"
	"github.com/tomtom215/fleetvault/internal/clock"
	"github.com/tomtom215/fleetvault/internal/logging"
	"github.com/tomtom215/fleetvault/internal/models"
)

// Defaults for Config.
const (
	DefaultMaxProcessingAge  = time.Hour
	DefaultMaxErrorAge       = 24 * time.Hour
	DefaultRecentErrorWindow = time.Hour
)

// Config configures a Registry.
type Config struct {
	Clock clock.Clock
	// MaxProcessingAge is how long an entry may stay processing before
	// ClearProblematic drops it.
	MaxProcessingAge time.Duration
	// MaxErrorAge is how long a failed entry is kept before
	// ClearProblematic drops it.
	MaxErrorAge time.Duration
	// RecentErrorWindow bounds Health.RecentErrors.
	RecentErrorWindow time.Duration
}

// Registry is the concurrency-safe status store.
type Registry struct {
	mu        sync.RWMutex
	devices   map[string]*models.BackupStatus
	discovery models.DiscoveryInfo

	clock             clock.Clock
	maxProcessingAge  time.Duration
	maxErrorAge       time.Duration
	recentErrorWindow time.Duration
}

// NewRegistry creates an empty Registry.
func NewRegistry(cfg Config) *Registry {
	if cfg.Clock == nil {
		cfg.Clock = clock.System
	}
	if cfg.MaxProcessingAge <= 0 {
		cfg.MaxProcessingAge = DefaultMaxProcessingAge
	}
	if cfg.MaxErrorAge <= 0 {
		cfg.MaxErrorAge = DefaultMaxErrorAge
	}
	if cfg.RecentErrorWindow <= 0 {
		cfg.RecentErrorWindow = DefaultRecentErrorWindow
	}
	return &Registry{
		devices:           make(map[string]*models.BackupStatus),
		clock:             cfg.Clock,
		maxProcessingAge:  cfg.MaxProcessingAge,
		maxErrorAge:       cfg.MaxErrorAge,
		recentErrorWindow: cfg.RecentErrorWindow,
		discovery:         models.DiscoveryInfo{LastSource: "none"},
	}
}

// Begin marks device as processing and bumps its run count. It returns
// false, leaving the entry untouched, when a job is already in flight.
func (r *Registry) Begin(device models.Device) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.devices[device.ID]
	if !ok {
		s = &models.BackupStatus{}
		r.devices[device.ID] = s
	}
	if s.Processing {
		return false
	}
	s.Name = device.Name
	s.Status = device.Status
	s.Started = r.clock.Now().Unix()
	s.Ended = 0
	s.Processing = true
	s.Count++
	s.Progress = models.Progress{
		Status:  models.ProgressInitializing,
		Message: "Backup queued for device " + device.Name,
	}
	s.Progress.ApplyHints(device.BackupHints)
	return true
}

// Apply merges a job progress message into the device's entry. Metadata
// messages replace the stored metadata; every other kind replaces the
// progress status and text.
func (r *Registry) Apply(id string, msg backup.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.devices[id]
	if !ok {
		return
	}
	if msg.Kind == backup.MessageMetadata {
		if msg.Metadata != nil {
			s.Metadata = msg.Metadata.Clone()
			s.Progress.ApplyHints(msg.Metadata.BackupHints)
		}
		return
	}
	s.Progress.Status = string(msg.Kind)
	s.Progress.Message = msg.Text
}

// Finish records the end of a job. A failed job keeps its last error text
// when there is one and always reports a zero backup_status.
func (r *Registry) Finish(id string, success bool, synced models.SyncStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.devices[id]
	if !ok {
		return
	}
	now := r.clock.Now()
	s.Processing = false
	s.Ended = now.Unix()
	s.Synced = synced.Clone()
	s.Progress.CompletionTime = s.Ended
	s.Progress.ElapsedSeconds = float64(s.Ended - s.Started)

	if success {
		if s.Progress.Status != models.ProgressSuccess && s.Progress.Status != models.ProgressWarning {
			s.Progress.Status = models.ProgressCompleted
		}
		return
	}
	if s.Progress.Status != models.ProgressError {
		s.Progress.Status = models.ProgressError
		s.Progress.Message = "Backup failed"
	}
	s.Progress.BackupStatus = 0
}

// Defer records a job that ended without running to completion, such as a
// locked artifact or a database that is not ready yet. The entry becomes a
// warning carrying the job's last message, or reason when the job sent
// none, and keeps its backup_status.
func (r *Registry) Defer(id, reason string, synced models.SyncStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.devices[id]
	if !ok {
		return
	}
	now := r.clock.Now()
	s.Processing = false
	s.Ended = now.Unix()
	s.Synced = synced.Clone()
	s.Progress.CompletionTime = s.Ended
	s.Progress.ElapsedSeconds = float64(s.Ended - s.Started)

	if s.Progress.Status != models.ProgressWarning || s.Progress.Message == "" {
		s.Progress.Message = reason
	}
	s.Progress.Status = models.ProgressWarning
}

// Fail marks a device as crashed or timed out. Ended is set to
// models.EndedCrashed. It reports whether the device was tracked.
func (r *Registry) Fail(id, message string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.devices[id]
	if !ok {
		return false
	}
	s.Processing = false
	s.Ended = models.EndedCrashed
	s.Progress = models.Progress{
		Status:  models.ProgressError,
		Message: message,
	}
	return true
}

// Set stores a copy of s for id.
func (r *Registry) Set(id string, s models.BackupStatus) {
	c := s.Clone()
	r.mu.Lock()
	r.devices[id] = &c
	r.mu.Unlock()
}

// Get returns a copy of the entry for id.
func (r *Registry) Get(id string) (models.BackupStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.devices[id]
	if !ok {
		return models.BackupStatus{}, false
	}
	return s.Clone(), true
}

// IsProcessing reports whether id has a job in flight.
func (r *Registry) IsProcessing(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.devices[id]
	return ok && s.Processing
}

// Snapshot returns a deep copy of every entry.
func (r *Registry) Snapshot() map[string]models.BackupStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]models.BackupStatus, len(r.devices))
	for id, s := range r.devices {
		out[id] = s.Clone()
	}
	return out
}

// Len returns the number of tracked devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// Clear drops every entry and returns how many there were.
func (r *Registry) Clear() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.devices)
	r.devices = make(map[string]*models.BackupStatus)
	return n
}

// ClearProblematic drops entries stuck in processing longer than
// MaxProcessingAge and failed entries that ended more than MaxErrorAge
// ago. It returns the removed ids, sorted.
func (r *Registry) ClearProblematic() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now().Unix()
	maxProcessing := int64(r.maxProcessingAge.Seconds())
	maxError := int64(r.maxErrorAge.Seconds())

	var removed []string
	for id, s := range r.devices {
		switch {
		case s.Processing && s.Started > 0 && now-s.Started > maxProcessing:
			removed = append(removed, id)
		case s.Progress.Status == models.ProgressError && s.Ended > 0 && now-s.Ended > maxError:
			removed = append(removed, id)
		}
	}
	sort.Strings(removed)
	for _, id := range removed {
		delete(r.devices, id)
		logging.Info().Str("device_id", id).Msg("Removed problematic status entry")
	}
	logging.Info().Int("count", len(removed)).Msg("Cleared problematic status entries")
	return removed
}

// RecordDiscovery stores the outcome of a discovery poll.
func (r *Registry) RecordDiscovery(count int, source string, at time.Time) {
	r.mu.Lock()
	r.discovery = models.DiscoveryInfo{LastCount: count, LastSource: source, LastTime: at}
	r.mu.Unlock()
}

// ResetDiscovery zeroes the discovery bookkeeping and tags it with source.
func (r *Registry) ResetDiscovery(source string) {
	r.RecordDiscovery(0, source, r.clock.Now())
}

// Discovery returns the last discovery bookkeeping.
func (r *Registry) Discovery() models.DiscoveryInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.discovery
}
