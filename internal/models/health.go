// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

package models

import "time"

// Discovery source values.
const (
	SourceRegistry      = "registry"
	SourceScanner       = "scanner"
	SourceFailed        = "failed"
	SourceReset         = "reset"
	SourceRecoveryReset = "recovery_reset"
)

// DiscoveryInfo is the bookkeeping of the last discovery poll.
type DiscoveryInfo struct {
	LastCount  int       `json:"last_count"`
	LastSource string    `json:"last_source"`
	LastTime   time.Time `json:"last_time"`
}

// StatusCounts buckets tracked devices by progress status.
type StatusCounts struct {
	Processing int `json:"processing"`
	Success    int `json:"success"`
	Error      int `json:"error"`
	Warning    int `json:"warning"`
	Unknown    int `json:"unknown"`
}

// RecentError is a failed device whose job ended within the last hour.
type RecentError struct {
	DeviceID     string `json:"device_id"`
	DeviceName   string `json:"device_name"`
	ErrorTime    int64  `json:"error_time"`
	ErrorMessage string `json:"error_message"`
}

// LoopState is the scheduler's view of its own control loop.
type LoopState struct {
	ThreadAlive         bool      `json:"thread_alive"`
	ThreadRunning       bool      `json:"thread_running"`
	CycleCount          int64     `json:"cycle_count"`
	LastCycleStart      time.Time `json:"last_cycle_start"`
	State               string    `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
}

// Health is served on /health.
type Health struct {
	LoopState
	DeviceDiscovery     DiscoveryInfo `json:"device_discovery"`
	DeviceStatusCounts  StatusCounts  `json:"device_status_counts"`
	RecentErrors        []RecentError `json:"recent_errors"`
	TotalTrackedDevices int           `json:"total_tracked_devices"`
}

// Statistics is served on /statistics.
type Statistics struct {
	TotalDevices      int     `json:"total_devices"`
	ProcessingDevices int     `json:"processing_devices"`
	LastBackup        string  `json:"last_backup"`
	BackupInterval    float64 `json:"backup_interval"`
	Mode              string  `json:"mode"`
	MaxWorkers        int     `json:"max_workers"`
}

// CycleSummary counts the outcome of one scheduler cycle.
type CycleSummary struct {
	Submitted int `json:"submitted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	TimedOut  int `json:"timed_out"`
	Skipped   int `json:"skipped"`
}

// HasFailures reports whether the cycle counts toward the consecutive
// failure streak.
func (c CycleSummary) HasFailures() bool {
	return c.Failed > 0 || c.TimedOut > 0
}

// RunRecord is one finished job as kept by the history store.
type RunRecord struct {
	RunID      string    `json:"run_id"`
	DeviceID   string    `json:"device_id"`
	DeviceName string    `json:"device_name"`
	Mode       string    `json:"mode"`
	Started    time.Time `json:"started"`
	Ended      time.Time `json:"ended"`
	Success    bool      `json:"success"`
	TimedOut   bool      `json:"timed_out,omitempty"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	Error      string    `json:"error,omitempty"`
	Messages   int       `json:"messages"`
}
