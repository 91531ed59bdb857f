// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

package models

import "sort"

// Database engine keys used in Device.Databases.
const (
	EngineMariaDB = "MariaDB"
	EngineSQLite  = "SQLite"
)

// Device status values reported by the registry.
const (
	DeviceRunning   = "running"
	DeviceStopped   = "stopped"
	DeviceBusy      = "busy"
	DeviceOffline   = "offline"
	DeviceNotInUse  = "not_in_use"
	DeviceUnreached = "unreached"
)

// PlaceholderDeviceName is the built-in self-test device. It is never backed up.
const PlaceholderDeviceName = "ETHOSCOPE_000"

// DatabaseInfo describes one database advertised by a device.
type DatabaseInfo struct {
	BackupFilename string           `json:"backup_filename,omitempty"`
	Path           string           `json:"path,omitempty"`
	Filesize       int64            `json:"filesize,omitempty"`
	Version        string           `json:"version,omitempty"`
	DBStatus       string           `json:"db_status,omitempty"`
	TableCounts    map[string]int64 `json:"table_counts,omitempty"`
}

// BackupHints are the backup facts a device reports about itself. Pointer
// fields distinguish "not reported" from zero.
type BackupHints struct {
	BackupStatus    *float64 `json:"backup_status,omitempty"`
	BackupSize      *int64   `json:"backup_size,omitempty"`
	TimeSinceBackup *float64 `json:"time_since_backup,omitempty"`
	BackupType      string   `json:"backup_type,omitempty"`
	BackupMethod    string   `json:"backup_method,omitempty"`
}

// Device is a registry descriptor.
type Device struct {
	ID        string                             `json:"id" validate:"required"`
	Name      string                             `json:"name" validate:"required"`
	IP        string                             `json:"ip" validate:"required"`
	Status    string                             `json:"status"`
	Databases map[string]map[string]DatabaseInfo `json:"databases,omitempty"`
	BackupHints
}

// HasEngine reports whether the device advertises at least one database of
// the given engine.
func (d *Device) HasEngine(engine string) bool {
	return len(d.Databases[engine]) > 0
}

// DatabaseNames returns the sorted database names advertised for engine.
func (d *Device) DatabaseNames(engine string) []string {
	dbs := d.Databases[engine]
	names := make([]string, 0, len(dbs))
	for name := range dbs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsActive reports whether the device is eligible for backup.
func (d *Device) IsActive() bool {
	if d.Name == PlaceholderDeviceName {
		return false
	}
	return d.Status != DeviceNotInUse && d.Status != DeviceOffline
}
