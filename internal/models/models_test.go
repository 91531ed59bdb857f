// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

package models

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
)

func TestDeviceIsActive(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		device Device
		want   bool
	}{
		{"running", Device{Name: "ETHOSCOPE_001", Status: DeviceRunning}, true},
		{"stopped", Device{Name: "ETHOSCOPE_001", Status: DeviceStopped}, true},
		{"busy", Device{Name: "ETHOSCOPE_001", Status: DeviceBusy}, true},
		{"offline", Device{Name: "ETHOSCOPE_001", Status: DeviceOffline}, false},
		{"not in use", Device{Name: "ETHOSCOPE_001", Status: DeviceNotInUse}, false},
		{"placeholder", Device{Name: PlaceholderDeviceName, Status: DeviceRunning}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.device.IsActive(); got != tt.want {
				t.Errorf("IsActive() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDeviceDecodeRegistryPayload(t *testing.T) {
	t.Parallel()

	payload := `{
		"id": "abc123",
		"name": "ETHOSCOPE_007",
		"ip": "192.168.1.7",
		"status": "running",
		"backup_status": 87.5,
		"backup_type": "mariadb",
		"databases": {
			"MariaDB": {"ETHOSCOPE_007_db": {"backup_filename": "2026-01-02_10-00-00_abc123.db"}},
			"SQLite": {}
		}
	}`

	var d Device
	if err := json.Unmarshal([]byte(payload), &d); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !d.HasEngine(EngineMariaDB) {
		t.Error("expected MariaDB engine")
	}
	if d.HasEngine(EngineSQLite) {
		t.Error("empty SQLite map should not count")
	}
	if d.BackupStatus == nil || *d.BackupStatus != 87.5 {
		t.Errorf("backup_status hint = %v", d.BackupStatus)
	}
	if d.BackupSize != nil {
		t.Error("unreported backup_size should stay nil")
	}
	if diff := cmp.Diff([]string{"ETHOSCOPE_007_db"}, d.DatabaseNames(EngineMariaDB)); diff != "" {
		t.Errorf("DatabaseNames mismatch (-want +got):\n%s", diff)
	}
}

func TestProgressApplyHints(t *testing.T) {
	t.Parallel()

	size := int64(4096)
	p := Progress{BackupType: "unknown", BackupMethod: "unknown", BackupStatus: 12}
	p.ApplyHints(BackupHints{BackupSize: &size, BackupMethod: "rsync"})

	want := Progress{BackupType: "unknown", BackupMethod: "rsync", BackupStatus: 12, BackupSize: 4096}
	if diff := cmp.Diff(want, p); diff != "" {
		t.Errorf("ApplyHints mismatch (-want +got):\n%s", diff)
	}
}

func TestBackupStatusCloneIsDeep(t *testing.T) {
	t.Parallel()

	orig := BackupStatus{
		Name: "ETHOSCOPE_001",
		Synced: SyncStatus{
			Tables:     map[string]int64{"ROI_1": 10},
			VideoFiles: &FileCount{Present: 1, Total: 2},
			TransferDetails: map[string]TransferDetail{
				"results": {Files: map[string]FileTransfer{"a.db": {Path: "a.db"}}},
			},
		},
		Metadata: DeviceMetadata{Extra: map[string]any{"k": "v"}},
	}

	c := orig.Clone()
	c.Synced.Tables["ROI_1"] = 99
	c.Synced.VideoFiles.Present = 2
	c.Synced.TransferDetails["results"].Files["a.db"] = FileTransfer{Path: "changed"}
	c.Metadata.Extra["k"] = "changed"

	if orig.Synced.Tables["ROI_1"] != 10 {
		t.Error("tables map shared with clone")
	}
	if orig.Synced.VideoFiles.Present != 1 {
		t.Error("video file count shared with clone")
	}
	if orig.Synced.TransferDetails["results"].Files["a.db"].Path != "a.db" {
		t.Error("transfer details shared with clone")
	}
	if orig.Metadata.Extra["k"] != "v" {
		t.Error("metadata extra shared with clone")
	}
}

func TestCycleSummaryHasFailures(t *testing.T) {
	t.Parallel()

	if (CycleSummary{Submitted: 3, Succeeded: 3}).HasFailures() {
		t.Error("clean cycle reported as failed")
	}
	if !(CycleSummary{Submitted: 2, Succeeded: 1, TimedOut: 1}).HasFailures() {
		t.Error("timeout not counted as failure")
	}
}
