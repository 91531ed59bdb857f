// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

package models

// Progress status keywords. Message kinds other than metadata are copied
// verbatim into Progress.Status.
const (
	ProgressInitializing = "initializing"
	ProgressInfo         = "info"
	ProgressWarning      = "warning"
	ProgressSuccess      = "success"
	ProgressError        = "error"
	ProgressCompleted    = "completed"
)

// EndedCrashed is the BackupStatus.Ended value of a job that never finalized.
const EndedCrashed int64 = -1

// BackupStatus is the per-device record kept by the status registry.
// Started and Ended are unix seconds; Ended is 0 while a job runs.
type BackupStatus struct {
	Name       string         `json:"name"`
	Status     string         `json:"status"`
	Started    int64          `json:"started"`
	Ended      int64          `json:"ended"`
	Processing bool           `json:"processing"`
	Count      int            `json:"count"`
	Synced     SyncStatus     `json:"synced"`
	Progress   Progress       `json:"progress"`
	Metadata   DeviceMetadata `json:"metadata"`
}

// Clone returns a deep copy.
func (s *BackupStatus) Clone() BackupStatus {
	c := *s
	c.Synced = s.Synced.Clone()
	c.Metadata = s.Metadata.Clone()
	return c
}

// Progress is the live view of the running or last job.
type Progress struct {
	Status          string  `json:"status"`
	Message         string  `json:"message"`
	BackupStatus    float64 `json:"backup_status"`
	BackupSize      int64   `json:"backup_size"`
	TimeSinceBackup float64 `json:"time_since_backup"`
	BackupType      string  `json:"backup_type"`
	BackupMethod    string  `json:"backup_method"`
	CompletionTime  int64   `json:"completion_time,omitempty"`
	ElapsedSeconds  float64 `json:"elapsed_seconds,omitempty"`
}

// ApplyHints copies every reported hint into p.
func (p *Progress) ApplyHints(h BackupHints) {
	if h.BackupStatus != nil {
		p.BackupStatus = *h.BackupStatus
	}
	if h.BackupSize != nil {
		p.BackupSize = *h.BackupSize
	}
	if h.TimeSinceBackup != nil {
		p.TimeSinceBackup = *h.TimeSinceBackup
	}
	if h.BackupType != "" {
		p.BackupType = h.BackupType
	}
	if h.BackupMethod != "" {
		p.BackupMethod = h.BackupMethod
	}
}

// DeviceMetadata carries device-reported facts emitted by a job as a
// metadata message.
type DeviceMetadata struct {
	VideosDirectory string `json:"videos_directory,omitempty"`
	DeviceIP        string `json:"device_ip,omitempty"`
	TotalFiles      int    `json:"total_files,omitempty"`
	DiskUsageBytes  int64  `json:"disk_usage_bytes,omitempty"`
	BackupHints
	Extra map[string]any `json:"extra,omitempty"`
}

// Clone returns a deep copy.
func (m *DeviceMetadata) Clone() DeviceMetadata {
	c := *m
	if m.Extra != nil {
		c.Extra = make(map[string]any, len(m.Extra))
		for k, v := range m.Extra {
			c.Extra[k] = v
		}
	}
	return c
}

// FileCount is a present/total pair.
type FileCount struct {
	Present int `json:"present"`
	Total   int `json:"total"`
}

// DirectoryStatus summarizes one local backup directory.
type DirectoryStatus struct {
	LocalFiles     int    `json:"local_files"`
	Directory      string `json:"directory"`
	Type           string `json:"type"`
	DiskUsageBytes int64  `json:"disk_usage_bytes"`
	DiskUsageHuman string `json:"disk_usage_human"`
	Error          string `json:"error,omitempty"`
}

// FileTransfer records one file seen in rsync itemized output.
type FileTransfer struct {
	Path          string  `json:"path"`
	SizeBytes     int64   `json:"size_bytes"`
	SizeHuman     string  `json:"size_human,omitempty"`
	TransferSpeed string  `json:"transfer_speed,omitempty"`
	Status        string  `json:"status"`
	TransferStart float64 `json:"transfer_start"`
	TransferEnd   float64 `json:"transfer_end,omitempty"`
}

// TransferDetail is the per-operation summary of a unified rsync run.
type TransferDetail struct {
	Files          map[string]FileTransfer `json:"files"`
	TotalFiles     int                     `json:"total_files"`
	TotalBytes     int64                   `json:"total_bytes"`
	CompletionTime float64                 `json:"completion_time"`
}

// SyncStatus reports what is present locally without performing a transfer.
// Each job flavor fills the fields it knows about.
type SyncStatus struct {
	Tables          map[string]int64          `json:"tables,omitempty"`
	VideoFiles      *FileCount                `json:"video_files,omitempty"`
	Results         *DirectoryStatus          `json:"results,omitempty"`
	Videos          *DirectoryStatus          `json:"videos,omitempty"`
	TransferDetails map[string]TransferDetail `json:"transfer_details,omitempty"`
}

// Clone returns a deep copy.
func (s *SyncStatus) Clone() SyncStatus {
	var c SyncStatus
	if s.Tables != nil {
		c.Tables = make(map[string]int64, len(s.Tables))
		for k, v := range s.Tables {
			c.Tables[k] = v
		}
	}
	if s.VideoFiles != nil {
		v := *s.VideoFiles
		c.VideoFiles = &v
	}
	if s.Results != nil {
		r := *s.Results
		c.Results = &r
	}
	if s.Videos != nil {
		v := *s.Videos
		c.Videos = &v
	}
	if s.TransferDetails != nil {
		c.TransferDetails = make(map[string]TransferDetail, len(s.TransferDetails))
		for op, d := range s.TransferDetails {
			files := make(map[string]FileTransfer, len(d.Files))
			for k, v := range d.Files {
				files[k] = v
			}
			d.Files = files
			c.TransferDetails[op] = d
		}
	}
	return c
}
