// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

package inventory

import (
	"github.com/dustin/go-humanize"

	"github.com/tomtom215/fleetvault/internal/models"
)

// Backup type availability states.
const (
	TypeCompleted    = "completed"
	TypeNotAvailable = "not_available"
)

// UsageTotals is one row of the disk usage summary.
type UsageTotals struct {
	TotalFiles     int    `json:"total_files"`
	TotalSizeBytes int64  `json:"total_size_bytes"`
	TotalSizeHuman string `json:"total_size_human"`
}

func (u *UsageTotals) add(files int, bytes int64) {
	u.TotalFiles += files
	u.TotalSizeBytes += bytes
}

func (u *UsageTotals) finish() {
	u.TotalSizeHuman = humanize.IBytes(uint64(u.TotalSizeBytes))
}

// DiskUsage sums local backup usage across devices.
type DiskUsage struct {
	Results  UsageTotals `json:"results"`
	Videos   UsageTotals `json:"videos"`
	Combined UsageTotals `json:"combined"`
}

// Summarize totals the results and videos directories recorded in each
// device status.
func Summarize(statuses map[string]models.BackupStatus) DiskUsage {
	var du DiskUsage
	for _, st := range statuses {
		if r := st.Synced.Results; r != nil {
			du.Results.add(r.LocalFiles, r.DiskUsageBytes)
		}
		if v := st.Synced.Videos; v != nil {
			du.Videos.add(v.LocalFiles, v.DiskUsageBytes)
		}
	}
	du.Combined.add(du.Results.TotalFiles, du.Results.TotalSizeBytes)
	du.Combined.add(du.Videos.TotalFiles, du.Videos.TotalSizeBytes)
	du.Results.finish()
	du.Videos.finish()
	du.Combined.finish()
	return du
}

// BackupType describes the availability of one kind of backup for a
// device.
type BackupType struct {
	Available       bool       `json:"available"`
	Status          string     `json:"status"`
	LastBackup      *int64     `json:"last_backup"`
	Processing      bool       `json:"processing"`
	Message         string     `json:"message,omitempty"`
	Size            int64      `json:"size"`
	SizeHuman       string     `json:"size_human"`
	Files           int        `json:"files"`
	Directory       string     `json:"directory,omitempty"`
	IndividualFiles []FileInfo `json:"individual_files,omitempty"`
}

// BackupTypes derives the sqlite, video and mysql entries for a device
// from its status and file listings.
func BackupTypes(st models.BackupStatus, files DeviceFiles) map[string]BackupType {
	var last *int64
	if st.Ended > 0 {
		ended := st.Ended
		last = &ended
	}

	fromListing := func(l Listing, dir *models.DirectoryStatus) BackupType {
		if l.Count == 0 {
			return BackupType{Status: TypeNotAvailable, SizeHuman: humanize.IBytes(0)}
		}
		bt := BackupType{
			Available:       true,
			Status:          TypeCompleted,
			LastBackup:      last,
			Processing:      st.Processing,
			Message:         "Backup completed successfully",
			Size:            l.TotalSize,
			SizeHuman:       l.TotalSizeHuman,
			Files:           l.Count,
			IndividualFiles: l.Files,
		}
		if dir != nil {
			bt.Directory = dir.Directory
		}
		return bt
	}

	types := map[string]BackupType{
		KindSQLite: fromListing(files.SQLite, st.Synced.Results),
		"video":    fromListing(files.Videos, st.Synced.Videos),
	}

	mysql := BackupType{Status: TypeNotAvailable, SizeHuman: humanize.IBytes(0)}
	if n := len(st.Synced.Tables); n > 0 {
		mysql = BackupType{
			Available:  true,
			Status:     TypeCompleted,
			LastBackup: last,
			Processing: st.Processing,
			Message:    "Database mirrored",
			Files:      n,
			SizeHuman:  humanize.IBytes(0),
		}
	}
	types["mysql"] = mysql
	return types
}
