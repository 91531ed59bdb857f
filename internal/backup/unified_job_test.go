// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

package backup

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tomtom215/fleetvault/internal/models"
)

// unifiedScript writes one results database and announces one video that
// never lands on disk.
func unifiedScript(args []string, onLine func(string)) (int, error) {
	src, dest := args[len(args)-2], args[len(args)-1]
	if strings.HasSuffix(src, DefaultRemoteResults) {
		dir := filepath.Join(dest, "e1", "ETHOSCOPE_001", "2024-01-01_10-00-00")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return -1, err
		}
		if err := os.WriteFile(filepath.Join(dir, "2024-01-01_10-00-00_e1.db"), make([]byte, 2048), 0o644); err != nil {
			return -1, err
		}
		onLine("receiving incremental file list")
		onLine("cd+++++++++ e1/ETHOSCOPE_001/2024-01-01_10-00-00/")
		onLine(">f+++++++++ e1/ETHOSCOPE_001/2024-01-01_10-00-00/2024-01-01_10-00-00_e1.db")
		onLine("2,048 100%    1.95MB/s    0:00:00 (xfr#1, to-chk=0/3)")
		onLine("Total file size: 2,048 bytes")
		return 0, nil
	}
	onLine(">f+++++++++ e1/a.h264")
	return 0, nil
}

func TestUnifiedJobOrderAndDetails(t *testing.T) {
	t.Parallel()

	opts := testOptions(t, ModeUnified)
	runner := &fakeRunner{script: unifiedScript}
	opts.Runner = runner

	job := newJob(t, opts, testDevice())
	res, msgs := runJob(t, job)
	if !res.Success {
		t.Fatalf("Success = false, err = %v", res.Err)
	}
	if res.Transferred != 2 {
		t.Errorf("Transferred = %d, want 2", res.Transferred)
	}

	calls := runner.Calls()
	if len(calls) != 2 {
		t.Fatalf("rsync calls = %d, want 2", len(calls))
	}
	if src := calls[0][len(calls[0])-2]; src != "ethoscope@10.0.0.1:/ethoscope_data/results/" {
		t.Errorf("first source = %q, want results", src)
	}
	if src := calls[1][len(calls[1])-2]; src != "ethoscope@10.0.0.1:/ethoscope_data/videos/" {
		t.Errorf("second source = %q, want videos", src)
	}
	for _, c := range calls {
		if !strings.Contains(strings.Join(c, " "), "--exclude=*.db-wal") {
			t.Errorf("missing sidecar excludes in %v", c)
		}
	}

	for _, want := range []string{
		"Starting results backup (1/2)",
		"Results: Processing 2024-01-01_10-00-00_e1.db (file #1)",
		"Results: 2024-01-01_10-00-00_e1.db completed - 2.0 KiB (1.95MB/s)",
		"Results rsync completed successfully - 1 files",
		"Starting videos backup (2/2)",
		"Videos rsync completed successfully - 1 files",
	} {
		if !hasMessage(msgs, MessageInfo, want) {
			t.Errorf("missing message %q", want)
		}
	}
	if !hasMessage(msgs, MessageSuccess, "Unified backup completed successfully in") {
		t.Error("missing success message")
	}

	st := job.CheckSyncStatus(context.Background())
	if st.Results == nil || st.Results.LocalFiles != 1 || st.Results.DiskUsageBytes != 2048 || st.Results.DiskUsageHuman != "2.0 KiB" {
		t.Errorf("Results = %+v", st.Results)
	}
	if st.Videos == nil || st.Videos.LocalFiles != 0 || st.Videos.Type != "videos" {
		t.Errorf("Videos = %+v", st.Videos)
	}
	results := st.TransferDetails["results"]
	f := results.Files["2024-01-01_10-00-00_e1.db"]
	if results.TotalFiles != 1 || results.TotalBytes != 2048 || f.SizeBytes != 2048 || f.Status != "completed" {
		t.Errorf("results detail = %+v", results)
	}
	if v := st.TransferDetails["videos"].Files["a.h264"]; v.Status != "completed" || v.SizeBytes != 0 {
		t.Errorf("video detail = %+v", v)
	}
}

func TestUnifiedJobWithoutSQLite(t *testing.T) {
	t.Parallel()

	opts := testOptions(t, ModeUnified)
	runner := &fakeRunner{script: unifiedScript}
	opts.Runner = runner
	dev := testDevice()
	delete(dev.Databases, models.EngineSQLite)

	res, msgs := runJob(t, newJob(t, opts, dev))
	if !res.Success {
		t.Fatalf("Success = false, err = %v", res.Err)
	}
	if !hasMessage(msgs, MessageWarning, "does not have a SQLite database - skipping SQLite results backup") {
		t.Error("missing skip warning")
	}
	calls := runner.Calls()
	if len(calls) != 1 || !strings.HasSuffix(calls[0][len(calls[0])-2], DefaultRemoteVideos) {
		t.Errorf("calls = %v, want videos only", calls)
	}

	opts = testOptions(t, ModeUnified)
	opts.BackupVideos = false
	res, msgs = runJob(t, newJob(t, opts, dev))
	if res.Success || res.Kind() != KindValidationFailed {
		t.Errorf("result = %+v, want validation failure", res)
	}
	if !hasMessage(msgs, MessageWarning, "No valid backup types for device e1") {
		t.Error("missing no-op warning")
	}
}

func TestUnifiedJobStopsAfterResultsFailure(t *testing.T) {
	t.Parallel()

	opts := testOptions(t, ModeUnified)
	runner := &fakeRunner{script: func([]string, func(string)) (int, error) { return 23, nil }}
	opts.Runner = runner

	res, msgs := runJob(t, newJob(t, opts, testDevice()))
	if res.Success || res.Kind() != KindTransferFailed {
		t.Fatalf("result = %+v", res)
	}
	if len(runner.Calls()) != 1 {
		t.Errorf("videos ran after results failed")
	}
	if !hasMessage(msgs, MessageError, "Results rsync failed with return code 23") || !hasMessage(msgs, MessageError, "Results backup failed") {
		t.Errorf("messages = %+v", msgs)
	}
}
