// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

package backup

import (
	"bufio"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestRsyncArgs(t *testing.T) {
	t.Parallel()

	src := "ethoscope@10.0.0.1:/ethoscope_data/videos/"
	plain := rsyncSpec{source: src, dest: "/srv/videos", sshKey: "/keys/id", timeout: 300 * time.Second}
	want := []string{
		"-avz", "--progress", "--partial", "--timeout=300",
		"-e", "ssh -i /keys/id -o StrictHostKeyChecking=no",
		src, "/srv/videos",
	}
	if diff := cmp.Diff(want, plain.args()); diff != "" {
		t.Errorf("video args mismatch (-want +got):\n%s", diff)
	}

	unified := plain
	unified.unified = true
	want = []string{
		"-avz", "--progress", "--partial",
		"--stats", "--itemize-changes",
		"--exclude=*.db-shm", "--exclude=*.db-wal", "--exclude=*.db-journal",
		"--timeout=300",
		"-e", "ssh -i /keys/id -o StrictHostKeyChecking=no",
		src, "/srv/videos",
	}
	if diff := cmp.Diff(want, unified.args()); diff != "" {
		t.Errorf("unified args mismatch (-want +got):\n%s", diff)
	}
}

func TestScanLinesSplitsCarriageReturns(t *testing.T) {
	t.Parallel()

	s := bufio.NewScanner(strings.NewReader("a.h264\r  512  50%\r1,024 100%\nsent 10 bytes"))
	s.Split(scanLines)
	var got []string
	for s.Scan() {
		got = append(got, s.Text())
	}
	want := []string{"a.h264", "  512  50%", "1,024 100%", "sent 10 bytes"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("lines mismatch (-want +got):\n%s", diff)
	}
}

func TestVideoProgress(t *testing.T) {
	t.Parallel()

	p := &videoProgress{total: 2}
	var msgs []string
	for _, line := range []string{
		"sending incremental file list",
		"ETHOSCOPE_001/",
		"ETHOSCOPE_001/2024-01-01/a.h264",
		"524,288  50%  1.00MB/s  0:00:01",
		"1,048,576 100%  1.00MB/s  0:00:01 (xfr#1, to-chk=1/3)",
		"./b.h264",
		"2,048 100%  2.00kB/s  0:00:01 (xfr#2, to-chk=0/3)",
		"sent 1,050,700 bytes  received 60 bytes  700,506.67 bytes/sec",
		"total size is 1,050,624  speedup is 1.00",
	} {
		if msg, ok := p.Line(line); ok {
			msgs = append(msgs, msg)
		}
	}

	want := []string{
		"Transferring file 1/2: a.h264",
		"Transferring a.h264: 100% complete (1.00MB/s)",
		"Transferring file 2/2: b.h264",
		"Transferring b.h264: 100% complete (2.00kB/s)",
	}
	if diff := cmp.Diff(want, msgs); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
	if p.completed != 2 || p.bytes != 1048576+2048 {
		t.Errorf("completed=%d bytes=%d", p.completed, p.bytes)
	}
}

func TestTransferParser(t *testing.T) {
	t.Parallel()

	dest := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dest, "e1", "run"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dest, "e1", "run", "a.db"), make([]byte, 4096), 0o644); err != nil {
		t.Fatal(err)
	}

	now := testEpoch
	p := newTransferParser("results", func() time.Time { return now })
	var msgs []string
	for _, line := range []string{
		"receiving incremental file list",
		"cd+++++++++ e1/run/",
		">f+++++++++ e1/run/a.db",
		"1,024 100%  500.00kB/s  0:00:00 (xfr#1, to-chk=1/2)",
		">f.st...... ./b.db",
		"Total file size: 5,120 bytes",
	} {
		if msg, ok := p.Line(line); ok {
			msgs = append(msgs, msg)
		}
	}
	want := []string{
		"Results: Processing a.db (file #1)",
		"Results: a.db completed - 1.0 KiB (500.00kB/s)",
		"Results: Processing b.db (file #2)",
	}
	if diff := cmp.Diff(want, msgs); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
	if p.totalSize != 5120 {
		t.Errorf("totalSize = %d", p.totalSize)
	}

	now = now.Add(3 * time.Second)
	d := p.finish(dest)
	if d.TotalFiles != 2 || d.TotalBytes != 1024 {
		t.Errorf("TotalFiles=%d TotalBytes=%d", d.TotalFiles, d.TotalBytes)
	}
	a := d.Files["a.db"]
	// The size on disk wins over the progress figure.
	if a.SizeBytes != 4096 || a.SizeHuman != "4.0 KiB" || a.Status != "completed" {
		t.Errorf("a.db = %+v", a)
	}
	if a.TransferSpeed != "500.00kB/s" || a.TransferEnd-a.TransferStart != 3 {
		t.Errorf("a.db timing = %+v", a)
	}
	if b := d.Files["b.db"]; b.SizeBytes != 0 || b.Status != "completed" {
		t.Errorf("b.db = %+v", b)
	}
}

func TestExecRunner(t *testing.T) {
	t.Parallel()

	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	r := &ExecRunner{Binary: "sh"}
	var lines []string
	code, err := r.Run(context.Background(), []string{"-c", `printf 'one\r  two  \nthree\n'; echo four >&2; exit 3`}, func(l string) {
		lines = append(lines, l)
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if code != 3 {
		t.Errorf("exit code = %d, want 3", code)
	}
	if diff := cmp.Diff([]string{"one", "two", "three", "four"}, lines); diff != "" {
		t.Errorf("lines mismatch (-want +got):\n%s", diff)
	}
}

func TestExecRunnerCanceled(t *testing.T) {
	t.Parallel()

	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := (&ExecRunner{Binary: "sh"}).Run(ctx, []string{"-c", "sleep 30"}, func(string) {})
	if err == nil {
		t.Fatal("expected an error for a killed process")
	}
	if time.Since(start) > 10*time.Second {
		t.Error("process was not killed on cancellation")
	}
}

func TestExecRunnerMissingBinary(t *testing.T) {
	t.Parallel()

	code, err := (&ExecRunner{Binary: "/nonexistent/rsync"}).Run(context.Background(), nil, func(string) {})
	if err == nil || code != -1 {
		t.Errorf("Run() = %d, %v; want -1 and an error", code, err)
	}
}
