// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

package backup

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/fleetvault/internal/clock"
	"github.com/tomtom215/fleetvault/internal/models"
)

var testEpoch = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

// fakeRunner records rsync invocations and replays a script.
type fakeRunner struct {
	mu     sync.Mutex
	calls  [][]string
	script func(args []string, onLine func(string)) (int, error)
}

func (f *fakeRunner) Run(_ context.Context, args []string, onLine func(string)) (int, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), args...))
	f.mu.Unlock()
	if f.script == nil {
		return 0, nil
	}
	return f.script(args, onLine)
}

func (f *fakeRunner) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.calls...)
}

func testOptions(t *testing.T, mode Mode) Options {
	t.Helper()
	dir := t.TempDir()
	return Options{
		Mode:          mode,
		ResultsDir:    filepath.Join(dir, "results"),
		VideosDir:     filepath.Join(dir, "videos"),
		BackupResults: true,
		BackupVideos:  true,
		SSHKeyPath:    filepath.Join(dir, "keys", "id_ed25519"),
		Clock:         clock.NewFake(testEpoch),
		Runner:        &fakeRunner{},
	}
}

func testDevice() models.Device {
	return models.Device{
		ID:     "e1",
		Name:   "ETHOSCOPE_001",
		IP:     "10.0.0.1",
		Status: models.DeviceRunning,
		Databases: map[string]map[string]models.DatabaseInfo{
			models.EngineMariaDB: {
				"ETHOSCOPE_001_db": {BackupFilename: "2024-01-01_10-00-00_e1.db"},
			},
			models.EngineSQLite: {
				"2024-01-01_10-00-00_e1.db": {Path: "/ethoscope_data/results/e1/ETHOSCOPE_001/2024-01-01_10-00-00/2024-01-01_10-00-00_e1.db"},
			},
		},
	}
}

func newJob(t *testing.T, opts Options, dev models.Device) Job {
	t.Helper()
	f, err := NewFactory(opts)
	if err != nil {
		t.Fatalf("NewFactory() error = %v", err)
	}
	return f.New(dev)
}

func runJob(t *testing.T, job Job) (Result, []Message) {
	t.Helper()
	out := make(chan Message, 512)
	res := Execute(context.Background(), job, out)
	close(out)
	var msgs []Message
	for m := range out {
		msgs = append(msgs, m)
	}
	return res, msgs
}

func hasMessage(msgs []Message, kind MessageKind, substr string) bool {
	for _, m := range msgs {
		if m.Kind == kind && strings.Contains(m.Text, substr) {
			return true
		}
	}
	return false
}
