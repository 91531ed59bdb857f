// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/fleetvault/internal/backup"
	"github.com/tomtom215/fleetvault/internal/clock"
	"github.com/tomtom215/fleetvault/internal/models"
	"github.com/tomtom215/fleetvault/internal/status"
)

var epoch = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

type runFunc func(ctx context.Context, d models.Device, out chan<- backup.Message) backup.Result

func succeed(_ context.Context, d models.Device, out chan<- backup.Message) backup.Result {
	out <- backup.Message{Kind: backup.MessageSuccess, Text: "Backup completed successfully for device " + d.Name}
	return backup.Result{Success: true}
}

func failTransfer(_ context.Context, d models.Device, out chan<- backup.Message) backup.Result {
	out <- backup.Message{Kind: backup.MessageError, Text: "Rsync failed with return code 1"}
	return backup.Result{Err: &backup.Error{Kind: backup.KindTransferFailed, Op: "rsync", Device: d.ID, Err: errors.New("exit status 1")}}
}

func blockUntilDone(ctx context.Context, d models.Device, _ chan<- backup.Message) backup.Result {
	<-ctx.Done()
	return backup.Result{Err: &backup.Error{Kind: backup.KindTransferFailed, Device: d.ID, Err: ctx.Err()}}
}

type fakeJob struct {
	device models.Device
	run    runFunc
}

func (j *fakeJob) Run(ctx context.Context, out chan<- backup.Message) backup.Result {
	return j.run(ctx, j.device, out)
}

func (j *fakeJob) CheckSyncStatus(context.Context) models.SyncStatus {
	return models.SyncStatus{Tables: map[string]int64{"ROI_1": 1}}
}

func (j *fakeJob) Device() models.Device { return j.device }
func (j *fakeJob) Mode() backup.Mode     { return backup.ModeMirror }

// fakeFactory runs behaviors[device.ID], or succeed when none is set.
type fakeFactory struct {
	mu        sync.Mutex
	behaviors map[string]runFunc
	calls     map[string]int
}

func newFakeFactory(behaviors map[string]runFunc) *fakeFactory {
	if behaviors == nil {
		behaviors = map[string]runFunc{}
	}
	return &fakeFactory{behaviors: behaviors, calls: map[string]int{}}
}

func (f *fakeFactory) New(d models.Device) backup.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[d.ID]++
	run, ok := f.behaviors[d.ID]
	if !ok {
		run = succeed
	}
	return &fakeJob{device: d, run: run}
}

func (f *fakeFactory) Mode() backup.Mode { return backup.ModeMirror }

func (f *fakeFactory) Calls(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

// staticFinder returns the same devices on every call.
type staticFinder struct {
	mu      sync.Mutex
	devices []models.Device
	calls   int
	panics  bool
}

func (f *staticFinder) FindDevices(_ context.Context, onlyActive bool) []models.Device {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.panics {
		panic("finder exploded")
	}
	var out []models.Device
	for _, d := range f.devices {
		if !onlyActive || d.IsActive() {
			out = append(out, d)
		}
	}
	return out
}

func (f *staticFinder) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingHistory struct {
	mu   sync.Mutex
	runs []models.RunRecord
}

func (h *recordingHistory) Record(_ context.Context, rec models.RunRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs = append(h.runs, rec)
	return nil
}

func (h *recordingHistory) Runs() []models.RunRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]models.RunRecord(nil), h.runs...)
}

type recordingBroadcaster struct {
	mu           sync.Mutex
	progress     int
	finished     int
	cycles       []models.CycleSummary
	panicOnCycle int
}

func (b *recordingBroadcaster) BroadcastBackupProgress(string, backup.Message) {
	b.mu.Lock()
	b.progress++
	b.mu.Unlock()
}

func (b *recordingBroadcaster) BroadcastJobFinished(models.RunRecord) {
	b.mu.Lock()
	b.finished++
	b.mu.Unlock()
}

func (b *recordingBroadcaster) BroadcastCycleCompleted(cycle int64, summary models.CycleSummary) {
	b.mu.Lock()
	b.cycles = append(b.cycles, summary)
	b.mu.Unlock()
	if int(cycle) == b.panicOnCycle {
		panic("broadcast failed")
	}
}

func dev(id, name, status string) models.Device {
	return models.Device{ID: id, Name: name, IP: "10.0.0." + id, Status: status}
}

func newTestScheduler(t *testing.T, cfg Config, finder DeviceFinder, factory JobFactory, opts ...Option) (*Scheduler, *status.Registry, *clock.Fake) {
	t.Helper()
	fake := clock.NewFake(epoch)
	if cfg.Clock == nil {
		cfg.Clock = fake
	}
	reg := status.NewRegistry(status.Config{Clock: fake})
	s, err := New(cfg, finder, factory, reg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, reg, fake
}
