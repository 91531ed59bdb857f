// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/tomtom215/fleetvault/internal/backup"
	"github.com/tomtom215/fleetvault/internal/models"
)

// endWith returns a job that optionally emits msg and then ends with a
// failure of kind.
func endWith(kind backup.Kind, msg *backup.Message) runFunc {
	return func(_ context.Context, d models.Device, out chan<- backup.Message) backup.Result {
		if msg != nil {
			out <- *msg
		}
		return backup.Result{Err: &backup.Error{Kind: kind, Op: "sync", Device: d.ID, Err: errors.New(string(kind))}}
	}
}

func TestCycleResultKinds(t *testing.T) {
	t.Parallel()

	notReadyMsg := "Database not ready for device k, will retry later (after 0.0s)"
	lockErr := &backup.Error{Kind: backup.KindLocked, Op: "sync", Device: "k", Err: errors.New(string(backup.KindLocked))}

	tests := []struct {
		name        string
		run         runFunc
		want        models.CycleSummary
		wantStatus  string
		wantMessage string
		wantErrors  int
	}{
		{
			name:        "success",
			run:         succeed,
			want:        models.CycleSummary{Submitted: 1, Succeeded: 1},
			wantStatus:  models.ProgressSuccess,
			wantMessage: "Backup completed successfully for device ETHOSCOPE_040",
		},
		{
			name:        "not ready keeps job message",
			run:         endWith(backup.KindNotReady, &backup.Message{Kind: backup.MessageWarning, Text: notReadyMsg}),
			want:        models.CycleSummary{Submitted: 1, Skipped: 1},
			wantStatus:  models.ProgressWarning,
			wantMessage: notReadyMsg,
		},
		{
			name:        "locked after error message",
			run:         endWith(backup.KindLocked, &backup.Message{Kind: backup.MessageError, Text: "Backup error after 0.0s: artifact locked"}),
			want:        models.CycleSummary{Submitted: 1, Skipped: 1},
			wantStatus:  models.ProgressWarning,
			wantMessage: "Backup skipped: " + lockErr.Error(),
		},
		{
			name:        "locked without messages",
			run:         endWith(backup.KindLocked, nil),
			want:        models.CycleSummary{Submitted: 1, Skipped: 1},
			wantStatus:  models.ProgressWarning,
			wantMessage: "Backup skipped: " + lockErr.Error(),
		},
		{
			name:        "validation failed",
			run:         endWith(backup.KindValidationFailed, &backup.Message{Kind: backup.MessageWarning, Text: "Device k does not have a MariaDB database - skipping MariaDB backup"}),
			want:        models.CycleSummary{Submitted: 1, Failed: 1},
			wantStatus:  models.ProgressError,
			wantMessage: "Backup failed",
			wantErrors:  1,
		},
		{
			name:        "transfer failed",
			run:         failTransfer,
			want:        models.CycleSummary{Submitted: 1, Failed: 1},
			wantStatus:  models.ProgressError,
			wantMessage: "Rsync failed with return code 1",
			wantErrors:  1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			factory := newFakeFactory(map[string]runFunc{"k": tt.run})
			finder := &staticFinder{devices: []models.Device{dev("k", "ETHOSCOPE_040", models.DeviceRunning)}}
			hist := &recordingHistory{}
			s, reg, _ := newTestScheduler(t, Config{}, finder, factory, WithHistory(hist))

			summary, err := s.RunOnce(context.Background())
			if err != nil {
				t.Fatalf("RunOnce: %v", err)
			}
			if diff := cmp.Diff(tt.want, summary); diff != "" {
				t.Errorf("summary mismatch (-want +got):\n%s", diff)
			}
			if summary.HasFailures() != (tt.want.Failed > 0) {
				t.Errorf("HasFailures() = %v", summary.HasFailures())
			}

			got, ok := reg.Get("k")
			if !ok {
				t.Fatal("device entry missing")
			}
			if got.Processing {
				t.Error("device still processing")
			}
			if got.Progress.Status != tt.wantStatus || got.Progress.Message != tt.wantMessage {
				t.Errorf("progress = %q %q, want %q %q", got.Progress.Status, got.Progress.Message, tt.wantStatus, tt.wantMessage)
			}
			if n := len(s.Health().RecentErrors); n != tt.wantErrors {
				t.Errorf("recent errors = %d, want %d", n, tt.wantErrors)
			}

			runs := hist.Runs()
			if len(runs) != 1 {
				t.Fatalf("history runs = %d, want 1", len(runs))
			}
			if runs[0].Success != (tt.want.Succeeded == 1) {
				t.Errorf("run success = %v", runs[0].Success)
			}
		})
	}
}

func TestDeferredResultsDoNotFeedFailureStreak(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		run            runFunc
		wantStreak     []int
		wantRecoveries int
	}{
		{
			name:       "locked",
			run:        endWith(backup.KindLocked, nil),
			wantStreak: []int{0, 0, 0, 0, 0, 0},
		},
		{
			name:       "not ready",
			run:        endWith(backup.KindNotReady, &backup.Message{Kind: backup.MessageWarning, Text: "Database not ready"}),
			wantStreak: []int{0, 0, 0, 0, 0, 0},
		},
		{
			name:           "validation failed",
			run:            endWith(backup.KindValidationFailed, nil),
			wantStreak:     []int{1, 2, 3, 4, 0, 1},
			wantRecoveries: 1,
		},
		{
			name:           "transfer failed",
			run:            failTransfer,
			wantStreak:     []int{1, 2, 3, 4, 0, 1},
			wantRecoveries: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			factory := newFakeFactory(map[string]runFunc{"k": tt.run})
			finder := &staticFinder{devices: []models.Device{dev("k", "ETHOSCOPE_041", models.DeviceRunning)}}
			s, _, _ := newTestScheduler(t, Config{}, finder, factory)

			var streak []int
			for range tt.wantStreak {
				if _, ok := s.iterate(context.Background()); !ok {
					t.Fatal("iterate reported a bookkeeping fault")
				}
				streak = append(streak, s.LoopState().ConsecutiveFailures)
			}
			if diff := cmp.Diff(tt.wantStreak, streak); diff != "" {
				t.Errorf("failure streak mismatch (-want +got):\n%s", diff)
			}
			if n := s.EmergencyRecoveries(); n != tt.wantRecoveries {
				t.Errorf("emergency recoveries = %d, want %d", n, tt.wantRecoveries)
			}
		})
	}
}

func TestSinceLastSuccessWithoutStart(t *testing.T) {
	t.Parallel()

	factory := newFakeFactory(map[string]runFunc{"k": failTransfer})
	finder := &staticFinder{devices: []models.Device{dev("k", "ETHOSCOPE_042", models.DeviceRunning)}}
	s, _, fake := newTestScheduler(t, Config{}, finder, factory)

	fake.Add(2 * time.Hour)
	if _, ok := s.iterate(context.Background()); !ok {
		t.Fatal("iterate reported a bookkeeping fault")
	}

	s.mu.RLock()
	since := s.sinceLastSuccess()
	s.mu.RUnlock()
	if since < 2*time.Hour || since > 3*time.Hour {
		t.Errorf("since last success = %v, want about 2h", since)
	}

	s.mu.Lock()
	s.lastSuccessfulCycle = time.Time{}
	since = s.sinceLastSuccess()
	s.mu.Unlock()
	if since != 0 {
		t.Errorf("since last success with no baseline = %v, want 0", since)
	}
}
