// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

package clock

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFakeSleepAdvances(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := NewFake(start)

	if err := f.Sleep(context.Background(), 5*time.Second); err != nil {
		t.Fatalf("Sleep: %v", err)
	}
	f.Add(time.Minute)

	if got := f.Now().Sub(start); got != 65*time.Second {
		t.Errorf("elapsed = %v, want 65s", got)
	}
	if s := f.Sleeps(); len(s) != 1 || s[0] != 5*time.Second {
		t.Errorf("Sleeps() = %v", s)
	}
}

func TestFakeSleepCancelled(t *testing.T) {
	t.Parallel()

	f := NewFake(time.Unix(0, 0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := f.Sleep(ctx, time.Second); !errors.Is(err, context.Canceled) {
		t.Errorf("Sleep on cancelled ctx = %v", err)
	}
	if len(f.Sleeps()) != 0 {
		t.Error("cancelled sleep should not be recorded")
	}
}

func TestSystemSleepInterrupted(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := System.Sleep(ctx, time.Hour); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Sleep = %v, want deadline exceeded", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("Sleep did not honor context")
	}
}
