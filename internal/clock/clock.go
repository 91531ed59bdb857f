// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

// Package clock abstracts wall-clock time so that caches, completion markers
// and the scheduler's adaptive waits can be tested without real sleeps.
package clock

import (
	"context"
	"sync"
	"time"
)

// Clock is an interface to system time.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Sleep blocks for d or until ctx is done, whichever comes first.
	// It returns ctx.Err() when interrupted.
	Sleep(ctx context.Context, d time.Duration) error
}

// System is the real clock.
var System Clock = systemClock{}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Fake is a manually driven Clock. Sleep advances the fake time by the
// requested duration and returns immediately, recording the duration.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	sleeps  []time.Duration
	onSleep func(time.Duration)
}

// NewFake returns a Fake set to now.
func NewFake(now time.Time) *Fake {
	return &Fake{now: now}
}

// Now implements Clock.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Sleep implements Clock.
func (f *Fake) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.sleeps = append(f.sleeps, d)
	cb := f.onSleep
	f.mu.Unlock()

	if cb != nil {
		cb(d)
	}
	return ctx.Err()
}

// Add advances the clock.
func (f *Fake) Add(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// Set moves the clock to t.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}

// Sleeps returns every duration passed to Sleep so far.
func (f *Fake) Sleeps() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Duration, len(f.sleeps))
	copy(out, f.sleeps)
	return out
}

// OnSleep registers a callback invoked after every Sleep. Tests use it to
// stop a loop after a number of cycles.
func (f *Fake) OnSleep(cb func(time.Duration)) {
	f.mu.Lock()
	f.onSleep = cb
	f.mu.Unlock()
}
