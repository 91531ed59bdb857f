// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

type mockScheduler struct {
	startErr   error
	stopErr    error
	startCount atomic.Int32
	stopCount  atomic.Int32
	started    chan struct{}
}

func newMockScheduler() *mockScheduler {
	return &mockScheduler{started: make(chan struct{}, 8)}
}

func (m *mockScheduler) Start(ctx context.Context) error {
	m.startCount.Add(1)
	if m.startErr != nil {
		return m.startErr
	}
	m.started <- struct{}{}
	return nil
}

func (m *mockScheduler) Stop() error {
	m.stopCount.Add(1)
	return m.stopErr
}

var _ suture.Service = (*SchedulerService)(nil)

func TestSchedulerService(t *testing.T) {
	t.Parallel()

	t.Run("start then stop on cancel", func(t *testing.T) {
		t.Parallel()
		sched := newMockScheduler()
		svc := NewSchedulerService(sched)

		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() { errCh <- svc.Serve(ctx) }()

		<-sched.started
		cancel()

		if err := <-errCh; !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v", err)
		}
		if sched.startCount.Load() != 1 || sched.stopCount.Load() != 1 {
			t.Errorf("start=%d stop=%d", sched.startCount.Load(), sched.stopCount.Load())
		}
	})

	t.Run("start failure is returned", func(t *testing.T) {
		t.Parallel()
		sched := newMockScheduler()
		sched.startErr = errors.New("scheduler is already running")
		svc := NewSchedulerService(sched)

		err := svc.Serve(context.Background())
		if !errors.Is(err, sched.startErr) {
			t.Errorf("Serve() = %v", err)
		}
		if sched.stopCount.Load() != 0 {
			t.Error("Stop called after failed Start")
		}
	})

	t.Run("stop failure is reported", func(t *testing.T) {
		t.Parallel()
		sched := newMockScheduler()
		sched.stopErr = errors.New("scheduler is not running")
		svc := NewSchedulerService(sched)

		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() { errCh <- svc.Serve(ctx) }()
		<-sched.started
		cancel()

		err := <-errCh
		if !errors.Is(err, sched.stopErr) || !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v", err)
		}
	})

	t.Run("name", func(t *testing.T) {
		t.Parallel()
		if got := NewSchedulerService(newMockScheduler()).String(); got != "backup-scheduler" {
			t.Errorf("String() = %q", got)
		}
	})
}

func TestSchedulerService_RestartedBySupervisor(t *testing.T) {
	t.Parallel()

	sched := newMockScheduler()
	sched.startErr = errors.New("transient")

	sup := suture.New("test", suture.Spec{
		FailureThreshold: 10,
		FailureBackoff:   5 * time.Millisecond,
	})
	sup.Add(NewSchedulerService(sched))

	ctx, cancel := context.WithCancel(context.Background())
	done := sup.ServeBackground(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for sched.startCount.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if sched.startCount.Load() < 2 {
		t.Errorf("Start called %d times, want a restart", sched.startCount.Load())
	}
}
