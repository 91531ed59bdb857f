// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

// countingService counts its Serve calls and fails the first failN of them.
type countingService struct {
	name   string
	starts atomic.Int32
	failN  int32
}

func (s *countingService) Serve(ctx context.Context) error {
	n := s.starts.Add(1)
	if n <= s.failN {
		return errors.New("simulated crash")
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *countingService) String() string { return s.name }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestDefaultTreeConfig(t *testing.T) {
	t.Parallel()
	cfg := DefaultTreeConfig()
	if cfg.FailureThreshold != 5 || cfg.FailureDecay != 30 {
		t.Errorf("unexpected failure params: %+v", cfg)
	}
	if cfg.FailureBackoff != 15*time.Second || cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("unexpected timings: %+v", cfg)
	}
}

func TestNewSupervisorTree_ZeroConfigGetsDefaults(t *testing.T) {
	t.Parallel()
	tree, err := NewSupervisorTree(testLogger(), TreeConfig{})
	if err != nil {
		t.Fatalf("NewSupervisorTree: %v", err)
	}
	if tree.config != DefaultTreeConfig() {
		t.Errorf("config = %+v, want defaults", tree.config)
	}
	if tree.Root() == nil {
		t.Fatal("root supervisor is nil")
	}
}

func TestSupervisorTree_RunsEveryLayer(t *testing.T) {
	t.Parallel()
	tree, err := NewSupervisorTree(testLogger(), TreeConfig{ShutdownTimeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	data := &countingService{name: "history"}
	msg := &countingService{name: "scheduler"}
	api := &countingService{name: "http"}
	tree.AddDataService(data)
	tree.AddMessagingService(msg)
	tree.AddAPIService(api)

	ctx, cancel := context.WithCancel(context.Background())
	done := tree.ServeBackground(ctx)

	waitFor(t, func() bool {
		return data.starts.Load() == 1 && msg.starts.Load() == 1 && api.starts.Load() == 1
	})

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("tree did not stop")
	}

	report, err := tree.UnstoppedServiceReport()
	if err != nil {
		t.Fatalf("UnstoppedServiceReport: %v", err)
	}
	if len(report) != 0 {
		t.Errorf("unstopped services: %v", report)
	}
}

func TestSupervisorTree_RestartsCrashedService(t *testing.T) {
	t.Parallel()
	tree, err := NewSupervisorTree(testLogger(), TreeConfig{
		FailureThreshold: 10,
		FailureBackoff:   10 * time.Millisecond,
		ShutdownTimeout:  time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}
	flaky := &countingService{name: "flaky-scheduler", failN: 2}
	stable := &countingService{name: "http"}
	tree.AddMessagingService(flaky)
	tree.AddAPIService(stable)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := tree.ServeBackground(ctx)

	waitFor(t, func() bool { return flaky.starts.Load() >= 3 })
	if got := stable.starts.Load(); got != 1 {
		t.Errorf("stable service restarted: starts = %d", got)
	}

	cancel()
	<-done
}

func TestSupervisorTree_Serve(t *testing.T) {
	t.Parallel()
	tree, err := NewSupervisorTree(testLogger(), DefaultTreeConfig())
	if err != nil {
		t.Fatal(err)
	}
	svc := &countingService{name: "hub"}
	tree.AddMessagingService(svc)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- tree.Serve(ctx) }()

	waitFor(t, func() bool { return svc.starts.Load() == 1 })
	cancel()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestNewSupervisorTree_RequiresLogger(t *testing.T) {
	t.Parallel()
	if _, err := NewSupervisorTree(nil, DefaultTreeConfig()); err == nil {
		t.Fatal("expected error for nil logger")
	}
}

func TestSupervisorTree_AddByLayer(t *testing.T) {
	t.Parallel()
	tree, err := NewSupervisorTree(testLogger(), DefaultTreeConfig())
	if err != nil {
		t.Fatal(err)
	}

	svc := &countingService{name: "history-store"}
	if _, err := tree.Add(LayerData, svc); err != nil {
		t.Fatalf("Add(LayerData): %v", err)
	}
	if _, err := tree.Add(Layer("storage-layer"), svc); err == nil {
		t.Error("expected error for unknown layer")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := tree.ServeBackground(ctx)
	waitFor(t, func() bool { return svc.starts.Load() == 1 })
	cancel()
	<-done
}
