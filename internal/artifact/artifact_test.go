// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/fleetvault/internal/clock"
)

func newTestStore(t *testing.T) (*Store, *clock.Fake, string) {
	t.Helper()
	clk := clock.NewFake(time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC))
	dir := t.TempDir()
	return NewStore(clk), clk, filepath.Join(dir, "abc123", "ETHOSCOPE_001", "2026-04-02_09-00-00", "db.db")
}

func TestAcquireWritesOwnerAndRemovesOnRelease(t *testing.T) {
	t.Parallel()

	s, _, artifact := newTestStore(t)

	l, err := s.Acquire(artifact)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	data, err := os.ReadFile(LockPath(artifact))
	if err != nil {
		t.Fatalf("read lock file: %v", err)
	}
	content := string(data)
	if !strings.HasPrefix(content, fmt.Sprintf("PID: %d\n", os.Getpid())) {
		t.Errorf("lock content = %q", content)
	}
	if !strings.Contains(content, "Timestamp: 2026-04-02T09:30:00Z") {
		t.Errorf("lock content missing timestamp: %q", content)
	}

	if err := l.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := l.Release(); err != nil {
		t.Errorf("second Release: %v", err)
	}
	if _, err := os.Stat(LockPath(artifact)); !os.IsNotExist(err) {
		t.Errorf("lock file still present: %v", err)
	}
}

func TestAcquireContendedFailsFast(t *testing.T) {
	t.Parallel()

	s, _, artifact := newTestStore(t)

	first, err := s.Acquire(artifact)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}

	start := time.Now()
	_, err = s.Acquire(artifact)
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("second Acquire error = %v, want ErrLocked", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("contended Acquire blocked")
	}

	if err := first.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	again, err := s.Acquire(artifact)
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	_ = again.Release()
}

func TestWithLockMutualExclusion(t *testing.T) {
	t.Parallel()

	s, _, artifact := newTestStore(t)

	var inside, maxInside, ran, locked atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithLock(artifact, func() error {
				n := inside.Add(1)
				for {
					m := maxInside.Load()
					if n <= m || maxInside.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				inside.Add(-1)
				ran.Add(1)
				return nil
			})
			if errors.Is(err, ErrLocked) {
				locked.Add(1)
			} else if err != nil {
				t.Errorf("WithLock: %v", err)
			}
		}()
	}
	wg.Wait()

	if maxInside.Load() > 1 {
		t.Errorf("%d holders inside the critical section at once", maxInside.Load())
	}
	if ran.Load()+locked.Load() != 16 {
		t.Errorf("ran=%d locked=%d, want 16 total", ran.Load(), locked.Load())
	}
	if ran.Load() == 0 {
		t.Error("no goroutine acquired the lock")
	}
}

func TestWithLockReleasesOnErrorAndPanic(t *testing.T) {
	t.Parallel()

	s, _, artifact := newTestStore(t)
	boom := errors.New("transfer failed")

	if err := s.WithLock(artifact, func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("WithLock error = %v", err)
	}
	if _, err := os.Stat(LockPath(artifact)); !os.IsNotExist(err) {
		t.Error("lock file left behind after error")
	}

	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected panic to propagate")
			}
		}()
		_ = s.WithLock(artifact, func() error { panic("mirror crashed") })
	}()

	if _, err := os.Stat(LockPath(artifact)); !os.IsNotExist(err) {
		t.Error("lock file left behind after panic")
	}
	if err := s.WithLock(artifact, func() error { return nil }); err != nil {
		t.Errorf("lock not reusable after panic: %v", err)
	}
}

func TestMarkCompletedAndReadMarker(t *testing.T) {
	t.Parallel()

	s, clk, artifact := newTestStore(t)
	if err := os.MkdirAll(filepath.Dir(artifact), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(artifact, make([]byte, 2048), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := s.MarkCompleted(artifact, map[string]any{"comparison": 100.0}); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}

	m, err := s.ReadMarker(artifact)
	if err != nil {
		t.Fatalf("ReadMarker: %v", err)
	}
	if !m.CompletedAt.Equal(clk.Now()) {
		t.Errorf("CompletedAt = %v, want %v", m.CompletedAt, clk.Now())
	}
	if m.FileSize != 2048 {
		t.Errorf("FileSize = %d, want 2048", m.FileSize)
	}
	if m.BackupFile != artifact {
		t.Errorf("BackupFile = %q", m.BackupFile)
	}
	if m.Stats["comparison"] != 100.0 {
		t.Errorf("Stats = %v", m.Stats)
	}

	raw, _ := os.ReadFile(MarkerPath(artifact))
	if !strings.Contains(string(raw), "\n  \"completed_at\"") {
		t.Errorf("marker not indented: %s", raw)
	}
}

func TestIsRecentMonotonicFreshness(t *testing.T) {
	t.Parallel()

	s, clk, artifact := newTestStore(t)
	if err := os.MkdirAll(filepath.Dir(artifact), 0o755); err != nil {
		t.Fatal(err)
	}

	if s.IsRecent(artifact, time.Hour) {
		t.Error("no marker should not be recent")
	}

	if err := s.MarkCompleted(artifact, nil); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	if !s.IsRecent(artifact, time.Hour) {
		t.Error("fresh marker should be recent")
	}

	clk.Add(59 * time.Minute)
	if !s.IsRecent(artifact, 0) {
		t.Error("marker within default max age should be recent")
	}

	clk.Add(2 * time.Minute)
	if s.IsRecent(artifact, time.Hour) {
		t.Error("marker older than max age should not be recent")
	}
}

func TestIsRecentIgnoresCorruptMarker(t *testing.T) {
	t.Parallel()

	s, _, artifact := newTestStore(t)
	if err := os.MkdirAll(filepath.Dir(artifact), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(MarkerPath(artifact), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if s.IsRecent(artifact, time.Hour) {
		t.Error("corrupt marker should not be recent")
	}
}
