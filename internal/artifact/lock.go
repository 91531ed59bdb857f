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
	"sync"
	"time"

	"github.com/danjacques/gofslock/fslock"

	"github.com/tomtom215/fleetvault/internal/logging"
)

// ErrLocked is returned when another holder owns the artifact lock.
var ErrLocked = errors.New("artifact is locked")

// LockPath returns the lock file path for an artifact.
func LockPath(artifact string) string {
	return artifact + ".lock"
}

// held tracks locks owned by this process. The lock file is unlinked before
// it is unlocked, so a racing opener can still flock the orphaned inode;
// the in-process set keeps exclusion exact between goroutines.
var held = struct {
	sync.Mutex
	paths map[string]bool
}{paths: make(map[string]bool)}

func claim(key string) bool {
	held.Lock()
	defer held.Unlock()
	if held.paths[key] {
		return false
	}
	held.paths[key] = true
	return true
}

func unclaim(key string) {
	held.Lock()
	delete(held.paths, key)
	held.Unlock()
}

// Lock is a held artifact lock. Release is idempotent.
type Lock struct {
	artifact string
	key      string
	handle   fslock.Handle
	once     sync.Once
	err      error
}

// Acquire takes the exclusive lock for artifact without blocking.
func (s *Store) Acquire(artifact string) (*Lock, error) {
	lockPath := LockPath(artifact)
	key, err := filepath.Abs(lockPath)
	if err != nil {
		key = lockPath
	}
	if !claim(key) {
		return nil, fmt.Errorf("%w: %s", ErrLocked, artifact)
	}

	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		unclaim(key)
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	h, err := fslock.Lock(lockPath)
	if err != nil {
		unclaim(key)
		if errors.Is(err, fslock.ErrLockHeld) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, artifact)
		}
		return nil, fmt.Errorf("lock %s: %w", lockPath, err)
	}

	owner := fmt.Sprintf("PID: %d\nTimestamp: %s\n", os.Getpid(), s.clock.Now().Format(time.RFC3339))
	if err := os.WriteFile(lockPath, []byte(owner), 0o644); err != nil {
		// The lock is held regardless; the owner line is diagnostic only.
		logging.Warn().Err(err).Str("path", lockPath).Msg("Could not write lock owner")
	}

	return &Lock{artifact: artifact, key: key, handle: h}, nil
}

// Path returns the protected artifact path.
func (l *Lock) Path() string {
	return l.artifact
}

// Release removes the lock file and drops the lock.
func (l *Lock) Release() error {
	l.once.Do(func() {
		lockPath := LockPath(l.artifact)
		if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
			l.err = fmt.Errorf("remove %s: %w", lockPath, err)
		}
		if err := l.handle.Unlock(); err != nil && l.err == nil {
			l.err = fmt.Errorf("unlock %s: %w", lockPath, err)
		}
		unclaim(l.key)
	})
	return l.err
}

// WithLock runs fn while holding the artifact lock. The lock is released on
// every exit path, including a panic in fn.
func (s *Store) WithLock(artifact string, fn func() error) (err error) {
	l, err := s.Acquire(artifact)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := l.Release(); rerr != nil {
			logging.Warn().Err(rerr).Str("artifact", artifact).Msg("Lock cleanup failed")
		}
	}()
	return fn()
}
