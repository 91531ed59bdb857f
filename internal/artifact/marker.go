// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/fleetvault/internal/clock"
	"github.com/tomtom215/fleetvault/internal/logging"
)

// DefaultMaxAge is the freshness window used when callers pass zero.
const DefaultMaxAge = time.Hour

// Marker is the content of a completion marker.
type Marker struct {
	CompletedAt time.Time      `json:"completed_at"`
	BackupFile  string         `json:"backup_file"`
	FileSize    int64          `json:"file_size"`
	Stats       map[string]any `json:"stats"`
}

// MarkerPath returns the completion marker path for an artifact.
func MarkerPath(artifact string) string {
	return artifact + ".completed"
}

// Store reads and writes lock files and completion markers.
type Store struct {
	clock clock.Clock
}

// NewStore creates a Store. A nil clk means the system clock.
func NewStore(clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.System
	}
	return &Store{clock: clk}
}

// MarkCompleted writes the completion marker for artifact. The marker is
// written to a temporary file and renamed so readers never see a partial
// document.
func (s *Store) MarkCompleted(artifact string, stats map[string]any) error {
	if stats == nil {
		stats = map[string]any{}
	}
	m := Marker{
		CompletedAt: s.clock.Now(),
		BackupFile:  artifact,
		Stats:       stats,
	}
	if fi, err := os.Stat(artifact); err == nil {
		m.FileSize = fi.Size()
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode completion marker: %w", err)
	}

	path := MarkerPath(artifact)
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create completion marker: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write completion marker: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close completion marker: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("install completion marker: %w", err)
	}
	return nil
}

// ReadMarker loads the completion marker for artifact. A missing marker
// returns an error satisfying os.IsNotExist.
func (s *Store) ReadMarker(artifact string) (*Marker, error) {
	data, err := os.ReadFile(MarkerPath(artifact))
	if err != nil {
		return nil, err
	}
	var m Marker
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode completion marker: %w", err)
	}
	return &m, nil
}

// IsRecent reports whether artifact has a completion marker younger than
// maxAge. Unreadable markers count as not recent.
func (s *Store) IsRecent(artifact string, maxAge time.Duration) bool {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	m, err := s.ReadMarker(artifact)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.Debug().Err(err).Str("artifact", artifact).Msg("Ignoring unreadable completion marker")
		}
		return false
	}
	return s.clock.Now().Sub(m.CompletedAt) < maxAge
}
