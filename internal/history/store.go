// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

// Package history persists finished backup runs in BadgerDB.
//
// Keys are history/<device-id>/<unix-nanos, zero padded>, so a prefix scan
// yields one device's runs in chronological order. Only the newest
// Retention runs per device are kept; older ones are deleted in the same
// transaction that records a new run.
package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/fleetvault/internal/logging"
	"github.com/tomtom215/fleetvault/internal/models"
)

// DefaultRetention is the number of runs kept per device.
const DefaultRetention = 50

// DefaultGCInterval is how often Serve runs value log GC.
const DefaultGCInterval = 10 * time.Minute

// ErrClosed is returned after Close.
var ErrClosed = errors.New("history store closed")

const keyPrefix = "history/"

// Config configures a Store.
type Config struct {
	// Dir is the badger directory. Ignored when InMemory is set.
	Dir        string
	InMemory   bool
	Retention  int
	GCInterval time.Duration
}

// Store is the run history.
type Store struct {
	db         *badger.DB
	retention  int
	gcInterval time.Duration

	mu     sync.RWMutex
	closed bool
}

// Open opens (or creates) the store.
func Open(cfg Config) (*Store, error) {
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.GCInterval <= 0 {
		cfg.GCInterval = DefaultGCInterval
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Dir == "" {
			return nil, fmt.Errorf("history dir is required")
		}
		opts = badger.DefaultOptions(cfg.Dir)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	logging.Info().
		Str("dir", cfg.Dir).
		Bool("in_memory", cfg.InMemory).
		Int("retention", cfg.Retention).
		Msg("Run history opened")

	return &Store{db: db, retention: cfg.Retention, gcInterval: cfg.GCInterval}, nil
}

func devicePrefix(deviceID string) []byte {
	return []byte(keyPrefix + deviceID + "/")
}

func runKey(deviceID string, ended time.Time) []byte {
	return []byte(fmt.Sprintf("%s%s/%020d", keyPrefix, deviceID, ended.UnixNano()))
}

// Record stores rec and prunes the device's oldest runs beyond the
// retention. A missing RunID is generated.
func (s *Store) Record(ctx context.Context, rec models.RunRecord) error {
	if rec.DeviceID == "" {
		return fmt.Errorf("run record has no device id")
	}
	if rec.RunID == "" {
		rec.RunID = uuid.New().String()
	}
	if rec.Ended.IsZero() {
		rec.Ended = time.Now()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(runKey(rec.DeviceID, rec.Ended), data); err != nil {
			return err
		}
		keys := collectKeys(txn, devicePrefix(rec.DeviceID))
		for len(keys) > s.retention {
			if err := txn.Delete(keys[0]); err != nil {
				return err
			}
			keys = keys[1:]
		}
		return nil
	})
}

// collectKeys lists keys under prefix in ascending order. It sees writes
// made earlier in txn.
func collectKeys(txn *badger.Txn, prefix []byte) [][]byte {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys
}

// Recent returns up to limit runs for deviceID, newest first. A limit of
// zero or less returns all retained runs.
func (s *Store) Recent(ctx context.Context, deviceID string, limit int) ([]models.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	runs := []models.RunRecord{}
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := devicePrefix(deviceID)
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration seeks to the largest key <= seek.
		seek := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec models.RunRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				logging.Warn().Err(err).Str("key", string(it.Item().Key())).Msg("Skipping unreadable run record")
				continue
			}
			runs = append(runs, rec)
			if limit > 0 && len(runs) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// Clear deletes every run of deviceID.
func (s *Store) Clear(deviceID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return s.db.DropPrefix(devicePrefix(deviceID))
}

// RunGC runs badger value log GC until nothing is left to rewrite.
func (s *Store) RunGC() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	for {
		err := s.db.RunValueLogGC(0.5)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// Serve runs periodic GC until ctx is done. It implements suture.Service.
func (s *Store) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.gcInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.RunGC(); err != nil {
				logging.Error().Err(err).Msg("Run history GC failed")
			}
		}
	}
}

// String names the service in supervisor logs.
func (s *Store) String() string {
	return "history-store"
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
