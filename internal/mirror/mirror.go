// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

// Package mirror replicates a device's MariaDB experiment database into a
// local SQLite file.
//
// Replication is incremental. For tables with an id column the local
// MAX(id) is the cursor: only rows with a greater id are fetched, in
// ordered chunks, so repeated runs never copy a row twice. METADATA and
// VAR_MAP have no id and are synchronized row by row with an existence
// check. Tables that do not exist locally yet are created from the remote
// column types and copied in full.
//
// Both sides are *gorm.DB handles. The remote side is opened through a
// Dialer, which lets tests substitute an SQLite source for MariaDB.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// ErrNotReady means the device database exists but has not been populated
// yet (VAR_MAP is empty). It resolves by itself on a later cycle.
var ErrNotReady = errors.New("remote database not ready")

// Defaults for Options.
const (
	DefaultChunkSize = 200
	DefaultBatchSize = 10000
)

// Tables refreshed incrementally on every sync besides the ROI_<n> tables.
var incrementalTables = []string{"CSV_DAM_ACTIVITY", "START_EVENTS", "IMG_SNAPSHOTS", "SENSORS"}

// Tables without an id column, synchronized row by row.
var keylessTables = []string{"METADATA", "VAR_MAP"}

// damTable is also appended to the tab separated DAM activity file.
const damTable = "CSV_DAM_ACTIVITY"

// Config holds the remote connection settings.
type Config struct {
	User           string
	Password       string
	Port           int
	ConnectTimeout time.Duration
}

// Options tunes a Mirror.
type Options struct {
	// ChunkSize is the number of rows fetched per incremental query.
	ChunkSize int
	// BatchSize is the number of rows inserted per transaction on full copies.
	BatchSize int
}

func (o *Options) normalize() {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
}

// Dialer opens database dbName on the device at host.
type Dialer func(ctx context.Context, host, dbName string) (*gorm.DB, error)

// MySQLDialer returns a Dialer for the MariaDB server running on devices.
func MySQLDialer(cfg Config) Dialer {
	return func(ctx context.Context, host, dbName string) (*gorm.DB, error) {
		port := cfg.Port
		if port == 0 {
			port = 3306
		}
		timeout := cfg.ConnectTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&timeout=%s&readTimeout=5m",
			cfg.User, cfg.Password, host, port, dbName, timeout)

		db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: newGormLogger("remote")})
		if err != nil {
			return nil, fmt.Errorf("connect to %s: %w", host, err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(2)
		if err := sqlDB.PingContext(ctx); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("ping %s: %w", host, err)
		}
		return db, nil
	}
}

// OpenSQLite opens (creating if needed) a SQLite database at path.
func OpenSQLite(path string) (*gorm.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: newGormLogger("local")})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Exec("PRAGMA busy_timeout = 30000").Error; err != nil {
		closeDB(db)
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}
	return db, nil
}

// Mirror copies one remote database into one local SQLite file.
type Mirror struct {
	remote  *gorm.DB
	local   *gorm.DB
	dst     string
	damPath string
	opts    Options
}

// New opens the local mirror at dst. The mirror takes ownership of remote
// and closes it in Close.
func New(remote *gorm.DB, dst string, opts Options) (*Mirror, error) {
	opts.normalize()
	local, err := OpenSQLite(dst)
	if err != nil {
		return nil, err
	}
	return &Mirror{
		remote:  remote,
		local:   local,
		dst:     dst,
		damPath: strings.TrimSuffix(dst, filepath.Ext(dst)) + ".txt",
		opts:    opts,
	}, nil
}

// Path returns the local SQLite path.
func (m *Mirror) Path() string {
	return m.dst
}

// DAMPath returns the DAM activity dump path.
func (m *Mirror) DAMPath() string {
	return m.damPath
}

// Close closes both connections.
func (m *Mirror) Close() error {
	return errors.Join(closeDB(m.local), closeDB(m.remote))
}

func closeDB(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// quote returns a backtick quoted identifier. Both MariaDB and SQLite
// accept backticks.
func quote(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// sqliteType maps a MariaDB column type to an SQLite affinity.
func sqliteType(dbType string) string {
	t := strings.ToLower(dbType)
	switch {
	case strings.Contains(t, "int"):
		return "INTEGER"
	case strings.Contains(t, "char"), strings.Contains(t, "text"):
		return "TEXT"
	case strings.Contains(t, "float"), strings.Contains(t, "double"), strings.Contains(t, "decimal"), strings.Contains(t, "real"):
		return "REAL"
	case strings.Contains(t, "blob"), strings.Contains(t, "binary"):
		return "BLOB"
	default:
		return "TEXT"
	}
}

// tableFamily collapses ROI_<n> tables into one metric label.
func tableFamily(table string) string {
	if strings.HasPrefix(table, "ROI_") && table != "ROI_MAP" {
		return "ROI"
	}
	return table
}
