// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

package backup

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tomtom215/fleetvault/internal/artifact"
	"github.com/tomtom215/fleetvault/internal/logging"
	"github.com/tomtom215/fleetvault/internal/mirror"
	"github.com/tomtom215/fleetvault/internal/models"
)

// MirrorJob mirrors the device MariaDB database into a local SQLite file.
type MirrorJob struct {
	device models.Device
	opts   *Options

	mu     sync.Mutex
	path   string
	tables map[string]int64
}

// NewMirrorJob creates a MirrorJob for device.
func NewMirrorJob(device models.Device, opts *Options) *MirrorJob {
	return &MirrorJob{device: device, opts: opts}
}

func (j *MirrorJob) Device() models.Device { return j.device }
func (j *MirrorJob) Mode() Mode            { return ModeMirror }

// DatabaseName is the MariaDB schema named in the device descriptor. A
// descriptor that lists none falls back to the NAME_db convention.
func (j *MirrorJob) DatabaseName() string {
	if names := j.device.DatabaseNames(models.EngineMariaDB); len(names) > 0 {
		return names[0]
	}
	return j.device.Name + "_db"
}

// ArtifactPath resolves the local mirror path from the device database
// metadata.
//
// An explicit path is joined with the results directory (absolute paths
// are used as is). Otherwise the backup filename DATE_TIME_ETHOID.db is
// expanded to ETHOID/NAME/DATE_TIME/FILENAME.
func (j *MirrorJob) ArtifactPath() (string, error) {
	names := j.device.DatabaseNames(models.EngineMariaDB)
	if len(names) == 0 {
		return "", newError(KindValidationFailed, "resolve path", j.device.ID, errors.New("no MariaDB database"))
	}
	info := j.device.Databases[models.EngineMariaDB][names[0]]

	if info.Path != "" {
		if filepath.IsAbs(info.Path) {
			return filepath.Clean(info.Path), nil
		}
		return filepath.Join(j.opts.ResultsDir, info.Path), nil
	}

	if info.BackupFilename == "" {
		return "", newError(KindValidationFailed, "resolve path", j.device.ID, errors.New("database metadata has neither path nor backup_filename"))
	}
	rel, err := pathFromFilename(info.BackupFilename, j.device.Name)
	if err != nil {
		return "", newError(KindValidationFailed, "resolve path", j.device.ID, err)
	}
	return filepath.Join(j.opts.ResultsDir, rel), nil
}

func pathFromFilename(filename, deviceName string) (string, error) {
	parts := strings.Split(strings.TrimSuffix(filename, ".db"), "_")
	if len(parts) < 3 {
		return "", fmt.Errorf("invalid backup filename format: %s", filename)
	}
	date, tod := parts[0], parts[1]
	ethoID := strings.Join(parts[2:], "_")
	return filepath.Join(ethoID, deviceName, date+"_"+tod, filename), nil
}

// Run mirrors the database.
func (j *MirrorJob) Run(ctx context.Context, out chan<- Message) Result {
	clk := j.opts.Clock
	start := clk.Now()
	em := newEmitter(ctx, out, j.device.ID, clk.Now)
	id := j.device.ID

	elapsed := func() string { return seconds(clk.Now().Sub(start)) }

	em.info("MariaDB backup initiated for device %s", id)

	if !j.device.HasEngine(models.EngineMariaDB) {
		em.warn("Device %s does not have a MariaDB database - skipping MariaDB backup", id)
		return Result{Err: newError(KindValidationFailed, "validate", id, errors.New("no MariaDB database"))}
	}

	path, err := j.ArtifactPath()
	if err != nil {
		em.fail("Backup error after %s: %v", elapsed(), err)
		return Result{Err: err}
	}
	j.mu.Lock()
	j.path = path
	j.mu.Unlock()

	em.info("Preparing to back up database '%s' to %s", j.DatabaseName(), path)

	if j.opts.SkipIfRecent && j.opts.Artifacts.IsRecent(path, j.opts.RecentMaxAge) {
		em.success("Backup of device %s completed recently, skipping", id)
		return Result{Success: true}
	}

	var res Result
	err = j.opts.Artifacts.WithLock(path, func() error {
		res = j.mirror(ctx, em, path, elapsed)
		return nil
	})
	if err != nil {
		if errors.Is(err, artifact.ErrLocked) {
			em.warn("Backup of device %s already in progress, skipping (after %s)", id, elapsed())
			return Result{Err: newError(KindLocked, "acquire lock", id, err)}
		}
		em.fail("Unexpected error during backup for device %s after %s: %v", id, elapsed(), err)
		return Result{Err: newError(KindUnexpected, "lock", id, err)}
	}
	return res
}

func (j *MirrorJob) mirror(ctx context.Context, em *emitter, path string, elapsed func() string) Result {
	id := j.device.ID

	remote, err := j.opts.Dialer(ctx, j.device.IP, j.DatabaseName())
	if err != nil {
		em.fail("Backup error after %s: %v", elapsed(), err)
		return Result{Err: newError(KindTransferFailed, "connect", id, err)}
	}
	m, err := mirror.New(remote, path, j.opts.Mirror)
	if err != nil {
		if sqlDB, dbErr := remote.DB(); dbErr == nil {
			sqlDB.Close()
		}
		em.fail("Backup error after %s: %v", elapsed(), err)
		return Result{Err: newError(KindTransferFailed, "open mirror", id, err)}
	}
	defer func() {
		if err := m.Close(); err != nil {
			logging.Warn().Err(err).Str("device_id", id).Msg("Error closing mirror connections")
		}
	}()

	stats, err := m.Sync(ctx)
	if err != nil {
		if errors.Is(err, mirror.ErrNotReady) {
			em.warn("Database not ready for device %s, will retry later (after %s)", id, elapsed())
			return Result{Err: newError(KindNotReady, "sync", id, err)}
		}
		em.fail("Backup error after %s: %v", elapsed(), err)
		return Result{Err: newError(KindTransferFailed, "sync", id, err)}
	}
	if n := stats.Total(); n > 0 {
		em.info("Copied %d new rows from %d tables", n, len(stats.RowsCopied))
	}

	pct := m.Compare(ctx)
	dup := m.CheckDuplication(ctx)
	for table, n := range dup.Tables {
		if n > 0 {
			em.warn("Found %d duplicate rows in %s", n, table)
		}
	}

	if counts, err := m.TableCounts(ctx); err == nil {
		j.mu.Lock()
		j.tables = counts
		j.mu.Unlock()
	}

	if pct <= 0 {
		em.fail("Backup failed for device %s after %s", id, elapsed())
		return Result{Err: newError(KindTransferFailed, "verify", id, fmt.Errorf("comparison score %.1f", pct))}
	}

	markerStats := map[string]any{
		"comparison_percentage": pct,
		"backup_success":        true,
		"data_duplication":      dup.Found(),
		"duplicate_rows":        dup.Tables,
		"rows_copied":           stats.Total(),
		"tables_created":        stats.TablesCreated,
	}
	if err := j.opts.Artifacts.MarkCompleted(path, markerStats); err != nil {
		log := logging.WithDevice(id)
		log.Warn().Err(err).Msg("Could not write completion marker")
	}

	em.success("Backup completed successfully for device %s in %s", id, elapsed())
	return Result{Success: true}
}

// CheckSyncStatus reports the table sizes of the local mirror.
func (j *MirrorJob) CheckSyncStatus(ctx context.Context) models.SyncStatus {
	j.mu.Lock()
	path, tables := j.path, j.tables
	j.mu.Unlock()

	if tables != nil {
		st := models.SyncStatus{Tables: tables}
		return st.Clone()
	}
	if path == "" {
		p, err := j.ArtifactPath()
		if err != nil {
			return models.SyncStatus{}
		}
		path = p
	}
	counts, err := mirror.LocalTableCounts(ctx, path)
	if err != nil {
		return models.SyncStatus{}
	}
	return models.SyncStatus{Tables: counts}
}
