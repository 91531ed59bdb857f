// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/tomtom215/fleetvault/internal/metrics"
	"github.com/tomtom215/fleetvault/internal/models"
)

// UnifiedJob rsyncs results (SQLite) and videos in one job. Results always
// go first.
type UnifiedJob struct {
	device models.Device
	opts   *Options

	mu      sync.Mutex
	details map[string]models.TransferDetail
}

// NewUnifiedJob creates a UnifiedJob for device.
func NewUnifiedJob(device models.Device, opts *Options) *UnifiedJob {
	return &UnifiedJob{device: device, opts: opts}
}

func (j *UnifiedJob) Device() models.Device { return j.device }
func (j *UnifiedJob) Mode() Mode            { return ModeUnified }

type operation struct {
	name   string
	source string
	dest   string
}

func (j *UnifiedJob) operations(results bool) []operation {
	var ops []operation
	if results {
		ops = append(ops, operation{name: "results", source: DefaultRemoteResults, dest: j.opts.ResultsDir})
	}
	if j.opts.BackupVideos {
		ops = append(ops, operation{name: "videos", source: DefaultRemoteVideos, dest: j.opts.VideosDir})
	}
	return ops
}

// Run rsyncs each selected directory in order and stops at the first
// failure.
func (j *UnifiedJob) Run(ctx context.Context, out chan<- Message) Result {
	clk := j.opts.Clock
	start := clk.Now()
	em := newEmitter(ctx, out, j.device.ID, clk.Now)
	id := j.device.ID

	results := j.opts.BackupResults
	if results && !j.device.HasEngine(models.EngineSQLite) {
		em.warn("Device %s does not have a SQLite database - skipping SQLite results backup", id)
		results = false
	}

	ops := j.operations(results)
	if len(ops) == 0 {
		em.warn("No valid backup types for device %s", id)
		return Result{Err: newError(KindValidationFailed, "select operations", id, errors.New("nothing to back up"))}
	}

	names := make([]string, len(ops))
	for i, op := range ops {
		names[i] = op.name
	}
	em.info("SQLite rsync backup initiated for %s on device %s", strings.Join(names, ", "), id)

	transferred := 0
	for i, op := range ops {
		em.info("Starting %s backup (%d/%d)", op.name, i+1, len(ops))
		n, err := j.rsync(ctx, em, op)
		transferred += n
		if err != nil {
			em.fail("%s backup failed", title(op.name))
			return Result{Err: err, Transferred: transferred}
		}
	}

	em.success("Unified backup completed successfully in %s", seconds(clk.Now().Sub(start)))
	return Result{Success: true, Transferred: transferred}
}

func (j *UnifiedJob) rsync(ctx context.Context, em *emitter, op operation) (int, error) {
	id := j.device.ID
	if err := os.MkdirAll(op.dest, 0o755); err != nil {
		em.fail("Error during %s rsync: %v", op.name, err)
		return 0, newError(KindUnexpected, op.name, id, err)
	}

	src := fmt.Sprintf("%s@%s:%s", j.opts.SSHUser, j.device.IP, op.source)
	spec := rsyncSpec{source: src, dest: op.dest, sshKey: j.opts.SSHKeyPath, timeout: j.opts.RsyncIOTimeout, unified: true}
	em.info("Starting %s rsync from %s to %s", op.name, src, op.dest)

	parser := newTransferParser(op.name, j.opts.Clock.Now)
	code, err := j.opts.Runner.Run(ctx, spec.args(), func(line string) {
		em.log.Debug().Str("operation", op.name).Str("line", line).Msg("rsync")
		if msg, ok := parser.Line(line); ok {
			em.info("%s", msg)
		}
	})

	detail := parser.finish(op.dest)
	j.mu.Lock()
	if j.details == nil {
		j.details = make(map[string]models.TransferDetail)
	}
	j.details[op.name] = detail
	j.mu.Unlock()
	metrics.BackupRsyncBytes.WithLabelValues(op.name).Add(float64(detail.TotalBytes))

	if err != nil {
		em.fail("Error during %s rsync: %v", op.name, err)
		return detail.TotalFiles, newError(KindTransferFailed, op.name, id, err)
	}
	if code != 0 {
		em.fail("%s rsync failed with return code %d", title(op.name), code)
		return detail.TotalFiles, newError(KindTransferFailed, op.name, id, fmt.Errorf("exit code %d", code))
	}
	em.info("%s rsync completed successfully - %d files", title(op.name), detail.TotalFiles)
	return detail.TotalFiles, nil
}

// CheckSyncStatus reports per-directory usage and the last transfer details.
func (j *UnifiedJob) CheckSyncStatus(_ context.Context) models.SyncStatus {
	var st models.SyncStatus
	if j.opts.BackupResults {
		r := directoryStatus(j.opts.ResultsDir, "results")
		st.Results = &r
	}
	if j.opts.BackupVideos {
		v := directoryStatus(j.opts.VideosDir, "videos")
		st.Videos = &v
	}
	j.mu.Lock()
	if j.details != nil {
		st.TransferDetails = j.details
		st = st.Clone()
	}
	j.mu.Unlock()
	return st
}
