// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

package backup

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/tomtom215/fleetvault/internal/logging"
	"github.com/tomtom215/fleetvault/internal/metrics"
	"github.com/tomtom215/fleetvault/internal/models"
)

// VideoJob copies the device video directory with rsync.
type VideoJob struct {
	device models.Device
	opts   *Options
}

// NewVideoJob creates a VideoJob for device.
func NewVideoJob(device models.Device, opts *Options) *VideoJob {
	return &VideoJob{device: device, opts: opts}
}

func (j *VideoJob) Device() models.Device { return j.device }
func (j *VideoJob) Mode() Mode            { return ModeVideo }

// Destination is the local directory receiving the videos.
func (j *VideoJob) Destination() string {
	return j.opts.VideosDir
}

// Run fetches the manifest and rsyncs the video directory.
func (j *VideoJob) Run(ctx context.Context, out chan<- Message) Result {
	clk := j.opts.Clock
	start := clk.Now()
	em := newEmitter(ctx, out, j.device.ID, clk.Now)
	id := j.device.ID
	elapsed := func() string { return seconds(clk.Now().Sub(start)) }

	manifest, err := j.opts.Manifests.Fetch(ctx, j.device.IP)
	if err != nil {
		log := logging.WithDevice(id)
		log.Warn().Err(err).Msg("Failed to retrieve video information")
		em.fail("Failed to retrieve video information from device %s", id)
		return Result{Err: newError(KindTransferFailed, "list videos", id, err)}
	}

	if len(manifest.VideoFiles) == 0 {
		em.warn("No videos to backup for device %s", id)
		return Result{Success: true}
	}

	em.info("Rsync video backup initiated for device %s", id)

	md := manifest.Metadata
	source := md.VideosDirectory
	if source == "" {
		source = defaultVideosDirectory
	}
	ip := md.DeviceIP
	if ip == "" {
		ip = j.device.IP
	}
	total := md.TotalFiles
	if total == 0 {
		total = len(manifest.VideoFiles)
	}

	em.info("Found %d videos to backup from %s", total, source)
	em.metadata(models.DeviceMetadata{
		TotalFiles:      total,
		DiskUsageBytes:  md.DiskUsageBytes,
		VideosDirectory: source,
		DeviceIP:        ip,
	})

	dest := j.Destination()
	if err := os.MkdirAll(dest, 0o755); err != nil {
		em.fail("Unexpected error during rsync backup for device %s after %s: %v", id, elapsed(), err)
		return Result{Err: newError(KindUnexpected, "mkdir", id, err)}
	}

	src := fmt.Sprintf("%s@%s:%s/", j.opts.SSHUser, ip, strings.TrimSuffix(source, "/"))
	spec := rsyncSpec{source: src, dest: dest, sshKey: j.opts.SSHKeyPath, timeout: j.opts.RsyncIOTimeout}
	em.info("Starting rsync from %s to %s", src, dest)

	progress := &videoProgress{total: total}
	code, err := j.opts.Runner.Run(ctx, spec.args(), func(line string) {
		em.log.Debug().Str("line", line).Msg("rsync")
		if msg, ok := progress.Line(line); ok {
			em.info("%s", msg)
		}
	})
	metrics.BackupRsyncBytes.WithLabelValues("videos").Add(float64(progress.bytes))

	if err != nil {
		em.fail("Unexpected error during rsync backup for device %s after %s: %v", id, elapsed(), err)
		return Result{Err: newError(KindTransferFailed, "rsync", id, err), Transferred: progress.completed}
	}
	if code != 0 {
		em.fail("Rsync failed with return code %d after %s", code, elapsed())
		return Result{Err: newError(KindTransferFailed, "rsync", id, fmt.Errorf("exit code %d", code)), Transferred: progress.completed}
	}

	em.success("Rsync backup completed successfully in %s", elapsed())
	return Result{Success: true, Transferred: progress.completed}
}

// CheckSyncStatus counts manifest files present in the destination.
func (j *VideoJob) CheckSyncStatus(ctx context.Context) models.SyncStatus {
	manifest, err := j.opts.Manifests.Cached(ctx, j.device.IP)
	if err != nil {
		log := logging.WithDevice(j.device.ID)
		log.Debug().Err(err).Msg("Error checking sync status")
		return models.SyncStatus{}
	}
	local := localVideoFiles(j.Destination())
	fc := models.FileCount{Total: len(manifest.VideoFiles)}
	for name := range manifest.VideoFiles {
		if _, ok := local[name]; ok {
			fc.Present++
		}
	}
	return models.SyncStatus{VideoFiles: &fc}
}
