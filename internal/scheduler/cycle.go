// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/fleetvault/internal/backup"
	"github.com/tomtom215/fleetvault/internal/logging"
	"github.com/tomtom215/fleetvault/internal/metrics"
	"github.com/tomtom215/fleetvault/internal/models"
	"github.com/tomtom215/fleetvault/internal/validation"
)

// outcome is how one submitted job ended.
type outcome int

const (
	outcomeSucceeded outcome = iota
	outcomeFailed
	outcomeTimedOut
	outcomeSkipped
)

// deferrable reports whether a job that ended with kind should be retried
// next cycle rather than counted as a failure.
func deferrable(kind backup.Kind) bool {
	return kind == backup.KindLocked || kind == backup.KindNotReady
}

// RunOnce runs a single cycle immediately, outside the loop.
func (s *Scheduler) RunOnce(ctx context.Context) (models.CycleSummary, error) {
	s.mu.Lock()
	s.cycleCount++
	s.lastCycleStart = s.clock.Now()
	s.mu.Unlock()
	return s.safeCycle(ctx)
}

func (s *Scheduler) runCycle(ctx context.Context) (models.CycleSummary, error) {
	s.setState(StateDiscovering)
	devices := s.discover(ctx)
	if err := ctx.Err(); err != nil {
		return models.CycleSummary{}, err
	}
	if len(devices) == 0 {
		logging.Info().Msg("No devices found for backup")
		s.markBackupTime()
		return models.CycleSummary{}, nil
	}
	logging.Info().Int("count", len(devices)).Msg("Found devices for backup")

	summary := s.process(ctx, devices)
	s.markBackupTime()
	return summary, nil
}

func (s *Scheduler) markBackupTime() {
	s.mu.Lock()
	s.lastBackup = s.clock.Now()
	s.mu.Unlock()
}

// discover asks the finder for active devices, retrying an empty answer.
// The retry delay is longer when the registry recorded a failed poll.
func (s *Scheduler) discover(ctx context.Context) []models.Device {
	attempts := s.cfg.DiscoveryAttempts
	for attempt := 1; attempt <= attempts; attempt++ {
		logging.Info().Int("attempt", attempt).Int("max_attempts", attempts).Msg("Device discovery attempt")

		devices, failed := s.findDevices(ctx, true)
		if len(devices) > 0 {
			return devices
		}
		if attempt == attempts || ctx.Err() != nil {
			break
		}

		delay := s.cfg.EmptyRetryDelay
		if failed {
			delay = s.cfg.ErrorRetryDelay
			logging.Warn().Dur("retry_in", delay).Msg("Device discovery failed, retrying")
		} else {
			logging.Warn().Dur("retry_in", delay).Msg("No active devices found, retrying")
		}
		if err := s.clock.Sleep(ctx, delay); err != nil {
			break
		}
	}
	return nil
}

// findDevices calls the finder and reports whether the poll failed, either
// by panicking or by recording a failed source.
func (s *Scheduler) findDevices(ctx context.Context, onlyActive bool) (devices []models.Device, failed bool) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().Interface("panic", r).Msg("Device discovery panicked")
			devices, failed = nil, true
		}
	}()
	devices = s.finder.FindDevices(ctx, onlyActive)
	if len(devices) == 0 && s.registry.Discovery().LastSource == models.SourceFailed {
		failed = true
	}
	return devices, failed
}

// process submits one job per valid device and waits for all of them.
func (s *Scheduler) process(ctx context.Context, devices []models.Device) models.CycleSummary {
	var summary models.CycleSummary

	s.setState(StateSubmitting)
	results := make(chan outcome, len(devices))
	for _, device := range devices {
		if verr := validation.ValidateStruct(&device); verr != nil {
			logging.Warn().Str("device_id", device.ID).Str("device_name", device.Name).Str("reason", verr.Error()).Msg("Device failed validation, skipping")
			summary.Skipped++
			continue
		}
		if !s.registry.Begin(device) {
			logging.Info().Str("device_id", device.ID).Msg("Backup already in progress for device, skipping")
			summary.Skipped++
			continue
		}
		logging.Info().Str("device_id", device.ID).Str("device_name", device.Name).Msg("Submitting backup job")
		summary.Submitted++
		go func(device models.Device) {
			results <- s.work(ctx, device)
		}(device)
	}

	s.setState(StateAwaitingCompletion)
	for i := 0; i < summary.Submitted; i++ {
		switch <-results {
		case outcomeSucceeded:
			summary.Succeeded++
		case outcomeTimedOut:
			summary.TimedOut++
		case outcomeSkipped:
			summary.Skipped++
		default:
			summary.Failed++
		}
	}
	return summary
}

// work waits for a free worker and runs the device's job. It never panics.
func (s *Scheduler) work(ctx context.Context, device models.Device) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().Str("device_id", device.ID).Interface("panic", r).Str("stack", string(debug.Stack())).Msg("CRITICAL: backup worker crashed")
			s.registry.Fail(device.ID, fmt.Sprintf("Job crashed: %v", r))
			out = outcomeFailed
		}
	}()

	select {
	case s.workers <- struct{}{}:
	case <-ctx.Done():
		s.registry.Fail(device.ID, "Backup cancelled before start")
		return outcomeFailed
	}
	metrics.BackupDevicesProcessing.Inc()
	defer func() {
		metrics.BackupDevicesProcessing.Dec()
		<-s.workers
	}()

	return s.runJob(ctx, device)
}

// runJob runs one job under the job timeout, forwarding its progress to
// the registry, and finalizes the device's entry.
func (s *Scheduler) runJob(ctx context.Context, device models.Device) outcome {
	log := logging.WithDevice(device.ID)
	job := s.factory.New(device)
	started := s.clock.Now()
	log.Info().Str("device_name", device.Name).Str("ip", device.IP).Str("mode", string(job.Mode())).Msg("=== Initiating backup job ===")

	jobCtx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
	defer cancel()

	msgs := make(chan backup.Message, 32)
	done := make(chan backup.Result, 1)
	go func() {
		res := backup.Execute(jobCtx, job, msgs)
		close(msgs)
		done <- res
	}()

	count := 0
	for msgs != nil {
		select {
		case msg, ok := <-msgs:
			if !ok {
				msgs = nil
				continue
			}
			count++
			s.registry.Apply(device.ID, msg)
			if s.broadcast != nil {
				s.broadcast.BroadcastBackupProgress(device.ID, msg)
			}
		case <-jobCtx.Done():
			return s.abandon(ctx, jobCtx, device, job, started, count)
		}
	}
	res := <-done

	synced := s.syncStatus(ctx, job)
	ended := s.clock.Now()
	rec := models.RunRecord{
		RunID:      uuid.New().String(),
		DeviceID:   device.ID,
		DeviceName: device.Name,
		Mode:       string(job.Mode()),
		Started:    started,
		Ended:      ended,
		Success:    res.Success,
		Messages:   count,
	}

	kind := res.Kind()
	switch {
	case res.Success:
		s.registry.Finish(device.ID, true, synced)
	case kind == backup.KindUnexpected:
		s.registry.Fail(device.ID, fmt.Sprintf("Job crashed: %v", res.Err))
	case deferrable(kind):
		s.registry.Defer(device.ID, fmt.Sprintf("Backup skipped: %v", res.Err), synced)
	default:
		s.registry.Finish(device.ID, false, synced)
	}

	if res.Success {
		metrics.RecordBackupJob(string(job.Mode()), "success", ended.Sub(started))
		log.Info().Dur("elapsed", ended.Sub(started)).Msg("Backup SUCCESSFUL")
		s.finishRun(ctx, rec)
		return outcomeSucceeded
	}

	rec.ErrorKind = string(kind)
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	metrics.RecordBackupJob(string(job.Mode()), string(kind), ended.Sub(started))
	if deferrable(kind) {
		log.Warn().Err(res.Err).Str("kind", string(kind)).Dur("elapsed", ended.Sub(started)).Msg("Backup skipped, will retry next cycle")
		s.finishRun(ctx, rec)
		return outcomeSkipped
	}
	log.Error().Err(res.Err).Str("kind", string(kind)).Dur("elapsed", ended.Sub(started)).Msg("Backup FAILED")
	s.finishRun(ctx, rec)
	return outcomeFailed
}

// abandon handles a job whose context ended before it finished. The job
// goroutine is left to unwind on its own; its remaining messages are
// dropped.
func (s *Scheduler) abandon(ctx, jobCtx context.Context, device models.Device, job backup.Job, started time.Time, count int) outcome {
	ended := s.clock.Now()
	rec := models.RunRecord{
		RunID:      uuid.New().String(),
		DeviceID:   device.ID,
		DeviceName: device.Name,
		Mode:       string(job.Mode()),
		Started:    started,
		Ended:      ended,
		Messages:   count,
	}

	if errors.Is(jobCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		msg := fmt.Sprintf("Backup timed out after %d seconds", int(s.cfg.JobTimeout.Seconds()))
		logging.Error().Str("device_id", device.ID).Str("device_name", device.Name).Msg(msg)
		s.registry.Fail(device.ID, msg)
		metrics.RecordBackupJob(string(job.Mode()), "timeout", ended.Sub(started))
		rec.TimedOut = true
		rec.ErrorKind = "timeout"
		rec.Error = msg
		s.finishRun(ctx, rec)
		return outcomeTimedOut
	}

	s.registry.Fail(device.ID, "Backup cancelled: scheduler stopping")
	rec.ErrorKind = "cancelled"
	rec.Error = "scheduler stopping"
	s.finishRun(ctx, rec)
	return outcomeFailed
}

// syncStatus asks the job for its local sync status, isolating panics.
func (s *Scheduler) syncStatus(ctx context.Context, job backup.Job) (synced models.SyncStatus) {
	defer func() {
		if r := recover(); r != nil {
			logging.Warn().Str("device_id", job.Device().ID).Interface("panic", r).Msg("Could not check sync status")
			synced = models.SyncStatus{}
		}
	}()
	return job.CheckSyncStatus(ctx)
}

func (s *Scheduler) finishRun(ctx context.Context, rec models.RunRecord) {
	if s.history != nil {
		hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if err := s.history.Record(hctx, rec); err != nil {
			logging.Warn().Err(err).Str("device_id", rec.DeviceID).Msg("Failed to record run history")
		}
		cancel()
	}
	if s.broadcast != nil {
		s.broadcast.BroadcastJobFinished(rec)
	}
}
