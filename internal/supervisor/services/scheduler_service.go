// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/fleetvault/internal/logging"
)

// BackupScheduler is the Start/Stop lifecycle of *scheduler.Scheduler.
type BackupScheduler interface {
	Start(ctx context.Context) error
	Stop() error
}

// SchedulerService adapts the backup scheduler's Start/Stop lifecycle to
// suture. Start returns once the loop goroutine is running; Stop waits
// for the current cycle to wind down.
type SchedulerService struct {
	scheduler BackupScheduler
	name      string
}

func NewSchedulerService(s BackupScheduler) *SchedulerService {
	return &SchedulerService{
		scheduler: s,
		name:      "backup-scheduler",
	}
}

// Serve starts the scheduler and stops it when ctx is canceled. A failed
// Start is returned so suture restarts the service with backoff.
func (s *SchedulerService) Serve(ctx context.Context) error {
	if err := s.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("backup scheduler start failed: %w", err)
	}

	<-ctx.Done()

	if err := s.scheduler.Stop(); err != nil {
		logging.Warn().Err(err).Str("service", s.name).Msg("Backup scheduler did not stop cleanly")
		return errors.Join(ctx.Err(), fmt.Errorf("backup scheduler stop failed: %w", err))
	}
	return ctx.Err()
}

func (s *SchedulerService) String() string {
	return s.name
}
