// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

package scheduler

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/tomtom215/fleetvault/internal/logging"
	"github.com/tomtom215/fleetvault/internal/metrics"
	"github.com/tomtom215/fleetvault/internal/models"
)

// AdaptiveWait returns the pause before the next cycle given the current
// consecutive failure streak.
func AdaptiveWait(base time.Duration, consecutiveFailures int) time.Duration {
	switch {
	case consecutiveFailures <= 0:
		return base
	case consecutiveFailures <= 2:
		return base + 30*time.Second
	case consecutiveFailures <= 4:
		return base + 2*time.Minute
	default:
		return base + 5*time.Minute
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		s.alive = false
		s.state = StateStopped
		cycles, failures := s.cycleCount, s.consecutiveFailures
		s.mu.Unlock()
		logging.Info().
			Int64("total_cycles", cycles).
			Int("consecutive_failures", failures).
			Msg("=== Backup scheduler loop ending ===")
	}()

	for ctx.Err() == nil {
		wait, ok := s.iterate(ctx)
		if !ok {
			wait = s.cfg.ErrorRetryDelay
		}
		if ctx.Err() != nil {
			return
		}
		s.setState(StateIdle)
		logging.Info().Dur("wait", wait).Msg("Waiting until next backup cycle")
		if err := s.clock.Sleep(ctx, wait); err != nil {
			return
		}
	}
}

// iterate runs one cycle plus its bookkeeping and returns the wait before
// the next one. A panic outside the cycle itself is logged with the
// scheduler's state and reported through ok.
func (s *Scheduler) iterate(ctx context.Context) (wait time.Duration, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.preserveEmergencyState(fmt.Sprint(r))
			ok = false
		}
	}()

	start := s.clock.Now()
	s.mu.Lock()
	s.cycleCount++
	cycle := s.cycleCount
	s.lastCycleStart = start
	s.mu.Unlock()

	logging.Info().Int64("cycle", cycle).Msg("=== Starting backup cycle ===")

	summary, err := s.safeCycle(ctx)
	if ctx.Err() != nil {
		return 0, true
	}
	duration := s.clock.Now().Sub(start)

	if err != nil {
		logging.Error().Err(err).Int64("cycle", cycle).Dur("duration", duration).Msg("=== ERROR in backup cycle ===")
		s.attemptRecovery()
	}

	failed := err != nil || summary.HasFailures()
	failures := s.recordCycleOutcome(failed, summary)

	result := "success"
	if failed {
		result = "failure"
	}
	metrics.RecordCycle(result, duration, failures)
	if s.broadcast != nil {
		s.broadcast.BroadcastCycleCompleted(cycle, summary)
	}

	logging.Info().
		Int64("cycle", cycle).
		Int("submitted", summary.Submitted).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("timed_out", summary.TimedOut).
		Int("skipped", summary.Skipped).
		Int("consecutive_failures", failures).
		Dur("duration", duration).
		Msg("=== Backup cycle complete ===")

	return AdaptiveWait(s.cfg.Interval, failures), true
}

// recordCycleOutcome updates the failure streak, running EmergencyRecovery
// when it reaches the threshold, and returns the streak afterwards.
func (s *Scheduler) recordCycleOutcome(failed bool, summary models.CycleSummary) int {
	s.mu.Lock()
	s.lastSummary = summary
	if !failed {
		s.consecutiveFailures = 0
		s.lastSuccessfulCycle = s.clock.Now()
		s.mu.Unlock()
		return 0
	}
	s.consecutiveFailures++
	failures := s.consecutiveFailures
	sinceSuccess := s.sinceLastSuccess()
	s.mu.Unlock()

	if failures < s.cfg.FailureThreshold {
		return failures
	}

	logging.Error().
		Int("consecutive_failures", failures).
		Dur("since_last_success", sinceSuccess).
		Msg("CRITICAL: consecutive backup cycle failures, attempting emergency recovery")
	s.emergencyRecovery()

	s.mu.Lock()
	s.consecutiveFailures = 0
	s.mu.Unlock()
	return 0
}

// sinceLastSuccess is the time since the last cycle without failures, or
// since the scheduler was created. Callers hold s.mu.
func (s *Scheduler) sinceLastSuccess() time.Duration {
	if s.lastSuccessfulCycle.IsZero() {
		return 0
	}
	return s.clock.Now().Sub(s.lastSuccessfulCycle)
}

// safeCycle runs a cycle, converting a panic in the cycle's bookkeeping
// into an error.
func (s *Scheduler) safeCycle(ctx context.Context) (summary models.CycleSummary, err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("Backup cycle panicked")
			err = fmt.Errorf("backup cycle panicked: %v", r)
		}
	}()
	return s.runCycle(ctx)
}

// attemptRecovery clears problematic registry entries and, if that fails,
// resets discovery bookkeeping.
func (s *Scheduler) attemptRecovery() {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("clear problematic entries: %v", r)
			}
		}()
		removed := s.registry.ClearProblematic()
		logging.Info().Int("removed", len(removed)).Msg("Recovery: cleared problematic status entries")
		return nil
	}()
	if err == nil {
		return
	}
	logging.Error().Err(err).Msg("Recovery attempt failed, resetting device discovery state")
	s.registry.ResetDiscovery(models.SourceReset)
}

// emergencyRecovery clears the registry, resets discovery and returns
// memory to the OS.
func (s *Scheduler) emergencyRecovery() {
	s.setState(StateEmergencyRecovery)
	logging.Warn().Msg("=== STARTING EMERGENCY RECOVERY ===")

	cleared := s.registry.Clear()
	logging.Info().Int("entries", cleared).Msg("Cleared backup status entries")

	s.registry.ResetDiscovery(models.SourceRecoveryReset)
	logging.Info().Msg("Reset device discovery state")

	runtime.GC()
	debug.FreeOSMemory()
	logging.Info().Msg("Forced garbage collection")

	s.mu.Lock()
	s.emergencyRecoveries++
	s.mu.Unlock()
	metrics.BackupEmergencyRecoveries.Inc()

	logging.Warn().Msg("=== EMERGENCY RECOVERY COMPLETED ===")
}

// preserveEmergencyState logs everything needed to diagnose a control loop
// fault.
func (s *Scheduler) preserveEmergencyState(cause string) {
	s.mu.RLock()
	cycles, lastStart, state, failures := s.cycleCount, s.lastCycleStart, s.state, s.consecutiveFailures
	s.mu.RUnlock()
	disc := s.registry.Discovery()

	logging.Error().
		Str("cause", cause).
		Int64("cycle_count", cycles).
		Time("last_cycle_start", lastStart).
		Str("state", string(state)).
		Int("consecutive_failures", failures).
		Int("device_count", disc.LastCount).
		Str("discovery_source", disc.LastSource).
		Int("backup_status_count", s.registry.Len()).
		Str("stack", string(debug.Stack())).
		Msg("Emergency state preservation: control loop fault")
}
