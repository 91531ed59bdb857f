// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/fleetvault/internal/backup"
	"github.com/tomtom215/fleetvault/internal/clock"
	"github.com/tomtom215/fleetvault/internal/logging"
	"github.com/tomtom215/fleetvault/internal/models"
	"github.com/tomtom215/fleetvault/internal/status"
)

// State is the control loop state exposed in health.
type State string

const (
	StateIdle               State = "idle"
	StateDiscovering        State = "discovering"
	StateSubmitting         State = "submitting"
	StateAwaitingCompletion State = "awaiting_completion"
	StateEmergencyRecovery  State = "emergency_recovery"
	StateStopped            State = "stopped"
)

// Defaults for Config.
const (
	DefaultInterval          = 300 * time.Second
	DefaultWorkers           = 4
	DefaultJobTimeout        = 600 * time.Second
	DefaultDiscoveryAttempts = 3
	DefaultEmptyRetryDelay   = 5 * time.Second
	DefaultErrorRetryDelay   = 10 * time.Second
	DefaultFailureThreshold  = 5
)

// DeviceFinder resolves the devices to back up. It must not fail; an
// empty result means nothing was found.
type DeviceFinder interface {
	FindDevices(ctx context.Context, onlyActive bool) []models.Device
}

// JobFactory builds the backup job for a device.
type JobFactory interface {
	New(device models.Device) backup.Job
	Mode() backup.Mode
}

// HistoryRecorder persists finished runs.
type HistoryRecorder interface {
	Record(ctx context.Context, rec models.RunRecord) error
}

// Broadcaster pushes live updates to connected clients.
type Broadcaster interface {
	BroadcastBackupProgress(deviceID string, msg backup.Message)
	BroadcastJobFinished(rec models.RunRecord)
	BroadcastCycleCompleted(cycle int64, summary models.CycleSummary)
}

// Config configures a Scheduler.
type Config struct {
	Interval          time.Duration
	Workers           int
	JobTimeout        time.Duration
	DiscoveryAttempts int
	EmptyRetryDelay   time.Duration
	ErrorRetryDelay   time.Duration
	FailureThreshold  int
	Clock             clock.Clock
}

func (c *Config) normalize() {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = DefaultJobTimeout
	}
	if c.DiscoveryAttempts <= 0 {
		c.DiscoveryAttempts = DefaultDiscoveryAttempts
	}
	if c.EmptyRetryDelay < 0 {
		c.EmptyRetryDelay = 0
	} else if c.EmptyRetryDelay == 0 {
		c.EmptyRetryDelay = DefaultEmptyRetryDelay
	}
	if c.ErrorRetryDelay < 0 {
		c.ErrorRetryDelay = 0
	} else if c.ErrorRetryDelay == 0 {
		c.ErrorRetryDelay = DefaultErrorRetryDelay
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.Clock == nil {
		c.Clock = clock.System
	}
}

// Scheduler is the backup control loop.
type Scheduler struct {
	cfg       Config
	finder    DeviceFinder
	factory   JobFactory
	registry  *status.Registry
	history   HistoryRecorder
	broadcast Broadcaster
	clock     clock.Clock

	// workers bounds concurrent jobs across cycles and one-shot runs.
	workers chan struct{}

	mu                  sync.RWMutex
	running             bool
	alive               bool
	state               State
	cycleCount          int64
	lastCycleStart      time.Time
	lastBackup          time.Time
	lastSuccessfulCycle time.Time
	consecutiveFailures int
	emergencyRecoveries int
	lastSummary         models.CycleSummary

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithHistory records every finished job in h.
func WithHistory(h HistoryRecorder) Option {
	return func(s *Scheduler) { s.history = h }
}

// WithBroadcaster publishes progress and cycle summaries to b.
func WithBroadcaster(b Broadcaster) Option {
	return func(s *Scheduler) { s.broadcast = b }
}

// New creates a Scheduler. finder, factory and registry are required.
func New(cfg Config, finder DeviceFinder, factory JobFactory, registry *status.Registry, opts ...Option) (*Scheduler, error) {
	if finder == nil || factory == nil || registry == nil {
		return nil, fmt.Errorf("scheduler requires a device finder, job factory and status registry")
	}
	cfg.normalize()
	s := &Scheduler{
		cfg:      cfg,
		finder:   finder,
		factory:  factory,
		registry: registry,
		clock:    cfg.Clock,
		workers:  make(chan struct{}, cfg.Workers),
		state:    StateStopped,

		lastSuccessfulCycle: cfg.Clock.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start launches the control loop. It returns an error if the loop is
// already running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	s.running = true
	s.alive = true
	s.state = StateIdle
	s.cancel = cancel
	s.lastSuccessfulCycle = s.clock.Now()
	s.mu.Unlock()

	logging.Info().
		Int("workers", s.cfg.Workers).
		Dur("interval", s.cfg.Interval).
		Dur("job_timeout", s.cfg.JobTimeout).
		Str("mode", string(s.factory.Mode())).
		Msg("=== Backup scheduler starting ===")

	s.wg.Add(1)
	go s.loop(ctx)
	return nil
}

// Stop cancels the loop and waits for the current cycle to unwind.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is not running")
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	logging.Info().Msg("Stopping backup scheduler...")
	cancel()
	s.wg.Wait()
	logging.Info().Msg("Backup scheduler stopped")
	return nil
}

// IsRunning reports whether Start has been called without a matching Stop.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Scheduler) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// LoopState returns the control loop's view of itself.
func (s *Scheduler) LoopState() models.LoopState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.LoopState{
		ThreadAlive:         s.alive,
		ThreadRunning:       s.running,
		CycleCount:          s.cycleCount,
		LastCycleStart:      s.lastCycleStart,
		State:               string(s.state),
		ConsecutiveFailures: s.consecutiveFailures,
	}
}

// Health combines LoopState with the registry health.
func (s *Scheduler) Health() models.Health {
	return s.registry.Health(s.LoopState())
}

// LastBackup returns when the last cycle finished.
func (s *Scheduler) LastBackup() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastBackup
}

// LastBackupString formats LastBackup the way the status API reports it,
// or returns "" before the first cycle.
func (s *Scheduler) LastBackupString() string {
	t := s.LastBackup()
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02 15:04:05")
}

// Statistics returns the registry counts plus scheduler configuration.
func (s *Scheduler) Statistics() models.Statistics {
	return s.registry.Statistics(models.Statistics{
		LastBackup:     s.LastBackupString(),
		BackupInterval: s.cfg.Interval.Seconds(),
		Mode:           string(s.factory.Mode()),
		MaxWorkers:     s.cfg.Workers,
	})
}

// LastSummary returns the outcome of the most recent cycle.
func (s *Scheduler) LastSummary() models.CycleSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSummary
}

// EmergencyRecoveries returns how many times EmergencyRecovery has run.
func (s *Scheduler) EmergencyRecoveries() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.emergencyRecoveries
}

// Registry returns the status registry the scheduler writes to.
func (s *Scheduler) Registry() *status.Registry {
	return s.registry
}
