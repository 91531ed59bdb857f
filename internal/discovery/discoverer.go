// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

package discovery

import (
	"context"
	"sort"
	"time"

	"github.com/tomtom215/fleetvault/internal/clock"
	"github.com/tomtom215/fleetvault/internal/logging"
	"github.com/tomtom215/fleetvault/internal/metrics"
	"github.com/tomtom215/fleetvault/internal/models"
)

// DefaultDwell is how long the scanner fallback looks for devices.
const DefaultDwell = 10 * time.Second

// Recorder receives discovery bookkeeping.
type Recorder interface {
	RecordDiscovery(count int, source string, at time.Time)
}

// Config configures a Discoverer. Registry and Scanner are both optional;
// with neither, every poll fails.
type Config struct {
	Registry Source
	Scanner  Scanner
	Dwell    time.Duration
	Recorder Recorder
	Clock    clock.Clock
}

// Discoverer resolves the current device list.
type Discoverer struct {
	registry Source
	scanner  Scanner
	dwell    time.Duration
	recorder Recorder
	clock    clock.Clock
}

// New creates a Discoverer.
func New(cfg Config) *Discoverer {
	if cfg.Dwell <= 0 {
		cfg.Dwell = DefaultDwell
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System
	}
	return &Discoverer{
		registry: cfg.Registry,
		scanner:  cfg.Scanner,
		dwell:    cfg.Dwell,
		recorder: cfg.Recorder,
		clock:    cfg.Clock,
	}
}

// SetRecorder replaces the recorder. It must be called before the first
// FindDevices.
func (d *Discoverer) SetRecorder(r Recorder) {
	d.recorder = r
}

// FindDevices returns the devices sorted by id. It never fails: when
// neither the registry nor the scanner answers, the result is empty and
// the source is recorded as "failed".
func (d *Discoverer) FindDevices(ctx context.Context, onlyActive bool) []models.Device {
	devices, source := d.lookup(ctx)
	if onlyActive {
		devices = FilterActive(devices)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })

	metrics.RecordDiscovery(source, len(devices))
	if d.recorder != nil {
		d.recorder.RecordDiscovery(len(devices), source, d.clock.Now())
	}
	logging.Debug().Int("count", len(devices)).Str("source", source).Bool("only_active", onlyActive).Msg("Device discovery complete")
	return devices
}

func (d *Discoverer) lookup(ctx context.Context) ([]models.Device, string) {
	if d.registry != nil {
		byID, err := d.registry.Devices(ctx)
		if err == nil {
			devices := make([]models.Device, 0, len(byID))
			for _, dev := range byID {
				devices = append(devices, dev)
			}
			return devices, models.SourceRegistry
		}
		logging.Warn().Err(err).Msg("Device registry unavailable, falling back to scanner")
	}

	if d.scanner != nil && ctx.Err() == nil {
		devices, err := d.scanner.Scan(ctx, d.dwell)
		if err == nil {
			return devices, models.SourceScanner
		}
		logging.Error().Err(err).Msg("Device scanner failed")
	}
	return []models.Device{}, models.SourceFailed
}

// FilterActive drops devices that are not in use, offline, or the
// placeholder test device.
func FilterActive(devices []models.Device) []models.Device {
	out := make([]models.Device, 0, len(devices))
	for i := range devices {
		if devices[i].IsActive() {
			out = append(out, devices[i])
		}
	}
	return out
}
