// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

package status

import (
	"sort"

	"github.com/tomtom215/fleetvault/internal/models"
)

// Health combines the scheduler's loop state with the registry contents.
//
// A processing entry counts as processing regardless of its progress.
// Otherwise entries are bucketed by progress status, with "completed"
// counted as success and anything unrecognized as unknown.
func (r *Registry) Health(loop models.LoopState) models.Health {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.clock.Now().Unix()
	window := int64(r.recentErrorWindow.Seconds())

	h := models.Health{
		LoopState:           loop,
		DeviceDiscovery:     r.discovery,
		RecentErrors:        []models.RecentError{},
		TotalTrackedDevices: len(r.devices),
	}
	for id, s := range r.devices {
		if s.Processing {
			h.DeviceStatusCounts.Processing++
			continue
		}
		switch s.Progress.Status {
		case models.ProgressSuccess, models.ProgressCompleted:
			h.DeviceStatusCounts.Success++
		case models.ProgressWarning:
			h.DeviceStatusCounts.Warning++
		case models.ProgressError:
			h.DeviceStatusCounts.Error++
			if at := errorTime(s); at > 0 && now-at < window {
				h.RecentErrors = append(h.RecentErrors, models.RecentError{
					DeviceID:     id,
					DeviceName:   s.Name,
					ErrorTime:    at,
					ErrorMessage: s.Progress.Message,
				})
			}
		default:
			h.DeviceStatusCounts.Unknown++
		}
	}
	sort.Slice(h.RecentErrors, func(i, j int) bool {
		return h.RecentErrors[i].DeviceID < h.RecentErrors[j].DeviceID
	})
	return h
}

// errorTime is when a failed entry failed. Crashed entries have no end
// time, so their start stands in.
func errorTime(s *models.BackupStatus) int64 {
	if s.Ended == models.EndedCrashed {
		return s.Started
	}
	return s.Ended
}

// Statistics fills the registry-derived counts of base.
func (r *Registry) Statistics(base models.Statistics) models.Statistics {
	r.mu.RLock()
	defer r.mu.RUnlock()
	base.TotalDevices = len(r.devices)
	base.ProcessingDevices = 0
	for _, s := range r.devices {
		if s.Processing {
			base.ProcessingDevices++
		}
	}
	return base
}
