// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/tomtom215/fleetvault/internal/logging"
	"github.com/tomtom215/fleetvault/internal/models"
)

// devicePrefix is prepended to bare device numbers such as "007".
const devicePrefix = "ETHOSCOPE_"

// NormalizeDeviceName turns "7", "007" or "ethoscope_007" into
// "ETHOSCOPE_007".
func NormalizeDeviceName(name string) string {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" {
		return ""
	}
	if strings.HasPrefix(name, devicePrefix) {
		return name
	}
	if len(name) < 3 && strings.Trim(name, "0123456789") == "" {
		name = strings.Repeat("0", 3-len(name)) + name
	}
	return devicePrefix + name
}

// ParseDeviceList splits a comma separated list of device names.
func ParseDeviceList(list string) []string {
	var names []string
	for _, part := range strings.Split(list, ",") {
		if n := NormalizeDeviceName(part); n != "" {
			names = append(names, n)
		}
	}
	return names
}

// RunDevices backs up the named devices immediately, regardless of their
// status, without starting the loop. Names not found by discovery are
// returned in missing.
func (s *Scheduler) RunDevices(ctx context.Context, names []string) (summary models.CycleSummary, missing []string, err error) {
	if len(names) == 0 {
		return summary, nil, fmt.Errorf("no devices requested")
	}
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[NormalizeDeviceName(n)] = true
	}

	s.setState(StateDiscovering)
	all, _ := s.findDevices(ctx, false)

	var selected []models.Device
	found := make(map[string]bool)
	for _, d := range all {
		name := strings.ToUpper(d.Name)
		if wanted[name] || wanted[strings.ToUpper(d.ID)] {
			selected = append(selected, d)
			found[name] = true
			found[strings.ToUpper(d.ID)] = true
		}
	}
	for n := range wanted {
		if !found[n] {
			missing = append(missing, n)
		}
	}
	sort.Strings(missing)
	if len(missing) > 0 {
		logging.Warn().Strs("devices", missing).Msg("Requested devices not found")
	}
	if len(selected) == 0 {
		s.setState(StateIdle)
		return summary, missing, fmt.Errorf("none of the requested devices were found")
	}

	logging.Info().Int("count", len(selected)).Msg("Running forced backup")
	summary = s.process(ctx, selected)
	s.markBackupTime()
	s.setState(StateIdle)
	return summary, missing, nil
}
