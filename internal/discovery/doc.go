// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

// Package discovery finds the devices to back up.
//
// The node registry (GET /devices) is the primary source. The client goes
// through a circuit breaker and a rate limiter so a failing registry is not
// hammered every cycle. When the registry is unavailable the Discoverer
// falls back to a Scanner, which probes devices directly.
//
// FindDevices never fails: on total failure it returns an empty list and
// records the source as "failed". Every call reports the device count,
// source and time to the configured Recorder for health reporting.
package discovery
