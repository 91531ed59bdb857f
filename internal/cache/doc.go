// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

// Package cache provides an in-memory TTL cache with an injected clock.
//
// Fleetvault caches three kinds of slow lookups: the per-device file
// enumeration behind /status, per-device disk usage, and device video
// manifests. All of them go through Cache so that expiry can be tested by
// moving a fake clock instead of sleeping.
//
// Load implements stale-while-revalidate: an expired entry is still returned
// while exactly one background refresh per key replaces it.
package cache
