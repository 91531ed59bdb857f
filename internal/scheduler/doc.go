// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

/*
Package scheduler runs backup cycles.

A single control goroutine repeats a cycle on a fixed cadence:

	Idle -> Discovering -> Submitting -> AwaitingCompletion -> Idle
	                                                            |
	                         (5 consecutive failed cycles) -> EmergencyRecovery

Each cycle discovers devices, validates them, submits one backup job per
device to a bounded worker pool, waits for every job with a per-job
timeout and records the outcome in the status registry.

Failure handling:
  - A job failure, timeout or panic only affects its own device.
  - A failed cycle (any job failure or timeout, or a fault in the cycle's
    own bookkeeping) increments the consecutive failure streak, which
    stretches the wait before the next cycle.
  - A fault in the cycle's bookkeeping first clears problematic registry
    entries and, failing that, resets discovery bookkeeping.
  - Five failed cycles in a row trigger EmergencyRecovery: the registry is
    cleared, discovery is reset and memory is returned to the OS.
  - A panic in the control loop is logged with the scheduler's state and
    the loop continues. Only Stop or context cancellation ends it.

The scheduler owns all of its mutable state, so several instances can
coexist in one process.
*/
package scheduler
