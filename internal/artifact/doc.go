// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

// Package artifact manages the two files kept beside every backup artifact:
//
//	<artifact>.lock       exclusive advisory lock, held while a job writes
//	<artifact>.completed  JSON completion marker, written after a verified run
//
// Locks use non-blocking flock semantics through gofslock, so they exclude
// other goroutines and other processes alike. A contended lock fails fast
// with ErrLocked. The lock file carries the owner PID and acquisition time
// and is removed on release.
//
// Markers are only consulted for freshness (IsRecent), never for locking.
package artifact
