// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

// Package services adapts Fleetvault components with their own lifecycle
// conventions to suture.Service so the supervisor tree can run them.
//
//   - HTTPServerService: *http.Server (Serve / Shutdown)
//   - SchedulerService: *scheduler.Scheduler (Start / Stop)
//
// The history store and the websocket hub implement suture.Service
// directly and are added to the tree as they are.
package services
