// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

/*
Package websocket streams live backup progress to dashboards.

The Hub implements the scheduler's Broadcaster: every job progress
message, finished run and cycle summary is fanned out to connected
clients as a typed Message:

  - backup_progress: one job message (device_id, status, message, metadata)
  - job_finished: the run record of a finished job
  - cycle_completed: the summary of a scheduler cycle
  - pong: reply to a client ping

Each Client has two goroutines. readPump answers pings and detects
disconnects; writePump drains the client's buffer and sends keepalive
pings. Broadcasting never blocks the scheduler: a full hub queue drops the
message and a full client buffer drops the client.

The hub runs as a suture service in the messaging layer:

	hub := websocket.NewHub()
	tree.AddMessagingService(hub)
	sched, _ := scheduler.New(cfg, finder, factory, registry, scheduler.WithBroadcaster(hub))
*/
package websocket
