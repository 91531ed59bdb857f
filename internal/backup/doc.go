// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

// Package backup implements the per-device backup jobs run by the scheduler.
//
// A Job copies one device's data to local storage and reports progress as
// a stream of Messages on a channel. Jobs are single use: Run may be called
// once, and it returns a typed Result instead of panicking or returning a
// bare error.
//
// Job Flavors:
//
//	MirrorJob:   Incremental MariaDB to SQLite mirror (internal/mirror),
//	             guarded by an artifact lock and a completion marker
//	VideoJob:    rsync of the device video directory, driven by the
//	             /list_video_files manifest
//	UnifiedJob:  rsync of results (SQLite) and videos in one job, with
//	             per-file transfer details
//
// Architecture:
//
//	┌──────────────┐  Message   ┌──────────────┐
//	│  Scheduler   │◀───────────│     Job      │
//	└──────────────┘            └──────┬───────┘
//	                                   │
//	             ┌─────────────────────┼─────────────────────┐
//	             ▼                     ▼                     ▼
//	      ┌──────────────┐     ┌──────────────┐     ┌──────────────┐
//	      │   artifact   │     │    mirror    │     │    rsync     │
//	      │ lock+marker  │     │ MariaDB→SQLite│    │  (Runner)    │
//	      └──────────────┘     └──────────────┘     └──────────────┘
//
// Failures carry a Kind (NotReady, Locked, TransferFailed,
// ValidationFailed, Unexpected) inside *Error, so callers can branch with
// errors.As or IsKind.
//
// Usage:
//
//	factory := backup.NewFactory(opts)
//	job, err := factory.New(device)
//	msgs := make(chan backup.Message, 16)
//	go func() { result = backup.Execute(ctx, job, msgs); close(msgs) }()
//	for m := range msgs {
//	    registry.Apply(device.ID, m)
//	}
package backup
