// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

/*
Package main is the entry point for the Fleetvault backup server.

Fleetvault discovers recording devices on the lab network and keeps a
local copy of their data: MariaDB databases are mirrored incrementally
into SQLite files and result/video directories are pulled with rsync.
A status API reports per-device progress, scheduler health and run
history.

# Startup

 1. Configuration: defaults, then config.yaml, then environment (koanf)
 2. Logging: zerolog, JSON or console
 3. SSH keys: an ed25519 pair is created for rsync if none exists
 4. Run history: badger store under HISTORY_DIR
 5. Discovery, job factory, status registry and scheduler
 6. Supervisor tree: history GC, scheduler, websocket hub, HTTP server

# One-shot mode

When FORCE_DEVICES is set the loop is not started. The listed devices
are backed up once, a summary is logged and the process exits with
status 1 if any job failed:

	FORCE_DEVICES=007,ETHOSCOPE_012 ./fleetvault

# Examples

Mirror databases from every registered device:

	export NODE_ADDRESS=node.lab.local
	export MYSQL_USER=ethoscope
	export MYSQL_PASSWORD=ethoscope
	./fleetvault

Unified rsync backup of results and videos:

	export BACKUP_MODE=unified
	export BACKUP_RESULTS=true
	export BACKUP_VIDEOS=true
	./fleetvault

# Signal Handling

SIGINT and SIGTERM cancel the supervisor tree. The HTTP server drains
for SHUTDOWN_TIMEOUT, the scheduler abandons the current cycle and the
history store is closed.

# Port 8093

The status API listens on 8093 unless HTTP_PORT says otherwise.
*/
package main
