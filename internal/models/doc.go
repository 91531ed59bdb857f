// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

/*
Package models defines the data structures shared across Fleetvault.

Model categories:

 1. Device descriptors, decoded from the node registry (Device, DatabaseInfo).
    They are produced fresh by every discovery poll and never mutated.

 2. Backup bookkeeping owned by the status registry (BackupStatus, Progress,
    SyncStatus, DeviceMetadata).

 3. Health and statistics snapshots served by the status API (Health,
    Statistics, RecentError).

 4. Run history records persisted by the history store (RunRecord).

 5. The API response envelope (APIResponse, APIError, Metadata).

All JSON tags use snake_case to stay compatible with the existing node
dashboards that read /status.
*/
package models
