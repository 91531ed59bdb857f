// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

package models

import "time"

// APIResponse is the envelope used by the health, statistics and history
// endpoints. Status is "success" or "error".
//
// The legacy /, /status and /status/{id} routes return their bodies without
// the envelope so existing dashboards keep working.
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata is attached to every enveloped response.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
	Cached    bool      `json:"cached,omitempty"`
}

// APIError carries a machine readable code, e.g. NOT_FOUND or
// VALIDATION_ERROR.
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}
