// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

/*
Package api serves the read-only status API for dashboards and operators.

Routes:

	GET /              {status: "running", last_backup}
	GET /status        every device with file listings, plus disk_usage_summary
	GET /status/{id}   one device, or 404 {error, device_id}
	GET /health        scheduler loop and registry health (enveloped)
	GET /statistics    fleet counters and scheduler settings (enveloped)
	GET /history/{id}  recent runs of one device, ?limit=N (enveloped)
	GET /ws            live backup progress (websocket)
	GET /metrics       Prometheus exposition

The first three routes keep the bare response bodies older dashboards
parse. The remaining JSON routes use models.APIResponse.

Middleware, outermost first: request id, real IP, panic recovery, CORS,
per-IP rate limiting (httprate) and Prometheus instrumentation. /status is
additionally gzip compressed because file listings can be large.
*/
package api
