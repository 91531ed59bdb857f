// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

/*
Package middleware provides HTTP middleware for the status API.

  - RequestID: reuses or generates X-Request-ID and seeds the logging context
  - PrometheusMetrics: request counts, latency and in-flight gauge
  - Compression: gzip for clients that accept it, skipped for websockets

All three are plain func(http.Handler) http.Handler so they plug straight
into chi:

	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)
	r.With(middleware.Compression).Get("/status", h.Status)
*/
package middleware
