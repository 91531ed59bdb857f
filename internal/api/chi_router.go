// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/fleetvault/internal/middleware"
)

// NewRouter wires h into a chi router with the standard middleware stack.
func NewRouter(h *Handler, mwConfig *ChiMiddlewareConfig) http.Handler {
	mw := NewChiMiddleware(mwConfig)
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(mw.CORS())

	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(mw.RateLimit())
		r.Use(middleware.PrometheusMetrics)

		r.Get("/", h.Root)
		r.With(middleware.Compression).Get("/status", h.Status)
		r.Get("/status/{id}", h.DeviceStatus)
		r.Get("/health", h.Health)
		r.Get("/statistics", h.Statistics)
		r.Get("/history/{id}", h.History)
		r.Get("/ws", h.WebSocket)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "no such endpoint", map[string]interface{}{"path": r.URL.Path})
	})
	return r
}
