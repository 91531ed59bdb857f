// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/fleetvault/internal/logging"
	"github.com/tomtom215/fleetvault/internal/validation"
)

// DefaultHistoryLimit is used when /history/{id} has no limit parameter.
const DefaultHistoryLimit = 20

// historyQuery holds the validated /history/{id} parameters.
type historyQuery struct {
	DeviceID string `json:"device_id" validate:"required,max=128"`
	Limit    int    `json:"limit" validate:"min=1,max=500"`
}

// Health reports the scheduler loop and registry health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, h.scheduler.Health())
}

// Statistics reports fleet counters and scheduler settings.
func (h *Handler) Statistics(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, h.scheduler.Statistics())
}

// History returns the most recent runs of one device, newest first.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "run history is not enabled", nil)
		return
	}

	q := historyQuery{DeviceID: chi.URLParam(r, "id"), Limit: DefaultHistoryLimit}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeValidation, "limit must be an integer", map[string]interface{}{"limit": raw})
			return
		}
		q.Limit = n
	}
	if verr := validation.ValidateStruct(q); verr != nil {
		details := make(map[string]interface{}, len(verr.Fields()))
		for _, f := range verr.Fields() {
			details[f.Field] = f.Message
		}
		writeError(w, http.StatusBadRequest, ErrCodeValidation, verr.Error(), details)
		return
	}

	runs, err := h.history.Recent(r.Context(), q.DeviceID, q.Limit)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Str("device_id", q.DeviceID).Msg("failed to read run history")
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to read run history", nil)
		return
	}
	writeSuccess(w, runs)
}
