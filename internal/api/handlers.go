// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

package api

import (
	"context"
	"net/http"

	gorillaws "github.com/gorilla/websocket"

	"github.com/tomtom215/fleetvault/internal/inventory"
	"github.com/tomtom215/fleetvault/internal/models"
	"github.com/tomtom215/fleetvault/internal/status"
	"github.com/tomtom215/fleetvault/internal/websocket"
)

// SchedulerView is the part of the scheduler the API reads.
type SchedulerView interface {
	LastBackupString() string
	Health() models.Health
	Statistics() models.Statistics
}

// HistoryReader reads recent runs for a device.
type HistoryReader interface {
	Recent(ctx context.Context, deviceID string, limit int) ([]models.RunRecord, error)
}

// Handler serves the status API.
type Handler struct {
	scheduler SchedulerView
	registry  *status.Registry
	inventory *inventory.Inventory
	history   HistoryReader
	hub       *websocket.Hub
	upgrader  gorillaws.Upgrader
}

// HandlerOption configures optional collaborators.
type HandlerOption func(*Handler)

// WithInventory enables individual_files and backup_types on /status.
func WithInventory(inv *inventory.Inventory) HandlerOption {
	return func(h *Handler) { h.inventory = inv }
}

// WithHistory enables /history/{id}.
func WithHistory(hr HistoryReader) HandlerOption {
	return func(h *Handler) { h.history = hr }
}

// WithHub enables /ws. checkOrigin may be nil to accept any origin.
func WithHub(hub *websocket.Hub, checkOrigin func(r *http.Request) bool) HandlerOption {
	return func(h *Handler) {
		h.hub = hub
		h.upgrader = websocket.Upgrader(checkOrigin)
	}
}

// NewHandler creates a Handler.
func NewHandler(sched SchedulerView, registry *status.Registry, opts ...HandlerOption) *Handler {
	h := &Handler{scheduler: sched, registry: registry}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// WebSocket upgrades to the live progress feed.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "live feed is not enabled", nil)
		return
	}
	websocket.ServeWS(h.hub, h.upgrader, w, r)
}
