// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/fleetvault/internal/inventory"
	"github.com/tomtom215/fleetvault/internal/models"
)

// DeviceView is a device status enriched with its backed up files.
type DeviceView struct {
	models.BackupStatus
	IndividualFiles *inventory.DeviceFiles           `json:"individual_files,omitempty"`
	BackupTypes     map[string]inventory.BackupType `json:"backup_types,omitempty"`
}

// RootResponse is the body of GET /.
type RootResponse struct {
	Status     string `json:"status"`
	LastBackup string `json:"last_backup"`
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Devices          map[string]DeviceView `json:"devices"`
	DiskUsageSummary inventory.DiskUsage   `json:"disk_usage_summary"`
}

// DeviceResponse is the body of GET /status/{id}.
type DeviceResponse struct {
	Device   DeviceView `json:"device"`
	DeviceID string     `json:"device_id"`
}

// DeviceNotFoundResponse is the 404 body of GET /status/{id}.
type DeviceNotFoundResponse struct {
	Error    string `json:"error"`
	DeviceID string `json:"device_id"`
}

// Root reports that the service is up and when the last cycle ran.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, RootResponse{
		Status:     "running",
		LastBackup: h.scheduler.LastBackupString(),
	})
}

// Status returns every tracked device and the fleet disk usage.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	snapshot := h.registry.Snapshot()
	devices := make(map[string]DeviceView, len(snapshot))
	for id, st := range snapshot {
		devices[id] = h.view(id, st)
	}
	writeJSON(w, http.StatusOK, StatusResponse{
		Devices:          devices,
		DiskUsageSummary: inventory.Summarize(snapshot),
	})
}

// DeviceStatus returns one device.
func (h *Handler) DeviceStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	st, ok := h.registry.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, DeviceNotFoundResponse{Error: "Device not found", DeviceID: id})
		return
	}
	writeJSON(w, http.StatusOK, DeviceResponse{Device: h.view(id, st), DeviceID: id})
}

func (h *Handler) view(id string, st models.BackupStatus) DeviceView {
	v := DeviceView{BackupStatus: st}
	if h.inventory == nil {
		return v
	}
	files := h.inventory.Files(id, st.Synced)
	v.IndividualFiles = &files
	v.BackupTypes = inventory.BackupTypes(st, files)
	return v
}
