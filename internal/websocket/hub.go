// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

package websocket

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/fleetvault/internal/backup"
	"github.com/tomtom215/fleetvault/internal/logging"
	"github.com/tomtom215/fleetvault/internal/metrics"
	"github.com/tomtom215/fleetvault/internal/models"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled is the normal graceful path (SIGTERM).
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline may indicate a hung shutdown.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Message types for WebSocket communication
const (
	MessageTypePing           = "ping"
	MessageTypePong           = "pong"
	MessageTypeBackupProgress = "backup_progress"
	MessageTypeJobFinished    = "job_finished"
	MessageTypeCycleCompleted = "cycle_completed"
)

// Message represents a WebSocket message
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// RunWithContext runs the hub until ctx is done, then closes every client
// and returns ctx.Err().
//
// DETERMINISM: shutdown is checked first, then client lifecycle events,
// then broadcasts, so client state is consistent before a message fans out.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.register(client)
			continue
		case client := <-h.Unregister:
			h.unregister(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.register(client)
		case client := <-h.Unregister:
			h.unregister(client)
		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

// Serve implements suture.Service.
func (h *Hub) Serve(ctx context.Context) error {
	return h.RunWithContext(ctx)
}

// String names the hub in supervisor logs.
func (h *Hub) String() string {
	return "websocket-hub"
}

func (h *Hub) register(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	n := len(h.clients)
	h.mu.Unlock()
	metrics.WSConnections.Set(float64(n))
	logging.Info().Int("total_clients", n).Msg("websocket client connected")
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.WSConnections.Set(float64(n))
	logging.Info().Int("total_clients", n).Msg("websocket client disconnected")
}

// logGracefulShutdown closes all clients and logs why. Cancellation is
// expected here, so it is not logged as an error.
func (h *Hub) logGracefulShutdown(ctx context.Context) {
	clientCount := h.GetClientCount()
	h.closeAllClients()

	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(getShutdownReason(ctx))).
		Int("clients_closed", clientCount).
		Msg("websocket hub stopped")
}

func getShutdownReason(ctx context.Context) ShutdownReason {
	if ctx.Err() == context.DeadlineExceeded {
		return ShutdownReasonContextDeadline
	}
	return ShutdownReasonContextCanceled
}

// sortedClients returns the clients in id order. The caller holds h.mu.
func (h *Hub) sortedClients() []*Client {
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})
	return clients
}

// broadcastToClients sends message to every client in id order. A client
// whose buffer is full is dropped.
func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var toRemove []*Client
	for _, client := range h.sortedClients() {
		select {
		case client.send <- message:
			metrics.WSMessagesSent.Inc()
		default:
			toRemove = append(toRemove, client)
		}
	}

	for _, client := range toRemove {
		close(client.send)
		delete(h.clients, client)
	}
	if len(toRemove) > 0 {
		metrics.WSConnections.Set(float64(len(h.clients)))
		logging.Warn().Int("dropped", len(toRemove)).Msg("dropped slow websocket clients")
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.sortedClients() {
		close(client.send)
		delete(h.clients, client)
	}
	metrics.WSConnections.Set(0)
}

// BroadcastJSON queues a message for every client. It never blocks; when
// the queue is full the message is dropped.
func (h *Hub) BroadcastJSON(messageType string, data interface{}) {
	select {
	case h.broadcast <- Message{Type: messageType, Data: data}:
	default:
		logging.Warn().Str("message_type", messageType).Msg("broadcast channel full, dropping message")
	}
}

// BackupProgressData is the payload of backup_progress.
type BackupProgressData struct {
	DeviceID string                 `json:"device_id"`
	Status   string                 `json:"status"`
	Message  string                 `json:"message,omitempty"`
	Metadata *models.DeviceMetadata `json:"metadata,omitempty"`
	Time     time.Time              `json:"time"`
}

// BroadcastBackupProgress forwards one job progress message.
func (h *Hub) BroadcastBackupProgress(deviceID string, msg backup.Message) {
	h.BroadcastJSON(MessageTypeBackupProgress, BackupProgressData{
		DeviceID: deviceID,
		Status:   string(msg.Kind),
		Message:  msg.Text,
		Metadata: msg.Metadata,
		Time:     msg.Time,
	})
}

// BroadcastJobFinished announces a finished run.
func (h *Hub) BroadcastJobFinished(rec models.RunRecord) {
	h.BroadcastJSON(MessageTypeJobFinished, rec)
}

// CycleCompletedData is the payload of cycle_completed.
type CycleCompletedData struct {
	Cycle     int64               `json:"cycle"`
	Timestamp string              `json:"timestamp"`
	Summary   models.CycleSummary `json:"summary"`
}

// BroadcastCycleCompleted announces the end of a scheduler cycle.
func (h *Hub) BroadcastCycleCompleted(cycle int64, summary models.CycleSummary) {
	h.BroadcastJSON(MessageTypeCycleCompleted, CycleCompletedData{
		Cycle:     cycle,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Summary:   summary,
	})
	logging.Debug().Int("clients", h.GetClientCount()).Int64("cycle", cycle).Msg("broadcast cycle_completed")
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// MarshalMessage converts a message to JSON
func MarshalMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}
