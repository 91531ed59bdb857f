// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

// Package metrics declares the Prometheus instrumentation exposed on
// /metrics: backup jobs and cycles, discovery, the registry circuit breaker,
// the status API and the websocket feed.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Backup job metrics
	BackupJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backup_jobs_total",
			Help: "Total number of backup jobs by mode and result",
		},
		[]string{"mode", "result"}, // result: "success", "failure", "timeout", "skipped"
	)

	BackupJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backup_job_duration_seconds",
			Help:    "Duration of backup jobs in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"mode"},
	)

	BackupRsyncBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backup_rsync_bytes_total",
			Help: "Bytes reported transferred by rsync",
		},
		[]string{"operation"}, // "results", "videos"
	)

	BackupMirrorRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backup_mirror_rows_total",
			Help: "Rows copied by the database mirror",
		},
		[]string{"table"},
	)

	BackupDevicesProcessing = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "backup_devices_processing",
			Help: "Devices with a backup job in flight",
		},
	)

	// Scheduler metrics
	BackupCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backup_cycles_total",
			Help: "Total number of scheduler cycles by result",
		},
		[]string{"result"}, // "success", "failure", "error"
	)

	BackupCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "backup_cycle_duration_seconds",
			Help:    "Duration of scheduler cycles in seconds",
			Buckets: []float64{1, 10, 30, 60, 300, 600, 1800, 3600},
		},
	)

	BackupConsecutiveFailures = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "backup_consecutive_failures",
			Help: "Current number of consecutive failed cycles",
		},
	)

	BackupEmergencyRecoveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "backup_emergency_recoveries_total",
			Help: "Number of emergency recoveries performed",
		},
	)

	// Discovery metrics
	BackupDiscoveryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backup_discovery_total",
			Help: "Device discovery polls by source",
		},
		[]string{"source"}, // "registry", "scanner", "failed"
	)

	BackupDiscoveredDevices = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "backup_discovered_devices",
			Help: "Devices returned by the last discovery poll",
		},
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Requests through the circuit breaker by result",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_consecutive_failures",
			Help: "Consecutive failures seen by the circuit breaker",
		},
		[]string{"name"},
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Requests currently being served",
		},
	)

	// WebSocket metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Connected live progress clients",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Messages broadcast to live progress clients",
		},
	)
)

// RecordBackupJob records one finished job.
func RecordBackupJob(mode, result string, duration time.Duration) {
	BackupJobsTotal.WithLabelValues(mode, result).Inc()
	BackupJobDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordCycle records one finished scheduler cycle.
func RecordCycle(result string, duration time.Duration, consecutiveFailures int) {
	BackupCyclesTotal.WithLabelValues(result).Inc()
	BackupCycleDuration.Observe(duration.Seconds())
	BackupConsecutiveFailures.Set(float64(consecutiveFailures))
}

// RecordDiscovery records one discovery poll.
func RecordDiscovery(source string, count int) {
	BackupDiscoveryTotal.WithLabelValues(source).Inc()
	BackupDiscoveredDevices.Set(float64(count))
}

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest adjusts the in-flight request gauge.
func TrackActiveRequest(start bool) {
	if start {
		APIActiveRequests.Inc()
		return
	}
	APIActiveRequests.Dec()
}
