// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

package backup

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/fleetvault/internal/logging"
	"github.com/tomtom215/fleetvault/internal/models"
)

// MessageKind is the type of a progress Message.
type MessageKind string

const (
	MessageInfo     MessageKind = "info"
	MessageWarning  MessageKind = "warning"
	MessageSuccess  MessageKind = "success"
	MessageError    MessageKind = "error"
	MessageMetadata MessageKind = "metadata"
)

// Message is one progress update from a running job.
type Message struct {
	Kind MessageKind `json:"status"`
	Text string      `json:"message"`
	// Metadata is set on MessageMetadata messages only.
	Metadata *models.DeviceMetadata `json:"metadata,omitempty"`
	Time     time.Time              `json:"time"`
}

// Result is the outcome of Job.Run.
type Result struct {
	Success bool
	// Err is an *Error when Success is false.
	Err error
	// Transferred counts files copied by rsync based jobs.
	Transferred int
	Duration    time.Duration
}

// Kind returns the failure kind, or "" for a successful result.
func (r Result) Kind() Kind {
	if r.Success {
		return ""
	}
	return KindOf(r.Err)
}

// Job backs up one device.
type Job interface {
	// Run performs the backup, sending progress on out. It must be called
	// at most once and does not close out.
	Run(ctx context.Context, out chan<- Message) Result

	// CheckSyncStatus reports what is present locally.
	CheckSyncStatus(ctx context.Context) models.SyncStatus

	Device() models.Device
	Mode() Mode
}

// Execute runs job and converts a panic into a KindUnexpected failure.
func Execute(ctx context.Context, job Job, out chan<- Message) (res Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			dev := job.Device()
			logging.Error().
				Str("device_id", dev.ID).
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("Backup job panicked")
			res = Result{Err: newError(KindUnexpected, "run", dev.ID, fmt.Errorf("panic: %v", r))}
			trySend(out, Message{Kind: MessageError, Text: fmt.Sprintf("Unexpected error during backup for device %s: %v", dev.ID, r), Time: time.Now()})
		}
		res.Duration = time.Since(start)
	}()
	return job.Run(ctx, out)
}

func trySend(out chan<- Message, m Message) {
	select {
	case out <- m:
	default:
	}
}

// emitter sends progress messages and mirrors them into the log.
type emitter struct {
	ctx   context.Context
	out   chan<- Message
	log   zerolog.Logger
	clock func() time.Time
}

func newEmitter(ctx context.Context, out chan<- Message, device string, now func() time.Time) *emitter {
	return &emitter{ctx: ctx, out: out, log: logging.WithDevice(device), clock: now}
}

func (e *emitter) send(m Message) {
	m.Time = e.clock()
	select {
	case e.out <- m:
	case <-e.ctx.Done():
	}
}

func (e *emitter) info(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	e.log.Info().Msg(msg)
	e.send(Message{Kind: MessageInfo, Text: msg})
}

func (e *emitter) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	e.log.Warn().Msg(msg)
	e.send(Message{Kind: MessageWarning, Text: msg})
}

func (e *emitter) success(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	e.log.Info().Msg(msg)
	e.send(Message{Kind: MessageSuccess, Text: msg})
}

func (e *emitter) fail(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	e.log.Error().Msg(msg)
	e.send(Message{Kind: MessageError, Text: msg})
}

func (e *emitter) metadata(md models.DeviceMetadata) {
	e.log.Debug().Int("total_files", md.TotalFiles).Int64("disk_usage_bytes", md.DiskUsageBytes).Msg("Device metadata")
	e.send(Message{Kind: MessageMetadata, Metadata: &md})
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
