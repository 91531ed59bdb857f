// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/tomtom215/fleetvault/internal/models"
)

func TestErrorFormatting(t *testing.T) {
	t.Parallel()

	err := newError(KindLocked, "acquire lock", "e1", io.EOF)
	want := "device e1: acquire lock: locked: EOF"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if got := (&Error{Kind: KindUnexpected}).Error(); got != "unexpected" {
		t.Errorf("bare Error() = %q", got)
	}
}

func TestErrorMatching(t *testing.T) {
	t.Parallel()

	base := newError(KindNotReady, "sync", "e1", io.ErrUnexpectedEOF)
	wrapped := fmt.Errorf("cycle: %w", base)

	if !errors.Is(wrapped, &Error{Kind: KindNotReady}) {
		t.Error("errors.Is should match on kind")
	}
	if errors.Is(wrapped, &Error{Kind: KindLocked}) {
		t.Error("errors.Is matched the wrong kind")
	}
	if !errors.Is(wrapped, io.ErrUnexpectedEOF) {
		t.Error("errors.Is should see the cause")
	}
	if got := KindOf(wrapped); got != KindNotReady {
		t.Errorf("KindOf() = %q", got)
	}
	if got := KindOf(io.EOF); got != KindUnexpected {
		t.Errorf("KindOf(plain) = %q, want unexpected", got)
	}
	if !IsKind(wrapped, KindNotReady) || IsKind(nil, KindNotReady) {
		t.Error("IsKind mismatch")
	}
}

func TestResultKind(t *testing.T) {
	t.Parallel()

	if k := (Result{Success: true}).Kind(); k != "" {
		t.Errorf("success Kind() = %q", k)
	}
	if k := (Result{Err: newError(KindLocked, "", "", nil)}).Kind(); k != KindLocked {
		t.Errorf("Kind() = %q", k)
	}
}

type panicJob struct{}

func (panicJob) Run(context.Context, chan<- Message) Result        { panic("boom") }
func (panicJob) CheckSyncStatus(context.Context) models.SyncStatus { return models.SyncStatus{} }
func (panicJob) Device() models.Device                             { return models.Device{ID: "p1"} }
func (panicJob) Mode() Mode                                        { return ModeMirror }

func TestExecuteRecoversPanic(t *testing.T) {
	t.Parallel()

	res, msgs := runJob(t, panicJob{})
	if res.Success {
		t.Fatal("panicking job reported success")
	}
	if res.Kind() != KindUnexpected {
		t.Errorf("Kind() = %q, want unexpected", res.Kind())
	}
	if !hasMessage(msgs, MessageError, "boom") {
		t.Errorf("expected an error message mentioning the panic, got %+v", msgs)
	}
}
