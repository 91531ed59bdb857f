// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

package backup

import (
	"errors"
	"fmt"
)

// Kind classifies a job failure.
type Kind string

const (
	// KindNotReady means the device data is not available yet; retry later.
	KindNotReady Kind = "not_ready"

	// KindLocked means another job holds the artifact lock.
	KindLocked Kind = "locked"

	// KindTransferFailed means the copy itself failed (rsync exit code,
	// database error, verification score of zero).
	KindTransferFailed Kind = "transfer_failed"

	// KindValidationFailed means the device cannot be backed up in this
	// mode (missing database, malformed metadata).
	KindValidationFailed Kind = "validation_failed"

	// KindUnexpected covers panics and any unclassified fault.
	KindUnexpected Kind = "unexpected"
)

// Error is the error type carried by a failed Result.
type Error struct {
	Kind   Kind
	Op     string
	Device string
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Device != "" {
		msg = fmt.Sprintf("device %s: %s", e.Device, msg)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same Kind, so
// errors.Is(err, &Error{Kind: KindLocked}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Err == nil && t.Op == "" && t.Device == ""
}

func newError(kind Kind, op, device string, err error) *Error {
	return &Error{Kind: kind, Op: op, Device: device, Err: err}
}

// KindOf returns the Kind of err, or KindUnexpected when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}

// IsKind reports whether err carries kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
