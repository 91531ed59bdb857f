// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

package validation

import (
	"strings"
	"testing"

	"github.com/tomtom215/fleetvault/internal/models"
)

func TestValidateDevice(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		device  models.Device
		missing []string
	}{
		{"complete", models.Device{ID: "abc", Name: "ETHOSCOPE_001", IP: "10.0.0.1"}, nil},
		{"missing ip", models.Device{ID: "abc", Name: "ETHOSCOPE_001"}, []string{"Device.ip"}},
		{"missing all", models.Device{}, []string{"Device.id", "Device.name", "Device.ip"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := ValidateStruct(&tt.device)
			if len(tt.missing) == 0 {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected validation error")
			}
			if len(err.Fields()) != len(tt.missing) {
				t.Errorf("got %d field errors, want %d: %v", len(err.Fields()), len(tt.missing), err)
			}
			for _, f := range tt.missing {
				if !err.Has(f) {
					t.Errorf("expected failure on %s, got %v", f, err)
				}
			}
		})
	}
}

func TestValidateMessages(t *testing.T) {
	t.Parallel()

	type sample struct {
		Mode    string `koanf:"mode" validate:"oneof=mirror video unified"`
		Workers int    `koanf:"workers" validate:"gte=1"`
	}

	err := ValidateStruct(&sample{Mode: "ftp", Workers: 0})
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "sample.mode must be one of: mirror video unified") {
		t.Errorf("unexpected message: %s", msg)
	}
	if !strings.Contains(msg, "sample.workers must be greater than or equal to 1") {
		t.Errorf("unexpected message: %s", msg)
	}
}

func TestGetValidatorSingleton(t *testing.T) {
	t.Parallel()

	if GetValidator() != GetValidator() {
		t.Error("expected the same validator instance")
	}
}
