// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

// Package validation wraps go-playground/validator v10 behind a singleton.
//
// The scheduler validates every discovered device before submitting a job
// (id, name and ip are required) and the config loader validates the
// assembled configuration. Field names in messages use the json or koanf
// tag so they match what operators see in payloads and config files.
//
//	if err := validation.ValidateStruct(&device); err != nil {
//	    logging.Warn().Str("fields", err.Error()).Msg("Skipping invalid device")
//	}
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// FieldError is a single failed rule.
type FieldError struct {
	Field   string
	Tag     string
	Param   string
	Message string
}

// Error implements error.
func (e FieldError) Error() string {
	return e.Message
}

// Errors is the collection returned by ValidateStruct.
type Errors struct {
	fields []FieldError
}

// Fields returns the individual failures.
func (ve *Errors) Fields() []FieldError {
	return ve.fields
}

// Error joins all messages.
func (ve *Errors) Error() string {
	if len(ve.fields) == 0 {
		return "validation failed"
	}
	msgs := make([]string, len(ve.fields))
	for i, f := range ve.fields {
		msgs[i] = f.Message
	}
	return strings.Join(msgs, "; ")
}

// Has reports whether field failed validation.
func (ve *Errors) Has(field string) bool {
	for _, f := range ve.fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

// GetValidator returns the singleton validator.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(tagName)
	})
	return validate
}

// tagName prefers the json tag, then koanf, then the Go field name.
func tagName(f reflect.StructField) string {
	for _, key := range []string{"json", "koanf"} {
		name := strings.SplitN(f.Tag.Get(key), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return f.Name
}

// ValidateStruct validates s. It returns nil on success.
func ValidateStruct(s interface{}) *Errors {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &Errors{fields: []FieldError{{Field: "unknown", Tag: "unknown", Message: err.Error()}}}
	}

	out := make([]FieldError, len(verrs))
	for i, fe := range verrs {
		out[i] = FieldError{
			Field:   fe.Namespace(),
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Message: translate(fe),
		}
	}
	return &Errors{fields: out}
}

var messages = map[string]string{
	"required": "%s is required",
	"ip":       "%s must be a valid IP address",
	"hostname": "%s must be a valid hostname",
	"dir":      "%s must be an existing directory",
}

var messagesWithParam = map[string]string{
	"oneof": "%s must be one of: %s",
	"gte":   "%s must be greater than or equal to %s",
	"lte":   "%s must be less than or equal to %s",
	"gt":    "%s must be greater than %s",
	"min":   "%s must be at least %s",
	"max":   "%s must be at most %s",
}

func translate(fe validator.FieldError) string {
	field := fe.Namespace()
	if tmpl, ok := messages[fe.Tag()]; ok {
		return fmt.Sprintf(tmpl, field)
	}
	if tmpl, ok := messagesWithParam[fe.Tag()]; ok {
		return fmt.Sprintf(tmpl, field, fe.Param())
	}
	return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
}
