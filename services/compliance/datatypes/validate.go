// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/vroomx/pkg/validation"
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// recordValidate is the validator instance for all compliance records.
// Initialized in init() with the json tag name function so error messages
// use API field names.
var recordValidate *validator.Validate

func init() {
	recordValidate = validator.New(validator.WithRequiredStructEnabled())
	recordValidate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = recordValidate.RegisterValidation("vin", stringRule(validation.ValidateVIN))
	_ = recordValidate.RegisterValidation("usdot", stringRule(validation.ValidateDOTNumber))
	_ = recordValidate.RegisterValidation("mcnumber", stringRule(func(s string) error {
		_, err := validation.NormalizeMCNumber(s)
		return err
	}))
}

// stringRule adapts an identifier check to a validator tag.
func stringRule(check func(string) error) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return check(fl.Field().String()) == nil
	}
}

// Validate checks v against its validate tags.
//
// # Outputs
//
//   - error: nil when valid, otherwise a *ValidationError listing every
//     failing field.
func Validate(v any) error {
	err := recordValidate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate: %w", err)
	}
	out := &ValidationError{}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{
			Field:   fe.Namespace(),
			Tag:     fe.Tag(),
			Message: fieldMessage(fe),
		})
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "email":
		return fmt.Sprintf("%s must be a valid email", fe.Field())
	case "vin":
		return "VIN must be 16-17 characters"
	case "usdot":
		return "USDOT number must be 1-8 digits"
	case "mcnumber":
		return "MC number must be up to 7 digits, optionally prefixed with MC"
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}

// =============================================================================
// Error Types
// =============================================================================

// FieldError describes one failing field.
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

// ValidationError is returned by Validate and maps to HTTP 400.
type ValidationError struct {
	Fields []FieldError `json:"errors"`
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// AppError is an error carrying the HTTP status it should produce.
type AppError struct {
	Status  int
	Message string
}

func (e *AppError) Error() string { return e.Message }

// NewAppError builds an AppError.
func NewAppError(status int, format string, args ...any) *AppError {
	return &AppError{Status: status, Message: fmt.Sprintf(format, args...)}
}

// BadRequest is shorthand for a 400 AppError.
func BadRequest(format string, args ...any) *AppError {
	return NewAppError(http.StatusBadRequest, format, args...)
}

// NotFound is shorthand for a 404 AppError.
func NotFound(what string) *AppError {
	return NewAppError(http.StatusNotFound, "%s not found", what)
}
