// Package apperr holds the error taxonomy shared by every layer.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrValidation          = errors.New("validation error")
	ErrContentRejected     = errors.New("content rejected")
	ErrQuotaExceeded       = errors.New("quota exceeded")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrUnauthorized        = errors.New("unauthorized")
)

// ValidationError describes invalid input for a single field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError creates a ValidationError for field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// RejectedError is returned when the content guard blocks a transcript.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return "content rejected: " + e.Reason
}

func (e *RejectedError) Unwrap() error { return ErrContentRejected }

// ProviderError wraps a failed external call.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() []error { return []error{ErrProviderUnavailable, e.Err} }

// Provider wraps err as a ProviderError for the named provider.
func Provider(name string, err error) error {
	return &ProviderError{Provider: name, Err: err}
}
