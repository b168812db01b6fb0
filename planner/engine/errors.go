package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a mutation references an unknown marker id
	ErrNotFound = errors.New("marker not found")
	// ErrUnknownMarker is returned when the plan is asked to hold an id the store does not have
	ErrUnknownMarker = errors.New("unknown marker")
	// ErrInvalidPosition is returned for non-finite coordinates
	ErrInvalidPosition = errors.New("invalid position")
	// ErrInvalidCategory is returned for a category outside the known set
	ErrInvalidCategory = errors.New("invalid category")
	// ErrInvalidMode is returned for an unknown view mode
	ErrInvalidMode = errors.New("invalid view mode")
	// ErrInvalidFilter is returned for an unknown category filter
	ErrInvalidFilter = errors.New("invalid category filter")

	// ErrPersistenceUnavailable marks a failed best-effort local storage read or write.
	// It is never fatal: callers log it and keep the in-memory state.
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
	// ErrResourceUnavailable marks an optional dataset or asset that could not be loaded.
	ErrResourceUnavailable = errors.New("resource unavailable")
)

// ValidationError reports a malformed import document
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", e.Reason)
}

// NewValidationError returns a ValidationError carrying reason
func NewValidationError(reason string) *ValidationError {
	return &ValidationError{Reason: reason}
}

// IsValidationError reports whether err wraps a *ValidationError
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
