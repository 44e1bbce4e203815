package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation indicates missing or malformed caller input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates a referenced entity is absent.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a sequence or uniqueness collision.
	ErrConflict = errors.New("conflict")
	// ErrTransient indicates a network or timeout failure on an external dependency.
	ErrTransient = errors.New("transient failure")
)

// Validationf wraps ErrValidation with a formatted detail.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundf wraps ErrNotFound with a formatted detail.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Conflictf wraps ErrConflict with a formatted detail.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// Transientf wraps ErrTransient with a formatted detail.
func Transientf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrTransient, fmt.Sprintf(format, args...))
}

// Warning describes a degraded side effect of an otherwise successful
// operation. Warnings are attached to the success response, never raised.
type Warning struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

// Warningf builds a Warning with a formatted detail.
func Warningf(code, format string, args ...any) Warning {
	return Warning{Code: code, Detail: fmt.Sprintf(format, args...)}
}
