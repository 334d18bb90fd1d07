package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrTypeValidation         ErrorType = "validation"
	ErrTypeRangeUnavailable   ErrorType = "range_unavailable"
	ErrTypeUnknownStep        ErrorType = "unknown_step"
	ErrTypeUnsupportedBackend ErrorType = "unsupported_backend"
	ErrTypeBrokenStore        ErrorType = "broken_store"
	ErrTypeConfig             ErrorType = "config"
	ErrTypeDatabase           ErrorType = "database"
	ErrTypeFileSystem         ErrorType = "filesystem"
	ErrTypeInternal           ErrorType = "internal"
)

// Error represents a structured error with type and optional suggestions
type Error struct {
	Type        ErrorType
	Message     string
	Cause       error
	Suggestions []string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}

	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithSuggestion adds a suggestion for resolving the error
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// New creates a new structured error
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
	}
}

// Newf creates a new structured error with formatted message
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an existing error with formatted message
func Wrapf(err error, errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// IsType checks if an error is of a specific type
func IsType(err error, errType ErrorType) bool {
	var structErr *Error
	if errors.As(err, &structErr) {
		return structErr.Type == errType
	}

	return false
}

// GetType returns the error type if it's a structured error
func GetType(err error) ErrorType {
	var structErr *Error
	if errors.As(err, &structErr) {
		return structErr.Type
	}

	return ErrTypeInternal
}

// NewValidationError reports a malformed schema or migration definition.
// These are programmer errors and are never retried.
func NewValidationError(format string, args ...interface{}) *Error {
	return Newf(ErrTypeValidation, format, args...).
		WithSuggestion("Fix the schema or migration definition; this error is not retryable")
}

// NewRangeUnavailableError reports that the registry does not cover the
// requested version range.
func NewRangeUnavailableError(from, to int) *Error {
	return Newf(ErrTypeRangeUnavailable,
		"migrations from version %d to version %d are not available", from, to).
		WithSuggestion("Reset local storage and set up the current schema from scratch")
}

// NewUnknownStepError reports a step discriminator the executor cannot handle.
func NewUnknownStepError(kind string) *Error {
	return Newf(ErrTypeUnknownStep, "unsupported migration step %q", kind).
		WithSuggestion("Make sure the migrations and the executor come from the same release")
}

// NewBrokenStoreError reports an operation refused by a store in the broken state.
func NewBrokenStoreError(backend string) *Error {
	return Newf(ErrTypeBrokenStore, "%s store is in a broken state, bailing", backend).
		WithSuggestion("Reload the application before using the database again")
}

// NewConfigError creates a configuration error with suggestions
func NewConfigError(message, field string) *Error {
	err := New(ErrTypeConfig, message)
	if field != "" {
		err.Message = fmt.Sprintf("%s (field: %s)", message, field)
	}

	return err.
		WithSuggestion("Check your configuration file syntax").
		WithSuggestion("Run with --help to see valid configuration options")
}
