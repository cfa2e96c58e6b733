package bridge

import (
	"errors"
	"fmt"
)

// ErrUnavailable means the native capability is absent entirely. Callers
// degrade to a no-op or a fallback path, log, and continue; they never
// surface this to the end user as a hard failure.
var ErrUnavailable = errors.New("bridge unavailable")

// ValidationError rejects malformed alarm/task input before any bridge call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validation builds a ValidationError.
func Validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// PermissionError surfaces a denied capability as an actionable status.
// It is never silently swallowed: callers report it to the UI layer.
type PermissionError struct {
	Permission string // e.g. "exact_alarm", "overlay"
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: %s", e.Permission)
}

func IsPermission(err error) bool {
	var pe *PermissionError
	return errors.As(err, &pe)
}

// NoRetry marks an error as non-retryable.
//
// Bridge implementations wrap permanent failures with NoRetry so the call
// wrapper won't waste attempts on them. Validation and permission errors are
// treated as non-retryable without wrapping.
func NoRetry(err error) error {
	if err == nil {
		return nil
	}
	return noRetryError{err: err}
}

// IsNoRetry reports whether err should not be retried.
func IsNoRetry(err error) bool {
	var e noRetryError
	if errors.As(err, &e) {
		return true
	}
	return IsValidation(err) || IsPermission(err) || errors.Is(err, ErrUnavailable)
}

type noRetryError struct{ err error }

func (e noRetryError) Error() string { return fmt.Sprintf("no-retry: %v", e.err) }
func (e noRetryError) Unwrap() error { return e.err }
