// Package syncerr defines the error taxonomy shared by the recurrence,
// credential and calendar sync packages.
package syncerr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned for an unknown local user or a missing remote resource.
	ErrNotFound = errors.New("not found")
	// ErrMissingCredential is returned when a user never linked the calendar provider.
	ErrMissingCredential = errors.New("calendar provider not linked")
	// ErrAuth is returned when a token is invalid or revoked. The user must link again.
	ErrAuth = errors.New("authorization failed")
	// ErrPermission is returned when the granted provider scope is insufficient.
	ErrPermission = errors.New("permission denied")
	// ErrInvalidTransition is returned when a mirror state change is not allowed.
	ErrInvalidTransition = errors.New("invalid sync state transition")
)

// SyncError is a generic remote or transport failure. Callers may retry.
type SyncError struct {
	Op  string
	Err error
}

func (e *SyncError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("sync failed: %v", e.Err)
	}
	return fmt.Sprintf("sync failed: %s: %v", e.Op, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// NewSyncError wraps err as a SyncError for the named operation.
func NewSyncError(op string, err error) error {
	return &SyncError{Op: op, Err: err}
}

// ValidationError carries the messages produced by recurrence validation.
type ValidationError struct {
	Messages []string
}

func (v *ValidationError) Error() string {
	if v == nil || len(v.Messages) == 0 {
		return "validation failed"
	}
	return "validation failed: " + strings.Join(v.Messages, "; ")
}

// HasErrors reports whether any message was recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.Messages) > 0
}

// Kind maps err to a stable label for logs and exit codes.
func Kind(err error) string {
	if err == nil {
		return ""
	}

	var validationErr *ValidationError
	var syncErr *SyncError

	switch {
	case errors.As(err, &validationErr):
		return "validation"
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrPermission):
		return "permission"
	case errors.Is(err, ErrMissingCredential):
		return "missing_credential"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.As(err, &syncErr):
		return "sync"
	default:
		return "internal"
	}
}

// IsRetryable reports whether the caller may reasonably retry the operation.
func IsRetryable(err error) bool {
	return Kind(err) == "sync"
}
