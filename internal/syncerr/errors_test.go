package syncerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKind(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"validation", &ValidationError{Messages: []string{"interval must be between 1 and 99"}}, "validation"},
		{"wrapped auth", fmt.Errorf("failed to refresh: %w", ErrAuth), "auth"},
		{"permission", ErrPermission, "permission"},
		{"missing credential", fmt.Errorf("user u1: %w", ErrMissingCredential), "missing_credential"},
		{"not found", ErrNotFound, "not_found"},
		{"transition", ErrInvalidTransition, "invalid_transition"},
		{"sync", NewSyncError("insert event", errors.New("boom")), "sync"},
		{"auth inside sync", NewSyncError("delete event", ErrAuth), "auth"},
		{"plain", errors.New("boom"), "internal"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Kind(tc.err))
		})
	}
}

func TestSyncErrorMessage(t *testing.T) {
	err := NewSyncError("insert event", errors.New("connection reset"))
	assert.Equal(t, "sync failed: insert event: connection reset", err.Error())
	assert.True(t, IsRetryable(err))
	assert.False(t, IsRetryable(ErrAuth))
}

func TestValidationErrorMessage(t *testing.T) {
	v := &ValidationError{Messages: []string{"a", "b"}}
	assert.True(t, v.HasErrors())
	assert.Equal(t, "validation failed: a; b", v.Error())

	var empty *ValidationError
	assert.False(t, empty.HasErrors())
}
