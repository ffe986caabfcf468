package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, false)
	fallback := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	ctx := ContextWithLogger(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx, fallback))
	assert.Same(t, fallback, FromContext(context.Background(), fallback))
	assert.Same(t, slog.Default(), FromContext(context.Background(), nil))
}

func TestNewVerbose(t *testing.T) {
	var quiet, verbose bytes.Buffer

	New(&quiet, false).Debug("hidden")
	New(&verbose, true).Debug("shown")

	assert.Empty(t, quiet.String())
	assert.Contains(t, verbose.String(), "shown")
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	Component(New(&buf, false), "calendar", "delete", "user", "u1").Info("done")

	out := buf.String()
	assert.Contains(t, out, "component=calendar")
	assert.Contains(t, out, "operation=delete")
	assert.Contains(t, out, "user=u1")
}
