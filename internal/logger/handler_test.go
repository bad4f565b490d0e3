package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrettyHandler(t *testing.T) {
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}).WithoutColor()
	log := slog.New(h).With("engine", "tombstone").WithGroup("cascade")

	log.Debug("dispatch", "mode", "inline", slog.Group("rel", "field", "Products"))

	line := buf.String()
	assert.Contains(t, line, "DEBUG dispatch")
	assert.Contains(t, line, " engine=tombstone")
	assert.Contains(t, line, " cascade.mode=inline")
	assert.Contains(t, line, " cascade.rel.field=Products")
	assert.NotContains(t, line, "\033[")
	assert.True(t, strings.HasSuffix(line, "\n"))
}

func TestPrettyHandler_Level(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, slog.LevelWarn)

	log.Info("hidden")
	assert.Empty(t, buf.String())

	log.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), yellow)
}
