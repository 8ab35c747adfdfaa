package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDebugLogger() (*SlogLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return NewSlogLogger(slog.New(h)), &buf
}

func TestSlogLoggerLevels(t *testing.T) {
	log, buf := newDebugLogger()
	ctx := context.Background()

	log.Debug(ctx, "challenge issued", "device_id", "bike-1")
	log.Info(ctx, "session active", "device_id", "bike-1")
	log.Warn(ctx, "invalid signature", "remote", "10.0.0.5:4242")
	log.Error(ctx, "event append failed", "kind", "location_update")

	out := buf.String()
	for _, want := range []string{
		`level=DEBUG msg="challenge issued" device_id=bike-1`,
		`level=INFO msg="session active" device_id=bike-1`,
		`level=WARN msg="invalid signature" remote=10.0.0.5:4242`,
		`level=ERROR msg="event append failed" kind=location_update`,
	} {
		assert.Contains(t, out, want)
	}
}

func TestSlogLoggerWith(t *testing.T) {
	log, buf := newDebugLogger()

	child := log.With("module", "registry", "device_id", "bike-2")
	child.Info(context.Background(), "session unregistered")

	out := buf.String()
	assert.Contains(t, out, "module=registry")
	assert.Contains(t, out, "device_id=bike-2")
	assert.Contains(t, out, `msg="session unregistered"`)

	// the parent logger is unaffected
	buf.Reset()
	log.Info(context.Background(), "plain")
	assert.NotContains(t, buf.String(), "module=registry")
}

func TestNewJSONLoggerEmitsParseableRecords(t *testing.T) {
	var buf bytes.Buffer
	log := NewJSONLogger(&buf)

	log.Info(context.Background(), "device connected", "device_id", "bike-1", "remote", "10.0.0.5:4242")

	line := strings.TrimSpace(buf.String())
	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &record))
	assert.Equal(t, "device connected", record["msg"])
	assert.Equal(t, "bike-1", record["device_id"])
	assert.Equal(t, "INFO", record["level"])
}

func TestNewTextLoggerDefaultLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewTextLogger(&buf)

	// debug is below the default handler level
	log.Debug(context.Background(), "noise")
	assert.Empty(t, buf.String())

	log.Info(context.Background(), "signal")
	assert.Contains(t, buf.String(), "msg=signal")
}

func TestDiscardDropsEverything(t *testing.T) {
	log := Discard()
	// must not panic and must accept chained With
	log.With("module", "test").Error(context.Background(), "swallowed", "k", "v")
}
