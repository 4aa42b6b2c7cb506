package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	return entry
}

func TestLoggerWritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelDebug, Output: &buf, Service: "triage-test"})

	l.WithField("message_id", 42).WithError(errors.New("boom")).Warn("classify failed for %s", "m1")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "classify failed for m1", entry["message"])
	assert.Equal(t, "triage-test", entry["service"])
	assert.Equal(t, float64(42), entry["message_id"])
	assert.Equal(t, "boom", entry["error"])
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelWarn, Output: &buf})

	l.Info("dropped")
	assert.Zero(t, buf.Len())

	l.Error("kept")
	assert.NotZero(t, buf.Len())
}

func TestWithContextRequestID(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Output: &buf})

	ctx := context.WithValue(context.Background(), RequestIDKey, "req-1")
	l.WithContext(ctx).Info("hello")

	assert.Equal(t, "req-1", decodeLine(t, &buf)["request_id"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LevelWarn, ParseLevel("warning"))
	assert.Equal(t, LevelInfo, ParseLevel("nonsense"))
}
