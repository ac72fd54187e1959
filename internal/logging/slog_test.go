package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() (*SlogLogger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	h := slog.NewJSONHandler(buf, nil)
	return NewSlogLogger(slog.New(h)), buf
}

func lastRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	return rec
}

func TestSlogLoggerLevels(t *testing.T) {
	ctx := context.Background()

	l, buf := newTestLogger()
	l.Info(ctx, "hello", "k", "v")
	rec := lastRecord(t, buf)
	assert.Equal(t, "INFO", rec["level"])
	assert.Equal(t, "hello", rec["msg"])
	assert.Equal(t, "v", rec["k"])

	l, buf = newTestLogger()
	l.Warn(ctx, "careful")
	assert.Equal(t, "WARN", lastRecord(t, buf)["level"])

	l, buf = newTestLogger()
	l.Error(ctx, "boom")
	assert.Equal(t, "ERROR", lastRecord(t, buf)["level"])
}

func TestSlogLoggerWith(t *testing.T) {
	l, buf := newTestLogger()
	child := l.With("module", "sweeper")
	child.Info(context.Background(), "tick")
	rec := lastRecord(t, buf)
	assert.Equal(t, "sweeper", rec["module"])
}
