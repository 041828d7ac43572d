package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunIDRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "", RunID(ctx))
	assert.Nil(t, LogWithRun(ctx))

	id := NewRunID()
	_, err := uuid.Parse(id)
	require.NoError(t, err)

	ctx = WithRunID(ctx, id)
	assert.Equal(t, id, RunID(ctx))
	assert.Len(t, LogWithRun(ctx), 1)
}

func TestInitWriter_JSONWithService(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	l := InitWriter(&buf, "etfind", slog.LevelInfo)
	ctx := WithRunID(context.Background(), "run-1")
	l.Info("unit done", LogWithRun(ctx)...)
	l.Debug("hidden")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec))
	assert.Equal(t, "etfind", rec["service"])
	assert.Equal(t, "run-1", rec["run_id"])
	assert.Equal(t, "unit done", rec["msg"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}
