package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func TestLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelDebug}).With(Component("search"))

	log.Info("search done",
		ClimberID("c1"),
		Int("problems", 3),
		Err(errors.New("boom")),
		Latency(1500*time.Millisecond),
		Window(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)),
	)

	got := lines(t, &buf)
	require.Len(t, got, 1)
	entry := got[0]
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "search done", entry["message"])
	assert.Equal(t, "search", entry["component"])
	assert.Equal(t, "c1", entry["climber_id"])
	assert.EqualValues(t, 3, entry["problems"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "1.5s", entry["latency"])
	assert.Equal(t, "2024-03-01..2024-04-01", entry["window"])
	assert.Contains(t, entry, "time")
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelWarn})

	log.Debug("hidden")
	log.Info("hidden")
	log.Warn("shown")
	log.Error("shown too")

	got := lines(t, &buf)
	require.Len(t, got, 2)
	assert.Equal(t, "warn", got[0]["level"])
	assert.Equal(t, "error", got[1]["level"])

	buf.Reset()
	log.WithLevel(LevelDebug).Debug("now visible")
	assert.Len(t, lines(t, &buf), 1)
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   LevelDebug,
		" INFO ":  LevelInfo,
		"warning": LevelWarn,
		"error":   LevelError,
		"fatal":   LevelFatal,
		"trace":   LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
	assert.Equal(t, "WARN", LevelWarn.String())
}

func TestContext(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelInfo})

	ctx := WithContext(context.Background(), log)
	assert.Same(t, log, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}

func TestNop(t *testing.T) {
	assert.NotPanics(t, func() {
		Nop().Error("dropped", Err(nil))
	})
}
