package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoggerHelpers(t *testing.T) {
	t.Run("LogError includes error and attributes", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewStructuredLogger(&buf, slog.LevelInfo)

		LogError(logger, "cache write failed", assert.AnError, slog.String("trip_id", "TRIP001"))

		out := buf.String()
		assert.Contains(t, out, `"level":"ERROR"`)
		assert.Contains(t, out, `"msg":"cache write failed"`)
		assert.Contains(t, out, `"trip_id":"TRIP001"`)
		assert.Contains(t, out, `"error":"assert.AnError general error for testing"`)
	})

	t.Run("LogError ignores nil logger and nil error", func(t *testing.T) {
		assert.NotPanics(t, func() {
			LogError(nil, "x", assert.AnError)
		})
		var buf bytes.Buffer
		LogError(NewStructuredLogger(&buf, slog.LevelInfo), "x", nil)
		assert.Empty(t, buf.String())
	})

	t.Run("LogOperation skips zero durations", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewStructuredLogger(&buf, slog.LevelInfo)

		LogOperation(logger, "import_finished",
			slog.Int("routes", 3),
			slog.Duration("duration", 0))

		out := buf.String()
		assert.Contains(t, out, `"routes":3`)
		assert.NotContains(t, out, `"duration"`)

		buf.Reset()
		LogOperation(logger, "import_finished", slog.Duration("duration", time.Second))
		assert.Contains(t, buf.String(), `"duration"`)
	})

	t.Run("LogHTTPRequest picks level by status", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewStructuredLogger(&buf, slog.LevelInfo)

		LogHTTPRequest(logger, "GET", "/health", 200, 1.5)
		assert.Contains(t, buf.String(), `"level":"INFO"`)
		assert.Contains(t, buf.String(), `"status":200`)

		buf.Reset()
		LogHTTPRequest(logger, "POST", "/trips", 404, 2)
		assert.Contains(t, buf.String(), `"level":"WARN"`)

		buf.Reset()
		LogHTTPRequest(logger, "POST", "/trips", 500, 2)
		assert.Contains(t, buf.String(), `"level":"ERROR"`)
	})
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestContextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger(&buf, slog.LevelInfo)

	ctx := WithLogger(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx))
	assert.Equal(t, slog.Default(), FromContext(context.Background()))
	assert.Same(t, logger, FromContextOr(context.Background(), logger))
}
