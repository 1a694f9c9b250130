package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type traceKey struct{}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	return out
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("applies context extractors", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		log := newLogger(&buf, Config{Level: "info"}, func(ctx context.Context) (slog.Attr, bool) {
			v, ok := ctx.Value(traceKey{}).(string)
			return slog.String("trace", v), ok
		}, nil)

		ctx := context.WithValue(context.Background(), traceKey{}, "abc")
		log.InfoContext(ctx, "hello")

		line := decodeLine(t, &buf)
		assert.Equal(t, "hello", line["msg"])
		assert.Equal(t, "abc", line["trace"])
	})

	t.Run("filters below configured level", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		log := newLogger(&buf, Config{Level: "warn"})
		log.Info("skipped")
		assert.Zero(t, buf.Len())

		log.Warn("kept")
		assert.Equal(t, "kept", decodeLine(t, &buf)["msg"])
	})

	t.Run("text format", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		log := newLogger(&buf, Config{Format: "text"})
		log.Info("plain")
		assert.Contains(t, buf.String(), "msg=plain")
	})
}

func TestWithAttrs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := newLogger(&buf, Config{})

	ctx := WithAttrs(context.Background(), slog.String("job_id", "email_1234abcd"))
	ctx = WithAttrs(ctx, slog.Int("attempt", 2))
	log.InfoContext(ctx, "fired")

	line := decodeLine(t, &buf)
	assert.Equal(t, "email_1234abcd", line["job_id"])
	assert.EqualValues(t, 2, line["attempt"])
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}
