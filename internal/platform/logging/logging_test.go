package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen11/numbers-core/internal/platform/logging"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "log line: %s", buf.String())
	return entry
}

func TestNew_Formats(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		format string
		want   string
	}{
		{name: "json", format: logging.FormatJSON, want: `"msg":"verification purchased"`},
		{name: "text", format: logging.FormatText, want: `msg="verification purchased"`},
		{name: "unknown falls back to json", format: "logfmt", want: `"level":"INFO"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			logging.New("info", tt.format, &buf).Info("verification purchased")

			assert.Contains(t, buf.String(), tt.want)
		})
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	t.Parallel()

	tests := []struct {
		level     string
		debug     bool
		info      bool
		warn      bool
		addSource bool
	}{
		{level: "debug", debug: true, info: true, warn: true, addSource: true},
		{level: "info", info: true, warn: true},
		{level: "WARN", warn: true},
		{level: "error"},
		{level: "verbose", info: true, warn: true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			logger := logging.New(tt.level, logging.FormatJSON, &bytes.Buffer{})

			assert.Equal(t, tt.debug, logger.Enabled(ctx, slog.LevelDebug), "debug enabled")
			assert.Equal(t, tt.info, logger.Enabled(ctx, slog.LevelInfo), "info enabled")
			assert.Equal(t, tt.warn, logger.Enabled(ctx, slog.LevelWarn), "warn enabled")
			assert.True(t, logger.Enabled(ctx, slog.LevelError), "error enabled")
		})
	}
}

func TestNew_DebugAddsSource(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logging.New("debug", logging.FormatJSON, &buf).Debug("poll tick")

	assert.Contains(t, decode(t, &buf), slog.SourceKey)
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"Warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"trace": slog.LevelInfo,
	}

	for name, want := range tests {
		assert.Equal(t, want, logging.ParseLevel(name), "ParseLevel(%q)", name)
	}
}

func TestFromContext(t *testing.T) {
	t.Parallel()

	t.Run("empty context returns default", func(t *testing.T) {
		t.Parallel()
		assert.Same(t, slog.Default(), logging.FromContext(context.Background()))
	})

	t.Run("stored logger is returned", func(t *testing.T) {
		t.Parallel()
		logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
		ctx := logging.WithLogger(context.Background(), logger)
		assert.Same(t, logger, logging.FromContext(ctx))
	})

	t.Run("inner logger shadows outer", func(t *testing.T) {
		t.Parallel()
		outer := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
		inner := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))

		ctx := logging.WithLogger(context.Background(), outer)
		ctx = logging.WithLogger(ctx, inner)
		assert.Same(t, inner, logging.FromContext(ctx))
	})
}

func TestWith(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := logging.New("info", logging.FormatJSON, &buf)
	ctx := logging.WithLogger(context.Background(), base)

	ctx, logger := logging.With(ctx, slog.String("verification_id", "ver-1"))
	logging.FromContext(ctx).InfoContext(ctx, "poll started")

	entry := decode(t, &buf)
	assert.Equal(t, "ver-1", entry["verification_id"])
	assert.Same(t, logger, logging.FromContext(ctx))
}

func TestNew_Redaction(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		key    string
		value  string
		redact bool
	}{
		{name: "authorization header", key: "authorization", value: "Bearer provider-token-9f8e7d", redact: true},
		{name: "webhook signature header", key: "x-signature", value: "sha256=abc123", redact: true},
		{name: "signature field", key: "signature", value: "a1b2c3d4e5f6", redact: true},
		{name: "phone number", key: "phone_number", value: "+15550001111", redact: true},
		{name: "secret prefix", key: "secret_webhook", value: "whsec-42", redact: true},
		{name: "api key prefix", key: "api_key_provider", value: "pk-live-77", redact: true},
		{name: "bearer in free text", key: "raw_header", value: "Bearer eyJhbGciOiJSUzI1NiJ9", redact: true},
		{name: "inline api key", key: "note", value: "retry with api_key=pk-live-77", redact: true},
		{name: "user id kept", key: "user_id", value: "usr-123"},
		{name: "route kept", key: "route", value: "/api/v1/verifications/{id}"},
		{name: "version string kept", key: "version", value: "1.4.2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			logging.New("info", logging.FormatJSON, &buf).Info("event", slog.String(tt.key, tt.value))

			out := buf.String()
			if tt.redact {
				assert.NotContains(t, out, tt.value)
				assert.Contains(t, out, "[REDACTED]")
				return
			}
			assert.Equal(t, tt.value, decode(t, &buf)[tt.key])
		})
	}
}
