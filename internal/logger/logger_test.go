package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		level string
		debug bool
		info  bool
		warn  bool
	}{
		{level: "debug", debug: true, info: true, warn: true},
		{level: "info", debug: false, info: true, warn: true},
		{level: "warn", debug: false, info: false, warn: true},
		{level: "error", debug: false, info: false, warn: false},
		{level: "bogus", debug: false, info: true, warn: true},
	}
	for _, test := range tests {
		t.Run(test.level, func(t *testing.T) {
			log := New(&bytes.Buffer{}, test.level, "text")
			ctx := context.Background()
			require.Equal(t, test.debug, log.Enabled(ctx, slog.LevelDebug))
			require.Equal(t, test.info, log.Enabled(ctx, slog.LevelInfo))
			require.Equal(t, test.warn, log.Enabled(ctx, slog.LevelWarn))
		})
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "info", "json")
	log.Info("request handled", slog.Int("status", 200))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "request handled", line["msg"])
	require.Equal(t, float64(200), line["status"])
}

func TestNewText(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "info", "text")
	log.Info("request handled", slog.Int("status", 200))
	require.Contains(t, buf.String(), "msg=\"request handled\" status=200")
}
