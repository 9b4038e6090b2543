package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Leveler{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"noise":   slog.LevelInfo,
	}
	for input, want := range cases {
		require.Equal(t, want, parseLevel(input), input)
	}
}

func TestNewLoggerLabelsService(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, Options{Level: "info", Format: "json", Service: "cycleroute-staging"})
	log.Debug("hidden")
	log.Info("plan finished", "outcome", "done")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "cycleroute-staging", entry["service"])
	require.Equal(t, "plan finished", entry["msg"])
	require.Equal(t, "done", entry["outcome"])
}

func TestNewLoggerTextFormatAndDefaultService(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, Options{Format: "TEXT"})
	log.Warn("breaker open", "upstream", "ors")

	line := buf.String()
	require.Contains(t, line, "level=WARN")
	require.Contains(t, line, "service=cycleroute")
	require.Contains(t, line, "upstream=ors")
}
