package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewJSONHonorsLevel(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := New("json", "warn", &buf)
	logger.Info("request complete", "status_code", 200)
	logger.Warn("transfer aborted", "bytes_written", 42)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	require.Equal(t, "transfer aborted", entry["msg"])
	require.Equal(t, "WARN", entry["level"])
	require.EqualValues(t, 42, entry["bytes_written"])
}

func TestNewTextIsDefault(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	New("", "", &buf).Info("ready", "listen", ":8080")
	require.Contains(t, buf.String(), "level=INFO")
	require.Contains(t, buf.String(), "msg=ready")
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelError, ParseLevel("error"))
	require.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}
