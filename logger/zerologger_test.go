package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry), line)
		entries = append(entries, entry)
	}
	return entries
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, TraceLevel, ParseLogLevel("TRACE"))
	assert.Equal(t, DebugLevel, ParseLogLevel("debug"))
	assert.Equal(t, WarnLevel, ParseLogLevel("warning"))
	assert.Equal(t, ErrorLevel, ParseLogLevel("err"))
	assert.Equal(t, Disabled, ParseLogLevel("off"))
	assert.Equal(t, InfoLevel, ParseLogLevel("bogus"))
	assert.Equal(t, "warn", WarnLevel.String())
}

func TestParseOutputFormat(t *testing.T) {
	assert.Equal(t, JSONFormat, ParseOutputFormat("JSON"))
	assert.Equal(t, ConsoleFormat, ParseOutputFormat(""))
	assert.Equal(t, "console", ConsoleFormat.String())
}

func TestZerologLogger_LevelFiltering(t *testing.T) {
	logger, buf := createTestLogger(t, WarnLevel)

	logger.Debug("hidden")
	logger.Info("hidden too")
	logger.Warn("shown")
	logger.Errorf("shown %d", 2)

	entries := decodeLines(t, buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "shown", entries[0]["message"])
	assert.Equal(t, "shown 2", entries[1]["message"])

	assert.False(t, logger.IsLevelEnabled(InfoLevel))
	assert.True(t, logger.IsLevelEnabled(ErrorLevel))
}

func TestZerologLogger_TypedFields(t *testing.T) {
	logger, buf := createTestLogger(t, TraceLevel)

	logger.Info("refresh finished",
		String("episode_id", "01H"),
		Int("waiters", 3),
		Int64("exchanges", 1),
		Bool("rotated", false),
		Duration("elapsed", 1500*time.Millisecond),
		Err(errors.New("nope")),
		Any("status", 200),
	)

	entries := decodeLines(t, buf)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "01H", e["episode_id"])
	assert.EqualValues(t, 3, e["waiters"])
	assert.EqualValues(t, 1, e["exchanges"])
	assert.Equal(t, false, e["rotated"])
	assert.EqualValues(t, 1500, e["elapsed"])
	assert.Equal(t, "nope", e["error"])
	assert.EqualValues(t, 200, e["status"])
}

func TestZerologLogger_SubsystemsDoNotRepeatModule(t *testing.T) {
	buf := &bytes.Buffer{}
	root := NewZerologLogger(&Config{
		Level:     InfoLevel,
		Format:    JSONFormat,
		Outputs:   []io.Writer{buf},
		Subsystem: "api",
	})

	child := root.WithFields(String("episode_id", "E1")).WithSubsystem("refresh")
	child.Info("hello")

	line := strings.TrimSpace(buf.String())
	assert.Equal(t, 1, strings.Count(line, `"module"`))
	assert.Contains(t, line, `"module":"api.refresh"`)
	assert.Contains(t, line, `"episode_id":"E1"`)
}

func TestZerologLogger_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "client.log")
	logger := NewZerologLogger(FileOnlyConfig(path))
	logger.Info("written to file")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
}

func TestNopLogger(t *testing.T) {
	logger := NewNopLogger()
	logger.Error("nothing")
	assert.False(t, logger.IsLevelEnabled(ErrorLevel))
	assert.NoError(t, logger.Close())
}
