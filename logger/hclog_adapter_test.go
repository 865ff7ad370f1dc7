package logger

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestLogger creates a JSON logger that writes to a buffer
func createTestLogger(t *testing.T, level LogLevel) (Logger, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	return NewZerologLogger(&Config{
		Level:   level,
		Format:  JSONFormat,
		Outputs: []io.Writer{buf},
	}), buf
}

func TestHCLogAdapter_ImplementsInterface(t *testing.T) {
	logger, _ := createTestLogger(t, TraceLevel)
	var _ hclog.Logger = NewHCLogAdapter(logger)
}

func TestHCLogAdapter_LogLevels(t *testing.T) {
	tests := []struct {
		name    string
		logFunc func(a hclog.Logger)
		level   string
	}{
		{"Trace", func(a hclog.Logger) { a.Trace("trace message") }, `"level":"trace"`},
		{"Debug", func(a hclog.Logger) { a.Debug("debug message") }, `"level":"debug"`},
		{"Info", func(a hclog.Logger) { a.Info("info message") }, `"level":"info"`},
		{"Warn", func(a hclog.Logger) { a.Warn("warn message") }, `"level":"warn"`},
		{"Error", func(a hclog.Logger) { a.Error("error message") }, `"level":"error"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, buf := createTestLogger(t, TraceLevel)
			tt.logFunc(NewHCLogAdapter(logger))
			assert.Contains(t, buf.String(), tt.level)
		})
	}
}

func TestHCLogAdapter_LogWithArgs(t *testing.T) {
	logger, buf := createTestLogger(t, TraceLevel)
	adapter := NewHCLogAdapter(logger)

	adapter.Log(hclog.Warn, "performing request", "method", "GET", "retry", 2, "error", errors.New("boom"))

	output := buf.String()
	assert.Contains(t, output, `"message":"performing request"`)
	assert.Contains(t, output, `"method":"GET"`)
	assert.Contains(t, output, `"retry":2`)
	assert.Contains(t, output, `"error":"boom"`)
}

func TestHCLogAdapter_OffLevelIsSilent(t *testing.T) {
	logger, buf := createTestLogger(t, TraceLevel)
	NewHCLogAdapter(logger).Log(hclog.Off, "never")
	assert.Empty(t, buf.String())
}

func TestHCLogAdapter_NamedAndWith(t *testing.T) {
	logger, buf := createTestLogger(t, TraceLevel)
	adapter := NewHCLogAdapter(logger)

	named := adapter.Named("transport").Named("retry")
	assert.Equal(t, "transport.retry", named.Name())

	reset := named.ResetNamed("other")
	assert.Equal(t, "other", reset.Name())

	withArgs := named.With("request_id", "abc")
	assert.Equal(t, []interface{}{"request_id", "abc"}, withArgs.ImpliedArgs())
	assert.Empty(t, named.ImpliedArgs(), "With must not mutate the parent")

	withArgs.Info("retrying")
	output := buf.String()
	assert.Contains(t, output, `"module":"transport.retry"`)
	assert.Contains(t, output, `"request_id":"abc"`)
}

func TestHCLogAdapter_ArgsToFields(t *testing.T) {
	adapter := &HCLogAdapter{logger: NewNopLogger()}

	t.Run("odd args drop trailing key", func(t *testing.T) {
		fields := adapter.argsToFields([]interface{}{"a", 1, "dangling"})
		require.Len(t, fields, 1)
		assert.Equal(t, AnyField{Key: "a", Value: 1}, fields[0])
	})

	t.Run("non string keys are skipped", func(t *testing.T) {
		fields := adapter.argsToFields([]interface{}{42, "x", "b", true})
		require.Len(t, fields, 1)
		assert.Equal(t, AnyField{Key: "b", Value: true}, fields[0])
	})
}

func TestHCLogAdapter_GetLevel(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected hclog.Level
	}{
		{TraceLevel, hclog.Trace},
		{DebugLevel, hclog.Debug},
		{InfoLevel, hclog.Info},
		{WarnLevel, hclog.Warn},
		{ErrorLevel, hclog.Error},
		{Disabled, hclog.Off},
	}
	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			logger, _ := createTestLogger(t, tt.level)
			adapter := NewHCLogAdapter(logger)
			assert.Equal(t, tt.expected, adapter.GetLevel())

			adapter.SetLevel(hclog.Trace)
			assert.Equal(t, tt.expected, adapter.GetLevel(), "SetLevel is a no-op")
		})
	}
}

func TestHCLogAdapter_StandardLoggerUnsupported(t *testing.T) {
	adapter := NewHCLogAdapter(nil)
	assert.Nil(t, adapter.StandardLogger(nil))
	assert.Nil(t, adapter.StandardWriter(nil))
}
