package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/schemasync/internal/config"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()

	var entries []map[string]interface{}

	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))

		entries = append(entries, entry)
	}

	return entries
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected LogLevel
	}{
		{"debug", DebugLevel},
		{"DEBUG", DebugLevel},
		{"info", InfoLevel},
		{"warn", WarnLevel},
		{"warning", WarnLevel},
		{"error", ErrorLevel},
		{"ERROR", ErrorLevel},
		{"invalid", InfoLevel},
		{"", InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLogLevel(tt.input))
		})
	}
}

func TestLogLevelString(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{DebugLevel, "DEBUG"},
		{InfoLevel, "INFO"},
		{WarnLevel, "WARN"},
		{ErrorLevel, "ERROR"},
		{LogLevel(999), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.level.String())
		})
	}
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(config.LoggingConfig{Level: "debug", Format: "JSON", Output: "stderr"})
	require.NoError(t, err)
	assert.Equal(t, DebugLevel, logger.level)
	assert.Equal(t, "json", logger.format)
	assert.Nil(t, logger.file)

	_, err = NewLogger(config.LoggingConfig{Level: "info", Format: "text", Output: "file"})
	assert.ErrorContains(t, err, "log file path is required")

	_, err = NewLogger(config.LoggingConfig{Level: "info", Format: "text", Output: "invalid"})
	assert.ErrorContains(t, err, "invalid log output")
}

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer

	logger := newWriterLogger(&buf, InfoLevel, "json", false)

	logger.WithField("key", "value").
		WithFields(map[string]interface{}{"count": 42, "ok": true}).
		WithError(assert.AnError).
		Info("test message")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)

	entry := entries[0]
	assert.Equal(t, "test message", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "value", entry["key"])
	assert.Equal(t, float64(42), entry["count"])
	assert.Equal(t, true, entry["ok"])
	assert.Equal(t, assert.AnError.Error(), entry["error"])
}

func TestLoggerWithErrorNil(t *testing.T) {
	logger := newWriterLogger(&bytes.Buffer{}, InfoLevel, "json", false)
	assert.Same(t, logger, logger.WithError(nil))
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer

	logger := newWriterLogger(&buf, WarnLevel, "json", false)

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warnf("warn %s", "message")
	logger.ErrorWithErr("error message", assert.AnError)

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)

	assert.Equal(t, "warn", entries[0]["level"])
	assert.Equal(t, "warn message", entries[0]["message"])
	assert.Equal(t, "error", entries[1]["level"])
	assert.Equal(t, assert.AnError.Error(), entries[1]["error"])
}

func TestLoggerTextFormat(t *testing.T) {
	var buf bytes.Buffer

	logger := newWriterLogger(&buf, InfoLevel, "text", false)
	logger.WithField("key", "value").Info("test message")

	output := buf.String()
	assert.Contains(t, output, "INF")
	assert.Contains(t, output, "test message")
	assert.Contains(t, output, "key=value")
}

func TestLoggerTextFormatWithCaller(t *testing.T) {
	var buf bytes.Buffer

	logger := newWriterLogger(&buf, InfoLevel, "text", true)
	logger.Info("test message")

	assert.Contains(t, buf.String(), "logger_test.go:")
}

func TestLoggerClose(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "logs", "test.log")

	logger, err := NewLogger(config.LoggingConfig{
		Level:  "info",
		Format: "text",
		Output: "file",
		File:   logFile,
	})
	require.NoError(t, err)

	logger.Info("test message")
	require.NoError(t, logger.Close())

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(content), "test message")
}

func TestNopLogger(t *testing.T) {
	logger := Nop()
	logger.WithField("k", "v").Error("dropped")
	assert.NoError(t, logger.Close())
}

func TestGlobalLoggingFunctions(t *testing.T) {
	var buf bytes.Buffer

	previous := GetLogger()
	SetLogger(newWriterLogger(&buf, InfoLevel, "json", false))
	t.Cleanup(func() { SetLogger(previous) })

	Info("info message")
	Warn("warn message")
	Error("error message")
	WithField("component", "sync").Infof("planned %d", 1)

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 4)

	for i, expectedLevel := range []string{"info", "warn", "error", "info"} {
		assert.Equal(t, expectedLevel, entries[i]["level"])
	}

	assert.Equal(t, "sync", entries[3]["component"])
}

func TestLoggerMiddleware(t *testing.T) {
	var buf bytes.Buffer

	previous := GetLogger()
	SetLogger(newWriterLogger(&buf, DebugLevel, "json", false))
	t.Cleanup(func() { SetLogger(previous) })

	err := LoggerMiddleware("test_operation", func() error {
		time.Sleep(time.Millisecond)
		return nil
	})
	require.NoError(t, err)

	err = LoggerMiddleware("failing_operation", func() error {
		return assert.AnError
	})
	assert.Equal(t, assert.AnError, err)

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 4)

	assert.Equal(t, "Starting operation", entries[0]["message"])
	assert.Equal(t, "test_operation", entries[0]["operation"])
	assert.Equal(t, "Operation completed successfully", entries[1]["message"])
	assert.NotEmpty(t, entries[1]["duration"])
	assert.Equal(t, "error", entries[3]["level"])
	assert.Equal(t, "Operation failed", entries[3]["message"])
	assert.Equal(t, assert.AnError.Error(), entries[3]["error"])
}
