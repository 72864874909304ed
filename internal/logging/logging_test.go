package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestLogLevel_String(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{LogLevelDebug, "DEBUG"},
		{LogLevelInfo, "INFO"},
		{LogLevelWarn, "WARN"},
		{LogLevelError, "ERROR"},
		{LogLevel(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		result := tt.level.String()
		if result != tt.expected {
			t.Errorf("LogLevel(%d).String() = '%s', expected '%s'", tt.level, result, tt.expected)
		}
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected LogLevel
	}{
		{"debug", LogLevelDebug},
		{"DEBUG", LogLevelDebug},
		{"info", LogLevelInfo},
		{"warn", LogLevelWarn},
		{"Warning", LogLevelWarn},
		{"error", LogLevelError},
		{"unknown", LogLevelInfo}, // Default
		{"", LogLevelInfo},        // Default
	}

	for _, tt := range tests {
		result := ParseLogLevel(tt.input)
		if result != tt.expected {
			t.Errorf("ParseLogLevel('%s') = %d, expected %d", tt.input, result, tt.expected)
		}
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LogLevelWarn, Output: &buf, Prefix: "test"})

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn %d", 1)
	logger.Error("error %s", "two")

	out := buf.String()
	if strings.Contains(out, "debug message") || strings.Contains(out, "info message") {
		t.Errorf("messages below level were written: %q", out)
	}
	if !strings.Contains(out, "[WARN] test: warn 1") {
		t.Errorf("missing warn line: %q", out)
	}
	if !strings.Contains(out, "[ERROR] test: error two") {
		t.Errorf("missing error line: %q", out)
	}
}

func TestLogger_FieldsSorted(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LogLevelDebug, Output: &buf})

	logger.WithFields(map[string]any{"page": 3, "doc": "abc"}).WithComponent("cache").Info("hit")

	out := buf.String()
	if !strings.Contains(out, "{component=cache, doc=abc, page=3}") {
		t.Errorf("fields not sorted or missing: %q", out)
	}
}

func TestLogger_DerivedSharesSink(t *testing.T) {
	var buf bytes.Buffer
	parent := New(Config{Level: LogLevelError, Output: &buf})
	child := parent.WithComponent("scheduler")

	parent.SetLevel(LogLevelDebug)
	child.Debug("now visible")

	if !strings.Contains(buf.String(), "now visible") {
		t.Error("SetLevel on parent should apply to derived loggers")
	}
	if child.Level() != LogLevelDebug {
		t.Errorf("child level = %v", child.Level())
	}
}

func TestLogger_DisableEnable(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LogLevelDebug, Output: &buf})

	logger.Disable()
	logger.Error("hidden")
	if buf.Len() != 0 {
		t.Errorf("disabled logger wrote %q", buf.String())
	}
	if logger.Enabled(LogLevelError) {
		t.Error("Enabled should be false while disabled")
	}

	logger.Enable()
	logger.Error("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Error("re-enabled logger should write")
	}
}

func TestNullLogger(t *testing.T) {
	NullLogger.Error("discarded")
	NullLogger.WithField("k", "v").Info("discarded")

	if OrNull(nil) != NullLogger {
		t.Error("OrNull(nil) should return NullLogger")
	}
	l := New(DefaultConfig())
	if OrNull(l) != l {
		t.Error("OrNull should return a non-nil logger unchanged")
	}
}
