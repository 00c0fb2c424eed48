package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewLoggerDefaultConfig(t *testing.T) {
	logger := NewLogger(nil)
	if logger == nil {
		t.Fatal("NewLogger(nil) returned nil")
	}
	if logger.level != LevelInfo {
		t.Errorf("default level = %v, want LevelInfo", logger.level)
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelWarn, Output: &buf})

	logger.Debug("hidden")
	logger.Info("also hidden")
	if buf.Len() != 0 {
		t.Errorf("expected no output below LevelWarn, got %q", buf.String())
	}

	logger.Warn("visible warning")
	if !strings.Contains(buf.String(), "visible warning") {
		t.Errorf("expected warning in output, got %q", buf.String())
	}
}

func TestLoggerArgsFormatting(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	logger.Info("sync complete", "added", 3, "sdk", "iphoneos17.4")
	output := buf.String()

	if !strings.Contains(output, "[INFO]") {
		t.Errorf("expected [INFO] prefix, got %q", output)
	}
	if !strings.Contains(output, "sync complete") {
		t.Errorf("expected message, got %q", output)
	}
	if !strings.Contains(output, "added=3") {
		t.Errorf("expected added=3, got %q", output)
	}
	if !strings.Contains(output, "sdk=iphoneos17.4") {
		t.Errorf("expected sdk=iphoneos17.4, got %q", output)
	}
}

func TestLoggerPrintfStyle(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	logger.Errorf("failed to open %s: %v", "macosx14.0.memdb", "EOF")
	output := buf.String()

	if !strings.Contains(output, "[ERROR]") {
		t.Errorf("expected [ERROR] prefix, got %q", output)
	}
	if !strings.Contains(output, "failed to open macosx14.0.memdb: EOF") {
		t.Errorf("expected formatted message, got %q", output)
	}
}

func TestLoggerPrintfIsInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelInfo, Output: &buf})

	logger.Printf("listening on %s", ":8080")
	if !strings.Contains(buf.String(), "[INFO]") {
		t.Errorf("Printf should log at info level, got %q", buf.String())
	}
}

func TestDefaultLoggerSingleton(t *testing.T) {
	first := Default()
	second := Default()
	if first != second {
		t.Error("Default() should return the same logger instance across calls")
	}
}

func TestSetDefault(t *testing.T) {
	var buf bytes.Buffer
	custom := NewLogger(&Config{Level: LevelDebug, Output: &buf})
	SetDefault(custom)
	defer SetDefault(NewLogger(nil))

	Info("hello from package-level Info")
	if !strings.Contains(buf.String(), "hello from package-level Info") {
		t.Errorf("expected global Info to route through the custom default logger, got %q", buf.String())
	}
}
