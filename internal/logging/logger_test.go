package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestComponentLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, "test", WARN)

	logger.Debug("debug %d", 1)
	logger.Info("info %d", 2)
	logger.Warn("warn %d", 3)
	logger.Error("error %d", 4)

	out := buf.String()
	if strings.Contains(out, "debug 1") || strings.Contains(out, "info 2") {
		t.Fatalf("expected debug/info suppressed at WARN level, got: %s", out)
	}
	if !strings.Contains(out, "warn 3") || !strings.Contains(out, "error 4") {
		t.Fatalf("expected warn/error emitted, got: %s", out)
	}
	if !strings.Contains(out, "[test]") {
		t.Fatalf("expected component tag in output, got: %s", out)
	}
}

func TestOrNopHandlesNil(t *testing.T) {
	logger := OrNop(nil)
	if logger == nil {
		t.Fatal("OrNop returned nil")
	}
	// Must not panic.
	logger.Info("hello")

	var typed *componentLogger
	if got := OrNop(typed); IsNil(got) {
		t.Fatal("OrNop should replace nil pointer logger")
	}
}
