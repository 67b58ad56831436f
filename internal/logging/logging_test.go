package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestLoggerDefaultNonNil(t *testing.T) {
	if Logger() == nil {
		t.Fatal("default logger should not be nil")
	}
}

func TestSetLoggerOverrides(t *testing.T) {
	prev := Logger()
	t.Cleanup(func() { SetLogger(prev) })

	var buf bytes.Buffer
	custom := slog.New(slog.NewJSONHandler(&buf, nil))
	SetLogger(custom)

	if got := Logger(); got != custom {
		t.Fatalf("Logger() mismatch; want %p got %p", custom, got)
	}

	Component("FeatureStore").Info("test")
	if !strings.Contains(buf.String(), `"component":"FeatureStore"`) {
		t.Fatalf("expected component attribute, got %s", buf.String())
	}
}

func TestConfigureLevel(t *testing.T) {
	prev := Logger()
	t.Cleanup(func() { SetLogger(prev) })

	var buf bytes.Buffer
	if err := Configure(&buf, "warn", false); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	Logger().Info("hidden")
	Logger().Warn("shown")

	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("level filter not applied: %s", buf.String())
	}
	if err := Configure(&buf, "verbose", false); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestDiscardLoggingReplacesLogger(t *testing.T) {
	prev := Logger()
	t.Cleanup(func() { SetLogger(prev) })

	DiscardLogging()
	if Logger() == nil {
		t.Fatal("discard logger should still be non-nil")
	}
	if Logger() == prev {
		t.Fatal("discard logging should replace existing logger")
	}
}
