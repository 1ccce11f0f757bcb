package observe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v\n%s", err, buf.String())
	}
	return entry
}

func TestLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggingConfig{Enabled: true, Level: "info", Format: "json"}, &buf)

	logger.With(F("fingerprint", "abc123")).Info(context.Background(), "outcome committed",
		F("attempts", 3),
		F("error", errors.New("store unavailable")),
	)

	entry := decodeLine(t, &buf)
	if entry["msg"] != "outcome committed" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["fingerprint"] != "abc123" {
		t.Errorf("fingerprint = %v, want abc123", entry["fingerprint"])
	}
	if entry["attempts"] != float64(3) {
		t.Errorf("attempts = %v, want 3", entry["attempts"])
	}
	if entry["error"] != "store unavailable" {
		t.Errorf("error = %v, want store unavailable", entry["error"])
	}
}

func TestLogger_Redaction(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggingConfig{Enabled: true, Format: "json"}, &buf)

	logger.Info(context.Background(), "connecting", F("dsn", "postgres://u:p@h/db"), F("token", "s3cr3t"))

	out := buf.String()
	if strings.Contains(out, "s3cr3t") || strings.Contains(out, "u:p@h") {
		t.Errorf("sensitive values leaked: %s", out)
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Errorf("expected [REDACTED] marker: %s", out)
	}
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggingConfig{Enabled: true, Level: "warn"}, &buf)

	logger.Info(context.Background(), "hidden")
	logger.Debug(context.Background(), "hidden")
	if buf.Len() != 0 {
		t.Errorf("info/debug written at warn level: %s", buf.String())
	}
	logger.Warn(context.Background(), "shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("warn not written: %s", buf.String())
	}
}

func TestLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggingConfig{Enabled: true, Level: "debug", Format: "text"}, &buf)

	logger.Debug(context.Background(), "attempt failed", F("category", "convergence"))
	out := buf.String()
	if !strings.Contains(out, "attempt failed") || !strings.Contains(out, "convergence") {
		t.Errorf("text output = %q", out)
	}
}

func TestLogger_Disabled(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggingConfig{Enabled: false}, &buf)
	logger.Error(context.Background(), "dropped")
	if buf.Len() != 0 {
		t.Errorf("disabled logger wrote %q", buf.String())
	}
	if logger.With(F("k", 1)) == nil {
		t.Error("With() on disabled logger returned nil")
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]string{"debug": "DEBUG", "warn": "WARN", "error": "ERROR", "bogus": "INFO"} {
		if got := ParseLevel(in).String(); got != want {
			t.Errorf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}
