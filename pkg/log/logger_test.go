package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{" warn ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"nonsense", slog.LevelDebug},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLogLevel(tt.in); got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestErrorfWrapsAndLogs(t *testing.T) {
	var buf bytes.Buffer
	InitLogWithWriter("error", &buf)
	defer InitLog("info")

	base := errors.New("boom")
	err := Errorf("dump failed: %w", base)
	if !errors.Is(err, base) {
		t.Fatalf("Errorf did not wrap the base error: %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v (%q)", err, buf.String())
	}
	if msg, _ := entry["msg"].(string); !strings.Contains(msg, "dump failed: boom") {
		t.Errorf("unexpected log message %q", msg)
	}
}

func TestWithAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	InitLogWithWriter("debug", &buf)
	defer InitLog("info")

	With("controller").Info("stopped", "unit", "auth")
	if !strings.Contains(buf.String(), `"component":"controller"`) {
		t.Errorf("component attribute missing from %q", buf.String())
	}
}
