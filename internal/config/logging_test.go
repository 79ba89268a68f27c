package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"expensechat/internal/domain"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLogger_WhenJSONFormat_ShouldWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(domain.InfraConfig{LogFormat: "json", LogLevel: "info"}, &buf)

	logger.Info("expense added", "amount", 250)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", buf.String(), err)
	}
	if rec["msg"] != "expense added" {
		t.Errorf("unexpected record %v", rec)
	}
}

func TestNewLogger_WhenTextFormat_ShouldFilterBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(domain.InfraConfig{LogFormat: "text", LogLevel: "warn"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "msg=shown") {
		t.Errorf("unexpected output %q", out)
	}
}
