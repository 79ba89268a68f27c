package config

import (
	"io"
	"log/slog"
	"strings"

	"expensechat/internal/domain"
)

// NewLogger builds a slog.Logger from infra settings. LogFormat "json"
// selects the JSON handler; anything else logs text. Unknown levels fall
// back to info.
func NewLogger(infra domain.InfraConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(infra.LogLevel)}
	if strings.EqualFold(infra.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLevel maps "debug", "info", "warn" and "error" to slog levels.
func ParseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
