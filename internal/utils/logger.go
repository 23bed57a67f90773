package utils

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger returns a stdout logger at the named level.
func NewLogger(level string, json bool) *slog.Logger {
	return NewLoggerTo(os.Stdout, level, json)
}

// NewLoggerTo builds a text or JSON slog logger writing to w. Unknown levels
// fall back to info; debug loggers also record the call site.
func NewLoggerTo(w io.Writer, level string, json bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if opts.Level == slog.LevelDebug {
		opts.AddSource = true
	}

	var handler slog.Handler = slog.NewTextHandler(w, opts)
	if json {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

// ParseLevel maps debug, info, warn (or warning) and error to slog levels.
func ParseLevel(level string) slog.Level {
	var lvl slog.Level
	name := strings.TrimSpace(strings.ToLower(level))
	if name == "warning" {
		name = "warn"
	}
	if err := lvl.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
