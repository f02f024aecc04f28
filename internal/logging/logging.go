// Package logging builds the structured logger shared by the CLI, the runner
// and the request middleware.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Supported output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// ParseLevel maps a level name to a slog level. An empty name is info.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", name)
	}
}

// New creates a logger writing to w in the given format at the given level.
func New(w io.Writer, level, format string) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatText:
		handler = slog.NewTextHandler(w, opts)
	case FormatJSON:
		handler = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	return slog.New(handler), nil
}

// ForRun attaches the run id to every record.
func ForRun(logger *slog.Logger, runID string) *slog.Logger {
	return logger.With("run_id", runID)
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
