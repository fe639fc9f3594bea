// Package observability wires logging and metrics for the CLI: slog setup
// from configuration, and a Prometheus recorder fed by the adapter's metric
// events.
package observability

import (
	"io"
	"log/slog"
	"strings"
)

// NewLogger builds a structured text logger at the given level. Unknown
// level names fall back to info.
func NewLogger(level string, w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: parseLevel(level),
	}))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
