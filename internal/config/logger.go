package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds a slog.Logger from the configured level. Grounded on the teacher's
// logger.go parseLogLevel/setupLogger pair.
func NewLogger(level string) (*slog.Logger, error) {
	var slogLevel slog.Level
	switch strings.ToLower(level) {
	case "error":
		slogLevel = slog.LevelError
	case "warn", "warning":
		slogLevel = slog.LevelWarn
	case "info":
		slogLevel = slog.LevelInfo
	case "debug":
		slogLevel = slog.LevelDebug
	default:
		return nil, fmt.Errorf("invalid log level: %s (must be error, warn, info, or debug)", level)
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slogLevel})
	return slog.New(handler), nil
}
