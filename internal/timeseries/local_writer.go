package timeseries

import (
	"context"
	"log/slog"
	"time"
)

// LocalWriter is the default Writer: it logs points at debug level instead of shipping
// them to a real time-series database. It exists so the gateway is runnable end-to-end
// with CSMS_TIMESERIES_URL unset; a real deployment configures an HTTP-backed Writer
// against its time-series backend of choice instead (SPEC_FULL.md §1, §6).
type LocalWriter struct {
	logger *slog.Logger
}

// NewLocalWriter constructs the logging stand-in Writer.
func NewLocalWriter(logger *slog.Logger) *LocalWriter {
	return &LocalWriter{logger: logger}
}

func (w *LocalWriter) WritePoint(ctx context.Context, measurement string, tags map[string]string, fields map[string]any, ts time.Time) error {
	w.logger.Debug("timeseries point", "measurement", measurement, "tags", tags, "fields", fields, "ts", ts)
	return nil
}
