package telemetry

import (
	"context"
	"log/slog"
	"time"
)

var _ Collector = (*LogCollector)(nil)

// LogCollector writes metrics to the logger at DEBUG and publishes nothing.
type LogCollector struct {
	logger *slog.Logger
}

// NewLogCollector creates a LogCollector.
func NewLogCollector(logger *slog.Logger) *LogCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogCollector{logger: logger.With("component", "metrics")}
}

func (c *LogCollector) RecordRequest(method, endpoint, status string, duration time.Duration) {
	c.logger.Debug("request metric",
		"method", method,
		"endpoint", endpoint,
		"status", status,
		"duration_ms", duration.Milliseconds(),
	)
}

func (c *LogCollector) RecordUpstream(ctx context.Context, source, outcome string) {
	c.logger.DebugContext(ctx, "upstream metric", "source", source, "outcome", outcome)
}

func (c *LogCollector) RecordCount(ctx context.Context, metric string, value float64, dims map[string]string) {
	c.logger.DebugContext(ctx, "count metric", "metric", metric, "value", value, "dims", dims)
}

// Flush is a no-op.
func (c *LogCollector) Flush(context.Context) error { return nil }
