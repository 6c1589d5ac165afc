package core

import (
	"context"
	"time"

	"github.com/go-chi/chi/v5"
)

// MetricsCollector records API telemetry. Implementations publish request
// latency and count under types.MetricAPILatency and types.MetricAPIRequests.
type MetricsCollector interface {
	RecordRequest(method, endpoint, status string, duration time.Duration)
}

// HealthProbe is one subsystem check reported by GET /health.
type HealthProbe interface {
	// Name identifies the probe in the response (e.g. "storage", "ledger").
	Name() string

	// Check returns an error when the subsystem is unreachable. It must
	// respect the context deadline.
	Check(ctx context.Context) error
}

// HealthProbeFunc adapts a function to HealthProbe.
type HealthProbeFunc struct {
	ProbeName string
	Fn        func(ctx context.Context) error
}

func (p HealthProbeFunc) Name() string                    { return p.ProbeName }
func (p HealthProbeFunc) Check(ctx context.Context) error { return p.Fn(ctx) }

// RouteRegistrar mounts a group of handlers on the router. Handler packages
// provide registrars so core never imports them.
type RouteRegistrar func(r chi.Router)
