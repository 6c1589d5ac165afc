// Package main is the entrypoint for the retention janitor.
//
// Inside AWS Lambda it handles scheduled EventBridge invocations; elsewhere
// it runs one sweep and exits. Each sweep deletes rendered reports older
// than ARTIFACT_RETENTION and trained models older than MODEL_RETENTION.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"

	"sitescore/internal/config"
	"sitescore/internal/db"
	"sitescore/internal/retention"
	"sitescore/internal/storage"
	"sitescore/internal/telemetry"
)

// Sweeper runs one retention pass.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (retention.SweepResult, error)
}

// SweepPayload is the EventBridge input. ReferenceTime overrides the clock
// for backfills.
type SweepPayload struct {
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
}

// Handler holds the janitor dependencies.
type Handler struct {
	Sweeper Sweeper
	Metrics telemetry.Collector
	Logger  *slog.Logger
	Now     func() time.Time
}

// Handle runs one sweep and flushes the recorded metrics.
func (h *Handler) Handle(ctx context.Context, payload SweepPayload) (retention.SweepResult, error) {
	now := h.Now()
	if payload.ReferenceTime != nil {
		now = *payload.ReferenceTime
	}
	start := time.Now()

	res, err := h.Sweeper.Sweep(ctx, now)
	if flushErr := h.Metrics.Flush(ctx); flushErr != nil {
		h.Logger.WarnContext(ctx, "metric flush failed", "error", flushErr)
	}
	if err != nil {
		h.Logger.ErrorContext(ctx, "retention sweep failed",
			"error", err,
			"reports", res.Reports,
			"models", res.Models,
		)
		return res, err
	}

	h.Logger.InfoContext(ctx, "retention sweep complete",
		"reports", res.Reports,
		"models", res.Models,
		"reference_time", now.Format(time.RFC3339),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	h, cleanup, err := newHandler(context.Background(), logger)
	if err != nil {
		logger.Error("janitor initialization failed", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	if isLambdaEnvironment() {
		lambda.Start(h.Handle)
		return
	}

	if _, err := h.Handle(context.Background(), SweepPayload{}); err != nil {
		cleanup()
		os.Exit(1)
	}
}

// newHandler wires the janitor from configuration. The returned cleanup
// closes the ledger pool when one was opened.
func newHandler(ctx context.Context, logger *slog.Logger) (*Handler, func(), error) {
	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return nil, nil, fmt.Errorf("creating artifact store: %w", err)
	}
	metrics, err := telemetry.New(ctx, cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("creating metrics collector: %w", err)
	}

	cleanup := func() {}
	var ledger retention.Ledger
	if cfg.Database.URL.IsSet() {
		pool, err := db.NewPool(ctx, cfg.Database.URL.Unmask(), cfg.Database.MaxConns)
		if err != nil {
			return nil, nil, err
		}
		ledger = db.NewReportRepository(pool)
		cleanup = pool.Close
	}

	if cfg.Retention.Reports == 0 && cfg.Retention.Models == 0 {
		logger.Warn("ARTIFACT_RETENTION and MODEL_RETENTION are both zero; sweeps are no-ops")
	}

	janitor := retention.NewJanitor(retention.JanitorConfig{
		Store:     store,
		Ledger:    ledger,
		Recorder:  metrics,
		Logger:    logger,
		ReportTTL: cfg.Retention.Reports,
		ModelTTL:  cfg.Retention.Models,
	})

	return &Handler{
		Sweeper: janitor,
		Metrics: metrics,
		Logger:  logger,
		Now:     time.Now,
	}, cleanup, nil
}

// isLambdaEnvironment returns true if the process is running inside AWS Lambda.
func isLambdaEnvironment() bool {
	_, hasRuntimeAPI := os.LookupEnv("AWS_LAMBDA_RUNTIME_API")
	_, hasFunctionName := os.LookupEnv("AWS_LAMBDA_FUNCTION_NAME")
	return hasRuntimeAPI || hasFunctionName
}
