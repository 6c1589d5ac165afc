// Package main is the entry point for the SiteScore API server.
//
// It loads configuration, wires the gateways, the solar model cache, the
// feasibility evaluators, the report orchestrator and the optional report
// ledger into the core chassis, and serves requests.
//
// Outside AWS Lambda it runs a standard HTTP server on the configured port.
// Inside Lambda it adapts API Gateway HTTP API events to the same router.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sitescore/internal/api/handlers"
	"sitescore/internal/config"
	"sitescore/internal/core"
	"sitescore/internal/db"
	"sitescore/internal/external"
	"sitescore/internal/feasibility"
	"sitescore/internal/report"
	"sitescore/internal/retention"
	"sitescore/internal/solar"
	"sitescore/internal/storage"
	"sitescore/internal/telemetry"
)

// metricsFlushInterval is how often buffered CloudWatch datums are shipped.
const metricsFlushInterval = time.Minute

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	// SSM resolution is skipped when APP_ENV=local.
	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("sitescore API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	a.startBackground(ctx, cfg)

	if isLambdaEnvironment() {
		return runLambda(a.srv, logger)
	}
	return runHTTPServer(a.srv, cfg, logger)
}

// app holds the assembled server and its background workers.
type app struct {
	srv     *core.Server
	store   storage.BlobStore
	metrics telemetry.Collector
	janitor *retention.Janitor
}

// buildApp constructs every dependency from cfg and mounts the routes.
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}

	metrics, err := telemetry.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating metrics collector: %w", err)
	}
	srv.Metrics = metrics
	srv.Closers = append(srv.Closers, metrics.Flush)

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("creating artifact store: %w", err)
	}
	srv.HealthProbes = append(srv.HealthProbes, core.HealthProbeFunc{ProbeName: "storage", Fn: store.Ping})

	gateways, err := external.NewClientRegistry(ctx, cfg, logger,
		external.WithRegistryOutcomeFunc(metrics.RecordUpstream))
	if err != nil {
		return nil, fmt.Errorf("creating gateways: %w", err)
	}

	series, err := solar.NewSeriesCache(gateways.Climate, cfg.Solar.SeriesCacheSize)
	if err != nil {
		return nil, err
	}
	models, err := solar.NewModelCache(solar.ModelCacheConfig{
		Size:   cfg.Solar.ModelCacheSize,
		Store:  store,
		Series: series,
		Trainer: solar.ForestTrainer{Config: solar.TrainConfig{
			Trees:    cfg.Solar.Trees,
			MaxDepth: cfg.Solar.MaxDepth,
			Seed:     cfg.Solar.Seed,
			Workers:  cfg.Solar.TrainWorkers,
		}},
		Recorder: metrics,
		Logger:   logger.With("component", "model_cache"),
	})
	if err != nil {
		return nil, err
	}

	evaluator := feasibility.NewService(feasibility.ServiceConfig{
		Climate:            gateways.Climate,
		Features:           gateways.Features,
		Imagery:            gateways.Imagery,
		Solar:              solar.NewPredictor(models),
		PrecipitationYears: gateways.PrecipitationYears,
		Logger:             logger.With("component", "feasibility"),
	})

	// The ledger is optional; its interfaces must stay untyped nil when it
	// is disabled.
	var (
		ledger      report.Ledger
		lister      handlers.ReportLister
		janitorRows retention.Ledger
	)
	if cfg.Database.URL.IsSet() {
		pool, err := db.NewPool(ctx, cfg.Database.URL.Unmask(), cfg.Database.MaxConns)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		repo := db.NewReportRepository(pool)
		ledger, lister, janitorRows = repo, repo, repo

		srv.HealthProbes = append(srv.HealthProbes, core.HealthProbeFunc{ProbeName: "ledger", Fn: pool.Ping})
		srv.Closers = append(srv.Closers, func(context.Context) error {
			pool.Close()
			return nil
		})
		logger.Info("report ledger enabled")
	}

	orchestrator := report.NewOrchestrator(report.OrchestratorConfig{
		Evaluator:  evaluator,
		Summarizer: gateways.LLM,
		Renderer:   report.NewRenderer(),
		Store:      store,
		Ledger:     ledger,
		Recorder:   metrics,
		Logger:     logger.With("component", "report"),
		SolarYear:  feasibility.DefaultSolarYear,
		SolarMonth: feasibility.DefaultSolarMonth,
	})

	siteHandler := handlers.NewSiteHandler(evaluator, orchestrator, srv.Validator, logger,
		handlers.WithHistoryEnd(cfg.Solar.HistoryEnd))
	artifactHandler := handlers.NewArtifactHandler(store, lister, logger)
	srv.RouteRegistrars = append(srv.RouteRegistrars, siteHandler.RegisterRoutes, artifactHandler.RegisterRoutes)

	srv.MountRoutes()

	janitor := retention.NewJanitor(retention.JanitorConfig{
		Store:     store,
		Ledger:    janitorRows,
		Models:    models,
		Recorder:  metrics,
		Logger:    logger,
		ReportTTL: cfg.Retention.Reports,
		ModelTTL:  cfg.Retention.Models,
	})

	return &app{srv: srv, store: store, metrics: metrics, janitor: janitor}, nil
}

// startBackground launches the metric flusher and the retention janitor.
// Both stop when ctx is cancelled.
func (a *app) startBackground(ctx context.Context, cfg *config.Config) {
	if cw, ok := a.metrics.(*telemetry.CloudWatchCollector); ok {
		go cw.Run(ctx, metricsFlushInterval)
	}
	go a.janitor.Run(ctx, cfg.Retention.Interval)
}

// isLambdaEnvironment returns true if the process is running inside AWS Lambda.
func isLambdaEnvironment() bool {
	_, hasRuntimeAPI := os.LookupEnv("AWS_LAMBDA_RUNTIME_API")
	_, hasServerPort := os.LookupEnv("_LAMBDA_SERVER_PORT")
	return hasRuntimeAPI || hasServerPort
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port
	// WriteTimeout covers the slowest /getall run, which trains a model and
	// waits on the LLM.
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Server.RequestTimeout + 30*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	// Ledger pool and metric buffer.
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: lvl,
	})
	return slog.New(handler)
}
