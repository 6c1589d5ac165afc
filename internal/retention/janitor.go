// Package retention expires stored artifacts. Rendered reports and trained
// models each have their own TTL; a zero TTL keeps that prefix forever.
package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"sitescore/internal/report"
	"sitescore/internal/solar"
	"sitescore/internal/storage"
	"sitescore/internal/types"
)

// BlobStore is the subset of storage.BlobStore the janitor needs.
type BlobStore interface {
	List(ctx context.Context, prefix string) ([]storage.BlobInfo, error)
	Delete(ctx context.Context, key string) error
}

// Ledger removes expired report rows and returns their storage keys.
type Ledger interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) ([]string, error)
}

// ModelEvictor drops an in-memory model once its blob is deleted. Optional.
type ModelEvictor interface {
	EvictKey(key string)
}

// Recorder receives expiry counts. Optional.
type Recorder interface {
	RecordCount(ctx context.Context, metric string, value float64, dims map[string]string)
}

// JanitorConfig assembles a Janitor.
type JanitorConfig struct {
	Store    BlobStore
	Ledger   Ledger // nil when the report ledger is disabled
	Models   ModelEvictor
	Recorder Recorder
	Logger   *slog.Logger

	ReportTTL time.Duration
	ModelTTL  time.Duration
}

// SweepResult counts the artifacts removed by one sweep.
type SweepResult struct {
	Reports int `json:"reports"`
	Models  int `json:"models"`
}

// Janitor deletes artifacts older than their TTL.
type Janitor struct {
	store     BlobStore
	ledger    Ledger
	models    ModelEvictor
	recorder  Recorder
	logger    *slog.Logger
	reportTTL time.Duration
	modelTTL  time.Duration
}

// NewJanitor creates a Janitor.
func NewJanitor(cfg JanitorConfig) *Janitor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		store:     cfg.Store,
		ledger:    cfg.Ledger,
		models:    cfg.Models,
		recorder:  cfg.Recorder,
		logger:    logger.With("component", "janitor"),
		reportTTL: cfg.ReportTTL,
		modelTTL:  cfg.ModelTTL,
	}
}

// Enabled reports whether any TTL is set.
func (j *Janitor) Enabled() bool {
	return j.reportTTL > 0 || j.modelTTL > 0
}

// Sweep runs one expiry pass relative to now. A failure on one prefix does
// not stop the other; all failures are joined into the returned error.
func (j *Janitor) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	var res SweepResult
	var errs []error

	if j.reportTTL > 0 {
		n, err := j.expireReports(ctx, now.Add(-j.reportTTL))
		res.Reports = n
		if err != nil {
			errs = append(errs, err)
		}
		j.record(ctx, report.PDFPrefix, n)
	}

	if j.modelTTL > 0 {
		n, err := j.expirePrefix(ctx, solar.ModelPrefix, now.Add(-j.modelTTL), j.evictModel)
		res.Models = n
		if err != nil {
			errs = append(errs, err)
		}
		j.record(ctx, solar.ModelPrefix, n)
	}

	if res.Reports > 0 || res.Models > 0 {
		j.logger.InfoContext(ctx, "expired artifacts",
			"reports", res.Reports,
			"models", res.Models,
		)
	}
	return res, errors.Join(errs...)
}

// expireReports deletes the ledger rows first so the list endpoint never
// links to a deleted PDF, then sweeps the prefix for PDFs the ledger never
// recorded.
func (j *Janitor) expireReports(ctx context.Context, cutoff time.Time) (int, error) {
	deleted := 0
	var errs []error

	if j.ledger != nil {
		keys, err := j.ledger.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			errs = append(errs, fmt.Errorf("expire report rows: %w", err))
		}
		for _, key := range keys {
			if err := j.store.Delete(ctx, key); err != nil {
				errs = append(errs, fmt.Errorf("delete %s: %w", key, err))
				continue
			}
			deleted++
		}
	}

	n, err := j.expirePrefix(ctx, report.PDFPrefix, cutoff, nil)
	deleted += n
	if err != nil {
		errs = append(errs, err)
	}
	return deleted, errors.Join(errs...)
}

// expirePrefix deletes blobs under prefix modified before cutoff, calling
// onDelete for each one removed.
func (j *Janitor) expirePrefix(ctx context.Context, prefix string, cutoff time.Time, onDelete func(key string)) (int, error) {
	blobs, err := j.store.List(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("list %s: %w", prefix, err)
	}

	deleted := 0
	var errs []error
	for _, b := range blobs {
		if !b.ModTime.Before(cutoff) {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := j.store.Delete(ctx, b.Key); err != nil {
			j.logger.WarnContext(ctx, "failed to delete expired artifact", "key", b.Key, "error", err)
			errs = append(errs, fmt.Errorf("delete %s: %w", b.Key, err))
			continue
		}
		if onDelete != nil {
			onDelete(b.Key)
		}
		deleted++
	}
	return deleted, errors.Join(errs...)
}

func (j *Janitor) evictModel(key string) {
	if j.models != nil {
		j.models.EvictKey(key)
	}
}

func (j *Janitor) record(ctx context.Context, prefix string, n int) {
	if j.recorder == nil || n == 0 {
		return
	}
	j.recorder.RecordCount(ctx, types.MetricArtifactsExpired, float64(n), map[string]string{types.DimPrefix: prefix})
}

// Run sweeps every interval until ctx is cancelled. It returns immediately
// when no TTL is set.
func (j *Janitor) Run(ctx context.Context, interval time.Duration) {
	if !j.Enabled() {
		return
	}
	j.logger.InfoContext(ctx, "janitor started",
		"interval", interval.String(),
		"report_ttl", j.reportTTL.String(),
		"model_ttl", j.modelTTL.String(),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if _, err := j.Sweep(ctx, now); err != nil {
				j.logger.ErrorContext(ctx, "retention sweep failed", "error", err)
			}
		}
	}
}
