package solar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"sitescore/internal/storage"
	"sitescore/internal/types"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// ModelPrefix is the blob-store prefix for persisted models.
const ModelPrefix = "models/"

// ModelKey returns the blob key for a coordinate's model.
func ModelKey(c types.Coordinate) string {
	return ModelPrefix + c.Key() + ".model"
}

// IrradianceSource supplies the daily irradiance history a model trains on.
type IrradianceSource interface {
	Irradiance(ctx context.Context, c types.Coordinate) (types.Series, error)
}

// Trainer fits a forest to an irradiance history.
type Trainer interface {
	Train(ctx context.Context, series types.Series) (*Forest, error)
}

// ForestTrainer is the production Trainer.
type ForestTrainer struct {
	Config TrainConfig
}

// Train implements Trainer.
func (t ForestTrainer) Train(ctx context.Context, series types.Series) (*Forest, error) {
	X := make([][]float64, len(series))
	y := make([]float64, len(series))
	for i, s := range series {
		X[i] = Features(s.Year, s.Month, s.DayOfYear)
		y[i] = s.Value
	}
	return Train(ctx, X, y, t.Config)
}

// Features returns the model input vector.
func Features(year, month, dayOfYear int) []float64 {
	return []float64{float64(year), float64(month), float64(dayOfYear)}
}

// Recorder receives model cache events. Optional.
type Recorder interface {
	RecordCount(ctx context.Context, metric string, value float64, dims map[string]string)
}

// SeriesCache memoizes irradiance histories per coordinate.
type SeriesCache struct {
	source IrradianceSource
	cache  *lru.Cache[string, types.Series]
	group  singleflight.Group
}

var _ IrradianceSource = (*SeriesCache)(nil)

// NewSeriesCache wraps source with an LRU of the given size.
func NewSeriesCache(source IrradianceSource, size int) (*SeriesCache, error) {
	cache, err := lru.New[string, types.Series](size)
	if err != nil {
		return nil, fmt.Errorf("solar: creating series cache: %w", err)
	}
	return &SeriesCache{source: source, cache: cache}, nil
}

// Irradiance implements IrradianceSource. Failures are not cached.
func (c *SeriesCache) Irradiance(ctx context.Context, coord types.Coordinate) (types.Series, error) {
	key := coord.Key()
	if s, ok := c.cache.Get(key); ok {
		return s, nil
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		s, err := c.source.Irradiance(ctx, coord)
		if err != nil {
			return nil, err
		}
		c.cache.Add(key, s)
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(types.Series), nil
}

// ModelCacheConfig assembles a ModelCache.
type ModelCacheConfig struct {
	Size     int
	Store    storage.BlobStore
	Series   IrradianceSource
	Trainer  Trainer
	Recorder Recorder
	Logger   *slog.Logger
}

// ModelCache resolves a coordinate's forest from memory, then the blob
// store, then by training and persisting a new one. Concurrent misses on the
// same key share one load or training run.
type ModelCache struct {
	mem      *lru.Cache[string, *Forest]
	store    storage.BlobStore
	series   IrradianceSource
	trainer  Trainer
	recorder Recorder
	logger   *slog.Logger
	group    singleflight.Group
}

// NewModelCache creates a ModelCache.
func NewModelCache(cfg ModelCacheConfig) (*ModelCache, error) {
	if cfg.Store == nil || cfg.Series == nil || cfg.Trainer == nil {
		return nil, errors.New("solar: model cache requires a store, a series source and a trainer")
	}
	mem, err := lru.New[string, *Forest](cfg.Size)
	if err != nil {
		return nil, fmt.Errorf("solar: creating model cache: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ModelCache{
		mem:      mem,
		store:    cfg.Store,
		series:   cfg.Series,
		trainer:  cfg.Trainer,
		recorder: cfg.Recorder,
		logger:   logger,
	}, nil
}

// Get returns the model for coord. The caller's cancellation abandons the
// wait but not a shared load, which completes for the other waiters.
func (m *ModelCache) Get(ctx context.Context, coord types.Coordinate) (*Forest, error) {
	key := ModelKey(coord)
	if f, ok := m.mem.Get(key); ok {
		return f, nil
	}

	ch := m.group.DoChan(key, func() (any, error) {
		return m.load(context.WithoutCancel(ctx), coord, key)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Forest), nil
	}
}

// Evict drops a coordinate's model from memory. The persisted copy stays.
func (m *ModelCache) Evict(coord types.Coordinate) {
	m.EvictKey(ModelKey(coord))
}

// EvictKey drops the model stored under a blob key from memory.
func (m *ModelCache) EvictKey(key string) {
	m.mem.Remove(key)
}

// Len reports how many models are held in memory.
func (m *ModelCache) Len() int {
	return m.mem.Len()
}

func (m *ModelCache) load(ctx context.Context, coord types.Coordinate, key string) (*Forest, error) {
	if f, ok := m.mem.Get(key); ok {
		return f, nil
	}
	logger := types.LoggerFromContext(ctx, m.logger).With("model_key", key)

	data, err := m.store.Get(ctx, key)
	switch {
	case err == nil:
		f, decodeErr := DecodeModel(key, data)
		if decodeErr == nil {
			m.mem.Add(key, f)
			logger.InfoContext(ctx, "model loaded from store", "bytes", len(data))
			return f, nil
		}
		logger.WarnContext(ctx, "persisted model unreadable; retraining", "error", decodeErr)
	case isNotFound(err):
	default:
		return nil, err
	}

	series, err := m.series.Irradiance(ctx, coord)
	if err != nil {
		return nil, err
	}
	if len(series) == 0 {
		return nil, types.NewAppError(types.ErrCodeUpstreamClimate, "irradiance history is empty", nil)
	}

	began := time.Now()
	f, err := m.trainer.Train(ctx, series)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalModel, "model training failed", err)
	}
	logger.InfoContext(ctx, "model trained",
		"samples", len(series),
		"trees", len(f.Trees),
		"duration_ms", time.Since(began).Milliseconds(),
	)
	if m.recorder != nil {
		m.recorder.RecordCount(ctx, types.MetricModelTrained, 1, nil)
	}

	encoded, err := EncodeModel(key, len(series), f)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalModel, "model serialization failed", err)
	}
	if err := m.store.Put(ctx, key, encoded, "application/octet-stream"); err != nil {
		// The model stays usable from memory; the next process retrains.
		logger.ErrorContext(ctx, "failed to persist model", "error", err)
	}

	m.mem.Add(key, f)
	return f, nil
}

func isNotFound(err error) bool {
	var appErr *types.AppError
	return errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundArtifact
}
