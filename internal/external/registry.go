package external

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"sitescore/internal/config"
	"sitescore/internal/types"
)

// ClientRegistry holds every remote data gateway the service uses.
type ClientRegistry struct {
	Climate  ClimateSource
	Features FeatureSource
	Imagery  ImagerySource
	LLM      Summarizer

	// PrecipitationYears is the span of the precipitation window, used to
	// annualize rainfall totals.
	PrecipitationYears int
}

// RegistryOption configures NewClientRegistry.
type RegistryOption func(*registryConfig)

type registryConfig struct {
	onOutcome OutcomeFunc
	transport http.RoundTripper
}

// WithRegistryOutcomeFunc reports every gateway call outcome to fn.
func WithRegistryOutcomeFunc(fn OutcomeFunc) RegistryOption {
	return func(rc *registryConfig) {
		rc.onOutcome = fn
	}
}

// WithTransport overrides the HTTP transport of every gateway.
func WithTransport(rt http.RoundTripper) RegistryOption {
	return func(rc *registryConfig) {
		rc.transport = rt
	}
}

// NewClientRegistry builds the gateways from configuration. In
// APP_ENV=local, gateways without credentials fall back to stubs so the
// service boots without an Earth Engine project or Gemini key.
func NewClientRegistry(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...RegistryOption) (*ClientRegistry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rc := &registryConfig{}
	for _, opt := range opts {
		opt(rc)
	}

	local := cfg.Environment == "local"
	retry := RetryPolicyWithRetries(cfg.Upstream.MaxRetries)
	newBase := func(source string, code types.ErrorCode, timeout time.Duration) *BaseClient {
		var options []BaseClientOption
		if rc.onOutcome != nil {
			options = append(options, WithOutcomeFunc(rc.onOutcome))
		}
		return NewBaseClient(
			&http.Client{Timeout: timeout, Transport: rc.transport},
			ClientOptions{Source: source, ErrCode: code, Retry: retry, UserAgent: cfg.Upstream.UserAgent},
			options...,
		)
	}

	reg := &ClientRegistry{}

	power := NewNASAPowerClient(newBase("nasa_power", types.ErrCodeUpstreamClimate, cfg.Upstream.Timeout), NASAPowerConfig{
		BaseURL:         cfg.Upstream.NASAPowerURL,
		IrradianceStart: cfg.Solar.HistoryStart,
		IrradianceEnd:   cfg.Solar.HistoryEnd,
		Logger:          logger.With("client", "nasa_power"),
	})
	reg.Climate = power
	reg.PrecipitationYears = power.PrecipitationYears()

	reg.Features = NewOverpassClient(newBase("overpass", types.ErrCodeUpstreamFeatures, cfg.Upstream.Timeout), OverpassConfig{
		BaseURL: cfg.Upstream.OverpassURL,
		RadiusM: cfg.Upstream.SearchRadius,
		Logger:  logger.With("client", "overpass"),
	})

	switch {
	case cfg.EarthEngine.Project != "":
		imagery, err := NewEarthEngineClient(ctx, newBase("earth_engine", types.ErrCodeUpstreamImagery, cfg.Upstream.Timeout), EarthEngineConfig{
			BaseURL:     cfg.EarthEngine.BaseURL,
			Project:     cfg.EarthEngine.Project,
			AccessToken: cfg.EarthEngine.AccessToken.Unmask(),
			RadiusM:     cfg.Upstream.SearchRadius,
			Logger:      logger.With("client", "earth_engine"),
		})
		if err != nil {
			return nil, err
		}
		reg.Imagery = imagery
	case local:
		logger.Info("EARTH_ENGINE_PROJECT not set; imagery gateway in STUB mode")
		reg.Imagery = NewStubImagery(logger.With("mode", "stub"))
	default:
		return nil, fmt.Errorf("EARTH_ENGINE_PROJECT is required in %s", cfg.Environment)
	}

	switch {
	case cfg.LLM.APIKey.IsSet():
		reg.LLM = NewGeminiClient(newBase("gemini", types.ErrCodeUpstreamLLM, cfg.LLM.Timeout), GeminiConfig{
			BaseURL: cfg.LLM.BaseURL,
			APIKey:  cfg.LLM.APIKey.Unmask(),
			Model:   cfg.LLM.Model,
			Logger:  logger.With("client", "gemini"),
		})
	case local:
		logger.Info("GEMINI_API_KEY not set; summarization gateway in STUB mode")
		reg.LLM = NewStubSummarizer(logger.With("mode", "stub"))
	default:
		return nil, fmt.Errorf("GEMINI_API_KEY is required in %s", cfg.Environment)
	}

	return reg, nil
}
