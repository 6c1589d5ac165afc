// Package config defines the configuration structure for the SiteScore API.
// Configuration is loaded once at process start and is immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// A missing required value or an invalid format fails startup.
package config

import (
	"time"

	"sitescore/internal/types"
)

// SecretString is an alias for types.SecretString.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the subsets they need.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"sitescore-api"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server        ServerConfig
	Upstream      UpstreamConfig
	EarthEngine   EarthEngineConfig
	LLM           LLMConfig
	Solar         SolarConfig
	Storage       StorageConfig
	Database      DatabaseConfig
	Retention     RetentionConfig
	Observability ObservabilityConfig

	// Injected via ldflags, not env.
	Build BuildInfo
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string        `envconfig:"PORT" default:"8000"`
	RequestTimeout     time.Duration `envconfig:"REQUEST_TIMEOUT" default:"5m" validate:"gt=0"`
	CorsAllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// UpstreamConfig holds the endpoints and resilience settings shared by the
// climate and geographic-feature gateways.
type UpstreamConfig struct {
	NASAPowerURL string        `envconfig:"NASA_POWER_URL" default:"https://power.larc.nasa.gov/api/temporal" validate:"required,url"`
	OverpassURL  string        `envconfig:"OVERPASS_URL" default:"https://overpass-api.de/api/interpreter" validate:"required,url"`
	Timeout      time.Duration `envconfig:"UPSTREAM_TIMEOUT" default:"90s" validate:"gt=0"`
	MaxRetries   int           `envconfig:"UPSTREAM_MAX_RETRIES" default:"0" validate:"gte=0,lte=5"`
	UserAgent    string        `envconfig:"UPSTREAM_USER_AGENT" default:"SiteScore/1.0"`
	SearchRadius int           `envconfig:"FEATURE_SEARCH_RADIUS_M" default:"5000" validate:"gt=0"`
}

// EarthEngineConfig holds the managed imagery platform settings. When
// AccessToken is empty, Application Default Credentials are used.
type EarthEngineConfig struct {
	BaseURL     string       `envconfig:"EARTH_ENGINE_URL" default:"https://earthengine.googleapis.com" validate:"required,url"`
	Project     string       `envconfig:"EARTH_ENGINE_PROJECT"`
	AccessToken SecretString `envconfig:"EARTH_ENGINE_TOKEN"`
}

// LLMConfig holds the summarization gateway settings.
type LLMConfig struct {
	BaseURL string        `envconfig:"GEMINI_URL" default:"https://generativelanguage.googleapis.com" validate:"required,url"`
	APIKey  SecretString  `envconfig:"GEMINI_API_KEY"`
	Model   string        `envconfig:"GEMINI_MODEL" default:"gemini-1.5-pro"`
	Timeout time.Duration `envconfig:"GEMINI_TIMEOUT" default:"120s" validate:"gt=0"`
}

// SolarConfig holds the irradiance history window and the regression model
// hyperparameters.
type SolarConfig struct {
	HistoryStart    string `envconfig:"SOLAR_HISTORY_START" default:"20100101" validate:"len=8,numeric"`
	HistoryEnd      string `envconfig:"SOLAR_HISTORY_END" default:"20241231" validate:"len=8,numeric"`
	Trees           int    `envconfig:"SOLAR_MODEL_TREES" default:"200" validate:"gt=0"`
	MaxDepth        int    `envconfig:"SOLAR_MODEL_MAX_DEPTH" default:"10" validate:"gt=0"`
	Seed            uint64 `envconfig:"SOLAR_MODEL_SEED" default:"42"`
	TrainWorkers    int    `envconfig:"SOLAR_TRAIN_WORKERS" default:"4" validate:"gt=0"`
	ModelCacheSize  int    `envconfig:"MODEL_CACHE_SIZE" default:"256" validate:"gt=0"`
	SeriesCacheSize int    `envconfig:"SERIES_CACHE_SIZE" default:"256" validate:"gt=0"`
}

// StorageConfig selects the artifact backend for models and PDFs.
type StorageConfig struct {
	Backend     string `envconfig:"STORAGE_BACKEND" default:"local" validate:"oneof=local s3"`
	Dir         string `envconfig:"STORAGE_DIR" default:"data"`
	Bucket      string `envconfig:"STORAGE_BUCKET" validate:"required_if=Backend s3"`
	Region      string `envconfig:"AWS_REGION" default:"us-east-1"`
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// DatabaseConfig holds the optional report ledger connection. An empty URL
// disables the ledger.
type DatabaseConfig struct {
	URL      SecretString `envconfig:"DATABASE_URL"`
	MaxConns int32        `envconfig:"DB_MAX_CONNS" default:"5" validate:"gt=0"`
}

// RetentionConfig controls artifact expiry. A zero duration keeps artifacts
// forever.
type RetentionConfig struct {
	Reports  time.Duration `envconfig:"ARTIFACT_RETENTION" default:"0s" validate:"gte=0"`
	Models   time.Duration `envconfig:"MODEL_RETENTION" default:"0s" validate:"gte=0"`
	Interval time.Duration `envconfig:"JANITOR_INTERVAL" default:"1h" validate:"gt=0"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricsEnabled  bool   `envconfig:"METRICS_ENABLED" default:"false"`
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"SiteScore"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	ErrValidation    ConfigErrorType = "VALIDATION_FAILED"
	ErrParsing       ConfigErrorType = "PARSING_FAILED"
)
