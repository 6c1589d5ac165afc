package external

import (
	"context"

	"sitescore/internal/types"
)

// ClimateSource fetches climate time series for a coordinate.
type ClimateSource interface {
	// Irradiance returns daily all-sky surface shortwave irradiance
	// (kWh/m²/day) over the configured history window.
	Irradiance(ctx context.Context, c types.Coordinate) (types.Series, error)
	// WindSpeed returns monthly mean 10 m wind speed (m/s).
	WindSpeed(ctx context.Context, c types.Coordinate) (types.Series, error)
	// Precipitation returns daily corrected precipitation (mm/day).
	Precipitation(ctx context.Context, c types.Coordinate) (types.Series, error)
}

// FeatureSource queries mapped geographic features around a coordinate.
type FeatureSource interface {
	// LandUse returns the distinct landuse tag values nearby.
	LandUse(ctx context.Context, c types.Coordinate) (map[string]struct{}, error)
	// Infrastructure counts nearby roads and power ways.
	Infrastructure(ctx context.Context, c types.Coordinate) (int, error)
	// Turbines counts nearby wind generators.
	Turbines(ctx context.Context, c types.Coordinate) (int, error)
}

// Coverage is the vegetation breakdown of the area around a coordinate, as
// fractions in [0,1].
type Coverage struct {
	Green  float64
	Barren float64
}

// ImagerySource evaluates raster datasets on the imagery platform.
type ImagerySource interface {
	// SoilTexture returns the USDA texture class at the point. ok is false
	// when the platform has no value there.
	SoilTexture(ctx context.Context, c types.Coordinate) (value float64, ok bool, err error)
	// Slope returns the terrain slope in degrees at the point.
	Slope(ctx context.Context, c types.Coordinate) (value float64, ok bool, err error)
	// Coverage returns vegetation coverage within the search radius. A nil
	// result with nil error means no imagery is available.
	Coverage(ctx context.Context, c types.Coordinate) (*Coverage, error)
}

// Summarizer turns a prompt into generated text.
type Summarizer interface {
	Summarize(ctx context.Context, prompt string) (string, error)
}
