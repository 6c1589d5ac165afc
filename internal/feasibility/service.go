package feasibility

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"sitescore/internal/external"
	"sitescore/internal/types"
)

// Solar request defaults.
const (
	DefaultSolarYear  = 2025
	DefaultSolarMonth = 1
)

// SolarPredictor estimates daily irradiance for a coordinate and month.
type SolarPredictor interface {
	Predict(ctx context.Context, coord types.Coordinate, year, month int) (float64, error)
}

// ServiceConfig assembles a Service.
type ServiceConfig struct {
	Climate  external.ClimateSource
	Features external.FeatureSource
	Imagery  external.ImagerySource
	Solar    SolarPredictor

	// PrecipitationYears annualizes the precipitation total.
	PrecipitationYears int

	Logger *slog.Logger
}

// Service gathers gateway observations for a coordinate and evaluates them.
// Upstream failures never fail an evaluation; they degrade to unavailable
// inputs and are logged at WARN.
type Service struct {
	climate     external.ClimateSource
	features    external.FeatureSource
	imagery     external.ImagerySource
	solar       SolarPredictor
	precipYears int
	logger      *slog.Logger
}

// NewService creates a Service.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		climate:     cfg.Climate,
		features:    cfg.Features,
		imagery:     cfg.Imagery,
		solar:       cfg.Solar,
		precipYears: cfg.PrecipitationYears,
		logger:      logger,
	}
}

// Solar predicts irradiance on the 15th of the given month and bands it.
func (s *Service) Solar(ctx context.Context, coord types.Coordinate, year, month int) *types.Verdict {
	prediction, err := s.solar.Predict(ctx, coord, year, month)
	if err != nil {
		s.degraded(ctx, "solar_model", coord, err)
		return SolarFailure()
	}
	return EvaluateSolar(prediction)
}

// Wind fetches wind speed and the three feature lookups concurrently, then
// applies the wind rules.
func (s *Service) Wind(ctx context.Context, coord types.Coordinate) *types.Verdict {
	var in WindInputs
	var g errgroup.Group

	g.Go(func() error {
		series, err := s.climate.WindSpeed(ctx, coord)
		switch {
		case err != nil:
			s.degraded(ctx, "wind_speed", coord, err)
		case len(series) == 0:
			s.logger.WarnContext(ctx, "wind speed series is empty", "coordinate", coord.Key())
		default:
			in.Speed = types.Measured(series.Mean())
		}
		return nil
	})
	g.Go(func() error {
		tags, err := s.features.LandUse(ctx, coord)
		if err != nil {
			s.degraded(ctx, SourceLandUse, coord, err)
			return nil
		}
		in.LandUse, in.LandUseAvailable = tags, true
		return nil
	})
	g.Go(func() error {
		n, err := s.features.Infrastructure(ctx, coord)
		if err != nil {
			s.degraded(ctx, SourceInfrastructure, coord, err)
			return nil
		}
		in.Infrastructure = types.Measured(float64(n))
		return nil
	})
	g.Go(func() error {
		n, err := s.features.Turbines(ctx, coord)
		if err != nil {
			s.degraded(ctx, SourceTurbines, coord, err)
			return nil
		}
		in.Turbines = types.Measured(float64(n))
		return nil
	})
	_ = g.Wait()

	return EvaluateWind(in)
}

// Water combines rainfall, soil and slope into the water-harvesting score.
func (s *Service) Water(ctx context.Context, coord types.Coordinate) *types.Verdict {
	var in WaterInputs
	var g errgroup.Group

	g.Go(func() error {
		series, err := s.climate.Precipitation(ctx, coord)
		if err != nil {
			s.degraded(ctx, SourceRainfall, coord, err)
			return nil
		}
		in.Rainfall = types.Measured(RainfallScore(series.Sum(), s.precipYears))
		return nil
	})
	g.Go(func() error {
		class, ok, err := s.imagery.SoilTexture(ctx, coord)
		switch {
		case err != nil:
			s.degraded(ctx, SourceSoil, coord, err)
		case !ok:
			s.logger.WarnContext(ctx, "no soil texture at point", "coordinate", coord.Key())
		default:
			in.Soil = types.Measured(SoilScore(class))
		}
		return nil
	})
	g.Go(func() error {
		degrees, ok, err := s.imagery.Slope(ctx, coord)
		switch {
		case err != nil:
			s.degraded(ctx, SourceSlope, coord, err)
		case !ok:
			s.logger.WarnContext(ctx, "no slope at point", "coordinate", coord.Key())
		default:
			in.Slope = types.Measured(SlopeScore(degrees))
		}
		return nil
	})
	_ = g.Wait()

	return EvaluateWater(in)
}

// Green evaluates vegetation coverage for afforestation.
func (s *Service) Green(ctx context.Context, coord types.Coordinate) *types.Verdict {
	cov, err := s.imagery.Coverage(ctx, coord)
	if err != nil {
		s.degraded(ctx, SourceImagery, coord, err)
		return GreenNoData().With(MetricUnavailableSources, []string{SourceImagery})
	}
	if cov == nil {
		return GreenNoData()
	}
	return EvaluateGreen(cov.Green, cov.Barren)
}

func (s *Service) degraded(ctx context.Context, input string, coord types.Coordinate, err error) {
	types.LoggerFromContext(ctx, s.logger).WarnContext(ctx, "upstream input unavailable",
		"input", input,
		"coordinate", coord.Key(),
		"error", err,
	)
}
