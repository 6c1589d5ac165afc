// Package feasibility turns gateway observations into site verdicts for solar,
// wind, water-harvesting and afforestation projects.
//
// The Evaluate* functions are pure: every threshold and message lives here and
// none of them performs I/O. Service gathers the observations and calls them.
package feasibility

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"sitescore/internal/types"
)

// Solar irradiance bands in kWh/m²/day.
const (
	SolarExcellentAbove = 5.0
	SolarGoodFrom       = 3.5
	SolarModerateFrom   = 2.0
)

// Solar recommendation texts, one per band.
const (
	SolarExcellent = "✅ Excellent potential! Installing solar is a great investment."
	SolarGood      = "👍 Good potential. Solar installation is beneficial."
	SolarModerate  = "⚠️ Moderate potential. Consider additional analysis before installation."
	SolarLow       = "❌ Low potential. Solar may not be a cost-effective option."

	SolarFailureMessage = "Failed to fetch or train model."
)

// Wind thresholds in m/s and feature counts.
const (
	MinWindSpeed          = 3.5
	HorizontalAxisFrom    = 6.5
	MinInfrastructureWays = 5
)

// Recommended turbine types.
const (
	TurbineVAWT = "VAWT (Vertical Axis Wind Turbine)"
	TurbineHAWT = "HAWT (Horizontal Axis Wind Turbine)"
)

// Wind verdict messages.
const (
	WindDataFailureMessage = "Failed to fetch wind data"
	WindTooLowMessage      = "Wind speed too low for a wind farm."
	WindNoInfraMessage     = "No roads or power grid nearby → Wind farm not feasible."
	WindFeasibleMessage    = "Wind farm feasible!"
)

// UnsuitableWindLandUse lists the land-use tags that rule out a wind farm.
var UnsuitableWindLandUse = []string{"residential", "industrial", "urban"}

// Water-harvesting weights and normalization divisors.
const (
	RainfallWeight = 0.5
	SoilWeight     = 0.3
	SlopeWeight    = 0.2

	RainfallScaleMM = 1000.0
	SoilScale       = 100.0
	SlopeScaleDeg   = 45.0
)

// Afforestation thresholds on coverage fractions. Both comparisons are strict.
const (
	MinGreenCoverage  = 0.2
	MinBarrenCoverage = 0.1

	GreenFeasibleMessage    = "Afforestation is feasible in this area."
	GreenNotFeasibleMessage = "Afforestation is not feasible in this area."
	GreenNoDataMessage      = "No valid land cover data available for this area."
)

// Source names reported under the unavailable_sources metric.
const (
	SourceTurbines       = "turbines"
	SourceLandUse        = "land_use"
	SourceInfrastructure = "infrastructure"
	SourceRainfall       = "rainfall"
	SourceSoil           = "soil"
	SourceSlope          = "slope"
	SourceImagery        = "imagery"
)

// MetricUnavailableSources is the verdict metric naming the inputs whose
// upstream could not be reached.
const MetricUnavailableSources = "unavailable_sources"

// EvaluateSolar bands a predicted daily irradiance.
func EvaluateSolar(prediction float64) *types.Verdict {
	var result string
	switch {
	case prediction > SolarExcellentAbove:
		result = SolarExcellent
	case prediction >= SolarGoodFrom:
		result = SolarGood
	case prediction >= SolarModerateFrom:
		result = SolarModerate
	default:
		result = SolarLow
	}
	// A prediction that clamps to zero prints as a bare "0".
	value := "0"
	if rounded := round(prediction, 3); rounded > 0 {
		value = formatDecimal(rounded)
	}
	return &types.Verdict{Metrics: map[string]any{
		"value":  value + " kWh/m²",
		"result": result,
	}}
}

// SolarFailure is the verdict when no model could be obtained.
func SolarFailure() *types.Verdict {
	return &types.Verdict{Message: SolarFailureMessage, Metrics: map[string]any{}}
}

// WindInputs are the observations the wind rules consume. A Score or land-use
// set that is not available came from a failed upstream call.
type WindInputs struct {
	Speed          types.Score
	Turbines       types.Score
	Infrastructure types.Score

	LandUse          map[string]struct{}
	LandUseAvailable bool
}

// EvaluateWind applies the wind rules in precedence order; the first rule that
// matches decides the verdict.
//
// An unavailable turbine count or land-use set skips its rule. An unavailable
// infrastructure count fails the infrastructure rule.
func EvaluateWind(in WindInputs) *types.Verdict {
	if !in.Speed.Available {
		return types.NewVerdict(types.StatusError, WindDataFailureMessage)
	}

	var unavailable []string
	if !in.Turbines.Available {
		unavailable = append(unavailable, SourceTurbines)
	}
	if !in.LandUseAvailable {
		unavailable = append(unavailable, SourceLandUse)
	}
	if !in.Infrastructure.Available {
		unavailable = append(unavailable, SourceInfrastructure)
	}
	withSources := func(v *types.Verdict) *types.Verdict {
		if len(unavailable) > 0 {
			v.With(MetricUnavailableSources, unavailable)
		}
		return v
	}

	if in.Turbines.Available && in.Turbines.Value > 0 {
		msg := fmt.Sprintf("Wind farm already exists with %d turbines.", int(in.Turbines.Value))
		return withSources(types.NewVerdict(types.StatusExists, msg))
	}

	if in.Speed.Value < MinWindSpeed {
		return withSources(types.NewVerdict(types.StatusNotFeasible, WindTooLowMessage).
			With("avg_wind_speed", in.Speed.Value))
	}

	if in.LandUseAvailable && intersects(in.LandUse, UnsuitableWindLandUse) {
		msg := fmt.Sprintf("Land is %s → Not suitable for wind farms.", formatSet(in.LandUse))
		return withSources(types.NewVerdict(types.StatusNotFeasible, msg))
	}

	if !in.Infrastructure.Available || in.Infrastructure.Value < MinInfrastructureWays {
		return withSources(types.NewVerdict(types.StatusNotFeasible, WindNoInfraMessage))
	}

	turbine := TurbineHAWT
	if in.Speed.Value < HorizontalAxisFrom {
		turbine = TurbineVAWT
	}
	return withSources(types.NewVerdict(types.StatusFeasible, WindFeasibleMessage).
		With("avg_wind_speed", formatDecimal(round(in.Speed.Value, 2))+" m/s").
		With("recommended_turbine", turbine))
}

// RainfallScore normalizes a precipitation total in mm over years of record:
// the annual mean divided by 1000, capped at 1.
func RainfallScore(totalMM float64, years int) float64 {
	if years <= 0 {
		return 0
	}
	return clamp01(totalMM / float64(years) / RainfallScaleMM)
}

// SoilScore normalizes a soil texture class value.
func SoilScore(class float64) float64 {
	return clamp01(class / SoilScale)
}

// SlopeScore normalizes a terrain slope in degrees.
func SlopeScore(degrees float64) float64 {
	return clamp01(degrees / SlopeScaleDeg)
}

// WaterInputs are the normalized water-harvesting components.
type WaterInputs struct {
	Rainfall types.Score
	Soil     types.Score
	Slope    types.Score
}

// WaterScore returns the weighted water-harvesting score. Unavailable
// components count as 0.
func WaterScore(in WaterInputs) float64 {
	return RainfallWeight*clamp01(in.Rainfall.Value) +
		SoilWeight*clamp01(in.Soil.Value) +
		SlopeWeight*clamp01(in.Slope.Value)
}

// EvaluateWater reports the three components and the weighted score, each
// with exactly three decimals.
func EvaluateWater(in WaterInputs) *types.Verdict {
	v := &types.Verdict{Metrics: map[string]any{
		"rainfall_score":         fmt.Sprintf("%.3f", clamp01(in.Rainfall.Value)),
		"soil_score":             fmt.Sprintf("%.3f", clamp01(in.Soil.Value)),
		"slope_score":            fmt.Sprintf("%.3f", clamp01(in.Slope.Value)),
		"water_harvesting_score": fmt.Sprintf("%.3f", WaterScore(in)),
	}}

	var unavailable []string
	if !in.Rainfall.Available {
		unavailable = append(unavailable, SourceRainfall)
	}
	if !in.Soil.Available {
		unavailable = append(unavailable, SourceSoil)
	}
	if !in.Slope.Available {
		unavailable = append(unavailable, SourceSlope)
	}
	if len(unavailable) > 0 {
		v.With(MetricUnavailableSources, unavailable)
	}
	return v
}

// GreenFeasible reports whether a site qualifies for afforestation.
func GreenFeasible(green, barren float64) bool {
	return green > MinGreenCoverage && barren > MinBarrenCoverage
}

// EvaluateGreen reports coverage percentages and the afforestation verdict.
func EvaluateGreen(green, barren float64) *types.Verdict {
	feasible := GreenFeasible(green, barren)
	msg := GreenNotFeasibleMessage
	if feasible {
		msg = GreenFeasibleMessage
	}
	return types.NewVerdict(types.StatusSuccess, msg).
		With("green_coverage", fmt.Sprintf("%.2f", green*100)).
		With("barren_coverage", fmt.Sprintf("%.2f", barren*100)).
		With("is_feasible", feasible)
}

// GreenNoData is the verdict when imagery yields no coverage.
func GreenNoData() *types.Verdict {
	return types.NewVerdict(types.StatusError, GreenNoDataMessage)
}

func intersects(set map[string]struct{}, values []string) bool {
	for _, v := range values {
		if _, ok := set[v]; ok {
			return true
		}
	}
	return false
}

// formatSet renders land-use tags as a sorted, braced list.
func formatSet(set map[string]struct{}) string {
	items := make([]string, 0, len(set))
	for k := range set {
		items = append(items, "'"+k+"'")
	}
	sort.Strings(items)
	return "{" + strings.Join(items, ", ") + "}"
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// formatDecimal prints the shortest representation of v, keeping at least one
// fractional digit.
func formatDecimal(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
