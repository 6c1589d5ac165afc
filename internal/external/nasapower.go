package external

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"sitescore/internal/types"
)

const (
	nasaPowerBase = "https://power.larc.nasa.gov/api/temporal"

	paramIrradiance    = "ALLSKY_SFC_SW_DWN"
	paramWindSpeed     = "WS10M"
	paramPrecipitation = "PRECTOTCORR"
)

// NASAPowerConfig holds the query windows for each series. Daily windows are
// YYYYMMDD, monthly windows are YYYY.
type NASAPowerConfig struct {
	BaseURL string // defaults to nasaPowerBase

	IrradianceStart, IrradianceEnd       string
	WindStart, WindEnd                   string
	PrecipitationStart, PrecipitationEnd string

	Logger *slog.Logger
}

func (c *NASAPowerConfig) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = nasaPowerBase
	}
	setDefault(&c.IrradianceStart, "20100101")
	setDefault(&c.IrradianceEnd, "20241231")
	setDefault(&c.WindStart, "2011")
	setDefault(&c.WindEnd, "2022")
	setDefault(&c.PrecipitationStart, "19810101")
	setDefault(&c.PrecipitationEnd, "20241231")
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

func setDefault(s *string, v string) {
	if *s == "" {
		*s = v
	}
}

// powerResponse is the subset of the POWER point GeoJSON we read.
type powerResponse struct {
	Properties struct {
		Parameter map[string]map[string]float64 `json:"parameter"`
	} `json:"properties"`
}

// NASAPowerClient implements ClimateSource against the NASA POWER point API.
type NASAPowerClient struct {
	base    *BaseClient
	cfg     NASAPowerConfig
	baseURL string
	logger  *slog.Logger
}

var _ ClimateSource = (*NASAPowerClient)(nil)

// NewNASAPowerClient creates a NASAPowerClient on top of base.
func NewNASAPowerClient(base *BaseClient, cfg NASAPowerConfig) *NASAPowerClient {
	cfg.applyDefaults()
	return &NASAPowerClient{
		base:    base,
		cfg:     cfg,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		logger:  cfg.Logger,
	}
}

// Irradiance implements ClimateSource.
func (c *NASAPowerClient) Irradiance(ctx context.Context, coord types.Coordinate) (types.Series, error) {
	values, err := c.fetch(ctx, "daily", paramIrradiance, coord, c.cfg.IrradianceStart, c.cfg.IrradianceEnd)
	if err != nil {
		return nil, err
	}
	return parseDaily(values)
}

// WindSpeed implements ClimateSource.
func (c *NASAPowerClient) WindSpeed(ctx context.Context, coord types.Coordinate) (types.Series, error) {
	values, err := c.fetch(ctx, "monthly", paramWindSpeed, coord, c.cfg.WindStart, c.cfg.WindEnd)
	if err != nil {
		return nil, err
	}
	return parseMonthly(values)
}

// Precipitation implements ClimateSource.
func (c *NASAPowerClient) Precipitation(ctx context.Context, coord types.Coordinate) (types.Series, error) {
	values, err := c.fetch(ctx, "daily", paramPrecipitation, coord, c.cfg.PrecipitationStart, c.cfg.PrecipitationEnd)
	if err != nil {
		return nil, err
	}
	return parseDaily(values)
}

// PrecipitationYears returns the number of calendar years the precipitation
// window spans.
func (c *NASAPowerClient) PrecipitationYears() int {
	if len(c.cfg.PrecipitationStart) < 4 || len(c.cfg.PrecipitationEnd) < 4 {
		return 1
	}
	start, _ := strconv.Atoi(c.cfg.PrecipitationStart[:4])
	end, _ := strconv.Atoi(c.cfg.PrecipitationEnd[:4])
	return max(end-start+1, 1)
}

func (c *NASAPowerClient) fetch(ctx context.Context, resolution, param string, coord types.Coordinate, start, end string) (map[string]float64, error) {
	q := url.Values{}
	q.Set("parameters", param)
	q.Set("community", "RE")
	q.Set("longitude", strconv.FormatFloat(coord.Lon, 'f', -1, 64))
	q.Set("latitude", strconv.FormatFloat(coord.Lat, 'f', -1, 64))
	q.Set("start", start)
	q.Set("end", end)
	q.Set("format", "JSON")

	endpoint := fmt.Sprintf("%s/%s/point?%s", c.baseURL, resolution, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create NASA POWER request", err)
	}

	began := time.Now()
	var body powerResponse
	if err := c.base.doJSON(req, &body); err != nil {
		c.logger.WarnContext(ctx, "NASA POWER request failed",
			"parameter", param,
			"coordinate", coord.Key(),
			"error", err,
		)
		return nil, err
	}

	values, ok := body.Properties.Parameter[param]
	if !ok {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeUpstreamClimate,
			"NASA POWER response is missing the requested parameter", nil,
			map[string]any{"parameter": param})
	}

	c.logger.InfoContext(ctx, "NASA POWER series fetched",
		"parameter", param,
		"coordinate", coord.Key(),
		"samples", len(values),
		"duration_ms", time.Since(began).Milliseconds(),
	)
	return values, nil
}

// parseDaily converts YYYYMMDD-keyed values into a date-ordered series.
// Negative readings (including the -999 fill value) are clamped to zero.
func parseDaily(values map[string]float64) (types.Series, error) {
	series := make(types.Series, 0, len(values))
	for key, v := range values {
		date, err := time.Parse("20060102", key)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeUpstreamClimate,
				fmt.Sprintf("unexpected NASA POWER date key %q", key), err)
		}
		series = append(series, newSample(date, v))
	}
	sortSeries(series)
	return series, nil
}

// parseMonthly converts YYYYMM-keyed values into a series dated on the 15th
// of each month. Month 13 rows are annual aggregates and are skipped.
func parseMonthly(values map[string]float64) (types.Series, error) {
	series := make(types.Series, 0, len(values))
	for key, v := range values {
		if len(key) != 6 {
			return nil, types.NewAppError(types.ErrCodeUpstreamClimate,
				fmt.Sprintf("unexpected NASA POWER month key %q", key), nil)
		}
		year, yerr := strconv.Atoi(key[:4])
		month, merr := strconv.Atoi(key[4:])
		if yerr != nil || merr != nil || month < 1 || month > 13 {
			return nil, types.NewAppError(types.ErrCodeUpstreamClimate,
				fmt.Sprintf("unexpected NASA POWER month key %q", key), nil)
		}
		if month == 13 {
			continue
		}
		series = append(series, newSample(time.Date(year, time.Month(month), 15, 0, 0, 0, 0, time.UTC), v))
	}
	sortSeries(series)
	return series, nil
}

func newSample(date time.Time, v float64) types.Sample {
	return types.Sample{
		Date:      date,
		Year:      date.Year(),
		Month:     int(date.Month()),
		DayOfYear: date.YearDay(),
		Value:     max(v, 0),
	}
}

func sortSeries(s types.Series) {
	sort.Slice(s, func(i, j int) bool { return s[i].Date.Before(s[j].Date) })
}
