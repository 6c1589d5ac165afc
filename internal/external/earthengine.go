package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"sitescore/internal/types"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	earthEngineBase  = "https://earthengine.googleapis.com"
	earthEngineScope = "https://www.googleapis.com/auth/earthengine"

	soilTextureImage = "OpenLandMap/SOL/SOL_TEXTURE-CLASS_USDA-TT_M/v02"
	elevationImage   = "USGS/SRTMGL1_003"
	sentinel2        = "COPERNICUS/S2_SR_HARMONIZED"

	pixelScaleM    = 30
	coverMaxPixels = 1e9
	greenNDVI      = 0.4
	barrenNDVI     = 0.2
	maxCloudPct    = 5
	imageryStart   = "2020-01-01"
	imageryEnd     = "2023-12-31"
)

// EarthEngineConfig configures the EarthEngineClient. With no AccessToken,
// Application Default Credentials are used.
type EarthEngineConfig struct {
	BaseURL     string
	Project     string
	AccessToken string
	RadiusM     int
	Logger      *slog.Logger
}

// EarthEngineClient implements ImagerySource through the Earth Engine REST
// value:compute method.
type EarthEngineClient struct {
	base    *BaseClient
	tokens  oauth2.TokenSource
	baseURL string
	project string
	radius  float64
	logger  *slog.Logger
}

var _ ImagerySource = (*EarthEngineClient)(nil)

// NewEarthEngineClient creates an EarthEngineClient. It resolves credentials
// eagerly so misconfiguration fails at startup.
func NewEarthEngineClient(ctx context.Context, base *BaseClient, cfg EarthEngineConfig) (*EarthEngineClient, error) {
	var tokens oauth2.TokenSource
	if cfg.AccessToken != "" {
		tokens = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AccessToken, TokenType: "Bearer"})
	} else {
		ts, err := google.DefaultTokenSource(ctx, earthEngineScope)
		if err != nil {
			return nil, fmt.Errorf("resolving Earth Engine credentials: %w", err)
		}
		tokens = ts
	}
	return NewEarthEngineClientWithTokens(base, tokens, cfg), nil
}

// NewEarthEngineClientWithTokens creates an EarthEngineClient with a given
// token source.
func NewEarthEngineClientWithTokens(base *BaseClient, tokens oauth2.TokenSource, cfg EarthEngineConfig) *EarthEngineClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = earthEngineBase
	}
	if cfg.RadiusM <= 0 {
		cfg.RadiusM = defaultSearchRadiusM
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &EarthEngineClient{
		base:    base,
		tokens:  oauth2.ReuseTokenSource(nil, tokens),
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		project: cfg.Project,
		radius:  float64(cfg.RadiusM),
		logger:  cfg.Logger,
	}
}

// SoilTexture implements ImagerySource.
func (c *EarthEngineClient) SoilTexture(ctx context.Context, coord types.Coordinate) (float64, bool, error) {
	expr := eeMeanAt(eeSelect(eeImage(soilTextureImage), "b0"), eePoint(coord.Lon, coord.Lat), "b0", pixelScaleM, 0)
	return c.computeNumber(ctx, "soil", expr)
}

// Slope implements ImagerySource.
func (c *EarthEngineClient) Slope(ctx context.Context, coord types.Coordinate) (float64, bool, error) {
	expr := eeMeanAt(eeSlope(eeImage(elevationImage)), eePoint(coord.Lon, coord.Lat), "slope", pixelScaleM, 0)
	return c.computeNumber(ctx, "slope", expr)
}

// Coverage implements ImagerySource. Green is the share of pixels with NDVI
// above 0.4, barren the share below 0.2, over a cloud-filtered median
// composite.
func (c *EarthEngineClient) Coverage(ctx context.Context, coord types.Coordinate) (*Coverage, error) {
	area := eeBuffer(eePoint(coord.Lon, coord.Lat), c.radius)

	composite := eeFilter(eeCollection(sentinel2), eeFilterBounds(area))
	composite = eeFilter(composite, eeFilterDate(imageryStart, imageryEnd))
	composite = eeFilter(composite, eeFilterLess("CLOUDY_PIXEL_PERCENTAGE", maxCloudPct))
	ndvi := eeRename(eeNormalizedDifference(eeMedian(composite), "B8_median", "B4_median"), "NDVI")

	expr := eeDict(map[string]eeNode{
		"green":  eeMeanAt(eeCompare("gt", ndvi, greenNDVI), area, "NDVI", pixelScaleM, coverMaxPixels),
		"barren": eeMeanAt(eeCompare("lt", ndvi, barrenNDVI), area, "NDVI", pixelScaleM, coverMaxPixels),
	})

	var result struct {
		Green  *float64 `json:"green"`
		Barren *float64 `json:"barren"`
	}
	ok, err := c.compute(ctx, "coverage", expr, &result)
	if err != nil {
		return nil, err
	}
	if !ok || result.Green == nil || result.Barren == nil {
		return nil, nil
	}
	return &Coverage{Green: *result.Green, Barren: *result.Barren}, nil
}

func (c *EarthEngineClient) computeNumber(ctx context.Context, kind string, expr eeNode) (float64, bool, error) {
	var v *float64
	ok, err := c.compute(ctx, kind, expr, &v)
	if err != nil || !ok || v == nil {
		return 0, false, err
	}
	return *v, true, nil
}

// compute evaluates expr and decodes its result into out. ok is false when
// the result is null.
func (c *EarthEngineClient) compute(ctx context.Context, kind string, expr eeNode, out any) (bool, error) {
	payload, err := json.Marshal(map[string]any{"expression": eeExpression(expr)})
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode Earth Engine expression", err)
	}

	token, err := c.tokens.Token()
	if err != nil {
		return false, types.NewAppError(types.ErrCodeUpstreamImagery, "failed to obtain Earth Engine access token", err)
	}

	endpoint := fmt.Sprintf("%s/v1/projects/%s/value:compute", c.baseURL, c.project)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create Earth Engine request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	token.SetAuthHeader(req)

	var body struct {
		Result json.RawMessage `json:"result"`
	}
	if err := c.base.doJSON(req, &body); err != nil {
		c.logger.WarnContext(ctx, "Earth Engine compute failed", "kind", kind, "error", err)
		return false, err
	}
	if len(body.Result) == 0 || string(body.Result) == "null" {
		c.logger.InfoContext(ctx, "Earth Engine returned no data", "kind", kind)
		return false, nil
	}
	if err := json.Unmarshal(body.Result, out); err != nil {
		return false, types.NewAppError(types.ErrCodeUpstreamImagery,
			fmt.Sprintf("unexpected Earth Engine %s result", kind), err)
	}
	return true, nil
}
