package external

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"sitescore/internal/types"
)

const (
	overpassBase          = "https://overpass-api.de/api/interpreter"
	defaultSearchRadiusM  = 5000
	overpassOutputOptions = "[out:json];"
)

// OverpassConfig configures the OverpassClient.
type OverpassConfig struct {
	BaseURL string // defaults to overpassBase
	RadiusM int    // defaults to 5000
	Logger  *slog.Logger
}

type overpassElement struct {
	Type string            `json:"type"`
	ID   int64             `json:"id"`
	Tags map[string]string `json:"tags"`
}

type overpassResponse struct {
	Elements []overpassElement `json:"elements"`
}

// OverpassClient implements FeatureSource against the Overpass API.
type OverpassClient struct {
	base    *BaseClient
	baseURL string
	radius  int
	logger  *slog.Logger
}

var _ FeatureSource = (*OverpassClient)(nil)

// NewOverpassClient creates an OverpassClient on top of base.
func NewOverpassClient(base *BaseClient, cfg OverpassConfig) *OverpassClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = overpassBase
	}
	if cfg.RadiusM <= 0 {
		cfg.RadiusM = defaultSearchRadiusM
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &OverpassClient{
		base:    base,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		radius:  cfg.RadiusM,
		logger:  cfg.Logger,
	}
}

// LandUse implements FeatureSource.
func (c *OverpassClient) LandUse(ctx context.Context, coord types.Coordinate) (map[string]struct{}, error) {
	elements, err := c.query(ctx, "landuse", fmt.Sprintf(`way(%s)["landuse"];`, c.around(coord)))
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{})
	for _, el := range elements {
		if v, ok := el.Tags["landuse"]; ok {
			set[v] = struct{}{}
		}
	}
	return set, nil
}

// Infrastructure implements FeatureSource. Ways matching more than one
// clause are counted once per clause, as Overpass returns them.
func (c *OverpassClient) Infrastructure(ctx context.Context, coord types.Coordinate) (int, error) {
	around := c.around(coord)
	body := fmt.Sprintf(`(way(%[1]s)["highway"];way(%[1]s)["power"];way(%[1]s)["power"="line"];);`, around)
	elements, err := c.query(ctx, "infrastructure", body)
	if err != nil {
		return 0, err
	}
	return len(elements), nil
}

// Turbines implements FeatureSource.
func (c *OverpassClient) Turbines(ctx context.Context, coord types.Coordinate) (int, error) {
	body := fmt.Sprintf(`node(%s)["power"="generator"]["generator:source"="wind"];`, c.around(coord))
	elements, err := c.query(ctx, "turbines", body)
	if err != nil {
		return 0, err
	}
	return len(elements), nil
}

func (c *OverpassClient) around(coord types.Coordinate) string {
	return fmt.Sprintf("around:%d,%s,%s", c.radius,
		strconv.FormatFloat(coord.Lat, 'f', -1, 64),
		strconv.FormatFloat(coord.Lon, 'f', -1, 64))
}

// query runs one Overpass QL statement and returns its elements.
func (c *OverpassClient) query(ctx context.Context, kind, statement string) ([]overpassElement, error) {
	ql := overpassOutputOptions + statement + "out body;"
	endpoint := c.baseURL + "?" + url.Values{"data": {ql}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create Overpass request", err)
	}

	var body overpassResponse
	if err := c.base.doJSON(req, &body); err != nil {
		c.logger.WarnContext(ctx, "Overpass query failed", "kind", kind, "error", err)
		return nil, err
	}

	c.logger.DebugContext(ctx, "Overpass query completed", "kind", kind, "elements", len(body.Elements))
	return body.Elements, nil
}
