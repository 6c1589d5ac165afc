// Package handlers contains the HTTP handlers of the SiteScore API.
//
// SiteHandler serves the four feasibility checks and the full assessment;
// ArtifactHandler serves rendered reports and the report ledger.
package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"sitescore/internal/core"
	"sitescore/internal/feasibility"
	"sitescore/internal/report"
	"sitescore/internal/types"
)

// WelcomeMessage is returned by GET /.
const WelcomeMessage = "Welcome to the Solar Energy API"

// Evaluator runs the individual feasibility checks.
type Evaluator interface {
	Solar(ctx context.Context, coord types.Coordinate, year, month int) *types.Verdict
	Wind(ctx context.Context, coord types.Coordinate) *types.Verdict
	Water(ctx context.Context, coord types.Coordinate) *types.Verdict
	Green(ctx context.Context, coord types.Coordinate) *types.Verdict
}

// Reporter runs the full assessment and publishes its summary.
type Reporter interface {
	Run(ctx context.Context, coord types.Coordinate) (*report.Result, error)
}

// CoordinateRequest is the body of every site endpoint.
type CoordinateRequest struct {
	Latitude  *float64 `json:"latitude" validate:"required,lat"`
	Longitude *float64 `json:"longitude" validate:"required,lon"`
}

func (r CoordinateRequest) coordinate() types.Coordinate {
	return types.Coordinate{Lat: *r.Latitude, Lon: *r.Longitude}
}

// SolarRequest adds the optional prediction month to a coordinate.
type SolarRequest struct {
	Latitude  *float64 `json:"latitude" validate:"required,lat"`
	Longitude *float64 `json:"longitude" validate:"required,lon"`
	Year      *int     `json:"year,omitempty" validate:"omitempty,solar_year"`
	Month     *int     `json:"month,omitempty" validate:"omitempty,calendar_month"`

	historyEndYear int
}

// ValidationWarnings flags years past the training history; the prediction
// is then an extrapolation of the day-of-year pattern.
func (r SolarRequest) ValidationWarnings() []string {
	if r.Year != nil && r.historyEndYear > 0 && *r.Year > r.historyEndYear {
		return []string{fmt.Sprintf("year %d is past the irradiance history ending %d; the prediction is extrapolated",
			*r.Year, r.historyEndYear)}
	}
	return nil
}

// SiteHandler maps the site endpoints to the evaluators and the report
// orchestrator.
type SiteHandler struct {
	evaluator Evaluator
	reporter  Reporter
	validator *core.Validator
	logger    *slog.Logger

	historyEndYear int
}

// SiteHandlerOption configures a SiteHandler.
type SiteHandlerOption func(*SiteHandler)

// WithHistoryEnd sets the last year of irradiance history, from a
// YYYYMMDD date. Solar requests past it carry a Warning header.
func WithHistoryEnd(yyyymmdd string) SiteHandlerOption {
	return func(h *SiteHandler) {
		if len(yyyymmdd) >= 4 {
			if y, err := strconv.Atoi(yyyymmdd[:4]); err == nil {
				h.historyEndYear = y
			}
		}
	}
}

// NewSiteHandler creates a SiteHandler.
func NewSiteHandler(eval Evaluator, reporter Reporter, val *core.Validator, logger *slog.Logger, opts ...SiteHandlerOption) *SiteHandler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &SiteHandler{
		evaluator: eval,
		reporter:  reporter,
		validator: val,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes mounts the site endpoints at the router root.
func (h *SiteHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.HandleRoot)
	r.Post("/check_solar_farm", h.HandleSolar)
	r.Post("/check_wind_farm", h.HandleWind)
	r.Post("/check_water_harvesting_score", h.HandleWater)
	r.Post("/check_green", h.HandleGreen)
	r.Post("/getall", h.HandleGetAll)
}

// HandleRoot handles GET /.
func (h *SiteHandler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	core.JSON(w, r, http.StatusOK, map[string]string{"message": WelcomeMessage})
}

// HandleSolar handles POST /check_solar_farm. Year and month default to
// feasibility.DefaultSolarYear and feasibility.DefaultSolarMonth.
func (h *SiteHandler) HandleSolar(w http.ResponseWriter, r *http.Request) {
	req := SolarRequest{historyEndYear: h.historyEndYear}
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	res, err := h.validator.ValidateStructWithWarnings(req)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if len(res.Warnings) > 0 {
		types.LoggerFromContext(r.Context(), h.logger).InfoContext(r.Context(), "solar request accepted with warnings",
			"warnings", res.Warnings)
		w.Header().Set("Warning", `299 - "`+strings.Join(res.Warnings, "; ")+`"`)
	}

	year, month := feasibility.DefaultSolarYear, feasibility.DefaultSolarMonth
	if req.Year != nil {
		year = *req.Year
	}
	if req.Month != nil {
		month = *req.Month
	}

	coord := types.Coordinate{Lat: *req.Latitude, Lon: *req.Longitude}
	core.JSON(w, r, http.StatusOK, h.evaluator.Solar(r.Context(), coord, year, month))
}

// HandleWind handles POST /check_wind_farm.
func (h *SiteHandler) HandleWind(w http.ResponseWriter, r *http.Request) {
	coord, ok := h.decodeCoordinate(w, r)
	if !ok {
		return
	}
	core.JSON(w, r, http.StatusOK, h.evaluator.Wind(r.Context(), coord))
}

// HandleWater handles POST /check_water_harvesting_score.
func (h *SiteHandler) HandleWater(w http.ResponseWriter, r *http.Request) {
	coord, ok := h.decodeCoordinate(w, r)
	if !ok {
		return
	}
	core.JSON(w, r, http.StatusOK, h.evaluator.Water(r.Context(), coord))
}

// HandleGreen handles POST /check_green.
func (h *SiteHandler) HandleGreen(w http.ResponseWriter, r *http.Request) {
	coord, ok := h.decodeCoordinate(w, r)
	if !ok {
		return
	}
	core.JSON(w, r, http.StatusOK, h.evaluator.Green(r.Context(), coord))
}

// HandleGetAll handles POST /getall: the four evaluations plus the PDF
// summary link. Failures after evaluation are 5xx errors.
func (h *SiteHandler) HandleGetAll(w http.ResponseWriter, r *http.Request) {
	coord, ok := h.decodeCoordinate(w, r)
	if !ok {
		return
	}
	result, err := h.reporter.Run(r.Context(), coord)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, result)
}

// decodeCoordinate decodes and validates a CoordinateRequest, writing the
// error response itself when it fails.
func (h *SiteHandler) decodeCoordinate(w http.ResponseWriter, r *http.Request) (types.Coordinate, bool) {
	var req CoordinateRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return types.Coordinate{}, false
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return types.Coordinate{}, false
	}
	return req.coordinate(), true
}
