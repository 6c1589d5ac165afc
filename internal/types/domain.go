package types

import (
	"encoding/json"
	"strconv"
	"time"
)

// Coordinate identifies an analysis site.
type Coordinate struct {
	Lat float64 `json:"latitude"`
	Lon float64 `json:"longitude"`
}

// Key returns the cache key for the coordinate: "<lat>,<lon>" using the
// shortest decimal form of each value.
func (c Coordinate) Key() string {
	return strconv.FormatFloat(c.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(c.Lon, 'f', -1, 64)
}

// Sample is one observation of a climate time series.
type Sample struct {
	Date      time.Time
	Year      int
	Month     int
	DayOfYear int
	Value     float64
}

// Series is an ordered sequence of samples for one coordinate and parameter.
type Series []Sample

// Mean returns the arithmetic mean of the sample values, or 0 for an empty
// series.
func (s Series) Mean() float64 {
	if len(s) == 0 {
		return 0
	}
	var sum float64
	for _, v := range s {
		sum += v.Value
	}
	return sum / float64(len(s))
}

// Sum returns the total of all sample values.
func (s Series) Sum() float64 {
	var sum float64
	for _, v := range s {
		sum += v.Value
	}
	return sum
}

// VerdictStatus classifies the outcome of one feasibility evaluation.
type VerdictStatus string

const (
	StatusFeasible    VerdictStatus = "feasible"
	StatusNotFeasible VerdictStatus = "not_feasible"
	StatusExists      VerdictStatus = "exists"
	StatusError       VerdictStatus = "error"
	StatusSuccess     VerdictStatus = "success"
)

// Verdict is the structured outcome of one evaluator. Its JSON form is a flat
// object: status and message followed by every metric as a top-level key.
type Verdict struct {
	Status  VerdictStatus
	Message string
	Metrics map[string]any
}

// NewVerdict builds a Verdict with an empty metrics map.
func NewVerdict(status VerdictStatus, message string) *Verdict {
	return &Verdict{Status: status, Message: message, Metrics: map[string]any{}}
}

// With sets a metric and returns the verdict for chaining.
func (v *Verdict) With(key string, value any) *Verdict {
	if v.Metrics == nil {
		v.Metrics = map[string]any{}
	}
	v.Metrics[key] = value
	return v
}

// MarshalJSON flattens the metrics next to status and message. Metric keys
// named "status" or "message" are ignored.
func (v Verdict) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(v.Metrics)+2)
	for k, val := range v.Metrics {
		out[k] = val
	}
	if v.Status != "" {
		out["status"] = v.Status
	}
	if v.Message != "" {
		out["message"] = v.Message
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores a flat verdict object.
func (v *Verdict) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v.Metrics = make(map[string]any, len(raw))
	for k, val := range raw {
		switch k {
		case "status":
			s, _ := val.(string)
			v.Status = VerdictStatus(s)
		case "message":
			v.Message, _ = val.(string)
		default:
			v.Metrics[k] = val
		}
	}
	return nil
}

// Score is one normalized input of a composite score. Available is false
// when the upstream source could not be reached, which keeps "no rain"
// distinct from "rainfall API down".
type Score struct {
	Value     float64
	Available bool
}

// Measured returns an available score.
func Measured(v float64) Score {
	return Score{Value: v, Available: true}
}

// Unavailable returns a score whose source failed. Its value is 0.
func Unavailable() Score {
	return Score{}
}

// ReportRecord is one generated report in the ledger.
type ReportRecord struct {
	ID         string    `json:"id"`
	Lat        float64   `json:"latitude"`
	Lon        float64   `json:"longitude"`
	Link       string    `json:"summary_link"`
	StorageKey string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}
