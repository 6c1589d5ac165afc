package solar

import (
	"context"
	"time"

	"sitescore/internal/types"
)

// PredictionDay is the day of the month predictions are made for.
const PredictionDay = 15

// Predictor estimates irradiance for a coordinate and month.
type Predictor struct {
	models *ModelCache
}

// NewPredictor creates a Predictor backed by models.
func NewPredictor(models *ModelCache) *Predictor {
	return &Predictor{models: models}
}

// Predict returns the expected daily irradiance in kWh/m² on the 15th of the
// given month.
func (p *Predictor) Predict(ctx context.Context, coord types.Coordinate, year, month int) (float64, error) {
	forest, err := p.models.Get(ctx, coord)
	if err != nil {
		return 0, err
	}
	doy := time.Date(year, time.Month(month), PredictionDay, 0, 0, 0, 0, time.UTC).YearDay()
	v, err := forest.Predict(Features(year, month, doy))
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalModel, "model prediction failed", err)
	}
	return v, nil
}
