// Package predictor talks to the external regression model. The pipeline
// hands it assembled feature vectors and gets one engagement rate per row.
package predictor

import (
	"context"
	"errors"
	"math"

	"engagelens/internal/features"
)

// ErrShapeMismatch is returned when a model answers with the wrong number of
// predictions.
var ErrShapeMismatch = errors.New("prediction count does not match input rows")

// Predictor scores feature vectors. Outputs are raw model values; callers
// clip them.
type Predictor interface {
	Predict(ctx context.Context, rows []features.FeatureVector) ([]float64, error)
}

// Clip clamps a raw prediction to [0,1].
func Clip(p float64) float64 {
	if math.IsNaN(p) || p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// PredictOne scores a single vector.
func PredictOne(ctx context.Context, p Predictor, v features.FeatureVector) (float64, error) {
	out, err := p.Predict(ctx, []features.FeatureVector{v})
	if err != nil {
		return 0, err
	}
	if len(out) != 1 {
		return 0, ErrShapeMismatch
	}
	return out[0], nil
}

// Func adapts a plain function to Predictor.
type Func func(ctx context.Context, rows []features.FeatureVector) ([]float64, error)

func (f Func) Predict(ctx context.Context, rows []features.FeatureVector) ([]float64, error) {
	return f(ctx, rows)
}
