package analytics

import (
	"errors"
	"math"
)

// ErrLengthMismatch is returned when actual and predicted differ in length.
var ErrLengthMismatch = errors.New("actual and predicted lengths differ")

// Metrics are standard regression scores.
type Metrics struct {
	N    int     `json:"n"`
	MAE  float64 `json:"mae"`
	RMSE float64 `json:"rmse"`
	R2   float64 `json:"r2"`
}

// Regression scores predicted against actual. R2 is 0 when actual has no
// variance.
func Regression(actual, predicted []float64) (Metrics, error) {
	if len(actual) != len(predicted) {
		return Metrics{}, ErrLengthMismatch
	}
	m := Metrics{N: len(actual)}
	if m.N == 0 {
		return m, nil
	}
	var mean float64
	for _, v := range actual {
		mean += v
	}
	mean /= float64(m.N)
	var absSum, sqSum, tot float64
	for i, a := range actual {
		d := a - predicted[i]
		absSum += math.Abs(d)
		sqSum += d * d
		tot += (a - mean) * (a - mean)
	}
	m.MAE = absSum / float64(m.N)
	m.RMSE = math.Sqrt(sqSum / float64(m.N))
	if tot > 0 {
		m.R2 = 1 - sqSum/tot
	}
	return m, nil
}

var (
	categoryEdges  = []float64{0.05, 0.1, 0.15, 0.3, 100}
	categoryLabels = []string{"Very_Low", "Low", "Medium", "High", "Very_High"}
)

// PredictionCategory bins a prediction into (0,0.05], (0.05,0.1],
// (0.1,0.15], (0.15,0.3], (0.3,100]. Zero counts as Very_Low; values
// outside [0,100] return "".
func PredictionCategory(p float64) string {
	if p < 0 || math.IsNaN(p) {
		return ""
	}
	for i, e := range categoryEdges {
		if p <= e {
			return categoryLabels[i]
		}
	}
	return ""
}
