package features

import (
	"fmt"
	"math"

	"github.com/goccy/go-json"
)

// Scaler standardizes numeric columns with a mean and population std fixed
// at fit time.
type Scaler struct {
	columns []string
	mean    []float64
	std     []float64
	index   map[string]int
}

type scalerJSON struct {
	Columns []string  `json:"columns"`
	Mean    []float64 `json:"mean"`
	Std     []float64 `json:"std"`
}

// FitScaler computes per-column mean and std (ddof=0). data is row-major with
// one value per column.
func FitScaler(columns []string, data [][]float64) (*Scaler, error) {
	if len(data) == 0 {
		return nil, ErrNoSamples
	}
	n := float64(len(data))
	mean := make([]float64, len(columns))
	std := make([]float64, len(columns))
	for i, row := range data {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("scaler row %d: got %d values, want %d", i, len(row), len(columns))
		}
		for j, v := range row {
			mean[j] += v
		}
	}
	for j := range mean {
		mean[j] /= n
	}
	for _, row := range data {
		for j, v := range row {
			d := v - mean[j]
			std[j] += d * d
		}
	}
	for j := range std {
		std[j] = math.Sqrt(std[j] / n)
	}
	return newScaler(append([]string(nil), columns...), mean, std), nil
}

func newScaler(columns []string, mean, std []float64) *Scaler {
	idx := make(map[string]int, len(columns))
	for i, c := range columns {
		idx[c] = i
	}
	return &Scaler{columns: columns, mean: mean, std: std, index: idx}
}

// Transform returns (v-mean)/std for column. A zero-variance column maps
// every value to 0.
func (s *Scaler) Transform(column string, v float64) (float64, error) {
	i, ok := s.index[column]
	if !ok {
		return 0, fmt.Errorf("%w: scaler %q", ErrUnknownColumn, column)
	}
	if s.std[i] == 0 {
		return 0, nil
	}
	return (v - s.mean[i]) / s.std[i], nil
}

// Params returns the fitted mean and std for column.
func (s *Scaler) Params(column string) (mean, std float64, ok bool) {
	i, ok := s.index[column]
	if !ok {
		return 0, 0, false
	}
	return s.mean[i], s.std[i], true
}

func (s *Scaler) Columns() []string { return append([]string(nil), s.columns...) }

func (s *Scaler) MarshalJSON() ([]byte, error) {
	return json.Marshal(scalerJSON{Columns: s.columns, Mean: s.mean, Std: s.std})
}

func (s *Scaler) UnmarshalJSON(b []byte) error {
	var raw scalerJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if len(raw.Mean) != len(raw.Columns) || len(raw.Std) != len(raw.Columns) {
		return fmt.Errorf("scaler: %d columns, %d means, %d stds", len(raw.Columns), len(raw.Mean), len(raw.Std))
	}
	*s = *newScaler(raw.Columns, raw.Mean, raw.Std)
	return nil
}
