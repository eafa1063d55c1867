// Package analytics summarizes engagement rates and prediction quality.
package analytics

import (
	"math"
	"sort"
)

// QuintileLabels name the five engagement quantile buckets, lowest first.
var QuintileLabels = []string{"Q1_Very_Low", "Q2_Low", "Q3_Medium", "Q4_High", "Q5_Very_High"}

// Percentile returns the q-th quantile (0..1) of vals with linear
// interpolation between closest ranks.
func Percentile(vals []float64, q float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	s := append([]float64(nil), vals...)
	sort.Float64s(s)
	return percentileSorted(s, q)
}

func percentileSorted(s []float64, q float64) float64 {
	pos := q * float64(len(s)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return s[lo]
	}
	return s[lo] + (s[hi]-s[lo])*(pos-float64(lo))
}

// QuantileBuckets labels each rate with its quintile. Bin edges that
// coincide are merged, so skewed data can yield fewer than five buckets;
// labels are then taken from the front of QuintileLabels.
func QuantileBuckets(rates []float64) []string {
	if len(rates) == 0 {
		return nil
	}
	s := append([]float64(nil), rates...)
	sort.Float64s(s)
	edges := []float64{s[0]}
	for i := 1; i <= len(QuintileLabels); i++ {
		e := percentileSorted(s, float64(i)/float64(len(QuintileLabels)))
		if e > edges[len(edges)-1] {
			edges = append(edges, e)
		}
	}
	out := make([]string, len(rates))
	for i, r := range rates {
		b := 0
		// Right-inclusive bins; the first also includes its lower edge.
		for b < len(edges)-2 && r > edges[b+1] {
			b++
		}
		out[i] = QuintileLabels[b]
	}
	return out
}

// BucketStat describes one quantile bucket.
type BucketStat struct {
	Bucket      string  `json:"bucket"`
	Count       int     `json:"count"`
	Percentage  float64 `json:"percentage"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Mean        float64 `json:"mean"`
	BaselineMAE float64 `json:"baseline_mae"`
	// ModelMAE is the mean absolute prediction error; zero without predictions.
	ModelMAE float64 `json:"model_mae"`
}

// BucketReport computes per-bucket stats in QuintileLabels order. When
// predicted is non-nil it must align with actual and ModelMAE is filled.
func BucketReport(actual, predicted []float64) []BucketStat {
	labels := QuantileBuckets(actual)
	groups := make(map[string][]int)
	for i, l := range labels {
		groups[l] = append(groups[l], i)
	}
	var out []BucketStat
	for _, l := range QuintileLabels {
		idx, ok := groups[l]
		if !ok {
			continue
		}
		st := BucketStat{Bucket: l, Count: len(idx), Min: math.Inf(1), Max: math.Inf(-1)}
		for _, i := range idx {
			v := actual[i]
			st.Mean += v
			st.Min = math.Min(st.Min, v)
			st.Max = math.Max(st.Max, v)
		}
		st.Mean /= float64(len(idx))
		for _, i := range idx {
			st.BaselineMAE += math.Abs(actual[i] - st.Mean)
			if predicted != nil {
				st.ModelMAE += math.Abs(actual[i] - predicted[i])
			}
		}
		st.BaselineMAE /= float64(len(idx))
		st.ModelMAE /= float64(len(idx))
		st.Percentage = 100 * float64(len(idx)) / float64(len(actual))
		out = append(out, st)
	}
	return out
}
