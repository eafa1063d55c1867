package dataset

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strconv"

	"engagelens/internal/model"
	"engagelens/internal/util"
)

// MinPresentFraction is the share of Fields a row must carry to survive Clean.
const MinPresentFraction = 0.7

var numericFields = []int{fSentiment, fToxicity, fPastPerf, fGrowth, fRate}
var categoricalFields = []int{fDay, fPlatform, fTopic, fEmotion, fLocation, fLanguage}

// CleanReport summarizes what Clean did.
type CleanReport struct {
	Read    int
	Dropped int
	Filled  int
}

type cell struct {
	s       string
	f       float64
	present bool
}

// Clean drops sparse rows, then fills numeric gaps with the column median and
// categorical gaps with the column mode (smallest value on ties). Numeric
// cells that do not parse count as missing.
func Clean(records []Record) ([]model.Sample, CleanReport, error) {
	rep := CleanReport{Read: len(records)}
	minPresent := int(math.Ceil(MinPresentFraction * NumFields))

	rows := make([][NumFields]cell, 0, len(records))
	for _, rec := range records {
		var row [NumFields]cell
		n := 0
		for i, raw := range rec {
			if util.IsMissing(raw) {
				continue
			}
			c := cell{s: raw, present: true}
			if isNumeric(i) {
				f, err := strconv.ParseFloat(raw, 64)
				if err != nil || math.IsNaN(f) {
					continue
				}
				c.f = f
			}
			row[i] = c
			n++
		}
		if n < minPresent {
			rep.Dropped++
			continue
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, rep, fmt.Errorf("no rows left after dropping sparse rows (%d read)", rep.Read)
	}

	for _, i := range numericFields {
		var vals []float64
		for _, r := range rows {
			if r[i].present {
				vals = append(vals, r[i].f)
			}
		}
		if len(vals) == 0 {
			return nil, rep, fmt.Errorf("column %s has no values", Fields[i])
		}
		med := median(vals)
		for k := range rows {
			if !rows[k][i].present {
				rows[k][i] = cell{f: med, present: true}
				rep.Filled++
			}
		}
	}
	for _, i := range categoricalFields {
		counts := map[string]int{}
		for _, r := range rows {
			if r[i].present {
				counts[r[i].s]++
			}
		}
		if len(counts) == 0 {
			return nil, rep, fmt.Errorf("column %s has no values", Fields[i])
		}
		m := mode(counts)
		for k := range rows {
			if !rows[k][i].present {
				rows[k][i] = cell{s: m, present: true}
				rep.Filled++
			}
		}
	}

	out := make([]model.Sample, len(rows))
	for k, r := range rows {
		out[k] = model.Sample{
			Post: model.PostFeatures{
				DayOfWeek:            r[fDay].s,
				Platform:             r[fPlatform].s,
				TopicCategory:        r[fTopic].s,
				Location:             r[fLocation].s,
				Language:             r[fLanguage].s,
				EmotionType:          r[fEmotion].s,
				SentimentScore:       r[fSentiment].f,
				ToxicityScore:        r[fToxicity].f,
				UserPastSentimentAvg: r[fPastPerf].f,
				UserEngagementGrowth: r[fGrowth].f,
			},
			EngagementRate: r[fRate].f,
		}
	}
	return out, rep, nil
}

func isNumeric(i int) bool {
	for _, n := range numericFields {
		if n == i {
			return true
		}
	}
	return false
}

func median(vals []float64) float64 {
	s := append([]float64(nil), vals...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

func mode(counts map[string]int) string {
	best, bestN := "", -1
	for v, n := range counts {
		if n > bestN || (n == bestN && v < best) {
			best, bestN = v, n
		}
	}
	return best
}

// Bin thresholds used to stratify the split on engagement rate.
var stratumCuts = []float64{0.1, 0.25}

func stratum(rate float64) int {
	for i, c := range stratumCuts {
		if rate < c {
			return i
		}
	}
	return len(stratumCuts)
}

// StratifiedIndices holds out testFrac of each engagement stratum and
// returns row indexes for both halves in input order. The same seed always
// gives the same split.
func StratifiedIndices(rates []float64, testFrac float64, seed int64) (train, test []int) {
	if testFrac <= 0 {
		for i := range rates {
			train = append(train, i)
		}
		return train, nil
	}
	groups := map[int][]int{}
	for i, r := range rates {
		g := stratum(r)
		groups[g] = append(groups[g], i)
	}
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // deterministic split, not security
	held := make(map[int]bool)
	for g := 0; g <= len(stratumCuts); g++ {
		idx := groups[g]
		rng.Shuffle(len(idx), func(a, b int) { idx[a], idx[b] = idx[b], idx[a] })
		k := int(math.Round(float64(len(idx)) * testFrac))
		for _, i := range idx[:k] {
			held[i] = true
		}
	}
	for i := range rates {
		if held[i] {
			test = append(test, i)
		} else {
			train = append(train, i)
		}
	}
	return train, test
}

// StratifiedSplit applies StratifiedIndices to samples.
func StratifiedSplit(samples []model.Sample, testFrac float64, seed int64) (train, test []model.Sample) {
	rates := make([]float64, len(samples))
	for i, s := range samples {
		rates[i] = s.EngagementRate
	}
	tr, te := StratifiedIndices(rates, testFrac, seed)
	for _, i := range tr {
		train = append(train, samples[i])
	}
	for _, i := range te {
		test = append(test, samples[i])
	}
	return train, test
}
