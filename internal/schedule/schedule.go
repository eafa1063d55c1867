// Package schedule searches posting days for the highest predicted
// engagement.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"engagelens/internal/features"
	"engagelens/internal/model"
	"engagelens/internal/predictor"
)

// DayScore is the clipped prediction for one candidate day.
type DayScore struct {
	Day  string  `json:"day"`
	Rate float64 `json:"rate"`
}

// Plan is the outcome of a day search. Ranking is best first.
type Plan struct {
	Best    DayScore   `json:"best"`
	Ranking []DayScore `json:"ranking"`
}

// BestDay re-encodes post once per fitted day_of_week class, scores every
// candidate in one batch and ranks them. Ties keep the fitted class order.
func BestDay(ctx context.Context, arts *features.Artifacts, pred predictor.Predictor, post model.PostFeatures) (Plan, error) {
	enc, err := arts.Encoders.Encoder(features.ColDayOfWeek)
	if err != nil {
		return Plan{}, err
	}
	days := enc.Classes()
	if len(days) == 0 {
		return Plan{}, errors.New("no fitted days")
	}
	rows := make([]features.FeatureVector, len(days))
	for i, d := range days {
		p := post
		p.DayOfWeek = d
		v, err := arts.Encode(p)
		if err != nil {
			return Plan{}, fmt.Errorf("encode %s: %w", d, err)
		}
		rows[i] = v
	}
	raw, err := pred.Predict(ctx, rows)
	if err != nil {
		return Plan{}, err
	}
	if len(raw) != len(rows) {
		return Plan{}, fmt.Errorf("%w: got %d, want %d", predictor.ErrShapeMismatch, len(raw), len(rows))
	}
	ranking := make([]DayScore, len(days))
	for i, d := range days {
		ranking[i] = DayScore{Day: d, Rate: predictor.Clip(raw[i])}
	}
	sort.SliceStable(ranking, func(i, j int) bool { return ranking[i].Rate > ranking[j].Rate })
	return Plan{Best: ranking[0], Ranking: ranking}, nil
}
