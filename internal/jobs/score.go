package jobs

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"engagelens/internal/analytics"
	"engagelens/internal/features"
	"engagelens/internal/logging"
	"engagelens/internal/model"
	"engagelens/internal/predictor"
)

// Report file names written by WriteScoreReport.
const (
	PredictionsFile   = "predictions.csv"
	BucketSummaryFile = "bucket_summary.csv"
)

// ScoredRow is one scored sample.
type ScoredRow struct {
	ID        int
	Actual    float64
	Predicted float64
	AbsErr    float64
	SqErr     float64
	Bucket    string
	Category  string
}

type ScoreReport struct {
	Rows    []ScoredRow
	Metrics analytics.Metrics
	Buckets []analytics.BucketStat
}

// ScoreBatch encodes labeled samples with arts, predicts them in one call
// and summarizes the errors. Topics are normalized the way Fit does.
func ScoreBatch(ctx context.Context, arts *features.Artifacts, pred predictor.Predictor, samples []model.Sample, workers int) (ScoreReport, error) {
	posts := make([]model.PostFeatures, len(samples))
	m := features.Matrix{Targets: make([]float64, len(samples))}
	for i, s := range samples {
		p := s.Post
		p.TopicCategory = features.NormalizeTopicString(p.TopicCategory)
		posts[i] = p
		m.Targets[i] = s.EngagementRate
	}
	rows, err := arts.EncodeBatch(ctx, posts, workers)
	if err != nil {
		return ScoreReport{}, err
	}
	m.Rows = rows
	return ScoreMatrix(ctx, pred, m)
}

// ScoreMatrix predicts already encoded rows and summarizes the errors.
// Predictions are clipped to [0,1] before scoring.
func ScoreMatrix(ctx context.Context, pred predictor.Predictor, m features.Matrix) (ScoreReport, error) {
	if m.Len() == 0 {
		return ScoreReport{}, features.ErrNoSamples
	}
	raw, err := pred.Predict(ctx, m.Rows)
	if err != nil {
		return ScoreReport{}, err
	}
	if len(raw) != m.Len() {
		return ScoreReport{}, fmt.Errorf("%w: got %d, want %d", predictor.ErrShapeMismatch, len(raw), m.Len())
	}
	predicted := make([]float64, len(raw))
	for i, p := range raw {
		predicted[i] = predictor.Clip(p)
	}
	met, err := analytics.Regression(m.Targets, predicted)
	if err != nil {
		return ScoreReport{}, err
	}
	buckets := analytics.QuantileBuckets(m.Targets)
	rep := ScoreReport{
		Rows:    make([]ScoredRow, m.Len()),
		Metrics: met,
		Buckets: analytics.BucketReport(m.Targets, predicted),
	}
	for i, a := range m.Targets {
		d := a - predicted[i]
		rep.Rows[i] = ScoredRow{
			ID:        i,
			Actual:    a,
			Predicted: predicted[i],
			AbsErr:    math.Abs(d),
			SqErr:     d * d,
			Bucket:    buckets[i],
			Category:  analytics.PredictionCategory(predicted[i]),
		}
	}
	logging.Info("score_done", map[string]any{"rows": met.N, "mae": met.MAE, "rmse": met.RMSE, "r2": met.R2})
	return rep, nil
}

// WriteScoreReport writes predictions.csv and bucket_summary.csv into dir.
func WriteScoreReport(dir string, r ScoreReport) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	preds := [][]string{{"id", "actual_engagement", "predicted_engagement", "absolute_error", "squared_error", "engagement_bucket", "prediction_category"}}
	for _, row := range r.Rows {
		preds = append(preds, []string{
			strconv.Itoa(row.ID), ff(row.Actual), ff(row.Predicted), ff(row.AbsErr), ff(row.SqErr), row.Bucket, row.Category,
		})
	}
	if err := writeCSV(filepath.Join(dir, PredictionsFile), preds); err != nil {
		return err
	}
	summary := [][]string{{"bucket", "count", "avg_engagement", "min_engagement", "max_engagement", "mae"}}
	for _, b := range r.Buckets {
		summary = append(summary, []string{b.Bucket, strconv.Itoa(b.Count), ff(b.Mean), ff(b.Min), ff(b.Max), ff(b.ModelMAE)})
	}
	return writeCSV(filepath.Join(dir, BucketSummaryFile), summary)
}

func ff(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
