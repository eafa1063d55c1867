package features

import (
	"context"
	"fmt"
	"strconv"

	"golang.org/x/sync/errgroup"

	"engagelens/internal/metrics"
	"engagelens/internal/model"
)

// Matrix is the training design matrix: one FeatureVector per sample plus
// the observed engagement rate.
type Matrix struct {
	Rows    []FeatureVector
	Targets []float64
}

func (m Matrix) Len() int { return len(m.Rows) }

func categoricalValues(p model.PostFeatures) [6]string {
	return [6]string{p.DayOfWeek, p.Platform, p.TopicCategory, p.EmotionType, p.Location, p.Language}
}

func numericValues(p model.PostFeatures) [4]float64 {
	return [4]float64{p.SentimentScore, p.ToxicityScore, p.UserPastSentimentAvg, p.UserEngagementGrowth}
}

// Fit normalizes topics, fits every encoder and the scaler, and encodes the
// training rows through the same path Encode uses at inference.
func Fit(samples []model.Sample) (*Artifacts, Matrix, error) {
	if len(samples) == 0 {
		return nil, Matrix{}, ErrNoSamples
	}
	posts := make([]model.PostFeatures, len(samples))
	for i, s := range samples {
		p := s.Post
		p.TopicCategory = NormalizeTopicString(p.TopicCategory)
		posts[i] = p
	}

	catVals := make([][]string, len(CategoricalColumns))
	bucketVals := make([][]string, len(BucketColumns))
	numeric := make([][]float64, len(posts))
	for i, p := range posts {
		for j, v := range categoricalValues(p) {
			catVals[j] = append(catVals[j], v)
		}
		for j, b := range BucketsFor(p).values() {
			bucketVals[j] = append(bucketVals[j], strconv.Itoa(b))
		}
		n := numericValues(p)
		numeric[i] = n[:]
	}

	encoders := make(map[string]*LabelEncoder, len(CategoricalColumns)+len(BucketColumns))
	for j, col := range CategoricalColumns {
		encoders[col] = FitLabelEncoder(catVals[j])
	}
	for j, col := range BucketColumns {
		encoders[col] = FitLabelEncoder(bucketVals[j])
	}
	scaler, err := FitScaler(NumericColumns, numeric)
	if err != nil {
		return nil, Matrix{}, fmt.Errorf("fit scaler: %w", err)
	}
	arts := &Artifacts{Encoders: NewRegistry(encoders), Scaler: scaler}

	m := Matrix{Rows: make([]FeatureVector, len(posts)), Targets: make([]float64, len(posts))}
	for i, p := range posts {
		v, err := arts.encode(p, "train")
		if err != nil {
			return nil, Matrix{}, fmt.Errorf("encode row %d: %w", i, err)
		}
		m.Rows[i] = v
		m.Targets[i] = samples[i].EngagementRate
	}
	return arts, m, nil
}

// Encode builds the feature vector for one post at inference time. The
// topic is looked up as given; callers pass a fitted topic class.
func (a *Artifacts) Encode(p model.PostFeatures) (FeatureVector, error) {
	return a.encode(p, "infer")
}

func (a *Artifacts) encode(p model.PostFeatures, path string) (FeatureVector, error) {
	var e Encoded
	for j, v := range categoricalValues(p) {
		code, err := a.Encoders.Strict(CategoricalColumns[j], v)
		if err != nil {
			return FeatureVector{}, err
		}
		e.Categorical[j] = code
	}

	e.Buckets = BucketsFor(p)
	for j, b := range e.Buckets.values() {
		code, err := a.Encoders.Nearest(BucketColumns[j], b)
		if err != nil {
			return FeatureVector{}, err
		}
		e.BucketCodes[j] = code
	}

	for j, v := range numericValues(p) {
		z, err := a.Scaler.Transform(NumericColumns[j], v)
		if err != nil {
			return FeatureVector{}, err
		}
		e.Numeric[j] = z
	}

	e.Interactions = InteractionsFor(p)
	metrics.IncEncode(path)
	return Assemble(e), nil
}

// EncodeBatch encodes posts concurrently with at most limit workers and
// returns vectors in input order. The first error cancels the rest.
func (a *Artifacts) EncodeBatch(ctx context.Context, posts []model.PostFeatures, limit int) ([]FeatureVector, error) {
	out := make([]FeatureVector, len(posts))
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i := range posts {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			v, err := a.Encode(posts[i])
			if err != nil {
				return fmt.Errorf("post %d: %w", i, err)
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
