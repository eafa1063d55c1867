package features

import (
	"context"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engagelens/internal/blob"
	"engagelens/internal/model"
)

func trainingSamples() []model.Sample {
	return []model.Sample{
		{Post: model.PostFeatures{
			DayOfWeek: "Monday", Platform: "Instagram", TopicCategory: "technology",
			EmotionType: "Joy", Location: "USA", Language: "English",
		}, EngagementRate: 0.1},
		{Post: model.PostFeatures{
			DayOfWeek: "Tuesday", Platform: "Twitter", TopicCategory: "Finance news",
			EmotionType: "Anger", Location: "UK", Language: "Spanish",
			SentimentScore: 0.5, ToxicityScore: 0.5, UserPastSentimentAvg: 0.3, UserEngagementGrowth: -0.3,
		}, EngagementRate: 0.2},
	}
}

func TestColumnOrder(t *testing.T) {
	want := []string{
		"day_of_week_encoded", "platform_encoded", "topic_category_encoded",
		"emotion_type_encoded", "location_encoded", "language_encoded",
		"sentiment_bucket_encoded", "toxicity_bucket_encoded", "past_perf_bucket_encoded", "growth_bucket_encoded",
		"sentiment_score", "toxicity_score", "user_past_sentiment_avg", "user_engagement_growth",
		"sentiment_bucket", "toxicity_bucket", "past_perf_bucket", "growth_bucket",
		"sentiment_toxicity_interaction", "abs_sentiment", "perf_momentum", "toxicity_squared", "sentiment_squared",
	}
	assert.Equal(t, want, ColumnNames())
	assert.Len(t, want, NumColumns)
}

func TestEndToEndScenario(t *testing.T) {
	arts, _, err := Fit(trainingSamples())
	require.NoError(t, err)

	p := trainingSamples()[0].Post
	b := BucketsFor(p)
	assert.Equal(t, Buckets{Sentiment: 2, Toxicity: 0, PastPerf: 1, Growth: 1}, b)
	assert.Equal(t, Interactions{}, InteractionsFor(p))

	v, err := arts.Encode(p)
	require.NoError(t, err)
	require.Len(t, v.X, NumColumns)

	want := []float64{
		0, 0, 1, 1, 1, 0, // Monday Instagram technology Joy USA English
		0, 0, 0, 1, // bucket codes
		-1, -1, -1, 1, // standardized scores
		2, 0, 1, 1, // raw buckets
		0, 0, 0, 0, 0,
	}
	assert.InDeltaSlice(t, want, v.X, 1e-9)

	got, ok := v.Get("growth_bucket")
	require.True(t, ok)
	assert.Equal(t, 1.0, got)
	assert.Equal(t, 2.0, v.Named()["sentiment_bucket"])
}

func TestFitNormalizesTopicsBeforeEncoding(t *testing.T) {
	arts, _, err := Fit(trainingSamples())
	require.NoError(t, err)
	assert.Equal(t, []string{"finance", "technology"}, arts.Classes()[ColTopicCategory])
	assert.Equal(t, []string{"2", "4"}, arts.Classes()[ColSentimentBucket])
}

func TestTrainAndInferAgree(t *testing.T) {
	samples := trainingSamples()
	arts, m, err := Fit(samples)
	require.NoError(t, err)
	require.Equal(t, len(samples), m.Len())
	assert.Equal(t, []float64{0.1, 0.2}, m.Targets)

	for i, s := range samples {
		p := s.Post
		p.TopicCategory = NormalizeTopicString(p.TopicCategory)
		v, err := arts.Encode(p)
		require.NoError(t, err)
		assert.Equal(t, m.Rows[i].X, v.X, "row %d", i)

		again, err := arts.Encode(p)
		require.NoError(t, err)
		assert.Equal(t, v.X, again.X)
	}
}

func TestEncodeUnseenCategoryFails(t *testing.T) {
	arts, _, err := Fit(trainingSamples())
	require.NoError(t, err)

	p := trainingSamples()[0].Post
	p.Platform = "TikTok"
	_, err = arts.Encode(p)
	require.ErrorIs(t, err, ErrUnseenCategory)
}

func TestEncodeUnseenBucketFallsBack(t *testing.T) {
	arts, _, err := Fit(trainingSamples())
	require.NoError(t, err)

	p := trainingSamples()[0].Post
	p.SentimentScore = -0.9 // bucket 0, fitted classes are {2, 4}
	v, err := arts.Encode(p)
	require.NoError(t, err)
	code, _ := v.Get("sentiment_bucket_encoded")
	raw, _ := v.Get("sentiment_bucket")
	assert.Equal(t, 0.0, code)
	assert.Equal(t, 0.0, raw)
}

func TestEncodeBatchKeepsOrder(t *testing.T) {
	samples := trainingSamples()
	arts, m, err := Fit(samples)
	require.NoError(t, err)

	posts := make([]model.PostFeatures, 0, 20)
	for i := 0; i < 10; i++ {
		for _, s := range samples {
			p := s.Post
			p.TopicCategory = NormalizeTopicString(p.TopicCategory)
			posts = append(posts, p)
		}
	}
	out, err := arts.EncodeBatch(context.Background(), posts, 3)
	require.NoError(t, err)
	require.Len(t, out, len(posts))
	for i, v := range out {
		assert.Equal(t, m.Rows[i%2].X, v.X)
	}

	posts[7].Language = "Klingon"
	_, err = arts.EncodeBatch(context.Background(), posts, 3)
	require.ErrorIs(t, err, ErrUnseenCategory)
}

func TestFitEmpty(t *testing.T) {
	_, _, err := Fit(nil)
	require.ErrorIs(t, err, ErrNoSamples)
}

func TestArtifactsRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemStore()

	_, err := LoadArtifacts(ctx, store)
	require.ErrorIs(t, err, ErrArtifactsMissing)

	arts, m, err := Fit(trainingSamples())
	require.NoError(t, err)
	require.NoError(t, arts.Save(ctx, store))

	loaded, err := LoadArtifacts(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, arts.Classes(), loaded.Classes())

	p := trainingSamples()[1].Post
	p.TopicCategory = "finance"
	v, err := loaded.Encode(p)
	require.NoError(t, err)
	assert.Equal(t, m.Rows[1].X, v.X)
}

func TestLoadArtifactsLayoutMismatch(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemStore()
	arts, _, err := Fit(trainingSamples())
	require.NoError(t, err)
	require.NoError(t, arts.Save(ctx, store))

	require.NoError(t, store.Put(ctx, EncodersKey, []byte(`{"version":1,"columns":["a"],"encoders":{}}`)))
	_, err = LoadArtifacts(ctx, store)
	require.ErrorIs(t, err, ErrLayoutMismatch)

	require.NoError(t, store.Put(ctx, EncodersKey, []byte(`{"version":2,"columns":[],"encoders":{}}`)))
	_, err = LoadArtifacts(ctx, store)
	require.ErrorIs(t, err, ErrLayoutMismatch)

	// A correct layout whose encoder entry is null must fail at load time.
	good, err := json.Marshal(encodersFile{Version: artifactVersion, Columns: ColumnNames(), Encoders: arts.Encoders})
	require.NoError(t, err)
	nulled := strings.Replace(string(good), `"day_of_week":[`, `"day_of_week":null,"x":[`, 1)
	require.NotEqual(t, string(good), nulled)
	require.NoError(t, store.Put(ctx, EncodersKey, []byte(nulled)))
	_, err = LoadArtifacts(ctx, store)
	require.ErrorIs(t, err, ErrLayoutMismatch)

	reg := NewRegistry(map[string]*LabelEncoder{ColDayOfWeek: nil})
	_, err = reg.Encoder(ColDayOfWeek)
	require.ErrorIs(t, err, ErrUnknownColumn)
}
