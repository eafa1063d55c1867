package server

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engagelens/internal/blob"
	"engagelens/internal/features"
	"engagelens/internal/model"
	"engagelens/internal/predictor"
	"engagelens/internal/schedule"
	"engagelens/internal/store/sqlitevec"
	"engagelens/internal/suggest"
)

func samplePosts() []model.Sample {
	return []model.Sample{
		{Post: model.PostFeatures{DayOfWeek: "Monday", Platform: "Instagram", TopicCategory: "technology", Location: "USA", Language: "English", EmotionType: "Joy"}, EngagementRate: 0.1},
		{Post: model.PostFeatures{DayOfWeek: "Tuesday", Platform: "Twitter", TopicCategory: "Finance news", Location: "UK", Language: "Spanish", EmotionType: "Anger",
			SentimentScore: 0.5, ToxicityScore: 0.5, UserPastSentimentAvg: 0.3, UserEngagementGrowth: -0.3}, EngagementRate: 0.4},
	}
}

// dayPredictor scores rows by their encoded day so Tuesday wins.
var dayPredictor = predictor.Func(func(ctx context.Context, rows []features.FeatureVector) ([]float64, error) {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = 0.2 + 0.5*r.X[0]
	}
	return out, nil
})

func newTestServer(t *testing.T, opts Options) (*Server, *httptest.Server) {
	t.Helper()
	arts, _, err := features.Fit(samplePosts())
	require.NoError(t, err)
	adv, err := suggest.NewAdvisor(suggest.DefaultRules)
	require.NoError(t, err)
	if opts.Artifacts == nil {
		opts.Artifacts = arts
	}
	if opts.Predictor == nil {
		opts.Predictor = dayPredictor
	}
	opts.Advisor = adv
	s := New(opts)
	ts := httptest.NewServer(s.Routes())
	t.Cleanup(ts.Close)
	return s, ts
}

func post(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestPredictLogsAndAdvises(t *testing.T) {
	db, err := sqlitevec.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()
	_, ts := newTestServer(t, Options{DB: db})

	p := samplePosts()[1].Post
	p.TopicCategory = "finance"
	resp := post(t, ts.URL+"/v1/predict", p)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var got predictResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.InDelta(t, 0.7, got.Rate, 1e-12)
	assert.Equal(t, model.LevelHigh, got.Level)
	assert.Equal(t, 70, got.Percent)
	assert.Contains(t, got.Recommendations, "Twitter tip: Use trending hashtags for better visibility")
	assert.NotEmpty(t, got.ID)

	lr, err := http.Get(ts.URL + "/v1/predictions")
	require.NoError(t, err)
	defer lr.Body.Close()
	var logged []predictionView
	require.NoError(t, json.NewDecoder(lr.Body).Decode(&logged))
	require.Len(t, logged, 1)
	assert.Equal(t, got.ID, logged[0].ID)
	assert.Contains(t, string(logged[0].Post), `"platform":"Twitter"`)

	sr, err := http.Get(ts.URL + "/v1/stats")
	require.NoError(t, err)
	defer sr.Body.Close()
	var stats statsResponse
	require.NoError(t, json.NewDecoder(sr.Body).Decode(&stats))
	assert.Equal(t, 1, stats.Predictions24h)
	assert.Empty(t, stats.Breaker)
}

func TestPredictErrors(t *testing.T) {
	_, ts := newTestServer(t, Options{})

	unseen := samplePosts()[0].Post
	unseen.Platform = "Mastodon"
	assert.Equal(t, http.StatusUnprocessableEntity, post(t, ts.URL+"/v1/predict", unseen).StatusCode)

	bad := samplePosts()[0].Post
	bad.SentimentScore = 2
	assert.Equal(t, http.StatusBadRequest, post(t, ts.URL+"/v1/predict", bad).StatusCode)

	assert.Equal(t, http.StatusBadRequest, post(t, ts.URL+"/v1/predict", map[string]any{"bogus": 1}).StatusCode)
}

func TestPredictorFailureIsBadGateway(t *testing.T) {
	short := predictor.Func(func(ctx context.Context, rows []features.FeatureVector) ([]float64, error) {
		return nil, nil
	})
	_, ts := newTestServer(t, Options{Predictor: short})
	assert.Equal(t, http.StatusBadGateway, post(t, ts.URL+"/v1/predict", samplePosts()[0].Post).StatusCode)
}

func TestEncodeBatch(t *testing.T) {
	_, ts := newTestServer(t, Options{EncodeWorkers: 2})
	posts := []model.PostFeatures{samplePosts()[0].Post, samplePosts()[0].Post}
	posts[1].TopicCategory = "finance"
	posts[1].DayOfWeek = "Tuesday"
	resp := post(t, ts.URL+"/v1/encode", encodeRequest{Posts: posts})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got encodeResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, features.ColumnNames(), got.Columns)
	require.Len(t, got.Rows, 2)
	assert.Len(t, got.Rows[0], features.NumColumns)
	assert.Equal(t, 0.0, got.Rows[0][0])
	assert.Equal(t, 1.0, got.Rows[1][0])
}

func TestBestDayWithoutDay(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	p := samplePosts()[0].Post
	p.DayOfWeek = ""
	resp := post(t, ts.URL+"/v1/best-day", p)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var plan schedule.Plan
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&plan))
	assert.Equal(t, "Tuesday", plan.Best.Day)
	assert.Len(t, plan.Ranking, 2)

	p.ToxicityScore = 3
	assert.Equal(t, http.StatusBadRequest, post(t, ts.URL+"/v1/best-day", p).StatusCode)
}

func TestClassesAndHealth(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	resp, err := http.Get(ts.URL + "/v1/classes")
	require.NoError(t, err)
	defer resp.Body.Close()
	var classes map[string][]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&classes))
	assert.Equal(t, []string{"Instagram", "Twitter"}, classes[features.ColPlatform])

	h, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	h.Body.Close()
	assert.Equal(t, http.StatusOK, h.StatusCode)
}

func TestRateLimit(t *testing.T) {
	_, ts := newTestServer(t, Options{RPS: 0.001, Burst: 1})
	first, err := http.Get(ts.URL + "/v1/columns")
	require.NoError(t, err)
	first.Body.Close()
	second, err := http.Get(ts.URL + "/v1/columns")
	require.NoError(t, err)
	second.Body.Close()
	assert.Equal(t, http.StatusOK, first.StatusCode)
	assert.Equal(t, http.StatusTooManyRequests, second.StatusCode)
}

func TestReload(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemStore()
	s, ts := newTestServer(t, Options{Store: store})

	assert.Equal(t, http.StatusServiceUnavailable, post(t, ts.URL+"/v1/reload", nil).StatusCode)

	more := append(samplePosts(), model.Sample{Post: model.PostFeatures{DayOfWeek: "Friday", Platform: "TikTok", TopicCategory: "music", Location: "India", Language: "Hindi", EmotionType: "Joy"}, EngagementRate: 0.9})
	arts, _, err := features.Fit(more)
	require.NoError(t, err)
	require.NoError(t, arts.Save(ctx, store))

	assert.Equal(t, http.StatusOK, post(t, ts.URL+"/v1/reload", nil).StatusCode)
	enc, err := s.Artifacts().Encoders.Encoder(features.ColPlatform)
	require.NoError(t, err)
	assert.True(t, enc.Has("TikTok"))
}
