package features

// Raw input columns.
const (
	ColDayOfWeek     = "day_of_week"
	ColPlatform      = "platform"
	ColTopicCategory = "topic_category"
	ColEmotionType   = "emotion_type"
	ColLocation      = "location"
	ColLanguage      = "language"

	ColSentimentBucket = "sentiment_bucket"
	ColToxicityBucket  = "toxicity_bucket"
	ColPastPerfBucket  = "past_perf_bucket"
	ColGrowthBucket    = "growth_bucket"

	ColSentimentScore       = "sentiment_score"
	ColToxicityScore        = "toxicity_score"
	ColUserPastSentimentAvg = "user_past_sentiment_avg"
	ColUserEngagementGrowth = "user_engagement_growth"

	ColEngagementRate = "engagement_rate"
)

var (
	// CategoricalColumns go through the strict encode path.
	CategoricalColumns = []string{ColDayOfWeek, ColPlatform, ColTopicCategory, ColEmotionType, ColLocation, ColLanguage}
	// BucketColumns go through the nearest fallback path.
	BucketColumns = []string{ColSentimentBucket, ColToxicityBucket, ColPastPerfBucket, ColGrowthBucket}
	// NumericColumns are standardized by the Scaler.
	NumericColumns = []string{ColSentimentScore, ColToxicityScore, ColUserPastSentimentAvg, ColUserEngagementGrowth}
	// InteractionColumns are derived from raw scores.
	InteractionColumns = []string{"sentiment_toxicity_interaction", "abs_sentiment", "perf_momentum", "toxicity_squared", "sentiment_squared"}
)

// NumColumns is the width of a FeatureVector.
const NumColumns = 23

// Columns is the model's input layout. Reordering it silently corrupts
// predictions of an already trained model.
var Columns = [NumColumns]string{
	"day_of_week_encoded", "platform_encoded", "topic_category_encoded",
	"emotion_type_encoded", "location_encoded", "language_encoded",
	"sentiment_bucket_encoded", "toxicity_bucket_encoded",
	"past_perf_bucket_encoded", "growth_bucket_encoded",
	"sentiment_score", "toxicity_score", "user_past_sentiment_avg", "user_engagement_growth",
	"sentiment_bucket", "toxicity_bucket", "past_perf_bucket", "growth_bucket",
	"sentiment_toxicity_interaction", "abs_sentiment", "perf_momentum",
	"toxicity_squared", "sentiment_squared",
}

// ColumnNames returns Columns as a slice.
func ColumnNames() []string {
	return append([]string(nil), Columns[:]...)
}

// FeatureVector is one model-ready row in Columns order.
type FeatureVector struct {
	X []float64 `json:"x"`
}

// Named returns the vector keyed by column name.
func (v FeatureVector) Named() map[string]float64 {
	out := make(map[string]float64, len(v.X))
	for i, x := range v.X {
		if i < NumColumns {
			out[Columns[i]] = x
		}
	}
	return out
}

// Get returns the value of the named column.
func (v FeatureVector) Get(column string) (float64, bool) {
	for i, c := range Columns {
		if c == column && i < len(v.X) {
			return v.X[i], true
		}
	}
	return 0, false
}

// Encoded holds every intermediate value of one row before assembly.
type Encoded struct {
	Categorical  [6]int
	BucketCodes  [4]int
	Numeric      [4]float64
	Buckets      Buckets
	Interactions Interactions
}

// Assemble lays e out in Columns order.
func Assemble(e Encoded) FeatureVector {
	x := make([]float64, 0, NumColumns)
	for _, c := range e.Categorical {
		x = append(x, float64(c))
	}
	for _, c := range e.BucketCodes {
		x = append(x, float64(c))
	}
	x = append(x, e.Numeric[:]...)
	for _, b := range e.Buckets.values() {
		x = append(x, float64(b))
	}
	in := e.Interactions
	x = append(x, in.SentimentToxicity, in.AbsSentiment, in.PerfMomentum, in.ToxicitySquared, in.SentimentSquared)
	return FeatureVector{X: x}
}
