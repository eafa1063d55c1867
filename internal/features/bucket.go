package features

import "engagelens/internal/model"

// Cut points for the four bucketed scores. Ascending; a value equal to a
// cut falls into that cut's bucket.
var (
	SentimentCuts = []float64{-0.4, -0.1, 0.1, 0.4}
	ToxicityCuts  = []float64{0.2, 0.4, 0.6, 0.8}
	PastPerfCuts  = []float64{-0.2, 0.0, 0.2, 0.5}
	GrowthCuts    = []float64{-0.2, 0.0, 0.2, 0.5}
)

// Bucketize returns the index of the first cut with v <= cut, or len(cuts)
// when v lies above every cut.
func Bucketize(v float64, cuts []float64) int {
	for i, c := range cuts {
		if v <= c {
			return i
		}
	}
	return len(cuts)
}

// Buckets holds the ordinal bucket of each bucketed score.
type Buckets struct {
	Sentiment int
	Toxicity  int
	PastPerf  int
	Growth    int
}

// BucketsFor bucketizes the raw (un-normalized) scores of p.
func BucketsFor(p model.PostFeatures) Buckets {
	return Buckets{
		Sentiment: Bucketize(p.SentimentScore, SentimentCuts),
		Toxicity:  Bucketize(p.ToxicityScore, ToxicityCuts),
		PastPerf:  Bucketize(p.UserPastSentimentAvg, PastPerfCuts),
		Growth:    Bucketize(p.UserEngagementGrowth, GrowthCuts),
	}
}

// values returns the buckets in BucketColumns order.
func (b Buckets) values() [4]int {
	return [4]int{b.Sentiment, b.Toxicity, b.PastPerf, b.Growth}
}
