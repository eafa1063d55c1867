package features

import (
	"math"

	"engagelens/internal/model"
)

// Interactions are fixed arithmetic combinations of the raw scores.
type Interactions struct {
	SentimentToxicity float64
	AbsSentiment      float64
	PerfMomentum      float64
	ToxicitySquared   float64
	SentimentSquared  float64
}

// DeriveInteractions must be fed raw values, never scaled ones.
func DeriveInteractions(sentiment, toxicity, pastPerf, growth float64) Interactions {
	return Interactions{
		SentimentToxicity: sentiment * toxicity,
		AbsSentiment:      math.Abs(sentiment),
		PerfMomentum:      pastPerf * growth,
		ToxicitySquared:   toxicity * toxicity,
		SentimentSquared:  sentiment * sentiment,
	}
}

// InteractionsFor derives interactions from a post's raw scores.
func InteractionsFor(p model.PostFeatures) Interactions {
	return DeriveInteractions(p.SentimentScore, p.ToxicityScore, p.UserPastSentimentAvg, p.UserEngagementGrowth)
}
