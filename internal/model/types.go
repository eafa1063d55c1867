package model

// PostFeatures is the set of pre-posting attributes known before a post is
// published. It is the only input to the feature pipeline.
type PostFeatures struct {
	DayOfWeek     string `json:"day_of_week" validate:"required"`
	Platform      string `json:"platform" validate:"required"`
	TopicCategory string `json:"topic_category" validate:"required"`
	Location      string `json:"location" validate:"required"`
	Language      string `json:"language" validate:"required"`
	EmotionType   string `json:"emotion_type" validate:"required"`

	SentimentScore       float64 `json:"sentiment_score" validate:"gte=-1,lte=1"`
	ToxicityScore        float64 `json:"toxicity_score" validate:"gte=0,lte=1"`
	UserPastSentimentAvg float64 `json:"user_past_sentiment_avg" validate:"gte=-1,lte=1"`
	UserEngagementGrowth float64 `json:"user_engagement_growth" validate:"gte=-1,lte=1"`
}

// Sample is a training row: a post and its observed engagement rate.
type Sample struct {
	Post           PostFeatures
	EngagementRate float64
}
