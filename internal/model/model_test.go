package model

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func validPost() PostFeatures {
	return PostFeatures{
		DayOfWeek:     "Monday",
		Platform:      "Instagram",
		TopicCategory: "technology",
		Location:      "USA",
		Language:      "English",
		EmotionType:   "Joy",
	}
}

func TestValidateAcceptsInRange(t *testing.T) {
	p := validPost()
	p.SentimentScore = -1
	p.ToxicityScore = 1
	p.UserPastSentimentAvg = 1
	p.UserEngagementGrowth = -1
	if err := p.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	p := validPost()
	p.ToxicityScore = -0.1
	p.SentimentScore = 1.5
	err := p.Validate()
	if !errors.Is(err, ErrInvalidPost) {
		t.Fatalf("expected ErrInvalidPost, got %v", err)
	}
	if !strings.Contains(err.Error(), "toxicity_score") || !strings.Contains(err.Error(), "sentiment_score") {
		t.Fatalf("error should name json fields: %v", err)
	}
}

func TestValidateRejectsNaNAndMissing(t *testing.T) {
	p := validPost()
	p.SentimentScore = math.NaN()
	if err := p.Validate(); err == nil {
		t.Fatalf("NaN must not validate")
	}
	p = validPost()
	p.Platform = ""
	if err := p.Validate(); err == nil || !strings.Contains(err.Error(), "platform is required") {
		t.Fatalf("expected required error, got %v", err)
	}
}

func TestValidateForDaySearch(t *testing.T) {
	p := validPost()
	p.DayOfWeek = ""
	if err := p.ValidateForDaySearch(); err != nil {
		t.Fatalf("day should be optional: %v", err)
	}
	if p.DayOfWeek != "" {
		t.Fatalf("caller's post was modified: %q", p.DayOfWeek)
	}
	p.ToxicityScore = 1.2
	if err := p.ValidateForDaySearch(); !errors.Is(err, ErrInvalidPost) {
		t.Fatalf("expected ErrInvalidPost, got %v", err)
	}
	p = validPost()
	p.Platform = ""
	if err := p.ValidateForDaySearch(); err == nil {
		t.Fatal("other categoricals stay required")
	}
}

func TestClassifyRate(t *testing.T) {
	cases := map[float64]Level{0: LevelLow, 0.29: LevelLow, 0.3: LevelModerate, 0.59: LevelModerate, 0.6: LevelHigh, 1: LevelHigh}
	for in, want := range cases {
		if got := ClassifyRate(in); got != want {
			t.Fatalf("ClassifyRate(%v)=%s want %s", in, got, want)
		}
	}
	if Percent(0.427) != 43 {
		t.Fatalf("percent rounding")
	}
}
