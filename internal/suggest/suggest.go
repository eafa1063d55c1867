// Package suggest turns a post's pre-posting attributes into short
// recommendations. Rules are CEL expressions compiled once per Advisor.
package suggest

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"engagelens/internal/model"
)

// FallbackTip is returned when no rule fires.
const FallbackTip = "Your post looks great - keep doing what you're doing!"

// Rule fires Tip when When evaluates to true. When sees two variables:
// post (map keyed by the JSON field names of model.PostFeatures) and rate
// (the clipped prediction, or -1 when unknown).
type Rule struct {
	Name string `yaml:"name" json:"name"`
	When string `yaml:"when" json:"when"`
	Tip  string `yaml:"tip" json:"tip"`
}

// DefaultRules reproduce the stock sentiment, toxicity, platform, growth and
// emotion tips. Within each group the conditions are mutually exclusive.
var DefaultRules = []Rule{
	{Name: "sentiment_negative", When: `post.sentiment_score <= -0.5`, Tip: "Try more positive language - people engage more with uplifting content"},
	{Name: "sentiment_slightly_negative", When: `post.sentiment_score > -0.5 && post.sentiment_score < 0.0`, Tip: "Add some positivity to boost engagement"},
	{Name: "toxicity_high", When: `post.toxicity_score > 0.7`, Tip: "Very controversial - consider toning it down for wider appeal"},
	{Name: "toxicity_moderate", When: `post.toxicity_score > 0.5 && post.toxicity_score <= 0.7`, Tip: "Moderately controversial - some audiences may be put off"},
	{Name: "platform_instagram", When: `post.platform == "Instagram"`, Tip: "Instagram tip: Use high-quality images and trending hashtags"},
	{Name: "platform_facebook", When: `post.platform == "Facebook"`, Tip: "Facebook tip: Ask engaging questions to encourage comments"},
	{Name: "platform_twitter", When: `post.platform == "Twitter"`, Tip: "Twitter tip: Use trending hashtags for better visibility"},
	{Name: "platform_linkedin", When: `post.platform == "LinkedIn"`, Tip: "LinkedIn tip: Share professional insights and expertise"},
	{Name: "platform_tiktok", When: `post.platform == "TikTok"`, Tip: "TikTok tip: Use trending sounds and keep videos under 60 seconds"},
	{Name: "growth_falling_fast", When: `post.user_engagement_growth < -0.5`, Tip: "Try new content formats or posting times to reverse the trend"},
	{Name: "growth_falling", When: `post.user_engagement_growth >= -0.5 && post.user_engagement_growth < 0.0`, Tip: "Your engagement is declining - experiment with fresh content"},
	{Name: "negative_emotion", When: `post.emotion_type in ["Anger", "Fear", "Disgust"]`, Tip: "Negative emotions get attention but positive emotions get shares"},
}

type compiledRule struct {
	Rule
	prg cel.Program
}

// Advisor evaluates a fixed rule list. It is safe for concurrent use.
type Advisor struct {
	rules []compiledRule
}

func newEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("post", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("rate", cel.DoubleType),
	)
}

// NewAdvisor compiles rules in order. A rule that does not compile is an
// error; a non-bool result surfaces from Recommend.
func NewAdvisor(rules []Rule) (*Advisor, error) {
	env, err := newEnv()
	if err != nil {
		return nil, err
	}
	a := &Advisor{rules: make([]compiledRule, 0, len(rules))}
	for _, r := range rules {
		ast, issues := env.Compile(r.When)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("rule %q: compile error: %w", r.Name, issues.Err())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("rule %q: program error: %w", r.Name, err)
		}
		a.rules = append(a.rules, compiledRule{Rule: r, prg: prg})
	}
	return a, nil
}

// Recommend returns the tips of every firing rule in rule order, or
// FallbackTip alone. Pass rate < 0 when no prediction is available.
func (a *Advisor) Recommend(p model.PostFeatures, rate float64) ([]string, error) {
	input := map[string]any{
		"post": postMap(p),
		"rate": rate,
	}
	var out []string
	for _, r := range a.rules {
		v, _, err := r.prg.Eval(input)
		if err != nil {
			return nil, fmt.Errorf("rule %q: eval error: %w", r.Name, err)
		}
		fired, ok := v.Value().(bool)
		if !ok {
			return nil, fmt.Errorf("rule %q: expression must return boolean, got %T", r.Name, v.Value())
		}
		if fired {
			out = append(out, r.Tip)
		}
	}
	if len(out) == 0 {
		return []string{FallbackTip}, nil
	}
	return out, nil
}

func postMap(p model.PostFeatures) map[string]any {
	return map[string]any{
		"day_of_week":             p.DayOfWeek,
		"platform":                p.Platform,
		"topic_category":          p.TopicCategory,
		"location":                p.Location,
		"language":                p.Language,
		"emotion_type":            p.EmotionType,
		"sentiment_score":         p.SentimentScore,
		"toxicity_score":          p.ToxicityScore,
		"user_past_sentiment_avg": p.UserPastSentimentAvg,
		"user_engagement_growth":  p.UserEngagementGrowth,
	}
}
