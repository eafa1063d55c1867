package features

import (
	"strings"

	"engagelens/internal/util"
)

// GeneralTopic is the label for missing or non-text topics.
const GeneralTopic = "general"

type topicRule struct {
	label    string
	keywords []string
}

// Order matters: the first rule with any keyword inside the text wins.
var topicRules = []topicRule{
	{"technology", []string{"tech", "ai", "software", "product", "saas", "cloud", "data"}},
	{"marketing", []string{"marketing", "brand", "ad", "campaign", "social", "content"}},
	{"education", []string{"learn", "course", "study", "tutorial", "guide", "lesson"}},
	{"business", []string{"business", "revenue", "sales", "clients", "startup", "founder", "b2b", "b2c"}},
	{"finance", []string{"finance", "invest", "investment", "crypto", "stock", "bank", "budget"}},
	{"health", []string{"health", "medical", "wellbeing", "wellness", "mental", "fitness", "care"}},
	{"lifestyle", []string{"lifestyle", "travel", "food", "life", "family", "home"}},
	{"entertainment", []string{"entertainment", "movie", "film", "music", "show", "game", "gaming"}},
	{"sports", []string{"sports", "football", "soccer", "basketball", "tennis", "run", "workout"}},
	{"news", []string{"news", "update", "breaking", "trending", "headline"}},
	{"career", []string{"career", "job", "hiring", "interview", "resume", "cv", "promotion"}},
	{"productivity", []string{"productivity", "workflow", "automation", "process", "time management"}},
	{"design", []string{"design", "ux", "ui", "graphic", "creative"}},
	{"engineering", []string{"engineering", "code", "developer", "dev", "program", "build"}},
	{"motivation", []string{"motivation", "inspiration", "mindset", "success", "discipline"}},
}

// TopicLabels lists the rule labels in evaluation order.
func TopicLabels() []string {
	out := make([]string, len(topicRules))
	for i, r := range topicRules {
		out[i] = r.label
	}
	return out
}

// NormalizeTopic maps a raw topic value onto the label taxonomy.
// Anything that is not a string (nil included) becomes GeneralTopic.
func NormalizeTopic(raw any) string {
	switch v := raw.(type) {
	case string:
		return NormalizeTopicString(v)
	case *string:
		if v == nil {
			return GeneralTopic
		}
		return NormalizeTopicString(*v)
	default:
		return GeneralTopic
	}
}

// NormalizeTopicString lower-cases s and returns the first matching rule
// label, else the lower-cased text itself, else GeneralTopic when empty.
func NormalizeTopicString(s string) string {
	text := strings.ToLower(s)
	for _, r := range topicRules {
		if util.ContainsAnyCaseInsensitive(text, r.keywords) {
			return r.label
		}
	}
	if text == "" {
		return GeneralTopic
	}
	return text
}
