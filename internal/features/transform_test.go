package features

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTopic(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{"AI product launch", "technology"},
		{nil, GeneralTopic},
		{"xyz123", "xyz123"},
		{"", GeneralTopic},
		{42, GeneralTopic},
		{"Movie Night", "entertainment"},
		{"Budget Tips", "finance"},
		{"XYZ", "xyz"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, NormalizeTopic(c.in), "input %v", c.in)
	}
	var nilStr *string
	assert.Equal(t, GeneralTopic, NormalizeTopic(nilStr))
	s := "cloud migration"
	assert.Equal(t, "technology", NormalizeTopic(&s))
}

func TestNormalizeTopicFirstRuleWins(t *testing.T) {
	// "entertainment" contains "ai", so the technology rule fires first.
	assert.Equal(t, "technology", NormalizeTopicString("entertainment"))
	// "brand" (marketing) and "business" both match; marketing is earlier.
	assert.Equal(t, "marketing", NormalizeTopicString("business brand"))
	assert.Len(t, TopicLabels(), 15)
	assert.Equal(t, "technology", TopicLabels()[0])
}

func TestBucketizeTable(t *testing.T) {
	cases := []struct {
		v    float64
		want int
	}{
		{-0.5, 0}, {-0.4, 0}, {-0.1, 1}, {0.0, 2}, {0.4, 3}, {0.9, 4},
		{math.Inf(-1), 0}, {math.Inf(1), 4},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Bucketize(c.v, SentimentCuts), "v=%v", c.v)
	}
}

func TestBucketizeMonotonicAndBoundaries(t *testing.T) {
	for _, cuts := range [][]float64{SentimentCuts, ToxicityCuts, PastPerfCuts, GrowthCuts} {
		for i, c := range cuts {
			assert.Equal(t, i, Bucketize(c, cuts))
		}
		prev := Bucketize(-2, cuts)
		for v := -2.0; v <= 2.0; v += 0.01 {
			b := Bucketize(v, cuts)
			require.GreaterOrEqual(t, b, prev, "v=%v", v)
			require.LessOrEqual(t, b, len(cuts))
			prev = b
		}
	}
	assert.Equal(t, 0, Bucketize(1, nil))
}

func TestInteractionsSymmetry(t *testing.T) {
	for _, v := range []float64{0, 0.3, 0.75, 1} {
		pos := DeriveInteractions(v, 0.2, 0.1, 0.1)
		neg := DeriveInteractions(-v, 0.2, 0.1, 0.1)
		assert.Equal(t, pos.AbsSentiment, neg.AbsSentiment)
		assert.Equal(t, pos.SentimentSquared, neg.SentimentSquared)
	}
	in := DeriveInteractions(0.5, 0.4, -0.5, 0.2)
	assert.InDelta(t, 0.2, in.SentimentToxicity, 1e-12)
	assert.InDelta(t, 0.5, in.AbsSentiment, 1e-12)
	assert.InDelta(t, -0.1, in.PerfMomentum, 1e-12)
	assert.InDelta(t, 0.16, in.ToxicitySquared, 1e-12)
	assert.InDelta(t, 0.25, in.SentimentSquared, 1e-12)
}

func TestScalerZeroVariance(t *testing.T) {
	s, err := FitScaler([]string{"a", "b"}, [][]float64{{1, 3}, {1, 5}})
	require.NoError(t, err)

	z, err := s.Transform("a", 7)
	require.NoError(t, err)
	assert.Equal(t, 0.0, z)

	z, err = s.Transform("b", 5)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, z, 1e-12)

	_, err = s.Transform("c", 1)
	require.ErrorIs(t, err, ErrUnknownColumn)

	_, err = FitScaler([]string{"a"}, nil)
	require.ErrorIs(t, err, ErrNoSamples)
}
