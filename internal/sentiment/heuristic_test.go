package sentiment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeuristic_Analyze(t *testing.T) {
	h := NewHeuristic(DefaultKeywords())

	tests := []struct {
		name       string
		text       string
		score      float64
		confidence float64
		blockers   int
		terms      []string
	}{
		{
			name:       "neutral text",
			text:       "Pushed the migration to staging",
			score:      0.5,
			confidence: 0,
			terms:      []string{},
		},
		{
			name:       "positive text",
			text:       "Great work, thanks! The fix is perfect",
			score:      0.8,
			confidence: 0.3,
			terms:      []string{},
		},
		{
			name:       "negative text",
			text:       "I'm frustrated and stressed, we are behind again",
			score:      0.2,
			confidence: 0.3,
			terms:      []string{},
		},
		{
			name:       "blockers are counted separately from polarity",
			text:       "Still blocked, waiting   on the infra team. I’m stuck and can’t proceed",
			score:      0.5,
			confidence: 0.4,
			blockers:   4,
			terms:      []string{"blocked", "stuck", "can't proceed", "waiting on"},
		},
		{
			name:       "substrings do not match",
			text:       "goodness, the unblocked stopwatch is sadly lost",
			score:      0.4,
			confidence: 0.1,
			terms:      []string{},
		},
		{
			name:       "repeated keywords count every occurrence",
			text:       "good good good good good good good",
			score:      1.0,
			confidence: 0.7,
			terms:      []string{},
		},
		{
			name:       "score is clamped at zero",
			text:       "sad sad sad sad sad sad sad",
			score:      0,
			confidence: 0.7,
			terms:      []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := h.Analyze(tt.text)
			assert.InDelta(t, tt.score, r.Score, 1e-9)
			assert.InDelta(t, tt.confidence, r.Confidence, 1e-9)
			assert.Equal(t, tt.blockers, r.BlockerCount)
			assert.Equal(t, tt.terms, r.BlockerTerms)
		})
	}
}

func TestHeuristic_ConfidenceCapsAtOne(t *testing.T) {
	h := NewHeuristic(DefaultKeywords())
	r := h.Analyze("blocked blocked blocked blocked blocked blocked good good good good sad sad")
	assert.Equal(t, 1.0, r.Confidence)
}

func TestToneAndUrgency(t *testing.T) {
	assert.Equal(t, TonePositive, ToneOf(0.61))
	assert.Equal(t, ToneNeutral, ToneOf(0.6))
	assert.Equal(t, ToneNeutral, ToneOf(0.4))
	assert.Equal(t, ToneNegative, ToneOf(0.39))

	assert.Equal(t, UrgencyLow, UrgencyOf(0))
	assert.Equal(t, UrgencyMedium, UrgencyOf(1))
	assert.Equal(t, UrgencyMedium, UrgencyOf(2))
	assert.Equal(t, UrgencyHigh, UrgencyOf(3))
}
