package sentiment

import (
	"regexp"
	"strings"
)

// Tone is the coarse emotional reading of a message
type Tone string

const (
	TonePositive Tone = "positive"
	ToneNeutral  Tone = "neutral"
	ToneNegative Tone = "negative"
)

// Urgency reflects how many blocker signals a message carries
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// ToneOf maps a polarity score to a tone
func ToneOf(score float64) Tone {
	switch {
	case score > 0.6:
		return TonePositive
	case score < 0.4:
		return ToneNegative
	default:
		return ToneNeutral
	}
}

// UrgencyOf maps a blocker term count to an urgency
func UrgencyOf(blockerTerms int) Urgency {
	switch {
	case blockerTerms > 2:
		return UrgencyHigh
	case blockerTerms > 0:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}

type keyword struct {
	term string
	re   *regexp.Regexp
}

// Heuristic is the deterministic keyword scorer used when the classifier is
// unavailable. It is lower fidelity than a trained model and only counts
// whole-word keyword hits.
type Heuristic struct {
	positive []keyword
	negative []keyword
	blocker  []keyword
}

// HeuristicResult is the outcome of scoring a single message
type HeuristicResult struct {
	Score         float64
	Confidence    float64
	PositiveCount int
	NegativeCount int
	BlockerCount  int
	BlockerTerms  []string
}

// NewHeuristic compiles the keyword sets
func NewHeuristic(kw Keywords) *Heuristic {
	return &Heuristic{
		positive: compileKeywords(kw.Positive),
		negative: compileKeywords(kw.Negative),
		blocker:  compileKeywords(kw.Blocker),
	}
}

func compileKeywords(terms []string) []keyword {
	out := make([]keyword, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(normalizeApostrophes(t)))
		if t == "" {
			continue
		}
		parts := strings.Fields(t)
		for i, p := range parts {
			parts[i] = regexp.QuoteMeta(p)
		}
		pattern := `\b` + strings.Join(parts, `\s+`) + `\b`
		out = append(out, keyword{term: t, re: regexp.MustCompile(pattern)})
	}
	return out
}

// Analyze scores text as clamp(0.5 + 0.1*(pos-neg), 0, 1) with confidence
// growing by 0.1 per keyword hit up to 1.
func (h *Heuristic) Analyze(text string) HeuristicResult {
	lower := strings.ToLower(normalizeApostrophes(text))

	pos, _ := countMatches(h.positive, lower)
	neg, _ := countMatches(h.negative, lower)
	blk, terms := countMatches(h.blocker, lower)

	score := 0.5 + 0.1*float64(pos-neg)
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	confidence := float64(pos+neg+blk) / 10
	if confidence > 1 {
		confidence = 1
	}

	return HeuristicResult{
		Score:         score,
		Confidence:    confidence,
		PositiveCount: pos,
		NegativeCount: neg,
		BlockerCount:  blk,
		BlockerTerms:  terms,
	}
}

func countMatches(set []keyword, text string) (int, []string) {
	count := 0
	terms := []string{}
	for _, k := range set {
		n := len(k.re.FindAllStringIndex(text, -1))
		if n == 0 {
			continue
		}
		count += n
		terms = append(terms, k.term)
	}
	return count, terms
}

func normalizeApostrophes(s string) string {
	return strings.NewReplacer("’", "'", "‘", "'").Replace(s)
}
