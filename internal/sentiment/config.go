package sentiment

import (
	"fmt"
	"math"
	"time"

	apperrors "github.com/ZanzyTHEbar/teamsignal/internal/errors"
)

// RiskThresholds are the cut-offs for risk classification, evaluated high first
type RiskThresholds struct {
	HighSentiment     float64 `koanf:"high_sentiment" json:"high_sentiment"`
	HighBlockerRate   float64 `koanf:"high_blocker_rate" json:"high_blocker_rate"`
	MediumSentiment   float64 `koanf:"medium_sentiment" json:"medium_sentiment"`
	MediumBlockerRate float64 `koanf:"medium_blocker_rate" json:"medium_blocker_rate"`
}

// RiskWeights combine sentiment and blocker rate into a sortable risk score
type RiskWeights struct {
	Sentiment float64 `koanf:"sentiment" json:"sentiment"`
	Blocker   float64 `koanf:"blocker" json:"blocker"`
}

// Keywords are the fallback heuristic vocabularies. Multi-word entries match
// across any run of whitespace.
type Keywords struct {
	Positive []string `koanf:"positive"`
	Negative []string `koanf:"negative"`
	Blocker  []string `koanf:"blocker"`
}

// Config holds the sentiment and risk tunables
type Config struct {
	ClassifierTimeout time.Duration  `koanf:"classifier_timeout"`
	WindowDays        int            `koanf:"window_days"`
	TrendThreshold    float64        `koanf:"trend_threshold"`
	TrendMinSamples   int            `koanf:"trend_min_samples"`
	Risk              RiskThresholds `koanf:"risk"`
	RiskWeights       RiskWeights    `koanf:"risk_weights"`
	HealthPenalty     float64        `koanf:"health_penalty"`
	Keywords          Keywords       `koanf:"keywords"`
}

// DefaultRiskThresholds returns the canonical risk cut-offs
func DefaultRiskThresholds() RiskThresholds {
	return RiskThresholds{
		HighSentiment:     0.3,
		HighBlockerRate:   0.5,
		MediumSentiment:   0.45,
		MediumBlockerRate: 0.25,
	}
}

// DefaultKeywords returns the built-in heuristic vocabularies
func DefaultKeywords() Keywords {
	return Keywords{
		Positive: []string{
			"great", "awesome", "excellent", "good", "happy", "thanks",
			"love", "amazing", "perfect", "solved", "success", "complete",
			"accomplished", "pleased", "satisfied", "excited",
		},
		Negative: []string{
			"frustrated", "angry", "disappointed", "sad", "worried",
			"concerned", "stressed", "overwhelmed", "tired", "annoyed",
			"upset", "confused", "lost", "behind", "delayed", "burned out",
			"exhausted",
		},
		Blocker: []string{
			"blocked", "stuck", "can't proceed", "cannot proceed",
			"waiting on", "waiting for", "unable to", "impediment",
			"roadblock", "need help", "help needed",
		},
	}
}

// DefaultConfig returns the default sentiment configuration
func DefaultConfig() Config {
	return Config{
		ClassifierTimeout: 4 * time.Second,
		WindowDays:        30,
		TrendThreshold:    0.1,
		TrendMinSamples:   4,
		Risk:              DefaultRiskThresholds(),
		RiskWeights: RiskWeights{
			Sentiment: 0.7,
			Blocker:   0.3,
		},
		HealthPenalty: 0.3,
		Keywords:      DefaultKeywords(),
	}
}

// Validate checks ranges and that risk weights sum to 1
func (c Config) Validate() error {
	problems := map[string]string{}

	if c.ClassifierTimeout <= 0 {
		problems["classifier_timeout"] = "must be positive"
	}
	if c.WindowDays <= 0 {
		problems["window_days"] = "must be positive"
	}
	if c.TrendThreshold < 0 {
		problems["trend_threshold"] = "must not be negative"
	}
	for name, v := range map[string]float64{
		"risk.high_sentiment":      c.Risk.HighSentiment,
		"risk.high_blocker_rate":   c.Risk.HighBlockerRate,
		"risk.medium_sentiment":    c.Risk.MediumSentiment,
		"risk.medium_blocker_rate": c.Risk.MediumBlockerRate,
		"health_penalty":           c.HealthPenalty,
	} {
		if v < 0 || v > 1 || math.IsNaN(v) {
			problems[name] = "must be within [0,1]"
		}
	}
	if c.Risk.MediumSentiment < c.Risk.HighSentiment {
		problems["risk.medium_sentiment"] = "must not be below risk.high_sentiment"
	}
	if c.Risk.MediumBlockerRate > c.Risk.HighBlockerRate {
		problems["risk.medium_blocker_rate"] = "must not exceed risk.high_blocker_rate"
	}
	if c.RiskWeights.Sentiment < 0 || c.RiskWeights.Blocker < 0 {
		problems["risk_weights"] = "must be non-negative"
	} else if sum := c.RiskWeights.Sentiment + c.RiskWeights.Blocker; math.Abs(sum-1) > 1e-6 {
		problems["risk_weights"] = fmt.Sprintf("must sum to 1.0, got %.6f", sum)
	}
	if len(c.Keywords.Positive) == 0 || len(c.Keywords.Negative) == 0 || len(c.Keywords.Blocker) == 0 {
		problems["keywords"] = "positive, negative and blocker sets must be non-empty"
	}

	if len(problems) == 0 {
		return nil
	}
	return apperrors.NewConfigurationError(
		"invalid sentiment configuration",
		apperrors.NewValidationErrorWithMap(problems),
	)
}
