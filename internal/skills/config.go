package skills

import (
	"fmt"
	"math"
	"time"

	apperrors "github.com/ZanzyTHEbar/teamsignal/internal/errors"
)

// weightTolerance bounds the rounding slack allowed when weights are summed
const weightTolerance = 1e-6

// Weights are the per-signal contributions to a skill level. They must sum to 1.
type Weights struct {
	Commits   float64 `koanf:"commits" json:"commits"`
	Reviews   float64 `koanf:"reviews" json:"reviews"`
	Completed float64 `koanf:"completed" json:"completed"`
	Peer      float64 `koanf:"peer" json:"peer"`
}

// Sum returns the total of all weights
func (w Weights) Sum() float64 {
	return w.Commits + w.Reviews + w.Completed + w.Peer
}

// ReferenceVolumes are the raw volumes at which a count signal saturates to 1
type ReferenceVolumes struct {
	Commits   float64 `koanf:"commits" json:"commits"`
	Reviews   float64 `koanf:"reviews" json:"reviews"`
	Completed float64 `koanf:"completed" json:"completed"`
}

// Config holds the scoring tunables
type Config struct {
	Weights                      Weights          `koanf:"weights"`
	ReferenceVolumes             ReferenceVolumes `koanf:"reference_volumes"`
	MinEvidenceForFullConfidence int              `koanf:"min_evidence_for_full_confidence"`
	TrendThreshold               float64          `koanf:"trend_threshold"`
	TrendBucket                  time.Duration    `koanf:"trend_bucket"`
	TrendMinSamples              int              `koanf:"trend_min_samples"`
}

// DefaultConfig returns the canonical weight set and reference volumes
func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			Commits:   0.35,
			Reviews:   0.25,
			Completed: 0.25,
			Peer:      0.15,
		},
		ReferenceVolumes: ReferenceVolumes{
			Commits:   100,
			Reviews:   20,
			Completed: 10,
		},
		MinEvidenceForFullConfidence: 10,
		TrendThreshold:               1.0,
		TrendBucket:                  24 * time.Hour,
		TrendMinSamples:              4,
	}
}

// Validate rejects weight sets that do not sum to 1 and non-positive tunables
func (c Config) Validate() error {
	problems := map[string]string{}

	for name, w := range map[string]float64{
		"weights.commits":   c.Weights.Commits,
		"weights.reviews":   c.Weights.Reviews,
		"weights.completed": c.Weights.Completed,
		"weights.peer":      c.Weights.Peer,
	} {
		if w < 0 || math.IsNaN(w) {
			problems[name] = "must be a non-negative number"
		}
	}
	if sum := c.Weights.Sum(); math.Abs(sum-1) > weightTolerance {
		problems["weights"] = fmt.Sprintf("must sum to 1.0, got %.6f", sum)
	}
	if c.ReferenceVolumes.Commits <= 0 {
		problems["reference_volumes.commits"] = "must be positive"
	}
	if c.ReferenceVolumes.Reviews <= 0 {
		problems["reference_volumes.reviews"] = "must be positive"
	}
	if c.ReferenceVolumes.Completed <= 0 {
		problems["reference_volumes.completed"] = "must be positive"
	}
	if c.MinEvidenceForFullConfidence <= 0 {
		problems["min_evidence_for_full_confidence"] = "must be positive"
	}
	if c.TrendThreshold < 0 {
		problems["trend_threshold"] = "must not be negative"
	}
	if c.TrendBucket <= 0 {
		problems["trend_bucket"] = "must be positive"
	}

	if len(problems) == 0 {
		return nil
	}
	return apperrors.NewConfigurationError(
		"invalid skill scoring configuration",
		apperrors.NewValidationErrorWithMap(problems),
	)
}
