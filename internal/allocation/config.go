package allocation

import (
	"fmt"
	"math"

	apperrors "github.com/ZanzyTHEbar/teamsignal/internal/errors"
)

// Weights combine the three candidate factors into an overall score
type Weights struct {
	Skill    float64 `koanf:"skill" json:"skill"`
	Workload float64 `koanf:"workload" json:"workload"`
	Growth   float64 `koanf:"growth" json:"growth"`
}

// Growth holds the per-skill growth contributions
type Growth struct {
	Lacking    float64 `koanf:"lacking" json:"lacking"`
	Cap        float64 `koanf:"cap" json:"cap"`
	Proficient float64 `koanf:"proficient" json:"proficient"`
}

// Config holds the allocation tunables
type Config struct {
	Weights           Weights `koanf:"weights"`
	Growth            Growth  `koanf:"growth"`
	LoadPenalty       float64 `koanf:"load_penalty"`
	NeutralSkillMatch float64 `koanf:"neutral_skill_match"`
	InferRequirements bool    `koanf:"infer_requirements"`
}

// DefaultConfig returns the canonical three-factor weighting
func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			Skill:    0.5,
			Workload: 0.3,
			Growth:   0.2,
		},
		Growth: Growth{
			Lacking:    0.8,
			Cap:        0.6,
			Proficient: 0.1,
		},
		LoadPenalty:       0.1,
		NeutralSkillMatch: 0.5,
		InferRequirements: true,
	}
}

// Validate rejects weights that do not sum to 1 and out-of-range constants
func (c Config) Validate() error {
	problems := map[string]string{}

	if c.Weights.Skill < 0 || c.Weights.Workload < 0 || c.Weights.Growth < 0 {
		problems["weights"] = "must be non-negative"
	} else if sum := c.Weights.Skill + c.Weights.Workload + c.Weights.Growth; math.Abs(sum-1) > 1e-6 {
		problems["weights"] = fmt.Sprintf("must sum to 1.0, got %.6f", sum)
	}
	for name, v := range map[string]float64{
		"growth.lacking":      c.Growth.Lacking,
		"growth.cap":          c.Growth.Cap,
		"growth.proficient":   c.Growth.Proficient,
		"neutral_skill_match": c.NeutralSkillMatch,
	} {
		if v < 0 || v > 1 || math.IsNaN(v) {
			problems[name] = "must be within [0,1]"
		}
	}
	if c.LoadPenalty < 0 || math.IsNaN(c.LoadPenalty) {
		problems["load_penalty"] = "must not be negative"
	}

	if len(problems) == 0 {
		return nil
	}
	return apperrors.NewConfigurationError(
		"invalid allocation configuration",
		apperrors.NewValidationErrorWithMap(problems),
	)
}
