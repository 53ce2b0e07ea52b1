package analysis

import (
	"math"
	"sort"
	"time"
)

// DefaultMinSamples is the smallest series the analyzer will classify
const DefaultMinSamples = 4

// Direction is the coarse movement of a metric over time
type Direction string

const (
	Improving Direction = "improving"
	Declining Direction = "declining"
	Stable    Direction = "stable"
)

// Point is one timestamped observation of a scalar metric
type Point struct {
	At    time.Time `json:"at"`
	Value float64   `json:"value"`
}

// Trend is the result of comparing the later half of a series with the earlier half
type Trend struct {
	Direction Direction `json:"direction"`
	Magnitude float64   `json:"magnitude"`
}

// TrendAnalyzer classifies a time-ordered series as improving, declining or stable.
// The threshold passed to Classify is in the caller's units; the analyzer never
// infers a scale.
type TrendAnalyzer struct {
	minSamples int
}

// NewTrendAnalyzer creates an analyzer. minSamples <= 0 selects DefaultMinSamples.
func NewTrendAnalyzer(minSamples int) *TrendAnalyzer {
	if minSamples <= 0 {
		minSamples = DefaultMinSamples
	}
	if minSamples < 2 {
		minSamples = 2
	}
	return &TrendAnalyzer{minSamples: minSamples}
}

// MinSamples returns the configured minimum series length
func (a *TrendAnalyzer) MinSamples() int {
	return a.minSamples
}

// Classify splits the series into two equal contiguous windows and compares their means.
// Insufficient data yields Stable with zero magnitude.
func (a *TrendAnalyzer) Classify(series []Point, threshold float64) Trend {
	if len(series) < a.minSamples {
		return Trend{Direction: Stable}
	}

	sorted := append([]Point(nil), series...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].At.Before(sorted[j].At)
	})

	// odd-length series drop the middle point so both windows have equal size
	half := len(sorted) / 2
	earlier := sorted[:half]
	later := sorted[len(sorted)-half:]

	delta := meanOf(later) - meanOf(earlier)
	if math.IsNaN(delta) || math.IsInf(delta, 0) {
		return Trend{Direction: Stable}
	}

	threshold = math.Abs(threshold)
	switch {
	case delta > threshold:
		return Trend{Direction: Improving, Magnitude: delta}
	case delta < -threshold:
		return Trend{Direction: Declining, Magnitude: delta}
	default:
		return Trend{Direction: Stable, Magnitude: delta}
	}
}

func meanOf(points []Point) float64 {
	if len(points) == 0 {
		return 0
	}
	s := 0.0
	for _, p := range points {
		s += p.Value
	}
	return s / float64(len(points))
}
