package sentiment

import (
	"sort"
	"time"

	"github.com/ZanzyTHEbar/teamsignal/internal/analysis"
)

// RiskLevel is a person's attrition/burnout risk bucket
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

const neutralSentiment = 0.5

// PersonRiskProfile summarizes one person's observations over a rolling window
type PersonRiskProfile struct {
	PersonID         string             `json:"person_id"`
	AverageSentiment float64            `json:"average_sentiment"`
	SentimentTrend   analysis.Direction `json:"sentiment_trend"`
	TrendMagnitude   float64            `json:"trend_magnitude"`
	BlockerRate      float64            `json:"blocker_rate"`
	BlockerCount     int                `json:"blocker_count"`
	RiskLevel        RiskLevel          `json:"risk_level"`
	RiskScore        float64            `json:"risk_score"`
	SampleCount      int                `json:"sample_count"`
	WindowDays       int                `json:"window_days"`
	Confidence       float64            `json:"confidence"`
	HeuristicCount   int                `json:"heuristic_count"`
}

// TeamRiskSummary rolls member profiles up to the team
type TeamRiskSummary struct {
	TeamID               string              `json:"team_id"`
	Members              int                 `json:"members"`
	TeamAverageSentiment float64             `json:"team_average_sentiment"`
	TeamMedianSentiment  float64             `json:"team_median_sentiment"`
	TeamTrend            analysis.Direction  `json:"team_trend"`
	AtRiskMembers        []PersonRiskProfile `json:"at_risk_members"`
	RiskDistribution     map[RiskLevel]int   `json:"risk_distribution"`
	TeamHealthScore      float64             `json:"team_health_score"`
	TotalBlockers        int                 `json:"total_blockers"`
}

// Classify applies the thresholds in order high, medium, low
func (t RiskThresholds) Classify(averageSentiment, blockerRate float64) RiskLevel {
	switch {
	case averageSentiment < t.HighSentiment || blockerRate > t.HighBlockerRate:
		return RiskHigh
	case averageSentiment < t.MediumSentiment || blockerRate > t.MediumBlockerRate:
		return RiskMedium
	default:
		return RiskLow
	}
}

// ClassifyRisk classifies with the default thresholds
func ClassifyRisk(averageSentiment, blockerRate float64) RiskLevel {
	return DefaultRiskThresholds().Classify(averageSentiment, blockerRate)
}

// RiskScore orders at-risk members; higher is worse
func (w RiskWeights) RiskScore(averageSentiment, blockerRate float64) float64 {
	return (1-averageSentiment)*w.Sentiment + blockerRate*w.Blocker
}

// AggregatePerson builds a risk profile from the person's observations that
// fall inside [now - windowDays, now]. windowDays <= 0 uses the configured
// window. No observations is not an error: the profile is neutral with a zero
// sample count.
func (e *Engine) AggregatePerson(personID string, observations []Observation, windowDays int) PersonRiskProfile {
	if windowDays <= 0 {
		windowDays = e.cfg.WindowDays
	}
	now := e.now()
	start := now.Add(-time.Duration(windowDays) * 24 * time.Hour)

	profile := PersonRiskProfile{
		PersonID:         personID,
		AverageSentiment: neutralSentiment,
		SentimentTrend:   analysis.Stable,
		WindowDays:       windowDays,
	}

	var (
		sum, confidence float64
		points          []analysis.Point
	)
	for _, o := range observations {
		if o.PersonID != personID || o.ObservedAt.Before(start) || o.ObservedAt.After(now) {
			continue
		}
		profile.SampleCount++
		sum += o.Score
		confidence += o.Confidence
		if o.HasBlocker {
			profile.BlockerCount++
		}
		if o.Source == SourceHeuristic {
			profile.HeuristicCount++
		}
		points = append(points, analysis.Point{At: o.ObservedAt, Value: o.Score})
	}

	if profile.SampleCount > 0 {
		n := float64(profile.SampleCount)
		profile.AverageSentiment = sum / n
		profile.BlockerRate = float64(profile.BlockerCount) / n
		profile.Confidence = confidence / n

		trend := e.trend.Classify(points, e.cfg.TrendThreshold)
		profile.SentimentTrend = trend.Direction
		profile.TrendMagnitude = trend.Magnitude
	}

	profile.RiskLevel = e.cfg.Risk.Classify(profile.AverageSentiment, profile.BlockerRate)
	profile.RiskScore = e.cfg.RiskWeights.RiskScore(profile.AverageSentiment, profile.BlockerRate)
	return profile
}

// AggregateTeam summarizes member profiles. Every member counts equally in the
// team average regardless of message volume.
func (e *Engine) AggregateTeam(teamID string, profiles []PersonRiskProfile) TeamRiskSummary {
	summary := TeamRiskSummary{
		TeamID:               teamID,
		Members:              len(profiles),
		TeamAverageSentiment: neutralSentiment,
		TeamMedianSentiment:  neutralSentiment,
		TeamTrend:            analysis.Stable,
		AtRiskMembers:        []PersonRiskProfile{},
		RiskDistribution: map[RiskLevel]int{
			RiskLow:    0,
			RiskMedium: 0,
			RiskHigh:   0,
		},
		TeamHealthScore: neutralSentiment,
	}
	if len(profiles) == 0 {
		return summary
	}

	sum := 0.0
	averages := make([]float64, 0, len(profiles))
	votes := map[analysis.Direction]int{}
	for _, p := range profiles {
		sum += p.AverageSentiment
		averages = append(averages, p.AverageSentiment)
		summary.TotalBlockers += p.BlockerCount
		summary.RiskDistribution[p.RiskLevel]++
		votes[p.SentimentTrend]++
		if p.RiskLevel == RiskMedium || p.RiskLevel == RiskHigh {
			summary.AtRiskMembers = append(summary.AtRiskMembers, p)
		}
	}

	sort.SliceStable(summary.AtRiskMembers, func(i, j int) bool {
		a, b := summary.AtRiskMembers[i], summary.AtRiskMembers[j]
		if a.RiskScore != b.RiskScore {
			return a.RiskScore > b.RiskScore
		}
		return a.PersonID < b.PersonID
	})

	size := float64(len(profiles))
	summary.TeamAverageSentiment = sum / size
	summary.TeamMedianSentiment = analysis.Median(averages)
	summary.TeamHealthScore = analysis.Clip(
		summary.TeamAverageSentiment-e.cfg.HealthPenalty*float64(len(summary.AtRiskMembers))/size,
		0, 1,
	)
	summary.TeamTrend = majorityTrend(votes)
	return summary
}

// majorityTrend picks the direction with the most votes; ties resolve to stable
func majorityTrend(votes map[analysis.Direction]int) analysis.Direction {
	best, bestCount, tied := analysis.Stable, -1, false
	for _, d := range []analysis.Direction{analysis.Improving, analysis.Declining, analysis.Stable} {
		switch c := votes[d]; {
		case c > bestCount:
			best, bestCount, tied = d, c, false
		case c == bestCount:
			tied = true
		}
	}
	if tied {
		return analysis.Stable
	}
	return best
}

// Intervention is a suggested manager action for a person
type Intervention struct {
	Priority    string `json:"priority"`
	Action      string `json:"action"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Interventions suggests follow-ups for a profile, most urgent first
func Interventions(p PersonRiskProfile) []Intervention {
	out := []Intervention{}

	switch p.RiskLevel {
	case RiskHigh:
		out = append(out, Intervention{
			Priority:    "urgent",
			Action:      "schedule_1on1",
			Title:       "Schedule immediate 1:1 meeting",
			Description: "Signs of high stress or significant blockers. Meet within 24 hours.",
		})
		if p.BlockerCount > 5 {
			out = append(out, Intervention{
				Priority:    "high",
				Action:      "technical_support",
				Title:       "Provide technical support",
				Description: "Multiple technical blockers reported. Assign a senior team member to assist.",
			})
		}
	case RiskMedium:
		out = append(out, Intervention{
			Priority:    "medium",
			Action:      "check_in",
			Title:       "Casual check-in",
			Description: "Sentiment is slipping. Schedule a check-in within the next few days.",
		})
		if p.BlockerCount > 2 {
			out = append(out, Intervention{
				Priority:    "medium",
				Action:      "pair_programming",
				Title:       "Pair programming session",
				Description: "Recurring blockers reported. Arrange pairing with a teammate.",
			})
		}
	}

	if p.SampleCount > 0 && p.AverageSentiment < 0.3 {
		out = append(out, Intervention{
			Priority:    "medium",
			Action:      "workload_review",
			Title:       "Review workload",
			Description: "Sentiment is consistently low. Review current workload and priorities.",
		})
	}
	return out
}
