package sentiment

import (
	"testing"
	"time"

	"github.com/ZanzyTHEbar/teamsignal/internal/analysis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyRisk(t *testing.T) {
	tests := []struct {
		name        string
		average     float64
		blockerRate float64
		expected    RiskLevel
	}{
		{"very negative sentiment", 0.29, 0, RiskHigh},
		{"majority of messages blocked", 0.5, 0.6, RiskHigh},
		{"neutral with few blockers", 0.5, 0.1, RiskLow},
		{"sentiment exactly on the high cut-off", 0.3, 0, RiskMedium},
		{"blocker rate exactly on the high cut-off", 0.5, 0.5, RiskMedium},
		{"mildly negative sentiment", 0.44, 0, RiskMedium},
		{"blocker rate above medium cut-off", 0.8, 0.26, RiskMedium},
		{"sentiment exactly on the medium cut-off", 0.45, 0.25, RiskLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ClassifyRisk(tt.average, tt.blockerRate))
		})
	}
}

func obsAt(person string, score float64, blocker bool, at time.Time) Observation {
	return Observation{PersonID: person, Score: score, Confidence: 0.5, HasBlocker: blocker, ObservedAt: at, Source: SourceHeuristic}
}

func TestAggregatePerson(t *testing.T) {
	e := newTestEngine(t, nil)

	observations := []Observation{
		obsAt("p", 0.8, false, fixedNow.AddDate(0, 0, -8)),
		obsAt("p", 0.7, false, fixedNow.AddDate(0, 0, -6)),
		obsAt("p", 0.3, true, fixedNow.AddDate(0, 0, -3)),
		obsAt("p", 0.2, true, fixedNow.AddDate(0, 0, -1)),
		obsAt("p", 0.0, true, fixedNow.AddDate(0, 0, -45)),
		obsAt("p", 0.0, true, fixedNow.Add(time.Hour)),
		obsAt("q", 0.1, true, fixedNow.AddDate(0, 0, -1)),
	}

	profile := e.AggregatePerson("p", observations, 30)
	assert.Equal(t, 4, profile.SampleCount)
	assert.Equal(t, 30, profile.WindowDays)
	assert.InDelta(t, 0.5, profile.AverageSentiment, 1e-9)
	assert.Equal(t, 2, profile.BlockerCount)
	assert.InDelta(t, 0.5, profile.BlockerRate, 1e-9)
	assert.Equal(t, analysis.Declining, profile.SentimentTrend)
	assert.InDelta(t, -0.5, profile.TrendMagnitude, 1e-9)
	assert.Equal(t, RiskMedium, profile.RiskLevel)
	assert.InDelta(t, 0.5, profile.Confidence, 1e-9)
	assert.Equal(t, 4, profile.HeuristicCount)
	assert.InDelta(t, 0.5*0.7+0.5*0.3, profile.RiskScore, 1e-9)
}

func TestAggregatePerson_Empty(t *testing.T) {
	e := newTestEngine(t, nil)

	profile := e.AggregatePerson("p", nil, 0)
	assert.Equal(t, 0, profile.SampleCount)
	assert.Equal(t, 0.5, profile.AverageSentiment)
	assert.Equal(t, 0.0, profile.BlockerRate)
	assert.Equal(t, RiskLow, profile.RiskLevel)
	assert.Equal(t, analysis.Stable, profile.SentimentTrend)
	assert.Equal(t, DefaultConfig().WindowDays, profile.WindowDays)
}

func TestAggregatePerson_Deterministic(t *testing.T) {
	e := newTestEngine(t, nil)
	observations := []Observation{
		obsAt("p", 0.4, true, fixedNow.AddDate(0, 0, -2)),
		obsAt("p", 0.6, false, fixedNow.AddDate(0, 0, -1)),
	}
	assert.Equal(t, e.AggregatePerson("p", observations, 7), e.AggregatePerson("p", observations, 7))
}

func TestAggregateTeam(t *testing.T) {
	e := newTestEngine(t, nil)

	profiles := []PersonRiskProfile{
		{PersonID: "ann", AverageSentiment: 0.8, RiskLevel: RiskLow, SentimentTrend: analysis.Improving, BlockerCount: 1},
		{PersonID: "bob", AverageSentiment: 0.25, BlockerRate: 0.2, RiskLevel: RiskHigh, SentimentTrend: analysis.Declining, BlockerCount: 3},
		{PersonID: "cat", AverageSentiment: 0.4, BlockerRate: 0.3, RiskLevel: RiskMedium, SentimentTrend: analysis.Declining, BlockerCount: 2},
		{PersonID: "dan", AverageSentiment: 0.55, RiskLevel: RiskLow, SentimentTrend: analysis.Stable},
	}
	for i := range profiles {
		profiles[i].RiskScore = DefaultConfig().RiskWeights.RiskScore(profiles[i].AverageSentiment, profiles[i].BlockerRate)
	}

	summary := e.AggregateTeam("core", profiles)
	assert.Equal(t, "core", summary.TeamID)
	assert.Equal(t, 4, summary.Members)
	assert.InDelta(t, 0.5, summary.TeamAverageSentiment, 1e-9)
	// middle pair 0.4 and 0.55
	assert.InDelta(t, 0.475, summary.TeamMedianSentiment, 1e-9)
	require.Len(t, summary.AtRiskMembers, 2)
	assert.Equal(t, "bob", summary.AtRiskMembers[0].PersonID)
	assert.Equal(t, "cat", summary.AtRiskMembers[1].PersonID)
	// 0.5 - 0.3 * 2/4
	assert.InDelta(t, 0.35, summary.TeamHealthScore, 1e-9)
	assert.Equal(t, 6, summary.TotalBlockers)
	assert.Equal(t, analysis.Declining, summary.TeamTrend)
	assert.Equal(t, map[RiskLevel]int{RiskLow: 2, RiskMedium: 1, RiskHigh: 1}, summary.RiskDistribution)
}

func TestAggregateTeam_TiesAndEmpty(t *testing.T) {
	e := newTestEngine(t, nil)

	empty := e.AggregateTeam("none", nil)
	assert.Equal(t, 0.5, empty.TeamAverageSentiment)
	assert.Equal(t, 0.5, empty.TeamHealthScore)
	assert.Equal(t, 0.5, empty.TeamMedianSentiment)
	assert.Empty(t, empty.AtRiskMembers)

	tied := e.AggregateTeam("t", []PersonRiskProfile{
		{PersonID: "b", AverageSentiment: 0.4, RiskLevel: RiskMedium, RiskScore: 0.42, SentimentTrend: analysis.Improving},
		{PersonID: "a", AverageSentiment: 0.4, RiskLevel: RiskMedium, RiskScore: 0.42, SentimentTrend: analysis.Declining},
	})
	assert.Equal(t, analysis.Stable, tied.TeamTrend)
	assert.Equal(t, "a", tied.AtRiskMembers[0].PersonID)
	assert.Equal(t, "b", tied.AtRiskMembers[1].PersonID)
	assert.InDelta(t, 0.1, tied.TeamHealthScore, 1e-9)
}

func TestInterventions(t *testing.T) {
	tests := []struct {
		name    string
		profile PersonRiskProfile
		actions []string
	}{
		{"low risk", PersonRiskProfile{RiskLevel: RiskLow, AverageSentiment: 0.7, SampleCount: 3}, []string{}},
		{"high risk", PersonRiskProfile{RiskLevel: RiskHigh, AverageSentiment: 0.5, BlockerCount: 2, SampleCount: 3}, []string{"schedule_1on1"}},
		{"high risk with many blockers and low mood", PersonRiskProfile{RiskLevel: RiskHigh, AverageSentiment: 0.2, BlockerCount: 6, SampleCount: 8}, []string{"schedule_1on1", "technical_support", "workload_review"}},
		{"medium risk", PersonRiskProfile{RiskLevel: RiskMedium, AverageSentiment: 0.4, BlockerCount: 1, SampleCount: 3}, []string{"check_in"}},
		{"medium risk with blockers", PersonRiskProfile{RiskLevel: RiskMedium, AverageSentiment: 0.4, BlockerCount: 3, SampleCount: 9}, []string{"check_in", "pair_programming"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Interventions(tt.profile)
			actions := make([]string, 0, len(got))
			for _, i := range got {
				actions = append(actions, i.Action)
			}
			assert.Equal(t, tt.actions, actions)
		})
	}
}
