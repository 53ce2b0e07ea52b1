package allocation

import (
	"context"
	"fmt"
	"testing"

	"github.com/ZanzyTHEbar/teamsignal/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	roster := []TeamMember{
		member("a", 0, 40, nil),
		member("b", 0, 40, nil),
		member("c", 0, 40, nil),
		member("d", 0, 40, nil),
	}
	recs := []Recommendation{
		{TaskID: "t1", ChosenAssignee: "a", AdjustedScore: 0.75},
		{TaskID: "t2", ChosenAssignee: "a", AdjustedScore: 0.5},
		{TaskID: "t3", ChosenAssignee: "b", AdjustedScore: 0.25},
		{TaskID: "t4", Infeasible: true, InfeasibleReason: ReasonNoSkillMatch},
	}

	m := Summarize(recs, roster)
	assert.Equal(t, 4, m.TotalTasks)
	assert.Equal(t, 3, m.TotalTasksAllocated)
	assert.Equal(t, 1, m.InfeasibleTasks)
	assert.InDelta(t, 0.5, m.AverageOptimizationScore, 1e-9)
	assert.Equal(t, 0, m.WorkloadBalance.MinTasks)
	assert.Equal(t, 2, m.WorkloadBalance.MaxTasks)
	assert.InDelta(t, 0.75, m.WorkloadBalance.AvgTasks, 1e-9)
	// counts 2,1,0,0 around 0.75
	assert.InDelta(t, 0.8291561975888499, m.WorkloadBalance.StdDev, 1e-9)
	assert.InDelta(t, 0.5, m.TeamUtilization, 1e-9)
	assert.Equal(t, map[string]int{"a": 2, "b": 1, "c": 0, "d": 0}, m.Assignments)
}

func TestSummarize_Empty(t *testing.T) {
	m := Summarize(nil, nil)
	assert.Equal(t, 0, m.TotalTasks)
	assert.Equal(t, 0.0, m.TeamUtilization)
	assert.Equal(t, 0.0, m.AverageOptimizationScore)
}

func TestAllocate(t *testing.T) {
	o := newTestOptimizer(t)
	roster := []TeamMember{
		member("senior", 30, 40, map[string]float64{"Go": 9, "SQL": 7}),
		member("junior", 5, 40, map[string]float64{"Go": 3}),
	}
	tasks := []types.Task{
		{TaskID: "t1", RequiredSkills: map[string]float64{"Go": 6}},
		{TaskID: "t2", RequiredSkills: map[string]float64{"SQL": 5}, SkillStrict: true},
		{TaskID: "t3", RequiredSkills: map[string]float64{"Haskell": 5}, SkillStrict: true},
	}

	plan, err := o.Allocate(context.Background(), tasks, roster)
	require.NoError(t, err)
	require.Len(t, plan.Recommendations, 3)

	assert.NotEmpty(t, plan.Recommendations[0].ChosenAssignee)
	assert.Equal(t, "senior", plan.Recommendations[1].ChosenAssignee)
	assert.True(t, plan.Recommendations[2].Infeasible)
	assert.Empty(t, plan.Recommendations[2].ChosenAssignee)

	assert.Equal(t, 3, plan.Metrics.TotalTasks)
	assert.Equal(t, 2, plan.Metrics.TotalTasksAllocated)
	assert.Equal(t, 1, plan.Metrics.InfeasibleTasks)
}

func TestAllocate_SpreadsIdenticalTasksEvenly(t *testing.T) {
	tests := []struct {
		members int
		tasks   int
	}{
		{2, 2}, {2, 3}, {2, 7},
		{3, 3}, {3, 5}, {3, 10},
		{4, 9}, {4, 13},
		{5, 5}, {5, 16},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d members %d tasks", tt.members, tt.tasks), func(t *testing.T) {
			o := newTestOptimizer(t)

			roster := make([]TeamMember, 0, tt.members)
			for i := 0; i < tt.members; i++ {
				roster = append(roster, member(fmt.Sprintf("m%d", i), 10, 40, map[string]float64{"Go": 6}))
			}
			tasks := make([]types.Task, 0, tt.tasks)
			for i := 0; i < tt.tasks; i++ {
				tasks = append(tasks, types.Task{
					TaskID:         fmt.Sprintf("t%d", i),
					RequiredSkills: map[string]float64{"Go": 5},
				})
			}

			plan, err := o.Allocate(context.Background(), tasks, roster)
			require.NoError(t, err)

			balance := plan.Metrics.WorkloadBalance
			assert.Equal(t, tt.tasks, plan.Metrics.TotalTasksAllocated)
			assert.LessOrEqual(t, balance.MaxTasks-balance.MinTasks, 1)
			assert.Equal(t, 1.0, plan.Metrics.TeamUtilization)
		})
	}
}
