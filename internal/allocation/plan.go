package allocation

import (
	"context"
	"sort"

	"github.com/ZanzyTHEbar/teamsignal/internal/analysis"
	"github.com/ZanzyTHEbar/teamsignal/internal/types"
)

// WorkloadBalance describes how evenly tasks were spread over the roster
type WorkloadBalance struct {
	MinTasks int     `json:"min_tasks"`
	MaxTasks int     `json:"max_tasks"`
	AvgTasks float64 `json:"avg_tasks"`
	StdDev   float64 `json:"std_dev"`
}

// TeamMetrics summarizes an optimized allocation
type TeamMetrics struct {
	TotalTasks               int             `json:"total_tasks"`
	TotalTasksAllocated      int             `json:"total_tasks_allocated"`
	InfeasibleTasks          int             `json:"infeasible_tasks"`
	AverageOptimizationScore float64         `json:"average_optimization_score"`
	WorkloadBalance          WorkloadBalance `json:"workload_balance"`
	TeamUtilization          float64         `json:"team_utilization"`
	Assignments              map[string]int  `json:"assignments"`
}

// Plan is the full output of an allocation run
type Plan struct {
	Recommendations []Recommendation `json:"recommendations"`
	Metrics         TeamMetrics      `json:"team_metrics"`
}

// Allocate recommends, optimizes and summarizes in one call
func (o *Optimizer) Allocate(ctx context.Context, tasks []types.Task, roster []TeamMember) (Plan, error) {
	recs, err := o.Recommend(ctx, tasks, roster)
	if err != nil {
		return Plan{}, err
	}
	optimized, err := o.Optimize(ctx, recs)
	if err != nil {
		return Plan{}, err
	}

	metrics := Summarize(optimized, roster)
	o.logger.Info("Allocation planned",
		"tasks", metrics.TotalTasks,
		"allocated", metrics.TotalTasksAllocated,
		"infeasible", metrics.InfeasibleTasks,
		"utilization", metrics.TeamUtilization)

	return Plan{Recommendations: optimized, Metrics: metrics}, nil
}

// Summarize computes balance and utilization over optimized recommendations.
// Members who received nothing count toward the balance statistics.
func Summarize(recs []Recommendation, roster []TeamMember) TeamMetrics {
	counts := make(map[string]int, len(roster))
	for _, m := range roster {
		counts[m.PersonID] = 0
	}

	m := TeamMetrics{TotalTasks: len(recs), Assignments: counts}
	scoreSum := 0.0
	for _, r := range recs {
		if r.Infeasible {
			m.InfeasibleTasks++
		}
		if r.ChosenAssignee == "" {
			continue
		}
		m.TotalTasksAllocated++
		scoreSum += r.AdjustedScore
		counts[r.ChosenAssignee]++
	}
	if m.TotalTasksAllocated > 0 {
		m.AverageOptimizationScore = scoreSum / float64(m.TotalTasksAllocated)
	}
	if len(counts) == 0 {
		return m
	}

	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	values := make([]float64, 0, len(ids))
	busy := 0
	m.WorkloadBalance.MinTasks = counts[ids[0]]
	for _, id := range ids {
		c := counts[id]
		values = append(values, float64(c))
		m.WorkloadBalance.MinTasks = min(m.WorkloadBalance.MinTasks, c)
		m.WorkloadBalance.MaxTasks = max(m.WorkloadBalance.MaxTasks, c)
		if c > 0 {
			busy++
		}
	}
	m.WorkloadBalance.AvgTasks = analysis.Mean(values)
	m.WorkloadBalance.StdDev = analysis.StdDev(values)
	m.TeamUtilization = float64(busy) / float64(len(ids))
	return m
}
