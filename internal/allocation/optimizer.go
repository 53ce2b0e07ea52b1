package allocation

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/ZanzyTHEbar/teamsignal/internal/analysis"
	apperrors "github.com/ZanzyTHEbar/teamsignal/internal/errors"
	"github.com/ZanzyTHEbar/teamsignal/internal/skills"
	"github.com/ZanzyTHEbar/teamsignal/internal/types"
	"github.com/ZanzyTHEbar/teamsignal/internal/workpool"
)

// TeamMember is a roster entry with a skill snapshot and a workload snapshot
type TeamMember struct {
	PersonID    string              `json:"person_id"`
	SkillScores []skills.SkillScore `json:"skill_scores"`
	Workload    types.Workload      `json:"current_workload"`
}

// Candidate is one scored roster member for a task
type Candidate struct {
	PersonID      string  `json:"person_id"`
	OverallScore  float64 `json:"overall_score"`
	SkillMatch    float64 `json:"skill_match"`
	WorkloadScore float64 `json:"workload_score"`
	GrowthScore   float64 `json:"growth_score"`
	Rationale     string  `json:"rationale"`

	activeHours float64
}

// Recommendation ranks candidates for one task. ChosenAssignee is only set by
// Optimize. Infeasible marks a task nobody on the roster can take; it is not
// an error.
type Recommendation struct {
	TaskID               string             `json:"task_id"`
	TaskTitle            string             `json:"task_title,omitempty"`
	RequiredSkills       map[string]float64 `json:"required_skills"`
	RequirementsInferred bool               `json:"requirements_inferred"`
	RankedCandidates     []Candidate        `json:"ranked_candidates"`
	ChosenAssignee       string             `json:"chosen_assignee,omitempty"`
	AdjustedScore        float64            `json:"adjusted_score,omitempty"`
	Infeasible           bool               `json:"infeasible"`
	InfeasibleReason     string             `json:"infeasible_reason,omitempty"`
}

// Infeasibility reasons
const (
	ReasonEmptyRoster    = "empty roster"
	ReasonNoSkillMatch   = "no candidate holds any required skill"
	ReasonNoneAssignable = "no candidates to assign"
)

// Optimizer scores roster members against tasks and assigns them
type Optimizer struct {
	cfg         Config
	concurrency int
	logger      *slog.Logger
}

// Option configures an Optimizer
type Option func(*Optimizer)

// WithConcurrency bounds how many tasks Recommend scores at once
func WithConcurrency(n int) Option {
	return func(o *Optimizer) {
		o.concurrency = n
	}
}

// WithLogger sets the optimizer logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *Optimizer) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewOptimizer validates cfg and builds an optimizer
func NewOptimizer(cfg Config, opts ...Option) (*Optimizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &Optimizer{
		cfg:         cfg,
		concurrency: workpool.DefaultLimit,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Config returns the optimizer configuration
func (o *Optimizer) Config() Config {
	return o.cfg
}

// Recommend ranks candidates for every task. Tasks are scored in parallel and
// returned in input order.
func (o *Optimizer) Recommend(ctx context.Context, tasks []types.Task, roster []TeamMember) ([]Recommendation, error) {
	recs, err := workpool.Map(ctx, o.concurrency, tasks, func(_ context.Context, task types.Task) (Recommendation, error) {
		return o.RecommendTask(task, roster), nil
	})
	if err != nil {
		return nil, apperrors.NewTimeoutError("recommendation cancelled", err)
	}
	return recs, nil
}

// RecommendTask scores and ranks every roster member for one task. Ranking is
// overall score descending, then active hours ascending, then person id.
func (o *Optimizer) RecommendTask(task types.Task, roster []TeamMember) Recommendation {
	required, inferred := o.requirements(task)

	rec := Recommendation{
		TaskID:               task.TaskID,
		TaskTitle:            task.Title,
		RequiredSkills:       required,
		RequirementsInferred: inferred,
		RankedCandidates:     []Candidate{},
	}

	if len(roster) == 0 {
		rec.Infeasible = true
		rec.InfeasibleReason = ReasonEmptyRoster
		return rec
	}

	keys := sortedKeys(required)
	for _, m := range roster {
		c := o.scoreCandidate(m, required, keys)
		if task.SkillStrict && len(required) > 0 && c.SkillMatch == 0 {
			continue
		}
		rec.RankedCandidates = append(rec.RankedCandidates, c)
	}

	if len(rec.RankedCandidates) == 0 {
		rec.Infeasible = true
		rec.InfeasibleReason = ReasonNoSkillMatch
		return rec
	}

	sort.SliceStable(rec.RankedCandidates, func(i, j int) bool {
		a, b := rec.RankedCandidates[i], rec.RankedCandidates[j]
		if a.OverallScore != b.OverallScore {
			return a.OverallScore > b.OverallScore
		}
		if a.activeHours != b.activeHours {
			return a.activeHours < b.activeHours
		}
		return a.PersonID < b.PersonID
	})
	return rec
}

// Optimize assigns one candidate per recommendation, walking them in the order
// given. Each candidate's overall score is reduced by LoadPenalty for every
// task already assigned to them in this call. This is a greedy approximation
// and does not search for a global optimum. The input slice is not modified.
func (o *Optimizer) Optimize(ctx context.Context, recs []Recommendation) ([]Recommendation, error) {
	out := make([]Recommendation, len(recs))
	assigned := make(map[string]int)

	for i, rec := range recs {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.NewTimeoutError("optimization cancelled", err)
		}

		rec.RankedCandidates = append([]Candidate(nil), rec.RankedCandidates...)
		rec.ChosenAssignee = ""
		rec.AdjustedScore = 0

		if len(rec.RankedCandidates) == 0 {
			if !rec.Infeasible {
				rec.Infeasible = true
				rec.InfeasibleReason = ReasonNoneAssignable
			}
			out[i] = rec
			continue
		}

		best, bestScore := -1, math.Inf(-1)
		for j, c := range rec.RankedCandidates {
			adjusted := c.OverallScore - o.cfg.LoadPenalty*float64(assigned[c.PersonID])
			if adjusted > bestScore {
				best, bestScore = j, adjusted
			}
		}

		chosen := rec.RankedCandidates[best].PersonID
		assigned[chosen]++
		rec.ChosenAssignee = chosen
		rec.AdjustedScore = bestScore
		out[i] = rec
	}
	return out, nil
}

func (o *Optimizer) requirements(task types.Task) (map[string]float64, bool) {
	required := make(map[string]float64, len(task.RequiredSkills))
	for name, level := range task.RequiredSkills {
		name = strings.TrimSpace(name)
		if name == "" || !analysis.IsFinite(level) || level <= 0 {
			continue
		}
		required[name] = level
	}
	if len(required) > 0 || !o.cfg.InferRequirements {
		return required, false
	}

	inferred := InferRequirements(task.Title, task.Description)
	return inferred, len(inferred) > 0
}

func (o *Optimizer) scoreCandidate(m TeamMember, required map[string]float64, keys []string) Candidate {
	levels := make(map[string]float64, len(m.SkillScores))
	for _, s := range m.SkillScores {
		levels[strings.ToLower(strings.TrimSpace(s.SkillName))] = s.Level
	}

	c := Candidate{
		PersonID:      m.PersonID,
		SkillMatch:    o.skillMatch(required, keys, levels),
		WorkloadScore: WorkloadScore(m.Workload),
		GrowthScore:   o.growthScore(required, keys, levels),
		activeHours:   m.Workload.ActiveHours,
	}
	w := o.cfg.Weights
	c.OverallScore = w.Skill*c.SkillMatch + w.Workload*c.WorkloadScore + w.Growth*c.GrowthScore
	c.Rationale = o.rationale(c)
	return c
}

// skillMatch weights each requirement's coverage by its required level
func (o *Optimizer) skillMatch(required map[string]float64, keys []string, levels map[string]float64) float64 {
	if len(keys) == 0 {
		return o.cfg.NeutralSkillMatch
	}
	var weighted, total float64
	for _, k := range keys {
		req := required[k]
		total += req
		if level, ok := levels[strings.ToLower(k)]; ok {
			weighted += math.Min(1, level/req) * req
		}
	}
	return weighted / total
}

func (o *Optimizer) growthScore(required map[string]float64, keys []string, levels map[string]float64) float64 {
	if len(keys) == 0 {
		return 0
	}
	g := o.cfg.Growth
	sum := 0.0
	for _, k := range keys {
		req := required[k]
		level, ok := levels[strings.ToLower(k)]
		switch {
		case !ok:
			sum += g.Lacking
		case level < req:
			sum += math.Min(g.Cap, (req-level)/2)
		default:
			sum += g.Proficient
		}
	}
	return sum / float64(len(keys))
}

// WorkloadScore is the share of capacity still free. No capacity counts as
// fully loaded.
func WorkloadScore(w types.Workload) float64 {
	if w.CapacityHours <= 0 {
		return 0
	}
	return analysis.Clip(1-w.ActiveHours/w.CapacityHours, 0, 1)
}

func (o *Optimizer) rationale(c Candidate) string {
	parts := make([]string, 0, 3)

	switch {
	case c.SkillMatch > 0.8:
		parts = append(parts, "strong skill match")
	case c.SkillMatch > 0.6:
		parts = append(parts, "good skill match")
	default:
		parts = append(parts, "skill development opportunity")
	}

	switch {
	case c.WorkloadScore > 0.7:
		parts = append(parts, "low current workload")
	case c.WorkloadScore > 0.4:
		parts = append(parts, "moderate workload")
	default:
		parts = append(parts, "high workload")
	}

	switch {
	case c.GrowthScore > 0.6:
		parts = append(parts, "excellent growth opportunity")
	case c.GrowthScore > 0.3:
		parts = append(parts, "some growth potential")
	}

	w := o.cfg.Weights
	dominant, contribution := "skill match", w.Skill*c.SkillMatch
	if v := w.Workload * c.WorkloadScore; v > contribution {
		dominant, contribution = "availability", v
	}
	if v := w.Growth * c.GrowthScore; v > contribution {
		dominant = "growth"
	}

	return fmt.Sprintf("%s (dominant factor: %s)", strings.Join(parts, ", "), dominant)
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
