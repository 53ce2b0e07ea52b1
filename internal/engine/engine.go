// Package engine wires the skill, sentiment and allocation components behind
// one service-level API with bounded concurrency, metrics and logging.
package engine

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/teamsignal/internal/allocation"
	apperrors "github.com/ZanzyTHEbar/teamsignal/internal/errors"
	"github.com/ZanzyTHEbar/teamsignal/internal/monitoring"
	"github.com/ZanzyTHEbar/teamsignal/internal/sentiment"
	"github.com/ZanzyTHEbar/teamsignal/internal/skills"
	"github.com/ZanzyTHEbar/teamsignal/internal/types"
	"github.com/ZanzyTHEbar/teamsignal/internal/workpool"
)

// Config groups the component configurations
type Config struct {
	Skills      skills.Config     `koanf:"skills"`
	Sentiment   sentiment.Config  `koanf:"sentiment"`
	Allocation  allocation.Config `koanf:"allocation"`
	Concurrency int               `koanf:"concurrency"`
}

// DefaultConfig returns the default configuration of every component
func DefaultConfig() Config {
	return Config{
		Skills:      skills.DefaultConfig(),
		Sentiment:   sentiment.DefaultConfig(),
		Allocation:  allocation.DefaultConfig(),
		Concurrency: workpool.DefaultLimit,
	}
}

// Validate checks every component configuration
func (c Config) Validate() error {
	if c.Concurrency < 1 {
		return apperrors.NewConfigurationError("concurrency must be at least 1", nil)
	}
	if err := c.Skills.Validate(); err != nil {
		return err
	}
	if err := c.Sentiment.Validate(); err != nil {
		return err
	}
	return c.Allocation.Validate()
}

// Engine is the service facade
type Engine struct {
	cfg       Config
	skills    *skills.Engine
	sentiment *sentiment.Engine
	allocator *allocation.Optimizer
	metrics   *monitoring.Metrics
	logger    *monitoring.Logger
	now       func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithMetrics records operation metrics and heuristic fallbacks
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(e *Engine) { e.metrics = metrics }
}

// WithLogger sets the logger shared by all components
func WithLogger(logger *monitoring.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock sets the time source shared by all components
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New validates cfg and builds the components. A nil classifier means every
// message is scored by the keyword heuristic.
func New(cfg Config, classifier sentiment.Classifier, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:    cfg,
		logger: monitoring.NewNopLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	var err error
	e.skills, err = skills.NewEngine(cfg.Skills,
		skills.WithClock(e.now),
		skills.WithLogger(e.logger.Logger))
	if err != nil {
		return nil, err
	}

	sentimentOpts := []sentiment.Option{
		sentiment.WithClock(e.now),
		sentiment.WithLogger(e.logger.Logger),
	}
	if e.metrics != nil {
		sentimentOpts = append(sentimentOpts, sentiment.WithFallbackRecorder(e.metrics))
	}
	e.sentiment, err = sentiment.NewEngine(cfg.Sentiment, classifier, sentimentOpts...)
	if err != nil {
		return nil, err
	}

	e.allocator, err = allocation.NewOptimizer(cfg.Allocation,
		allocation.WithConcurrency(cfg.Concurrency),
		allocation.WithLogger(e.logger.Logger))
	if err != nil {
		return nil, err
	}

	return e, nil
}

// Config returns the validated configuration
func (e *Engine) Config() Config {
	return e.cfg
}

// Skills exposes the skill engine for single-skill queries
func (e *Engine) Skills() *skills.Engine {
	return e.skills
}

// SkillBatch is the result of scoring a batch of evidence
type SkillBatch struct {
	People         []skills.PersonSkills `json:"people"`
	InvalidRecords int                   `json:"invalid_records"`
}

// ScoreSkills scores every person present in the evidence. People are
// processed in parallel and returned sorted by id. Records without a person
// are counted as invalid.
func (e *Engine) ScoreSkills(ctx context.Context, evidence []types.ContributionEvidence) (SkillBatch, error) {
	start := time.Now()

	byPerson := make(map[string][]types.ContributionEvidence)
	orphans := 0
	for _, ev := range evidence {
		if strings.TrimSpace(ev.PersonID) == "" {
			orphans++
			continue
		}
		byPerson[ev.PersonID] = append(byPerson[ev.PersonID], ev)
	}

	people := make([]string, 0, len(byPerson))
	for id := range byPerson {
		people = append(people, id)
	}
	sort.Strings(people)

	results, err := workpool.Map(ctx, e.cfg.Concurrency, people, func(_ context.Context, personID string) (skills.PersonSkills, error) {
		return e.skills.ScorePerson(personID, byPerson[personID]), nil
	})
	if err != nil {
		return SkillBatch{}, apperrors.NewTimeoutError("skill scoring interrupted", err)
	}

	batch := SkillBatch{People: results, InvalidRecords: orphans}
	skillCount := 0
	for _, p := range results {
		batch.InvalidRecords += p.InvalidRecords
		skillCount += len(p.Skills)
	}

	duration := time.Since(start)
	if e.metrics != nil {
		e.metrics.RecordInvalidRecords("evidence", batch.InvalidRecords)
		e.metrics.ObserveOperation("score_skills", duration)
	}
	e.logger.ScoringLogger(len(results), skillCount, batch.InvalidRecords, duration)

	return batch, nil
}

// AnalyzeMessage classifies one piece of text
func (e *Engine) AnalyzeMessage(ctx context.Context, text string) (sentiment.Observation, error) {
	if strings.TrimSpace(text) == "" {
		return sentiment.Observation{}, apperrors.NewValidationError("text is required")
	}
	return e.sentiment.AnalyzeMessage(ctx, text), nil
}

// TeamAnalysis is the result of analyzing a team's messages
type TeamAnalysis struct {
	Summary               sentiment.TeamRiskSummary           `json:"summary"`
	Profiles              []sentiment.PersonRiskProfile       `json:"profiles"`
	Interventions         map[string][]sentiment.Intervention `json:"interventions"`
	SkippedMessages       int                                 `json:"skipped_messages"`
	HeuristicObservations int                                 `json:"heuristic_observations"`
	ComputedAt            time.Time                           `json:"computed_at"`
}

// AnalyzeTeam classifies the team's messages inside the window and rolls them
// up into per-person profiles and a team summary. Invalid messages are
// skipped and counted. windowDays <= 0 uses the configured window.
func (e *Engine) AnalyzeTeam(ctx context.Context, teamID string, messages []types.MessageRecord, windowDays int) (TeamAnalysis, error) {
	start := time.Now()
	if windowDays <= 0 {
		windowDays = e.cfg.Sentiment.WindowDays
	}

	now := e.now()
	windowStart := now.Add(-time.Duration(windowDays) * 24 * time.Hour)

	result := TeamAnalysis{
		Interventions: map[string][]sentiment.Intervention{},
		ComputedAt:    now,
	}

	people := make(map[string]bool)
	valid := make([]types.MessageRecord, 0, len(messages))
	for _, msg := range messages {
		if err := sentiment.ValidateMessage(msg); err != nil {
			result.SkippedMessages++
			continue
		}
		people[msg.PersonID] = true
		// only messages inside the window reach the classifier
		if msg.OccurredAt.Before(windowStart) || msg.OccurredAt.After(now) {
			continue
		}
		valid = append(valid, msg)
	}

	observations, err := workpool.Map(ctx, e.cfg.Concurrency, valid, func(ctx context.Context, msg types.MessageRecord) (sentiment.Observation, error) {
		return e.sentiment.Observe(ctx, msg)
	})
	if err != nil {
		return TeamAnalysis{}, apperrors.NewTimeoutError("sentiment analysis interrupted", err)
	}

	ids := make([]string, 0, len(people))
	for id := range people {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	byPerson := make(map[string][]sentiment.Observation, len(ids))
	for _, o := range observations {
		byPerson[o.PersonID] = append(byPerson[o.PersonID], o)
		if o.Source == sentiment.SourceHeuristic {
			result.HeuristicObservations++
		}
	}

	result.Profiles = make([]sentiment.PersonRiskProfile, 0, len(ids))
	for _, id := range ids {
		profile := e.sentiment.AggregatePerson(id, byPerson[id], windowDays)
		result.Profiles = append(result.Profiles, profile)
		if actions := sentiment.Interventions(profile); len(actions) > 0 {
			result.Interventions[id] = actions
		}
	}
	result.Summary = e.sentiment.AggregateTeam(teamID, result.Profiles)

	duration := time.Since(start)
	if e.metrics != nil {
		e.metrics.RecordInvalidRecords("message", result.SkippedMessages)
		e.metrics.ObserveOperation("analyze_team", duration)
	}
	e.logger.SentimentLogger(teamID, len(messages), result.SkippedMessages,
		result.HeuristicObservations, len(result.Summary.AtRiskMembers), duration)

	return result, nil
}

// Allocate builds an assignment plan for the tasks over the roster
func (e *Engine) Allocate(ctx context.Context, tasks []types.Task, roster []allocation.TeamMember) (allocation.Plan, error) {
	start := time.Now()

	for _, t := range tasks {
		if strings.TrimSpace(t.TaskID) == "" {
			return allocation.Plan{}, apperrors.NewValidationError("task_id is required", "title", t.Title)
		}
	}
	seen := make(map[string]bool, len(roster))
	for _, m := range roster {
		if strings.TrimSpace(m.PersonID) == "" {
			return allocation.Plan{}, apperrors.NewValidationError("roster person_id is required")
		}
		if seen[m.PersonID] {
			return allocation.Plan{}, apperrors.NewValidationError("duplicate roster member", "person_id", m.PersonID)
		}
		seen[m.PersonID] = true
	}

	plan, err := e.allocator.Allocate(ctx, tasks, roster)
	if err != nil {
		return allocation.Plan{}, err
	}

	duration := time.Since(start)
	if e.metrics != nil {
		e.metrics.RecordInfeasible(plan.Metrics.InfeasibleTasks)
		e.metrics.ObserveOperation("allocate", duration)
	}
	e.logger.AllocationLogger(plan.Metrics.TotalTasks, plan.Metrics.TotalTasksAllocated,
		plan.Metrics.InfeasibleTasks, plan.Metrics.TeamUtilization, duration)

	return plan, nil
}
