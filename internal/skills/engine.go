package skills

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/teamsignal/internal/analysis"
	apperrors "github.com/ZanzyTHEbar/teamsignal/internal/errors"
	"github.com/ZanzyTHEbar/teamsignal/internal/types"
)

// Signals are the four normalized inputs to a skill level, each in [0,1]
type Signals struct {
	Commits   float64 `json:"commits"`
	Reviews   float64 `json:"reviews"`
	Completed float64 `json:"completed"`
	Peer      float64 `json:"peer"`
}

// SkillScore is a person's derived proficiency on one skill
type SkillScore struct {
	PersonID       string             `json:"person_id"`
	SkillName      string             `json:"skill_name"`
	Level          float64            `json:"level"`
	Trend          analysis.Direction `json:"trend"`
	TrendMagnitude float64            `json:"trend_magnitude"`
	Confidence     float64            `json:"confidence"`
	EvidenceCount  int                `json:"evidence_count"`
	Signals        Signals            `json:"signals"`
	ComputedAt     time.Time          `json:"computed_at"`
}

// PersonSkills is the batch result for one person. InvalidRecords counts
// evidence that was skipped because it failed validation.
type PersonSkills struct {
	PersonID       string       `json:"person_id"`
	Skills         []SkillScore `json:"skills"`
	InvalidRecords int          `json:"invalid_records"`
}

// Engine turns contribution evidence into bounded skill levels with a trend
type Engine struct {
	cfg    Config
	trend  *analysis.TrendAnalyzer
	now    func() time.Time
	logger *slog.Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithClock overrides the time source used for ComputedAt
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets the engine logger
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine validates cfg and builds an engine. Weight sets that do not sum
// to 1 are rejected here.
func NewEngine(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:    cfg,
		trend:  analysis.NewTrendAnalyzer(cfg.TrendMinSamples),
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the engine configuration
func (e *Engine) Config() Config {
	return e.cfg
}

// ValidateEvidence checks a single evidence record
func ValidateEvidence(ev types.ContributionEvidence) error {
	switch {
	case strings.TrimSpace(ev.SkillName) == "":
		return apperrors.NewValidationError("evidence skill_name is required", "person_id", ev.PersonID)
	case !ev.Kind.Valid():
		return apperrors.NewValidationError("unknown metric kind", "metric_kind", ev.Kind)
	case !analysis.IsFinite(ev.Value):
		return apperrors.NewValidationError("evidence value must be finite", "skill_name", ev.SkillName)
	case ev.Value < 0:
		return apperrors.NewValidationError(
			fmt.Sprintf("negative %s value %.2f", ev.Kind, ev.Value),
			"person_id", ev.PersonID,
			"skill_name", ev.SkillName,
		)
	}
	return nil
}

// Score computes the level of one skill from evidence belonging to a single
// person. Records for other skills are ignored; the first invalid record for
// this skill fails the whole call, as does evidence from more than one person.
func (e *Engine) Score(evidence []types.ContributionEvidence, skill string) (SkillScore, error) {
	if strings.TrimSpace(skill) == "" {
		return SkillScore{}, apperrors.NewValidationError("skill name is required")
	}

	matched := make([]types.ContributionEvidence, 0, len(evidence))
	for _, ev := range evidence {
		if !sameSkill(ev.SkillName, skill) {
			continue
		}
		if err := ValidateEvidence(ev); err != nil {
			return SkillScore{}, err
		}
		if len(matched) > 0 && ev.PersonID != matched[0].PersonID {
			return SkillScore{}, apperrors.NewValidationError(
				"evidence for a single skill score must belong to one person",
				"person_id", matched[0].PersonID,
				"other_person_id", ev.PersonID,
			)
		}
		matched = append(matched, ev)
	}

	personID := ""
	if len(matched) > 0 {
		personID = matched[0].PersonID
	}
	return e.score(personID, skill, matched), nil
}

// ScorePerson scores every skill the person has evidence for. Invalid records
// are skipped and counted rather than failing the batch. Skills come back
// sorted by name.
func (e *Engine) ScorePerson(personID string, evidence []types.ContributionEvidence) PersonSkills {
	result := PersonSkills{PersonID: personID, Skills: []SkillScore{}}

	groups := make(map[string][]types.ContributionEvidence)
	names := make(map[string]string)
	for _, ev := range evidence {
		if ev.PersonID != personID {
			continue
		}
		if err := ValidateEvidence(ev); err != nil {
			result.InvalidRecords++
			e.logger.Debug("Skipping invalid evidence",
				"person_id", personID,
				"skill_name", ev.SkillName,
				"error", err)
			continue
		}
		key := skillKey(ev.SkillName)
		if _, ok := names[key]; !ok {
			names[key] = strings.TrimSpace(ev.SkillName)
		}
		groups[key] = append(groups[key], ev)
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		result.Skills = append(result.Skills, e.score(personID, names[k], groups[k]))
	}

	if result.InvalidRecords > 0 {
		e.logger.Warn("Invalid evidence skipped",
			"person_id", personID,
			"invalid_records", result.InvalidRecords)
	}
	return result
}

func (e *Engine) score(personID, skill string, evidence []types.ContributionEvidence) SkillScore {
	out := SkillScore{
		PersonID:   personID,
		SkillName:  skill,
		Trend:      analysis.Stable,
		ComputedAt: e.now(),
	}
	if len(evidence) == 0 {
		return out
	}

	acc := newSignalAccumulator()
	for _, ev := range evidence {
		acc.Add(ev)
	}
	out.Signals = acc.Signals(e.cfg.ReferenceVolumes)
	out.Level = e.level(out.Signals)
	out.EvidenceCount = len(evidence)
	out.Confidence = analysis.Clip(float64(len(evidence))/float64(e.cfg.MinEvidenceForFullConfidence), 0, 1)

	trend := e.trend.Classify(e.history(evidence), e.cfg.TrendThreshold)
	out.Trend = trend.Direction
	out.TrendMagnitude = trend.Magnitude

	return out
}

func (e *Engine) level(s Signals) float64 {
	w := e.cfg.Weights
	sum := w.Commits*s.Commits + w.Reviews*s.Reviews + w.Completed*s.Completed + w.Peer*s.Peer
	return analysis.Clip(10*sum, 0, 10)
}

// history scores each bucket from that bucket's evidence alone, giving the
// per-period contribution curve the trend is read from. Level stays cumulative.
func (e *Engine) history(evidence []types.ContributionEvidence) []analysis.Point {
	ordered := append([]types.ContributionEvidence(nil), evidence...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ObservedAt.Before(ordered[j].ObservedAt)
	})

	points := make([]analysis.Point, 0, len(ordered))
	acc := newSignalAccumulator()
	for i, ev := range ordered {
		acc.Add(ev)
		bucket := ev.ObservedAt.UTC().Truncate(e.cfg.TrendBucket)
		last := i == len(ordered)-1
		if !last && ordered[i+1].ObservedAt.UTC().Truncate(e.cfg.TrendBucket).Equal(bucket) {
			continue
		}
		points = append(points, analysis.Point{
			At:    bucket,
			Value: e.level(acc.Signals(e.cfg.ReferenceVolumes)),
		})
		acc = newSignalAccumulator()
	}
	return points
}

// signalAccumulator sums evidence values per metric kind
type signalAccumulator struct {
	totals    map[types.MetricKind]float64
	peerCount int
}

func newSignalAccumulator() *signalAccumulator {
	return &signalAccumulator{totals: make(map[types.MetricKind]float64)}
}

func (a *signalAccumulator) Add(ev types.ContributionEvidence) {
	a.totals[ev.Kind] += ev.Value
	if ev.Kind == types.MetricPeerRating {
		a.peerCount++
	}
}

func (a *signalAccumulator) Signals(ref ReferenceVolumes) Signals {
	s := Signals{
		Commits:   analysis.Saturate(a.totals[types.MetricCommitCount], ref.Commits),
		Reviews:   analysis.Saturate(a.totals[types.MetricReviewCount], ref.Reviews),
		Completed: analysis.Saturate(a.totals[types.MetricCompletedWorkItems], ref.Completed),
	}
	if a.peerCount > 0 {
		// peer ratings arrive on [0,1]; anything above saturates
		s.Peer = analysis.Clip(a.totals[types.MetricPeerRating]/float64(a.peerCount), 0, 1)
	}
	return s
}

func skillKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func sameSkill(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
