package sentiment

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/teamsignal/internal/analysis"
	apperrors "github.com/ZanzyTHEbar/teamsignal/internal/errors"
	"github.com/ZanzyTHEbar/teamsignal/internal/types"
)

// Source tags which path produced an observation
type Source string

const (
	SourceClassifier Source = "classifier"
	SourceHeuristic  Source = "heuristic"
)

// Fallback reasons reported to the FallbackRecorder
const (
	FallbackNoClassifier  = "no_classifier"
	FallbackTimeout       = "timeout"
	FallbackUnavailable   = "unavailable"
	FallbackInvalidOutput = "invalid_output"
)

// Observation is the sentiment reading of one message
type Observation struct {
	PersonID     string    `json:"person_id"`
	Score        float64   `json:"score"`
	Confidence   float64   `json:"confidence"`
	HasBlocker   bool      `json:"has_blocker"`
	BlockerTerms []string  `json:"blocker_terms"`
	ObservedAt   time.Time `json:"observed_at"`
	Source       Source    `json:"source"`
	Tone         Tone      `json:"tone"`
	Urgency      Urgency   `json:"urgency"`
}

// Engine analyzes messages and aggregates observations into risk profiles
type Engine struct {
	cfg        Config
	classifier Classifier
	heuristic  *Heuristic
	trend      *analysis.TrendAnalyzer
	now        func() time.Time
	logger     *slog.Logger
	fallbacks  FallbackRecorder
}

// Option configures an Engine
type Option func(*Engine)

// WithClock overrides the time source that anchors aggregation windows
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

// WithFallbackRecorder registers a sink for heuristic fallback events
func WithFallbackRecorder(r FallbackRecorder) Option {
	return func(e *Engine) {
		e.fallbacks = r
	}
}

// NewEngine builds an engine. classifier may be nil, in which case every
// message is scored by the heuristic.
func NewEngine(cfg Config, classifier Classifier, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:        cfg,
		classifier: classifier,
		heuristic:  NewHeuristic(cfg.Keywords),
		trend:      analysis.NewTrendAnalyzer(cfg.TrendMinSamples),
		now:        time.Now,
		logger:     slog.Default(),
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

// AnalyzeMessage classifies text. The external classifier is tried first under
// the configured timeout; any failure degrades to the heuristic and is never
// returned to the caller.
func (e *Engine) AnalyzeMessage(ctx context.Context, text string) Observation {
	if e.classifier == nil {
		return e.fallback(text, FallbackNoClassifier, nil)
	}

	cctx, cancel := context.WithTimeout(ctx, e.cfg.ClassifierTimeout)
	defer cancel()

	c, err := e.classifier.Classify(cctx, text)
	if err != nil {
		reason := FallbackUnavailable
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(cctx.Err(), context.DeadlineExceeded) ||
			apperrors.IsCategory(err, apperrors.CategoryTimeout) {
			reason = FallbackTimeout
		}
		return e.fallback(text, reason, err)
	}
	if !validClassification(c) {
		return e.fallback(text, FallbackInvalidOutput, nil)
	}

	// terms only count toward urgency when the classifier flagged a blocker
	terms := []string{}
	blockerCount := 0
	if c.HasBlocker {
		terms = append(terms, c.Terms...)
		blockerCount = max(len(terms), 1)
	}

	return Observation{
		Score:        c.Score,
		Confidence:   c.Confidence,
		HasBlocker:   c.HasBlocker,
		BlockerTerms: terms,
		Source:       SourceClassifier,
		Tone:         ToneOf(c.Score),
		Urgency:      UrgencyOf(blockerCount),
	}
}

// Observe validates a message record and analyzes its text
func (e *Engine) Observe(ctx context.Context, msg types.MessageRecord) (Observation, error) {
	if err := ValidateMessage(msg); err != nil {
		return Observation{}, err
	}

	obs := e.AnalyzeMessage(ctx, msg.Text)
	obs.PersonID = msg.PersonID
	obs.ObservedAt = msg.OccurredAt
	return obs, nil
}

// ValidateMessage checks a single message record
func ValidateMessage(msg types.MessageRecord) error {
	switch {
	case strings.TrimSpace(msg.PersonID) == "":
		return apperrors.NewValidationError("message person_id is required", "channel_id", msg.ChannelID)
	case strings.TrimSpace(msg.Text) == "":
		return apperrors.NewValidationError("message text is required", "person_id", msg.PersonID)
	case msg.OccurredAt.IsZero():
		return apperrors.NewValidationError("message occurred_at is required", "person_id", msg.PersonID)
	}
	return nil
}

func (e *Engine) fallback(text, reason string, cause error) Observation {
	if cause != nil {
		e.logger.Info("Classifier failed, using heuristic",
			"reason", reason,
			"error", cause)
	} else if reason != FallbackNoClassifier {
		e.logger.Info("Classifier output rejected, using heuristic", "reason", reason)
	}
	if e.fallbacks != nil {
		e.fallbacks.RecordFallback(reason)
	}

	r := e.heuristic.Analyze(text)
	return Observation{
		Score:        r.Score,
		Confidence:   r.Confidence,
		HasBlocker:   r.BlockerCount > 0,
		BlockerTerms: r.BlockerTerms,
		Source:       SourceHeuristic,
		Tone:         ToneOf(r.Score),
		Urgency:      UrgencyOf(r.BlockerCount),
	}
}

func validClassification(c Classification) bool {
	if !analysis.IsFinite(c.Score) || !analysis.IsFinite(c.Confidence) {
		return false
	}
	return c.Score >= 0 && c.Score <= 1 && c.Confidence >= 0 && c.Confidence <= 1
}
