package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/teamsignal/internal/analysis"
	"github.com/ZanzyTHEbar/teamsignal/internal/cache"
	apperrors "github.com/ZanzyTHEbar/teamsignal/internal/errors"
	"github.com/ZanzyTHEbar/teamsignal/internal/monitoring"
	"github.com/ZanzyTHEbar/teamsignal/internal/resilience"
	"github.com/ZanzyTHEbar/teamsignal/internal/sentiment"
	"golang.org/x/time/rate"
)

// ClassifierServiceName is the name the classifier reports under in health checks
const ClassifierServiceName = "classifier"

const maxResponseBytes = 1 << 20

// ClassifierConfig configures the remote text classifier. An empty URL
// disables it and every message is scored by the keyword heuristic.
type ClassifierConfig struct {
	URL       string                          `koanf:"url"`
	Timeout   time.Duration                   `koanf:"timeout"`
	RateLimit float64                         `koanf:"rate_limit"` // requests per second
	Burst     int                             `koanf:"burst"`
	CacheTTL  time.Duration                   `koanf:"cache_ttl"`
	Retry     resilience.RetryConfig          `koanf:"retry"`
	Breaker   resilience.CircuitBreakerConfig `koanf:"breaker"`
}

// DefaultClassifierConfig returns the defaults used when nothing is configured
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		Timeout:   3 * time.Second,
		RateLimit: 20,
		Burst:     10,
		CacheTTL:  time.Hour,
		Retry:     resilience.DefaultRetryConfig(),
		Breaker:   resilience.DefaultCircuitBreakerConfig(),
	}
}

// Enabled reports whether a classifier endpoint is configured
func (c ClassifierConfig) Enabled() bool {
	return strings.TrimSpace(c.URL) != ""
}

// Validate checks the configuration
func (c ClassifierConfig) Validate() error {
	problems := map[string]string{}

	if c.Enabled() {
		u, err := url.Parse(c.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			problems["url"] = "must be an absolute http(s) URL"
		}
	}
	if c.Timeout <= 0 {
		problems["timeout"] = "must be positive"
	}
	if c.RateLimit <= 0 {
		problems["rate_limit"] = "must be positive"
	}
	if c.Burst < 1 {
		problems["burst"] = "must be at least 1"
	}
	if c.CacheTTL < 0 {
		problems["cache_ttl"] = "must not be negative"
	}
	if c.Retry.MaxAttempts < 1 {
		problems["retry.max_attempts"] = "must be at least 1"
	}

	if len(problems) > 0 {
		return apperrors.NewConfigurationError("invalid classifier configuration",
			apperrors.NewValidationErrorWithMap(problems))
	}
	return nil
}

type classifyRequest struct {
	Text string `json:"text"`
}

// HTTPClassifier calls a remote classifier over HTTP. Each call goes through
// the cache, the rate limiter, the circuit breaker and the retry policy.
type HTTPClassifier struct {
	cfg      ClassifierConfig
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
	breaker  *resilience.CircuitBreaker
	health   *resilience.HealthTracker
	cache    cache.Store
	metrics  *monitoring.Metrics
	logger   *monitoring.Logger
}

// ClassifierOption configures an HTTPClassifier
type ClassifierOption func(*HTTPClassifier)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(client *http.Client) ClassifierOption {
	return func(c *HTTPClassifier) { c.client = client }
}

// WithCache enables response caching keyed by message text
func WithCache(store cache.Store) ClassifierOption {
	return func(c *HTTPClassifier) { c.cache = store }
}

// WithMetrics records call outcomes and breaker transitions
func WithMetrics(metrics *monitoring.Metrics) ClassifierOption {
	return func(c *HTTPClassifier) { c.metrics = metrics }
}

// WithHealthTracker reports call outcomes to a HealthTracker
func WithHealthTracker(health *resilience.HealthTracker) ClassifierOption {
	return func(c *HTTPClassifier) { c.health = health }
}

// WithClassifierLogger sets the logger
func WithClassifierLogger(logger *monitoring.Logger) ClassifierOption {
	return func(c *HTTPClassifier) { c.logger = logger }
}

// NewHTTPClassifier validates cfg and builds a classifier client
func NewHTTPClassifier(cfg ClassifierConfig, opts ...ClassifierOption) (*HTTPClassifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Enabled() {
		return nil, apperrors.NewConfigurationError("classifier url is not configured", nil)
	}

	c := &HTTPClassifier{
		cfg:      cfg,
		endpoint: strings.TrimRight(cfg.URL, "/") + "/classify",
		client:   &http.Client{Timeout: cfg.Timeout},
		limiter:  rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		logger:   monitoring.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.breaker = resilience.NewCircuitBreaker(cfg.Breaker,
		resilience.WithStateChangeHook(func(from, to resilience.CircuitBreakerState) {
			c.logger.Warn("Classifier circuit breaker state changed",
				"from", from.String(),
				"to", to.String())
			if c.metrics != nil {
				c.metrics.RecordBreakerTransition(to.String())
			}
		}))

	if c.health != nil {
		c.health.RegisterService(ClassifierServiceName)
	}

	// an open breaker is not worth retrying
	retryable := cfg.Retry.RetryableErrors
	if retryable == nil {
		retryable = apperrors.IsRetryableError
	}
	c.cfg.Retry.RetryableErrors = func(err error) bool {
		var cbErr *resilience.CircuitBreakerError
		if errors.As(err, &cbErr) {
			return false
		}
		return retryable(err)
	}

	return c, nil
}

// BreakerState exposes the circuit breaker state for health reporting
func (c *HTTPClassifier) BreakerState() resilience.CircuitBreakerState {
	return c.breaker.State()
}

// Classify implements sentiment.Classifier
func (c *HTTPClassifier) Classify(ctx context.Context, text string) (sentiment.Classification, error) {
	key := cache.Key("classify", text)
	if c.cache != nil {
		if data, ok := c.cache.Get(ctx, key); ok {
			var cached sentiment.Classification
			if err := json.Unmarshal(data, &cached); err == nil {
				c.recordCache(key, true)
				return cached, nil
			}
		}
		c.recordCache(key, false)
	}

	start := time.Now()
	result, err := c.classify(ctx, text)
	duration := time.Since(start)

	if err != nil {
		c.record(outcomeOf(err), duration, err)
		if !apperrors.IsCategory(err, apperrors.CategoryClassifierUnavailable) {
			err = apperrors.NewClassifierUnavailableError("classifier request failed", err)
		}
		return sentiment.Classification{}, err
	}

	c.record("success", duration, nil)

	if c.cache != nil {
		if data, mErr := json.Marshal(result); mErr == nil {
			c.cache.Set(ctx, key, data)
		}
	}
	return result, nil
}

func (c *HTTPClassifier) classify(ctx context.Context, text string) (sentiment.Classification, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return sentiment.Classification{}, fmt.Errorf("rate limiter wait: %w", err)
	}

	return resilience.RetryWithResult(ctx, c.cfg.Retry, func() (sentiment.Classification, error) {
		var out sentiment.Classification
		err := c.breaker.Call(func() error {
			var callErr error
			out, callErr = c.do(ctx, text)
			return callErr
		})
		return out, err
	})
}

func (c *HTTPClassifier) do(ctx context.Context, text string) (sentiment.Classification, error) {
	payload, err := json.Marshal(classifyRequest{Text: text})
	if err != nil {
		return sentiment.Classification{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return sentiment.Classification{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "teamsignal/1.0")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.ExternalAPILogger(ClassifierServiceName, http.MethodPost, c.endpoint, 0, time.Since(start), false)
		if ctx.Err() != nil {
			return sentiment.Classification{}, ctx.Err()
		}
		return sentiment.Classification{}, apperrors.NewClassifierUnavailableError("classifier unreachable", err)
	}
	defer apperrors.SafeClose(resp.Body, "classifier response body")

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	c.logger.ExternalAPILogger(ClassifierServiceName, http.MethodPost, c.endpoint, resp.StatusCode, time.Since(start), ok)

	if !ok {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		if isRetryableHTTPStatus(resp.StatusCode) {
			return sentiment.Classification{}, apperrors.NewClassifierUnavailableError(
				fmt.Sprintf("classifier returned status %d", resp.StatusCode), nil)
		}
		return sentiment.Classification{}, fmt.Errorf("classifier rejected request: status %d", resp.StatusCode)
	}

	var out sentiment.Classification
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		return sentiment.Classification{}, fmt.Errorf("decode classifier response: %w", err)
	}
	if err := validateClassification(out); err != nil {
		return sentiment.Classification{}, err
	}
	return out, nil
}

func validateClassification(out sentiment.Classification) error {
	if !analysis.IsFinite(out.Score) || out.Score < 0 || out.Score > 1 {
		return fmt.Errorf("classifier score %v outside [0,1]", out.Score)
	}
	if !analysis.IsFinite(out.Confidence) || out.Confidence < 0 || out.Confidence > 1 {
		return fmt.Errorf("classifier confidence %v outside [0,1]", out.Confidence)
	}
	return nil
}

// isRetryableHTTPStatus checks if an HTTP status code should trigger a retry
func isRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	case http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func outcomeOf(err error) string {
	var cbErr *resilience.CircuitBreakerError
	switch {
	case errors.As(err, &cbErr):
		return "circuit_open"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	default:
		return "error"
	}
}

func (c *HTTPClassifier) record(outcome string, duration time.Duration, err error) {
	if c.metrics != nil {
		c.metrics.RecordClassifierCall(outcome, duration)
	}
	if c.health == nil {
		return
	}
	if err != nil {
		c.health.RecordError(ClassifierServiceName, err)
	} else {
		c.health.RecordSuccess(ClassifierServiceName)
	}
}

func (c *HTTPClassifier) recordCache(key string, hit bool) {
	c.logger.CacheLogger("classify", strings.TrimPrefix(key, "classify:"), hit)
	if c.metrics == nil {
		return
	}
	if hit {
		c.metrics.IncrementCacheHit()
	} else {
		c.metrics.IncrementCacheMiss()
	}
}
