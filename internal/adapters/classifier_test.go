package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/teamsignal/internal/cache"
	apperrors "github.com/ZanzyTHEbar/teamsignal/internal/errors"
	"github.com/ZanzyTHEbar/teamsignal/internal/monitoring"
	"github.com/ZanzyTHEbar/teamsignal/internal/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(url string) ClassifierConfig {
	cfg := DefaultClassifierConfig()
	cfg.URL = url
	cfg.Timeout = time.Second
	cfg.RateLimit = 1000
	cfg.Burst = 100
	cfg.Retry.InitialDelay = time.Millisecond
	cfg.Retry.MaxDelay = 2 * time.Millisecond
	cfg.Breaker = resilience.CircuitBreakerConfig{FailureThreshold: 3, RecoveryTimeout: time.Minute, SuccessThreshold: 1}
	return cfg
}

// newServer answers /classify with the given statuses in order, then 200 with body
func newServer(t *testing.T, body string, statuses ...int) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/classify", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req classifyRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		if int(n) <= len(statuses) {
			w.WriteHeader(statuses[n-1])
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestHTTPClassifier_Success(t *testing.T) {
	srv, calls := newServer(t, `{"score":0.8,"confidence":0.9,"has_blocker":true,"terms":["blocked"]}`)
	health := resilience.NewHealthTracker(resilience.DefaultDegradationConfig(), nil)

	c, err := NewHTTPClassifier(testConfig(srv.URL+"/"), WithHealthTracker(health), WithMetrics(monitoring.NewMetrics(nil)))
	require.NoError(t, err)

	got, err := c.Classify(context.Background(), "blocked on review")
	require.NoError(t, err)
	assert.Equal(t, 0.8, got.Score)
	assert.Equal(t, 0.9, got.Confidence)
	assert.True(t, got.HasBlocker)
	assert.Equal(t, []string{"blocked"}, got.Terms)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))

	status, ok := health.ServiceHealth(ClassifierServiceName)
	require.True(t, ok)
	assert.Equal(t, int64(1), status.TotalRequests)
	assert.Zero(t, status.ErrorCount)
}

func TestHTTPClassifier_Cache(t *testing.T) {
	srv, calls := newServer(t, `{"score":0.4,"confidence":0.5}`)
	store := cache.NewCache(time.Minute)
	t.Cleanup(func() { _ = store.Close() })

	c, err := NewHTTPClassifier(testConfig(srv.URL), WithCache(store))
	require.NoError(t, err)

	first, err := c.Classify(context.Background(), "same text")
	require.NoError(t, err)
	second, err := c.Classify(context.Background(), "same text")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))

	_, err = c.Classify(context.Background(), "other text")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
}

func TestHTTPClassifier_RetriesTransientFailures(t *testing.T) {
	srv, calls := newServer(t, `{"score":0.6,"confidence":0.7}`, http.StatusServiceUnavailable, http.StatusBadGateway)

	c, err := NewHTTPClassifier(testConfig(srv.URL))
	require.NoError(t, err)

	got, err := c.Classify(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, 0.6, got.Score)
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
}

func TestHTTPClassifier_Failures(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		statuses []int
		calls    int32
	}{
		{"client error is not retried", `{}`, []int{http.StatusBadRequest}, 1},
		{"persistent server error exhausts retries", `{}`, []int{500, 500, 500, 500}, 3},
		{"score out of range", `{"score":1.5,"confidence":0.5}`, nil, 1},
		{"confidence out of range", `{"score":0.5,"confidence":-1}`, nil, 1},
		{"malformed body", `not json`, nil, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, calls := newServer(t, tt.body, tt.statuses...)
			c, err := NewHTTPClassifier(testConfig(srv.URL))
			require.NoError(t, err)

			_, err = c.Classify(context.Background(), "text")
			require.Error(t, err)
			assert.True(t, apperrors.IsClassifierUnavailable(err))
			assert.Equal(t, tt.calls, atomic.LoadInt32(calls))
		})
	}
}

func TestHTTPClassifier_BreakerOpens(t *testing.T) {
	srv, calls := newServer(t, `{}`, 400, 400, 400, 400, 400)
	metrics := monitoring.NewMetrics(nil)

	c, err := NewHTTPClassifier(testConfig(srv.URL), WithMetrics(metrics))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := c.Classify(context.Background(), "text")
		require.Error(t, err)
	}
	assert.Equal(t, resilience.StateOpen, c.BreakerState())

	_, err = c.Classify(context.Background(), "text")
	require.Error(t, err)
	assert.True(t, apperrors.IsClassifierUnavailable(err))
	assert.Equal(t, int32(3), atomic.LoadInt32(calls), "open breaker short-circuits the call")
}

func TestHTTPClassifier_ContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	c, err := NewHTTPClassifier(testConfig(srv.URL))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = c.Classify(ctx, "slow")
	require.Error(t, err)
	assert.True(t, apperrors.IsClassifierUnavailable(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClassifierConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ClassifierConfig)
		wantErr bool
	}{
		{"defaults without url", func(c *ClassifierConfig) {}, false},
		{"valid url", func(c *ClassifierConfig) { c.URL = "https://classifier.internal" }, false},
		{"relative url", func(c *ClassifierConfig) { c.URL = "classifier.internal" }, true},
		{"zero timeout", func(c *ClassifierConfig) { c.Timeout = 0 }, true},
		{"zero rate", func(c *ClassifierConfig) { c.RateLimit = 0 }, true},
		{"zero burst", func(c *ClassifierConfig) { c.Burst = 0 }, true},
		{"no attempts", func(c *ClassifierConfig) { c.Retry.MaxAttempts = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultClassifierConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.True(t, apperrors.IsCategory(err, apperrors.CategoryConfiguration))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewHTTPClassifier_RequiresURL(t *testing.T) {
	_, err := NewHTTPClassifier(DefaultClassifierConfig())
	assert.Error(t, err)
}
