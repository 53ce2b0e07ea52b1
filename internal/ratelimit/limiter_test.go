package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/teamsignal/internal/cache"
	"github.com/ZanzyTHEbar/teamsignal/internal/monitoring"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFallbackLimiter(t *testing.T, config Config) *RateLimiter {
	t.Helper()
	rl := NewRateLimiter(&cache.RedisClient{}, config, monitoring.NewMetrics(nil), nil)
	t.Cleanup(rl.Close)

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	return rl
}

func TestRateLimiter_FallbackBurst(t *testing.T) {
	rl := newFallbackLimiter(t, Config{Enabled: true, RequestsPerMinute: 60, Burst: 3})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := rl.AllowClient(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, result.Allowed, "request %d should be allowed", i+1)
		assert.Equal(t, 60, result.Limit)
	}

	result, err := rl.AllowClient(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, 0, result.Remaining)
	assert.Greater(t, result.RetryAfter, time.Duration(0))

	other, err := rl.AllowClient(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, other.Allowed, "budgets are per client")
}

func TestRateLimiter_FallbackStats(t *testing.T) {
	rl := newFallbackLimiter(t, Config{Enabled: true, RequestsPerMinute: 60, Burst: 1})
	ctx := context.Background()

	first, _ := rl.AllowClient(ctx, "c")
	second, _ := rl.AllowClient(ctx, "c")
	assert.True(t, first.Allowed)
	assert.False(t, second.Allowed)

	stats := rl.GetStats()
	assert.Equal(t, false, stats["redis_enabled"])
	assert.Equal(t, 1, stats["fallback_limiters"])
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := newFallbackLimiter(t, Config{Enabled: true, RequestsPerMinute: 60, Burst: 2})

	router := gin.New()
	router.Use(rl.Middleware())
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	codes := make([]int, 0, 3)
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last = httptest.NewRecorder()
		router.ServeHTTP(last, httptest.NewRequest(http.MethodGet, "/ping", nil))
		codes = append(codes, last.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, "60", last.Header().Get("X-RateLimit-Limit"))
	assert.NotEmpty(t, last.Header().Get("Retry-After"))
}
