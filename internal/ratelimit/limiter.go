package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/teamsignal/internal/cache"
	"github.com/ZanzyTHEbar/teamsignal/internal/monitoring"
	"github.com/go-redis/redis_rate/v10"
	"golang.org/x/time/rate"
)

const keyPrefix = "ratelimit:client:"

// Config holds API rate limiter configuration
type Config struct {
	Enabled           bool `koanf:"enabled"`
	RequestsPerMinute int  `koanf:"requests_per_minute"`
	Burst             int  `koanf:"burst"`
}

// DefaultConfig returns default rate limiting configuration
func DefaultConfig() Config {
	return Config{
		Enabled:           true,
		RequestsPerMinute: 120,
		Burst:             30,
	}
}

// Result represents the result of a rate limit check
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// RateLimiter throttles API clients through Redis when available and an
// in-memory token bucket otherwise
type RateLimiter struct {
	redisLimiter *redis_rate.Limiter
	redisClient  *cache.RedisClient
	config       Config
	metrics      *monitoring.Metrics
	logger       *monitoring.Logger
	now          func() time.Time

	fallbackLimiters map[string]*rate.Limiter
	fallbackMutex    sync.Mutex

	stop     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a limiter. A nil or disabled Redis client selects the in-memory path.
func NewRateLimiter(redisClient *cache.RedisClient, config Config, metrics *monitoring.Metrics, logger *monitoring.Logger) *RateLimiter {
	if logger == nil {
		logger = monitoring.NewNopLogger()
	}
	rl := &RateLimiter{
		redisClient:      redisClient,
		config:           config,
		metrics:          metrics,
		logger:           logger,
		now:              time.Now,
		fallbackLimiters: make(map[string]*rate.Limiter),
		stop:             make(chan struct{}),
	}

	if redisClient.IsEnabled() {
		rl.redisLimiter = redis_rate.NewLimiter(redisClient.GetClient())
		logger.Info("Redis rate limiter initialized")
	} else {
		logger.Info("Redis unavailable, using in-memory rate limiting")
	}

	go rl.cleanupFallbackLimiters(time.Hour)

	return rl
}

// Close stops the background cleanup
func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// AllowClient checks whether a client (usually its IP) may make another request
func (rl *RateLimiter) AllowClient(ctx context.Context, clientID string) (*Result, error) {
	key := keyPrefix + clientID

	if rl.redisLimiter != nil {
		result, err := rl.allowRedis(ctx, key)
		if err == nil {
			return result, nil
		}
		rl.logger.Warn("Redis rate limit check failed, using fallback", "error", err)
	}

	return rl.allowFallback(key), nil
}

func (rl *RateLimiter) allowRedis(ctx context.Context, key string) (*Result, error) {
	limit := redis_rate.Limit{
		Rate:   rl.config.RequestsPerMinute,
		Burst:  max(rl.config.Burst, 1),
		Period: time.Minute,
	}

	res, err := rl.redisLimiter.Allow(ctx, key, limit)
	if err != nil {
		return nil, fmt.Errorf("redis rate limit check failed: %w", err)
	}

	return &Result{
		Allowed:    res.Allowed > 0,
		Limit:      res.Limit.Rate,
		Remaining:  res.Remaining,
		ResetAt:    rl.now().Add(res.ResetAfter),
		RetryAfter: max(res.RetryAfter, 0),
	}, nil
}

func (rl *RateLimiter) allowFallback(key string) *Result {
	rl.fallbackMutex.Lock()
	limiter, exists := rl.fallbackLimiters[key]
	if !exists {
		rps := rate.Limit(float64(rl.config.RequestsPerMinute) / 60.0)
		limiter = rate.NewLimiter(rps, max(rl.config.Burst, 1))
		rl.fallbackLimiters[key] = limiter
	}
	rl.fallbackMutex.Unlock()

	now := rl.now()
	reservation := limiter.ReserveN(now, 1)
	delay := reservation.DelayFrom(now)
	allowed := reservation.OK() && delay == 0
	if !allowed {
		reservation.CancelAt(now)
	}

	result := &Result{
		Allowed:   allowed,
		Limit:     rl.config.RequestsPerMinute,
		Remaining: max(int(limiter.TokensAt(now)), 0),
		ResetAt:   now.Add(time.Minute),
	}
	if !allowed {
		result.RetryAfter = delay
	}
	return result
}

// cleanupFallbackLimiters periodically drops the in-memory limiters once there are many
func (rl *RateLimiter) cleanupFallbackLimiters(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.fallbackMutex.Lock()
			if len(rl.fallbackLimiters) > 1000 {
				slog.Info("Cleaning up fallback rate limiters", "count", len(rl.fallbackLimiters))
				rl.fallbackLimiters = make(map[string]*rate.Limiter)
			}
			rl.fallbackMutex.Unlock()
		}
	}
}

// GetStats returns rate limiter statistics
func (rl *RateLimiter) GetStats() map[string]interface{} {
	rl.fallbackMutex.Lock()
	fallbackCount := len(rl.fallbackLimiters)
	rl.fallbackMutex.Unlock()

	stats := map[string]interface{}{
		"redis_enabled":       rl.redisLimiter != nil,
		"fallback_limiters":   fallbackCount,
		"requests_per_minute": rl.config.RequestsPerMinute,
	}
	if rl.redisClient.IsEnabled() {
		stats["redis_pool"] = rl.redisClient.GetPoolStats()
	}
	return stats
}
