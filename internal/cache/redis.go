package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the optional shared Redis instance
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// RedisClient wraps the Redis client with health checks and graceful degradation.
// A client with an empty address is valid and simply disabled.
type RedisClient struct {
	client  *redis.Client
	enabled bool
	addr    string
}

// NewRedisClient connects to Redis. On ping failure it returns a disabled
// client together with the error so callers can continue without Redis.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*RedisClient, error) {
	if cfg.Addr == "" {
		return &RedisClient{enabled: false}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
		PoolTimeout:  4 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return &RedisClient{enabled: false, addr: cfg.Addr}, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisClientFrom(client, cfg.Addr), nil
}

// NewRedisClientFrom wraps an already configured client
func NewRedisClientFrom(client *redis.Client, addr string) *RedisClient {
	return &RedisClient{client: client, enabled: client != nil, addr: addr}
}

// GetClient returns the underlying Redis client
func (r *RedisClient) GetClient() *redis.Client {
	return r.client
}

// IsEnabled returns whether Redis is enabled and healthy
func (r *RedisClient) IsEnabled() bool {
	return r != nil && r.enabled
}

// HealthCheck performs a health check on the Redis connection
func (r *RedisClient) HealthCheck(ctx context.Context) error {
	if !r.IsEnabled() {
		return errors.New("redis is disabled")
	}
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	if r.IsEnabled() && r.client != nil {
		return r.client.Close()
	}
	return nil
}

// GetPoolStats returns Redis connection pool statistics
func (r *RedisClient) GetPoolStats() map[string]interface{} {
	if !r.IsEnabled() || r.client == nil {
		return map[string]interface{}{"enabled": false}
	}

	stats := r.client.PoolStats()
	return map[string]interface{}{
		"enabled":     true,
		"addr":        r.addr,
		"hits":        stats.Hits,
		"misses":      stats.Misses,
		"timeouts":    stats.Timeouts,
		"total_conns": stats.TotalConns,
		"idle_conns":  stats.IdleConns,
		"stale_conns": stats.StaleConns,
	}
}

// RedisStore is a Store backed by Redis. Errors are logged and read as misses.
type RedisStore struct {
	client *RedisClient
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisStore creates a store; a disabled client yields a store that always misses
func NewRedisStore(client *RedisClient, ttl time.Duration, logger *slog.Logger) *RedisStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{client: client, ttl: ttl, logger: logger}
}

// Get reads a key
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool) {
	if !s.client.IsEnabled() {
		return nil, false
	}
	data, err := s.client.GetClient().Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("Redis cache read failed", "error", err)
		}
		return nil, false
	}
	return data, true
}

// Set writes a key with the store TTL
func (s *RedisStore) Set(ctx context.Context, key string, data []byte) {
	if !s.client.IsEnabled() {
		return
	}
	if err := s.client.GetClient().Set(ctx, key, data, s.ttl).Err(); err != nil {
		s.logger.Warn("Redis cache write failed", "error", err)
	}
}
