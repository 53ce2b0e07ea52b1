package main

import (
	"context"
	"time"

	"github.com/ZanzyTHEbar/teamsignal/internal/adapters"
	"github.com/ZanzyTHEbar/teamsignal/internal/cache"
	"github.com/ZanzyTHEbar/teamsignal/internal/config"
	"github.com/ZanzyTHEbar/teamsignal/internal/database"
	"github.com/ZanzyTHEbar/teamsignal/internal/engine"
	apperrors "github.com/ZanzyTHEbar/teamsignal/internal/errors"
	"github.com/ZanzyTHEbar/teamsignal/internal/middleware"
	"github.com/ZanzyTHEbar/teamsignal/internal/monitoring"
	"github.com/ZanzyTHEbar/teamsignal/internal/ratelimit"
	"github.com/ZanzyTHEbar/teamsignal/internal/resilience"
	"github.com/ZanzyTHEbar/teamsignal/internal/sentiment"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	version = "1.0.0"

	// databaseServiceName is the health tracker entry for snapshot storage
	databaseServiceName = "database"
)

// server owns every long-lived dependency of the HTTP process
type server struct {
	cfg      *config.Config
	logger   *monitoring.Logger
	metrics  *monitoring.Metrics
	registry *prometheus.Registry

	engine     *engine.Engine
	classifier *adapters.HTTPClassifier
	health     *resilience.HealthTracker

	db    *database.DB
	repo  *database.Repository
	redis *cache.RedisClient

	classifications *cache.Cache
	responses       *cache.Cache
	responseStore   cache.Store
	limiter         *ratelimit.RateLimiter
	compression     *middleware.CompressionMiddleware
}

// newServer connects storage, builds the classifier and the engine. A
// missing classifier URL or Redis address is not an error: the heuristic and
// the in-memory stores take over.
func newServer(ctx context.Context, cfg *config.Config, logger *monitoring.Logger, registry *prometheus.Registry) (*server, error) {
	s := &server{
		cfg:      cfg,
		logger:   logger,
		metrics:  monitoring.NewMetrics(registry),
		registry: registry,
		health:   resilience.NewHealthTracker(cfg.Health, logger.Logger),

		compression: middleware.NewCompressionMiddleware(cfg.Compression),
	}
	s.health.RegisterService(databaseServiceName)

	db, err := database.NewDB(ctx, cfg.Server.DataDir)
	if err != nil {
		return nil, apperrors.NewConfigurationError("failed to open snapshot database", err)
	}
	s.db = db
	s.repo = database.NewRepository(db)

	// a failed ping still returns a usable, disabled client
	s.redis, err = cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Warn("Redis unavailable, using in-memory stores only", "error", err)
	}

	s.classifications = cache.NewCache(cfg.Classifier.CacheTTL)
	s.responses = cache.NewCache(cfg.Cache.TTL)
	s.responseStore = s.layered(s.responses, cfg.Cache.TTL)

	var classifier sentiment.Classifier
	if cfg.Classifier.Enabled() {
		s.classifier, err = adapters.NewHTTPClassifier(cfg.Classifier,
			adapters.WithCache(s.layered(s.classifications, cfg.Classifier.CacheTTL)),
			adapters.WithMetrics(s.metrics),
			adapters.WithHealthTracker(s.health),
			adapters.WithClassifierLogger(logger))
		if err != nil {
			s.Close()
			return nil, err
		}
		classifier = s.classifier
	} else {
		logger.Info("No classifier configured, sentiment uses the keyword heuristic")
	}

	s.engine, err = engine.New(cfg.Engine, classifier,
		engine.WithMetrics(s.metrics),
		engine.WithLogger(logger))
	if err != nil {
		s.Close()
		return nil, err
	}

	if cfg.RateLimit.Enabled {
		s.limiter = ratelimit.NewRateLimiter(s.redis, cfg.RateLimit, s.metrics, logger)
	}

	return s, nil
}

// layered puts Redis behind a local cache when Redis is configured
func (s *server) layered(local *cache.Cache, ttl time.Duration) cache.Store {
	if !s.redis.IsEnabled() {
		return local
	}
	return cache.Layered{Local: local, Remote: cache.NewRedisStore(s.redis, ttl, s.logger.Logger)}
}

// Close releases every resource newServer acquired
func (s *server) Close() {
	if s.limiter != nil {
		s.limiter.Close()
	}
	if s.classifications != nil {
		apperrors.SafeClose(s.classifications, "classification cache")
	}
	if s.responses != nil {
		apperrors.SafeClose(s.responses, "response cache")
	}
	if s.redis != nil {
		apperrors.SafeClose(s.redis, "redis")
	}
	if s.db != nil {
		apperrors.SafeClose(s.db, "database")
	}
}
