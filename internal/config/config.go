// Package config defines the service configuration and how it is loaded.
package config

import (
	"strings"
	"time"

	"github.com/ZanzyTHEbar/teamsignal/internal/adapters"
	"github.com/ZanzyTHEbar/teamsignal/internal/cache"
	"github.com/ZanzyTHEbar/teamsignal/internal/engine"
	apperrors "github.com/ZanzyTHEbar/teamsignal/internal/errors"
	"github.com/ZanzyTHEbar/teamsignal/internal/middleware"
	"github.com/ZanzyTHEbar/teamsignal/internal/monitoring"
	"github.com/ZanzyTHEbar/teamsignal/internal/ratelimit"
	"github.com/ZanzyTHEbar/teamsignal/internal/resilience"
)

// ServerConfig configures the HTTP process
type ServerConfig struct {
	// Addr is the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// DataDir holds the SQLite snapshot database.
	DataDir string `koanf:"data_dir"`

	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	RequestTimeout  time.Duration `koanf:"request_timeout"`

	// CORSOrigins is a comma separated list; empty allows any origin.
	CORSOrigins string `koanf:"cors_origins"`

	MaxBodyBytes int64 `koanf:"max_body_bytes"`
}

// Origins splits CORSOrigins into a list
func (s ServerConfig) Origins() []string {
	var out []string
	for _, o := range strings.Split(s.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// CacheConfig configures the allocation response cache
type CacheConfig struct {
	TTL time.Duration `koanf:"ttl"`
}

// Config is the full process configuration
type Config struct {
	Server     ServerConfig                 `koanf:"server"`
	Engine     engine.Config                `koanf:"engine"`
	Classifier adapters.ClassifierConfig    `koanf:"classifier"`
	Redis      cache.RedisConfig            `koanf:"redis"`
	RateLimit  ratelimit.Config             `koanf:"ratelimit"`
	Cache      CacheConfig                  `koanf:"cache"`
	Health     resilience.DegradationConfig `koanf:"health"`

	Compression middleware.CompressionConfig `koanf:"compression"`
}

// New returns a Config populated with defaults
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			LogLevel:        "info",
			DataDir:         "./data",
			ShutdownTimeout: 10 * time.Second,
			RequestTimeout:  30 * time.Second,
			MaxBodyBytes:    10 << 20,
		},
		Engine:     engine.DefaultConfig(),
		Classifier: adapters.DefaultClassifierConfig(),
		RateLimit:  ratelimit.DefaultConfig(),
		Cache:      CacheConfig{TTL: 5 * time.Minute},
		Health:     resilience.DefaultDegradationConfig(),

		Compression: middleware.DefaultCompressionConfig(),
	}
}

// Validate checks the server settings and delegates to every section
func (c *Config) Validate() error {
	problems := map[string]string{}

	if strings.TrimSpace(c.Server.Addr) == "" {
		problems["server.addr"] = "must not be empty"
	}
	if _, ok := monitoring.ParseLevel(c.Server.LogLevel); !ok {
		problems["server.log_level"] = "must be one of debug, info, warn, error"
	}
	if strings.TrimSpace(c.Server.DataDir) == "" {
		problems["server.data_dir"] = "must not be empty"
	}
	if c.Server.ShutdownTimeout <= 0 {
		problems["server.shutdown_timeout"] = "must be positive"
	}
	if c.Server.RequestTimeout <= 0 {
		problems["server.request_timeout"] = "must be positive"
	}
	for _, o := range c.Server.Origins() {
		if !strings.HasPrefix(o, "http://") && !strings.HasPrefix(o, "https://") {
			problems["server.cors_origins"] = "origins must start with http:// or https://"
		}
	}
	if c.Cache.TTL < 0 {
		problems["cache.ttl"] = "must not be negative"
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerMinute < 1 || c.RateLimit.Burst < 1) {
		problems["ratelimit"] = "requests_per_minute and burst must be at least 1"
	}
	if len(problems) > 0 {
		return apperrors.NewConfigurationError("invalid server configuration",
			apperrors.NewValidationErrorWithMap(problems))
	}

	if err := c.Engine.Validate(); err != nil {
		return err
	}
	return c.Classifier.Validate()
}
