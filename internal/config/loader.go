package config

import (
	"os"
	"strings"

	apperrors "github.com/ZanzyTHEbar/teamsignal/internal/errors"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix  = "TEAMSIGNAL_"
	envFileVar = "TEAMSIGNAL_CONFIG"
)

// Load builds a Config by layering, lowest precedence first:
//  1. defaults (New)
//  2. the YAML file named by TEAMSIGNAL_CONFIG, if set
//  3. TEAMSIGNAL_* environment variables
//
// Nested keys are separated by a double underscore in env names:
// TEAMSIGNAL_SERVER__ADDR sets server.addr.
func Load() (*Config, error) {
	k := koanf.New(".")

	if path := os.Getenv(envFileVar); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, apperrors.NewConfigurationError("failed to read config file "+path, err)
		}
	}

	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, apperrors.NewConfigurationError("failed to read environment", err)
	}

	cfg := New()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, apperrors.NewConfigurationError("failed to decode configuration", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
