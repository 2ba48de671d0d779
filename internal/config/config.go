// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskHive Contributors

// Package config loads and validates service configuration from defaults,
// an optional YAML file, TASKHIVE_-prefixed environment variables, and
// command-line flags, in that order of precedence.
package config

import (
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/taskhive/taskhive/internal/auth"
)

// EnvPrefix is the prefix for environment variable overrides. A double
// underscore separates nesting levels: TASKHIVE_AUTH__TOKEN_SECRET sets
// auth.token_secret.
const EnvPrefix = "TASKHIVE_"

// Environments the service recognizes.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// Config is the root configuration.
type Config struct {
	Environment string          `koanf:"environment"`
	DatabaseURL string          `koanf:"database_url"`
	Server      ServerConfig    `koanf:"server"`
	Log         LogConfig       `koanf:"log"`
	Auth        AuthConfig      `koanf:"auth"`
	RateLimit   RateLimitConfig `koanf:"rate_limit"`
}

// ServerConfig configures the HTTP and observability listeners.
type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	MetricsAddr     string        `koanf:"metrics_addr"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Format string `koanf:"format"` // json or text
}

// AuthConfig configures the authentication core.
type AuthConfig struct {
	TokenSecret   string `koanf:"token_secret"`
	TokenLifetime string `koanf:"token_lifetime"`
	HashCost      int    `koanf:"hash_cost"`
	HashWorkers   int    `koanf:"hash_workers"`
}

// RateLimitConfig carries optional per-preset overrides. Zero values keep
// the preset defaults.
type RateLimitConfig struct {
	SweepInterval time.Duration `koanf:"sweep_interval"`
	Auth          LimitOverride `koanf:"auth"`
	API           LimitOverride `koanf:"api"`
}

// LimitOverride overrides one limiter's window and request budget.
type LimitOverride struct {
	Window      time.Duration `koanf:"window"`
	MaxRequests int           `koanf:"max_requests"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Environment: EnvDevelopment,
		Server: ServerConfig{
			Addr:            ":8080",
			MetricsAddr:     "127.0.0.1:9100",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{Format: "json"},
		Auth: AuthConfig{
			TokenLifetime: auth.DefaultTokenLifetime,
			HashCost:      auth.DefaultHashCost,
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path, the environment, and the given flag set (flags may be nil).
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, oops.Code("CONFIG_FILE_FAILED").
				With("path", path).
				Wrap(err)
		}
	}

	err := k.Load(env.Provider(EnvPrefix, ".", func(key string) string {
		key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil)
	if err != nil {
		return Config{}, oops.Code("CONFIG_ENV_FAILED").Wrap(err)
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return Config{}, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, oops.Code("CONFIG_UNMARSHAL_FAILED").Wrap(err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Production returns true when the environment is production.
func (c Config) Production() bool {
	return c.Environment == EnvProduction
}

// Validate checks the configuration at startup, before anything is wired.
func (c Config) Validate() error {
	switch c.Environment {
	case EnvDevelopment, EnvProduction, EnvTest:
	default:
		return oops.Code("CONFIG_INVALID").
			With("environment", c.Environment).
			Errorf("environment must be one of %s, %s, %s", EnvDevelopment, EnvProduction, EnvTest)
	}

	if c.Log.Format != "json" && c.Log.Format != "text" {
		return oops.Code("CONFIG_INVALID").
			With("log_format", c.Log.Format).
			Errorf("log format must be json or text")
	}

	if c.Auth.TokenSecret == "" {
		return oops.Code("CONFIG_INVALID").Errorf("auth token secret is required")
	}
	if c.Production() && len(c.Auth.TokenSecret) < auth.MinSecretLength {
		return oops.Code("CONFIG_INVALID").
			With("min_length", auth.MinSecretLength).
			Errorf("auth token secret must be at least %d characters in production", auth.MinSecretLength)
	}

	if _, err := auth.ParseLifetime(c.Auth.TokenLifetime); err != nil {
		return err
	}

	if c.Auth.HashCost < auth.MinHashCost || c.Auth.HashCost > auth.MaxHashCost {
		return oops.Code("CONFIG_INVALID").
			With("hash_cost", c.Auth.HashCost).
			Errorf("hash cost must be between %d and %d", auth.MinHashCost, auth.MaxHashCost)
	}
	if c.Production() && c.Auth.HashCost < auth.DefaultHashCost {
		return oops.Code("CONFIG_INVALID").
			With("hash_cost", c.Auth.HashCost).
			Errorf("hash cost below %d is not allowed in production", auth.DefaultHashCost)
	}

	for _, override := range []struct {
		name string
		o    LimitOverride
	}{
		{"auth", c.RateLimit.Auth},
		{"api", c.RateLimit.API},
	} {
		if override.o.Window < 0 || override.o.MaxRequests < 0 {
			return oops.Code("CONFIG_INVALID").
				With("limiter", override.name).
				Errorf("rate limit overrides must be non-negative")
		}
	}

	return nil
}
