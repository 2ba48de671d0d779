// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskHive Contributors

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhive/taskhive/internal/auth"
	"github.com/taskhive/taskhive/internal/config"
	"github.com/taskhive/taskhive/pkg/errutil"
)

const testTokenSecret = "0123456789abcdef0123456789abcdef"

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := config.Default()

	assert.Equal(t, config.EnvDevelopment, cfg.Environment)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "127.0.0.1:9100", cfg.Server.MetricsAddr)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, auth.DefaultTokenLifetime, cfg.Auth.TokenLifetime)
	assert.Equal(t, auth.DefaultHashCost, cfg.Auth.HashCost)
}

func TestLoad_DefaultsWithSecret(t *testing.T) {
	t.Setenv("TASKHIVE_AUTH__TOKEN_SECRET", testTokenSecret)

	cfg, err := config.Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, testTokenSecret, cfg.Auth.TokenSecret)
	assert.Equal(t, config.EnvDevelopment, cfg.Environment)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
environment: test
database_url: postgres://localhost:5432/taskhive_test
server:
  addr: ":9090"
auth:
  token_secret: `+testTokenSecret+`
  token_lifetime: 1h
rate_limit:
  sweep_interval: 30s
  auth:
    window: 5m
    max_requests: 10
`)

	cfg, err := config.Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, config.EnvTest, cfg.Environment)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "postgres://localhost:5432/taskhive_test", cfg.DatabaseURL)
	assert.Equal(t, "1h", cfg.Auth.TokenLifetime)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.SweepInterval)
	assert.Equal(t, 5*time.Minute, cfg.RateLimit.Auth.Window)
	assert.Equal(t, 10, cfg.RateLimit.Auth.MaxRequests)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
server:
  addr: ":9090"
auth:
  token_secret: `+testTokenSecret+`
`)
	t.Setenv("TASKHIVE_SERVER__ADDR", ":7070")

	cfg, err := config.Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr)
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("TASKHIVE_AUTH__TOKEN_SECRET", testTokenSecret)
	t.Setenv("TASKHIVE_SERVER__ADDR", ":7070")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("server.addr", "", "")
	require.NoError(t, flags.Set("server.addr", ":6060"))

	cfg, err := config.Load("", flags)
	require.NoError(t, err)

	assert.Equal(t, ":6060", cfg.Server.Addr)
}

func TestLoad_MissingFileFails(t *testing.T) {
	_, err := config.Load("/nonexistent/config.yaml", nil)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_FILE_FAILED")
}

func TestValidate(t *testing.T) {
	valid := func() config.Config {
		cfg := config.Default()
		cfg.Auth.TokenSecret = testTokenSecret
		return cfg
	}

	t.Run("valid config passes", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("unknown environment", func(t *testing.T) {
		cfg := valid()
		cfg.Environment = "staging"
		errutil.AssertErrorCode(t, cfg.Validate(), "CONFIG_INVALID")
	})

	t.Run("unknown log format", func(t *testing.T) {
		cfg := valid()
		cfg.Log.Format = "logfmt"
		errutil.AssertErrorCode(t, cfg.Validate(), "CONFIG_INVALID")
	})

	t.Run("missing token secret", func(t *testing.T) {
		cfg := valid()
		cfg.Auth.TokenSecret = ""
		errutil.AssertErrorCode(t, cfg.Validate(), "CONFIG_INVALID")
	})

	t.Run("short secret rejected in production", func(t *testing.T) {
		cfg := valid()
		cfg.Environment = config.EnvProduction
		cfg.Auth.TokenSecret = "short"
		errutil.AssertErrorCode(t, cfg.Validate(), "CONFIG_INVALID")
	})

	t.Run("short secret allowed in development", func(t *testing.T) {
		cfg := valid()
		cfg.Auth.TokenSecret = "short"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("invalid token lifetime", func(t *testing.T) {
		cfg := valid()
		cfg.Auth.TokenLifetime = "soon"
		errutil.AssertErrorCode(t, cfg.Validate(), "TOKEN_LIFETIME_INVALID")
	})

	t.Run("hash cost out of range", func(t *testing.T) {
		cfg := valid()
		cfg.Auth.HashCost = auth.MaxHashCost + 1
		errutil.AssertErrorCode(t, cfg.Validate(), "CONFIG_INVALID")
	})

	t.Run("low hash cost rejected in production", func(t *testing.T) {
		cfg := valid()
		cfg.Environment = config.EnvProduction
		cfg.Auth.HashCost = auth.MinHashCost
		errutil.AssertErrorCode(t, cfg.Validate(), "CONFIG_INVALID")
	})

	t.Run("low hash cost allowed in test", func(t *testing.T) {
		cfg := valid()
		cfg.Environment = config.EnvTest
		cfg.Auth.HashCost = auth.MinHashCost
		assert.NoError(t, cfg.Validate())
	})

	t.Run("negative rate limit override", func(t *testing.T) {
		cfg := valid()
		cfg.RateLimit.API.MaxRequests = -1
		errutil.AssertErrorCode(t, cfg.Validate(), "CONFIG_INVALID")
	})
}

func TestProduction(t *testing.T) {
	cfg := config.Default()
	assert.False(t, cfg.Production())

	cfg.Environment = config.EnvProduction
	assert.True(t, cfg.Production())
}
