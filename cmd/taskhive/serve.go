// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskHive Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/taskhive/taskhive/internal/auth"
	"github.com/taskhive/taskhive/internal/config"
	"github.com/taskhive/taskhive/internal/httpapi"
	"github.com/taskhive/taskhive/internal/logging"
	"github.com/taskhive/taskhive/internal/observability"
	"github.com/taskhive/taskhive/internal/ratelimit"
	"github.com/taskhive/taskhive/internal/store"
	"github.com/taskhive/taskhive/internal/users"
	userpg "github.com/taskhive/taskhive/internal/users/postgres"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the authentication API server",
		Long: `Start the HTTP server exposing the authentication endpoints,
with rate limiting and an observability sidecar listener.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, nil)
		},
	}

	// Flag names mirror the config keys so posflag can overlay them.
	cmd.Flags().String("server.addr", "", "API listen address")
	cmd.Flags().String("server.metrics_addr", "", "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("log.format", "", "log format (json or text)")
	cmd.Flags().String("database_url", "", "PostgreSQL connection URL")

	return cmd
}

// runServeWithDeps starts the service with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}

	if deps.ConfigLoader == nil {
		deps.ConfigLoader = config.Load
	}
	if deps.PoolFactory == nil {
		deps.PoolFactory = func(ctx context.Context, databaseURL string) (Pool, error) {
			return store.Connect(ctx, databaseURL)
		}
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
	if deps.APIServerFactory == nil {
		deps.APIServerFactory = newAPIServer
	}

	flags := flagsChanged(cmd.Flags())
	cfg, err := deps.ConfigLoader(configFile, flags)
	if err != nil {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}

	logging.SetDefault("taskhive", cmd.Root().Version, cfg.Log.Format)
	logger := slog.Default()

	logger.Info("starting taskhive",
		"environment", cfg.Environment,
		"addr", cfg.Server.Addr,
	)

	if cfg.DatabaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database_url is required")
	}

	pool, err := deps.PoolFactory(ctx, cfg.DatabaseURL)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").Wrap(err)
	}
	defer pool.Close()

	logger.Info("connected to database")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Start observability server first so its registry is available to the
	// hash pool and limiters.
	var obsServer ObservabilityServer
	var registry prometheus.Registerer
	var metrics *observability.Metrics
	if cfg.Server.MetricsAddr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Server.MetricsAddr, func() bool {
			pingCtx, pingCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer pingCancel()
			return pool.Ping(pingCtx) == nil
		})
		obsErrChan, startErr := obsServer.Start()
		if startErr != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").Wrap(startErr)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		registry = obsServer.Registry()
		metrics = obsServer.Metrics()
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	repo := userpg.NewUserRepository(pool)

	hasher := auth.NewBcryptHasher(cfg.Auth.HashCost)
	var hashPool *auth.HashPool
	if registry != nil {
		hashPool = auth.NewHashPoolWithRegistry(hasher, cfg.Auth.HashWorkers, registry)
	} else {
		hashPool = auth.NewHashPool(hasher, cfg.Auth.HashWorkers)
	}
	defer hashPool.Close()

	tokens, err := auth.NewTokenService(auth.TokenConfig{
		Secret:     cfg.Auth.TokenSecret,
		Lifetime:   cfg.Auth.TokenLifetime,
		Production: cfg.Production(),
	})
	if err != nil {
		return err
	}

	svc, err := auth.NewService(repo, hashPool, tokens, logger)
	if err != nil {
		return err
	}

	limiters := buildLimiters(cfg.RateLimit, registry)
	defer limiters.Auth.Close()
	defer limiters.API.Close()

	apiServer, err := deps.APIServerFactory(cfg, svc, repo, limiters, logger, metrics)
	if err != nil {
		return err
	}
	apiErrChan, err := apiServer.Start()
	if err != nil {
		return oops.Code("API_START_FAILED").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, apiErrChan, "api")

	cmd.Println("TaskHive started")
	logger.Info("taskhive ready", "addr", apiServer.Addr())

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		logger.Warn("error stopping api server", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

// newAPIServer is the default APIServerFactory.
func newAPIServer(cfg config.Config, svc *auth.Service, repo users.Repository, limiters httpapi.Limiters, logger *slog.Logger, metrics *observability.Metrics) (APIServer, error) {
	opts := []httpapi.Option{
		httpapi.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
	}
	if metrics != nil {
		opts = append(opts, httpapi.WithMetrics(metrics))
	}
	srv, err := httpapi.NewServer(cfg.Server.Addr, svc, repo, limiters, logger, opts...)
	if err != nil {
		return nil, err
	}
	return srv, nil
}

// buildLimiters creates the auth and api limiters from their presets with
// any configured overrides applied.
func buildLimiters(cfg config.RateLimitConfig, registry prometheus.Registerer) httpapi.Limiters {
	authCfg := applyOverride(ratelimit.AuthPreset(), cfg.Auth)
	apiCfg := applyOverride(ratelimit.APIPreset(), cfg.API)

	authOpts := limiterOptions(cfg.SweepInterval, registry, "auth")
	apiOpts := limiterOptions(cfg.SweepInterval, registry, "api")

	return httpapi.Limiters{
		Auth: ratelimit.NewLimiter(authCfg, authOpts...),
		API:  ratelimit.NewLimiter(apiCfg, apiOpts...),
	}
}

func applyOverride(preset ratelimit.Config, override config.LimitOverride) ratelimit.Config {
	if override.Window > 0 {
		preset.Window = override.Window
	}
	if override.MaxRequests > 0 {
		preset.MaxRequests = override.MaxRequests
	}
	return preset
}

func limiterOptions(sweep time.Duration, registry prometheus.Registerer, label string) []ratelimit.Option {
	var opts []ratelimit.Option
	if sweep > 0 {
		opts = append(opts, ratelimit.WithSweepInterval(sweep))
	}
	if registry != nil {
		opts = append(opts, ratelimit.WithRegistry(registry, label))
	}
	return opts
}

// flagsChanged returns only the flags the user set, so unset flags do not
// mask config file or environment values with empty strings.
func flagsChanged(flags *pflag.FlagSet) *pflag.FlagSet {
	changed := pflag.NewFlagSet("changed", pflag.ContinueOnError)
	flags.Visit(func(f *pflag.Flag) {
		changed.AddFlag(f)
	})
	return changed
}

// monitorServerErrors monitors a server's error channel and cancels the
// context on error so one failing listener shuts down the whole process.
// It exits when an error arrives, the channel closes, or ctx is cancelled.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			// Channel closed, server stopped gracefully
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
		// Context cancelled, exit monitoring
	}
}
