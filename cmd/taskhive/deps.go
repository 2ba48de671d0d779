// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskHive Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"github.com/taskhive/taskhive/internal/auth"
	"github.com/taskhive/taskhive/internal/config"
	"github.com/taskhive/taskhive/internal/httpapi"
	"github.com/taskhive/taskhive/internal/observability"
	"github.com/taskhive/taskhive/internal/users"
	userpg "github.com/taskhive/taskhive/internal/users/postgres"
)

// APIServerFactory creates the API server from its wired dependencies.
type APIServerFactory func(cfg config.Config, svc *auth.Service, repo users.Repository, limiters httpapi.Limiters, logger *slog.Logger, metrics *observability.Metrics) (APIServer, error)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// ConfigLoader loads the service configuration.
	// Default: config.Load
	ConfigLoader func(path string, flags *pflag.FlagSet) (config.Config, error)

	// PoolFactory connects to the database.
	// Default: store.Connect
	PoolFactory func(ctx context.Context, databaseURL string) (Pool, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// APIServerFactory creates the API server. Default: newAPIServer.
	APIServerFactory APIServerFactory
}

// Pool wraps the methods used from pgxpool.Pool.
type Pool interface {
	userpg.Querier
	Ping(ctx context.Context) error
	Close()
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Registry() prometheus.Registerer
	Metrics() *observability.Metrics
}

// APIServer wraps the methods used from httpapi.Server.
type APIServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}
