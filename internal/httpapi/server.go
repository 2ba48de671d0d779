// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskHive Contributors

package httpapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/samber/oops"

	"github.com/taskhive/taskhive/internal/auth"
	"github.com/taskhive/taskhive/internal/observability"
	"github.com/taskhive/taskhive/internal/ratelimit"
	"github.com/taskhive/taskhive/internal/users"
)

// Limiters holds the per-route-group rate limiters the server mounts.
type Limiters struct {
	// Auth throttles credential endpoints (register, login).
	Auth *ratelimit.Limiter

	// API throttles the remaining authenticated endpoints.
	API *ratelimit.Limiter
}

// Server serves the authentication API.
type Server struct {
	addr       string
	auth       *auth.Service
	users      users.Repository
	limiters   Limiters
	metrics    *observability.Metrics
	logger     *slog.Logger
	listener   net.Listener
	httpServer *http.Server

	readTimeout  time.Duration
	writeTimeout time.Duration

	running atomic.Bool
}

// Option configures optional server behavior.
type Option func(*Server)

// WithMetrics attaches application metrics to the server.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithTimeouts overrides the HTTP read and write timeouts.
func WithTimeouts(read, write time.Duration) Option {
	return func(s *Server) {
		if read > 0 {
			s.readTimeout = read
		}
		if write > 0 {
			s.writeTimeout = write
		}
	}
}

// NewServer creates an API server. addr is the listen address in
// "host:port" format.
func NewServer(addr string, svc *auth.Service, repo users.Repository, limiters Limiters, logger *slog.Logger, opts ...Option) (*Server, error) {
	if svc == nil {
		return nil, oops.Errorf("auth service is required")
	}
	if repo == nil {
		return nil, oops.Errorf("user repository is required")
	}
	if limiters.Auth == nil || limiters.API == nil {
		return nil, oops.Errorf("both rate limiters are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		addr:         addr,
		auth:         svc,
		users:        repo,
		limiters:     limiters,
		logger:       logger,
		readTimeout:  10 * time.Second,
		writeTimeout: 30 * time.Second,
	}, nil
}

// Handler builds the full route tree. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	authLimit := s.limiters.Auth.Middleware(s.logger)
	apiLimit := s.limiters.API.Middleware(s.logger)

	mux.Handle("POST /api/auth/register", s.countThrottled("auth", authLimit(http.HandlerFunc(s.handleRegister))))
	mux.Handle("POST /api/auth/login", s.countThrottled("auth", authLimit(http.HandlerFunc(s.handleLogin))))
	mux.Handle("GET /api/auth/me", s.countThrottled("api", apiLimit(s.requireAuth(http.HandlerFunc(s.handleMe)))))

	return s.logRequests(mux)
}

// countThrottled feeds the throttled-request counter for a route group.
func (s *Server) countThrottled(group string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lw := &loggedWriter{ResponseWriter: w}
		next.ServeHTTP(lw, r)
		if lw.status == http.StatusTooManyRequests && s.metrics != nil {
			s.metrics.ThrottledRequests.WithLabelValues(group).Inc()
		}
	})
}

// Start begins serving the API. It returns an error channel that receives
// any serve error after startup; the channel closes when the server stops
// gracefully.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("api server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.readTimeout,
		WriteTimeout:      s.writeTimeout,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			s.logger.Error("api server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("api server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the API server, letting in-flight requests
// finish until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown_api_server").Wrap(err)
		}
	}

	s.logger.Info("api server stopped")
	return nil
}

// Addr returns the address the server is listening on, or "" if not running.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
