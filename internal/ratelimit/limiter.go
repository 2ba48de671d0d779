// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskHive Contributors

// Package ratelimit provides fixed-window request throttling keyed by client
// identity, with HTTP middleware for protected routes.
package ratelimit

import (
	"math"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Default limiter values.
const (
	// DefaultSweepInterval is the interval at which the background goroutine
	// removes records whose window has expired.
	DefaultSweepInterval = 60 * time.Second

	// DefaultMessage is used when a Config carries no message.
	DefaultMessage = "Too many requests, please try again later"
)

// Config configures a limiter for one protected surface.
type Config struct {
	// Window is the fixed counting window.
	Window time.Duration

	// MaxRequests is the number of requests allowed per window.
	MaxRequests int

	// Message is the caller-facing rejection message.
	Message string

	// SkipSuccessful refunds the counter after responses with status < 400,
	// so only failed attempts count against the quota.
	SkipSuccessful bool

	// SkipFailed refunds the counter after responses with status >= 400.
	SkipFailed bool
}

// Named presets matching the service's protected surfaces.

// AuthPreset throttles credential endpoints: 5 requests per 15 minutes.
func AuthPreset() Config {
	return Config{
		Window:      15 * time.Minute,
		MaxRequests: 5,
		Message:     "Too many authentication attempts, please try again later",
	}
}

// APIPreset is the general API limit: 100 requests per 15 minutes.
func APIPreset() Config {
	return Config{
		Window:      15 * time.Minute,
		MaxRequests: 100,
		Message:     DefaultMessage,
	}
}

// ReadPreset throttles read endpoints: 60 requests per minute.
func ReadPreset() Config {
	return Config{
		Window:      time.Minute,
		MaxRequests: 60,
		Message:     DefaultMessage,
	}
}

// WritePreset throttles write endpoints: 20 requests per minute.
func WritePreset() Config {
	return Config{
		Window:      time.Minute,
		MaxRequests: 20,
		Message:     DefaultMessage,
	}
}

// record tracks one client's count within the current window.
type record struct {
	count   int
	resetAt time.Time
}

// Decision is the outcome of a limiter check.
type Decision struct {
	// Allowed is false when the request must be rejected.
	Allowed bool

	// Limit is the configured per-window maximum.
	Limit int

	// Remaining is the number of requests left in the window (0 on reject).
	Remaining int

	// ResetAt is when the current window ends.
	ResetAt time.Time

	// RetryAfter is the whole seconds until the window resets, rounded up.
	// Only meaningful on reject.
	RetryAfter int
}

// Limiter implements fixed-window counting per client identity. It is safe
// for concurrent use: the read-check-increment and the refund are atomic per
// key under one lock, so two racing requests never both pass a last slot.
//
// The Limiter owns a background sweep goroutine. Call Close() to stop it.
type Limiter struct {
	mu      sync.Mutex
	records map[string]*record
	cfg     Config
	now     func() time.Time

	stopChan chan struct{}
	wg       sync.WaitGroup

	// Gauge of tracked client records (nil if no registry provided).
	clientGauge prometheus.Gauge
}

// Option customizes a Limiter.
type Option func(*limiterOptions)

type limiterOptions struct {
	now           func() time.Time
	sweepInterval time.Duration
	registry      prometheus.Registerer
	registryLabel string
}

// WithClock overrides the time source, for deterministic window tests.
func WithClock(now func() time.Time) Option {
	return func(o *limiterOptions) {
		o.now = now
	}
}

// WithSweepInterval overrides the background sweep interval.
func WithSweepInterval(interval time.Duration) Option {
	return func(o *limiterOptions) {
		o.sweepInterval = interval
	}
}

// WithRegistry registers a tracked-clients gauge with the given registry.
// The label distinguishes limiters sharing one registry.
func WithRegistry(reg prometheus.Registerer, label string) Option {
	return func(o *limiterOptions) {
		o.registry = reg
		o.registryLabel = label
	}
}

// NewLimiter creates a limiter for the given config and starts its sweep
// goroutine. Call Close() to stop it.
func NewLimiter(cfg Config, opts ...Option) *Limiter {
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = 1
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Message == "" {
		cfg.Message = DefaultMessage
	}

	o := &limiterOptions{
		now:           time.Now,
		sweepInterval: DefaultSweepInterval,
	}
	for _, opt := range opts {
		opt(o)
	}

	l := &Limiter{
		records:  make(map[string]*record),
		cfg:      cfg,
		now:      o.now,
		stopChan: make(chan struct{}),
	}

	if o.registry != nil {
		l.clientGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "taskhive_ratelimit_tracked_clients",
			Help:        "Current number of tracked rate limit client records",
			ConstLabels: prometheus.Labels{"limiter": o.registryLabel},
		})
		o.registry.MustRegister(l.clientGauge)
	}

	l.wg.Add(1)
	go l.sweepLoop(o.sweepInterval)

	return l
}

// Config returns the limiter's configuration.
func (l *Limiter) Config() Config {
	return l.cfg
}

// Check evaluates and counts one request for the given client identity.
func (l *Limiter) Check(key string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	rec, exists := l.records[key]
	if !exists || !now.Before(rec.resetAt) {
		// No record, or the window expired: start a fresh window.
		rec = &record{count: 0, resetAt: now.Add(l.cfg.Window)}
		l.records[key] = rec
	}

	if rec.count >= l.cfg.MaxRequests {
		return Decision{
			Allowed:    false,
			Limit:      l.cfg.MaxRequests,
			Remaining:  0,
			ResetAt:    rec.resetAt,
			RetryAfter: retryAfterSeconds(rec.resetAt, now),
		}
	}

	rec.count++
	return Decision{
		Allowed:   true,
		Limit:     l.cfg.MaxRequests,
		Remaining: l.cfg.MaxRequests - rec.count,
		ResetAt:   rec.resetAt,
	}
}

// Refund decrements the client's counter, floored at zero. Used by the
// skip-successful and skip-failed response adjustments. A refund after the
// window rolled over is dropped rather than applied to the fresh window.
func (l *Limiter) Refund(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, exists := l.records[key]
	if !exists || !l.now().Before(rec.resetAt) {
		return
	}
	if rec.count > 0 {
		rec.count--
	}
}

// ClientCount returns the number of tracked records. Useful for tests and
// monitoring.
func (l *Limiter) ClientCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Sweep removes records whose window has already expired. Called by the
// background goroutine, but can be invoked directly when immediate cleanup
// is wanted.
func (l *Limiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, rec := range l.records {
		if !now.Before(rec.resetAt) {
			delete(l.records, key)
		}
	}

	if l.clientGauge != nil {
		l.clientGauge.Set(float64(len(l.records)))
	}
}

func (l *Limiter) sweepLoop(interval time.Duration) {
	defer l.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopChan:
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

// Close stops the sweep goroutine and blocks until it has exited.
func (l *Limiter) Close() {
	close(l.stopChan)
	l.wg.Wait()
}

func retryAfterSeconds(resetAt, now time.Time) int {
	secs := int(math.Ceil(resetAt.Sub(now).Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}
