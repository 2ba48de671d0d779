// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskHive Contributors

package ratelimit

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/taskhive/taskhive/internal/apperrors"
)

// UnknownClient is the shared fallback identity for requests with no usable
// client address. All such clients share one counter; that imprecision is
// accepted.
const UnknownClient = "unknown"

// ClientIdentity derives the client identity for a request. Priority:
// first X-Forwarded-For entry, then X-Real-IP, then CF-Connecting-IP,
// then UnknownClient.
func ClientIdentity(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if cf := r.Header.Get("CF-Connecting-IP"); cf != "" {
		return cf
	}
	return UnknownClient
}

// statusRecorder captures the response status so the middleware can apply
// the skip-successful / skip-failed refund after the handler runs.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b) //nolint:wrapcheck // thin passthrough
}

// Middleware wraps a handler with the limiter. Rejections are normal
// control-flow outcomes: a 429 with rate-limit headers and a JSON error
// body, never a panic or process failure.
func (l *Limiter) Middleware(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ClientIdentity(r)
			d := l.Check(key)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

			if !d.Allowed {
				logger.Warn("request throttled",
					"client", key,
					"method", r.Method,
					"path", r.URL.Path,
					"retry_after_s", d.RetryAfter,
				)
				w.Header().Set("Retry-After", strconv.Itoa(d.RetryAfter))
				writeThrottled(w, l.cfg.Message)
				return
			}

			if !l.cfg.SkipSuccessful && !l.cfg.SkipFailed {
				next.ServeHTTP(w, r)
				return
			}

			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			if (l.cfg.SkipSuccessful && status < 400) || (l.cfg.SkipFailed && status >= 400) {
				l.Refund(key)
			}
		})
	}
}

func writeThrottled(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	body := map[string]any{
		"success": false,
		"error": map[string]any{
			"code":    apperrors.CodeRateLimitExceeded,
			"message": message,
		},
	}
	_ = json.NewEncoder(w).Encode(body) //nolint:errcheck // client already rejected
}
