// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskHive Contributors

package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"

	"github.com/taskhive/taskhive/internal/apperrors"
	"github.com/taskhive/taskhive/internal/users"
)

// Token configuration constraints.
const (
	// MinSecretLength is the minimum signing-secret length accepted in
	// production configurations.
	MinSecretLength = 32

	// DefaultTokenLifetime is used when no lifetime is configured.
	DefaultTokenLifetime = "24h"
)

// Claims are the identity claims carried by an issued token.
type Claims struct {
	jwt.RegisteredClaims
	UserID string     `json:"user_id"`
	Email  string     `json:"email"`
	Role   users.Role `json:"role"`
}

// TokenConfig configures a TokenService.
type TokenConfig struct {
	// Secret is the server-held HMAC signing secret.
	Secret string

	// Lifetime is a duration string in <integer><unit> form,
	// unit one of s, m, h, d, w. Empty means DefaultTokenLifetime.
	Lifetime string

	// Production enables the startup secret policy: the secret must be set
	// and at least MinSecretLength characters.
	Production bool
}

// TokenService issues and verifies signed, time-bound identity tokens.
// It is immutable after construction and safe for concurrent use.
type TokenService struct {
	secret   []byte
	lifetime time.Duration
	now      func() time.Time
}

// TokenOption customizes a TokenService.
type TokenOption func(*TokenService)

// WithClock overrides the time source, for deterministic expiry tests.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) {
		s.now = now
	}
}

// NewTokenService creates a TokenService. Secret policy violations fail here,
// at construction, never per-request.
func NewTokenService(cfg TokenConfig, opts ...TokenOption) (*TokenService, error) {
	if cfg.Secret == "" {
		return nil, oops.Code("TOKEN_SECRET_MISSING").Errorf("token signing secret is required")
	}
	if cfg.Production && len(cfg.Secret) < MinSecretLength {
		return nil, oops.Code("TOKEN_SECRET_TOO_SHORT").
			With("min_length", MinSecretLength).
			Errorf("token signing secret must be at least %d characters in production", MinSecretLength)
	}

	lifetime := cfg.Lifetime
	if lifetime == "" {
		lifetime = DefaultTokenLifetime
	}
	d, err := ParseLifetime(lifetime)
	if err != nil {
		return nil, err
	}

	s := &TokenService{
		secret:   []byte(cfg.Secret),
		lifetime: d,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Lifetime returns the configured token lifetime.
func (s *TokenService) Lifetime() time.Duration {
	return s.lifetime
}

// Issue signs a token carrying the user's identity claims. Expiry is
// issued-at plus the configured lifetime.
func (s *TokenService) Issue(user *users.User) (string, error) {
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.lifetime)),
		},
		UserID: user.ID.String(),
		Email:  user.Email,
		Role:   user.Role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", apperrors.BusinessLogic("token signing failed", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of a token and returns its claims
// unchanged. There is no implicit renewal.
func (s *TokenService) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, apperrors.Token("Token is required")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return s.secret, nil
		},
		jwt.WithTimeFunc(s.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.Token("Token has expired")
		}
		return nil, apperrors.Token("Invalid token")
	}
	if !token.Valid {
		return nil, apperrors.Token("Invalid token")
	}
	return claims, nil
}

// ParseLifetime parses a lifetime string in <integer><unit> form, where the
// unit is one of s (seconds), m (minutes), h (hours), d (days), w (weeks).
func ParseLifetime(value string) (time.Duration, error) {
	if len(value) < 2 {
		return 0, oops.Code("TOKEN_LIFETIME_INVALID").
			With("value", value).
			Errorf("invalid token lifetime %q", value)
	}

	n, err := strconv.Atoi(value[:len(value)-1])
	if err != nil || n <= 0 {
		return 0, oops.Code("TOKEN_LIFETIME_INVALID").
			With("value", value).
			Errorf("invalid token lifetime %q", value)
	}

	var unit time.Duration
	switch value[len(value)-1] {
	case 's':
		unit = time.Second
	case 'm':
		unit = time.Minute
	case 'h':
		unit = time.Hour
	case 'd':
		unit = 24 * time.Hour
	case 'w':
		unit = 7 * 24 * time.Hour
	default:
		return 0, oops.Code("TOKEN_LIFETIME_INVALID").
			With("value", value).
			Errorf("invalid token lifetime unit in %q", value)
	}

	return time.Duration(n) * unit, nil
}
