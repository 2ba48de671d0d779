// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskHive Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/oops"

	"github.com/taskhive/taskhive/internal/apperrors"
	"github.com/taskhive/taskhive/internal/users"
)

// LoginFailedMessage is the single message for every failed login. Unknown
// email and wrong password are deliberately indistinguishable so callers
// cannot enumerate accounts. Do not "improve" the specificity.
const LoginFailedMessage = "Invalid email or password"

// dummyPasswordHash is verified against when a login targets an unknown
// email, so both failure paths pay the bcrypt cost. It is a well-formed
// bcrypt hash that never matches a real credential.
//
//nolint:gosec // G101: intentionally fake hash for timing-attack prevention, not a credential.
const dummyPasswordHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Credentials is the hashing collaborator used by the Service. It is the
// context-aware surface of the hash pool.
type Credentials interface {
	// Hash produces a password hash.
	Hash(ctx context.Context, password string) (string, error)

	// Verify reports whether the password matches the hash.
	Verify(ctx context.Context, password, hash string) (bool, error)
}

// RegisterInput is the data required to register a user.
type RegisterInput struct {
	Email    string
	Name     string
	Password string
	Role     users.Role
}

// LoginResult is the outcome of a successful login.
type LoginResult struct {
	User  *users.User
	Token string
}

// Service orchestrates registration, login, and token operations.
type Service struct {
	store  users.Repository
	creds  Credentials
	tokens *TokenService
	logger *slog.Logger
}

// NewService creates an auth Service.
func NewService(store users.Repository, creds Credentials, tokens *TokenService, logger *slog.Logger) (*Service, error) {
	if store == nil {
		return nil, oops.Errorf("user store is required")
	}
	if creds == nil {
		return nil, oops.Errorf("credentials hasher is required")
	}
	if tokens == nil {
		return nil, oops.Errorf("token service is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		creds:  creds,
		tokens: tokens,
		logger: logger,
	}, nil
}

// Register creates a new user. Checks run in fixed order and the first
// failure wins; no store write happens before every validation passes.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*users.User, error) {
	switch {
	case input.Email == "":
		return nil, apperrors.Validation("Email is required")
	case input.Name == "":
		return nil, apperrors.Validation("Name is required")
	case input.Password == "":
		return nil, apperrors.Validation("Password is required")
	case input.Role == "":
		return nil, apperrors.Validation("Role is required")
	case !input.Role.Valid():
		return nil, apperrors.Validation("Role must be one of admin, manager, developer")
	}

	email := users.NormalizeEmail(input.Email)

	_, err := s.store.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, apperrors.Conflict("User with this email already exists")
	case !errors.Is(err, users.ErrNotFound):
		s.logger.Error("email uniqueness pre-check failed", "error", err)
		return nil, apperrors.BusinessLogic("failed to check email uniqueness", err)
	}

	if report := CheckStrength(input.Password); !report.IsValid {
		return nil, apperrors.ValidationWithDetails("Password does not meet requirements", report.Errors)
	}

	hash, err := s.creds.Hash(ctx, input.Password)
	if err != nil {
		s.logger.Error("password hashing failed", "error", err)
		return nil, apperrors.BusinessLogic("failed to hash password", err)
	}

	user := users.New(email, input.Name, hash, input.Role)
	if err := s.store.Create(ctx, user); err != nil {
		// A concurrent registration can slip past the pre-check; the store's
		// unique key reports it and callers see the same conflict either way.
		if errors.Is(err, users.ErrDuplicateEmail) {
			return nil, apperrors.Conflict("User with this email already exists")
		}
		s.logger.Error("user creation failed", "error", err)
		return nil, apperrors.BusinessLogic("failed to create user", err)
	}

	return user, nil
}

// Login authenticates a user by email and password and issues a token.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if email == "" {
		return nil, apperrors.Validation("Email is required")
	}
	if password == "" {
		return nil, apperrors.Validation("Password is required")
	}

	user, err := s.store.FindByEmail(ctx, users.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			// Burn a verification against the dummy hash so the unknown-email
			// path costs the same as a wrong password.
			_, _ = s.creds.Verify(ctx, password, dummyPasswordHash) //nolint:errcheck // timing equalization only
			return nil, apperrors.Unauthorized(LoginFailedMessage)
		}
		s.logger.Error("user lookup failed", "error", err)
		return nil, apperrors.BusinessLogic("failed to look up user", err)
	}

	match, err := s.creds.Verify(ctx, password, user.PasswordHash)
	if err != nil {
		s.logger.Error("password verification failed", "error", err)
		return nil, apperrors.BusinessLogic("failed to verify password", err)
	}
	if !match {
		return nil, apperrors.Unauthorized(LoginFailedMessage)
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		s.logger.Error("token issuance failed", "error", err)
		return nil, apperrors.BusinessLogic("failed to issue token", err)
	}

	return &LoginResult{User: user, Token: token}, nil
}

// VerifyToken delegates to the token service, surfacing its error unchanged.
func (s *Service) VerifyToken(token string) (*Claims, error) {
	return s.tokens.Verify(token)
}

// GenerateToken issues a token for an already-authenticated user record.
func (s *Service) GenerateToken(user *users.User) (string, error) {
	return s.tokens.Issue(user)
}
