// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskHive Contributors

package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/oklog/ulid/v2"

	"github.com/taskhive/taskhive/internal/apperrors"
	"github.com/taskhive/taskhive/internal/auth"
	"github.com/taskhive/taskhive/internal/users"
)

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginPayload struct {
	User  userPayload `json:"user"`
	Token string      `json:"token"`
}

// handleRegister serves POST /api/auth/register.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, s.logger, apperrors.Validation("Request body must be valid JSON"))
		return
	}

	user, err := s.auth.Register(r.Context(), auth.RegisterInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
		Role:     users.Role(req.Role),
	})
	if err != nil {
		s.recordAuthAttempt("register", "failure")
		writeError(w, s.logger, err)
		return
	}

	s.recordAuthAttempt("register", "success")
	writeData(w, http.StatusCreated, toUserPayload(user))
}

// handleLogin serves POST /api/auth/login.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, s.logger, apperrors.Validation("Request body must be valid JSON"))
		return
	}

	result, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.recordAuthAttempt("login", "failure")
		writeError(w, s.logger, err)
		return
	}

	s.recordAuthAttempt("login", "success")
	writeData(w, http.StatusOK, loginPayload{
		User:  toUserPayload(result.User),
		Token: result.Token,
	})
}

// handleMe serves GET /api/auth/me for an authenticated caller.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, s.logger, apperrors.Token("Invalid token"))
		return
	}

	id, err := ulid.Parse(claims.UserID)
	if err != nil {
		writeError(w, s.logger, apperrors.Token("Invalid token"))
		return
	}

	user, err := s.users.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, s.logger, apperrors.Unauthorized("Account no longer exists"))
		return
	}

	writeData(w, http.StatusOK, toUserPayload(user))
}

func (s *Server) recordAuthAttempt(operation, outcome string) {
	if s.metrics != nil {
		s.metrics.AuthAttempts.WithLabelValues(operation, outcome).Inc()
	}
}
