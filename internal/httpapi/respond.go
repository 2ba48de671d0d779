// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskHive Contributors

// Package httpapi exposes the authentication core over HTTP.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/taskhive/taskhive/internal/apperrors"
	"github.com/taskhive/taskhive/internal/users"
)

// envelope is the JSON shape of every response body.
type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

// userPayload is the boundary shape of a user record. The password hash
// never crosses this boundary.
type userPayload struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toUserPayload(u *users.User) userPayload {
	return userPayload{
		ID:        u.ID.String(),
		Email:     u.Email,
		Name:      u.Name,
		Role:      string(u.Role),
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// writeData writes a success envelope.
func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data}) //nolint:errcheck // response already committed
}

// writeError maps a taxonomy error to its status and envelope. Internal
// causes are logged, never echoed to the caller.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	code := apperrors.CodeOf(err)
	if code == apperrors.CodeBusinessLogic {
		logger.Error("request failed", "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apperrors.HTTPStatus(code))
	_ = json.NewEncoder(w).Encode(envelope{ //nolint:errcheck // response already committed
		Success: false,
		Error: &errorBody{
			Code:    code,
			Message: apperrors.Message(err),
			Details: apperrors.Details(err),
		},
	})
}
