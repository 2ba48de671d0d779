// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskHive Contributors

package httpapi_test

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/taskhive/taskhive/internal/auth"
	"github.com/taskhive/taskhive/internal/auth/mocks"
	"github.com/taskhive/taskhive/internal/httpapi"
	"github.com/taskhive/taskhive/internal/ratelimit"
	"github.com/taskhive/taskhive/internal/users"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type testAPI struct {
	handler http.Handler
	repo    *mocks.MockUserRepository
	creds   *mocks.MockCredentials
	svc     *auth.Service
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	repo := mocks.NewMockUserRepository(t)
	creds := mocks.NewMockCredentials(t)

	tokens, err := auth.NewTokenService(auth.TokenConfig{Secret: testSecret})
	require.NoError(t, err)

	logger := slog.New(slog.DiscardHandler)

	svc, err := auth.NewService(repo, creds, tokens, logger)
	require.NoError(t, err)

	limiters := httpapi.Limiters{
		Auth: ratelimit.NewLimiter(ratelimit.AuthPreset()),
		API:  ratelimit.NewLimiter(ratelimit.APIPreset()),
	}
	t.Cleanup(limiters.Auth.Close)
	t.Cleanup(limiters.API.Close)

	srv, err := httpapi.NewServer("127.0.0.1:0", svc, repo, limiters, logger)
	require.NoError(t, err)

	return &testAPI{
		handler: srv.Handler(),
		repo:    repo,
		creds:   creds,
		svc:     svc,
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string   `json:"code"`
		Message string   `json:"message"`
		Details []string `json:"details"`
	} `json:"error"`
}

func (a *testAPI) do(t *testing.T, method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}

	r := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		r.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, r)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), "body: %s", w.Body.String())
	}
	return w, env
}

func TestHandleRegister(t *testing.T) {
	t.Run("creates a user", func(t *testing.T) {
		api := newTestAPI(t)

		api.repo.On("FindByEmail", mock.Anything, "dev@example.com").
			Return(nil, users.ErrNotFound).Once()
		api.creds.On("Hash", mock.Anything, "Str0ng!pass").
			Return("hashed", nil).Once()
		api.repo.On("Create", mock.Anything, mock.Anything).Return(nil).Once()

		w, env := api.do(t, http.MethodPost, "/api/auth/register",
			`{"email":"dev@example.com","name":"Dev","password":"Str0ng!pass","role":"developer"}`, nil)

		require.Equal(t, http.StatusCreated, w.Code, "body: %s", w.Body.String())
		assert.True(t, env.Success)

		var payload map[string]any
		require.NoError(t, json.Unmarshal(env.Data, &payload))
		assert.Equal(t, "dev@example.com", payload["email"])
		assert.Equal(t, "developer", payload["role"])
		assert.NotContains(t, w.Body.String(), "hashed", "password hash must not leak")
		assert.NotContains(t, payload, "password_hash")
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		api := newTestAPI(t)

		w, env := api.do(t, http.MethodPost, "/api/auth/register", `{not json`, nil)

		require.Equal(t, http.StatusBadRequest, w.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
		assert.Equal(t, "Request body must be valid JSON", env.Error.Message)
	})

	t.Run("weak password returns details", func(t *testing.T) {
		api := newTestAPI(t)

		api.repo.On("FindByEmail", mock.Anything, "dev@example.com").
			Return(nil, users.ErrNotFound).Once()

		w, env := api.do(t, http.MethodPost, "/api/auth/register",
			`{"email":"dev@example.com","name":"Dev","password":"weak","role":"developer"}`, nil)

		require.Equal(t, http.StatusBadRequest, w.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, "Password does not meet requirements", env.Error.Message)
		assert.NotEmpty(t, env.Error.Details)
	})

	t.Run("duplicate email conflicts", func(t *testing.T) {
		api := newTestAPI(t)

		existing := users.New("dev@example.com", "Existing", "hash", users.RoleAdmin)
		api.repo.On("FindByEmail", mock.Anything, "dev@example.com").
			Return(existing, nil).Once()

		w, env := api.do(t, http.MethodPost, "/api/auth/register",
			`{"email":"dev@example.com","name":"Dev","password":"Str0ng!pass","role":"developer"}`, nil)

		require.Equal(t, http.StatusConflict, w.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, "CONFLICT", env.Error.Code)
	})
}

func TestHandleLogin(t *testing.T) {
	t.Run("returns user and token", func(t *testing.T) {
		api := newTestAPI(t)

		user := users.New("dev@example.com", "Dev", "stored-hash", users.RoleDeveloper)
		api.repo.On("FindByEmail", mock.Anything, "dev@example.com").
			Return(user, nil).Once()
		api.creds.On("Verify", mock.Anything, "Str0ng!pass", "stored-hash").
			Return(true, nil).Once()

		w, env := api.do(t, http.MethodPost, "/api/auth/login",
			`{"email":"dev@example.com","password":"Str0ng!pass"}`, nil)

		require.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())

		var payload struct {
			User  map[string]any `json:"user"`
			Token string         `json:"token"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &payload))
		assert.Equal(t, "dev@example.com", payload.User["email"])
		assert.NotEmpty(t, payload.Token)

		claims, err := api.svc.VerifyToken(payload.Token)
		require.NoError(t, err)
		assert.Equal(t, user.ID.String(), claims.UserID)
	})

	t.Run("wrong password is unauthorized", func(t *testing.T) {
		api := newTestAPI(t)

		user := users.New("dev@example.com", "Dev", "stored-hash", users.RoleDeveloper)
		api.repo.On("FindByEmail", mock.Anything, "dev@example.com").
			Return(user, nil).Once()
		api.creds.On("Verify", mock.Anything, "wrong", "stored-hash").
			Return(false, nil).Once()

		w, env := api.do(t, http.MethodPost, "/api/auth/login",
			`{"email":"dev@example.com","password":"wrong"}`, nil)

		require.Equal(t, http.StatusUnauthorized, w.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, "UNAUTHORIZED", env.Error.Code)
		assert.Equal(t, auth.LoginFailedMessage, env.Error.Message)
	})
}

func TestHandleMe(t *testing.T) {
	issueToken := func(t *testing.T, api *testAPI, user *users.User) string {
		t.Helper()
		token, err := api.svc.GenerateToken(user)
		require.NoError(t, err)
		return token
	}

	t.Run("returns the authenticated user", func(t *testing.T) {
		api := newTestAPI(t)

		user := users.New("dev@example.com", "Dev", "hash", users.RoleDeveloper)
		token := issueToken(t, api, user)

		api.repo.On("FindByID", mock.Anything, user.ID).Return(user, nil).Once()

		w, env := api.do(t, http.MethodGet, "/api/auth/me", "",
			map[string]string{"Authorization": "Bearer " + token})

		require.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())

		var payload map[string]any
		require.NoError(t, json.Unmarshal(env.Data, &payload))
		assert.Equal(t, "dev@example.com", payload["email"])
	})

	t.Run("missing authorization header", func(t *testing.T) {
		api := newTestAPI(t)

		w, env := api.do(t, http.MethodGet, "/api/auth/me", "", nil)

		require.Equal(t, http.StatusUnauthorized, w.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, "TOKEN_ERROR", env.Error.Code)
	})

	t.Run("malformed bearer token", func(t *testing.T) {
		api := newTestAPI(t)

		w, env := api.do(t, http.MethodGet, "/api/auth/me", "",
			map[string]string{"Authorization": "Bearer nope"})

		require.Equal(t, http.StatusUnauthorized, w.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, "TOKEN_ERROR", env.Error.Code)
		assert.Equal(t, "Invalid token", env.Error.Message)
	})

	t.Run("valid token for a deleted account", func(t *testing.T) {
		api := newTestAPI(t)

		user := users.New("gone@example.com", "Gone", "hash", users.RoleDeveloper)
		token := issueToken(t, api, user)

		api.repo.On("FindByID", mock.Anything, user.ID).
			Return(nil, users.ErrNotFound).Once()

		w, env := api.do(t, http.MethodGet, "/api/auth/me", "",
			map[string]string{"Authorization": "Bearer " + token})

		require.Equal(t, http.StatusUnauthorized, w.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, "UNAUTHORIZED", env.Error.Code)
		assert.Equal(t, "Account no longer exists", env.Error.Message)
	})
}

func TestAuthEndpointsAreThrottled(t *testing.T) {
	repo := mocks.NewMockUserRepository(t)
	creds := mocks.NewMockCredentials(t)

	tokens, err := auth.NewTokenService(auth.TokenConfig{Secret: testSecret})
	require.NoError(t, err)

	logger := slog.New(slog.DiscardHandler)
	svc, err := auth.NewService(repo, creds, tokens, logger)
	require.NoError(t, err)

	// One-request budget so the second hit is rejected.
	limiters := httpapi.Limiters{
		Auth: ratelimit.NewLimiter(ratelimit.Config{Window: time.Minute, MaxRequests: 1}),
		API:  ratelimit.NewLimiter(ratelimit.APIPreset()),
	}
	t.Cleanup(limiters.Auth.Close)
	t.Cleanup(limiters.API.Close)

	srv, err := httpapi.NewServer("127.0.0.1:0", svc, repo, limiters, logger)
	require.NoError(t, err)
	handler := srv.Handler()

	send := func() *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{not json`))
		r.Header.Set("X-Real-IP", "203.0.113.7")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w
	}

	first := send()
	require.Equal(t, http.StatusBadRequest, first.Code)
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", first.Header().Get("X-RateLimit-Remaining"))

	second := send()
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))

	var env envelope
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &env))
	require.NotNil(t, env.Error)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", env.Error.Code)
}

func TestNewServer_RequiredDependencies(t *testing.T) {
	repo := mocks.NewMockUserRepository(t)
	creds := mocks.NewMockCredentials(t)
	tokens, err := auth.NewTokenService(auth.TokenConfig{Secret: testSecret})
	require.NoError(t, err)
	svc, err := auth.NewService(repo, creds, tokens, nil)
	require.NoError(t, err)

	limiters := httpapi.Limiters{
		Auth: ratelimit.NewLimiter(ratelimit.AuthPreset()),
		API:  ratelimit.NewLimiter(ratelimit.APIPreset()),
	}
	t.Cleanup(limiters.Auth.Close)
	t.Cleanup(limiters.API.Close)

	t.Run("nil service", func(t *testing.T) {
		_, err := httpapi.NewServer(":0", nil, repo, limiters, nil)
		assert.Error(t, err)
	})

	t.Run("nil repository", func(t *testing.T) {
		_, err := httpapi.NewServer(":0", svc, nil, limiters, nil)
		assert.Error(t, err)
	})

	t.Run("missing limiter", func(t *testing.T) {
		_, err := httpapi.NewServer(":0", svc, repo, httpapi.Limiters{}, nil)
		assert.Error(t, err)
	})
}
