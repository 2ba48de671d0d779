// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskHive Contributors

//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
)

// apiResponse mirrors the JSON envelope every endpoint wraps its payload in.
type apiResponse struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data"`
	Error   *apiError      `json:"error"`
}

type apiError struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details"`
}

// doJSON sends a JSON request with the given client IP and decodes the
// envelope. Distinct client IPs keep rate limit state isolated per spec.
func doJSON(method, path, clientIP, token string, body any) (*http.Response, apiResponse) {
	var buf bytes.Buffer
	if body != nil {
		Expect(json.NewEncoder(&buf).Encode(body)).To(Succeed())
	}

	req, err := http.NewRequest(method, env.BaseURL+path, &buf)
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Real-IP", clientIP)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()

	var envelope apiResponse
	Expect(json.NewDecoder(resp.Body).Decode(&envelope)).To(Succeed())
	return resp, envelope
}

func registerBody(email string) map[string]string {
	return map[string]string{
		"email":    email,
		"name":     "Flow User",
		"password": "Str0ng!Pass",
		"role":     "developer",
	}
}

var _ = Describe("Authentication Flow", func() {
	BeforeEach(func() {
		cleanupUsers(context.Background(), env.pool)
	})

	Describe("Registration", func() {
		It("creates an account and returns the sanitized user", func() {
			resp, envelope := doJSON(http.MethodPost, "/api/auth/register", "10.1.0.1", "", registerBody("new@example.com"))

			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			Expect(envelope.Success).To(BeTrue())
			Expect(envelope.Data["email"]).To(Equal("new@example.com"))
			Expect(envelope.Data["name"]).To(Equal("Flow User"))
			Expect(envelope.Data["role"]).To(Equal("developer"))
			Expect(envelope.Data["id"]).NotTo(BeEmpty())
			Expect(envelope.Data).NotTo(HaveKey("password"))
			Expect(envelope.Data).NotTo(HaveKey("password_hash"))
		})

		It("rejects a duplicate email with a conflict", func() {
			resp, _ := doJSON(http.MethodPost, "/api/auth/register", "10.1.0.2", "", registerBody("taken@example.com"))
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			resp, envelope := doJSON(http.MethodPost, "/api/auth/register", "10.1.0.2", "", registerBody("taken@example.com"))
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))
			Expect(envelope.Success).To(BeFalse())
			Expect(envelope.Error.Code).To(Equal("CONFLICT"))
		})

		It("rejects a weak password with per-rule violations", func() {
			body := registerBody("weak@example.com")
			body["password"] = "short"

			resp, envelope := doJSON(http.MethodPost, "/api/auth/register", "10.1.0.3", "", body)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(envelope.Error.Code).To(Equal("VALIDATION_ERROR"))
			Expect(envelope.Error.Details).To(ContainElement("Password must be at least 8 characters long"))
		})
	})

	Describe("Login and token use", func() {
		It("issues a token that authenticates /api/auth/me", func() {
			_, _ = doJSON(http.MethodPost, "/api/auth/register", "10.2.0.1", "", registerBody("login@example.com"))

			resp, envelope := doJSON(http.MethodPost, "/api/auth/login", "10.2.0.1", "", map[string]string{
				"email":    "login@example.com",
				"password": "Str0ng!Pass",
			})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(envelope.Success).To(BeTrue())
			token, _ := envelope.Data["token"].(string)
			Expect(token).NotTo(BeEmpty())

			resp, envelope = doJSON(http.MethodGet, "/api/auth/me", "10.2.0.1", token, nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(envelope.Data["email"]).To(Equal("login@example.com"))
		})

		It("returns the same failure for a wrong password and an unknown email", func() {
			_, _ = doJSON(http.MethodPost, "/api/auth/register", "10.2.0.2", "", registerBody("victim@example.com"))

			resp, wrongPass := doJSON(http.MethodPost, "/api/auth/login", "10.2.0.2", "", map[string]string{
				"email":    "victim@example.com",
				"password": "Wr0ng!Pass1",
			})
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))

			resp, unknown := doJSON(http.MethodPost, "/api/auth/login", "10.2.0.2", "", map[string]string{
				"email":    "ghost@example.com",
				"password": "Wr0ng!Pass1",
			})
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))

			Expect(wrongPass.Error.Code).To(Equal(unknown.Error.Code))
			Expect(wrongPass.Error.Message).To(Equal(unknown.Error.Message))
		})

		It("rejects /api/auth/me without a token", func() {
			resp, envelope := doJSON(http.MethodGet, "/api/auth/me", "10.2.0.3", "", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(envelope.Error.Code).To(Equal("TOKEN_ERROR"))
		})
	})

	Describe("Rate limiting", func() {
		It("throttles credential endpoints after the window fills", func() {
			const clientIP = "10.3.0.1"
			body := map[string]string{"email": "ghost@example.com", "password": "Wr0ng!Pass1"}

			for i := range 5 {
				resp, _ := doJSON(http.MethodPost, "/api/auth/login", clientIP, "", body)
				Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized), fmt.Sprintf("attempt %d", i+1))
				Expect(resp.Header.Get("X-RateLimit-Limit")).To(Equal("5"))
			}

			resp, envelope := doJSON(http.MethodPost, "/api/auth/login", clientIP, "", body)
			Expect(resp.StatusCode).To(Equal(http.StatusTooManyRequests))
			Expect(envelope.Error.Code).To(Equal("RATE_LIMIT_EXCEEDED"))
			Expect(resp.Header.Get("Retry-After")).NotTo(BeEmpty())
			Expect(resp.Header.Get("X-RateLimit-Remaining")).To(Equal("0"))
		})

		It("does not throttle a different client", func() {
			body := map[string]string{"email": "ghost@example.com", "password": "Wr0ng!Pass1"}
			for range 5 {
				_, _ = doJSON(http.MethodPost, "/api/auth/login", "10.3.0.2", "", body)
			}

			resp, _ := doJSON(http.MethodPost, "/api/auth/login", "10.3.0.3", "", body)
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})
	})
})
