// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskHive Contributors

// Package auth provides the authentication core: credential hashing and
// strength policy, signed identity tokens, and the registration/login service.
package auth

import (
	"crypto/sha256"
	"encoding/base64"

	"golang.org/x/crypto/bcrypt"

	"github.com/taskhive/taskhive/internal/apperrors"
)

// Bcrypt cost bounds. DefaultHashCost is the production setting; MinHashCost
// is only acceptable in test configurations where hash latency matters more
// than attack resistance.
const (
	DefaultHashCost = bcrypt.DefaultCost
	MinHashCost     = bcrypt.MinCost
	MaxHashCost     = bcrypt.MaxCost
)

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces a salted, cost-embedding hash of the password.
	Hash(password string) (string, error)

	// Verify reports whether the password matches the hash. It never fails:
	// empty or malformed input yields false.
	Verify(password, hash string) bool
}

// BcryptHasher implements PasswordHasher using bcrypt. Each call salts
// independently, so hashing the same password twice yields different strings.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a BcryptHasher with the given cost. Costs outside
// bcrypt's supported range fall back to the default cost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < MinHashCost || cost > MaxHashCost {
		cost = DefaultHashCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash produces a bcrypt hash of the password.
func (h *BcryptHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", apperrors.Validation("Password is required")
	}
	hashed, err := bcrypt.GenerateFromPassword(prehash(password), h.cost)
	if err != nil {
		return "", apperrors.BusinessLogic("password hashing failed", err)
	}
	return string(hashed), nil
}

// Verify reports whether the password matches the hash. bcrypt recomputes
// with the salt and cost embedded in the hash and compares in constant time.
func (h *BcryptHasher) Verify(password, hash string) bool {
	if password == "" || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), prehash(password)) == nil
}

// prehash digests the password before bcrypt. bcrypt only keys from the
// first 72 bytes of its input, while the strength policy accepts up to 128
// characters; the digest folds any accepted password into 43 bytes so the
// whole password always contributes to the hash.
func prehash(password string) []byte {
	sum := sha256.Sum256([]byte(password))
	return []byte(base64.RawStdEncoding.EncodeToString(sum[:]))
}

// Cost returns the configured bcrypt cost.
func (h *BcryptHasher) Cost() int {
	return h.cost
}
