// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskHive Contributors

// Package users defines the user identity record and its persistence contract.
package users

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Role determines what a user may do inside a workspace.
type Role string

// Known roles.
const (
	RoleAdmin     Role = "admin"
	RoleManager   Role = "manager"
	RoleDeveloper Role = "developer"
)

// Valid returns true if the role is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleDeveloper:
		return true
	}
	return false
}

// Sentinel errors returned by Repository implementations.
var (
	// ErrNotFound is returned when no user matches the lookup.
	ErrNotFound = errors.New("user not found")

	// ErrDuplicateEmail is returned when a create collides with an existing
	// email. Email uniqueness is enforced by the store, so this also covers
	// the race between a pre-check and the insert.
	ErrDuplicateEmail = errors.New("email already registered")
)

// User is a user identity record. PasswordHash is never the plaintext
// password and is stripped before the record crosses the HTTP boundary.
type User struct {
	ID           ulid.ULID
	Email        string
	Name         string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// New creates a user record with a fresh ULID and timestamps. The email is
// normalized to lower case so uniqueness is case-insensitive.
func New(email, name, passwordHash string, role Role) *User {
	now := time.Now().UTC()
	return &User{
		ID:           ulid.Make(),
		Email:        NormalizeEmail(email),
		Name:         name,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// NormalizeEmail lowercases and trims an email address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Repository manages user persistence. Implementations must return
// ErrNotFound (possibly wrapped) for missing users and ErrDuplicateEmail for
// unique-key collisions on create.
type Repository interface {
	// Create stores a new user.
	Create(ctx context.Context, user *User) error

	// FindByEmail retrieves a user by email (case-insensitive).
	FindByEmail(ctx context.Context, email string) (*User, error)

	// FindByID retrieves a user by ID.
	FindByID(ctx context.Context, id ulid.ULID) (*User, error)
}
