// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskHive Contributors

//go:build integration

package integration

import (
	"context"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/taskhive/taskhive/internal/users"
)

var _ = Describe("UserRepository", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
		cleanupUsers(ctx, env.pool)
	})

	Describe("Create", func() {
		It("persists all user fields", func() {
			user := users.New("repo@example.com", "Repo User", "$2a$10$fakehash", users.RoleDeveloper)

			err := env.Users.Create(ctx, user)
			Expect(err).NotTo(HaveOccurred())

			got, err := env.Users.FindByID(ctx, user.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Email).To(Equal("repo@example.com"))
			Expect(got.Name).To(Equal("Repo User"))
			Expect(got.PasswordHash).To(Equal("$2a$10$fakehash"))
			Expect(got.Role).To(Equal(users.RoleDeveloper))
			Expect(got.CreatedAt).NotTo(BeZero())
		})

		It("rejects a duplicate email", func() {
			first := users.New("dup@example.com", "First", "hash1", users.RoleDeveloper)
			Expect(env.Users.Create(ctx, first)).To(Succeed())

			second := users.New("dup@example.com", "Second", "hash2", users.RoleManager)
			err := env.Users.Create(ctx, second)
			Expect(err).To(MatchError(users.ErrDuplicateEmail))
		})

		It("rejects a duplicate email differing only in case", func() {
			first := users.New("case@example.com", "First", "hash1", users.RoleDeveloper)
			Expect(env.Users.Create(ctx, first)).To(Succeed())

			second := &users.User{
				ID:           ulid.Make(),
				Email:        "CASE@Example.COM",
				Name:         "Second",
				PasswordHash: "hash2",
				Role:         users.RoleDeveloper,
			}
			err := env.Users.Create(ctx, second)
			Expect(err).To(MatchError(users.ErrDuplicateEmail))
		})
	})

	Describe("FindByEmail", func() {
		It("matches case-insensitively", func() {
			user := users.New("lookup@example.com", "Lookup", "hash", users.RoleAdmin)
			Expect(env.Users.Create(ctx, user)).To(Succeed())

			got, err := env.Users.FindByEmail(ctx, "LOOKUP@EXAMPLE.COM")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(user.ID))
		})

		It("returns ErrNotFound for an unknown email", func() {
			_, err := env.Users.FindByEmail(ctx, "nobody@example.com")
			Expect(err).To(MatchError(users.ErrNotFound))
		})
	})

	Describe("FindByID", func() {
		It("returns ErrNotFound for an unknown id", func() {
			_, err := env.Users.FindByID(ctx, ulid.Make())
			Expect(err).To(MatchError(users.ErrNotFound))
		})
	})
})
