// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CampusAuth Contributors

//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"sync"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/campusauth/campusauth/internal/auth"
	"github.com/campusauth/campusauth/internal/auth/postgres"
)

func mustUser(email, studentID string) *auth.User {
	u, err := auth.NewUser("Ann", email, studentID, "$argon2id$hash", "", "")
	Expect(err).NotTo(HaveOccurred())
	return u
}

var _ = Describe("UserRepository", func() {
	var (
		ctx  context.Context
		repo *postgres.UserRepository
	)

	BeforeEach(func() {
		ctx = context.Background()
		repo = postgres.NewUserRepository(testPool)
	})

	Describe("Create", func() {
		It("stores the user with database timestamps and defaults", func() {
			created, err := repo.Create(ctx, mustUser("a@x.com", "S1"))
			Expect(err).NotTo(HaveOccurred())
			Expect(created.Role).To(Equal(auth.RoleStudent))
			Expect(created.Department).To(Equal("General"))
			Expect(created.Year).To(Equal("Freshman"))
			Expect(created.CreatedAt).NotTo(BeZero())

			got, err := repo.GetByEmailAndStudentID(ctx, "a@x.com", "S1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(created.ID))
		})

		It("reports duplicate email and student id", func() {
			_, err := repo.Create(ctx, mustUser("a@x.com", "S1"))
			Expect(err).NotTo(HaveOccurred())

			_, err = repo.Create(ctx, mustUser("a@x.com", "S2"))
			Expect(errors.Is(err, auth.ErrDuplicateEmail)).To(BeTrue())

			_, err = repo.Create(ctx, mustUser("b@x.com", "S1"))
			Expect(errors.Is(err, auth.ErrDuplicateStudentID)).To(BeTrue())
		})

		It("lets exactly one concurrent registration win", func() {
			const racers = 8
			errs := make([]error, racers)
			var wg sync.WaitGroup
			start := make(chan struct{})
			for i := range racers {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					<-start
					_, errs[i] = repo.Create(ctx, mustUser("race@x.com", "R"+string(rune('0'+i))))
				}()
			}
			close(start)
			wg.Wait()

			var ok, dup int
			for _, err := range errs {
				switch {
				case err == nil:
					ok++
				case errors.Is(err, auth.ErrDuplicateEmail):
					dup++
				}
			}
			Expect(ok).To(Equal(1))
			Expect(dup).To(Equal(racers - 1))
		})
	})

	Describe("Save", func() {
		It("updates the password hash and bumps updated_at", func() {
			created, err := repo.Create(ctx, mustUser("a@x.com", "S1"))
			Expect(err).NotTo(HaveOccurred())

			created.PasswordHash = "$argon2id$rotated"
			Expect(repo.Save(ctx, created)).To(Succeed())

			got, err := repo.GetByID(ctx, created.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.PasswordHash).To(Equal("$argon2id$rotated"))
			Expect(got.UpdatedAt).To(BeTemporally(">=", created.UpdatedAt))
		})

		It("returns not found for an unknown user", func() {
			err := repo.Save(ctx, mustUser("ghost@x.com", "G1"))
			Expect(errors.Is(err, auth.ErrNotFound)).To(BeTrue())
		})
	})

	Describe("UpdatePasswordHash", func() {
		It("does not overwrite a hash that changed since it was read", func() {
			created, err := repo.Create(ctx, mustUser("a@x.com", "S1"))
			Expect(err).NotTo(HaveOccurred())

			created.PasswordHash = "$argon2id$reset"
			Expect(repo.Save(ctx, created)).To(Succeed())

			updated, err := repo.UpdatePasswordHash(ctx, created.ID, "$argon2id$hash", "$argon2id$upgraded")
			Expect(err).NotTo(HaveOccurred())
			Expect(updated).To(BeFalse())

			got, err := repo.GetByID(ctx, created.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.PasswordHash).To(Equal("$argon2id$reset"))

			updated, err = repo.UpdatePasswordHash(ctx, created.ID, "$argon2id$reset", "$argon2id$upgraded")
			Expect(err).NotTo(HaveOccurred())
			Expect(updated).To(BeTrue())
		})
	})

	Describe("lookups", func() {
		It("returns not found for unknown values", func() {
			_, err := repo.GetByEmail(ctx, "nobody@x.com")
			Expect(errors.Is(err, auth.ErrNotFound)).To(BeTrue())

			_, err = repo.GetByStudentID(ctx, "nobody")
			Expect(errors.Is(err, auth.ErrNotFound)).To(BeTrue())
		})
	})
})
