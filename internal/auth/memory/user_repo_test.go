// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CampusAuth Contributors

package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusauth/campusauth/internal/auth"
	"github.com/campusauth/campusauth/internal/auth/memory"
)

func newUser(t *testing.T, email, studentID string) *auth.User {
	t.Helper()
	u, err := auth.NewUser("Ann", email, studentID, "$argon2id$hash", "", "")
	require.NoError(t, err)
	return u
}

func TestUserRepository_CreateAndLookup(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewUserRepository()

	created, err := repo.Create(ctx, newUser(t, "a@x.com", "S1"))
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.False(t, created.CreatedAt.IsZero())

	t.Run("by id", func(t *testing.T) {
		got, err := repo.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "a@x.com", got.Email)
	})

	t.Run("by email", func(t *testing.T) {
		got, err := repo.GetByEmail(ctx, "a@x.com")
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
	})

	t.Run("by student id", func(t *testing.T) {
		got, err := repo.GetByStudentID(ctx, "S1")
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
	})

	t.Run("by email and student id", func(t *testing.T) {
		got, err := repo.GetByEmailAndStudentID(ctx, "a@x.com", "S1")
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
	})

	t.Run("email with wrong student id is not found", func(t *testing.T) {
		_, err := repo.GetByEmailAndStudentID(ctx, "a@x.com", "S2")
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("lookups are case sensitive", func(t *testing.T) {
		_, err := repo.GetByEmail(ctx, "A@X.COM")
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("unknown id is not found", func(t *testing.T) {
		_, err := repo.GetByID(ctx, ulid.Make())
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestUserRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewUserRepository()

	created, err := repo.Create(ctx, newUser(t, "a@x.com", "S1"))
	require.NoError(t, err)

	created.Name = "mutated"
	got, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ann", got.Name)
}

func TestUserRepository_CreateRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewUserRepository()

	_, err := repo.Create(ctx, newUser(t, "a@x.com", "S1"))
	require.NoError(t, err)

	_, err = repo.Create(ctx, newUser(t, "a@x.com", "S2"))
	assert.ErrorIs(t, err, auth.ErrDuplicateEmail)

	_, err = repo.Create(ctx, newUser(t, "b@x.com", "S1"))
	assert.ErrorIs(t, err, auth.ErrDuplicateStudentID)

	assert.Equal(t, 1, repo.Len())
}

func TestUserRepository_ConcurrentCreateKeepsOneWinner(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		second  func(t *testing.T) *auth.User
		wantErr error
	}{
		{
			name:    "same email",
			second:  func(t *testing.T) *auth.User { return newUser(t, "a@x.com", "S2") },
			wantErr: auth.ErrDuplicateEmail,
		},
		{
			name:    "same student id",
			second:  func(t *testing.T) *auth.User { return newUser(t, "b@x.com", "S1") },
			wantErr: auth.ErrDuplicateStudentID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for range 50 {
				repo := memory.NewUserRepository()
				users := []*auth.User{newUser(t, "a@x.com", "S1"), tt.second(t)}

				errs := make([]error, len(users))
				var wg sync.WaitGroup
				start := make(chan struct{})
				for i, u := range users {
					wg.Add(1)
					go func() {
						defer wg.Done()
						<-start
						_, errs[i] = repo.Create(ctx, u)
					}()
				}
				close(start)
				wg.Wait()

				var ok, conflicts int
				for _, err := range errs {
					switch {
					case err == nil:
						ok++
					case errors.Is(err, tt.wantErr):
						conflicts++
					}
				}
				require.Equal(t, 1, ok)
				require.Equal(t, 1, conflicts)
				require.Equal(t, 1, repo.Len())
			}
		})
	}
}

func TestUserRepository_Save(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewUserRepository()

	first, err := repo.Create(ctx, newUser(t, "a@x.com", "S1"))
	require.NoError(t, err)
	second, err := repo.Create(ctx, newUser(t, "b@x.com", "S2"))
	require.NoError(t, err)

	t.Run("updates password hash", func(t *testing.T) {
		first.PasswordHash = "$argon2id$new"
		require.NoError(t, repo.Save(ctx, first))

		got, err := repo.GetByID(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, "$argon2id$new", got.PasswordHash)
		assert.Equal(t, first.CreatedAt, got.CreatedAt)
	})

	t.Run("email change re-indexes", func(t *testing.T) {
		first.Email = "ann@x.com"
		require.NoError(t, repo.Save(ctx, first))

		_, err := repo.GetByEmail(ctx, "a@x.com")
		assert.ErrorIs(t, err, auth.ErrNotFound)
		got, err := repo.GetByEmail(ctx, "ann@x.com")
		require.NoError(t, err)
		assert.Equal(t, first.ID, got.ID)
	})

	t.Run("rejects taking another user's email", func(t *testing.T) {
		second.Email = "ann@x.com"
		err := repo.Save(ctx, second)
		assert.ErrorIs(t, err, auth.ErrDuplicateEmail)
	})

	t.Run("unknown user is not found", func(t *testing.T) {
		err := repo.Save(ctx, newUser(t, "c@x.com", "S3"))
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestUserRepository_UpdatePasswordHash(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewUserRepository()

	u, err := repo.Create(ctx, newUser(t, "a@x.com", "S1"))
	require.NoError(t, err)

	updated, err := repo.UpdatePasswordHash(ctx, u.ID, "$argon2id$stale", "$argon2id$new")
	require.NoError(t, err)
	assert.False(t, updated, "stale hash must not be replaced")

	got, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "$argon2id$hash", got.PasswordHash)

	updated, err = repo.UpdatePasswordHash(ctx, u.ID, "$argon2id$hash", "$argon2id$new")
	require.NoError(t, err)
	assert.True(t, updated)

	got, err = repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "$argon2id$new", got.PasswordHash)
	assert.Equal(t, u.CreatedAt, got.CreatedAt)

	updated, err = repo.UpdatePasswordHash(ctx, ulid.Make(), "$argon2id$hash", "$argon2id$new")
	require.NoError(t, err)
	assert.False(t, updated)
}
