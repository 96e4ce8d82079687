// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CampusAuth Contributors

// Package memory provides an in-process auth.UserRepository for development
// and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/campusauth/campusauth/internal/auth"
)

// UserRepository keeps users in maps guarded by a single lock, so the
// uniqueness check and the insert happen atomically.
type UserRepository struct {
	mu          sync.RWMutex
	byID        map[ulid.ULID]*auth.User
	byEmail     map[string]ulid.ULID
	byStudentID map[string]ulid.ULID
	now         func() time.Time
}

// NewUserRepository creates an empty UserRepository.
func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:        make(map[ulid.ULID]*auth.User),
		byEmail:     make(map[string]ulid.ULID),
		byStudentID: make(map[string]ulid.ULID),
		now:         time.Now,
	}
}

// Create stores a copy of user.
func (r *UserRepository) Create(_ context.Context, user *auth.User) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[user.ID]; exists {
		return nil, oops.Code("USER_CREATE_FAILED").
			With("id", user.ID.String()).
			Errorf("user id already exists")
	}
	if _, taken := r.byEmail[user.Email]; taken {
		return nil, oops.Code("USER_DUPLICATE_EMAIL").
			With("email", user.Email).
			Wrap(auth.ErrDuplicateEmail)
	}
	if _, taken := r.byStudentID[user.StudentID]; taken {
		return nil, oops.Code("USER_DUPLICATE_STUDENT_ID").
			With("student_id", user.StudentID).
			Wrap(auth.ErrDuplicateStudentID)
	}

	stored := *user
	now := r.now()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	r.byID[stored.ID] = &stored
	r.byEmail[stored.Email] = stored.ID
	r.byStudentID[stored.StudentID] = stored.ID

	out := stored
	return &out, nil
}

// GetByID retrieves a user by identity.
func (r *UserRepository) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.copyOf(id, "id", id.String())
}

// GetByEmail retrieves a user by exact email.
func (r *UserRepository) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, notFound("email", email)
	}
	return r.copyOf(id, "email", email)
}

// GetByStudentID retrieves a user by exact student id.
func (r *UserRepository) GetByStudentID(_ context.Context, studentID string) (*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byStudentID[studentID]
	if !ok {
		return nil, notFound("student_id", studentID)
	}
	return r.copyOf(id, "student_id", studentID)
}

// GetByEmailAndStudentID retrieves the user matching both fields.
func (r *UserRepository) GetByEmailAndStudentID(_ context.Context, email, studentID string) (*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok || r.byID[id].StudentID != studentID {
		return nil, notFound("email", email)
	}
	return r.copyOf(id, "email", email)
}

// Save replaces the stored copy of an existing user.
func (r *UserRepository) Save(_ context.Context, user *auth.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byID[user.ID]
	if !ok {
		return notFound("id", user.ID.String())
	}
	if owner, taken := r.byEmail[user.Email]; taken && owner != user.ID {
		return oops.Code("USER_DUPLICATE_EMAIL").
			With("email", user.Email).
			Wrap(auth.ErrDuplicateEmail)
	}
	if owner, taken := r.byStudentID[user.StudentID]; taken && owner != user.ID {
		return oops.Code("USER_DUPLICATE_STUDENT_ID").
			With("student_id", user.StudentID).
			Wrap(auth.ErrDuplicateStudentID)
	}

	delete(r.byEmail, current.Email)
	delete(r.byStudentID, current.StudentID)

	stored := *user
	stored.CreatedAt = current.CreatedAt
	stored.UpdatedAt = r.now()

	r.byID[stored.ID] = &stored
	r.byEmail[stored.Email] = stored.ID
	r.byStudentID[stored.StudentID] = stored.ID
	return nil
}

// UpdatePasswordHash swaps the password hash if it still equals oldHash.
func (r *UserRepository) UpdatePasswordHash(_ context.Context, id ulid.ULID, oldHash, newHash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok || u.PasswordHash != oldHash {
		return false, nil
	}
	updated := *u
	updated.PasswordHash = newHash
	updated.UpdatedAt = r.now()
	r.byID[id] = &updated
	return true, nil
}

// Len returns the number of stored users.
func (r *UserRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// copyOf must be called with the lock held.
func (r *UserRepository) copyOf(id ulid.ULID, key, value string) (*auth.User, error) {
	u, ok := r.byID[id]
	if !ok {
		return nil, notFound(key, value)
	}
	out := *u
	return &out, nil
}

func notFound(key, value string) error {
	return oops.Code("USER_NOT_FOUND").With(key, value).Wrap(auth.ErrNotFound)
}

var _ auth.UserRepository = (*UserRepository)(nil)
