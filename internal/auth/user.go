// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CampusAuth Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Role is a user's authorization level.
type Role string

// Roles.
const (
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleAdmin
}

// Profile defaults applied when registration leaves them blank.
const (
	DefaultDepartment = "General"
	DefaultYear       = "Freshman"
)

// User is a registered account.
type User struct {
	ID           ulid.ULID
	Name         string
	Email        string
	StudentID    string
	PasswordHash string
	Role         Role
	Department   string
	Year         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewUser builds a student account with a fresh identity. The password hash
// must come from a PasswordHasher.
func NewUser(name, email, studentID, passwordHash, department, year string) (*User, error) {
	if name == "" || email == "" || studentID == "" {
		return nil, oops.In(KindValidation).Code("USER_INVALID").
			Errorf("name, email and student id are required")
	}
	if passwordHash == "" {
		return nil, oops.In(KindValidation).Code("USER_INVALID").
			Errorf("password hash is required")
	}
	if department == "" {
		department = DefaultDepartment
	}
	if year == "" {
		year = DefaultYear
	}

	now := time.Now()
	return &User{
		ID:           ulid.Make(),
		Name:         name,
		Email:        email,
		StudentID:    studentID,
		PasswordHash: passwordHash,
		Role:         RoleStudent,
		Department:   department,
		Year:         year,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// PublicUser is the view returned alongside a session token.
type PublicUser struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	StudentID string `json:"studentId"`
	Role      Role   `json:"role"`
}

// Public returns the public view of u.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID.String(),
		Name:      u.Name,
		Email:     u.Email,
		StudentID: u.StudentID,
		Role:      u.Role,
	}
}

// Profile is the stored record without its password hash.
type Profile struct {
	PublicUser
	Department string    `json:"department"`
	Year       string    `json:"year"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Profile returns the full record of u minus the password hash.
func (u *User) Profile() Profile {
	return Profile{
		PublicUser: u.Public(),
		Department: u.Department,
		Year:       u.Year,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}

// UserRepository persists users. Lookups that match nothing return an error
// wrapping ErrNotFound. Create and Save must enforce email and student id
// uniqueness atomically and report violations wrapping ErrDuplicateEmail or
// ErrDuplicateStudentID.
type UserRepository interface {
	// Create stores a new user and returns the stored record.
	Create(ctx context.Context, user *User) (*User, error)

	GetByID(ctx context.Context, id ulid.ULID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByStudentID(ctx context.Context, studentID string) (*User, error)

	// GetByEmailAndStudentID matches both fields exactly.
	GetByEmailAndStudentID(ctx context.Context, email, studentID string) (*User, error)

	// Save updates the mutable fields of an existing user.
	Save(ctx context.Context, user *User) error

	// UpdatePasswordHash sets newHash only while the stored hash equals
	// oldHash. It reports whether the hash was replaced.
	UpdatePasswordHash(ctx context.Context, id ulid.ULID, oldHash, newHash string) (bool, error)
}
