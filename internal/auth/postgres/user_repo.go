// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CampusAuth Contributors

// Package postgres implements auth repositories on PostgreSQL.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/campusauth/campusauth/internal/auth"
)

// Constraint names from the users migration.
const (
	constraintEmail     = "users_email_key"
	constraintStudentID = "users_student_id_key"
)

// DB is the subset of pgxpool.Pool used by the repository.
// pgxmock.PgxPoolIface satisfies it in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const userColumns = `id, name, email, student_id, password_hash, role,
		       department, study_year, created_at, updated_at`

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	db DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts user. The database assigns created_at and updated_at.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) (*auth.User, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO users (id, name, email, student_id, password_hash, role, department, study_year)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+userColumns,
		user.ID.String(),
		user.Name,
		user.Email,
		user.StudentID,
		user.PasswordHash,
		string(user.Role),
		user.Department,
		user.Year,
	)

	created, err := scanUser(row)
	if err != nil {
		if dupErr := duplicateError(err, user); dupErr != nil {
			return nil, dupErr
		}
		return nil, oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("email", user.Email).
			Wrap(err)
	}
	return created, nil
}

// GetByID retrieves a user by identity.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id.String())
	return r.get(row, "id", id.String())
}

// GetByEmail retrieves a user by exact email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return r.get(row, "email", email)
}

// GetByStudentID retrieves a user by exact student id.
func (r *UserRepository) GetByStudentID(ctx context.Context, studentID string) (*auth.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE student_id = $1`, studentID)
	return r.get(row, "student_id", studentID)
}

// GetByEmailAndStudentID retrieves the user matching both fields.
func (r *UserRepository) GetByEmailAndStudentID(ctx context.Context, email, studentID string) (*auth.User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1 AND student_id = $2`,
		email, studentID)
	return r.get(row, "email", email)
}

// Save updates every mutable column of user and bumps updated_at.
func (r *UserRepository) Save(ctx context.Context, user *auth.User) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE users
		SET name = $2, email = $3, student_id = $4, password_hash = $5,
		    role = $6, department = $7, study_year = $8, updated_at = now()
		WHERE id = $1
	`,
		user.ID.String(),
		user.Name,
		user.Email,
		user.StudentID,
		user.PasswordHash,
		string(user.Role),
		user.Department,
		user.Year,
	)
	if err != nil {
		if dupErr := duplicateError(err, user); dupErr != nil {
			return dupErr
		}
		return oops.Code("USER_SAVE_FAILED").
			With("operation", "update user").
			With("id", user.ID.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", user.ID.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// UpdatePasswordHash replaces password_hash only while it still equals
// oldHash, so a password set concurrently is never overwritten.
func (r *UserRepository) UpdatePasswordHash(ctx context.Context, id ulid.ULID, oldHash, newHash string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE users
		SET password_hash = $3, updated_at = now()
		WHERE id = $1 AND password_hash = $2
	`, id.String(), oldHash, newHash)
	if err != nil {
		return false, oops.Code("USER_SAVE_FAILED").
			With("operation", "update password hash").
			With("id", id.String()).
			Wrap(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *UserRepository) get(row pgx.Row, key, value string) (*auth.User, error) {
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With(key, value).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_QUERY_FAILED").
			With("operation", "get user by "+key).
			With(key, value).
			Wrap(err)
	}
	return user, nil
}

func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		u    auth.User
		id   string
		role string
	)
	if err := row.Scan(
		&id,
		&u.Name,
		&u.Email,
		&u.StudentID,
		&u.PasswordHash,
		&role,
		&u.Department,
		&u.Year,
		&u.CreatedAt,
		&u.UpdatedAt,
	); err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with operation context
	}

	parsed, err := ulid.Parse(id)
	if err != nil {
		return nil, oops.Code("USER_CORRUPT_ID").With("id", id).Wrap(err)
	}
	u.ID = parsed
	u.Role = auth.Role(role)
	return &u, nil
}

// duplicateError maps a unique violation on the users table to the matching
// auth sentinel, or returns nil.
func duplicateError(err error, user *auth.User) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgerrcode.UniqueViolation {
		return nil
	}
	switch pgErr.ConstraintName {
	case constraintEmail:
		return oops.Code("USER_DUPLICATE_EMAIL").
			With("email", user.Email).
			Wrap(auth.ErrDuplicateEmail)
	case constraintStudentID:
		return oops.Code("USER_DUPLICATE_STUDENT_ID").
			With("student_id", user.StudentID).
			Wrap(auth.ErrDuplicateStudentID)
	}
	return nil
}

var _ auth.UserRepository = (*UserRepository)(nil)
