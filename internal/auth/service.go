// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CampusAuth Contributors

package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/campusauth/campusauth/pkg/errutil"
)

const tracerName = "github.com/campusauth/campusauth/internal/auth"

var validate = validator.New(validator.WithRequiredStructEnabled())

// RegisterInput is a self-registration request. Role is accepted so callers
// can send it, and is always ignored.
type RegisterInput struct {
	Name       string `validate:"required"`
	Email      string `validate:"required"`
	Password   string `validate:"required"`
	StudentID  string `validate:"required"`
	Department string
	Year       string
	Role       string
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	User  PublicUser
	Token string
}

// Service runs the authentication workflows.
type Service struct {
	users      UserRepository
	hasher     PasswordHasher
	tokens     *TokenService
	logger     *slog.Logger
	tracer     trace.Tracer
	sessionTTL time.Duration
	resetTTL   time.Duration

	// dummyHash is verified when no user matches a login email so that
	// unknown emails cost the same as wrong passwords.
	dummyHash string
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger used for failures that are not returned verbatim.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTokenTTLs overrides the session and reset token lifetimes.
// Non-positive values keep the defaults.
func WithTokenTTLs(session, reset time.Duration) ServiceOption {
	return func(s *Service) {
		if session > 0 {
			s.sessionTTL = session
		}
		if reset > 0 {
			s.resetTTL = reset
		}
	}
}

// NewService creates a Service.
func NewService(users UserRepository, hasher PasswordHasher, tokens *TokenService, opts ...ServiceOption) (*Service, error) {
	if users == nil {
		return nil, oops.In(KindConfiguration).Code("SERVICE_INVALID").Errorf("user repository is required")
	}
	if hasher == nil {
		return nil, oops.In(KindConfiguration).Code("SERVICE_INVALID").Errorf("password hasher is required")
	}
	if tokens == nil {
		return nil, oops.In(KindConfiguration).Code("SERVICE_INVALID").Errorf("token service is required")
	}

	// Hashed with the configured work factor, from a password nobody knows.
	dummyHash, err := hasher.Hash(rand.Text())
	if err != nil {
		return nil, oops.In(KindConfiguration).Code("SERVICE_INVALID").
			Wrapf(err, "prepare dummy password hash")
	}

	s := &Service{
		users:      users,
		hasher:     hasher,
		tokens:     tokens,
		logger:     slog.Default(),
		tracer:     otel.Tracer(tracerName),
		sessionTTL: SessionTokenTTL,
		resetTTL:   ResetTokenTTL,
		dummyHash:  dummyHash,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Register creates a student account and signs the new user in.
func (s *Service) Register(ctx context.Context, in RegisterInput) (result *AuthResult, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.Register")
	defer func() { endSpan(span, err) }()

	if err := validate.Struct(in); err != nil {
		return nil, oops.In(KindValidation).Code("REGISTER_MISSING_FIELDS").
			With("fields", missingFields(err)).
			Errorf("please add all fields")
	}

	if err := s.ensureUnused(ctx, in.Email, in.StudentID); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, oops.In(KindInternal).Code("REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	user, err := NewUser(in.Name, in.Email, in.StudentID, hash, in.Department, in.Year)
	if err != nil {
		return nil, err
	}
	if in.Role != "" && Role(in.Role) != RoleStudent {
		s.logger.WarnContext(ctx, "ignoring role supplied at registration",
			"requested_role", in.Role,
			"student_id", in.StudentID)
	}

	created, err := s.users.Create(ctx, user)
	switch {
	case errors.Is(err, ErrDuplicateEmail):
		return nil, emailTaken(in.Email)
	case errors.Is(err, ErrDuplicateStudentID):
		return nil, studentIDTaken(in.StudentID)
	case err != nil:
		return nil, oops.In(KindPersistence).Code("REGISTER_FAILED").
			With("operation", "create user").
			Wrap(err)
	case created == nil || created.ID.IsZero():
		return nil, oops.In(KindPersistence).Code("REGISTER_INVALID_RECORD").
			Errorf("invalid user data")
	}

	token, err := s.tokens.Issue(created.ID, PurposeSession, s.sessionTTL)
	if err != nil {
		return nil, oops.In(KindInternal).Code("REGISTER_FAILED").
			With("operation", "issue session token").
			Wrap(err)
	}

	return &AuthResult{User: created.Public(), Token: token}, nil
}

func (s *Service) ensureUnused(ctx context.Context, email, studentID string) error {
	_, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return emailTaken(email)
	case !errors.Is(err, ErrNotFound):
		return oops.In(KindPersistence).Code("REGISTER_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	_, err = s.users.GetByStudentID(ctx, studentID)
	switch {
	case err == nil:
		return studentIDTaken(studentID)
	case !errors.Is(err, ErrNotFound):
		return oops.In(KindPersistence).Code("REGISTER_FAILED").
			With("operation", "get user by student id").
			Wrap(err)
	}
	return nil
}

func emailTaken(email string) error {
	return oops.In(KindConflict).Code("REGISTER_EMAIL_TAKEN").
		With("email", email).
		Errorf("user with this email already exists")
}

func studentIDTaken(studentID string) error {
	return oops.In(KindConflict).Code("REGISTER_STUDENT_ID_TAKEN").
		With("student_id", studentID).
		Errorf("a user with this student id already exists")
}

// Login checks credentials and issues a session token. An unknown email and a
// wrong password produce the same error.
func (s *Service) Login(ctx context.Context, email, password string) (result *AuthResult, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.Login")
	defer func() { endSpan(span, err) }()

	user, lookupErr := s.users.GetByEmail(ctx, email)
	targetHash := s.dummyHash
	switch {
	case lookupErr == nil:
		targetHash = user.PasswordHash
	case !errors.Is(lookupErr, ErrNotFound):
		return nil, oops.In(KindPersistence).Code("LOGIN_FAILED").
			With("operation", "get user by email").
			Wrap(lookupErr)
	}

	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if lookupErr != nil || password == "" {
		return nil, invalidCredentials()
	}
	if verifyErr != nil {
		return nil, oops.In(KindInternal).Code("LOGIN_FAILED").
			With("operation", "verify password").
			With("user_id", user.ID.String()).
			Wrap(verifyErr)
	}
	if !valid {
		return nil, invalidCredentials()
	}

	if s.hasher.NeedsUpgrade(user.PasswordHash) {
		s.upgradeHash(ctx, user, password)
	}

	token, err := s.tokens.Issue(user.ID, PurposeSession, s.sessionTTL)
	if err != nil {
		return nil, oops.In(KindInternal).Code("LOGIN_FAILED").
			With("operation", "issue session token").
			Wrap(err)
	}

	return &AuthResult{User: user.Public(), Token: token}, nil
}

func invalidCredentials() error {
	return oops.In(KindAuthentication).Code("LOGIN_INVALID_CREDENTIALS").Errorf("invalid credentials")
}

// upgradeHash rehashes a legacy password. The stored hash is only replaced
// if it is still the one that was verified, so a concurrent reset wins.
// Login succeeds regardless.
func (s *Service) upgradeHash(ctx context.Context, user *User, password string) {
	newHash, err := s.hasher.Hash(password)
	if err != nil {
		errutil.LogErrorContext(ctx, s.logger, "password hash upgrade failed", err)
		return
	}
	updated, err := s.users.UpdatePasswordHash(ctx, user.ID, user.PasswordHash, newHash)
	if err != nil {
		errutil.LogErrorContext(ctx, s.logger, "password hash upgrade failed", err)
		return
	}
	if !updated {
		s.logger.InfoContext(ctx, "password hash upgrade skipped, password changed",
			"user_id", user.ID.String())
		return
	}
	user.PasswordHash = newHash
}

// CurrentUser returns the stored record for an already authenticated identity.
func (s *Service) CurrentUser(ctx context.Context, id ulid.ULID) (user *User, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.CurrentUser")
	defer func() { endSpan(span, err) }()

	user, err = s.users.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, oops.In(KindNotFound).Code("USER_NOT_FOUND").
			With("user_id", id.String()).
			Errorf("user not found")
	}
	if err != nil {
		return nil, oops.In(KindPersistence).Code("CURRENT_USER_FAILED").
			With("operation", "get user by id").
			With("user_id", id.String()).
			Wrap(err)
	}
	return user, nil
}

// ForgotPassword verifies that email and studentID belong to the same user and
// returns a reset token for that user. The token goes straight back to the
// caller; there is no out-of-band delivery.
func (s *Service) ForgotPassword(ctx context.Context, email, studentID string) (token string, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.ForgotPassword")
	defer func() { endSpan(span, err) }()

	user, err := s.users.GetByEmailAndStudentID(ctx, email, studentID)
	if errors.Is(err, ErrNotFound) {
		return "", oops.In(KindNotFound).Code("FORGOT_PASSWORD_NO_MATCH").
			Errorf("user not found with provided email and student id")
	}
	if err != nil {
		return "", oops.In(KindPersistence).Code("FORGOT_PASSWORD_FAILED").
			With("operation", "get user by email and student id").
			Wrap(err)
	}

	token, err = s.tokens.Issue(user.ID, PurposeReset, s.resetTTL)
	if err != nil {
		return "", oops.In(KindInternal).Code("FORGOT_PASSWORD_FAILED").
			With("operation", "issue reset token").
			Wrap(err)
	}
	return token, nil
}

// ResetPassword sets a new password for the user named by a reset token.
// Every failure after input validation is reported as the same
// authentication error; the cause is logged.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) (err error) {
	ctx, span := s.tracer.Start(ctx, "auth.ResetPassword")
	defer func() { endSpan(span, err) }()

	if token == "" || newPassword == "" {
		return oops.In(KindValidation).Code("RESET_MISSING_FIELDS").
			Errorf("missing token or new password")
	}

	if err := s.resetPassword(ctx, token, newPassword); err != nil {
		if IsKind(err, KindToken) {
			s.logger.DebugContext(ctx, "reset token rejected", "error", err)
		} else {
			errutil.LogErrorContext(ctx, s.logger, "password reset failed", err)
		}
		return oops.In(KindAuthentication).Code("RESET_TOKEN_INVALID").
			Errorf("invalid or expired token")
	}
	return nil
}

func (s *Service) resetPassword(ctx context.Context, token, newPassword string) error {
	id, err := s.tokens.Verify(token, PurposeReset)
	if err != nil {
		return err
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return oops.Code("RESET_LOOKUP_FAILED").With("user_id", id.String()).Wrap(err)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("RESET_HASH_FAILED").With("user_id", id.String()).Wrap(err)
	}

	user.PasswordHash = hash
	if err := s.users.Save(ctx, user); err != nil {
		return oops.Code("RESET_SAVE_FAILED").With("user_id", id.String()).Wrap(err)
	}
	return nil
}

func missingFields(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	return fields
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.SetAttributes(attribute.String("auth.error_kind", KindOf(err)))
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
