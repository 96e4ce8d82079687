// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CampusAuth Contributors

package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Token lifetimes.
const (
	SessionTokenTTL = 30 * 24 * time.Hour
	ResetTokenTTL   = 15 * time.Minute
)

// DefaultIssuer is the iss claim stamped on tokens when none is configured.
const DefaultIssuer = "campusauth"

// Purpose separates session tokens from reset tokens. A token verified for
// one purpose is rejected for the other.
type Purpose string

// Token purposes.
const (
	PurposeSession Purpose = "session"
	PurposeReset   Purpose = "reset"
)

// TokenClaims is the JWT payload.
type TokenClaims struct {
	Purpose Purpose `json:"purpose"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies HS256-signed identity tokens.
// It is safe for concurrent use; the secret never changes after construction.
type TokenService struct {
	secret []byte
	issuer string
	now    func() time.Time
	parser *jwt.Parser
}

// TokenOption configures a TokenService.
type TokenOption func(*TokenService)

// WithIssuer sets the iss claim.
func WithIssuer(issuer string) TokenOption {
	return func(s *TokenService) {
		if issuer != "" {
			s.issuer = issuer
		}
	}
}

// WithClock replaces time.Now for issuing and verifying tokens.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewTokenService creates a TokenService. An empty secret is a configuration
// error and should stop the process at startup.
func NewTokenService(secret string, opts ...TokenOption) (*TokenService, error) {
	if secret == "" {
		return nil, oops.In(KindConfiguration).Code("TOKEN_SECRET_MISSING").
			Hint("set auth.jwt_secret or the JWT_SECRET environment variable").
			Errorf("token signing secret is not configured")
	}

	s := &TokenService{
		secret: []byte(secret),
		issuer: DefaultIssuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	return s, nil
}

// Issue signs a token for identity that expires ttl from now.
func (s *TokenService) Issue(identity ulid.ULID, purpose Purpose, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", oops.In(KindInternal).Code("TOKEN_ISSUE_FAILED").
			With("ttl", ttl.String()).
			Errorf("token ttl must be positive")
	}

	now := s.now()
	claims := TokenClaims{
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.String(),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", oops.In(KindInternal).Code("TOKEN_ISSUE_FAILED").
			With("purpose", string(purpose)).
			Wrap(err)
	}
	return signed, nil
}

// Verify checks the signature, expiry and purpose of token and returns the
// identity it carries. All failures share one message; the cause is kept in
// the error context under "cause".
func (s *TokenService) Verify(token string, purpose Purpose) (ulid.ULID, error) {
	var claims TokenClaims
	_, err := s.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		return ulid.ULID{}, invalidToken(tokenFailureCause(err))
	}

	if claims.Purpose != purpose {
		return ulid.ULID{}, invalidToken("purpose")
	}

	identity, err := ulid.Parse(claims.Subject)
	if err != nil {
		return ulid.ULID{}, invalidToken("malformed")
	}
	return identity, nil
}

func invalidToken(cause string) error {
	return oops.In(KindToken).Code("TOKEN_INVALID").
		With("cause", cause).
		Errorf("invalid or expired token")
}

func tokenFailureCause(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenNotValidYet):
		return "expired"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return "signature"
	default:
		return "malformed"
	}
}
