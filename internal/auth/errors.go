// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CampusAuth Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"
)

// ErrNotFound is returned when a requested user does not exist.
var ErrNotFound = errors.New("not found")

// Uniqueness violations reported by UserRepository implementations.
var (
	ErrDuplicateEmail     = errors.New("duplicate email")
	ErrDuplicateStudentID = errors.New("duplicate student id")
)

// Error kinds. Every error produced by this package carries one of these as
// its oops domain so transports can map failures without string matching.
const (
	KindValidation     = "validation"
	KindConflict       = "conflict"
	KindAuthentication = "authentication"
	KindNotFound       = "not_found"
	KindPersistence    = "persistence"
	KindConfiguration  = "configuration"
	KindToken          = "token"
	KindInternal       = "internal"
)

// KindOf returns the error kind of err, or "" when err carries none.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	return oopsErr.Domain()
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind string) bool {
	return KindOf(err) == kind
}
