// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CampusAuth Contributors

// Package auth implements credential and token handling for CampusAuth.
//
// # Components
//
//   - PasswordHasher / Argon2idHasher - salted, deliberately slow password hashing
//   - TokenService - signed, time-limited identity tokens (session and reset)
//   - UserRepository - storage contract; see the postgres and memory subpackages
//   - Service - registration, login, current user, forgot and reset password
//
// # Errors
//
// Errors returned from this package are oops errors. Their domain is one of
// the Kind* constants and KindOf extracts it. Messages on validation,
// conflict, authentication and not-found errors are safe to show to clients.
//
// # Reset flow
//
// ForgotPassword returns the reset token to the caller instead of delivering it
// out of band. Anyone who knows a user's email and student id can therefore
// reset that user's password.
package auth
