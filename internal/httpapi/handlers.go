// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CampusAuth Contributors

package httpapi

import (
	"net/http"
	"time"

	"github.com/campusauth/campusauth/internal/auth"
)

type registerRequest struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	StudentID  string `json:"studentId"`
	Department string `json:"department"`
	Year       string `json:"year"`
	Role       string `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type forgotPasswordRequest struct {
	Email     string `json:"email"`
	StudentID string `json:"studentId"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

// authResponse flattens the public user view next to the session token.
type authResponse struct {
	auth.PublicUser
	Token string `json:"token"`
}

type forgotPasswordResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// Operation labels recorded in request metrics.
const (
	opRegister       = "register"
	opLogin          = "login"
	opMe             = "me"
	opForgotPassword = "forgot_password"
	opResetPassword  = "reset_password"
)

// Reset failures are client errors, not authentication challenges.
var resetStatuses = statusOverrides{auth.KindAuthentication: http.StatusBadRequest}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	done := a.observe(opRegister)

	var req registerRequest
	if err := decode(w, r, &req); err != nil {
		done(err)
		a.writeError(w, r, err, nil)
		return
	}

	result, err := a.svc.Register(r.Context(), auth.RegisterInput{
		Name:       req.Name,
		Email:      req.Email,
		Password:   req.Password,
		StudentID:  req.StudentID,
		Department: req.Department,
		Year:       req.Year,
		Role:       req.Role,
	})
	done(err)
	if err != nil {
		a.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{PublicUser: result.User, Token: result.Token})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	done := a.observe(opLogin)

	var req loginRequest
	if err := decode(w, r, &req); err != nil {
		done(err)
		a.writeError(w, r, err, nil)
		return
	}

	result, err := a.svc.Login(r.Context(), req.Email, req.Password)
	done(err)
	if err != nil {
		a.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{PublicUser: result.User, Token: result.Token})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	done := a.observe(opMe)

	user, err := a.svc.CurrentUser(r.Context(), identityFrom(r.Context()))
	done(err)
	if err != nil {
		a.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, user.Profile())
}

func (a *API) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	done := a.observe(opForgotPassword)

	var req forgotPasswordRequest
	if err := decode(w, r, &req); err != nil {
		done(err)
		a.writeError(w, r, err, nil)
		return
	}

	token, err := a.svc.ForgotPassword(r.Context(), req.Email, req.StudentID)
	done(err)
	if err != nil {
		a.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, forgotPasswordResponse{
		Message: "Identity verified. Proceed to reset password.",
		Token:   token,
	})
}

func (a *API) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	done := a.observe(opResetPassword)

	var req resetPasswordRequest
	if err := decode(w, r, &req); err != nil {
		done(err)
		a.writeError(w, r, err, resetStatuses)
		return
	}

	err := a.svc.ResetPassword(r.Context(), req.Token, req.NewPassword)
	done(err)
	if err != nil {
		a.writeError(w, r, err, resetStatuses)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Password updated successfully"})
}

// observe starts timing an operation. The returned func records the outcome.
func (a *API) observe(operation string) func(error) {
	start := time.Now()
	return func(err error) {
		a.metrics.ObserveRequest(operation, outcome(err), time.Since(start))
	}
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	if kind := auth.KindOf(err); kind != "" {
		return kind
	}
	return auth.KindInternal
}
