// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CampusAuth Contributors

package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/samber/oops"

	"github.com/campusauth/campusauth/internal/auth"
	"github.com/campusauth/campusauth/pkg/errutil"
)

const maxBodyBytes = 1 << 20

// errorResponse is the body of every failed request.
type errorResponse struct {
	Message string `json:"message"`
}

// statusOverrides changes the status of an error kind for one route.
type statusOverrides map[string]int

// statusFor maps an error kind to an HTTP status.
func statusFor(kind string, overrides statusOverrides) int {
	if status, ok := overrides[kind]; ok {
		return status
	}
	switch kind {
	case auth.KindValidation, auth.KindConflict:
		return http.StatusBadRequest
	case auth.KindAuthentication, auth.KindToken:
		return http.StatusUnauthorized
	case auth.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError sends err as a JSON message. Server errors are logged and their
// detail is withheld from the client.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error, overrides statusOverrides) int {
	status := statusFor(auth.KindOf(err), overrides)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		errutil.LogErrorContext(r.Context(), a.logger, "request failed", err)
		message = "internal server error"
	}
	writeMessage(w, status, message)
	return status
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Message: message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	//nolint:errcheck // client may disconnect; nothing useful to do with the error
	json.NewEncoder(w).Encode(body)
}

// decode reads a JSON body into dst. An empty body leaves dst zero so that
// the workflow reports missing fields.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return oops.In(auth.KindValidation).Code("REQUEST_BODY_INVALID").
			With("cause", err.Error()).
			Errorf("invalid request body")
	}
	return nil
}
