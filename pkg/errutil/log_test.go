// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CampusAuth Contributors

package errutil_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusauth/campusauth/pkg/errutil"
)

func TestLogError_WithOopsError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	err := oops.In("persistence").
		Code("USER_CREATE_FAILED").
		With("email", "a@x.com").
		Errorf("insert failed")

	errutil.LogError(logger, "registration failed", err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "registration failed", entry["msg"])
	assert.Equal(t, "USER_CREATE_FAILED", entry["code"])
	assert.Equal(t, "persistence", entry["kind"])
	assert.Equal(t, "insert failed", entry["error"])

	ctx, ok := entry["context"].(map[string]any)
	require.True(t, ok, "context should be an object")
	assert.Equal(t, "a@x.com", ctx["email"])
}

func TestLogError_WithStandardError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	errutil.LogError(logger, "operation failed", errors.New("standard error"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ERROR", entry["level"])
	assert.Contains(t, entry["error"], "standard error")
	assert.NotContains(t, entry, "code")
	assert.NotContains(t, entry, "kind")
}

func TestLogErrorContext_OmitsEmptyDomain(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	errutil.LogErrorContext(context.Background(), logger, "failed", oops.Code("ONLY_CODE").Errorf("boom"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ONLY_CODE", entry["code"])
	assert.NotContains(t, entry, "kind")
}
