// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CampusAuth Contributors

package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return rec.Code, string(body)
}

func TestServer_Metrics(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)
	server.Metrics().ObserveRequest("login", "success", 20*time.Millisecond)

	code, body := get(t, server.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, code)

	assert.Contains(t, body, "# HELP")
	assert.Contains(t, body, "go_")
	assert.Contains(t, body, "process_")
	assert.Contains(t, body, `campusauth_auth_requests_total{operation="login",outcome="success"} 1`)
	assert.Contains(t, body, "campusauth_auth_request_duration_seconds")
}

func TestMetrics_ObserveRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveRequest("register", "success", time.Millisecond)
	m.ObserveRequest("register", "conflict", time.Millisecond)
	m.ObserveRequest("register", "conflict", time.Millisecond)

	assert.InDelta(t, 1, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("register", "success")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("register", "conflict")), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.RequestDuration))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() { m.ObserveRequest("login", "success", time.Second) })
}

func TestServer_Liveness(t *testing.T) {
	server := NewServer("127.0.0.1:0", func() bool { return false })

	code, body := get(t, server.Handler(), "/healthz/liveness")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", strings.TrimSpace(body))
}

func TestServer_Readiness(t *testing.T) {
	var ready atomic.Bool
	server := NewServer("127.0.0.1:0", ready.Load)

	code, body := get(t, server.Handler(), "/healthz/readiness")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "not ready", strings.TrimSpace(body))

	ready.Store(true)
	code, _ = get(t, server.Handler(), "/healthz/readiness")
	assert.Equal(t, http.StatusOK, code)
}

func TestServer_ReadinessWithoutChecker(t *testing.T) {
	code, _ := get(t, NewServer("127.0.0.1:0", nil).Handler(), "/healthz/readiness")
	assert.Equal(t, http.StatusOK, code)
}

func TestServer_StartStop(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)

	errCh, err := server.Start()
	require.NoError(t, err)
	require.NotEmpty(t, server.Addr())

	_, err = server.Start()
	require.Error(t, err, "second start should fail")

	resp, err := http.Get("http://" + server.Addr() + "/healthz/liveness")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, server.Stop(ctx))
	require.NoError(t, server.Stop(ctx), "stop is idempotent")

	_, open := <-errCh
	assert.False(t, open, "error channel closes after graceful stop")
}

func TestServer_StartFailsOnBadAddress(t *testing.T) {
	server := NewServer("256.0.0.1:bad", nil)
	_, err := server.Start()
	require.Error(t, err)
	assert.Empty(t, server.Addr())
}
