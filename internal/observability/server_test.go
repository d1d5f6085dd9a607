// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DevCamper Contributors

package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devcamper/devcamper/internal/auth"
	"github.com/devcamper/devcamper/pkg/errutil"
)

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return rec.Code, string(body)
}

func startServer(t *testing.T, ready ReadinessCheck) (*Server, <-chan error) {
	t.Helper()
	server := NewServer("127.0.0.1:0", ready)
	errCh, err := server.Start()
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Stop(ctx)
	})
	return server, errCh
}

func TestServer_Metrics(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)
	server.RegisterBuildInfo("1.2.3", "abc123")

	m := auth.NewMetrics(server.Registry())
	require.NotNil(t, m)
	extra := prometheus.NewCounter(prometheus.CounterOpts{Name: "devcamper_test_total", Help: "test"})
	server.Registry().MustRegister(extra)
	extra.Add(3)

	code, body := get(t, server.Handler(), "/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "# HELP")
	assert.Contains(t, body, "# TYPE")
	assert.Contains(t, body, "go_")
	assert.Contains(t, body, "process_")
	assert.Contains(t, body, `devcamper_build_info{commit="abc123",version="1.2.3"} 1`)
	assert.Contains(t, body, "devcamper_test_total 3")
	assert.Contains(t, body, "devcamper_reset_tokens_swept_total 0")
}

func TestServer_Liveness(t *testing.T) {
	code, body := get(t, NewServer("", nil).Handler(), "/healthz/liveness")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", strings.TrimSpace(body))
}

func TestServer_Readiness(t *testing.T) {
	tests := []struct {
		name     string
		ready    ReadinessCheck
		wantCode int
		wantBody string
	}{
		{"nil check is ready", nil, http.StatusOK, "ok"},
		{"passing check", func(context.Context) error { return nil }, http.StatusOK, "ok"},
		{"failing check", func(context.Context) error { return errors.New("database unreachable") },
			http.StatusServiceUnavailable, "not ready"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := get(t, NewServer("", tt.ready).Handler(), "/healthz/readiness")
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantBody, strings.TrimSpace(body))
			assert.NotContains(t, body, "database unreachable")
		})
	}
}

func TestServer_ServesOverTCP(t *testing.T) {
	server, _ := startServer(t, nil)
	require.NotEmpty(t, server.Addr())

	resp, err := http.Get("http://" + server.Addr() + "/healthz/liveness")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_DoubleStartFails(t *testing.T) {
	server, _ := startServer(t, nil)

	_, err := server.Start()
	errutil.AssertErrorCode(t, err, "OBSERVABILITY_ALREADY_RUNNING")
}

func TestServer_ListenFailure(t *testing.T) {
	server, _ := startServer(t, nil)

	other := NewServer(server.Addr(), nil)
	_, err := other.Start()
	errutil.AssertErrorCode(t, err, "OBSERVABILITY_LISTEN_FAILED")

	// A failed Start leaves the server restartable.
	other.addr = "127.0.0.1:0"
	_, err = other.Start()
	require.NoError(t, err)
	require.NoError(t, other.Stop(context.Background()))
}

func TestServer_StopIdempotent(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)
	assert.NoError(t, server.Stop(context.Background()), "stop without start")
}

func TestServer_ErrorChannelReportsServeErrors(t *testing.T) {
	server, errCh := startServer(t, nil)

	// Closing the listener out from under Serve simulates a transport failure.
	require.NoError(t, server.listener.Close())

	select {
	case serveErr := <-errCh:
		assert.Error(t, serveErr)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for error on error channel")
	}
}

func TestServer_ErrorChannelClosesOnNormalShutdown(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)
	errCh, err := server.Start()
	require.NoError(t, err)

	require.NoError(t, server.Stop(context.Background()))

	select {
	case err, ok := <-errCh:
		if ok {
			assert.NoError(t, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for error channel to close")
	}
}
