// Copyright 2024-2026 Aiku AI

package admin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiku/mcrelay/pkg/metrics"
	"github.com/aiku/mcrelay/pkg/relay"
)

func newTestServer(t *testing.T, deps Deps) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewRouter(zerolog.Nop(), deps))
	t.Cleanup(srv.Close)
	return srv
}

func testStatus() relay.Status {
	return relay.Status{QueueDepth: 3, QueueCapacity: 100, ChatEnabled: true, ChatIdentity: true}
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, Deps{Status: testStatus})
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestStatus(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, Deps{Status: testStatus})
	resp, err := http.Get(srv.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got relay.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, testStatus(), got)
}

func TestReload(t *testing.T) {
	t.Parallel()
	calls := 0
	srv := newTestServer(t, Deps{
		Status: testStatus,
		Reload: func(context.Context) (ReloadResult, error) {
			calls++
			return ReloadResult{Status: testStatus()}, nil
		},
	})

	resp, err := http.Post(srv.URL+"/api/reload", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, calls)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"warnings":[]`)
	assert.Contains(t, string(body), `"queue_depth":3`)

	resp2, err := http.Get(srv.URL + "/api/reload")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp2.StatusCode)
}

func TestReload_Error(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, Deps{
		Status: testStatus,
		Reload: func(context.Context) (ReloadResult, error) {
			return ReloadResult{}, errors.New("invalid config: relay.queue_capacity")
		},
	})
	resp, err := http.Post(srv.URL+"/api/reload", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "invalid config")
}

func TestMetrics(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m := metrics.NewRelayMetrics(reg)
	m.IncSent()

	srv := newTestServer(t, Deps{Status: testStatus, Gatherer: reg})
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "mcrelay_outbound_sent_total 1"), string(body))
}

func TestMetrics_Disabled(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, Deps{Status: testStatus})
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	t.Parallel()
	s := NewServer(zerolog.Nop(), "127.0.0.1:0", Deps{Status: testStatus})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()
	assert.NoError(t, <-done)
}
