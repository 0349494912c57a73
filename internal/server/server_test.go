package server

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/edough-upgrade-check/internal/config"
	"github.com/smartdevs17/edough-upgrade-check/internal/connection"
	"github.com/smartdevs17/edough-upgrade-check/internal/metrics"
	"github.com/smartdevs17/edough-upgrade-check/internal/models"
	"github.com/smartdevs17/edough-upgrade-check/internal/storage"
)

type fakeChain struct {
	err error
}

func (f *fakeChain) HealthCheck(context.Context) error {
	return f.err
}

type statsChain struct {
	fakeChain
	stats connection.ConnectionStats
}

func (s *statsChain) Stats() connection.ConnectionStats {
	return s.stats
}

func newTestServer(t *testing.T, chain HealthChecker) (*HTTPServer, storage.Storage, *metrics.Manager) {
	t.Helper()
	store, err := storage.Open(&config.StorageConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "runs.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	manager := metrics.NewManager()
	srv := NewHTTPServer(&config.ServerConfig{
		Host:          "127.0.0.1",
		Port:          0,
		EnableHealth:  true,
		EnableMetrics: true,
	}, store, chain, manager, "test")
	return srv, store, manager
}

func saveRun(t *testing.T, store storage.Storage, id string, status models.RunStatus, started time.Time) {
	t.Helper()
	require.NoError(t, store.SaveRun(context.Background(), &models.Run{
		ID:          id,
		StartedAt:   started,
		FinishedAt:  started,
		Status:      status,
		TotalStaked: big.NewInt(1000),
		Holders: []models.HolderRecord{
			{Address: common.HexToAddress("0x01"), Eligible: big.NewInt(1000), Delta: big.NewInt(900), Outcome: models.HolderMigrated},
		},
		Discrepancies: []models.Discrepancy{
			{Address: common.HexToAddress("0x01"), Expected: big.NewInt(1000), Delta: big.NewInt(900)},
		},
	}))
}

func do(t *testing.T, srv *HTTPServer, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		srv, _, _ := newTestServer(t, &fakeChain{})
		rec := do(t, srv, http.MethodGet, "/api/v1/health")
		assert.Equal(t, http.StatusOK, rec.Code)

		body := decode(t, rec)
		assert.Equal(t, "healthy", body["status"])
		assert.Equal(t, map[string]interface{}{"storage": "ok", "chain": "ok"}, body["components"])
	})

	t.Run("chain down", func(t *testing.T) {
		srv, _, _ := newTestServer(t, &fakeChain{err: errors.New("dial tcp: refused")})
		rec := do(t, srv, http.MethodGet, "/api/v1/health")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "unhealthy", decode(t, rec)["status"])
	})

	t.Run("no chain configured", func(t *testing.T) {
		srv, _, _ := newTestServer(t, nil)
		rec := do(t, srv, http.MethodGet, "/api/v1/health")
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestRunsEndpoints(t *testing.T) {
	srv, store, _ := newTestServer(t, nil)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	saveRun(t, store, "first", models.RunCompleted, base)
	saveRun(t, store, "second", models.RunFailed, base.Add(time.Hour))

	rec := do(t, srv, http.MethodGet, "/api/v1/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	runs := body["runs"].([]interface{})
	require.Len(t, runs, 2)
	assert.Equal(t, "second", runs[0].(map[string]interface{})["id"])

	rec = do(t, srv, http.MethodGet, "/api/v1/runs?status=completed")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["runs"], 1)

	rec = do(t, srv, http.MethodGet, "/api/v1/runs?limit=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/v1/runs/first")
	require.Equal(t, http.StatusOK, rec.Code)
	run := decode(t, rec)
	assert.Equal(t, "first", run["id"])
	assert.Len(t, run["discrepancies"], 1)

	rec = do(t, srv, http.MethodGet, "/api/v1/runs/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, srv, http.MethodDelete, "/api/v1/runs/first")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, srv, http.MethodDelete, "/api/v1/runs/first")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStats(t *testing.T) {
	srv, store, _ := newTestServer(t, nil)
	saveRun(t, store, "a", models.RunFailed, time.Now())

	rec := do(t, srv, http.MethodGet, "/api/v1/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	stats := decode(t, rec)["storage"].(map[string]interface{})
	assert.Equal(t, 1.0, stats["total_runs"])
	assert.Equal(t, 1.0, stats["failed_runs"])
	assert.Equal(t, 1.0, stats["total_discrepancies"])
	assert.NotContains(t, decode(t, rec), "chain")
}

func TestStatsIncludesChainConnection(t *testing.T) {
	srv, _, _ := newTestServer(t, &statsChain{stats: connection.ConnectionStats{
		CurrentURL: "http://backup:8545",
		Reconnects: 2,
		ChainID:    31337,
		IsHealthy:  true,
	}})

	rec := do(t, srv, http.MethodGet, "/api/v1/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	chain := decode(t, rec)["chain"].(map[string]interface{})
	assert.Equal(t, "http://backup:8545", chain["current_url"])
	assert.Equal(t, 2.0, chain["reconnects"])
	assert.Equal(t, 31337.0, chain["chain_id"])
	assert.Equal(t, true, chain["is_healthy"])
}

func TestMetricsEndpointAndMiddleware(t *testing.T) {
	srv, _, manager := newTestServer(t, nil)

	do(t, srv, http.MethodGet, "/api/v1/runs/missing")

	requests := manager.GetPrometheusMetrics().HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/runs/{id}", "404")
	assert.Equal(t, 1.0, testutil.ToFloat64(requests))

	rec := do(t, srv, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "upgrade_check_http_requests_total"))
}

func TestRunStopsOnCancel(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
