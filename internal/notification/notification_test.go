package notification

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/edough-upgrade-check/internal/config"
	"github.com/smartdevs17/edough-upgrade-check/internal/metrics"
	"github.com/smartdevs17/edough-upgrade-check/internal/models"
	"github.com/smartdevs17/edough-upgrade-check/pkg/utils"
)

func discrepancyRun() *models.Run {
	return &models.Run{
		ID:          "run-1",
		Status:      models.RunCompleted,
		Proxy:       common.HexToAddress("0x0a"),
		TotalStaked: big.NewInt(1000),
		Holders: []models.HolderRecord{
			{Address: common.HexToAddress("0x01"), Eligible: big.NewInt(1000), Delta: big.NewInt(900), Outcome: models.HolderMigrated},
		},
		Discrepancies: []models.Discrepancy{
			{Address: common.HexToAddress("0x01"), Expected: big.NewInt(1000), Delta: big.NewInt(900)},
		},
	}
}

func webhookConfig(url string) config.NotificationConfig {
	return config.NotificationConfig{
		Enabled:             true,
		WebhookURL:          url,
		Headers:             map[string]string{"Authorization": "Bearer token"},
		NotificationTimeout: time.Second,
		RetryAttempts:       3,
		RetryDelay:          time.Millisecond,
	}
}

func TestWebhookDeliversRunSummary(t *testing.T) {
	var got WebhookPayload
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	manager := metrics.NewManager()
	notifier := NewNotifier(webhookConfig(srv.URL), manager)
	require.NoError(t, notifier.NotifyRun(context.Background(), discrepancyRun()))

	assert.Equal(t, "Bearer token", auth)
	assert.Equal(t, "run.discrepancies", got.Event)
	assert.Equal(t, "run_summary", got.Type)
	assert.Equal(t, "run-1", got.Data.ID)
	assert.Equal(t, "1000", got.Data.TotalStaked)
	require.Len(t, got.Data.Discrepancies, 1)
	assert.Equal(t, "100", got.Data.Discrepancies[0].Diff)
	assert.Equal(t, []string{}, got.Data.AddedKeys)

	sent := manager.GetPrometheusMetrics().NotificationsTotal.WithLabelValues("webhook", "success")
	assert.Equal(t, 1.0, testutil.ToFloat64(sent))
}

func TestWebhookRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := NewWebhookSender(webhookConfig(srv.URL), nil).NotifyRun(context.Background(), discrepancyRun())
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestWebhookGivesUp(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantCalls int32
	}{
		{"server error exhausts attempts", http.StatusInternalServerError, 3},
		{"client error is not retried", http.StatusBadRequest, 1},
		{"rate limit is retried", http.StatusTooManyRequests, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			manager := metrics.NewManager()
			err := NewWebhookSender(webhookConfig(srv.URL), manager).NotifyRun(context.Background(), discrepancyRun())
			require.Error(t, err)
			assert.True(t, utils.IsCode(err, utils.ErrCodeExternal))
			assert.Equal(t, tt.wantCalls, atomic.LoadInt32(&calls))

			failed := manager.GetPrometheusMetrics().NotificationsTotal.WithLabelValues("webhook", "error")
			assert.Equal(t, 1.0, testutil.ToFloat64(failed))
		})
	}
}

func TestWebhookStopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := webhookConfig(srv.URL)
	cfg.RetryDelay = time.Hour
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := NewWebhookSender(cfg, nil).NotifyRun(ctx, discrepancyRun())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWebhookBackOffIsCapped(t *testing.T) {
	cfg := webhookConfig("http://hooks.invalid")
	cfg.RetryDelay = 10 * time.Second

	b := NewWebhookSender(cfg, nil).newBackOff()
	assert.Equal(t, 10*time.Second, b.NextBackOff())
	assert.Equal(t, 20*time.Second, b.NextBackOff())
	assert.Equal(t, maxWebhookDelay, b.NextBackOff())
	assert.Equal(t, maxWebhookDelay, b.NextBackOff())

	cfg.RetryDelay = time.Hour
	assert.Equal(t, maxWebhookDelay, NewWebhookSender(cfg, nil).newBackOff().NextBackOff())
}

func TestOnlyOnDiscrepancy(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	cfg := webhookConfig(srv.URL)
	cfg.OnlyOnDiscrepancy = true
	notifier := NewNotifier(cfg, nil)

	clean := &models.Run{ID: "clean", Status: models.RunCompleted}
	require.NoError(t, notifier.NotifyRun(context.Background(), clean))
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))

	failed := &models.Run{ID: "failed", Status: models.RunFailed, Error: "swap: reverted"}
	require.NoError(t, notifier.NotifyRun(context.Background(), failed))
	require.NoError(t, notifier.NotifyRun(context.Background(), discrepancyRun()))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestDisabledNotifier(t *testing.T) {
	notifier := NewNotifier(config.NotificationConfig{}, nil)
	assert.NoError(t, notifier.NotifyRun(context.Background(), discrepancyRun()))
}

func TestEventName(t *testing.T) {
	assert.Equal(t, "run.completed", EventName(&models.Run{Status: models.RunCompleted}))
	assert.Equal(t, "run.failed", EventName(&models.Run{Status: models.RunFailed}))
	assert.Equal(t, "run.discrepancies", EventName(discrepancyRun()))
}
