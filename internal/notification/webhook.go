package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/edough-upgrade-check/internal/config"
	"github.com/smartdevs17/edough-upgrade-check/internal/metrics"
	"github.com/smartdevs17/edough-upgrade-check/internal/models"
	"github.com/smartdevs17/edough-upgrade-check/pkg/utils"
)

const maxWebhookDelay = 30 * time.Second

// WebhookSender posts run summaries to a webhook
type WebhookSender struct {
	url            string
	headers        map[string]string
	retryAttempts  int
	retryDelay     time.Duration
	maxElapsed     time.Duration
	httpClient     *http.Client
	metricsManager *metrics.Manager
	logger         *logrus.Entry
}

// WebhookPayload defines the webhook payload structure
type WebhookPayload struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Type      string    `json:"type"`
	Data      RunData   `json:"data"`
	Version   string    `json:"version"`
}

// WebhookResponse represents a webhook response
type WebhookResponse struct {
	StatusCode   int
	ResponseTime time.Duration
	Success      bool
	Error        error
	Body         string
}

// NewWebhookSender creates a new webhook sender
func NewWebhookSender(cfg config.NotificationConfig, metricsManager *metrics.Manager) *WebhookSender {
	timeout := cfg.NotificationTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	attempts := cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &WebhookSender{
		url:           cfg.WebhookURL,
		headers:       cfg.Headers,
		retryAttempts: attempts,
		retryDelay:    cfg.RetryDelay,
		maxElapsed:    time.Duration(attempts) * (timeout + maxWebhookDelay),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		metricsManager: metricsManager,
		logger:         utils.Component("webhook_sender"),
	}
}

// NotifyRun posts the run summary, retrying failed deliveries
func (ws *WebhookSender) NotifyRun(ctx context.Context, run *models.Run) error {
	start := time.Now()
	payload := &WebhookPayload{
		Event:     EventName(run),
		Timestamp: time.Now().UTC(),
		Source:    "edough-upgrade-check",
		Type:      "run_summary",
		Data:      NewRunData(run),
		Version:   "1.0",
	}

	response := ws.sendWithRetry(ctx, payload)
	duration := time.Since(start)

	status := "success"
	if !response.Success {
		status = "error"
	}
	if pm := ws.metricsManager.GetPrometheusMetrics(); pm != nil {
		pm.RecordNotification("webhook", status, duration)
	}

	fields := logrus.Fields{
		"run_id":        run.ID,
		"event":         payload.Event,
		"status_code":   response.StatusCode,
		"response_time": duration,
	}
	if !response.Success {
		ws.logger.WithFields(fields).WithError(response.Error).Error("Webhook failed")
		return response.Error
	}
	ws.logger.WithFields(fields).Info("Webhook sent")
	return nil
}

func (ws *WebhookSender) sendWithRetry(ctx context.Context, payload *WebhookPayload) *WebhookResponse {
	var last *WebhookResponse
	attempt := 0

	_, err := backoff.Retry(ctx, func() (*WebhookResponse, error) {
		attempt++
		last = ws.sendOnce(ctx, payload)
		if last.Success {
			return last, nil
		}
		if !retryable(last) {
			return last, backoff.Permanent(last.Error)
		}
		return last, last.Error
	},
		backoff.WithBackOff(ws.newBackOff()),
		backoff.WithMaxTries(uint(ws.retryAttempts)),
		backoff.WithMaxElapsedTime(ws.maxElapsed),
		backoff.WithNotify(func(err error, delay time.Duration) {
			ws.logger.WithFields(logrus.Fields{
				"attempt":      attempt + 1,
				"max_attempts": ws.retryAttempts,
				"delay":        delay,
				"error":        err,
			}).Warn("Webhook attempt failed, retrying")
		}),
	)
	if err != nil && ctx.Err() != nil {
		return &WebhookResponse{Error: ctx.Err()}
	}
	return last
}

// newBackOff doubles the base delay per retry, capped at maxWebhookDelay
func (ws *WebhookSender) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = min(ws.retryDelay, maxWebhookDelay)
	b.MaxInterval = maxWebhookDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.Reset()
	return b
}

func (ws *WebhookSender) sendOnce(ctx context.Context, payload *WebhookPayload) *WebhookResponse {
	start := time.Now()
	response := &WebhookResponse{}

	body, err := json.Marshal(payload)
	if err != nil {
		response.Error = utils.NewAppError(utils.ErrCodeInternal, "Failed to marshal webhook payload", err.Error())
		return response
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ws.url, bytes.NewReader(body))
	if err != nil {
		response.Error = utils.NewAppError(utils.ErrCodeConfiguration, "Failed to create webhook request", err.Error())
		return response
	}
	ws.setRequestHeaders(req)

	resp, err := ws.httpClient.Do(req)
	response.ResponseTime = time.Since(start)
	if err != nil {
		response.Error = utils.NewAppError(utils.ErrCodeExternal, "Failed to send webhook", err.Error())
		return response
	}
	defer resp.Body.Close()

	response.StatusCode = resp.StatusCode
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	response.Body = string(snippet)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		response.Success = true
		return response
	}
	response.Error = utils.NewAppError(utils.ErrCodeExternal,
		"Webhook returned non-success status",
		fmt.Sprintf("status: %d, body: %s", resp.StatusCode, response.Body))
	return response
}

func (ws *WebhookSender) setRequestHeaders(req *http.Request) {
	for key, value := range ws.headers {
		req.Header.Set(key, value)
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", "edough-upgrade-check/1.0")
	}
	req.Header.Set("X-Timestamp", fmt.Sprintf("%d", time.Now().Unix()))
	if requestID, err := utils.GenerateID(); err == nil {
		req.Header.Set("X-Request-ID", requestID)
	}
}

// retryable reports whether a failed delivery is worth repeating. Client
// errors other than 429 will not succeed on retry.
func retryable(r *WebhookResponse) bool {
	if r.StatusCode == 0 {
		return utils.ErrorCode(r.Error) == utils.ErrCodeExternal
	}
	return r.StatusCode == http.StatusTooManyRequests || r.StatusCode >= 500
}
