package notification

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/edough-upgrade-check/internal/config"
	"github.com/smartdevs17/edough-upgrade-check/internal/metrics"
	"github.com/smartdevs17/edough-upgrade-check/internal/models"
	"github.com/smartdevs17/edough-upgrade-check/pkg/utils"
)

// Notifier announces finished runs
type Notifier interface {
	NotifyRun(ctx context.Context, run *models.Run) error
}

// DiscrepancyData is one inaccuracy as sent in a notification
type DiscrepancyData struct {
	Address  string `json:"address"`
	Expected string `json:"expected"`
	Delta    string `json:"delta"`
	Diff     string `json:"diff"`
}

// RunData is the run summary carried by a notification
type RunData struct {
	models.RunSummary
	Error         string            `json:"error,omitempty"`
	Proxy         string            `json:"proxy"`
	AddedKeys     []string          `json:"added_keys"`
	Discrepancies []DiscrepancyData `json:"discrepancies"`
}

// NewRunData builds the notification body for a run
func NewRunData(run *models.Run) RunData {
	data := RunData{
		RunSummary:    run.Summary(),
		Error:         run.Error,
		Proxy:         run.Proxy.Hex(),
		AddedKeys:     run.AddedKeys,
		Discrepancies: make([]DiscrepancyData, 0, len(run.Discrepancies)),
	}
	if data.AddedKeys == nil {
		data.AddedKeys = []string{}
	}
	for _, d := range run.Discrepancies {
		data.Discrepancies = append(data.Discrepancies, DiscrepancyData{
			Address:  d.Address.Hex(),
			Expected: d.Expected.String(),
			Delta:    d.Delta.String(),
			Diff:     d.Diff().String(),
		})
	}
	return data
}

// EventName classifies a run for subscribers
func EventName(run *models.Run) string {
	switch {
	case run.Status == models.RunFailed:
		return "run.failed"
	case len(run.Discrepancies) > 0:
		return "run.discrepancies"
	default:
		return "run.completed"
	}
}

// NewNotifier returns the configured notifier. Disabled notifications yield
// a notifier that only logs.
func NewNotifier(cfg config.NotificationConfig, metricsManager *metrics.Manager) Notifier {
	logger := utils.Component("notification")
	if !cfg.Enabled {
		return &logNotifier{logger: logger}
	}
	return &filteredNotifier{
		next:              NewWebhookSender(cfg, metricsManager),
		onlyOnDiscrepancy: cfg.OnlyOnDiscrepancy,
		logger:            logger,
	}
}

type logNotifier struct {
	logger *logrus.Entry
}

func (n *logNotifier) NotifyRun(_ context.Context, run *models.Run) error {
	n.logger.WithFields(logrus.Fields{
		"run_id": run.ID,
		"event":  EventName(run),
	}).Debug("Notifications disabled")
	return nil
}

// filteredNotifier drops clean runs when only discrepancies should be sent
type filteredNotifier struct {
	next              Notifier
	onlyOnDiscrepancy bool
	logger            *logrus.Entry
}

func (n *filteredNotifier) NotifyRun(ctx context.Context, run *models.Run) error {
	if n.onlyOnDiscrepancy && EventName(run) == "run.completed" {
		n.logger.WithField("run_id", run.ID).Debug("Clean run, notification skipped")
		return nil
	}
	return n.next.NotifyRun(ctx, run)
}
