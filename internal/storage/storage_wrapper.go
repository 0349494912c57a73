package storage

import (
	"context"
	"time"

	"github.com/smartdevs17/edough-upgrade-check/internal/metrics"
	"github.com/smartdevs17/edough-upgrade-check/internal/models"
)

// StorageWithMetrics wraps a storage implementation with metrics
type StorageWithMetrics struct {
	Storage
	metricsManager *metrics.Manager
}

// NewStorageWithMetrics creates a storage wrapper with metrics
func NewStorageWithMetrics(storage Storage, metricsManager *metrics.Manager) *StorageWithMetrics {
	return &StorageWithMetrics{
		Storage:        storage,
		metricsManager: metricsManager,
	}
}

// SaveRun saves a run and records metrics
func (s *StorageWithMetrics) SaveRun(ctx context.Context, run *models.Run) error {
	start := time.Now()
	err := s.Storage.SaveRun(ctx, run)
	s.record("insert", "runs", err, start)
	return err
}

// GetRun loads a run and records metrics
func (s *StorageWithMetrics) GetRun(ctx context.Context, id string) (*models.Run, error) {
	start := time.Now()
	run, err := s.Storage.GetRun(ctx, id)
	s.record("select", "runs", err, start)
	return run, err
}

// ListRuns lists runs and records metrics
func (s *StorageWithMetrics) ListRuns(ctx context.Context, filter RunFilter) ([]models.RunSummary, error) {
	start := time.Now()
	runs, err := s.Storage.ListRuns(ctx, filter)
	s.record("list", "runs", err, start)
	return runs, err
}

// DeleteRun deletes a run and records metrics
func (s *StorageWithMetrics) DeleteRun(ctx context.Context, id string) error {
	start := time.Now()
	err := s.Storage.DeleteRun(ctx, id)
	s.record("delete", "runs", err, start)
	return err
}

func (s *StorageWithMetrics) record(operation, table string, err error, start time.Time) {
	pm := s.metricsManager.GetPrometheusMetrics()
	if pm == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	pm.RecordDatabaseOperation(operation, table, status, time.Since(start))
}
