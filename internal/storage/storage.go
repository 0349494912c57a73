package storage

import (
	"context"
	"time"

	"github.com/smartdevs17/edough-upgrade-check/internal/models"
)

// Storage defines the interface for verification run storage
type Storage interface {
	// Connection management
	Connect() error
	Close() error
	Ping() error
	Migrate() error

	// Run operations
	SaveRun(ctx context.Context, run *models.Run) error
	GetRun(ctx context.Context, id string) (*models.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]models.RunSummary, error)
	DeleteRun(ctx context.Context, id string) error

	// Statistics
	GetStorageStats(ctx context.Context) (*StorageStats, error)
}

// RunFilter narrows ListRuns. Zero values mean no restriction.
type RunFilter struct {
	Status models.RunStatus `json:"status,omitempty"`
	Limit  int              `json:"limit,omitempty"`
	Offset int              `json:"offset,omitempty"`
}

// StorageStats provides storage statistics
type StorageStats struct {
	TotalRuns          int64      `json:"total_runs"`
	FailedRuns         int64      `json:"failed_runs"`
	TotalDiscrepancies int64      `json:"total_discrepancies"`
	LatestRun          *time.Time `json:"latest_run,omitempty"`
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type             string        `json:"type"`
	ConnectionString string        `json:"connection_string"`
	MaxConnections   int           `json:"max_connections"`
	MaxIdleTime      time.Duration `json:"max_idle_time"`
}
