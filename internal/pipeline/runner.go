package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/edough-upgrade-check/internal/metrics"
	"github.com/smartdevs17/edough-upgrade-check/internal/migration"
	"github.com/smartdevs17/edough-upgrade-check/internal/models"
	"github.com/smartdevs17/edough-upgrade-check/internal/notification"
	"github.com/smartdevs17/edough-upgrade-check/internal/report"
	"github.com/smartdevs17/edough-upgrade-check/internal/storage"
	"github.com/smartdevs17/edough-upgrade-check/internal/upgrade"
	"github.com/smartdevs17/edough-upgrade-check/pkg/utils"
)

// Stage names used for metrics and logs
const (
	StageHolders          = "holders"
	StagePreviousSnapshot = "previous_snapshot"
	StageSwap             = "swap"
	StageUpgradedSnapshot = "upgraded_snapshot"
	StageWhitelist        = "whitelist"
	StageVerify           = "verify"
)

const persistTimeout = 30 * time.Second

// StateReader takes the before and after snapshots
type StateReader interface {
	Previous(ctx context.Context) (*models.StateSnapshot, error)
	Upgraded(ctx context.Context) (*models.StateSnapshot, error)
}

// ImplementationSwapper replaces the proxy implementation
type ImplementationSwapper interface {
	Swap(ctx context.Context) (*upgrade.Result, error)
}

// HolderVerifier migrates holders and checks their balance deltas
type HolderVerifier interface {
	Whitelist(ctx context.Context) error
	Verify(ctx context.Context, holders []common.Address) (*migration.Result, error)
}

// HolderLoader supplies the holder list
type HolderLoader interface {
	Load() ([]common.Address, error)
}

// Stages are the components a run drives in order
type Stages struct {
	Snapshots StateReader
	Swapper   ImplementationSwapper
	Verifier  HolderVerifier
	Holders   HolderLoader
}

// Options tune a run
type Options struct {
	Proxy             common.Address
	DryRun            bool
	FailOnDiscrepancy bool
}

// ErrDiscrepancies is returned after a completed run that found
// discrepancies when they are configured to fail the run.
var ErrDiscrepancies = utils.NewAppError(utils.ErrCodeProcessing, "Migration discrepancies found", "")

// Runner executes the snapshot, swap and migration stages in sequence and
// reports, stores and announces the resulting run.
type Runner struct {
	stages         Stages
	printer        *report.Printer
	store          storage.Storage
	notifier       notification.Notifier
	metricsManager *metrics.Manager
	opts           Options
	logger         *logrus.Entry
}

// NewRunner creates a runner. store, notifier and metricsManager may be nil.
func NewRunner(stages Stages, printer *report.Printer, store storage.Storage, notifier notification.Notifier, metricsManager *metrics.Manager, opts Options) *Runner {
	return &Runner{
		stages:         stages,
		printer:        printer,
		store:          store,
		notifier:       notifier,
		metricsManager: metricsManager,
		opts:           opts,
		logger:         utils.Component("pipeline"),
	}
}

// Run executes every stage. The returned run is non-nil even when a stage
// fails, carrying whatever was gathered up to the failure.
func (r *Runner) Run(ctx context.Context) (*models.Run, error) {
	id, err := utils.GenerateID()
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeInternal, "Failed to generate run ID", err.Error())
	}

	run := &models.Run{
		ID:        id,
		StartedAt: time.Now().UTC(),
		Status:    models.RunCompleted,
		DryRun:    r.opts.DryRun,
		Proxy:     r.opts.Proxy,
	}
	logger := r.logger.WithField("run_id", id)
	logger.WithField("dry_run", r.opts.DryRun).Info("Starting verification run")

	verified, runErr := r.execute(ctx, run)
	run.FinishedAt = time.Now().UTC()
	if runErr != nil {
		run.Status = models.RunFailed
		run.Error = runErr.Error()
		logger.WithError(runErr).Error("Verification run failed")
	}

	if verified || run.Holders != nil {
		r.printer.Print(run)
	} else if run.Previous != nil && run.Upgraded != nil {
		r.printer.PrintSnapshots(run.Previous, run.Upgraded, run.AddedKeys)
	}

	if pm := r.metricsManager.GetPrometheusMetrics(); pm != nil {
		pm.RecordRun(string(run.Status))
	}
	r.finish(ctx, run)

	logger.WithFields(logrus.Fields{
		"status":        run.Status,
		"holders":       len(run.Holders),
		"discrepancies": len(run.Discrepancies),
		"duration":      run.FinishedAt.Sub(run.StartedAt),
	}).Info("Verification run finished")

	if runErr != nil {
		return run, runErr
	}
	if r.opts.FailOnDiscrepancy && len(run.Discrepancies) > 0 {
		return run, ErrDiscrepancies
	}
	return run, nil
}

// execute runs the stages, reporting whether verification completed. The
// holder list is read before anything is sent to the chain.
func (r *Runner) execute(ctx context.Context, run *models.Run) (bool, error) {
	var holders []common.Address
	err := r.stage(StageHolders, func() (err error) {
		holders, err = r.stages.Holders.Load()
		return err
	})
	if err != nil {
		return false, err
	}

	err = r.stage(StagePreviousSnapshot, func() (err error) {
		run.Previous, err = r.stages.Snapshots.Previous(ctx)
		return err
	})
	if err != nil {
		return false, err
	}

	err = r.stage(StageSwap, func() error {
		result, err := r.stages.Swapper.Swap(ctx)
		if err != nil {
			return err
		}
		run.NewImplementation = result.NewImplementation
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("swap implementation: %w", err)
	}

	err = r.stage(StageUpgradedSnapshot, func() (err error) {
		run.Upgraded, err = r.stages.Snapshots.Upgraded(ctx)
		return err
	})
	if err != nil {
		return false, err
	}
	run.AddedKeys = models.AddedKeys(run.Previous, run.Upgraded)

	if err := r.stage(StageWhitelist, func() error { return r.stages.Verifier.Whitelist(ctx) }); err != nil {
		return false, err
	}

	var result *migration.Result
	err = r.stage(StageVerify, func() (err error) {
		result, err = r.stages.Verifier.Verify(ctx, holders)
		return err
	})
	if result != nil {
		run.Holders = result.Holders
		run.TotalStaked = result.TotalStaked
		run.Discrepancies = result.Discrepancies
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *Runner) stage(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	duration := time.Since(start)

	if pm := r.metricsManager.GetPrometheusMetrics(); pm != nil {
		pm.RecordStageDuration(name, duration)
	}
	r.logger.WithFields(logrus.Fields{
		"stage":    name,
		"duration": duration,
		"ok":       err == nil,
	}).Debug("Stage finished")
	return err
}

// finish persists and announces the run. Both outlive a cancelled run
// context so an interrupted run is still recorded.
func (r *Runner) finish(ctx context.Context, run *models.Run) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if r.store != nil {
		if err := r.store.SaveRun(ctx, run); err != nil {
			r.logger.WithError(err).WithField("run_id", run.ID).Error("Failed to store run")
		}
	}
	if r.notifier != nil {
		if err := r.notifier.NotifyRun(ctx, run); err != nil {
			r.logger.WithError(err).WithField("run_id", run.ID).Warn("Failed to notify run")
		}
	}
}
