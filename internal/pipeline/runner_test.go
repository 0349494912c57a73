package pipeline

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/edough-upgrade-check/internal/config"
	"github.com/smartdevs17/edough-upgrade-check/internal/metrics"
	"github.com/smartdevs17/edough-upgrade-check/internal/migration"
	"github.com/smartdevs17/edough-upgrade-check/internal/models"
	"github.com/smartdevs17/edough-upgrade-check/internal/report"
	"github.com/smartdevs17/edough-upgrade-check/internal/storage"
	"github.com/smartdevs17/edough-upgrade-check/internal/upgrade"
	"github.com/smartdevs17/edough-upgrade-check/pkg/utils"
)

var (
	holderA = common.HexToAddress("0x01")
	newImpl = common.HexToAddress("0x0b")
)

type fakeStages struct {
	calls      []string
	swapErr    error
	verifyErr  error
	holdersErr error
	result     *migration.Result
}

func (f *fakeStages) Previous(context.Context) (*models.StateSnapshot, error) {
	f.calls = append(f.calls, "previous")
	s := &models.StateSnapshot{}
	s.Set("dough", "0xd")
	return s, nil
}

func (f *fakeStages) Upgraded(context.Context) (*models.StateSnapshot, error) {
	f.calls = append(f.calls, "upgraded")
	s := &models.StateSnapshot{}
	s.Set("dough", "0xd")
	s.Set("sharesTimeLock", "0xt")
	return s, nil
}

func (f *fakeStages) Swap(context.Context) (*upgrade.Result, error) {
	f.calls = append(f.calls, "swap")
	if f.swapErr != nil {
		return nil, f.swapErr
	}
	return &upgrade.Result{NewImplementation: newImpl}, nil
}

func (f *fakeStages) Whitelist(context.Context) error {
	f.calls = append(f.calls, "whitelist")
	return nil
}

func (f *fakeStages) Load() ([]common.Address, error) {
	f.calls = append(f.calls, "holders")
	return []common.Address{holderA}, f.holdersErr
}

func (f *fakeStages) Verify(_ context.Context, holders []common.Address) (*migration.Result, error) {
	f.calls = append(f.calls, "verify")
	return f.result, f.verifyErr
}

type fakeNotifier struct {
	runs []*models.Run
}

func (f *fakeNotifier) NotifyRun(_ context.Context, run *models.Run) error {
	f.runs = append(f.runs, run)
	return nil
}

func newRunner(t *testing.T, f *fakeStages, opts Options) (*Runner, *bytes.Buffer, storage.Storage, *fakeNotifier, *metrics.Manager) {
	t.Helper()
	store, err := storage.Open(&config.StorageConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "runs.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	var out bytes.Buffer
	notifier := &fakeNotifier{}
	manager := metrics.NewManager()
	stages := Stages{Snapshots: f, Swapper: f, Verifier: f, Holders: f}
	return NewRunner(stages, report.NewPrinter(&out, false, 0), store, notifier, manager, opts), &out, store, notifier, manager
}

func discrepancyResult() *migration.Result {
	return &migration.Result{
		TotalStaked: big.NewInt(1000),
		Holders: []models.HolderRecord{
			{Address: holderA, Eligible: big.NewInt(1000), Delta: big.NewInt(900), Outcome: models.HolderMigrated},
		},
		Discrepancies: []models.Discrepancy{{Address: holderA, Expected: big.NewInt(1000), Delta: big.NewInt(900)}},
	}
}

func TestRunExecutesStagesInOrder(t *testing.T) {
	f := &fakeStages{result: discrepancyResult()}
	runner, out, store, notifier, manager := newRunner(t, f, Options{})

	run, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"holders", "previous", "swap", "upgraded", "whitelist", "verify"}, f.calls)
	assert.Equal(t, models.RunCompleted, run.Status)
	assert.Equal(t, newImpl, run.NewImplementation)
	assert.Equal(t, []string{"sharesTimeLock"}, run.AddedKeys)
	assert.Contains(t, out.String(), "+ state[sharesTimeLock] = 0xt")
	assert.Contains(t, out.String(), "Found 1 inaccuracies:")

	stored, err := store.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Discrepancies, 1)
	require.Len(t, notifier.runs, 1)
	assert.Equal(t, run.ID, notifier.runs[0].ID)

	pm := manager.GetPrometheusMetrics()
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.RunsTotal.WithLabelValues("completed")))
	assert.Equal(t, 6, testutil.CollectAndCount(pm.StageDuration))
}

func TestRunFailOnDiscrepancy(t *testing.T) {
	f := &fakeStages{result: discrepancyResult()}
	runner, _, _, _, _ := newRunner(t, f, Options{FailOnDiscrepancy: true})

	run, err := runner.Run(context.Background())
	assert.ErrorIs(t, err, ErrDiscrepancies)
	assert.Equal(t, models.RunCompleted, run.Status)

	clean := &fakeStages{result: &migration.Result{TotalStaked: big.NewInt(0)}}
	runner, _, _, _, _ = newRunner(t, clean, Options{FailOnDiscrepancy: true})
	_, err = runner.Run(context.Background())
	assert.NoError(t, err)
}

func TestRunStopsAtFailedSwap(t *testing.T) {
	f := &fakeStages{swapErr: utils.NewAppError(utils.ErrCodeBlockchain, "Transaction reverted", "")}
	runner, out, store, notifier, manager := newRunner(t, f, Options{})

	run, err := runner.Run(context.Background())
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.ErrCodeBlockchain))
	assert.Equal(t, []string{"holders", "previous", "swap"}, f.calls)
	assert.Equal(t, models.RunFailed, run.Status)
	assert.Contains(t, run.Error, "swap implementation")
	assert.Empty(t, out.String())

	stored, err := store.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunFailed, stored.Status)
	assert.Len(t, notifier.runs, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(manager.GetPrometheusMetrics().RunsTotal.WithLabelValues("failed")))
}

func TestRunKeepsPartialVerification(t *testing.T) {
	partial := &migration.Result{
		TotalStaked: big.NewInt(10),
		Holders: []models.HolderRecord{
			{Address: holderA, Eligible: big.NewInt(10), Outcome: models.HolderFailed, Error: "migrate to veDOUGH: reverted"},
		},
	}
	f := &fakeStages{result: partial, verifyErr: errors.New("holder 0x01: migrate to veDOUGH: reverted")}
	runner, out, _, _, _ := newRunner(t, f, Options{})

	run, err := runner.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, models.RunFailed, run.Status)
	assert.Len(t, run.Holders, 1)
	assert.Contains(t, out.String(), "Failed holders: 1")
}

func TestRunHolderLoadFailureSendsNothing(t *testing.T) {
	f := &fakeStages{holdersErr: utils.NewAppError(utils.ErrCodeConfiguration, "Failed to open holders file", "")}
	runner, out, _, notifier, _ := newRunner(t, f, Options{})

	run, err := runner.Run(context.Background())
	assert.True(t, utils.IsCode(err, utils.ErrCodeConfiguration))
	assert.Equal(t, []string{"holders"}, f.calls)
	assert.Equal(t, models.RunFailed, run.Status)
	assert.Empty(t, out.String())
	assert.Len(t, notifier.runs, 1)
}

func TestRunWithoutOptionalComponents(t *testing.T) {
	f := &fakeStages{result: &migration.Result{TotalStaked: big.NewInt(0)}}
	var out bytes.Buffer
	runner := NewRunner(Stages{Snapshots: f, Swapper: f, Verifier: f, Holders: f},
		report.NewPrinter(&out, false, 0), nil, nil, nil, Options{DryRun: true})

	run, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, run.DryRun)
	assert.Contains(t, out.String(), "Dry run")
}
