package migration

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/edough-upgrade-check/internal/config"
	"github.com/smartdevs17/edough-upgrade-check/internal/metrics"
	"github.com/smartdevs17/edough-upgrade-check/internal/models"
	"github.com/smartdevs17/edough-upgrade-check/pkg/utils"
)

// Escrow is the escrow surface the verifier reads and migrates through
type Escrow interface {
	Address() common.Address
	NumVestingEntries(ctx context.Context, holder common.Address) (uint64, error)
	VestingScheduleEntry(ctx context.Context, holder common.Address, index uint64) (models.VestingEntry, error)
	MigrateToVeDOUGH(ctx context.Context, holder common.Address) (*types.Receipt, error)
	MigratedAmount(receipt *types.Receipt, beneficiary common.Address) (*big.Int, bool)
}

// BalanceReader reads veDOUGH balances
type BalanceReader interface {
	BalanceOf(ctx context.Context, account common.Address) (*big.Int, error)
}

// ChainClock reports the latest block timestamp
type ChainClock interface {
	LatestTimestamp(ctx context.Context) (*big.Int, error)
}

// Whitelister grants the escrow permission to lock into veDOUGH
type Whitelister interface {
	SetWhitelisted(ctx context.Context, from, account common.Address, allowed bool) (*types.Receipt, error)
}

// Options tune a verification pass
type Options struct {
	Owner    common.Address
	Offset   *big.Int
	Decimals int32
	FailFast bool
	DryRun   bool
}

// OptionsFromConfig builds verifier options from configuration
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Owner:    config.Address(cfg.Contracts.Owner),
		Offset:   big.NewInt(cfg.Migration.VestingOffset),
		Decimals: cfg.Report.Decimals,
		FailFast: cfg.Migration.FailFast,
		DryRun:   cfg.Migration.DryRun,
	}
}

// Result is the outcome of verifying a holder list
type Result struct {
	Holders       []models.HolderRecord `json:"holders"`
	TotalStaked   *big.Int              `json:"total_staked"`
	Discrepancies []models.Discrepancy  `json:"discrepancies"`
}

// Verifier migrates each holder's eligible vesting entries and checks the
// veDOUGH balance delta matches.
type Verifier struct {
	escrow         Escrow
	token          BalanceReader
	clock          ChainClock
	timelock       Whitelister
	opts           Options
	logger         *logrus.Entry
	metricsManager *metrics.Manager
}

// NewVerifier creates a verifier
func NewVerifier(escrow Escrow, token BalanceReader, clock ChainClock, timelock Whitelister, opts Options, metricsManager *metrics.Manager) *Verifier {
	if opts.Offset == nil {
		opts.Offset = big.NewInt(DefaultVestingOffset)
	}
	return &Verifier{
		escrow:         escrow,
		token:          token,
		clock:          clock,
		timelock:       timelock,
		opts:           opts,
		logger:         utils.Component("migration"),
		metricsManager: metricsManager,
	}
}

// Whitelist allows the escrow to lock on the SharesTimeLock, sent as the
// owner. Dry runs send nothing.
func (v *Verifier) Whitelist(ctx context.Context) error {
	if v.opts.DryRun {
		v.logger.Info("Dry run, skipping escrow whitelisting")
		return nil
	}

	escrow := v.escrow.Address()
	v.logger.WithFields(logrus.Fields{
		"escrow": escrow.Hex(),
		"owner":  v.opts.Owner.Hex(),
	}).Info("Whitelisting escrow on shares timelock")

	if _, err := v.timelock.SetWhitelisted(ctx, v.opts.Owner, escrow, true); err != nil {
		return fmt.Errorf("whitelist escrow: %w", err)
	}
	return nil
}

// Eligibility reads holder's vesting schedule and sums the entries that are
// maturable at the latest block time, read once for the holder.
func (v *Verifier) Eligibility(ctx context.Context, holder common.Address) (models.HolderRecord, error) {
	record := models.HolderRecord{Address: holder, Eligible: new(big.Int)}

	now, err := v.clock.LatestTimestamp(ctx)
	if err != nil {
		return record, fmt.Errorf("read chain time: %w", err)
	}

	n, err := v.escrow.NumVestingEntries(ctx, holder)
	if err != nil {
		return record, fmt.Errorf("read vesting entry count: %w", err)
	}
	record.Entries = n

	// n comes from the contract; entries are summed as they are read.
	for i := uint64(0); i < n; i++ {
		if err := ctx.Err(); err != nil {
			return record, err
		}
		entry, err := v.escrow.VestingScheduleEntry(ctx, holder, i)
		if err != nil {
			return record, fmt.Errorf("read vesting entry %d: %w", i, err)
		}
		addEligible(record.Eligible, entry, now, v.opts.Offset)
	}
	return record, nil
}

// Verify processes holders in order. With FailFast the first error aborts
// the batch; otherwise the holder is recorded as failed and the batch
// continues.
func (v *Verifier) Verify(ctx context.Context, holders []common.Address) (*Result, error) {
	result := &Result{TotalStaked: new(big.Int)}

	v.logger.WithFields(logrus.Fields{
		"holders":   len(holders),
		"dry_run":   v.opts.DryRun,
		"fail_fast": v.opts.FailFast,
	}).Info("Verifying veDOUGH migration")

	for i, holder := range holders {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		record, err := v.processHolder(ctx, holder)
		if record.Eligible != nil {
			result.TotalStaked.Add(result.TotalStaked, record.Eligible)
		}

		if err != nil {
			record.Outcome = models.HolderFailed
			record.Error = err.Error()
			result.Holders = append(result.Holders, record)
			v.recordHolder(record)

			v.logger.WithFields(logrus.Fields{
				"holder": holder.Hex(),
				"index":  i,
				"error":  err,
			}).Error("Holder verification failed")

			if v.opts.FailFast {
				return result, fmt.Errorf("holder %s: %w", holder.Hex(), err)
			}
			continue
		}

		result.Holders = append(result.Holders, record)
		v.recordHolder(record)

		if record.Outcome == models.HolderMigrated && record.Delta.Cmp(record.Eligible) != 0 {
			d := models.Discrepancy{Address: holder, Expected: record.Eligible, Delta: record.Delta}
			result.Discrepancies = append(result.Discrepancies, d)
			if m := v.metricsManager.GetPrometheusMetrics(); m != nil {
				m.RecordDiscrepancy()
			}
			v.logger.WithFields(logrus.Fields{
				"holder":   holder.Hex(),
				"expected": d.Expected.String(),
				"delta":    d.Delta.String(),
			}).Warn("Balance delta differs from eligible amount")
		}
	}

	if m := v.metricsManager.GetPrometheusMetrics(); m != nil {
		m.UpdateEligibleAmount(decimal.NewFromBigInt(result.TotalStaked, -v.opts.Decimals).InexactFloat64())
	}

	v.logger.WithFields(logrus.Fields{
		"holders":       len(result.Holders),
		"total_staked":  result.TotalStaked.String(),
		"discrepancies": len(result.Discrepancies),
	}).Info("Migration verification finished")

	return result, nil
}

func (v *Verifier) processHolder(ctx context.Context, holder common.Address) (models.HolderRecord, error) {
	record, err := v.Eligibility(ctx, holder)
	if err != nil {
		return record, err
	}

	logger := v.logger.WithFields(logrus.Fields{
		"holder":   holder.Hex(),
		"entries":  record.Entries,
		"eligible": record.Eligible.String(),
	})

	if record.Eligible.Sign() == 0 {
		record.Outcome = models.HolderSkipped
		logger.Debug("Nothing eligible for migration")
		return record, nil
	}
	if v.opts.DryRun {
		record.Outcome = models.HolderEligible
		logger.Info("Holder eligible for migration")
		return record, nil
	}

	before, err := v.token.BalanceOf(ctx, holder)
	if err != nil {
		return record, fmt.Errorf("read balance before migration: %w", err)
	}
	record.BalanceBefore = before

	receipt, err := v.escrow.MigrateToVeDOUGH(ctx, holder)
	if receipt != nil {
		record.TxHash = receipt.TxHash.Hex()
	}
	if err != nil {
		return record, fmt.Errorf("migrate to veDOUGH: %w", err)
	}
	if value, ok := v.escrow.MigratedAmount(receipt, holder); ok {
		record.EventValue = value
	}

	after, err := v.token.BalanceOf(ctx, holder)
	if err != nil {
		return record, fmt.Errorf("read balance after migration: %w", err)
	}
	record.BalanceAfter = after
	record.Delta = new(big.Int).Sub(after, before)
	record.Outcome = models.HolderMigrated

	logger.WithField("delta", record.Delta.String()).Info("Holder migrated")
	return record, nil
}

func (v *Verifier) recordHolder(record models.HolderRecord) {
	if m := v.metricsManager.GetPrometheusMetrics(); m != nil {
		m.RecordHolderProcessed(string(record.Outcome))
	}
}
