package contracts

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/smartdevs17/edough-upgrade-check/internal/metrics"
	"github.com/smartdevs17/edough-upgrade-check/internal/models"
	"github.com/smartdevs17/edough-upgrade-check/internal/signer"
	"github.com/smartdevs17/edough-upgrade-check/pkg/utils"
)

const migratedEvent = "MigratedToVeDOUGH"

// RewardEscrow is the logic view of the eDOUGH escrow proxy
type RewardEscrow struct {
	contract *BoundContract
}

// NewRewardEscrow binds the escrow logic ABI to address
func NewRewardEscrow(address common.Address, caller ethereum.ContractCaller, transactor signer.Transactor, metricsManager *metrics.Manager) (*RewardEscrow, error) {
	contract, err := Bind("RewardEscrow", RewardEscrowABI, address, caller, transactor, metricsManager)
	if err != nil {
		return nil, err
	}
	return &RewardEscrow{contract: contract}, nil
}

// Address returns the escrow (proxy) address
func (e *RewardEscrow) Address() common.Address {
	return e.contract.Address()
}

// ReadField reads a zero-argument state accessor and formats its value
func (e *RewardEscrow) ReadField(ctx context.Context, name string) (string, error) {
	if !e.contract.HasView(name) {
		return "", utils.NewAppError(utils.ErrCodeValidation, "Unknown state field", name)
	}
	values, err := e.contract.Call(ctx, name)
	if err != nil {
		return "", err
	}
	return FormatValue(values[0]), nil
}

// NumVestingEntries returns the length of a holder's vesting schedule
func (e *RewardEscrow) NumVestingEntries(ctx context.Context, holder common.Address) (uint64, error) {
	n, err := callSingle[*big.Int](ctx, e.contract, "numVestingEntries", holder)
	if err != nil {
		return 0, err
	}
	if !n.IsUint64() {
		return 0, utils.NewAppError(utils.ErrCodeBlockchain, "Vesting entry count out of range",
			fmt.Sprintf("%s: %s", holder.Hex(), n))
	}
	return n.Uint64(), nil
}

// VestingScheduleEntry returns the (timestamp, amount) pair at index
func (e *RewardEscrow) VestingScheduleEntry(ctx context.Context, holder common.Address, index uint64) (models.VestingEntry, error) {
	pair, err := callSingle[[2]*big.Int](ctx, e.contract, "getVestingScheduleEntry", holder, new(big.Int).SetUint64(index))
	if err != nil {
		return models.VestingEntry{}, err
	}
	return models.VestingEntry{Index: index, Timestamp: pair[0], Amount: pair[1]}, nil
}

// SetTimelock sets the SharesTimeLock pointer, sent as the escrow owner
func (e *RewardEscrow) SetTimelock(ctx context.Context, from, timelock common.Address) (*types.Receipt, error) {
	return e.contract.Transact(ctx, from, "setTimelock", timelock)
}

// MigrateToVeDOUGH migrates the sender's vested entries into veDOUGH
func (e *RewardEscrow) MigrateToVeDOUGH(ctx context.Context, holder common.Address) (*types.Receipt, error) {
	return e.contract.Transact(ctx, holder, "migrateToVeDOUGH")
}

// MigratedAmount returns the value of the MigratedToVeDOUGH event emitted
// for beneficiary in receipt.
func (e *RewardEscrow) MigratedAmount(receipt *types.Receipt, beneficiary common.Address) (*big.Int, bool) {
	if receipt == nil {
		return nil, false
	}
	event := e.contract.abi.Events[migratedEvent]
	topic := common.BytesToHash(beneficiary.Bytes())

	for _, log := range receipt.Logs {
		if log.Address != e.Address() || len(log.Topics) < 2 {
			continue
		}
		if log.Topics[0] != event.ID || log.Topics[1] != topic {
			continue
		}
		values, err := e.contract.abi.Unpack(migratedEvent, log.Data)
		if err != nil || len(values) != 1 {
			continue
		}
		if value, ok := values[0].(*big.Int); ok {
			return value, true
		}
	}
	return nil, false
}
