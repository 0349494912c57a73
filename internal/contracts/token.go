package contracts

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/smartdevs17/edough-upgrade-check/internal/metrics"
	"github.com/smartdevs17/edough-upgrade-check/internal/signer"
)

// SharesTimeLock is the veDOUGH timelock whitelist
type SharesTimeLock struct {
	contract *BoundContract
}

// NewSharesTimeLock binds the timelock ABI to address
func NewSharesTimeLock(address common.Address, caller ethereum.ContractCaller, transactor signer.Transactor, metricsManager *metrics.Manager) (*SharesTimeLock, error) {
	contract, err := Bind("SharesTimeLock", SharesTimeLockABI, address, caller, transactor, metricsManager)
	if err != nil {
		return nil, err
	}
	return &SharesTimeLock{contract: contract}, nil
}

// Address returns the timelock address
func (s *SharesTimeLock) Address() common.Address {
	return s.contract.Address()
}

// SetWhitelisted grants or revokes account's permission to lock on behalf of others
func (s *SharesTimeLock) SetWhitelisted(ctx context.Context, from, account common.Address, allowed bool) (*types.Receipt, error) {
	return s.contract.Transact(ctx, from, "setWhitelisted", account, allowed)
}

// ERC20 is a read-only token handle
type ERC20 struct {
	contract *BoundContract
}

// NewERC20 binds the token ABI to address
func NewERC20(address common.Address, caller ethereum.ContractCaller, metricsManager *metrics.Manager) (*ERC20, error) {
	contract, err := Bind("ERC20", ERC20ABI, address, caller, nil, metricsManager)
	if err != nil {
		return nil, err
	}
	return &ERC20{contract: contract}, nil
}

// Address returns the token address
func (t *ERC20) Address() common.Address {
	return t.contract.Address()
}

// BalanceOf returns the token balance of account
func (t *ERC20) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	return callSingle[*big.Int](ctx, t.contract, "balanceOf", account)
}
