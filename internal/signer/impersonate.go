package signer

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/edough-upgrade-check/pkg/utils"
)

// ImpersonatingTransactor sends unsigned transactions from arbitrary
// accounts on a development node (hardhat, anvil) that supports account
// impersonation.
type ImpersonatingTransactor struct {
	backend  Backend
	waiter   *ReceiptWaiter
	prefix   string
	fund     *big.Int
	gasLimit uint64

	mu           sync.Mutex
	impersonated map[common.Address]bool
	logger       *logrus.Entry
}

// NewImpersonatingTransactor creates a transactor using <prefix>_impersonateAccount.
// When fund is positive, senders are topped up to it with <prefix>_setBalance.
func NewImpersonatingTransactor(backend Backend, waiter *ReceiptWaiter, prefix string, fund *big.Int, gasLimit uint64) *ImpersonatingTransactor {
	return &ImpersonatingTransactor{
		backend:      backend,
		waiter:       waiter,
		prefix:       prefix,
		fund:         fund,
		gasLimit:     gasLimit,
		impersonated: make(map[common.Address]bool),
		logger:       utils.Component("impersonating_transactor"),
	}
}

// sendArgs is the eth_sendTransaction parameter object
type sendArgs struct {
	From common.Address  `json:"from"`
	To   *common.Address `json:"to,omitempty"`
	Data hexutil.Bytes   `json:"data"`
	Gas  *hexutil.Uint64 `json:"gas,omitempty"`
}

// Send implements Transactor
func (it *ImpersonatingTransactor) Send(ctx context.Context, from common.Address, to *common.Address, data []byte) (*types.Receipt, error) {
	if err := it.prepare(ctx, from); err != nil {
		return nil, err
	}

	args := sendArgs{From: from, To: to, Data: data}
	if it.gasLimit > 0 {
		gas := hexutil.Uint64(it.gasLimit)
		args.Gas = &gas
	}

	var txHash common.Hash
	if err := it.backend.CallContext(ctx, &txHash, "eth_sendTransaction", args); err != nil {
		return nil, err
	}

	it.logger.WithFields(logrus.Fields{
		"from":    from.Hex(),
		"to":      addressOrCreate(to),
		"tx_hash": txHash.Hex(),
	}).Debug("Transaction sent")

	return it.waiter.Wait(ctx, txHash)
}

// prepare impersonates and funds an account the first time it sends
func (it *ImpersonatingTransactor) prepare(ctx context.Context, account common.Address) error {
	it.mu.Lock()
	defer it.mu.Unlock()

	if it.impersonated[account] {
		return nil
	}

	if err := it.backend.CallContext(ctx, nil, it.prefix+"_impersonateAccount", account); err != nil {
		return utils.NewAppError(utils.ErrCodeBlockchain, "Failed to impersonate account",
			fmt.Sprintf("%s: %v", account.Hex(), err))
	}

	if it.fund != nil && it.fund.Sign() > 0 {
		balance, err := it.backend.BalanceAt(ctx, account)
		if err != nil {
			return err
		}
		if balance.Cmp(it.fund) < 0 {
			if err := it.backend.CallContext(ctx, nil, it.prefix+"_setBalance", account, (*hexutil.Big)(it.fund)); err != nil {
				return utils.NewAppError(utils.ErrCodeBlockchain, "Failed to fund account",
					fmt.Sprintf("%s: %v", account.Hex(), err))
			}
		}
	}

	it.impersonated[account] = true
	it.logger.WithField("account", account.Hex()).Info("Impersonating account")
	return nil
}

func addressOrCreate(to *common.Address) string {
	if to == nil {
		return "create"
	}
	return to.Hex()
}
