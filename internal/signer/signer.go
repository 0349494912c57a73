package signer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/edough-upgrade-check/internal/config"
	"github.com/smartdevs17/edough-upgrade-check/pkg/utils"
)

// Transactor sends a state-changing call as the given account and returns
// its mined receipt. A nil to deploys data as contract creation code.
type Transactor interface {
	Send(ctx context.Context, from common.Address, to *common.Address, data []byte) (*types.Receipt, error)
}

// ReceiptReader fetches transaction receipts
type ReceiptReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Backend is the node surface both transactors need
type Backend interface {
	ReceiptReader
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// New builds the transactor selected by signer.mode
func New(cfg config.SignerConfig, chain config.ChainConfig, backend Backend) (Transactor, error) {
	waiter := NewReceiptWaiter(backend, chain.ReceiptPollInterval, chain.ReceiptTimeout)

	switch cfg.Mode {
	case "impersonate":
		fund := new(big.Int)
		if cfg.FundWei != "" {
			if _, ok := fund.SetString(cfg.FundWei, 10); !ok {
				return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Invalid signer fund amount", cfg.FundWei)
			}
		}
		return NewImpersonatingTransactor(backend, waiter, cfg.RPCPrefix, fund, cfg.GasLimit), nil
	case "key":
		return NewKeyedTransactor(backend, waiter, cfg.PrivateKeys, cfg.GasLimit)
	default:
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Unsupported signer mode", cfg.Mode)
	}
}

// ReceiptWaiter polls for a transaction receipt until it is mined
type ReceiptWaiter struct {
	reader   ReceiptReader
	interval time.Duration
	timeout  time.Duration
	logger   *logrus.Entry
}

// NewReceiptWaiter creates a receipt poller
func NewReceiptWaiter(reader ReceiptReader, interval, timeout time.Duration) *ReceiptWaiter {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return &ReceiptWaiter{
		reader:   reader,
		interval: interval,
		timeout:  timeout,
		logger:   utils.Component("receipt_waiter"),
	}
}

// Wait blocks until the transaction is mined. A mined but reverted
// transaction returns its receipt together with a BLOCKCHAIN_ERROR.
func (w *ReceiptWaiter) Wait(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		receipt, err := w.reader.TransactionReceipt(ctx, txHash)
		switch {
		case err == nil:
			w.logger.WithFields(logrus.Fields{
				"tx_hash":  txHash.Hex(),
				"block":    receipt.BlockNumber,
				"gas_used": receipt.GasUsed,
				"status":   receipt.Status,
			}).Debug("Transaction mined")

			if receipt.Status == types.ReceiptStatusFailed {
				return receipt, utils.NewAppError(utils.ErrCodeBlockchain, "Transaction reverted", txHash.Hex())
			}
			return receipt, nil
		case !errors.Is(err, ethereum.NotFound):
			return nil, err
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, utils.NewAppError(utils.ErrCodeBlockchain, "Timed out waiting for receipt",
					fmt.Sprintf("%s after %s", txHash.Hex(), w.timeout))
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
