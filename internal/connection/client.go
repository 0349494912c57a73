package connection

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/edough-upgrade-check/internal/metrics"
	"github.com/smartdevs17/edough-upgrade-check/pkg/utils"
)

// ChainClient wraps ethclient.Client. Reads are bounded by the retry policy;
// anything that changes chain state is attempted once.
type ChainClient struct {
	manager        *ConnectionManager
	policy         RetryPolicy
	logger         *logrus.Entry
	metricsManager *metrics.Manager
}

// NewChainClient creates a new client wrapper
func NewChainClient(manager *ConnectionManager, policy RetryPolicy, metricsManager *metrics.Manager) *ChainClient {
	return &ChainClient{
		manager:        manager,
		policy:         policy,
		logger:         utils.Component("chain_client"),
		metricsManager: metricsManager,
	}
}

// CallContract executes a read-only message call
func (cc *ChainClient) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	var out []byte
	err := cc.read(ctx, "eth_call", func(ctx context.Context, client *ethclient.Client) error {
		var err error
		out, err = client.CallContract(ctx, msg, blockNumber)
		return err
	})
	return out, err
}

// LatestHeader returns the header of the latest block
func (cc *ChainClient) LatestHeader(ctx context.Context) (*types.Header, error) {
	var header *types.Header
	err := cc.read(ctx, "eth_getBlockByNumber", func(ctx context.Context, client *ethclient.Client) error {
		var err error
		header, err = client.HeaderByNumber(ctx, nil)
		return err
	})
	return header, err
}

// LatestTimestamp returns the timestamp of the latest block
func (cc *ChainClient) LatestTimestamp(ctx context.Context) (*big.Int, error) {
	header, err := cc.LatestHeader(ctx)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetUint64(header.Time), nil
}

// BalanceAt returns the native balance of an account at the latest block
func (cc *ChainClient) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	var balance *big.Int
	err := cc.read(ctx, "eth_getBalance", func(ctx context.Context, client *ethclient.Client) error {
		var err error
		balance, err = client.BalanceAt(ctx, account, nil)
		return err
	})
	return balance, err
}

// PendingNonceAt returns the next nonce for an account
func (cc *ChainClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	var nonce uint64
	err := cc.read(ctx, "eth_getTransactionCount", func(ctx context.Context, client *ethclient.Client) error {
		var err error
		nonce, err = client.PendingNonceAt(ctx, account)
		return err
	})
	return nonce, err
}

// SuggestGasPrice returns the node's gas price suggestion
func (cc *ChainClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	var price *big.Int
	err := cc.read(ctx, "eth_gasPrice", func(ctx context.Context, client *ethclient.Client) error {
		var err error
		price, err = client.SuggestGasPrice(ctx)
		return err
	})
	return price, err
}

// EstimateGas estimates the gas needed by a message
func (cc *ChainClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	var gas uint64
	err := cc.read(ctx, "eth_estimateGas", func(ctx context.Context, client *ethclient.Client) error {
		var err error
		gas, err = client.EstimateGas(ctx, msg)
		return err
	})
	return gas, err
}

// ChainID returns the chain ID of the connected node
func (cc *ChainClient) ChainID(ctx context.Context) (*big.Int, error) {
	return cc.manager.ChainID(ctx)
}

// SendTransaction submits a signed transaction. It is never retried.
func (cc *ChainClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return cc.once(ctx, "eth_sendRawTransaction", func(ctx context.Context, client *ethclient.Client) error {
		return client.SendTransaction(ctx, tx)
	})
}

// TransactionReceipt fetches a receipt once. ethereum.NotFound is returned
// as is while the transaction is pending.
func (cc *ChainClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	err := cc.once(ctx, "eth_getTransactionReceipt", func(ctx context.Context, client *ethclient.Client) error {
		var err error
		receipt, err = client.TransactionReceipt(ctx, txHash)
		return err
	})
	return receipt, err
}

// CallContext performs a raw JSON-RPC call once, used for node-specific
// methods such as account impersonation and eth_sendTransaction.
func (cc *ChainClient) CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	return cc.once(ctx, method, func(ctx context.Context, _ *ethclient.Client) error {
		rpcClient, err := cc.manager.RPC(ctx)
		if err != nil {
			return err
		}
		return rpcClient.CallContext(ctx, result, method, args...)
	})
}

// read runs a read-only operation under the retry policy. A transport
// failure triggers a reconnect, which starts from the next configured node.
func (cc *ChainClient) read(ctx context.Context, method string, op func(ctx context.Context, client *ethclient.Client) error) error {
	start := time.Now()
	err := cc.policy.Do(ctx, func(ctx context.Context) error {
		client, err := cc.manager.Client(ctx)
		if err != nil {
			return err
		}
		return op(ctx, client)
	}, func(retry int, err error) {
		cc.logger.WithFields(logrus.Fields{"method": method, "retry": retry, "error": err}).Warn("Retrying RPC request")
		if m := cc.metricsManager.GetPrometheusMetrics(); m != nil {
			m.RecordRPCRetry(method)
		}
		if IsConnectionError(err) {
			if rerr := cc.manager.Reconnect(ctx); rerr != nil {
				cc.logger.WithFields(logrus.Fields{"method": method, "error": rerr}).Warn("Reconnect failed")
			}
		}
	})
	cc.record(method, err, time.Since(start))

	if utils.IsCode(err, utils.ErrCodeConnection) {
		return err
	}
	return cc.wrap(method, err)
}

// once runs an operation a single time under the request timeout
func (cc *ChainClient) once(ctx context.Context, method string, op func(ctx context.Context, client *ethclient.Client) error) error {
	client, err := cc.manager.Client(ctx)
	if err != nil {
		return err
	}

	start := time.Now()
	single := cc.policy
	single.Attempts = 1
	err = single.Do(ctx, func(ctx context.Context) error {
		return op(ctx, client)
	}, nil)
	cc.record(method, err, time.Since(start))

	return cc.wrap(method, err)
}

func (cc *ChainClient) record(method string, err error, duration time.Duration) {
	m := cc.metricsManager.GetPrometheusMetrics()
	if m == nil {
		return
	}
	status := "success"
	if err != nil && !errors.Is(err, ethereum.NotFound) {
		status = "error"
	}
	m.RecordRPCRequest(method, status, duration)
}

// wrap converts node errors to BLOCKCHAIN_ERROR, leaving ethereum.NotFound
// and context errors untouched.
func (cc *ChainClient) wrap(method string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ethereum.NotFound) || errors.Is(err, context.Canceled) {
		return err
	}

	cc.logger.WithFields(logrus.Fields{"method": method, "error": err}).Error("RPC request failed")
	message := "RPC request failed: " + method
	if IsRevert(err) {
		message = "Execution reverted: " + method
	}
	return utils.NewAppError(utils.ErrCodeBlockchain, message, err.Error())
}
