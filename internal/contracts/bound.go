package contracts

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/edough-upgrade-check/internal/metrics"
	"github.com/smartdevs17/edough-upgrade-check/internal/signer"
	"github.com/smartdevs17/edough-upgrade-check/pkg/utils"
)

// BoundContract pairs an address with an ABI. Reads go through the caller,
// writes through the transactor.
type BoundContract struct {
	name           string
	address        common.Address
	abi            abi.ABI
	caller         ethereum.ContractCaller
	transactor     signer.Transactor
	metricsManager *metrics.Manager
	logger         *logrus.Entry
}

// Bind parses abiJSON and binds it to address
func Bind(name, abiJSON string, address common.Address, caller ethereum.ContractCaller, transactor signer.Transactor, metricsManager *metrics.Manager) (*BoundContract, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeInternal, "Failed to parse ABI", fmt.Sprintf("%s: %v", name, err))
	}

	return &BoundContract{
		name:           name,
		address:        address,
		abi:            parsed,
		caller:         caller,
		transactor:     transactor,
		metricsManager: metricsManager,
		logger:         utils.Component("contracts").WithFields(logrus.Fields{"contract": name, "address": address.Hex()}),
	}, nil
}

// Address returns the bound address
func (c *BoundContract) Address() common.Address {
	return c.address
}

// HasView reports whether method is a zero-argument accessor with one output
func (c *BoundContract) HasView(method string) bool {
	m, ok := c.abi.Methods[method]
	return ok && len(m.Inputs) == 0 && len(m.Outputs) == 1
}

// Call executes a read-only method at the latest block and decodes its outputs
func (c *BoundContract) Call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeInternal, "Failed to encode call", fmt.Sprintf("%s.%s: %v", c.name, method, err))
	}

	out, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &c.address, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", c.name, method, err)
	}

	if len(out) == 0 && len(c.abi.Methods[method].Outputs) > 0 {
		return nil, utils.NewAppError(utils.ErrCodeBlockchain, "Empty call result",
			fmt.Sprintf("%s.%s at %s", c.name, method, c.address.Hex()))
	}

	values, err := c.abi.Unpack(method, out)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeBlockchain, "Failed to decode call result",
			fmt.Sprintf("%s.%s: %v", c.name, method, err))
	}
	return values, nil
}

// Transact sends method as from and waits for the receipt
func (c *BoundContract) Transact(ctx context.Context, from common.Address, method string, args ...interface{}) (*types.Receipt, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeInternal, "Failed to encode transaction", fmt.Sprintf("%s.%s: %v", c.name, method, err))
	}

	logger := c.logger.WithFields(logrus.Fields{"method": method, "from": from.Hex()})
	logger.Debug("Sending transaction")

	receipt, err := c.transactor.Send(ctx, from, &c.address, data)
	status := "success"
	if err != nil {
		status = "error"
	}
	if m := c.metricsManager.GetPrometheusMetrics(); m != nil {
		m.RecordTransaction(method, status)
	}
	if err != nil {
		logger.WithError(err).Error("Transaction failed")
		return receipt, fmt.Errorf("%s.%s: %w", c.name, method, err)
	}

	logger.WithFields(logrus.Fields{
		"tx_hash":  receipt.TxHash.Hex(),
		"gas_used": receipt.GasUsed,
	}).Info("Transaction mined")
	return receipt, nil
}

// FormatValue renders a decoded ABI value for snapshots and reports
func FormatValue(value interface{}) string {
	switch v := value.(type) {
	case *big.Int:
		return v.String()
	case common.Address:
		return v.Hex()
	case common.Hash:
		return v.Hex()
	case [32]byte:
		return "0x" + hex.EncodeToString(v[:])
	case []byte:
		return "0x" + hex.EncodeToString(v)
	case bool:
		return fmt.Sprintf("%t", v)
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

// single extracts the only output of a call as T
func single[T any](c *BoundContract, method string, values []interface{}) (T, error) {
	var zero T
	if len(values) != 1 {
		return zero, utils.NewAppError(utils.ErrCodeBlockchain, "Unexpected output count",
			fmt.Sprintf("%s.%s returned %d values", c.name, method, len(values)))
	}
	v, ok := values[0].(T)
	if !ok {
		return zero, utils.NewAppError(utils.ErrCodeBlockchain, "Unexpected output type",
			fmt.Sprintf("%s.%s returned %T", c.name, method, values[0]))
	}
	return v, nil
}

func callSingle[T any](ctx context.Context, c *BoundContract, method string, args ...interface{}) (T, error) {
	values, err := c.Call(ctx, method, args...)
	if err != nil {
		var zero T
		return zero, err
	}
	return single[T](c, method, values)
}
