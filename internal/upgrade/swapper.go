package upgrade

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/edough-upgrade-check/internal/signer"
	"github.com/smartdevs17/edough-upgrade-check/pkg/utils"
)

// Proxy is the admin surface of the upgradeable proxy
type Proxy interface {
	Address() common.Address
	Implementation(ctx context.Context) (common.Address, error)
	ProxyOwner(ctx context.Context) (common.Address, error)
	SetImplementation(ctx context.Context, from, impl common.Address) (*types.Receipt, error)
}

// Result describes a completed implementation swap
type Result struct {
	Proxy                  common.Address `json:"proxy"`
	ProxyOwner             common.Address `json:"proxy_owner"`
	PreviousImplementation common.Address `json:"previous_implementation"`
	NewImplementation      common.Address `json:"new_implementation"`
	DeployTx               common.Hash    `json:"deploy_tx"`
	UpgradeTx              common.Hash    `json:"upgrade_tx"`
}

// Swapper deploys a new implementation and points the proxy at it
type Swapper struct {
	proxy    Proxy
	deployer signer.Transactor
	operator common.Address
	bytecode []byte
	logger   *logrus.Entry
}

// NewSwapper creates a swapper sending as operator
func NewSwapper(proxy Proxy, deployer signer.Transactor, operator common.Address, bytecode []byte) *Swapper {
	return &Swapper{
		proxy:    proxy,
		deployer: deployer,
		operator: operator,
		bytecode: bytecode,
		logger:   utils.Component("upgrade"),
	}
}

// Swap deploys the implementation, calls setImplementation and reads the
// implementation back. Any revert is fatal.
func (s *Swapper) Swap(ctx context.Context) (*Result, error) {
	result := &Result{Proxy: s.proxy.Address()}

	owner, err := s.proxy.ProxyOwner(ctx)
	if err != nil {
		return nil, fmt.Errorf("read proxy owner: %w", err)
	}
	result.ProxyOwner = owner
	if owner != s.operator {
		s.logger.WithFields(logrus.Fields{
			"proxy_owner": owner.Hex(),
			"operator":    s.operator.Hex(),
		}).Warn("Operator is not the proxy owner, setImplementation is expected to revert")
	}

	previous, err := s.proxy.Implementation(ctx)
	if err != nil {
		return nil, fmt.Errorf("read implementation: %w", err)
	}
	result.PreviousImplementation = previous

	receipt, err := s.deployer.Send(ctx, s.operator, nil, s.bytecode)
	if err != nil {
		return nil, fmt.Errorf("deploy implementation: %w", err)
	}
	if receipt.ContractAddress == (common.Address{}) {
		return nil, utils.NewAppError(utils.ErrCodeBlockchain, "Deployment returned no contract address", receipt.TxHash.Hex())
	}
	result.NewImplementation = receipt.ContractAddress
	result.DeployTx = receipt.TxHash

	s.logger.WithFields(logrus.Fields{
		"implementation": result.NewImplementation.Hex(),
		"tx_hash":        receipt.TxHash.Hex(),
	}).Info("Implementation deployed")

	receipt, err = s.proxy.SetImplementation(ctx, s.operator, result.NewImplementation)
	if err != nil {
		return nil, fmt.Errorf("set implementation: %w", err)
	}
	result.UpgradeTx = receipt.TxHash

	current, err := s.proxy.Implementation(ctx)
	if err != nil {
		return nil, fmt.Errorf("verify implementation: %w", err)
	}
	if current != result.NewImplementation {
		return nil, utils.NewAppError(utils.ErrCodeBlockchain, "Implementation mismatch after upgrade",
			fmt.Sprintf("expected %s, got %s", result.NewImplementation.Hex(), current.Hex()))
	}

	s.logger.WithFields(logrus.Fields{
		"proxy":    result.Proxy.Hex(),
		"previous": previous.Hex(),
		"current":  current.Hex(),
	}).Info("Proxy implementation swapped")

	return result, nil
}
