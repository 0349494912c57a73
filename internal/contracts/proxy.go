package contracts

import (
	"context"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/smartdevs17/edough-upgrade-check/internal/metrics"
	"github.com/smartdevs17/edough-upgrade-check/internal/signer"
)

// ProxyAdmin is the PProxy admin view of the escrow address. It shares the
// address with RewardEscrow but only knows the proxy's own selectors.
type ProxyAdmin struct {
	contract *BoundContract
}

// NewProxyAdmin binds the PProxy ABI to address
func NewProxyAdmin(address common.Address, caller ethereum.ContractCaller, transactor signer.Transactor, metricsManager *metrics.Manager) (*ProxyAdmin, error) {
	contract, err := Bind("PProxy", PProxyABI, address, caller, transactor, metricsManager)
	if err != nil {
		return nil, err
	}
	return &ProxyAdmin{contract: contract}, nil
}

// Address returns the proxy address
func (p *ProxyAdmin) Address() common.Address {
	return p.contract.Address()
}

// Implementation returns the current logic contract
func (p *ProxyAdmin) Implementation(ctx context.Context) (common.Address, error) {
	return callSingle[common.Address](ctx, p.contract, "getImplementation")
}

// ProxyOwner returns the account allowed to change the implementation
func (p *ProxyAdmin) ProxyOwner(ctx context.Context) (common.Address, error) {
	return callSingle[common.Address](ctx, p.contract, "getProxyOwner")
}

// SetImplementation points the proxy at impl
func (p *ProxyAdmin) SetImplementation(ctx context.Context, from, impl common.Address) (*types.Receipt, error) {
	return p.contract.Transact(ctx, from, "setImplementation", impl)
}
