package upgrade

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/edough-upgrade-check/pkg/utils"
)

var (
	proxyAddress = common.HexToAddress("0x63cbd1858bd79de1a06c3c26462db360b834912d")
	operator     = common.HexToAddress("0x3bfda5285416eb06ebc8bc0abf7d105813af06d0")
	newImpl      = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	oldImpl      = common.HexToAddress("0x00000000000000000000000000000000000000b1")
)

func TestParseBytecode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []byte
		errCode string
	}{
		{"hardhat artifact", `{"contractName":"RewardEscrow","bytecode":"0x6080604052"}`, []byte{0x60, 0x80, 0x60, 0x40, 0x52}, ""},
		{"foundry artifact", `{"bytecode":{"object":"0x6080"}}`, []byte{0x60, 0x80}, ""},
		{"raw hex", "0x6080\n", []byte{0x60, 0x80}, ""},
		{"raw hex without prefix", "6080", []byte{0x60, 0x80}, ""},
		{"upper case prefix", "0X6080", []byte{0x60, 0x80}, ""},
		{"empty file", "", nil, utils.ErrCodeValidation},
		{"odd length", "0x608", nil, utils.ErrCodeValidation},
		{"empty bytecode", `{"bytecode":"0x"}`, nil, utils.ErrCodeValidation},
		{"missing field", `{"abi":[]}`, nil, utils.ErrCodeValidation},
		{"unlinked library", "0x60__$abc$__80", nil, utils.ErrCodeValidation},
		{"bad hex", "0xzz", nil, utils.ErrCodeValidation},
		{"bad json", `{"bytecode":`, nil, utils.ErrCodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBytecode([]byte(tt.input))
			if tt.errCode != "" {
				assert.True(t, utils.IsCode(err, tt.errCode), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadBytecode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "RewardEscrow.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"bytecode":"0x00ff"}`), 0o644))

	code, err := LoadBytecode(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0xff}, code)

	_, err = LoadBytecode(filepath.Join(t.TempDir(), "missing.json"))
	assert.True(t, utils.IsCode(err, utils.ErrCodeConfiguration))
}

type fakeProxy struct {
	owner     common.Address
	impl      common.Address
	ignoreSet bool
	setFrom   []common.Address
	setErr    error
}

func (f *fakeProxy) Address() common.Address { return proxyAddress }

func (f *fakeProxy) Implementation(ctx context.Context) (common.Address, error) {
	return f.impl, nil
}

func (f *fakeProxy) ProxyOwner(ctx context.Context) (common.Address, error) {
	return f.owner, nil
}

func (f *fakeProxy) SetImplementation(ctx context.Context, from, impl common.Address) (*types.Receipt, error) {
	f.setFrom = append(f.setFrom, from)
	if f.setErr != nil {
		return nil, f.setErr
	}
	if !f.ignoreSet {
		f.impl = impl
	}
	return &types.Receipt{TxHash: common.HexToHash("0x02"), Status: types.ReceiptStatusSuccessful}, nil
}

type fakeDeployer struct {
	address common.Address
	from    common.Address
	to      *common.Address
	data    []byte
}

func (f *fakeDeployer) Send(ctx context.Context, from common.Address, to *common.Address, data []byte) (*types.Receipt, error) {
	f.from, f.to, f.data = from, to, data
	return &types.Receipt{ContractAddress: f.address, TxHash: common.HexToHash("0x01"), Status: types.ReceiptStatusSuccessful}, nil
}

func TestSwapperSwap(t *testing.T) {
	proxy := &fakeProxy{owner: operator, impl: oldImpl}
	deployer := &fakeDeployer{address: newImpl}

	result, err := NewSwapper(proxy, deployer, operator, []byte{0x60, 0x80}).Swap(context.Background())
	require.NoError(t, err)

	assert.Equal(t, operator, deployer.from)
	assert.Nil(t, deployer.to)
	assert.Equal(t, []byte{0x60, 0x80}, deployer.data)

	assert.Equal(t, []common.Address{operator}, proxy.setFrom)
	assert.Equal(t, oldImpl, result.PreviousImplementation)
	assert.Equal(t, newImpl, result.NewImplementation)
	assert.Equal(t, operator, result.ProxyOwner)
	assert.Equal(t, common.HexToHash("0x01"), result.DeployTx)
	assert.Equal(t, common.HexToHash("0x02"), result.UpgradeTx)
}

func TestSwapperFailures(t *testing.T) {
	t.Run("implementation not applied", func(t *testing.T) {
		proxy := &fakeProxy{owner: operator, impl: oldImpl, ignoreSet: true}
		_, err := NewSwapper(proxy, &fakeDeployer{address: newImpl}, operator, []byte{1}).Swap(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Implementation mismatch")
	})

	t.Run("no contract address", func(t *testing.T) {
		proxy := &fakeProxy{owner: operator, impl: oldImpl}
		_, err := NewSwapper(proxy, &fakeDeployer{}, operator, []byte{1}).Swap(context.Background())
		assert.True(t, utils.IsCode(err, utils.ErrCodeBlockchain))
		assert.Empty(t, proxy.setFrom)
	})

	t.Run("set implementation reverts", func(t *testing.T) {
		proxy := &fakeProxy{
			owner:  common.HexToAddress("0x6458A23B020f489651f2777Bd849ddEd34DfCcd2"),
			impl:   oldImpl,
			setErr: utils.NewAppError(utils.ErrCodeBlockchain, "Transaction reverted"),
		}
		_, err := NewSwapper(proxy, &fakeDeployer{address: newImpl}, operator, []byte{1}).Swap(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "set implementation")
		assert.Equal(t, oldImpl, proxy.impl)
	})
}
