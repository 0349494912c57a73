package snapshot

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/edough-upgrade-check/internal/config"
	"github.com/smartdevs17/edough-upgrade-check/internal/models"
	"github.com/smartdevs17/edough-upgrade-check/pkg/utils"
)

type fakeEscrow struct {
	values    map[string]string
	reads     []string
	timelocks []common.Address
	senders   []common.Address
	setErr    error
}

func (f *fakeEscrow) ReadField(ctx context.Context, name string) (string, error) {
	f.reads = append(f.reads, name)
	v, ok := f.values[name]
	if !ok {
		return "", utils.NewAppError(utils.ErrCodeBlockchain, "Execution reverted: eth_call", name)
	}
	return v, nil
}

func (f *fakeEscrow) SetTimelock(ctx context.Context, from, timelock common.Address) (*types.Receipt, error) {
	if f.setErr != nil {
		return nil, f.setErr
	}
	f.senders = append(f.senders, from)
	f.timelocks = append(f.timelocks, timelock)
	f.values["sharesTimeLock"] = timelock.Hex()
	return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
}

type fakeHeaders struct{ number int64 }

func (f fakeHeaders) LatestHeader(ctx context.Context) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(f.number)}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Contracts: config.ContractsConfig{
			Owner:    "0x6458A23B020f489651f2777Bd849ddEd34DfCcd2",
			Timelock: "0x6Bd0D8c8aD8D3F1f97810d5Cc57E9296db73DC45",
		},
		Snapshot: config.SnapshotConfig{
			PreviousFields: []string{"dough", "totalEscrowedBalance"},
			UpgradedFields: []string{"dough", "totalEscrowedBalance", "sharesTimeLock"},
		},
	}
}

func TestSnapshotterPreviousAndUpgraded(t *testing.T) {
	cfg := testConfig()
	escrow := &fakeEscrow{values: map[string]string{
		"dough":                "0xad32A8e6220741182940c5aBF610bDE99E737b2D",
		"totalEscrowedBalance": "5000",
	}}
	s := NewSnapshotter(escrow, fakeHeaders{number: 14_000_000}, cfg)

	prev, err := s.Previous(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "previous", prev.Label)
	assert.Equal(t, uint64(14_000_000), prev.Block)
	assert.Equal(t, []string{"dough", "totalEscrowedBalance"}, prev.Keys())
	assert.Empty(t, escrow.timelocks)

	upgraded, err := s.Upgraded(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []common.Address{config.Address(cfg.Contracts.Timelock)}, escrow.timelocks)
	assert.Equal(t, []common.Address{config.Address(cfg.Contracts.Owner)}, escrow.senders)

	v, ok := upgraded.Get("sharesTimeLock")
	require.True(t, ok)
	assert.Equal(t, config.Address(cfg.Contracts.Timelock).Hex(), v)
	assert.Equal(t, []string{"sharesTimeLock"}, models.AddedKeys(prev, upgraded))
}

func TestSnapshotterIdempotentReads(t *testing.T) {
	escrow := &fakeEscrow{values: map[string]string{"dough": "0x1", "totalEscrowedBalance": "7"}}
	s := NewSnapshotter(escrow, nil, testConfig())

	first, err := s.Previous(context.Background())
	require.NoError(t, err)
	second, err := s.Previous(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.Fields, second.Fields)
	assert.Zero(t, first.Block)
}

func TestSnapshotterAbortsOnFailedRead(t *testing.T) {
	escrow := &fakeEscrow{values: map[string]string{"dough": "0x1"}}
	s := NewSnapshotter(escrow, nil, testConfig())

	_, err := s.Previous(context.Background())
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.ErrCodeBlockchain))
	assert.Contains(t, err.Error(), "read totalEscrowedBalance")
}

func TestSnapshotterUpgradedFailsWhenTimelockReverts(t *testing.T) {
	escrow := &fakeEscrow{
		values: map[string]string{},
		setErr: utils.NewAppError(utils.ErrCodeBlockchain, "Transaction reverted"),
	}
	s := NewSnapshotter(escrow, nil, testConfig())

	_, err := s.Upgraded(context.Background())
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.ErrCodeBlockchain))
	assert.Empty(t, escrow.reads)
}
