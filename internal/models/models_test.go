package models

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func TestVestingEntryMaturable(t *testing.T) {
	offset := big.NewInt(15724800)
	ts := big.NewInt(1_700_000_000)

	tests := []struct {
		name  string
		entry VestingEntry
		now   *big.Int
		want  bool
	}{
		{"boundary inclusive", VestingEntry{Timestamp: ts, Amount: big.NewInt(1000)}, new(big.Int).Sub(ts, offset), true},
		{"one second early", VestingEntry{Timestamp: ts, Amount: big.NewInt(1000)}, new(big.Int).Sub(ts, big.NewInt(15724801)), false},
		{"zero amount", VestingEntry{Timestamp: ts, Amount: big.NewInt(0)}, ts, false},
		{"zero timestamp", VestingEntry{Timestamp: big.NewInt(0), Amount: big.NewInt(5)}, ts, false},
		{"nil fields", VestingEntry{}, ts, false},
		{"well past", VestingEntry{Timestamp: ts, Amount: big.NewInt(1)}, new(big.Int).Add(ts, big.NewInt(1)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.entry.Maturable(tt.now, offset))
		})
	}
}

func TestDiscrepancyDiff(t *testing.T) {
	d := Discrepancy{Expected: big.NewInt(1000), Delta: big.NewInt(900)}
	assert.Equal(t, big.NewInt(100), d.Diff())

	d = Discrepancy{Expected: big.NewInt(900), Delta: big.NewInt(1000)}
	assert.Equal(t, big.NewInt(-100), d.Diff())
}

func TestAddedKeys(t *testing.T) {
	prev := &StateSnapshot{}
	prev.Set("dough", "0x1")
	prev.Set("totalEscrowedBalance", "10")

	next := &StateSnapshot{}
	next.Set("dough", "0x1")
	next.Set("totalEscrowedBalance", "10")
	next.Set("sharesTimeLock", "0x2")
	next.Set("alpha", "1")

	assert.Equal(t, []string{"alpha", "sharesTimeLock"}, AddedKeys(prev, next))
	assert.Empty(t, AddedKeys(next, prev))
}

func TestSnapshotSetReplaces(t *testing.T) {
	s := &StateSnapshot{}
	s.Set("dough", "a")
	s.Set("dough", "b")

	v, ok := s.Get("dough")
	assert.True(t, ok)
	assert.Equal(t, "b", v)
	assert.Equal(t, []string{"dough"}, s.Keys())

	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func TestRunSummary(t *testing.T) {
	run := &Run{
		ID:          "abc",
		Status:      RunCompleted,
		TotalStaked: big.NewInt(42),
		Holders: []HolderRecord{
			{Address: common.HexToAddress("0x1"), Outcome: HolderMigrated},
			{Address: common.HexToAddress("0x2"), Outcome: HolderFailed},
		},
		Discrepancies: []Discrepancy{{Expected: big.NewInt(1), Delta: big.NewInt(0)}},
	}

	s := run.Summary()
	assert.Equal(t, "42", s.TotalStaked)
	assert.Equal(t, 2, s.HolderCount)
	assert.Equal(t, 1, s.DiscrepancyCount)
	assert.Equal(t, 1, s.FailedHolderCount)
}
