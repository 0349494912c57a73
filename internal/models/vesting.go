package models

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// VestingEntry is one (activation timestamp, amount) pair of a holder's
// escrow schedule.
type VestingEntry struct {
	Index     uint64   `json:"index"`
	Timestamp *big.Int `json:"timestamp"`
	Amount    *big.Int `json:"amount"`
}

// Positive reports whether both timestamp and amount are strictly positive
func (e VestingEntry) Positive() bool {
	return e.Timestamp != nil && e.Amount != nil &&
		e.Timestamp.Sign() > 0 && e.Amount.Sign() > 0
}

// ActivationTime is the entry timestamp moved back by offset seconds
func (e VestingEntry) ActivationTime(offset *big.Int) *big.Int {
	return new(big.Int).Sub(e.Timestamp, offset)
}

// Maturable reports whether the entry can be migrated at chain time now.
// The boundary is inclusive.
func (e VestingEntry) Maturable(now, offset *big.Int) bool {
	if !e.Positive() {
		return false
	}
	return now.Cmp(e.ActivationTime(offset)) >= 0
}

// HolderOutcome describes what happened to a holder during verification
type HolderOutcome string

const (
	HolderSkipped  HolderOutcome = "skipped"
	HolderEligible HolderOutcome = "eligible"
	HolderMigrated HolderOutcome = "migrated"
	HolderFailed   HolderOutcome = "failed"
)

// HolderRecord is the per-address result of the migration check
type HolderRecord struct {
	Address       common.Address `json:"address"`
	Entries       uint64         `json:"entries"`
	Eligible      *big.Int       `json:"eligible"`
	Outcome       HolderOutcome  `json:"outcome"`
	BalanceBefore *big.Int       `json:"balance_before,omitempty"`
	BalanceAfter  *big.Int       `json:"balance_after,omitempty"`
	Delta         *big.Int       `json:"delta,omitempty"`
	EventValue    *big.Int       `json:"event_value,omitempty"`
	TxHash        string         `json:"tx_hash,omitempty"`
	Error         string         `json:"error,omitempty"`
}

// Discrepancy records a holder whose observed balance delta differs from the
// expected migrated amount.
type Discrepancy struct {
	Address  common.Address `json:"address"`
	Expected *big.Int       `json:"expected"`
	Delta    *big.Int       `json:"delta"`
}

// Diff returns expected minus delta
func (d Discrepancy) Diff() *big.Int {
	return new(big.Int).Sub(d.Expected, d.Delta)
}
