package migration

import (
	"math/big"

	"github.com/smartdevs17/edough-upgrade-check/internal/models"
)

// DefaultVestingOffset is how far ahead of its timestamp, in seconds, a
// vesting entry becomes migratable (182 days).
const DefaultVestingOffset = 15724800

// addEligible adds the entry's amount to total when it is maturable at now
func addEligible(total *big.Int, entry models.VestingEntry, now, offset *big.Int) {
	if entry.Maturable(now, offset) {
		total.Add(total, entry.Amount)
	}
}
