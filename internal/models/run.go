package models

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// RunStatus is the final state of a verification run
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Run aggregates everything a verification run produced
type Run struct {
	ID                string         `json:"id"`
	StartedAt         time.Time      `json:"started_at"`
	FinishedAt        time.Time      `json:"finished_at"`
	Status            RunStatus      `json:"status"`
	Error             string         `json:"error,omitempty"`
	DryRun            bool           `json:"dry_run"`
	Proxy             common.Address `json:"proxy"`
	NewImplementation common.Address `json:"new_implementation"`
	Previous          *StateSnapshot `json:"previous,omitempty"`
	Upgraded          *StateSnapshot `json:"upgraded,omitempty"`
	AddedKeys         []string       `json:"added_keys"`
	TotalStaked       *big.Int       `json:"total_staked"`
	Holders           []HolderRecord `json:"holders"`
	Discrepancies     []Discrepancy  `json:"discrepancies"`
}

// RunSummary is the list view of a stored run
type RunSummary struct {
	ID                string    `json:"id"`
	StartedAt         time.Time `json:"started_at"`
	Status            RunStatus `json:"status"`
	DryRun            bool      `json:"dry_run"`
	TotalStaked       string    `json:"total_staked"`
	HolderCount       int       `json:"holder_count"`
	DiscrepancyCount  int       `json:"discrepancy_count"`
	FailedHolderCount int       `json:"failed_holder_count"`
}

// FailedHolders returns the holders whose processing errored
func (r *Run) FailedHolders() []HolderRecord {
	var failed []HolderRecord
	for _, h := range r.Holders {
		if h.Outcome == HolderFailed {
			failed = append(failed, h)
		}
	}
	return failed
}

// Summary builds the list view of the run
func (r *Run) Summary() RunSummary {
	total := "0"
	if r.TotalStaked != nil {
		total = r.TotalStaked.String()
	}
	return RunSummary{
		ID:                r.ID,
		StartedAt:         r.StartedAt,
		Status:            r.Status,
		DryRun:            r.DryRun,
		TotalStaked:       total,
		HolderCount:       len(r.Holders),
		DiscrepancyCount:  len(r.Discrepancies),
		FailedHolderCount: len(r.FailedHolders()),
	}
}
