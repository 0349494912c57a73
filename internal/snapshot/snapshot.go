package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/edough-upgrade-check/internal/config"
	"github.com/smartdevs17/edough-upgrade-check/internal/models"
	"github.com/smartdevs17/edough-upgrade-check/pkg/utils"
)

// Escrow is the part of the escrow contract the snapshotter reads and writes
type Escrow interface {
	ReadField(ctx context.Context, name string) (string, error)
	SetTimelock(ctx context.Context, from, timelock common.Address) (*types.Receipt, error)
}

// HeaderReader provides the block a snapshot was taken at
type HeaderReader interface {
	LatestHeader(ctx context.Context) (*types.Header, error)
}

// Snapshotter captures named escrow state before and after the upgrade
type Snapshotter struct {
	escrow         Escrow
	headers        HeaderReader
	owner          common.Address
	timelock       common.Address
	previousFields []string
	upgradedFields []string
	logger         *logrus.Entry
}

// NewSnapshotter creates a snapshotter. headers may be nil, in which case
// snapshots carry no block number.
func NewSnapshotter(escrow Escrow, headers HeaderReader, cfg *config.Config) *Snapshotter {
	return &Snapshotter{
		escrow:         escrow,
		headers:        headers,
		owner:          config.Address(cfg.Contracts.Owner),
		timelock:       config.Address(cfg.Contracts.Timelock),
		previousFields: cfg.Snapshot.PreviousFields,
		upgradedFields: cfg.Snapshot.UpgradedFields,
		logger:         utils.Component("snapshot"),
	}
}

// Previous reads the pre-upgrade fields
func (s *Snapshotter) Previous(ctx context.Context) (*models.StateSnapshot, error) {
	return s.Take(ctx, "previous", s.previousFields)
}

// Upgraded points the escrow at the shares timelock as the owner, then reads
// the post-upgrade fields.
func (s *Snapshotter) Upgraded(ctx context.Context) (*models.StateSnapshot, error) {
	s.logger.WithFields(logrus.Fields{
		"owner":    s.owner.Hex(),
		"timelock": s.timelock.Hex(),
	}).Info("Setting shares timelock")

	if _, err := s.escrow.SetTimelock(ctx, s.owner, s.timelock); err != nil {
		return nil, fmt.Errorf("set timelock: %w", err)
	}
	return s.Take(ctx, "upgraded", s.upgradedFields)
}

// Take reads fields in order into a labelled snapshot
func (s *Snapshotter) Take(ctx context.Context, label string, fields []string) (*models.StateSnapshot, error) {
	snap := &models.StateSnapshot{Label: label, TakenAt: time.Now().UTC()}

	if s.headers != nil {
		header, err := s.headers.LatestHeader(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s snapshot: %w", label, err)
		}
		snap.Block = header.Number.Uint64()
	}

	for _, field := range fields {
		value, err := s.escrow.ReadField(ctx, field)
		if err != nil {
			return nil, fmt.Errorf("%s snapshot: read %s: %w", label, field, err)
		}
		snap.Set(field, value)
	}

	s.logger.WithFields(logrus.Fields{
		"label":  label,
		"block":  snap.Block,
		"fields": len(snap.Fields),
	}).Info("State snapshot taken")

	return snap, nil
}
