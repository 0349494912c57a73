package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/edough-upgrade-check/internal/models"
	"github.com/smartdevs17/edough-upgrade-check/pkg/utils"
)

// timeLayout is fixed width so stored timestamps sort lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const defaultListLimit = 50

// runStore holds the SQL shared by the SQLite and PostgreSQL backends.
// Queries are written with ? placeholders and rebound per dialect.
type runStore struct {
	db         *sql.DB
	positional bool
	logger     *logrus.Entry
}

func (s *runStore) q(query string) string {
	if !s.positional {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *runStore) connected() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return nil
}

// SaveRun stores a run and its holder results, replacing any run with the
// same ID.
func (s *runStore) SaveRun(ctx context.Context, run *models.Run) error {
	if err := s.connected(); err != nil {
		return err
	}

	previous, err := marshalJSON(run.Previous)
	if err != nil {
		return err
	}
	upgraded, err := marshalJSON(run.Upgraded)
	if err != nil {
		return err
	}
	addedKeys := run.AddedKeys
	if addedKeys == nil {
		addedKeys = []string{}
	}
	added, err := marshalJSON(addedKeys)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to begin transaction", err.Error())
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM holder_results WHERE run_id = ?`), run.ID); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to replace holder results", err.Error())
	}
	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM runs WHERE id = ?`), run.ID); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to replace run", err.Error())
	}

	summary := run.Summary()
	_, err = tx.ExecContext(ctx, s.q(`
		INSERT INTO runs
		(id, started_at, finished_at, status, error, dry_run, proxy, new_implementation,
		 previous_state, upgraded_state, added_keys, total_staked,
		 holder_count, discrepancy_count, failed_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`),
		run.ID, formatTime(run.StartedAt), formatTime(run.FinishedAt), string(run.Status), run.Error,
		run.DryRun, run.Proxy.Hex(), run.NewImplementation.Hex(),
		previous, upgraded, added, summary.TotalStaked,
		summary.HolderCount, summary.DiscrepancyCount, summary.FailedHolderCount)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save run", err.Error())
	}

	insertHolder := s.q(`
		INSERT INTO holder_results
		(run_id, seq, address, entries, eligible, outcome, balance_before, balance_after,
		 delta, event_value, tx_hash, error, discrepancy)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	for i, h := range run.Holders {
		_, err := tx.ExecContext(ctx, insertHolder,
			run.ID, i, h.Address.Hex(), int64(h.Entries), bigString(h.Eligible), string(h.Outcome),
			nullBig(h.BalanceBefore), nullBig(h.BalanceAfter), nullBig(h.Delta), nullBig(h.EventValue),
			h.TxHash, h.Error, isDiscrepancy(h))
		if err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save holder result", err.Error())
		}
	}

	if err := tx.Commit(); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to commit run", err.Error())
	}

	s.logger.WithFields(logrus.Fields{
		"run_id":  run.ID,
		"holders": len(run.Holders),
	}).Debug("Run saved")
	return nil
}

// GetRun loads a run with its holder results
func (s *runStore) GetRun(ctx context.Context, id string) (*models.Run, error) {
	if err := s.connected(); err != nil {
		return nil, err
	}

	var (
		run                        models.Run
		startedAt, finishedAt      string
		status, proxy, impl, total string
		previous, upgraded         sql.NullString
		added                      string
		holderCount, discrepancies int
		failed                     int
	)

	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT id, started_at, finished_at, status, error, dry_run, proxy, new_implementation,
		       previous_state, upgraded_state, added_keys, total_staked,
		       holder_count, discrepancy_count, failed_count
		FROM runs WHERE id = ?
	`), id).Scan(&run.ID, &startedAt, &finishedAt, &status, &run.Error, &run.DryRun, &proxy, &impl,
		&previous, &upgraded, &added, &total, &holderCount, &discrepancies, &failed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Run not found", id)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get run", err.Error())
	}

	run.StartedAt = parseTime(startedAt)
	run.FinishedAt = parseTime(finishedAt)
	run.Status = models.RunStatus(status)
	run.Proxy = common.HexToAddress(proxy)
	run.NewImplementation = common.HexToAddress(impl)
	run.TotalStaked = parseBig(total)

	if previous.Valid && previous.String != "null" {
		run.Previous = &models.StateSnapshot{}
		if err := json.Unmarshal([]byte(previous.String), run.Previous); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to decode previous state", err.Error())
		}
	}
	if upgraded.Valid && upgraded.String != "null" {
		run.Upgraded = &models.StateSnapshot{}
		if err := json.Unmarshal([]byte(upgraded.String), run.Upgraded); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to decode upgraded state", err.Error())
		}
	}
	if err := json.Unmarshal([]byte(added), &run.AddedKeys); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to decode added keys", err.Error())
	}

	if err := s.loadHolders(ctx, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *runStore) loadHolders(ctx context.Context, run *models.Run) error {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT address, entries, eligible, outcome, balance_before, balance_after,
		       delta, event_value, tx_hash, error, discrepancy
		FROM holder_results WHERE run_id = ? ORDER BY seq
	`), run.ID)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to query holder results", err.Error())
	}
	defer rows.Close()

	for rows.Next() {
		var (
			h                                models.HolderRecord
			address, eligible, outcome       string
			entries                          int64
			before, after, delta, eventValue sql.NullString
			discrepancy                      bool
		)
		if err := rows.Scan(&address, &entries, &eligible, &outcome, &before, &after,
			&delta, &eventValue, &h.TxHash, &h.Error, &discrepancy); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan holder result", err.Error())
		}

		h.Address = common.HexToAddress(address)
		h.Entries = uint64(entries)
		h.Eligible = parseBig(eligible)
		h.Outcome = models.HolderOutcome(outcome)
		h.BalanceBefore = parseNullBig(before)
		h.BalanceAfter = parseNullBig(after)
		h.Delta = parseNullBig(delta)
		h.EventValue = parseNullBig(eventValue)

		run.Holders = append(run.Holders, h)
		if discrepancy {
			run.Discrepancies = append(run.Discrepancies, models.Discrepancy{
				Address:  h.Address,
				Expected: h.Eligible,
				Delta:    h.Delta,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to read holder results", err.Error())
	}
	return nil
}

// ListRuns returns run summaries, newest first
func (s *runStore) ListRuns(ctx context.Context, filter RunFilter) ([]models.RunSummary, error) {
	if err := s.connected(); err != nil {
		return nil, err
	}

	query := `
		SELECT id, started_at, status, dry_run, total_staked,
		       holder_count, discrepancy_count, failed_count
		FROM runs`
	var args []interface{}
	if filter.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(filter.Status))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += ` ORDER BY started_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to list runs", err.Error())
	}
	defer rows.Close()

	summaries := []models.RunSummary{}
	for rows.Next() {
		var (
			summary           models.RunSummary
			startedAt, status string
		)
		if err := rows.Scan(&summary.ID, &startedAt, &status, &summary.DryRun, &summary.TotalStaked,
			&summary.HolderCount, &summary.DiscrepancyCount, &summary.FailedHolderCount); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan run", err.Error())
		}
		summary.StartedAt = parseTime(startedAt)
		summary.Status = models.RunStatus(status)
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to read runs", err.Error())
	}
	return summaries, nil
}

// DeleteRun removes a run and its holder results
func (s *runStore) DeleteRun(ctx context.Context, id string) error {
	if err := s.connected(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to begin transaction", err.Error())
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM holder_results WHERE run_id = ?`), id); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to delete holder results", err.Error())
	}
	result, err := tx.ExecContext(ctx, s.q(`DELETE FROM runs WHERE id = ?`), id)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to delete run", err.Error())
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return utils.NewAppError(utils.ErrCodeNotFound, "Run not found", id)
	}

	if err := tx.Commit(); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to commit delete", err.Error())
	}
	return nil
}

// GetStorageStats returns aggregate run statistics
func (s *runStore) GetStorageStats(ctx context.Context) (*StorageStats, error) {
	if err := s.connected(); err != nil {
		return nil, err
	}

	var (
		stats  StorageStats
		latest sql.NullString
	)
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(discrepancy_count), 0),
		       MAX(started_at)
		FROM runs
	`), string(models.RunFailed)).Scan(&stats.TotalRuns, &stats.FailedRuns, &stats.TotalDiscrepancies, &latest)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get storage stats", err.Error())
	}

	if latest.Valid {
		t := parseTime(latest.String)
		stats.LatestRun = &t
	}
	return &stats, nil
}

func isDiscrepancy(h models.HolderRecord) bool {
	return h.Outcome == models.HolderMigrated && h.Delta != nil && h.Eligible != nil &&
		h.Delta.Cmp(h.Eligible) != 0
}

func marshalJSON(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", utils.NewAppError(utils.ErrCodeDatabase, "Failed to marshal run data", err.Error())
	}
	return string(data), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func nullBig(v *big.Int) interface{} {
	if v == nil {
		return nil
	}
	return v.String()
}

func parseBig(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return new(big.Int)
	}
	return v
}

func parseNullBig(s sql.NullString) *big.Int {
	if !s.Valid {
		return nil
	}
	return parseBig(s.String)
}
