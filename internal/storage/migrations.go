package storage

import (
	"time"
)

// Migration represents a database migration
type Migration struct {
	ID          int       `db:"id"`
	Version     string    `db:"version"`
	Description string    `db:"description"`
	SQL         string    `db:"sql"`
	AppliedAt   time.Time `db:"applied_at"`
}

// GetSQLiteMigrations returns SQLite migration scripts
func GetSQLiteMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create runs table",
			SQL: `
				CREATE TABLE IF NOT EXISTS runs (
					id TEXT PRIMARY KEY,
					started_at TEXT NOT NULL,
					finished_at TEXT NOT NULL,
					status TEXT NOT NULL,
					error TEXT NOT NULL DEFAULT '',
					dry_run BOOLEAN NOT NULL DEFAULT FALSE,
					proxy TEXT NOT NULL,
					new_implementation TEXT NOT NULL,
					previous_state TEXT, -- JSON
					upgraded_state TEXT, -- JSON
					added_keys TEXT NOT NULL DEFAULT '[]', -- JSON
					total_staked TEXT NOT NULL DEFAULT '0',
					holder_count INTEGER NOT NULL DEFAULT 0,
					discrepancy_count INTEGER NOT NULL DEFAULT 0,
					failed_count INTEGER NOT NULL DEFAULT 0
				);

				CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
				CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
			`,
		},
		{
			Version:     "002",
			Description: "Create holder_results table",
			SQL: `
				CREATE TABLE IF NOT EXISTS holder_results (
					run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
					seq INTEGER NOT NULL,
					address TEXT NOT NULL,
					entries INTEGER NOT NULL DEFAULT 0,
					eligible TEXT NOT NULL DEFAULT '0',
					outcome TEXT NOT NULL,
					balance_before TEXT,
					balance_after TEXT,
					delta TEXT,
					event_value TEXT,
					tx_hash TEXT NOT NULL DEFAULT '',
					error TEXT NOT NULL DEFAULT '',
					discrepancy BOOLEAN NOT NULL DEFAULT FALSE,
					PRIMARY KEY (run_id, seq)
				);

				CREATE INDEX IF NOT EXISTS idx_holder_results_address ON holder_results(address);
				CREATE INDEX IF NOT EXISTS idx_holder_results_discrepancy ON holder_results(discrepancy);
			`,
		},
	}
}

// GetPostgresMigrations returns PostgreSQL migration scripts
func GetPostgresMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create runs table",
			SQL: `
				CREATE TABLE IF NOT EXISTS runs (
					id VARCHAR(64) PRIMARY KEY,
					started_at VARCHAR(40) NOT NULL,
					finished_at VARCHAR(40) NOT NULL,
					status VARCHAR(20) NOT NULL,
					error TEXT NOT NULL DEFAULT '',
					dry_run BOOLEAN NOT NULL DEFAULT FALSE,
					proxy VARCHAR(42) NOT NULL,
					new_implementation VARCHAR(42) NOT NULL,
					previous_state TEXT,
					upgraded_state TEXT,
					added_keys TEXT NOT NULL DEFAULT '[]',
					total_staked NUMERIC(78, 0) NOT NULL DEFAULT 0,
					holder_count INTEGER NOT NULL DEFAULT 0,
					discrepancy_count INTEGER NOT NULL DEFAULT 0,
					failed_count INTEGER NOT NULL DEFAULT 0
				);

				CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
				CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
			`,
		},
		{
			Version:     "002",
			Description: "Create holder_results table",
			SQL: `
				CREATE TABLE IF NOT EXISTS holder_results (
					run_id VARCHAR(64) NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
					seq INTEGER NOT NULL,
					address VARCHAR(42) NOT NULL,
					entries BIGINT NOT NULL DEFAULT 0,
					eligible NUMERIC(78, 0) NOT NULL DEFAULT 0,
					outcome VARCHAR(20) NOT NULL,
					balance_before NUMERIC(78, 0),
					balance_after NUMERIC(78, 0),
					delta NUMERIC(78, 0),
					event_value NUMERIC(78, 0),
					tx_hash VARCHAR(66) NOT NULL DEFAULT '',
					error TEXT NOT NULL DEFAULT '',
					discrepancy BOOLEAN NOT NULL DEFAULT FALSE,
					PRIMARY KEY (run_id, seq)
				);

				CREATE INDEX IF NOT EXISTS idx_holder_results_address ON holder_results(address);
				CREATE INDEX IF NOT EXISTS idx_holder_results_discrepancy ON holder_results(discrepancy);
			`,
		},
	}
}
