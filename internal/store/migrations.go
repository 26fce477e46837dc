package store

import (
	"context"
	"database/sql"
)

// schema contains the DDL for all enrolld tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS jobs (
		account_id       TEXT PRIMARY KEY,
		status           TEXT NOT NULL DEFAULT 'PENDING',
		last_failed_step TEXT NOT NULL DEFAULT '',
		last_error       TEXT NOT NULL DEFAULT '',
		resource_id      TEXT NOT NULL DEFAULT '',
		resource_ref     TEXT NOT NULL DEFAULT '',
		artifact         TEXT NOT NULL DEFAULT '',
		progress         INTEGER NOT NULL DEFAULT 0,
		attempts         INTEGER NOT NULL DEFAULT 0,
		created_at       TEXT NOT NULL,
		updated_at       TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS resources (
		id          TEXT PRIMARY KEY,
		kind        TEXT NOT NULL,
		ref         TEXT NOT NULL DEFAULT '',
		daily_limit INTEGER NOT NULL DEFAULT 1,
		enabled     INTEGER NOT NULL DEFAULT 1,
		created_at  TEXT NOT NULL
	)`,

	// Usage counters per resource per calendar day. Day rollover needs no
	// sweep: a new day simply has no rows yet.
	`CREATE TABLE IF NOT EXISTS resource_usage (
		resource_id TEXT NOT NULL,
		day         TEXT NOT NULL,
		used        INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (resource_id, day)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status)`,
	`CREATE INDEX IF NOT EXISTS idx_resource_usage_day ON resource_usage(day)`,
}

// migrate executes all schema DDL statements.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
