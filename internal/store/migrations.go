package store

import (
	"context"
	"database/sql"
	"fmt"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS batches (
		id         TEXT PRIMARY KEY,
		model_path TEXT NOT NULL,
		real_time  INTEGER NOT NULL,
		trials     INTEGER NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS outcomes (
		batch_id   TEXT NOT NULL REFERENCES batches(id) ON DELETE CASCADE,
		trial      INTEGER NOT NULL,
		kind       TEXT NOT NULL,
		code       INTEGER NOT NULL,
		forced     INTEGER NOT NULL,
		reason     TEXT NOT NULL,
		log_path   TEXT NOT NULL,
		started    TEXT NOT NULL,
		elapsed_ms INTEGER NOT NULL,
		PRIMARY KEY (batch_id, trial)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_batches_created ON batches(created_at)`,
}

func migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
