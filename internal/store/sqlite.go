package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/kbench/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// CreateBatch inserts a batch record. Outcomes are appended separately as
// trials complete.
func (s *SQLiteStore) CreateBatch(ctx context.Context, b *model.Batch) error {
	s.logger.Debug("sql", "op", "insert", "table", "batches", "id", b.ID)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO batches (id, model_path, real_time, trials, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		b.ID, b.ModelPath, boolToInt(b.RealTime), b.Trials,
		b.CreatedAt.Format(time.RFC3339Nano),
	)
	return err
}

// AppendOutcome records one trial's result for a batch.
func (s *SQLiteStore) AppendOutcome(ctx context.Context, batchID string, out model.Outcome) error {
	s.logger.Debug("sql", "op", "insert", "table", "outcomes", "batch", batchID, "trial", out.Trial)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO outcomes (batch_id, trial, kind, code, forced, reason, log_path, started, elapsed_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		batchID, out.Trial, string(out.Status.Kind), out.Status.Code,
		boolToInt(out.Status.Forced), out.Status.Reason, out.LogPath,
		out.Started.Format(time.RFC3339Nano), out.Elapsed.Milliseconds(),
	)
	return err
}

// GetBatch returns a batch with its outcomes in trial order, or nil when
// the id is unknown.
func (s *SQLiteStore) GetBatch(ctx context.Context, id string) (*model.Batch, error) {
	s.logger.Debug("sql", "op", "select", "table", "batches", "id", id)

	b, err := s.scanBatch(s.db.QueryRowContext(ctx,
		`SELECT id, model_path, real_time, trials, created_at FROM batches WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT trial, kind, code, forced, reason, log_path, started, elapsed_ms
		 FROM outcomes WHERE batch_id = ? ORDER BY trial`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var out model.Outcome
		var kind, started string
		var forced int
		var elapsedMS int64
		if err := rows.Scan(&out.Trial, &kind, &out.Status.Code, &forced,
			&out.Status.Reason, &out.LogPath, &started, &elapsedMS); err != nil {
			return nil, err
		}
		out.Status.Kind = model.StatusKind(kind)
		out.Status.Forced = forced != 0
		out.Started, _ = time.Parse(time.RFC3339Nano, started)
		out.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		b.Outcomes = append(b.Outcomes, out)
	}
	return b, rows.Err()
}

// ListBatches returns up to limit batches, newest first, without outcomes.
func (s *SQLiteStore) ListBatches(ctx context.Context, limit int) ([]*model.Batch, error) {
	s.logger.Debug("sql", "op", "list", "table", "batches", "limit", limit)

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, model_path, real_time, trials, created_at
		 FROM batches ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batches []*model.Batch
	for rows.Next() {
		b, err := s.scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scanBatch(row rowScanner) (*model.Batch, error) {
	var b model.Batch
	var realTime int
	var createdAt string
	if err := row.Scan(&b.ID, &b.ModelPath, &realTime, &b.Trials, &createdAt); err != nil {
		return nil, err
	}
	b.RealTime = realTime != 0
	b.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &b, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
