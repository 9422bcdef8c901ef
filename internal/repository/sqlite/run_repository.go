package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"csv-uploader/internal/domain"
	"csv-uploader/internal/repository"
)

const createRunsTable = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	dir TEXT NOT NULL,
	bucket TEXT NOT NULL,
	key_prefix TEXT NOT NULL,
	status TEXT NOT NULL,
	uploaded INTEGER NOT NULL DEFAULT 0,
	failed INTEGER NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT '',
	started_at DATETIME NOT NULL,
	finished_at DATETIME NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

const selectRunColumns = `SELECT id, dir, bucket, key_prefix, status, uploaded, failed, error_message, started_at, finished_at FROM runs`

type RunRepository struct {
	db *sql.DB
}

func NewRunRepository(db *sql.DB) repository.RunRepository {
	return &RunRepository{db: db}
}

func (r *RunRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createRunsTable); err != nil {
		return fmt.Errorf("create runs table: %w", err)
	}
	return nil
}

func (r *RunRepository) Create(ctx context.Context, run *domain.Run) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO runs (id, dir, bucket, key_prefix, status, uploaded, failed, error_message, started_at, finished_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.Dir,
		run.Bucket,
		run.KeyPrefix,
		string(run.Status),
		run.Uploaded,
		run.Failed,
		run.ErrorMessage,
		run.StartedAt.UTC(),
		nullTime(run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (r *RunRepository) Finish(ctx context.Context, id string, status domain.RunStatus, uploaded, failed int, errorMessage string, finishedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE runs
SET status=?, uploaded=?, failed=?, error_message=?, finished_at=?
WHERE id=?`,
		string(status),
		uploaded,
		failed,
		errorMessage,
		finishedAt.UTC(),
		id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s: %w", id, repository.ErrNotFound)
	}
	return nil
}

func (r *RunRepository) Get(ctx context.Context, id string) (*domain.Run, error) {
	row := r.db.QueryRowContext(ctx, selectRunColumns+` WHERE id=?`, id)
	return scanRun(row)
}

// List returns the most recent runs first. A non-positive limit returns all runs.
func (r *RunRepository) List(ctx context.Context, limit int) ([]domain.Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, selectRunColumns+` ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}

	return runs, rows.Err()
}

func scanRun(scanner interface {
	Scan(dest ...any) error
}) (*domain.Run, error) {
	var (
		run        domain.Run
		status     string
		startedAt  time.Time
		finishedAt sql.NullTime
	)

	if err := scanner.Scan(
		&run.ID,
		&run.Dir,
		&run.Bucket,
		&run.KeyPrefix,
		&status,
		&run.Uploaded,
		&run.Failed,
		&run.ErrorMessage,
		&startedAt,
		&finishedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("run: %w", repository.ErrNotFound)
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}

	run.Status = domain.RunStatus(status)
	run.StartedAt = startedAt.Local()
	if finishedAt.Valid {
		t := finishedAt.Time.Local()
		run.FinishedAt = &t
	}

	return &run, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
