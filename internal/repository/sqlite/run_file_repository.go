package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"csv-uploader/internal/domain"
	"csv-uploader/internal/repository"
)

const createRunFilesTable = `
CREATE TABLE IF NOT EXISTS run_files (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	name TEXT NOT NULL,
	size INTEGER NOT NULL DEFAULT 0,
	bucket TEXT NOT NULL,
	object_key TEXT NOT NULL,
	location TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	uploaded_at DATETIME NULL,
	FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_run_files_run_id ON run_files(run_id);
`

type RunFileRepository struct {
	db *sql.DB
}

func NewRunFileRepository(db *sql.DB) repository.RunFileRepository {
	return &RunFileRepository{db: db}
}

func (r *RunFileRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createRunFilesTable); err != nil {
		return fmt.Errorf("create run_files table: %w", err)
	}
	return nil
}

func (r *RunFileRepository) Add(ctx context.Context, runID string, result domain.UploadResult) error {
	if _, err := r.db.ExecContext(ctx, `
INSERT INTO run_files (run_id, name, size, bucket, object_key, location, status, error_message, uploaded_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID,
		result.Name,
		result.Size,
		result.Bucket,
		result.Key,
		result.Location,
		string(result.Status),
		result.ErrorMessage,
		nullTime(result.UploadedAt),
	); err != nil {
		return fmt.Errorf("insert run file: %w", err)
	}
	return nil
}

func (r *RunFileRepository) ListByRun(ctx context.Context, runID string) ([]domain.UploadResult, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT name, size, bucket, object_key, location, status, error_message, uploaded_at
FROM run_files
WHERE run_id=?
ORDER BY id ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("query run files: %w", err)
	}
	defer rows.Close()

	var results []domain.UploadResult
	for rows.Next() {
		var (
			res        domain.UploadResult
			status     string
			uploadedAt sql.NullTime
		)
		if err := rows.Scan(&res.Name, &res.Size, &res.Bucket, &res.Key, &res.Location, &status, &res.ErrorMessage, &uploadedAt); err != nil {
			return nil, fmt.Errorf("scan run file: %w", err)
		}
		res.Status = domain.ResultStatus(status)
		if uploadedAt.Valid {
			t := uploadedAt.Time.Local()
			res.UploadedAt = &t
		}
		results = append(results, res)
	}

	return results, rows.Err()
}
