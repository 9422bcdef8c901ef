package repository

import (
	"context"
	"errors"
	"time"

	"csv-uploader/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// RunRepository exposes persistence operations for upload runs.
type RunRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, run *domain.Run) error
	Finish(ctx context.Context, id string, status domain.RunStatus, uploaded, failed int, errorMessage string, finishedAt time.Time) error
	Get(ctx context.Context, id string) (*domain.Run, error)
	List(ctx context.Context, limit int) ([]domain.Run, error)
}

// RunFileRepository records the per-file outcome of a run.
type RunFileRepository interface {
	Init(ctx context.Context) error
	Add(ctx context.Context, runID string, result domain.UploadResult) error
	ListByRun(ctx context.Context, runID string) ([]domain.UploadResult, error)
}
