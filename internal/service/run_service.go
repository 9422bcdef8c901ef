package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"csv-uploader/internal/domain"
	"csv-uploader/internal/repository"
	"csv-uploader/internal/uploader"
)

var (
	// ErrRunInProgress is returned when a run is requested while another is active.
	ErrRunInProgress = errors.New("an upload run is already in progress")
	// ErrHistoryDisabled is returned by lookups when no ledger is configured.
	ErrHistoryDisabled = errors.New("run history is disabled")
)

// Runner performs one upload pass over a directory.
type Runner interface {
	Run(ctx context.Context, dir string) (uploader.Report, error)
	Bucket() string
	KeyPrefix() string
}

// RunService executes upload runs and keeps their history.
type RunService interface {
	Execute(ctx context.Context, dir string) (*domain.Run, error)
	Get(ctx context.Context, id string) (*domain.Run, error)
	List(ctx context.Context, limit int) ([]domain.Run, error)
}

type runService struct {
	runner Runner
	runs   repository.RunRepository
	files  repository.RunFileRepository
	logger *logrus.Logger
	mu     sync.Mutex
}

// NewRunService wires the runner to the ledger. runs and files may both be nil,
// in which case runs are executed but not recorded.
func NewRunService(runner Runner, runs repository.RunRepository, files repository.RunFileRepository, logger *logrus.Logger) RunService {
	if logger == nil {
		logger = logrus.New()
	}
	return &runService{
		runner: runner,
		runs:   runs,
		files:  files,
		logger: logger,
	}
}

func (s *runService) historyEnabled() bool {
	return s.runs != nil && s.files != nil
}

// Execute performs one run. The returned run is populated even when the
// upload fails; the error is the upload error, joined with any ledger error.
func (s *runService) Execute(ctx context.Context, dir string) (*domain.Run, error) {
	if !s.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer s.mu.Unlock()

	run := &domain.Run{
		ID:        uuid.NewString(),
		Dir:       dir,
		Bucket:    s.runner.Bucket(),
		KeyPrefix: s.runner.KeyPrefix(),
		Status:    domain.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	log := s.logger.WithField("run", run.ID)

	if s.historyEnabled() {
		if err := s.runs.Create(ctx, run); err != nil {
			return nil, fmt.Errorf("record run: %w", err)
		}
	}

	report, runErr := s.runner.Run(ctx, dir)

	finishedAt := time.Now().UTC()
	run.FinishedAt = &finishedAt
	run.Files = report.Results
	run.Uploaded = report.Uploaded
	run.Failed = report.Failed
	run.Status = domain.RunStatusSucceeded
	if runErr != nil {
		run.Status = domain.RunStatusFailed
		run.ErrorMessage = runErr.Error()
	}

	if !s.historyEnabled() {
		return run, runErr
	}

	// the ledger must still be written when ctx was cancelled mid-run
	recordCtx := context.WithoutCancel(ctx)
	var ledgerErrs []error
	for _, res := range report.Results {
		if err := s.files.Add(recordCtx, run.ID, res); err != nil {
			ledgerErrs = append(ledgerErrs, err)
		}
	}
	if err := s.runs.Finish(recordCtx, run.ID, run.Status, run.Uploaded, run.Failed, run.ErrorMessage, finishedAt); err != nil {
		ledgerErrs = append(ledgerErrs, err)
	}
	if len(ledgerErrs) > 0 {
		ledgerErr := errors.Join(ledgerErrs...)
		log.WithError(ledgerErr).Warn("failed to record run history")
		return run, errors.Join(runErr, fmt.Errorf("record run history: %w", ledgerErr))
	}

	return run, runErr
}

func (s *runService) Get(ctx context.Context, id string) (*domain.Run, error) {
	if !s.historyEnabled() {
		return nil, ErrHistoryDisabled
	}
	run, err := s.runs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	files, err := s.files.ListByRun(ctx, id)
	if err != nil {
		return nil, err
	}
	run.Files = files
	return run, nil
}

func (s *runService) List(ctx context.Context, limit int) ([]domain.Run, error) {
	if !s.historyEnabled() {
		return nil, ErrHistoryDisabled
	}
	return s.runs.List(ctx, limit)
}
