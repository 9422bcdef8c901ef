package uploader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"csv-uploader/internal/domain"
	"csv-uploader/internal/scanner"
	"csv-uploader/internal/storage"
)

// DefaultKeyPrefix is prepended verbatim to every file name.
const DefaultKeyPrefix = "downloads/"

// ErrBucketRequired is returned by New when no destination bucket is configured.
var ErrBucketRequired = errors.New("upload bucket is required")

// Options configures an Uploader.
type Options struct {
	Bucket    string
	KeyPrefix string
	// Filter selects entries to upload. Defaults to names containing ".csv".
	Filter scanner.Filter
	// ContinueOnError logs a failed upload and moves on instead of ending the run.
	ContinueOnError bool
	// Concurrency bounds in-flight uploads. Values below 2 upload sequentially.
	Concurrency int
	Logger      *logrus.Logger
	// OnResult, when set, is called once per processed candidate.
	OnResult func(domain.UploadResult)
}

// Report summarizes a run.
type Report struct {
	Dir      string
	Results  []domain.UploadResult
	Uploaded int
	Failed   int
}

// Uploader transfers matching files from a directory to object storage.
type Uploader struct {
	opts    Options
	storage storage.Service
}

func New(store storage.Service, opts Options) (*Uploader, error) {
	if opts.Bucket == "" {
		return nil, ErrBucketRequired
	}
	if store == nil {
		return nil, fmt.Errorf("storage service is required")
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = DefaultKeyPrefix
	}
	if opts.Filter == nil {
		opts.Filter = scanner.Contains(scanner.DefaultPattern)
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	return &Uploader{opts: opts, storage: store}, nil
}

// KeyFor derives the object key for a file name. No normalization is applied.
func KeyFor(prefix, name string) string {
	return prefix + name
}

// Bucket returns the destination bucket.
func (u *Uploader) Bucket() string { return u.opts.Bucket }

// KeyPrefix returns the prefix applied to every key.
func (u *Uploader) KeyPrefix() string { return u.opts.KeyPrefix }

// Run uploads every matching entry of dir. By default the first failure ends
// the run and the remaining candidates are left untouched.
func (u *Uploader) Run(ctx context.Context, dir string) (Report, error) {
	report := Report{Dir: dir}

	candidates, err := scanner.Scan(dir, u.opts.Filter)
	if err != nil {
		return report, err
	}

	log := u.opts.Logger.WithFields(logrus.Fields{
		"dir":    dir,
		"bucket": u.opts.Bucket,
	})
	log.Infof("found %d candidate file(s)", len(candidates))

	if u.opts.Concurrency > 1 && len(candidates) > 1 {
		err = u.runConcurrent(ctx, candidates, &report)
	} else {
		err = u.runSequential(ctx, candidates, &report)
	}

	log.WithFields(logrus.Fields{
		"uploaded": report.Uploaded,
		"failed":   report.Failed,
	}).Info("upload run finished")
	return report, err
}

func (u *Uploader) runSequential(ctx context.Context, candidates []domain.Candidate, report *Report) error {
	var errs []error
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		res, err := u.upload(ctx, c)
		u.record(report, res)
		if err == nil {
			continue
		}
		errs = append(errs, err)
		if !u.opts.ContinueOnError {
			break
		}
	}
	return errors.Join(errs...)
}

func (u *Uploader) runConcurrent(ctx context.Context, candidates []domain.Candidate, report *Report) error {
	var (
		mu   sync.Mutex
		errs []error
	)

	// Without ContinueOnError the group context is cancelled by the first
	// failure, which stops candidates that have not started yet.
	g, gctx := new(errgroup.Group), ctx
	if !u.opts.ContinueOnError {
		g, gctx = errgroup.WithContext(ctx)
	}
	g.SetLimit(u.opts.Concurrency)

	for _, c := range candidates {
		if gctx.Err() != nil {
			break
		}
		c := c // per-iteration copy; go.mod targets Go 1.21 loop semantics
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			res, err := u.upload(gctx, c)
			mu.Lock()
			u.record(report, res)
			if err != nil {
				errs = append(errs, err)
			}
			mu.Unlock()
			if err != nil && !u.opts.ContinueOnError {
				return err
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (u *Uploader) upload(ctx context.Context, c domain.Candidate) (domain.UploadResult, error) {
	target := domain.Target{Bucket: u.opts.Bucket, Key: KeyFor(u.opts.KeyPrefix, c.Name)}
	res := domain.UploadResult{
		Name:   c.Name,
		Size:   c.Size,
		Bucket: target.Bucket,
		Key:    target.Key,
	}
	log := u.opts.Logger.WithFields(logrus.Fields{
		"file": c.Name,
		"key":  target.Key,
	})

	location, err := u.storage.PutFile(ctx, target.Bucket, target.Key, c.Path)
	if err != nil {
		res.Status = domain.ResultStatusFailed
		res.ErrorMessage = err.Error()
		log.WithError(err).Error("upload failed")
		return res, fmt.Errorf("upload %s: %w", c.Name, err)
	}

	now := time.Now().UTC()
	res.Status = domain.ResultStatusUploaded
	res.Location = location
	res.UploadedAt = &now
	log.Info("uploaded")
	return res, nil
}

func (u *Uploader) record(report *Report, res domain.UploadResult) {
	report.Results = append(report.Results, res)
	if res.Status == domain.ResultStatusUploaded {
		report.Uploaded++
	} else {
		report.Failed++
	}
	if u.opts.OnResult != nil {
		u.opts.OnResult(res)
	}
}
