package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"csv-uploader/internal/config"
	apphttp "csv-uploader/internal/http"
	"csv-uploader/internal/repository/sqlite"
	"csv-uploader/internal/scanner"
	"csv-uploader/internal/service"
	"csv-uploader/internal/storage"
	"csv-uploader/internal/uploader"
)

// errEmptyPattern guards against an empty substring, which would match every file.
var errEmptyPattern = errors.New("scan pattern must not be empty")

type app struct {
	cfg    config.Config
	logger *logrus.Logger
	out    io.Writer
	in     io.Reader
}

func runFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "dir", Usage: "Directory to scan (non-recursive)"},
		&cli.StringFlag{Name: "bucket", Usage: "Destination bucket"},
		&cli.StringFlag{Name: "prefix", Usage: "Key prefix prepended verbatim to each file name"},
		&cli.StringFlag{Name: "pattern", Usage: "Substring a file name must contain"},
		&cli.BoolFlag{Name: "continue-on-error", Usage: "Log failed uploads and keep going instead of stopping"},
		&cli.IntFlag{Name: "concurrency", Usage: "Maximum uploads in flight"},
		&cli.BoolFlag{Name: "no-history", Usage: "Do not record the run in the local ledger"},
	}
}

func newCLI(a *app) *cli.App {
	return &cli.App{
		Name:   "csv-uploader",
		Usage:  "Upload the CSV files of a directory to object storage",
		Flags:  runFlags(),
		Action: a.runAction,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Upload every matching file once and exit",
				Flags:  runFlags(),
				Action: a.runAction,
			},
			{
				Name:   "serve",
				Usage:  "Serve the HTTP API for triggering and inspecting runs",
				Flags:  append(runFlags(), &cli.StringFlag{Name: "addr", Usage: "Listen address"}),
				Action: a.serveAction,
			},
			{
				Name:  "history",
				Usage: "Show recent runs from the local ledger",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 20, Usage: "Number of runs to show"},
					&cli.StringFlag{Name: "run", Usage: "Show the files of one run"},
				},
				Action: a.historyAction,
			},
			{
				Name:  "ls",
				Usage: "List remote objects under the key prefix",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "bucket", Usage: "Bucket to list"},
					&cli.StringFlag{Name: "prefix", Usage: "Key prefix to list"},
				},
				Action: a.lsAction,
			},
			{
				Name:   "hash-password",
				Usage:  "Read a password from stdin and print its bcrypt hash for auth.passwordhash",
				Action: a.hashPasswordAction,
			},
		},
	}
}

func (a *app) stdout() io.Writer {
	if a.out != nil {
		return a.out
	}
	return os.Stdout
}

func (a *app) stdin() io.Reader {
	if a.in != nil {
		return a.in
	}
	return os.Stdin
}

// applyFlags overrides configuration with any flag set on the command line.
func (a *app) applyFlags(c *cli.Context) {
	if c.IsSet("dir") {
		a.cfg.Scan.Dir = c.String("dir")
	}
	if c.IsSet("bucket") {
		a.cfg.Storage.Bucket = c.String("bucket")
	}
	if c.IsSet("prefix") {
		a.cfg.Storage.KeyPrefix = c.String("prefix")
	}
	if c.IsSet("pattern") {
		a.cfg.Scan.Pattern = c.String("pattern")
	}
	if c.IsSet("continue-on-error") {
		a.cfg.Upload.ContinueOnError = c.Bool("continue-on-error")
	}
	if c.IsSet("concurrency") {
		a.cfg.Upload.Concurrency = c.Int("concurrency")
	}
	if c.IsSet("no-history") {
		a.cfg.History.Enabled = !c.Bool("no-history")
	}
	if c.IsSet("addr") {
		a.cfg.Server.Addr = c.String("addr")
	}
}

func (a *app) buildStorage(ctx context.Context) (storage.Service, error) {
	if a.cfg.Storage.Bucket == "" {
		return nil, storage.ErrBucketRequired
	}
	store, err := storage.New(ctx, storage.Options{
		Driver:    a.cfg.Storage.Driver,
		Region:    a.cfg.Storage.Region,
		Endpoint:  a.cfg.Storage.Endpoint,
		UseSSL:    a.cfg.Storage.UseSSL,
		AccessKey: a.cfg.Storage.AccessKey,
		SecretKey: a.cfg.Storage.SecretKey,
		Profile:   a.cfg.AWS.Profile,
	})
	if err != nil {
		return nil, fmt.Errorf("setup storage: %w", err)
	}
	a.logger.Infof("using %s bucket %s (region %s)", a.cfg.Storage.Driver, a.cfg.Storage.Bucket, a.cfg.Storage.Region)
	return store, nil
}

func (a *app) buildRunService(store storage.Service) (service.RunService, func(), error) {
	if a.cfg.Scan.Pattern == "" {
		return nil, nil, errEmptyPattern
	}
	up, err := uploader.New(store, uploader.Options{
		Bucket:          a.cfg.Storage.Bucket,
		KeyPrefix:       a.cfg.Storage.KeyPrefix,
		Filter:          scanner.Contains(a.cfg.Scan.Pattern),
		ContinueOnError: a.cfg.Upload.ContinueOnError,
		Concurrency:     a.cfg.Upload.Concurrency,
		Logger:          a.logger,
	})
	if err != nil {
		return nil, nil, err
	}

	if !a.cfg.History.Enabled {
		return service.NewRunService(up, nil, nil, a.logger), func() {}, nil
	}

	db, err := a.openLedger()
	if err != nil {
		return nil, nil, err
	}
	runs := sqlite.NewRunRepository(db)
	files := sqlite.NewRunFileRepository(db)
	if err := runs.Init(context.Background()); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("init run repository: %w", err)
	}
	if err := files.Init(context.Background()); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("init run file repository: %w", err)
	}
	return service.NewRunService(up, runs, files, a.logger), func() { db.Close() }, nil
}

func (a *app) openLedger() (*sql.DB, error) {
	db, err := sqlite.Open(a.cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

func (a *app) runAction(c *cli.Context) error {
	a.applyFlags(c)

	store, err := a.buildStorage(c.Context)
	if err != nil {
		return err
	}
	runs, closeLedger, err := a.buildRunService(store)
	if err != nil {
		return err
	}
	defer closeLedger()

	run, err := runs.Execute(c.Context, a.cfg.Scan.Dir)
	if run != nil {
		a.logger.WithFields(logrus.Fields{
			"run":      run.ID,
			"uploaded": run.Uploaded,
			"failed":   run.Failed,
		}).Infof("run %s", run.Status)
	}
	return err
}

func (a *app) serveAction(c *cli.Context) error {
	a.applyFlags(c)

	if strings.TrimSpace(a.cfg.Auth.JWTSecret) == "" {
		return errors.New("auth jwt secret is required")
	}
	if strings.TrimSpace(a.cfg.Auth.PasswordHash) == "" {
		return errors.New("auth password hash is required")
	}

	store, err := a.buildStorage(c.Context)
	if err != nil {
		return err
	}
	runs, closeLedger, err := a.buildRunService(store)
	if err != nil {
		return err
	}
	defer closeLedger()

	auth := service.NewAuthService(
		a.cfg.Auth.JWTSecret,
		a.cfg.Auth.PasswordHash,
		time.Duration(a.cfg.Auth.TokenTTLMinutes)*time.Minute,
	)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler := apphttp.NewHandler(runs, auth, store, a.cfg.Storage.Bucket, a.cfg.Storage.KeyPrefix, a.cfg.Scan.Dir)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    a.cfg.Server.Addr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Infof("listening on %s", a.cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-c.Context.Done():
	}
	a.logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warnf("http shutdown: %v", err)
	}

	a.logger.Info("bye")
	return nil
}

func (a *app) historyAction(c *cli.Context) error {
	db, err := a.openLedger()
	if err != nil {
		return err
	}
	defer db.Close()

	runRepo := sqlite.NewRunRepository(db)
	fileRepo := sqlite.NewRunFileRepository(db)
	if err := runRepo.Init(c.Context); err != nil {
		return fmt.Errorf("init run repository: %w", err)
	}
	if err := fileRepo.Init(c.Context); err != nil {
		return fmt.Errorf("init run file repository: %w", err)
	}
	out := a.stdout()

	if id := c.String("run"); id != "" {
		run, err := runRepo.Get(c.Context, id)
		if err != nil {
			return err
		}
		files, err := fileRepo.ListByRun(c.Context, id)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s  %s  %s  uploaded=%d failed=%d\n", run.ID, run.StartedAt.Format(time.RFC3339), run.Status, run.Uploaded, run.Failed)
		for _, f := range files {
			line := fmt.Sprintf("  %-8s %s -> s3://%s/%s", f.Status, f.Name, f.Bucket, f.Key)
			if f.ErrorMessage != "" {
				line += "  (" + f.ErrorMessage + ")"
			}
			fmt.Fprintln(out, line)
		}
		return nil
	}

	runs, err := runRepo.List(c.Context, c.Int("limit"))
	if err != nil {
		return err
	}
	for _, run := range runs {
		fmt.Fprintf(out, "%s  %s  %-9s uploaded=%d failed=%d  %s -> s3://%s/%s\n",
			run.ID, run.StartedAt.Format(time.RFC3339), run.Status, run.Uploaded, run.Failed, run.Dir, run.Bucket, run.KeyPrefix)
	}
	return nil
}

func (a *app) lsAction(c *cli.Context) error {
	a.applyFlags(c)

	store, err := a.buildStorage(c.Context)
	if err != nil {
		return err
	}
	objects, err := store.ListObjects(c.Context, a.cfg.Storage.Bucket, a.cfg.Storage.KeyPrefix)
	if err != nil {
		return err
	}
	out := a.stdout()
	for _, obj := range objects {
		modified := ""
		if obj.LastModified != nil {
			modified = obj.LastModified.Format(time.RFC3339)
		}
		fmt.Fprintf(out, "%12d  %-25s  %s\n", obj.Size, modified, obj.Key)
	}
	return nil
}

func (a *app) hashPasswordAction(c *cli.Context) error {
	line, err := bufio.NewReader(a.stdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read password: %w", err)
	}
	hash, err := service.HashPassword(line)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout(), hash)
	return nil
}
