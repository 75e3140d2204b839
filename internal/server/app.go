// Package server wires the transfer components together and runs them: the
// gRPC endpoint, the worker pools and the retention sweeper.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/gophmedia/internal/logging"
	"github.com/dmitrijs2005/gophmedia/internal/netx"
	"github.com/dmitrijs2005/gophmedia/internal/server/catalog"
	"github.com/dmitrijs2005/gophmedia/internal/server/config"
	"github.com/dmitrijs2005/gophmedia/internal/server/downloads"
	"github.com/dmitrijs2005/gophmedia/internal/server/fetch"
	"github.com/dmitrijs2005/gophmedia/internal/server/progress"
	"github.com/dmitrijs2005/gophmedia/internal/server/repositories/jobs"
	"github.com/dmitrijs2005/gophmedia/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophmedia/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/gophmedia/internal/server/storage"
	"github.com/dmitrijs2005/gophmedia/internal/server/uploads"
	"github.com/dmitrijs2005/gophmedia/internal/workerpool"

	gs "github.com/dmitrijs2005/gophmedia/internal/server/grpc"
)

const shutdownTimeout = 30 * time.Second

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB

	tasks     *workerpool.Pool
	fetches   *workerpool.Pool
	progress  *progress.Broadcaster
	uploads   *uploads.Coordinator
	downloads *downloads.Queue
}

// NewApp builds every component from c. With an empty DatabaseDSN sessions,
// jobs and the catalog are kept in memory.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger, err := logging.New(c.LogBackend, c.LogLevel, os.Stdout)
	if err != nil {
		return nil, err
	}

	app := &App{config: c, logger: logger}

	var (
		sessionStore sessions.Repository
		jobStore     jobs.Repository
		cat          catalog.Catalog
	)
	if c.DatabaseDSN != "" {
		db, err := repomanager.Open(ctx, c.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("db init error: %w", err)
		}
		app.db = db

		rm := repomanager.NewPostgresRepositoryManager()
		if err := rm.RunMigrations(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
		sessionStore, jobStore, cat = rm.Sessions(db), rm.Jobs(db), rm.Catalog(db)
	} else {
		logger.Warn(ctx, "no database configured, keeping state in memory")
		sessionStore, jobStore, cat = sessions.NewMemoryRepository(), jobs.NewMemoryRepository(), catalog.NewMemoryCatalog()
	}

	blobs, err := storage.NewTieredStorage(c.StorageRoot, storage.Options{
		SmallMax:   c.SmallTierMax,
		LargeMin:   c.LargeTierMin,
		BufferSize: c.CopyBufferSize,
	})
	if err != nil {
		return nil, app.abort(err)
	}

	if c.S3Bucket != "" {
		client, err := catalog.NewS3Client(ctx, catalog.S3Options{
			Region:       c.S3Region,
			BaseEndpoint: c.S3BaseEndpoint,
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
		})
		if err != nil {
			return nil, app.abort(fmt.Errorf("s3 client: %w", err))
		}
		cat = catalog.NewS3Mirror(cat, blobs, client, c.S3Bucket, logger)
	}

	app.tasks = workerpool.New("tasks", c.TaskWorkers, logger)
	app.fetches = workerpool.New("downloads", c.Workers, logger)
	app.progress = progress.NewBroadcaster(progress.Options{Buffer: c.ProgressBuffer, Grace: c.ProgressGrace}, app.tasks, logger)

	scratch, err := uploads.NewScratch(c.ScratchDir)
	if err != nil {
		return nil, app.abort(err)
	}
	app.uploads = uploads.NewCoordinator(sessionStore, blobs, app.progress, cat, app.tasks, scratch, uploads.Options{
		CopyBuffer:          c.CopyBufferSize,
		RetainAfterFinalize: c.SessionRetention,
		MaxChunkSize:        c.MaxChunkSize,
		MaxChunks:           c.MaxChunks,
	}, logger)

	fetcher := fetch.NewHTTPFetcher(netx.NewHTTPClient(c.FetchTimeout), c.CopyBufferSize, logger)
	app.downloads, err = downloads.NewQueue(jobStore, app.fetches, fetcher, blobs, cat, app.progress, c.ScratchDir,
		downloads.Options{Retention: c.JobRetention}, logger)
	if err != nil {
		return nil, app.abort(err)
	}

	return app, nil
}

// abort releases what NewApp acquired so far.
func (app *App) abort(cause error) error {
	return multierr.Append(cause, app.close())
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// sweep runs one retention pass over both transfer kinds.
func (app *App) sweep(ctx context.Context) {
	if n, err := app.downloads.Sweep(ctx); err != nil {
		app.logger.Error(ctx, "job sweep failed", "error", err)
	} else if n > 0 {
		app.logger.Info(ctx, "expired jobs removed", "count", n)
	}

	idleBefore := time.Now().Add(-app.config.SessionIdleTimeout)
	if n, err := app.uploads.SweepIdle(ctx, idleBefore); err != nil {
		app.logger.Error(ctx, "session sweep failed", "error", err)
	} else if n > 0 {
		app.logger.Info(ctx, "idle or expired sessions removed", "count", n)
	}
}

func (app *App) runSweeper(ctx context.Context) error {
	ticker := time.NewTicker(app.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			app.sweep(ctx)
		}
	}
}

// Run serves until ctx is cancelled or a signal arrives, then shuts every
// component down.
func (app *App) Run(ctx context.Context) error {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	if err := app.uploads.Recover(ctx); err != nil {
		app.logger.Error(ctx, "upload recovery failed", "error", err)
	}
	if err := app.downloads.Recover(ctx); err != nil {
		app.logger.Error(ctx, "download recovery failed", "error", err)
	}

	srv, err := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.uploads, app.downloads, app.progress, app.config.MaxMessageSize)
	if err != nil {
		return multierr.Append(err, app.close())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return app.runSweeper(gctx) })

	err = g.Wait()

	app.logger.Info(context.Background(), "Stopping app...")
	return multierr.Append(err, app.close())
}

func (app *App) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var err error
	if app.fetches != nil {
		err = multierr.Append(err, app.fetches.Shutdown(ctx))
	}
	if app.tasks != nil {
		err = multierr.Append(err, app.tasks.Shutdown(ctx))
	}
	if app.progress != nil {
		app.progress.Close()
	}
	if app.db != nil {
		err = multierr.Append(err, app.db.Close())
	}
	if z, ok := app.logger.(*logging.ZapLogger); ok {
		_ = z.Sync()
	}
	return err
}
