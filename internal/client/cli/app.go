package cli

import (
	"bufio"
	"context"
	"database/sql"
	"io"
	"log"
	"os"
	"time"

	"go.uber.org/multierr"

	"github.com/dmitrijs2005/gophmedia/internal/api"
	"github.com/dmitrijs2005/gophmedia/internal/client/config"
	"github.com/dmitrijs2005/gophmedia/internal/client/journal"
	"github.com/dmitrijs2005/gophmedia/internal/client/transfer"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

const onlineCheckInterval = 5 * time.Second

// remote is the part of *api.Client the commands use.
type remote interface {
	Ping(ctx context.Context) error
	GetSession(ctx context.Context, id string) (*api.Session, error)
	CancelSession(ctx context.Context, id string) (bool, error)
	EnqueueDownload(ctx context.Context, req *api.EnqueueDownloadRequest) (string, error)
	GetJob(ctx context.Context, id string) (*api.Job, error)
	GetActiveJobs(ctx context.Context, owner string) ([]api.Job, error)
	CancelJob(ctx context.Context, id string) (bool, error)
	GetProgress(ctx context.Context, transferID string) (*api.Progress, error)
}

type uploader interface {
	Upload(ctx context.Context, path string, dest api.Destination, onProgress transfer.ProgressFunc) (*transfer.Result, error)
}

type progressStream interface {
	Recv() (*api.Progress, error)
}

type App struct {
	config    *config.Config
	remote    remote
	subscribe func(ctx context.Context, transferID string) (progressStream, error)
	uploader  uploader
	journal   journal.Repository
	closers   []io.Closer
	Mode      Mode
	reader    *bufio.Reader
	out       io.Writer
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	repo, db, err := journal.Open(ctx, c.JournalDSN)
	if err != nil {
		log.Printf("error initializing journal: %s", err.Error())
		return nil, err
	}

	client, err := api.Dial(c.ServerEndpointAddr, c.MaxMessageSize)
	if err != nil {
		return nil, multierr.Append(err, db.Close())
	}

	return newApp(c, client, repo, db), nil
}

func newApp(c *config.Config, client *api.Client, repo journal.Repository, db *sql.DB) *App {
	up := transfer.NewUploader(client, repo, transfer.Options{
		ChunkSize:   c.ChunkSize,
		Parallelism: c.Parallelism,
	})
	return &App{
		config: c,
		remote: client,
		subscribe: func(ctx context.Context, id string) (progressStream, error) {
			return client.Subscribe(ctx, id)
		},
		uploader: up,
		journal:  repo,
		closers:  []io.Closer{client, db},
		reader:   bufio.NewReader(os.Stdin),
		out:      os.Stdout,
	}
}

func (a *App) setMode(mode Mode) {
	if a.Mode != mode {
		a.Mode = mode
		log.Printf("Switched to %s mode\n", mode)
	}
}

func (a *App) Run(ctx context.Context) error {
	a.Root(ctx)
	return a.close()
}

func (a *App) close() error {
	var err error
	for _, c := range a.closers {
		err = multierr.Append(err, c.Close())
	}
	return err
}

func (a *App) checkOnline(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := a.remote.Ping(ctx); err != nil {
		a.setMode(ModeOffline)
		return
	}
	a.setMode(ModeOnline)
}

func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.checkOnline(ctx)
		case <-ctx.Done():
			return
		}
	}
}
