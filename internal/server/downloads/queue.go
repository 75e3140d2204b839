// Package downloads runs remote fetch jobs on a fixed worker pool and lands
// the results in TieredStorage and the catalog.
package downloads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/dmitrijs2005/gophmedia/internal/checksum"
	"github.com/dmitrijs2005/gophmedia/internal/common"
	"github.com/dmitrijs2005/gophmedia/internal/filex"
	"github.com/dmitrijs2005/gophmedia/internal/logging"
	"github.com/dmitrijs2005/gophmedia/internal/server/catalog"
	"github.com/dmitrijs2005/gophmedia/internal/server/fetch"
	"github.com/dmitrijs2005/gophmedia/internal/server/models"
	"github.com/dmitrijs2005/gophmedia/internal/server/progress"
	"github.com/dmitrijs2005/gophmedia/internal/server/repositories/jobs"
	"github.com/dmitrijs2005/gophmedia/internal/workerpool"
)

// Progress bands of a job, in percent.
const (
	pctFetchStart = 10
	pctSaveStart  = 70
)

type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, hint models.TransferHint, dir string, onProgress fetch.ProgressFunc) (fetch.Result, error)
}

type BlobStore interface {
	Store(ctx context.Context, r io.Reader, category models.Category, declaredSize int64, filename string) (string, int64, error)
	Delete(key string) (bool, error)
}

type Publisher interface {
	PublishProgress(p models.TransferProgress)
	MarkTerminal(final models.TransferProgress)
}

type Executor interface {
	Submit(t workerpool.Task) error
}

type Options struct {
	// Retention is how long terminal jobs stay queryable.
	Retention time.Duration
}

type EnqueueRequest struct {
	URL         string
	Owner       string
	Destination models.Destination
	Hint        models.TransferHint
}

type Queue struct {
	store   jobs.Repository
	exec    Executor
	fetcher Fetcher
	blobs   BlobStore
	catalog catalog.Catalog
	pub     Publisher
	scratch string
	opts    Options
	logger  logging.Logger
	now     func() time.Time
}

func NewQueue(store jobs.Repository, exec Executor, fetcher Fetcher, blobs BlobStore, cat catalog.Catalog,
	pub Publisher, scratchDir string, opts Options, l logging.Logger) (*Queue, error) {
	dir, err := filex.EnsureDir(filepath.Join(scratchDir, "downloads"))
	if err != nil {
		return nil, err
	}
	return &Queue{
		store:   store,
		exec:    exec,
		fetcher: fetcher,
		blobs:   blobs,
		catalog: cat,
		pub:     pub,
		scratch: dir,
		opts:    opts,
		logger:  l.With("module", "downloads"),
		now:     time.Now,
	}, nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrorInvalidArgument, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: url must be absolute http or https", common.ErrorInvalidArgument)
	}
	return nil
}

// Enqueue records a QUEUED job and hands it to the pool. It never waits for
// a free worker.
func (q *Queue) Enqueue(ctx context.Context, req EnqueueRequest) (string, error) {
	if err := validateURL(req.URL); err != nil {
		return "", err
	}
	switch req.Hint {
	case "":
		req.Hint = models.HintFull
	case models.HintFull, models.HintAudioOnly:
	default:
		return "", fmt.Errorf("%w: unknown hint %q", common.ErrorInvalidArgument, req.Hint)
	}
	if req.Destination.Category != "" && !req.Destination.Category.Valid() {
		return "", fmt.Errorf("%w: unknown category %q", common.ErrorInvalidArgument, req.Destination.Category)
	}

	j := &models.DownloadJob{
		ID:          uuid.NewString(),
		URL:         req.URL,
		Owner:       req.Owner,
		Destination: req.Destination,
		Hint:        req.Hint,
		Status:      models.JobQueued,
		QueuedAt:    q.now(),
	}
	if err := q.store.Create(ctx, j); err != nil {
		return "", err
	}

	q.pub.PublishProgress(models.TransferProgress{TransferID: j.ID, Status: "queued"})

	if err := q.exec.Submit(q.task(j.ID)); err != nil {
		// Stays QUEUED; Recover resubmits it on the next start.
		q.logger.Warn(ctx, "failed to submit job", "job_id", j.ID, "error", err)
	}

	q.logger.Info(ctx, "job queued", "job_id", j.ID, "url", j.URL, "hint", j.Hint)
	return j.ID, nil
}

func (q *Queue) task(id string) workerpool.Task {
	return func(ctx context.Context) { q.execute(ctx, id) }
}

func (q *Queue) execute(ctx context.Context, id string) {
	if ctx.Err() != nil {
		return
	}

	j, err := q.store.Claim(ctx, id, q.now())
	if errors.Is(err, common.ErrorInvalidState) || errors.Is(err, common.ErrorNotFound) {
		return
	}
	if err != nil {
		q.logger.Error(ctx, "failed to claim job", "job_id", id, "error", err)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			q.finishFailed(ctx, j, fmt.Errorf("%w: panic: %v", common.ErrorInternal, r), fmt.Sprintf("panic: %v", r))
		}
	}()

	q.pub.PublishProgress(models.TransferProgress{TransferID: id, Percent: pctFetchStart, Status: "fetching"})

	dir := filepath.Join(q.scratch, id)
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			q.logger.Warn(ctx, "failed to remove scratch", "job_id", id, "error", err)
		}
	}()

	res, err := q.fetcher.Fetch(ctx, j.URL, j.Hint, dir, q.fetchProgress(id))
	if err != nil {
		q.finishFailed(ctx, j, fmt.Errorf("%w: %w", common.ErrorUpstreamFetch, err), err.Error())
		return
	}

	q.pub.PublishProgress(models.TransferProgress{
		TransferID: id,
		Percent:    pctSaveStart,
		Status:     "saving",
		BytesDone:  res.Size,
		BytesTotal: res.Size,
	})

	key, catalogID, err := q.save(ctx, j, res)
	if err != nil {
		q.finishFailed(ctx, j, err, err.Error())
		return
	}

	err = q.store.Finish(ctx, id, models.JobRunning, models.JobSucceeded, jobs.Result{
		At:          q.now(),
		Title:       res.Title,
		ContentType: res.ContentType,
		StorageKey:  key,
		CatalogID:   catalogID,
	})
	if err != nil {
		q.logger.Error(ctx, "failed to record job success", "job_id", id, "error", err)
	}

	q.pub.MarkTerminal(models.TransferProgress{
		TransferID: id,
		Percent:    100,
		Status:     "succeeded",
		Message:    catalogID,
		BytesDone:  res.Size,
		BytesTotal: res.Size,
	})
	q.logger.Info(ctx, "job succeeded", "job_id", id, "key", key, "catalog_id", catalogID)
}

// fetchProgress maps fetched bytes into the fetch band and publishes once per
// whole percent.
func (q *Queue) fetchProgress(id string) fetch.ProgressFunc {
	var (
		meter *progress.Meter
		last  = -1
	)
	return func(done, total int64) {
		if meter == nil {
			meter = progress.NewMeter(total)
		}
		pct := pctFetchStart
		if total > 0 {
			pct += int(int64(pctSaveStart-pctFetchStart) * min(done, total) / total)
		}
		if pct == last {
			return
		}
		last = pct
		bps, eta := meter.Observe(done)
		q.pub.PublishProgress(models.TransferProgress{
			TransferID:     id,
			Percent:        float64(pct),
			Status:         "fetching",
			BytesDone:      done,
			BytesTotal:     total,
			BytesPerSecond: bps,
			ETA:            eta,
		})
	}
}

// save stores the fetched payload and registers it. A blob stored before a
// later failure is deleted.
func (q *Queue) save(ctx context.Context, j *models.DownloadJob, res fetch.Result) (key, catalogID string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: save panic: %v", common.ErrorInternal, p)
		}
		if err != nil && key != "" {
			if _, derr := q.blobs.Delete(key); derr != nil {
				q.logger.Warn(ctx, "failed to delete blob", "key", key, "error", derr)
			}
			key = ""
		}
	}()

	category := j.Destination.ResolveCategory(res.ContentType)
	if j.Hint == models.HintAudioOnly {
		category = models.CategoryAudio
	}

	f, err := os.Open(res.Path)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", common.ErrorStorage, err)
	}
	defer f.Close()

	hw, err := checksum.NewWriter(checksum.Default)
	if err != nil {
		return "", "", err
	}
	key, n, err := q.blobs.Store(ctx, io.TeeReader(f, hw), category, res.Size, res.Title)
	if err != nil {
		return "", "", err
	}

	dest := j.Destination
	dest.Category = category
	if dest.Title == "" {
		dest.Title = res.Title
	}
	if dest.Owner == "" {
		dest.Owner = j.Owner
	}
	catalogID, err = q.catalog.Register(ctx, catalog.Blob{
		StorageKey:  key,
		Size:        n,
		Checksum:    hw.Digest().String(),
		ContentType: res.ContentType,
		Filename:    res.Title,
		Source:      catalog.SourceDownload,
	}, dest)
	if err != nil {
		return key, "", fmt.Errorf("catalog register: %w", err)
	}
	return key, catalogID, nil
}

// finishFailed records the failure; message is stored verbatim.
func (q *Queue) finishFailed(ctx context.Context, j *models.DownloadJob, cause error, message string) {
	kind := common.KindOf(cause)
	q.logger.Warn(ctx, "job failed", "job_id", j.ID, "kind", kind, "error", message)

	err := q.store.Finish(ctx, j.ID, models.JobRunning, models.JobFailed, jobs.Result{
		At:        q.now(),
		Error:     message,
		ErrorKind: kind,
	})
	if err != nil {
		q.logger.Error(ctx, "failed to record job failure", "job_id", j.ID, "error", err)
	}

	q.pub.MarkTerminal(models.TransferProgress{TransferID: j.ID, Status: "failed", Message: message})
}

func (q *Queue) GetStatus(ctx context.Context, id string) (*models.DownloadJob, error) {
	return q.store.Get(ctx, id)
}

// GetActiveJobsFor lists QUEUED and RUNNING jobs of owner.
func (q *Queue) GetActiveJobsFor(ctx context.Context, owner string) ([]*models.DownloadJob, error) {
	return q.store.ListActive(ctx, owner)
}

// Cancel withdraws a job that has not started yet.
func (q *Queue) Cancel(ctx context.Context, id string) (bool, error) {
	err := q.store.Finish(ctx, id, models.JobQueued, models.JobCancelled, jobs.Result{At: q.now()})
	if err != nil {
		return false, err
	}
	q.pub.MarkTerminal(models.TransferProgress{TransferID: id, Status: "cancelled"})
	q.logger.Info(ctx, "job cancelled", "job_id", id)
	return true, nil
}

// Sweep deletes terminal jobs older than the retention period.
func (q *Queue) Sweep(ctx context.Context) (int, error) {
	ids, err := q.store.ListFinishedBefore(ctx, q.now().Add(-q.opts.Retention))
	if err != nil {
		return 0, err
	}

	var (
		errs    error
		removed int
	)
	for _, id := range ids {
		ok, err := q.store.Delete(ctx, id)
		errs = multierr.Append(errs, err)
		if ok {
			removed++
		}
	}
	return removed, errs
}

// Recover fails jobs a previous process left RUNNING and resubmits QUEUED
// ones.
func (q *Queue) Recover(ctx context.Context) error {
	var errs error

	running, err := q.store.ListByStatus(ctx, models.JobRunning)
	errs = multierr.Append(errs, err)
	for _, j := range running {
		err := q.store.Finish(ctx, j.ID, models.JobRunning, models.JobFailed, jobs.Result{
			At:        q.now(),
			Error:     "interrupted",
			ErrorKind: common.KindOf(common.ErrorInternal),
		})
		errs = multierr.Append(errs, err)
	}

	queued, err := q.store.ListByStatus(ctx, models.JobQueued)
	errs = multierr.Append(errs, err)
	for _, j := range queued {
		errs = multierr.Append(errs, q.exec.Submit(q.task(j.ID)))
	}
	return errs
}
