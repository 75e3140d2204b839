package jobs

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophmedia/internal/common"
	"github.com/dmitrijs2005/gophmedia/internal/server/models"
)

type MemoryRepository struct {
	mu   sync.RWMutex
	jobs map[string]*models.DownloadJob
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{jobs: make(map[string]*models.DownloadJob)}
}

func (r *MemoryRepository) Create(_ context.Context, j *models.DownloadJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[j.ID]; ok {
		return fmt.Errorf("job %s already exists", j.ID)
	}
	r.jobs[j.ID] = j.Clone()
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*models.DownloadJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return j.Clone(), nil
}

func (r *MemoryRepository) Claim(_ context.Context, id string, at time.Time) (*models.DownloadJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	if j.Status != models.JobQueued {
		return nil, fmt.Errorf("%w: job is %s", common.ErrorInvalidState, j.Status)
	}
	j.Status = models.JobRunning
	j.StartedAt = &at
	return j.Clone(), nil
}

func (r *MemoryRepository) Finish(_ context.Context, id string, from, to models.JobStatus, res Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok {
		return common.ErrorNotFound
	}
	if j.Status != from {
		return fmt.Errorf("%w: job is %s, want %s", common.ErrorInvalidState, j.Status, from)
	}
	j.Status = to
	at := res.At
	j.CompletedAt = &at
	if res.Title != "" {
		j.Title = res.Title
	}
	if res.ContentType != "" {
		j.ContentType = res.ContentType
	}
	j.StorageKey = res.StorageKey
	j.CatalogID = res.CatalogID
	j.Error = res.Error
	j.ErrorKind = res.ErrorKind
	return nil
}

func (r *MemoryRepository) collect(match func(*models.DownloadJob) bool) []*models.DownloadJob {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.DownloadJob
	for _, j := range r.jobs {
		if match(j) {
			out = append(out, j.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *models.DownloadJob) int {
		return a.QueuedAt.Compare(b.QueuedAt)
	})
	return out
}

func (r *MemoryRepository) ListActive(_ context.Context, owner string) ([]*models.DownloadJob, error) {
	return r.collect(func(j *models.DownloadJob) bool {
		return j.Status.IsActive() && (owner == "" || j.Owner == owner)
	}), nil
}

func (r *MemoryRepository) ListByStatus(_ context.Context, status models.JobStatus) ([]*models.DownloadJob, error) {
	return r.collect(func(j *models.DownloadJob) bool { return j.Status == status }), nil
}

func (r *MemoryRepository) ListFinishedBefore(_ context.Context, before time.Time) ([]string, error) {
	jobs := r.collect(func(j *models.DownloadJob) bool {
		return j.Status.IsTerminal() && j.CompletedAt != nil && j.CompletedAt.Before(before)
	})
	ids := make([]string, 0, len(jobs))
	for _, j := range jobs {
		ids = append(ids, j.ID)
	}
	return ids, nil
}

func (r *MemoryRepository) Delete(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.jobs[id]
	delete(r.jobs, id)
	return ok, nil
}
