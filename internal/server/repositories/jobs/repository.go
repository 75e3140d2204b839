// Package jobs persists remote download jobs.
package jobs

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gophmedia/internal/server/models"
)

// Result holds the fields recorded when a job leaves RUNNING or QUEUED.
type Result struct {
	At          time.Time
	Title       string
	ContentType string
	StorageKey  string
	CatalogID   string
	Error       string
	ErrorKind   string
}

type Repository interface {
	Create(ctx context.Context, j *models.DownloadJob) error
	Get(ctx context.Context, id string) (*models.DownloadJob, error)

	// Claim moves a QUEUED job to RUNNING and returns it. Any other status
	// yields common.ErrorInvalidState.
	Claim(ctx context.Context, id string, at time.Time) (*models.DownloadJob, error)

	// Finish moves the job from one status to a terminal one.
	Finish(ctx context.Context, id string, from, to models.JobStatus, r Result) error

	// ListActive returns QUEUED and RUNNING jobs of owner in queue order. An
	// empty owner matches every job.
	ListActive(ctx context.Context, owner string) ([]*models.DownloadJob, error)
	ListByStatus(ctx context.Context, status models.JobStatus) ([]*models.DownloadJob, error)

	// ListFinishedBefore returns terminal jobs completed before the cutoff.
	ListFinishedBefore(ctx context.Context, before time.Time) ([]string, error)
	Delete(ctx context.Context, id string) (bool, error)
}
