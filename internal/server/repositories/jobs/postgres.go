package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophmedia/internal/common"
	"github.com/dmitrijs2005/gophmedia/internal/dbx"
	"github.com/dmitrijs2005/gophmedia/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const jobColumns = `id, url, owner, hint, status, category, visibility, dest_owner, dest_title, description,
	queued_at, started_at, completed_at, title, content_type, storage_key, catalog_id, error, error_kind`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.DownloadJob, error) {
	var (
		j                      models.DownloadJob
		hint, status, category string
		started, completed     sql.NullTime
	)
	err := row.Scan(&j.ID, &j.URL, &j.Owner, &hint, &status, &category, &j.Destination.Visibility,
		&j.Destination.Owner, &j.Destination.Title, &j.Destination.Description,
		&j.QueuedAt, &started, &completed, &j.Title, &j.ContentType, &j.StorageKey, &j.CatalogID,
		&j.Error, &j.ErrorKind)
	if err != nil {
		return nil, err
	}
	j.Hint = models.TransferHint(hint)
	j.Status = models.JobStatus(status)
	j.Destination.Category = models.Category(category)
	if started.Valid {
		t := started.Time
		j.StartedAt = &t
	}
	if completed.Valid {
		t := completed.Time
		j.CompletedAt = &t
	}
	return &j, nil
}

func (r *PostgresRepository) Create(ctx context.Context, j *models.DownloadJob) error {
	query := `
		INSERT INTO download_jobs (id, url, owner, hint, status, category, visibility, dest_owner, dest_title, description, queued_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.ExecContext(ctx, query, j.ID, j.URL, j.Owner, string(j.Hint), string(j.Status),
		string(j.Destination.Category), j.Destination.Visibility, j.Destination.Owner,
		j.Destination.Title, j.Destination.Description, j.QueuedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.DownloadJob, error) {
	j, err := scanJob(r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM download_jobs WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select job: %w", err)
	}
	return j, nil
}

func (r *PostgresRepository) stateError(ctx context.Context, id string, want models.JobStatus) error {
	var status string
	err := r.db.QueryRowContext(ctx, `SELECT status FROM download_jobs WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrorNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to select job: %w", err)
	}
	return fmt.Errorf("%w: job is %s, want %s", common.ErrorInvalidState, status, want)
}

func (r *PostgresRepository) Claim(ctx context.Context, id string, at time.Time) (*models.DownloadJob, error) {
	query := `
		UPDATE download_jobs SET status = 'RUNNING', started_at = $2
		WHERE id = $1 AND status = 'QUEUED'
		RETURNING ` + jobColumns

	j, err := scanJob(r.db.QueryRowContext(ctx, query, id, at))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, r.stateError(ctx, id, models.JobQueued)
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return j, nil
}

func (r *PostgresRepository) Finish(ctx context.Context, id string, from, to models.JobStatus, res Result) error {
	query := `
		UPDATE download_jobs SET
			status = $3,
			completed_at = $4,
			title = COALESCE(NULLIF($5, ''), title),
			content_type = COALESCE(NULLIF($6, ''), content_type),
			storage_key = $7,
			catalog_id = $8,
			error = $9,
			error_kind = $10
		WHERE id = $1 AND status = $2`

	err := dbx.Exec1(ctx, r.db, errNoRow, query, id, string(from), string(to), res.At,
		res.Title, res.ContentType, res.StorageKey, res.CatalogID, res.Error, res.ErrorKind)
	if errors.Is(err, errNoRow) {
		return r.stateError(ctx, id, from)
	}
	return err
}

var errNoRow = errors.New("no row updated")

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*models.DownloadJob, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select jobs: %w", err)
	}
	defer rows.Close()

	var out []*models.DownloadJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) ListActive(ctx context.Context, owner string) ([]*models.DownloadJob, error) {
	return r.list(ctx, `
		SELECT `+jobColumns+` FROM download_jobs
		WHERE status IN ('QUEUED', 'RUNNING') AND ($1 = '' OR owner = $1)
		ORDER BY queued_at`, owner)
}

func (r *PostgresRepository) ListByStatus(ctx context.Context, status models.JobStatus) ([]*models.DownloadJob, error) {
	return r.list(ctx, `SELECT `+jobColumns+` FROM download_jobs WHERE status = $1 ORDER BY queued_at`, string(status))
}

func (r *PostgresRepository) ListFinishedBefore(ctx context.Context, before time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM download_jobs WHERE status IN ('SUCCEEDED', 'FAILED', 'CANCELLED') AND completed_at < $1`, before)
	if err != nil {
		return nil, fmt.Errorf("failed to select jobs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM download_jobs WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n > 0, nil
}
