package sessions

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

// PostgresRepository stores sessions in upload_sessions and the received set
// in upload_chunks, one row per accepted index.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const sessionColumns = `id, filename, content_type, total_size, chunk_size, total_chunks, received_bytes,
	expected_checksum, checksum, status, error, error_kind, storage_key, catalog_id,
	category, visibility, owner, title, description, created_at, last_activity, finalized_at`

func (r *PostgresRepository) Create(ctx context.Context, s *models.UploadSession) error {
	query := `
		INSERT INTO upload_sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`

	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.Filename, s.ContentType, s.TotalSize, s.ChunkSize, s.TotalChunks, s.ReceivedBytes,
		s.ExpectedChecksum, s.Checksum, string(s.Status), s.Error, s.ErrorKind, s.StorageKey, s.CatalogID,
		string(s.Destination.Category), s.Destination.Visibility, s.Destination.Owner, s.Destination.Title, s.Destination.Description,
		s.CreatedAt, s.LastActivity, nullTime(s.FinalizedAt))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.UploadSession, error) {
	var (
		s         models.UploadSession
		status    string
		category  string
		finalized sql.NullTime
	)
	err := row.Scan(&s.ID, &s.Filename, &s.ContentType, &s.TotalSize, &s.ChunkSize, &s.TotalChunks, &s.ReceivedBytes,
		&s.ExpectedChecksum, &s.Checksum, &status, &s.Error, &s.ErrorKind, &s.StorageKey, &s.CatalogID,
		&category, &s.Destination.Visibility, &s.Destination.Owner, &s.Destination.Title, &s.Destination.Description,
		&s.CreatedAt, &s.LastActivity, &finalized)
	if err != nil {
		return nil, err
	}
	s.Status = models.SessionStatus(status)
	s.Destination.Category = models.Category(category)
	if finalized.Valid {
		t := finalized.Time
		s.FinalizedAt = &t
	}
	return &s, nil
}

func (r *PostgresRepository) loadChunks(ctx context.Context, s *models.UploadSession) error {
	rows, err := r.db.QueryContext(ctx, `SELECT chunk_index FROM upload_chunks WHERE session_id = $1 ORDER BY chunk_index`, s.ID)
	if err != nil {
		return fmt.Errorf("failed to select chunks: %w", err)
	}
	defer rows.Close()

	s.Received = make([]int, 0, s.TotalChunks)
	for rows.Next() {
		var idx int
		if err := rows.Scan(&idx); err != nil {
			return err
		}
		s.Received = append(s.Received, idx)
	}
	return rows.Err()
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.UploadSession, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM upload_sessions WHERE id = $1`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select session: %w", err)
	}
	if err := r.loadChunks(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// AddChunk locks the session row so that exactly one caller observes the
// set becoming complete.
func (r *PostgresRepository) AddChunk(ctx context.Context, id string, index int, size int64, at time.Time) (ChunkResult, error) {
	var res ChunkResult

	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var (
			status        string
			total         int
			receivedBytes int64
		)
		err := tx.QueryRowContext(ctx,
			`SELECT status, total_chunks, received_bytes FROM upload_sessions WHERE id = $1 FOR UPDATE`, id).
			Scan(&status, &total, &receivedBytes)
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrorNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock session: %w", err)
		}
		if models.SessionStatus(status) != models.SessionInProgress {
			return fmt.Errorf("%w: session is %s", common.ErrorInvalidState, status)
		}
		if index < 0 || index >= total {
			return fmt.Errorf("%w: chunk %d of %d", common.ErrorOutOfRange, index, total)
		}

		ins, err := tx.ExecContext(ctx, `
			INSERT INTO upload_chunks (session_id, chunk_index, size, received_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (session_id, chunk_index) DO NOTHING`, id, index, size, at)
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		n, err := ins.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected error: %w", err)
		}
		res.Added = n == 1

		if res.Added {
			receivedBytes += size
			if _, err := tx.ExecContext(ctx,
				`UPDATE upload_sessions SET received_bytes = $2, last_activity = $3 WHERE id = $1`,
				id, receivedBytes, at); err != nil {
				return fmt.Errorf("db error: %w", err)
			}
		}
		res.ReceivedBytes = receivedBytes

		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM upload_chunks WHERE session_id = $1`, id).Scan(&res.Received); err != nil {
			return fmt.Errorf("failed to count chunks: %w", err)
		}

		if res.Added && res.Received == total {
			if _, err := tx.ExecContext(ctx,
				`UPDATE upload_sessions SET status = $2 WHERE id = $1`,
				id, string(models.SessionAssembling)); err != nil {
				return fmt.Errorf("db error: %w", err)
			}
			res.Completed = true
		}
		return nil
	})
	if err != nil {
		return ChunkResult{}, err
	}
	return res, nil
}

// stateError explains why a conditional update matched no row.
func (r *PostgresRepository) stateError(ctx context.Context, id string, want string) error {
	var status string
	err := r.db.QueryRowContext(ctx, `SELECT status FROM upload_sessions WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrorNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to select session: %w", err)
	}
	return fmt.Errorf("%w: session is %s, want %s", common.ErrorInvalidState, status, want)
}

func (r *PostgresRepository) Transition(ctx context.Context, id string, from, to models.SessionStatus, u Update) error {
	query := `
		UPDATE upload_sessions SET
			status = $3,
			last_activity = COALESCE($4, last_activity),
			error = COALESCE(NULLIF($5, ''), error),
			error_kind = COALESCE(NULLIF($6, ''), error_kind),
			storage_key = COALESCE(NULLIF($7, ''), storage_key),
			checksum = COALESCE(NULLIF($8, ''), checksum)
		WHERE id = $1 AND status = $2`

	err := dbx.Exec1(ctx, r.db, errNoRow, query,
		id, string(from), string(to), nullTimeValue(u.At), u.Error, u.ErrorKind, u.StorageKey, u.Checksum)
	if errors.Is(err, errNoRow) {
		return r.stateError(ctx, id, string(from))
	}
	return err
}

var errNoRow = errors.New("no row updated")

func (r *PostgresRepository) ClaimFinalize(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE upload_sessions SET finalized_at = $2 WHERE id = $1 AND status = 'COMPLETED' AND finalized_at IS NULL`

	err := dbx.Exec1(ctx, r.db, errNoRow, query, id, at)
	if !errors.Is(err, errNoRow) {
		return err
	}

	var (
		status    string
		finalized sql.NullTime
	)
	err = r.db.QueryRowContext(ctx, `SELECT status, finalized_at FROM upload_sessions WHERE id = $1`, id).Scan(&status, &finalized)
	switch {
	case errors.Is(err, sql.ErrNoRows), err == nil && finalized.Valid:
		return common.ErrorNotFound
	case err != nil:
		return fmt.Errorf("failed to select session: %w", err)
	}
	return fmt.Errorf("%w: session is %s", common.ErrorInvalidState, status)
}

func (r *PostgresRepository) ReleaseFinalize(ctx context.Context, id string) error {
	return dbx.Exec1(ctx, r.db, common.ErrorNotFound, `UPDATE upload_sessions SET finalized_at = NULL WHERE id = $1`, id)
}

func (r *PostgresRepository) SetCatalogID(ctx context.Context, id, catalogID string) error {
	return dbx.Exec1(ctx, r.db, common.ErrorNotFound, `UPDATE upload_sessions SET catalog_id = $2 WHERE id = $1`, id, catalogID)
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM upload_sessions WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n > 0, nil
}

func (r *PostgresRepository) selectIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select sessions: %w", err)
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

func (r *PostgresRepository) ListIdle(ctx context.Context, before time.Time) ([]string, error) {
	return r.selectIDs(ctx, `SELECT id FROM upload_sessions WHERE status = 'IN_PROGRESS' AND last_activity < $1`, before)
}

func (r *PostgresRepository) ListExpired(ctx context.Context, before time.Time) ([]string, error) {
	return r.selectIDs(ctx, `
		SELECT id FROM upload_sessions
		WHERE (status = 'FAILED' AND last_activity < $1) OR finalized_at < $1`, before)
}

func (r *PostgresRepository) ListByStatus(ctx context.Context, status models.SessionStatus) ([]*models.UploadSession, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM upload_sessions WHERE status = $1`, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to select sessions: %w", err)
	}

	var out []*models.UploadSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, s)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, err
	}

	for _, s := range out {
		if err := r.loadChunks(ctx, s); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullTimeValue(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
