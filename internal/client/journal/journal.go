// Package journal remembers which upload session belongs to which local file
// so an interrupted upload can resume from the chunks the server is missing.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/dmitrijs2005/gophmedia/internal/client/migrations"
	"github.com/dmitrijs2005/gophmedia/internal/dbx"
)

// Entry ties a local file, identified by path, size and modification time,
// to a server session.
type Entry struct {
	Path      string
	Size      int64
	ModTime   time.Time
	ChunkSize int64
	SessionID string
	Checksum  string
	CreatedAt time.Time
}

// Matches reports whether e still describes the file with the given size and
// modification time.
func (e *Entry) Matches(size int64, modTime time.Time) bool {
	return e.Size == size && e.ModTime.UnixNano() == modTime.UnixNano()
}

type Repository interface {
	Get(ctx context.Context, path string) (*Entry, error)
	Put(ctx context.Context, e *Entry) error
	Delete(ctx context.Context, path string) error
	List(ctx context.Context) ([]*Entry, error)
}

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	// Set the database dialect
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// Open opens (creating if needed) the journal at dsn and migrates it.
func Open(ctx context.Context, dsn string) (*SQLiteRepository, *sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, nil, err
	}
	// A single connection keeps ":memory:" journals coherent.
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, nil, err
	}
	return NewSQLiteRepository(db), db, nil
}

// Get returns (nil, nil) when path has no entry.
func (r *SQLiteRepository) Get(ctx context.Context, path string) (*Entry, error) {
	var (
		e                 Entry
		modTime, creation int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT path, size, mod_time, chunk_size, session_id, checksum, created_at
		FROM uploads WHERE path = ?`, path).
		Scan(&e.Path, &e.Size, &modTime, &e.ChunkSize, &e.SessionID, &e.Checksum, &creation)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get upload[%s]: %w", path, err)
	}
	e.ModTime = time.Unix(0, modTime)
	e.CreatedAt = time.Unix(0, creation)
	return &e, nil
}

func (r *SQLiteRepository) Put(ctx context.Context, e *Entry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO uploads (path, size, mod_time, chunk_size, session_id, checksum, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			size = excluded.size,
			mod_time = excluded.mod_time,
			chunk_size = excluded.chunk_size,
			session_id = excluded.session_id,
			checksum = excluded.checksum,
			created_at = excluded.created_at
	`, e.Path, e.Size, e.ModTime.UnixNano(), e.ChunkSize, e.SessionID, e.Checksum, e.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to put upload[%s]: %w", e.Path, err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, path string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM uploads WHERE path = ?`, path)
	if err != nil {
		return fmt.Errorf("failed to delete upload[%s]: %w", path, err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT path, size, mod_time, chunk_size, session_id, checksum, created_at
		FROM uploads ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		var (
			e                 Entry
			modTime, creation int64
		)
		if err := rows.Scan(&e.Path, &e.Size, &modTime, &e.ChunkSize, &e.SessionID, &e.Checksum, &creation); err != nil {
			return nil, fmt.Errorf("failed to scan upload row: %w", err)
		}
		e.ModTime = time.Unix(0, modTime)
		e.CreatedAt = time.Unix(0, creation)
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate upload rows: %w", err)
	}
	return out, nil
}
