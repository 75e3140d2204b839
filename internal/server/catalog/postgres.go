package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/gophmedia/internal/dbx"
	"github.com/dmitrijs2005/gophmedia/internal/server/models"
)

// PostgresCatalog inserts entries into media_entries.
type PostgresCatalog struct {
	db dbx.DBTX
}

func NewPostgresCatalog(db dbx.DBTX) *PostgresCatalog {
	return &PostgresCatalog{db: db}
}

func (c *PostgresCatalog) Register(ctx context.Context, b Blob, dest models.Destination) (string, error) {
	query := `
		INSERT INTO media_entries (id, storage_key, size, checksum, content_type, filename, source,
			category, visibility, owner, title, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	id := uuid.NewString()
	title := dest.Title
	if title == "" {
		title = b.Filename
	}

	_, err := c.db.ExecContext(ctx, query, id, b.StorageKey, b.Size, b.Checksum, b.ContentType, b.Filename, b.Source,
		string(dest.ResolveCategory(b.ContentType)), dest.Visibility, dest.Owner, title, dest.Description)
	if err != nil {
		return "", fmt.Errorf("db error: %w", err)
	}
	return id, nil
}
