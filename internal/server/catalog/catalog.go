// Package catalog registers stored blobs as media entries visible to the rest
// of the platform.
package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/gophmedia/internal/server/models"
)

const (
	SourceUpload   = "upload"
	SourceDownload = "download"
)

// Blob describes a finished blob in TieredStorage.
type Blob struct {
	StorageKey  string
	Size        int64
	Checksum    string
	ContentType string
	Filename    string
	Source      string
}

type Catalog interface {
	Register(ctx context.Context, b Blob, dest models.Destination) (string, error)
}

// Entry is a catalog record held by MemoryCatalog.
type Entry struct {
	ID          string
	Blob        Blob
	Destination models.Destination
	CreatedAt   time.Time
}

type MemoryCatalog struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{entries: make(map[string]Entry)}
}

func (c *MemoryCatalog) Register(_ context.Context, b Blob, dest models.Destination) (string, error) {
	id := uuid.NewString()
	c.mu.Lock()
	c.entries[id] = Entry{ID: id, Blob: b, Destination: dest, CreatedAt: time.Now()}
	c.mu.Unlock()
	return id, nil
}

func (c *MemoryCatalog) Get(id string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[id]
	return e, ok
}

func (c *MemoryCatalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
