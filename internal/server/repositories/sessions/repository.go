// Package sessions persists upload sessions and their received-chunk sets.
package sessions

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gophmedia/internal/server/models"
)

// ChunkResult describes the effect of AddChunk.
type ChunkResult struct {
	// Added is false when the index was already recorded.
	Added         bool
	Received      int
	ReceivedBytes int64
	// Completed is true for exactly one caller: the one whose chunk made the
	// set complete and moved the session to ASSEMBLING.
	Completed bool
}

// Update holds the fields a status transition may set.
type Update struct {
	At         time.Time
	Error      string
	ErrorKind  string
	StorageKey string
	Checksum   string
}

type Repository interface {
	Create(ctx context.Context, s *models.UploadSession) error
	Get(ctx context.Context, id string) (*models.UploadSession, error)

	// AddChunk records index as received while the session is IN_PROGRESS.
	AddChunk(ctx context.Context, id string, index int, size int64, at time.Time) (ChunkResult, error)

	// Transition moves the session from one status to another and fails with
	// common.ErrorInvalidState if the current status is not from.
	Transition(ctx context.Context, id string, from, to models.SessionStatus, u Update) error

	// ClaimFinalize marks a COMPLETED session as being finalized. A session
	// finalized before reports common.ErrorNotFound.
	ClaimFinalize(ctx context.Context, id string, at time.Time) error
	ReleaseFinalize(ctx context.Context, id string) error
	SetCatalogID(ctx context.Context, id, catalogID string) error

	Delete(ctx context.Context, id string) (bool, error)

	// ListIdle returns IN_PROGRESS sessions with no activity since before.
	ListIdle(ctx context.Context, before time.Time) ([]string, error)
	// ListExpired returns FAILED sessions and finalized sessions older than
	// before.
	ListExpired(ctx context.Context, before time.Time) ([]string, error)
	ListByStatus(ctx context.Context, status models.SessionStatus) ([]*models.UploadSession, error)
}
