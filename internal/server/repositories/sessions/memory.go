package sessions

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophmedia/internal/common"
	"github.com/dmitrijs2005/gophmedia/internal/server/models"
)

// MemoryRepository keeps sessions in process memory.
type MemoryRepository struct {
	mu       sync.RWMutex
	sessions map[string]*models.UploadSession
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{sessions: make(map[string]*models.UploadSession)}
}

func (r *MemoryRepository) Create(_ context.Context, s *models.UploadSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID]; ok {
		return fmt.Errorf("session %s already exists", s.ID)
	}
	r.sessions[s.ID] = s.Clone()
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*models.UploadSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return s.Clone(), nil
}

func (r *MemoryRepository) AddChunk(_ context.Context, id string, index int, size int64, at time.Time) (ChunkResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return ChunkResult{}, common.ErrorNotFound
	}
	if s.Status != models.SessionInProgress {
		return ChunkResult{}, fmt.Errorf("%w: session is %s", common.ErrorInvalidState, s.Status)
	}
	if index < 0 || index >= s.TotalChunks {
		return ChunkResult{}, fmt.Errorf("%w: chunk %d of %d", common.ErrorOutOfRange, index, s.TotalChunks)
	}

	pos, found := slices.BinarySearch(s.Received, index)
	res := ChunkResult{Added: !found}
	if !found {
		s.Received = slices.Insert(s.Received, pos, index)
		s.ReceivedBytes += size
		s.LastActivity = at
		if s.IsComplete() {
			s.Status = models.SessionAssembling
			res.Completed = true
		}
	}
	res.Received = len(s.Received)
	res.ReceivedBytes = s.ReceivedBytes
	return res, nil
}

func (r *MemoryRepository) Transition(_ context.Context, id string, from, to models.SessionStatus, u Update) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return common.ErrorNotFound
	}
	if s.Status != from {
		return fmt.Errorf("%w: session is %s, want %s", common.ErrorInvalidState, s.Status, from)
	}
	s.Status = to
	if !u.At.IsZero() {
		s.LastActivity = u.At
	}
	if u.Error != "" {
		s.Error, s.ErrorKind = u.Error, u.ErrorKind
	}
	if u.StorageKey != "" {
		s.StorageKey = u.StorageKey
	}
	if u.Checksum != "" {
		s.Checksum = u.Checksum
	}
	return nil
}

func (r *MemoryRepository) ClaimFinalize(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok || s.FinalizedAt != nil {
		return common.ErrorNotFound
	}
	if s.Status != models.SessionCompleted {
		return fmt.Errorf("%w: session is %s", common.ErrorInvalidState, s.Status)
	}
	s.FinalizedAt = &at
	return nil
}

func (r *MemoryRepository) ReleaseFinalize(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return common.ErrorNotFound
	}
	s.FinalizedAt = nil
	return nil
}

func (r *MemoryRepository) SetCatalogID(_ context.Context, id, catalogID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return common.ErrorNotFound
	}
	s.CatalogID = catalogID
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.sessions[id]
	delete(r.sessions, id)
	return ok, nil
}

func (r *MemoryRepository) ListIdle(_ context.Context, before time.Time) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for id, s := range r.sessions {
		if s.Status == models.SessionInProgress && s.LastActivity.Before(before) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *MemoryRepository) ListExpired(_ context.Context, before time.Time) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for id, s := range r.sessions {
		failed := s.Status == models.SessionFailed && s.LastActivity.Before(before)
		finalized := s.FinalizedAt != nil && s.FinalizedAt.Before(before)
		if failed || finalized {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *MemoryRepository) ListByStatus(_ context.Context, status models.SessionStatus) ([]*models.UploadSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.UploadSession
	for _, s := range r.sessions {
		if s.Status == status {
			out = append(out, s.Clone())
		}
	}
	return out, nil
}
