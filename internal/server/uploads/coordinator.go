// Package uploads drives chunked, resumable uploads from session open through
// assembly into TieredStorage and registration in the catalog.
package uploads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/dmitrijs2005/gophmedia/internal/checksum"
	"github.com/dmitrijs2005/gophmedia/internal/common"
	"github.com/dmitrijs2005/gophmedia/internal/filex"
	"github.com/dmitrijs2005/gophmedia/internal/logging"
	"github.com/dmitrijs2005/gophmedia/internal/server/catalog"
	"github.com/dmitrijs2005/gophmedia/internal/server/models"
	"github.com/dmitrijs2005/gophmedia/internal/server/progress"
	"github.com/dmitrijs2005/gophmedia/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/gophmedia/internal/workerpool"
)

// BlobStore is the part of TieredStorage used here.
type BlobStore interface {
	Store(ctx context.Context, r io.Reader, category models.Category, declaredSize int64, filename string) (string, int64, error)
	Delete(key string) (bool, error)
}

type Publisher interface {
	PublishProgress(p models.TransferProgress)
	MarkTerminal(final models.TransferProgress)
}

// Executor runs background work. *workerpool.Pool implements it.
type Executor interface {
	Submit(t workerpool.Task) error
	After(d time.Duration, t workerpool.Task) (cancel func() bool)
}

type Options struct {
	CopyBuffer          int
	RetainAfterFinalize time.Duration
	// MaxChunkSize bounds the chunk size a session may declare; 0 means no
	// limit.
	MaxChunkSize int64
	// MaxChunks bounds the chunk count of one session; 0 means
	// DefaultMaxChunks.
	MaxChunks int
}

const DefaultMaxChunks = 1 << 20

type OpenRequest struct {
	Filename         string
	ContentType      string
	TotalSize        int64
	ChunkSize        int64
	ExpectedChecksum string
	Destination      models.Destination
}

// ChunkReceipt acknowledges a SubmitChunk call.
type ChunkReceipt struct {
	Index         int
	Duplicate     bool
	Received      int
	TotalChunks   int
	ReceivedBytes int64
	Percent       float64
	// Complete is set on the call that completed the chunk set.
	Complete bool
}

type Coordinator struct {
	store   sessions.Repository
	blobs   BlobStore
	pub     Publisher
	catalog catalog.Catalog
	exec    Executor
	scratch *Scratch
	opts    Options
	logger  logging.Logger
	now     func() time.Time

	mu     sync.Mutex
	meters map[string]*progress.Meter
}

func NewCoordinator(store sessions.Repository, blobs BlobStore, pub Publisher, cat catalog.Catalog,
	exec Executor, scratch *Scratch, opts Options, l logging.Logger) *Coordinator {
	if opts.CopyBuffer <= 0 {
		opts.CopyBuffer = 1 << 20
	}
	if opts.MaxChunks <= 0 {
		opts.MaxChunks = DefaultMaxChunks
	}
	return &Coordinator{
		store:   store,
		blobs:   blobs,
		pub:     pub,
		catalog: cat,
		exec:    exec,
		scratch: scratch,
		opts:    opts,
		logger:  l.With("module", "uploads"),
		now:     time.Now,
		meters:  make(map[string]*progress.Meter),
	}
}

func (c *Coordinator) OpenSession(ctx context.Context, req OpenRequest) (*models.UploadSession, error) {
	if req.TotalSize <= 0 {
		return nil, fmt.Errorf("%w: total size must be positive", common.ErrorInvalidArgument)
	}
	if req.ChunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive", common.ErrorInvalidArgument)
	}
	if c.opts.MaxChunkSize > 0 && req.ChunkSize > c.opts.MaxChunkSize {
		return nil, fmt.Errorf("%w: chunk size %d exceeds %d", common.ErrorInvalidArgument, req.ChunkSize, c.opts.MaxChunkSize)
	}
	if n := (req.TotalSize-1)/req.ChunkSize + 1; n > int64(c.opts.MaxChunks) {
		return nil, fmt.Errorf("%w: %d chunks exceeds %d", common.ErrorInvalidArgument, n, c.opts.MaxChunks)
	}
	if req.Destination.Category != "" && !req.Destination.Category.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", common.ErrorInvalidArgument, req.Destination.Category)
	}
	if req.ExpectedChecksum != "" {
		d, err := checksum.Parse(req.ExpectedChecksum)
		if err != nil {
			return nil, err
		}
		req.ExpectedChecksum = d.String()
	}

	now := c.now()
	s := &models.UploadSession{
		ID:               uuid.NewString(),
		Filename:         req.Filename,
		ContentType:      req.ContentType,
		TotalSize:        req.TotalSize,
		ChunkSize:        req.ChunkSize,
		TotalChunks:      models.ChunkCount(req.TotalSize, req.ChunkSize),
		Received:         []int{},
		ExpectedChecksum: req.ExpectedChecksum,
		Status:           models.SessionInProgress,
		CreatedAt:        now,
		LastActivity:     now,
		Destination:      req.Destination,
	}

	if err := c.scratch.Create(s.ID); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrorStorage, err)
	}
	if err := c.store.Create(ctx, s); err != nil {
		_ = c.scratch.Release(s.ID)
		return nil, err
	}

	c.meterFor(s.ID, s.TotalSize)
	c.pub.PublishProgress(models.TransferProgress{
		TransferID: s.ID,
		Status:     "open",
		Message:    fmt.Sprintf("0/%d chunks", s.TotalChunks),
		BytesTotal: s.TotalSize,
	})

	c.logger.Info(ctx, "session opened", "session_id", s.ID, "total_size", s.TotalSize, "chunks", s.TotalChunks)
	return s, nil
}

// SubmitChunk accepts the bytes of one chunk. A chunk already received is
// acknowledged as a duplicate without reading r.
func (c *Coordinator) SubmitChunk(ctx context.Context, id string, index int, r io.Reader, chunkChecksum string) (ChunkReceipt, error) {
	s, err := c.store.Get(ctx, id)
	if err != nil {
		return ChunkReceipt{}, err
	}
	if s.Status != models.SessionInProgress {
		return ChunkReceipt{}, fmt.Errorf("%w: session is %s", common.ErrorInvalidState, s.Status)
	}
	if index < 0 || index >= s.TotalChunks {
		return ChunkReceipt{}, fmt.Errorf("%w: chunk %d of %d", common.ErrorOutOfRange, index, s.TotalChunks)
	}
	if s.HasChunk(index) {
		return duplicateReceipt(s, index), nil
	}

	var want checksum.Digest
	if chunkChecksum != "" {
		if want, err = checksum.Parse(chunkChecksum); err != nil {
			return ChunkReceipt{}, err
		}
	}
	algo := want.Algorithm
	if algo == "" {
		algo = checksum.Default
	}

	tmpPath, err := c.receive(ctx, s, index, r, algo, want)
	if err != nil {
		return ChunkReceipt{}, err
	}

	if _, err := c.scratch.Publish(tmpPath, id, index); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ChunkReceipt{}, fmt.Errorf("%w: session scratch released", common.ErrorInvalidState)
		}
		return ChunkReceipt{}, fmt.Errorf("%w: %w", common.ErrorStorage, err)
	}

	size := s.ChunkLen(index)
	res, err := c.store.AddChunk(ctx, id, index, size, c.now())
	if err != nil {
		return ChunkReceipt{}, err
	}

	s.ReceivedBytes = res.ReceivedBytes
	rc := ChunkReceipt{
		Index:         index,
		Duplicate:     !res.Added,
		Received:      res.Received,
		TotalChunks:   s.TotalChunks,
		ReceivedBytes: res.ReceivedBytes,
		Percent:       s.Percent(),
		Complete:      res.Completed,
	}

	bps, eta := c.meterFor(id, s.TotalSize).Observe(res.ReceivedBytes)
	status := "uploading"
	if res.Completed {
		status = "assembling"
	}
	c.pub.PublishProgress(models.TransferProgress{
		TransferID:     id,
		Percent:        rc.Percent,
		Status:         status,
		Message:        fmt.Sprintf("%d/%d chunks", res.Received, s.TotalChunks),
		BytesDone:      res.ReceivedBytes,
		BytesTotal:     s.TotalSize,
		BytesPerSecond: bps,
		ETA:            eta,
	})

	if res.Completed {
		c.scheduleAssembly(ctx, id)
	}
	return rc, nil
}

// receive streams one chunk into a temp file, validating its size and
// optional digest. On success it returns the temp file path.
func (c *Coordinator) receive(ctx context.Context, s *models.UploadSession, index int, r io.Reader,
	algo checksum.Algorithm, want checksum.Digest) (string, error) {
	tmp, err := c.scratch.TempFile(s.ID)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: session scratch released", common.ErrorInvalidState)
		}
		return "", fmt.Errorf("%w: %w", common.ErrorStorage, err)
	}
	discard := func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}

	hw, err := checksum.NewWriter(algo)
	if err != nil {
		discard()
		return "", err
	}

	expected := s.ChunkLen(index)
	buf := make([]byte, min(int64(c.opts.CopyBuffer), expected+1))
	n, err := io.CopyBuffer(io.MultiWriter(tmp, hw), io.LimitReader(filex.ContextReader{Ctx: ctx, R: r}, expected+1), buf)
	if err != nil {
		discard()
		return "", err
	}
	if n != expected {
		discard()
		return "", fmt.Errorf("%w: chunk %d is %d bytes, want %d", common.ErrorSizeMismatch, index, n, expected)
	}
	if !want.IsZero() {
		if got := hw.Digest(); !got.Equal(want) {
			discard()
			return "", fmt.Errorf("chunk %d: %w", index, checksum.Mismatch(want, got))
		}
	}
	if err := tmp.Sync(); err != nil {
		discard()
		return "", fmt.Errorf("%w: %w", common.ErrorStorage, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("%w: %w", common.ErrorStorage, err)
	}
	return tmp.Name(), nil
}

func duplicateReceipt(s *models.UploadSession, index int) ChunkReceipt {
	return ChunkReceipt{
		Index:         index,
		Duplicate:     true,
		Received:      len(s.Received),
		TotalChunks:   s.TotalChunks,
		ReceivedBytes: s.ReceivedBytes,
		Percent:       s.Percent(),
	}
}

func (c *Coordinator) scheduleAssembly(ctx context.Context, id string) {
	if err := c.exec.Submit(func(ctx context.Context) { c.assemble(ctx, id) }); err != nil {
		// The session stays ASSEMBLING and is picked up by Recover.
		c.logger.Error(ctx, "failed to schedule assembly", "session_id", id, "error", err)
	}
}

// assemble concatenates the chunks of a session in index order, stores the
// result and completes the session. Every failure is terminal for it.
func (c *Coordinator) assemble(ctx context.Context, id string) {
	s, err := c.store.Get(ctx, id)
	if err != nil {
		c.logger.Error(ctx, "assembly lookup failed", "session_id", id, "error", err)
		return
	}
	if s.Status != models.SessionAssembling {
		return
	}

	var key string
	defer func() {
		if p := recover(); p != nil {
			c.fail(ctx, s, key, fmt.Errorf("%w: assembly panic: %v", common.ErrorInternal, p))
		}
	}()

	digest, err := c.concat(ctx, s)
	if err != nil {
		if c.interrupted(ctx, id) {
			return
		}
		c.fail(ctx, s, "", err)
		return
	}

	f, err := os.Open(c.scratch.AssembledPath(id))
	if err != nil {
		c.fail(ctx, s, "", fmt.Errorf("%w: %w", common.ErrorStorage, err))
		return
	}
	category := s.Destination.ResolveCategory(s.ContentType)
	key, _, err = c.blobs.Store(ctx, f, category, s.TotalSize, s.Filename)
	_ = f.Close()
	_ = os.Remove(c.scratch.AssembledPath(id))
	if err != nil {
		if c.interrupted(ctx, id) {
			return
		}
		c.fail(ctx, s, "", err)
		return
	}

	err = c.store.Transition(ctx, id, models.SessionAssembling, models.SessionCompleted, sessions.Update{
		At:         c.now(),
		StorageKey: key,
		Checksum:   digest.String(),
	})
	if err != nil {
		c.fail(ctx, s, key, err)
		return
	}

	c.dropMeter(id)
	c.pub.MarkTerminal(models.TransferProgress{
		TransferID: id,
		Percent:    100,
		Status:     "completed",
		Message:    digest.String(),
		BytesDone:  s.TotalSize,
		BytesTotal: s.TotalSize,
	})
	c.logger.Info(ctx, "session assembled", "session_id", id, "key", key, "checksum", digest.String())
}

// interrupted reports whether assembly stopped because the pool is shutting
// down. The session then stays ASSEMBLING and Recover runs it again.
func (c *Coordinator) interrupted(ctx context.Context, id string) bool {
	if ctx.Err() == nil {
		return false
	}
	c.logger.Warn(context.WithoutCancel(ctx), "assembly interrupted", "session_id", id)
	return true
}

// concat writes the assembled file and returns its digest.
func (c *Coordinator) concat(ctx context.Context, s *models.UploadSession) (checksum.Digest, error) {
	algo := checksum.Default
	var want checksum.Digest
	if s.ExpectedChecksum != "" {
		d, err := checksum.Parse(s.ExpectedChecksum)
		if err != nil {
			return checksum.Digest{}, err
		}
		want, algo = d, d.Algorithm
	}

	hw, err := checksum.NewWriter(algo)
	if err != nil {
		return checksum.Digest{}, err
	}

	out, err := os.Create(c.scratch.AssembledPath(s.ID))
	if err != nil {
		return checksum.Digest{}, fmt.Errorf("%w: %w", common.ErrorStorage, err)
	}
	defer out.Close()

	dst := io.MultiWriter(out, hw)
	buf := make([]byte, c.opts.CopyBuffer)
	for i := 0; i < s.TotalChunks; i++ {
		if err := ctx.Err(); err != nil {
			return checksum.Digest{}, err
		}
		if err := c.appendChunk(ctx, dst, buf, s.ID, i); err != nil {
			return checksum.Digest{}, err
		}
	}

	if hw.Len() != s.TotalSize {
		return checksum.Digest{}, fmt.Errorf("%w: assembled %d bytes, want %d", common.ErrorSizeMismatch, hw.Len(), s.TotalSize)
	}
	got := hw.Digest()
	if !want.IsZero() && !got.Equal(want) {
		return got, checksum.Mismatch(want, got)
	}
	if err := out.Sync(); err != nil {
		return checksum.Digest{}, fmt.Errorf("%w: %w", common.ErrorStorage, err)
	}
	return got, nil
}

func (c *Coordinator) appendChunk(ctx context.Context, dst io.Writer, buf []byte, id string, index int) error {
	f, err := os.Open(c.scratch.ChunkPath(id, index))
	if errors.Is(err, os.ErrNotExist) {
		c.logger.Error(ctx, "chunk missing during assembly", "session_id", id, "index", index)
		return fmt.Errorf("%w: chunk %d missing", common.ErrorAssemblyCorrupt, index)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrorStorage, err)
	}
	defer f.Close()

	if _, err := io.CopyBuffer(dst, f, buf); err != nil {
		return fmt.Errorf("%w: %w", common.ErrorStorage, err)
	}
	return nil
}

func (c *Coordinator) fail(ctx context.Context, s *models.UploadSession, key string, cause error) {
	kind := common.KindOf(cause)
	c.logger.Error(ctx, "assembly failed", "session_id", s.ID, "kind", kind, "error", cause)

	if key != "" {
		if _, err := c.blobs.Delete(key); err != nil {
			c.logger.Warn(ctx, "failed to delete blob", "key", key, "error", err)
		}
	}

	err := c.store.Transition(ctx, s.ID, models.SessionAssembling, models.SessionFailed, sessions.Update{
		At:        c.now(),
		Error:     cause.Error(),
		ErrorKind: kind,
	})
	if err != nil {
		c.logger.Error(ctx, "failed to record assembly failure", "session_id", s.ID, "error", err)
	}
	if err := c.scratch.Release(s.ID); err != nil {
		c.logger.Warn(ctx, "failed to release scratch", "session_id", s.ID, "error", err)
	}

	c.dropMeter(s.ID)
	c.pub.MarkTerminal(models.TransferProgress{
		TransferID: s.ID,
		Percent:    s.Percent(),
		Status:     "failed",
		Message:    cause.Error(),
		BytesDone:  s.ReceivedBytes,
		BytesTotal: s.TotalSize,
	})
	c.scheduleDelete(s.ID)
}

func (c *Coordinator) scheduleDelete(id string) {
	c.exec.After(c.opts.RetainAfterFinalize, func(ctx context.Context) {
		if _, err := c.store.Delete(ctx, id); err != nil {
			c.logger.Warn(ctx, "failed to delete session", "session_id", id, "error", err)
		}
	})
}

// Finalize registers a COMPLETED session with the catalog and returns the
// catalog id. A session can be finalized once.
func (c *Coordinator) Finalize(ctx context.Context, id string) (string, error) {
	s, err := c.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if s.FinalizedAt != nil {
		return "", common.ErrorNotFound
	}
	if s.Status != models.SessionCompleted {
		return "", fmt.Errorf("%w: session is %s", common.ErrorInvalidState, s.Status)
	}

	if err := c.store.ClaimFinalize(ctx, id, c.now()); err != nil {
		return "", err
	}

	catalogID, err := c.catalog.Register(ctx, catalog.Blob{
		StorageKey:  s.StorageKey,
		Size:        s.TotalSize,
		Checksum:    s.Checksum,
		ContentType: s.ContentType,
		Filename:    s.Filename,
		Source:      catalog.SourceUpload,
	}, s.Destination)
	if err != nil {
		if rerr := c.store.ReleaseFinalize(ctx, id); rerr != nil {
			c.logger.Error(ctx, "failed to release finalize claim", "session_id", id, "error", rerr)
		}
		return "", fmt.Errorf("catalog register: %w", err)
	}

	if err := c.store.SetCatalogID(ctx, id, catalogID); err != nil {
		c.logger.Warn(ctx, "failed to record catalog id", "session_id", id, "error", err)
	}
	if err := c.scratch.Release(id); err != nil {
		c.logger.Warn(ctx, "failed to release scratch", "session_id", id, "error", err)
	}
	c.scheduleDelete(id)

	c.logger.Info(ctx, "session finalized", "session_id", id, "catalog_id", catalogID)
	return catalogID, nil
}

func (c *Coordinator) GetStatus(ctx context.Context, id string) (*models.UploadSession, error) {
	return c.store.Get(ctx, id)
}

func (c *Coordinator) GetMissingChunks(ctx context.Context, id string) ([]int, error) {
	s, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.MissingChunks(), nil
}

// Cancel abandons an IN_PROGRESS session. Scratch and the record are removed
// before it returns.
func (c *Coordinator) Cancel(ctx context.Context, id string) (bool, error) {
	s, err := c.store.Get(ctx, id)
	if err != nil {
		return false, err
	}
	err = c.store.Transition(ctx, id, models.SessionInProgress, models.SessionCancelled, sessions.Update{At: c.now()})
	if err != nil {
		return false, err
	}

	var errs error
	errs = multierr.Append(errs, c.scratch.Release(id))
	if _, err := c.store.Delete(ctx, id); err != nil {
		errs = multierr.Append(errs, err)
	}
	if errs != nil {
		c.logger.Warn(ctx, "cancel cleanup incomplete", "session_id", id, "error", errs)
	}

	c.dropMeter(id)
	c.pub.MarkTerminal(models.TransferProgress{
		TransferID: id,
		Percent:    s.Percent(),
		Status:     "cancelled",
		BytesDone:  s.ReceivedBytes,
		BytesTotal: s.TotalSize,
	})
	c.logger.Info(ctx, "session cancelled", "session_id", id)
	return true, nil
}

// SweepIdle cancels IN_PROGRESS sessions idle since before idleBefore and
// removes FAILED or finalized records older than the retention period. It
// returns how many sessions it removed.
func (c *Coordinator) SweepIdle(ctx context.Context, idleBefore time.Time) (int, error) {
	var (
		errs    error
		removed int
	)

	idle, err := c.store.ListIdle(ctx, idleBefore)
	errs = multierr.Append(errs, err)
	for _, id := range idle {
		ok, err := c.Cancel(ctx, id)
		if errors.Is(err, common.ErrorInvalidState) || errors.Is(err, common.ErrorNotFound) {
			continue
		}
		errs = multierr.Append(errs, err)
		if ok {
			removed++
			c.logger.Info(ctx, "idle session cancelled", "session_id", id)
		}
	}

	expired, err := c.store.ListExpired(ctx, c.now().Add(-c.opts.RetainAfterFinalize))
	errs = multierr.Append(errs, err)
	for _, id := range expired {
		_ = c.scratch.Release(id)
		ok, err := c.store.Delete(ctx, id)
		errs = multierr.Append(errs, err)
		if ok {
			removed++
		}
	}
	return removed, errs
}

// Recover reconciles sessions left behind by a previous process: chunk files
// present in scratch but never recorded are added, and sessions stuck in
// ASSEMBLING are assembled again.
func (c *Coordinator) Recover(ctx context.Context) error {
	var errs error

	// Both lists are taken first so that sessions completed during
	// reconciliation are not scheduled twice.
	stuck, err := c.store.ListByStatus(ctx, models.SessionAssembling)
	errs = multierr.Append(errs, err)
	open, err := c.store.ListByStatus(ctx, models.SessionInProgress)
	errs = multierr.Append(errs, err)

	for _, s := range stuck {
		c.scheduleAssembly(ctx, s.ID)
	}
	for _, s := range open {
		errs = multierr.Append(errs, c.recoverChunks(ctx, s))
	}
	return errs
}

func (c *Coordinator) recoverChunks(ctx context.Context, s *models.UploadSession) error {
	present, err := c.scratch.ListChunks(s.ID)
	if err != nil {
		return err
	}
	if err := c.scratch.Create(s.ID); err != nil {
		return err
	}

	for _, idx := range present {
		if idx >= s.TotalChunks || s.HasChunk(idx) {
			continue
		}
		path := c.scratch.ChunkPath(s.ID, idx)
		fi, err := os.Stat(path)
		if err != nil || fi.Size() != s.ChunkLen(idx) {
			_ = os.Remove(path)
			continue
		}
		res, err := c.store.AddChunk(ctx, s.ID, idx, fi.Size(), c.now())
		if err != nil {
			return err
		}
		if res.Completed {
			c.scheduleAssembly(ctx, s.ID)
		}
	}
	c.logger.Info(ctx, "session recovered", "session_id", s.ID)
	return nil
}

func (c *Coordinator) meterFor(id string, total int64) *progress.Meter {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.meters[id]
	if !ok {
		m = progress.NewMeter(total)
		c.meters[id] = m
	}
	return m
}

func (c *Coordinator) dropMeter(id string) {
	c.mu.Lock()
	delete(c.meters, id)
	c.mu.Unlock()
}
