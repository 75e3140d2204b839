// Package transfer drives resumable uploads from the client side: it opens or
// resumes a session, sends the missing chunks with bounded parallelism, waits
// for assembly and finalizes.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/gophmedia/internal/api"
	"github.com/dmitrijs2005/gophmedia/internal/checksum"
	"github.com/dmitrijs2005/gophmedia/internal/client/journal"
	"github.com/dmitrijs2005/gophmedia/internal/common"
)

// Service is the part of the transfer API the uploader needs. *api.Client
// implements it.
type Service interface {
	OpenSession(ctx context.Context, req *api.OpenSessionRequest) (*api.Session, error)
	SubmitChunk(ctx context.Context, req *api.SubmitChunkRequest) (*api.ChunkReceipt, error)
	GetSession(ctx context.Context, id string) (*api.Session, error)
	GetMissingChunks(ctx context.Context, id string) ([]int, error)
	FinalizeSession(ctx context.Context, id string) (string, error)
}

// ProgressFunc is told how many of total bytes the server has acknowledged.
type ProgressFunc func(done, total int64)

type Options struct {
	ChunkSize   int64
	Parallelism int
	// PollInterval is how often the session is checked while it assembles.
	PollInterval time.Duration
}

type Uploader struct {
	svc     Service
	journal journal.Repository
	opts    Options
	now     func() time.Time
}

func NewUploader(svc Service, j journal.Repository, opts Options) *Uploader {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 8 << 20
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 200 * time.Millisecond
	}
	return &Uploader{svc: svc, journal: j, opts: opts, now: time.Now}
}

// Result describes a finished upload.
type Result struct {
	SessionID string
	CatalogID string
	Checksum  string
	Resumed   bool
}

// Upload sends the file at path and registers it with dest. A previous
// attempt recorded in the journal for the same unchanged file is resumed.
func (u *Uploader) Upload(ctx context.Context, path string, dest api.Destination, onProgress ProgressFunc) (*Result, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", path)
	}

	s, resumed, err := u.session(ctx, f, abs, info, dest)
	if err != nil {
		return nil, err
	}
	res := &Result{SessionID: s.ID, Checksum: s.ExpectedChecksum, Resumed: resumed}

	if s.Status == "IN_PROGRESS" {
		if err := u.sendMissing(ctx, f, s, onProgress); err != nil {
			return res, err
		}
	}

	if s.CatalogID == "" {
		if err := u.waitCompleted(ctx, s.ID); err != nil {
			return res, err
		}
		catalogID, err := u.finalize(ctx, s.ID, resumed)
		if err != nil {
			return res, fmt.Errorf("finalize: %w", err)
		}
		res.CatalogID = catalogID
	} else {
		res.CatalogID = s.CatalogID
	}

	if err := u.journal.Delete(ctx, abs); err != nil {
		return res, err
	}
	return res, nil
}

// finalize registers the session. A resumed session may already have been
// finalized by an earlier run that stopped before clearing the journal; its
// recorded catalog id is returned then.
func (u *Uploader) finalize(ctx context.Context, id string, resumed bool) (string, error) {
	catalogID, err := u.svc.FinalizeSession(ctx, id)
	if err == nil || !resumed || !errors.Is(err, common.ErrorNotFound) {
		return catalogID, err
	}
	s, gerr := u.svc.GetSession(ctx, id)
	if gerr != nil || s.CatalogID == "" {
		return "", err
	}
	return s.CatalogID, nil
}

// session resumes the journaled session for abs when the file is unchanged
// and the server still has it open, otherwise opens a new one.
func (u *Uploader) session(ctx context.Context, f *os.File, abs string, info os.FileInfo, dest api.Destination) (*api.Session, bool, error) {
	e, err := u.journal.Get(ctx, abs)
	if err != nil {
		return nil, false, err
	}
	if e != nil && e.Matches(info.Size(), info.ModTime()) {
		s, err := u.svc.GetSession(ctx, e.SessionID)
		switch {
		case err == nil && (s.Status == "IN_PROGRESS" || s.Status == "ASSEMBLING" || s.Status == "COMPLETED"):
			return s, true, nil
		case err != nil && !errors.Is(err, common.ErrorNotFound):
			return nil, false, err
		}
	}

	sum, err := fileChecksum(f)
	if err != nil {
		return nil, false, err
	}

	s, err := u.svc.OpenSession(ctx, &api.OpenSessionRequest{
		Filename:         filepath.Base(abs),
		ContentType:      mime.TypeByExtension(filepath.Ext(abs)),
		TotalSize:        info.Size(),
		ChunkSize:        u.opts.ChunkSize,
		ExpectedChecksum: sum,
		Destination:      dest,
	})
	if err != nil {
		return nil, false, fmt.Errorf("open session: %w", err)
	}

	err = u.journal.Put(ctx, &journal.Entry{
		Path:      abs,
		Size:      info.Size(),
		ModTime:   info.ModTime(),
		ChunkSize: s.ChunkSize,
		SessionID: s.ID,
		Checksum:  sum,
		CreatedAt: u.now(),
	})
	if err != nil {
		return nil, false, err
	}
	return s, false, nil
}

func (u *Uploader) sendMissing(ctx context.Context, f *os.File, s *api.Session, onProgress ProgressFunc) error {
	missing, err := u.svc.GetMissingChunks(ctx, s.ID)
	if err != nil {
		return err
	}

	var done atomic.Int64
	done.Store(s.TotalSize - missingBytes(s, missing))
	if onProgress != nil {
		onProgress(done.Load(), s.TotalSize)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.opts.Parallelism)
	for _, index := range missing {
		g.Go(func() error {
			data, err := readChunk(f, s, index)
			if err != nil {
				return err
			}
			sum, err := checksum.Sum(checksum.Default, data)
			if err != nil {
				return err
			}
			_, err = u.svc.SubmitChunk(gctx, &api.SubmitChunkRequest{
				SessionID: s.ID,
				Index:     index,
				Data:      data,
				Checksum:  sum.String(),
			})
			if err != nil {
				return fmt.Errorf("chunk %d: %w", index, err)
			}
			n := done.Add(int64(len(data)))
			if onProgress != nil {
				onProgress(n, s.TotalSize)
			}
			return nil
		})
	}
	return g.Wait()
}

// waitCompleted polls until assembly finishes.
func (u *Uploader) waitCompleted(ctx context.Context, id string) error {
	ticker := time.NewTicker(u.opts.PollInterval)
	defer ticker.Stop()

	for {
		s, err := u.svc.GetSession(ctx, id)
		if err != nil {
			return err
		}
		switch s.Status {
		case "COMPLETED":
			return nil
		case "FAILED":
			return fmt.Errorf("%w: %s", common.ErrorForKind(s.ErrorKind), s.Error)
		case "CANCELLED":
			return fmt.Errorf("%w: session %s was cancelled", common.ErrorInvalidState, id)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func chunkLen(s *api.Session, index int) int64 {
	if index == s.TotalChunks-1 {
		return s.TotalSize - int64(s.TotalChunks-1)*s.ChunkSize
	}
	return s.ChunkSize
}

func missingBytes(s *api.Session, missing []int) int64 {
	var n int64
	for _, i := range missing {
		n += chunkLen(s, i)
	}
	return n
}

func readChunk(f *os.File, s *api.Session, index int) ([]byte, error) {
	data := make([]byte, chunkLen(s, index))
	if _, err := f.ReadAt(data, int64(index)*s.ChunkSize); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read chunk %d: %w", index, err)
	}
	return data, nil
}

func fileChecksum(f *os.File) (string, error) {
	d, err := checksum.Compute(checksum.Default, io.NewSectionReader(f, 0, 1<<62))
	if err != nil {
		return "", err
	}
	return d.String(), nil
}
