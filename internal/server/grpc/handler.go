package grpc

import (
	"bytes"
	"context"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dmitrijs2005/gophmedia/internal/api"
	"github.com/dmitrijs2005/gophmedia/internal/common"
	"github.com/dmitrijs2005/gophmedia/internal/server/downloads"
	"github.com/dmitrijs2005/gophmedia/internal/server/models"
	"github.com/dmitrijs2005/gophmedia/internal/server/uploads"
)

// handler implements api.TransferServer on top of the GRPCServer's
// components.
type handler struct {
	s *GRPCServer
}

func (h *handler) fail(ctx context.Context, op string, err error) error {
	st := api.ToStatus(err)
	if status.Code(st) == codes.Internal {
		h.s.logger.Error(ctx, op+" failed", "error", err)
	}
	return st
}

func (h *handler) OpenSession(ctx context.Context, req *api.OpenSessionRequest) (*api.Session, error) {
	s, err := h.s.uploads.OpenSession(ctx, uploads.OpenRequest{
		Filename:         req.Filename,
		ContentType:      req.ContentType,
		TotalSize:        req.TotalSize,
		ChunkSize:        req.ChunkSize,
		ExpectedChecksum: req.ExpectedChecksum,
		Destination:      req.Destination.Model(),
	})
	if err != nil {
		return nil, h.fail(ctx, "open session", err)
	}
	return api.SessionFromModel(s), nil
}

func (h *handler) SubmitChunk(ctx context.Context, req *api.SubmitChunkRequest) (*api.ChunkReceipt, error) {
	r, err := h.s.uploads.SubmitChunk(ctx, req.SessionID, req.Index, bytes.NewReader(req.Data), req.Checksum)
	if err != nil {
		return nil, h.fail(ctx, "submit chunk", err)
	}
	return &api.ChunkReceipt{
		Index:         r.Index,
		Duplicate:     r.Duplicate,
		Received:      r.Received,
		TotalChunks:   r.TotalChunks,
		ReceivedBytes: r.ReceivedBytes,
		Percent:       r.Percent,
		Complete:      r.Complete,
	}, nil
}

func (h *handler) GetSession(ctx context.Context, req *api.SessionRequest) (*api.Session, error) {
	s, err := h.s.uploads.GetStatus(ctx, req.SessionID)
	if err != nil {
		return nil, h.fail(ctx, "get session", err)
	}
	return api.SessionFromModel(s), nil
}

func (h *handler) GetMissingChunks(ctx context.Context, req *api.SessionRequest) (*api.MissingChunksReply, error) {
	missing, err := h.s.uploads.GetMissingChunks(ctx, req.SessionID)
	if err != nil {
		return nil, h.fail(ctx, "get missing chunks", err)
	}
	if missing == nil {
		missing = []int{}
	}
	return &api.MissingChunksReply{SessionID: req.SessionID, Missing: missing}, nil
}

func (h *handler) FinalizeSession(ctx context.Context, req *api.SessionRequest) (*api.FinalizeReply, error) {
	id, err := h.s.uploads.Finalize(ctx, req.SessionID)
	if err != nil {
		return nil, h.fail(ctx, "finalize session", err)
	}
	return &api.FinalizeReply{CatalogID: id}, nil
}

func (h *handler) CancelSession(ctx context.Context, req *api.SessionRequest) (*api.CancelReply, error) {
	ok, err := h.s.uploads.Cancel(ctx, req.SessionID)
	if err != nil {
		return nil, h.fail(ctx, "cancel session", err)
	}
	return &api.CancelReply{Cancelled: ok}, nil
}

func (h *handler) EnqueueDownload(ctx context.Context, req *api.EnqueueDownloadRequest) (*api.EnqueueDownloadReply, error) {
	id, err := h.s.downloads.Enqueue(ctx, downloads.EnqueueRequest{
		URL:         req.URL,
		Owner:       req.Owner,
		Destination: req.Destination.Model(),
		Hint:        models.TransferHint(req.Hint),
	})
	if err != nil {
		return nil, h.fail(ctx, "enqueue download", err)
	}
	return &api.EnqueueDownloadReply{JobID: id}, nil
}

func (h *handler) GetJob(ctx context.Context, req *api.JobRequest) (*api.Job, error) {
	j, err := h.s.downloads.GetStatus(ctx, req.JobID)
	if err != nil {
		return nil, h.fail(ctx, "get job", err)
	}
	out := api.JobFromModel(j)
	return &out, nil
}

func (h *handler) GetActiveJobs(ctx context.Context, req *api.ActiveJobsRequest) (*api.ActiveJobsReply, error) {
	list, err := h.s.downloads.GetActiveJobsFor(ctx, req.Owner)
	if err != nil {
		return nil, h.fail(ctx, "get active jobs", err)
	}
	out := &api.ActiveJobsReply{Jobs: make([]api.Job, 0, len(list))}
	for _, j := range list {
		out.Jobs = append(out.Jobs, api.JobFromModel(j))
	}
	return out, nil
}

func (h *handler) CancelJob(ctx context.Context, req *api.JobRequest) (*api.CancelReply, error) {
	ok, err := h.s.downloads.Cancel(ctx, req.JobID)
	if err != nil {
		return nil, h.fail(ctx, "cancel job", err)
	}
	return &api.CancelReply{Cancelled: ok}, nil
}

func (h *handler) GetProgress(ctx context.Context, req *api.ProgressRequest) (*api.Progress, error) {
	p, ok := h.s.progress.Snapshot(req.TransferID)
	if !ok {
		return nil, h.fail(ctx, "get progress", fmt.Errorf("%w: no progress for %s", common.ErrorNotFound, req.TransferID))
	}
	return api.ProgressFromModel(p), nil
}

// Subscribe forwards broadcaster updates until the subscription is closed,
// the client goes away or the server shuts down.
func (h *handler) Subscribe(req *api.ProgressRequest, stream api.ProgressSender) error {
	if req.TransferID == "" {
		return status.Error(codes.InvalidArgument, "transfer id is required")
	}

	sub := h.s.progress.Subscribe(req.TransferID)
	defer sub.Cancel()

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return status.FromContextError(ctx.Err()).Err()
		case <-h.s.stopping:
			return status.Error(codes.Unavailable, "server is shutting down")
		case p, ok := <-sub.Updates():
			if !ok {
				return nil
			}
			if err := stream.Send(api.ProgressFromModel(p)); err != nil {
				return err
			}
		}
	}
}
