// Package grpc exposes the upload coordinator, the download queue and the
// progress broadcaster as the gophmedia transfer gRPC service.
package grpc

import (
	"context"
	"io"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/dmitrijs2005/gophmedia/internal/api"
	"github.com/dmitrijs2005/gophmedia/internal/logging"
	"github.com/dmitrijs2005/gophmedia/internal/server/downloads"
	"github.com/dmitrijs2005/gophmedia/internal/server/models"
	"github.com/dmitrijs2005/gophmedia/internal/server/progress"
	"github.com/dmitrijs2005/gophmedia/internal/server/uploads"
)

// Uploads is implemented by *uploads.Coordinator.
type Uploads interface {
	OpenSession(ctx context.Context, req uploads.OpenRequest) (*models.UploadSession, error)
	SubmitChunk(ctx context.Context, id string, index int, r io.Reader, chunkChecksum string) (uploads.ChunkReceipt, error)
	GetStatus(ctx context.Context, id string) (*models.UploadSession, error)
	GetMissingChunks(ctx context.Context, id string) ([]int, error)
	Finalize(ctx context.Context, id string) (string, error)
	Cancel(ctx context.Context, id string) (bool, error)
}

// Downloads is implemented by *downloads.Queue.
type Downloads interface {
	Enqueue(ctx context.Context, req downloads.EnqueueRequest) (string, error)
	GetStatus(ctx context.Context, id string) (*models.DownloadJob, error)
	GetActiveJobsFor(ctx context.Context, owner string) ([]*models.DownloadJob, error)
	Cancel(ctx context.Context, id string) (bool, error)
}

// Progress is implemented by *progress.Broadcaster.
type Progress interface {
	Snapshot(id string) (models.TransferProgress, bool)
	Subscribe(id string) *progress.Subscription
}

type GRPCServer struct {
	address        string
	maxMessageSize int
	uploads        Uploads
	downloads      Downloads
	progress       Progress
	health         *health.Server
	logger         logging.Logger

	// stopping is closed on shutdown so open Subscribe streams end and
	// GracefulStop can return.
	stopping chan struct{}
	stopOnce sync.Once
}

func NewGRPCServer(a string, l logging.Logger, up Uploads, down Downloads, pr Progress, maxMessageSize int) (*GRPCServer, error) {
	return &GRPCServer{
		address:        a,
		maxMessageSize: maxMessageSize,
		uploads:        up,
		downloads:      down,
		progress:       pr,
		health:         health.NewServer(),
		stopping:       make(chan struct{}),
		logger:         l.With("module", "grpc_server"),
	}, nil
}

// newServer builds the gRPC server with the transfer and health services
// registered.
func (s *GRPCServer) newServer() *grpc.Server {
	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(s.unaryInterceptor),
		grpc.ChainStreamInterceptor(s.streamInterceptor),
	}
	if s.maxMessageSize > 0 {
		opts = append(opts, grpc.MaxRecvMsgSize(s.maxMessageSize), grpc.MaxSendMsgSize(s.maxMessageSize))
	}
	srv := grpc.NewServer(opts...)

	api.RegisterTransferServer(srv, &handler{s: s})
	healthpb.RegisterHealthServer(srv, s.health)

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(api.ServiceName, healthpb.HealthCheckResponse_SERVING)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is cancelled, then drains
// in-flight calls.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.health.Shutdown()
		s.stopOnce.Do(func() { close(s.stopping) })
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(lis); err != nil {
		return err
	}

	return nil
}
