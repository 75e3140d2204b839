package api

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Client is a typed wrapper over a connection to the transfer service.
type Client struct {
	conn   *grpc.ClientConn
	health healthpb.HealthClient
}

// Dial connects to addr without TLS. maxMessageSize bounds both directions;
// 0 keeps the gRPC defaults.
func Dial(addr string, maxMessageSize int, opts ...grpc.DialOption) (*Client, error) {
	callOpts := []grpc.CallOption{grpc.CallContentSubtype(CodecName)}
	if maxMessageSize > 0 {
		callOpts = append(callOpts, grpc.MaxCallRecvMsgSize(maxMessageSize), grpc.MaxCallSendMsgSize(maxMessageSize))
	}
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(callOpts...),
	}, opts...)

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}
	return NewClient(conn), nil
}

func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn, health: healthpb.NewHealthClient(conn)}
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	return mapError(c.conn.Invoke(ctx, FullMethod(method), in, out, grpc.CallContentSubtype(CodecName)))
}

// Ping reports whether the server's health service answers SERVING.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return mapError(err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("server is %s", resp.GetStatus())
	}
	return nil
}

func (c *Client) OpenSession(ctx context.Context, req *OpenSessionRequest) (*Session, error) {
	out := new(Session)
	if err := c.invoke(ctx, MethodOpenSession, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) SubmitChunk(ctx context.Context, req *SubmitChunkRequest) (*ChunkReceipt, error) {
	out := new(ChunkReceipt)
	if err := c.invoke(ctx, MethodSubmitChunk, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetSession(ctx context.Context, id string) (*Session, error) {
	out := new(Session)
	if err := c.invoke(ctx, MethodGetSession, &SessionRequest{SessionID: id}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetMissingChunks(ctx context.Context, id string) ([]int, error) {
	out := new(MissingChunksReply)
	if err := c.invoke(ctx, MethodGetMissingChunks, &SessionRequest{SessionID: id}, out); err != nil {
		return nil, err
	}
	return out.Missing, nil
}

func (c *Client) FinalizeSession(ctx context.Context, id string) (string, error) {
	out := new(FinalizeReply)
	if err := c.invoke(ctx, MethodFinalizeSession, &SessionRequest{SessionID: id}, out); err != nil {
		return "", err
	}
	return out.CatalogID, nil
}

func (c *Client) CancelSession(ctx context.Context, id string) (bool, error) {
	out := new(CancelReply)
	if err := c.invoke(ctx, MethodCancelSession, &SessionRequest{SessionID: id}, out); err != nil {
		return false, err
	}
	return out.Cancelled, nil
}

func (c *Client) EnqueueDownload(ctx context.Context, req *EnqueueDownloadRequest) (string, error) {
	out := new(EnqueueDownloadReply)
	if err := c.invoke(ctx, MethodEnqueueDownload, req, out); err != nil {
		return "", err
	}
	return out.JobID, nil
}

func (c *Client) GetJob(ctx context.Context, id string) (*Job, error) {
	out := new(Job)
	if err := c.invoke(ctx, MethodGetJob, &JobRequest{JobID: id}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetActiveJobs(ctx context.Context, owner string) ([]Job, error) {
	out := new(ActiveJobsReply)
	if err := c.invoke(ctx, MethodGetActiveJobs, &ActiveJobsRequest{Owner: owner}, out); err != nil {
		return nil, err
	}
	return out.Jobs, nil
}

func (c *Client) CancelJob(ctx context.Context, id string) (bool, error) {
	out := new(CancelReply)
	if err := c.invoke(ctx, MethodCancelJob, &JobRequest{JobID: id}, out); err != nil {
		return false, err
	}
	return out.Cancelled, nil
}

func (c *Client) GetProgress(ctx context.Context, transferID string) (*Progress, error) {
	out := new(Progress)
	if err := c.invoke(ctx, MethodGetProgress, &ProgressRequest{TransferID: transferID}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ProgressStream yields updates for one transfer until the server ends the
// stream, at which point Recv returns io.EOF.
type ProgressStream struct {
	stream grpc.ClientStream
}

func (s *ProgressStream) Recv() (*Progress, error) {
	p := new(Progress)
	if err := s.stream.RecvMsg(p); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, mapError(err)
	}
	return p, nil
}

// Subscribe opens a progress stream. Cancel ctx to stop watching early.
func (c *Client) Subscribe(ctx context.Context, transferID string) (*ProgressStream, error) {
	stream, err := c.conn.NewStream(ctx, &TransferServiceDesc.Streams[0], FullMethod(MethodSubscribe), grpc.CallContentSubtype(CodecName))
	if err != nil {
		return nil, mapError(err)
	}
	if err := stream.SendMsg(&ProgressRequest{TransferID: transferID}); err != nil {
		return nil, mapError(err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, mapError(err)
	}
	return &ProgressStream{stream: stream}, nil
}
