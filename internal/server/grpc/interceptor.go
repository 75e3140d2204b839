package grpc

import (
	"context"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dmitrijs2005/gophmedia/internal/logging"
)

// rpcContext tags ctx so every log line written while serving the call
// carries the method and a per-call id.
func rpcContext(ctx context.Context, method string) context.Context {
	return logging.ContextWith(ctx, "method", method, "rpc_id", uuid.NewString())
}

func (s *GRPCServer) unaryInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
	ctx = rpcContext(ctx, info.FullMethod)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(ctx, "panic in handler", "panic", r)
			resp, err = nil, status.Error(codes.Internal, "internal error")
		}
		s.logger.Info(ctx, "rpc", "duration", time.Since(start), "code", status.Code(err).String())
	}()

	return handler(ctx, req)
}

// taggedStream overrides the stream context with the tagged one.
type taggedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (t *taggedStream) Context() context.Context { return t.ctx }

func (s *GRPCServer) streamInterceptor(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
	ctx := rpcContext(ss.Context(), info.FullMethod)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(ctx, "panic in stream handler", "panic", r)
			err = status.Error(codes.Internal, "internal error")
		}
		s.logger.Info(ctx, "stream", "duration", time.Since(start), "code", status.Code(err).String())
	}()

	return handler(srv, &taggedStream{ServerStream: ss, ctx: ctx})
}
