package api

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "gophmedia.transfer.v1.Transfer"

const (
	MethodOpenSession      = "OpenSession"
	MethodSubmitChunk      = "SubmitChunk"
	MethodGetSession       = "GetSession"
	MethodGetMissingChunks = "GetMissingChunks"
	MethodFinalizeSession  = "FinalizeSession"
	MethodCancelSession    = "CancelSession"
	MethodEnqueueDownload  = "EnqueueDownload"
	MethodGetJob           = "GetJob"
	MethodGetActiveJobs    = "GetActiveJobs"
	MethodCancelJob        = "CancelJob"
	MethodGetProgress      = "GetProgress"
	MethodSubscribe        = "Subscribe"
)

// FullMethod returns the gRPC path of a transfer method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// TransferServer is implemented by the server side of the transfer service.
type TransferServer interface {
	OpenSession(context.Context, *OpenSessionRequest) (*Session, error)
	SubmitChunk(context.Context, *SubmitChunkRequest) (*ChunkReceipt, error)
	GetSession(context.Context, *SessionRequest) (*Session, error)
	GetMissingChunks(context.Context, *SessionRequest) (*MissingChunksReply, error)
	FinalizeSession(context.Context, *SessionRequest) (*FinalizeReply, error)
	CancelSession(context.Context, *SessionRequest) (*CancelReply, error)
	EnqueueDownload(context.Context, *EnqueueDownloadRequest) (*EnqueueDownloadReply, error)
	GetJob(context.Context, *JobRequest) (*Job, error)
	GetActiveJobs(context.Context, *ActiveJobsRequest) (*ActiveJobsReply, error)
	CancelJob(context.Context, *JobRequest) (*CancelReply, error)
	GetProgress(context.Context, *ProgressRequest) (*Progress, error)
	Subscribe(*ProgressRequest, ProgressSender) error
}

// ProgressSender is the server half of a Subscribe stream.
type ProgressSender interface {
	Send(*Progress) error
	grpc.ServerStream
}

type progressSender struct {
	grpc.ServerStream
}

func (s *progressSender) Send(p *Progress) error {
	return s.ServerStream.SendMsg(p)
}

func unary[Req, Resp any](method string, call func(TransferServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(TransferServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(TransferServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func subscribeHandler(srv any, stream grpc.ServerStream) error {
	in := new(ProgressRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(TransferServer).Subscribe(in, &progressSender{stream})
}

var TransferServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TransferServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodOpenSession, TransferServer.OpenSession),
		unary(MethodSubmitChunk, TransferServer.SubmitChunk),
		unary(MethodGetSession, TransferServer.GetSession),
		unary(MethodGetMissingChunks, TransferServer.GetMissingChunks),
		unary(MethodFinalizeSession, TransferServer.FinalizeSession),
		unary(MethodCancelSession, TransferServer.CancelSession),
		unary(MethodEnqueueDownload, TransferServer.EnqueueDownload),
		unary(MethodGetJob, TransferServer.GetJob),
		unary(MethodGetActiveJobs, TransferServer.GetActiveJobs),
		unary(MethodCancelJob, TransferServer.CancelJob),
		unary(MethodGetProgress, TransferServer.GetProgress),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    MethodSubscribe,
			Handler:       subscribeHandler,
			ServerStreams: true,
		},
	},
	Metadata: "gophmedia/transfer/v1",
}

func RegisterTransferServer(s grpc.ServiceRegistrar, srv TransferServer) {
	s.RegisterService(&TransferServiceDesc, srv)
}
