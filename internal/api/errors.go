package api

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dmitrijs2005/gophmedia/internal/common"
)

// Code maps an error from the transfer components to a gRPC code.
func Code(err error) codes.Code {
	switch {
	case err == nil:
		return codes.OK
	case errors.Is(err, common.ErrorNotFound):
		return codes.NotFound
	case errors.Is(err, common.ErrorInvalidState):
		return codes.FailedPrecondition
	case errors.Is(err, common.ErrorOutOfRange):
		return codes.OutOfRange
	case errors.Is(err, common.ErrorIntegrity),
		errors.Is(err, common.ErrorSizeMismatch),
		errors.Is(err, common.ErrorAssemblyCorrupt):
		return codes.DataLoss
	case errors.Is(err, common.ErrorInvalidArgument):
		return codes.InvalidArgument
	case errors.Is(err, common.ErrorUpstreamFetch):
		return codes.Unavailable
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	}
	return codes.Internal
}

// ToStatus converts err into a status error. DataLoss messages are prefixed
// with "[Kind] " so the client can tell the integrity errors apart.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	code := Code(err)
	msg := err.Error()
	if code == codes.DataLoss {
		msg = "[" + common.KindOf(err) + "] " + msg
	}
	return status.Error(code, msg)
}

func splitKind(msg string) (kind, rest string) {
	if !strings.HasPrefix(msg, "[") {
		return "", msg
	}
	end := strings.Index(msg, "] ")
	if end < 0 {
		return "", msg
	}
	return msg[1:end], msg[end+2:]
}

var codeErrors = map[codes.Code]error{
	codes.NotFound:           common.ErrorNotFound,
	codes.FailedPrecondition: common.ErrorInvalidState,
	codes.OutOfRange:         common.ErrorOutOfRange,
	codes.InvalidArgument:    common.ErrorInvalidArgument,
	codes.Unavailable:        common.ErrorUpstreamFetch,
	codes.Internal:           common.ErrorInternal,
}

// mapError turns a status error back into the matching common sentinel and
// keeps the server's message.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Canceled:
		return fmt.Errorf("rpc: %w", context.Canceled)
	case codes.DeadlineExceeded:
		return fmt.Errorf("rpc: %w", context.DeadlineExceeded)
	case codes.DataLoss:
		kind, msg := splitKind(st.Message())
		sentinel := common.ErrorForKind(kind)
		if !errors.Is(sentinel, common.ErrorSizeMismatch) && !errors.Is(sentinel, common.ErrorAssemblyCorrupt) {
			sentinel = common.ErrorIntegrity
		}
		return fmt.Errorf("%w: %s", sentinel, msg)
	}
	if sentinel, ok := codeErrors[st.Code()]; ok {
		return fmt.Errorf("%w: %s", sentinel, st.Message())
	}
	return fmt.Errorf("rpc error: %w", err)
}
