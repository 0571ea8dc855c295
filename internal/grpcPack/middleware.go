package grpcPack

import (
	"context"
	stderrors "errors"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/sajjad-MoBe/walstore/internal/errors"
	"github.com/sajjad-MoBe/walstore/internal/shared"
	"github.com/sajjad-MoBe/walstore/internal/wal"
)

// UnaryErrorInterceptor converts KVErrors and panics into gRPC status errors
func UnaryErrorInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp = nil
			err = status.Error(codes.Internal, errors.RecoverError(r).Error())
		}
	}()

	resp, err = handler(ctx, req)
	if err != nil {
		return nil, convertError(err)
	}
	return resp, nil
}

// UnaryLoggingInterceptor logs each call with its status code and latency
func UnaryLoggingInterceptor(logger *shared.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Info("%s %s %s", info.FullMethod, status.Code(err), time.Since(start))
		return resp, err
	}
}

// convertError converts a KVError to a gRPC status error
func convertError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.IsNotFound(err):
		return status.Error(codes.NotFound, err.Error())
	case errors.IsInvalidInput(err), errors.IsSerialization(err):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.IsTimeout(err):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case stderrors.Is(err, wal.ErrClosed):
		return status.Error(codes.Unavailable, err.Error())
	case stderrors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
