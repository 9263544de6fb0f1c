package command

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/stellar-auth/auth"
)

// ErrInvalidRequest marks a request that could not be decoded into a command.
var ErrInvalidRequest = errors.New("invalid request")

// ToStatusError maps command errors onto gRPC status codes.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, auth.ErrInvalidWindow),
		errors.Is(err, auth.ErrInvalidBypassKey):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, auth.ErrFaultLatched):
		return status.Error(codes.FailedPrecondition, err.Error())

	case errors.Is(err, ErrQueueClosed):
		return status.Error(codes.Unavailable, err.Error())

	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())

	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())

	default:
		return status.Error(codes.Internal, err.Error())
	}
}
