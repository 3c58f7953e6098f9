package server

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/autom8ter/pathfinder"
	"github.com/autom8ter/pathfinder/auth"
	"github.com/autom8ter/pathfinder/graph"
	"github.com/autom8ter/pathfinder/pubsub"
)

// ErrInvalidArgument is returned for malformed requests.
var ErrInvalidArgument = errors.New("invalid argument")

// toStatus converts a pathfinder error into a gRPC status error.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	var code codes.Code
	switch {
	case errors.Is(err, pathfinder.ErrUnauthorized), errors.Is(err, pathfinder.ErrAdminMismatch):
		code = codes.PermissionDenied
	case errors.Is(err, auth.ErrBadSignature), errors.Is(err, auth.ErrCallerMismatch), errors.Is(err, auth.ErrStaleRequest),
		errors.Is(err, auth.ErrReplayedRequest):
		code = codes.Unauthenticated
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, graph.ErrCostOverflow), errors.Is(err, auth.ErrInvalidIdentity):
		code = codes.InvalidArgument
	case errors.Is(err, pathfinder.ErrNoRoute):
		code = codes.NotFound
	case errors.Is(err, pubsub.ErrSlowSubscriber):
		code = codes.ResourceExhausted
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}

// fromStatus restores the sentinel behind a status error so clients can match it with errors.Is.
func fromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.PermissionDenied:
		return errors.Wrap(pathfinder.ErrUnauthorized, st.Message())
	case codes.Unauthenticated:
		return errors.Wrap(auth.ErrBadSignature, st.Message())
	case codes.InvalidArgument:
		return errors.Wrap(ErrInvalidArgument, st.Message())
	case codes.NotFound:
		return errors.Wrap(pathfinder.ErrNoRoute, st.Message())
	case codes.ResourceExhausted:
		return errors.Wrap(pubsub.ErrSlowSubscriber, st.Message())
	}
	return err
}

func httpStatus(err error) int {
	switch status.Code(toStatus(err)) {
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.NotFound:
		return http.StatusNotFound
	case codes.Unimplemented:
		return http.StatusNotImplemented
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Canceled, codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
