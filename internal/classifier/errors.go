package classifier

import (
	"context"
	"errors"

	"github.com/signalsfoundry/satellite-telemetry-sim/core"
	"github.com/signalsfoundry/satellite-telemetry-sim/model"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrMalformedRequest marks a request that does not decode to a complete
// telemetry vector.
var ErrMalformedRequest = errors.New("malformed classifier request")

// ErrInvalidPrediction marks a flag vector the serving predictor produced
// that does not match the action catalog. It is a server fault.
var ErrInvalidPrediction = errors.New("predictor returned an invalid action vector")

// ToStatusError maps classifier errors onto gRPC status codes.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, ErrInvalidPrediction):
		return status.Error(codes.Internal, err.Error())
	case errors.Is(err, ErrMalformedRequest),
		errors.Is(err, model.ErrUnknownField),
		errors.Is(err, core.ErrInvalidActionVector):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
