package classifier

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/signalsfoundry/satellite-telemetry-sim/core"
	"github.com/signalsfoundry/satellite-telemetry-sim/model"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestToStatusError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		err     error
		code    codes.Code
		wantNil bool
	}{
		{name: "nil", err: nil, wantNil: true},
		{name: "status passthrough", err: status.Error(codes.PermissionDenied, "denied"), code: codes.PermissionDenied},
		{name: "malformed request", err: fmt.Errorf("%w: empty", ErrMalformedRequest), code: codes.InvalidArgument},
		{name: "unknown field", err: fmt.Errorf("decode: %w", model.ErrUnknownField), code: codes.InvalidArgument},
		{name: "bad flag vector", err: core.ErrInvalidActionVector, code: codes.InvalidArgument},
		{name: "invalid prediction", err: fmt.Errorf("%w: %w", ErrInvalidPrediction, core.ErrInvalidActionVector), code: codes.Internal},
		{name: "deadline", err: context.DeadlineExceeded, code: codes.DeadlineExceeded},
		{name: "fallback", err: errors.New("boom"), code: codes.Internal},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := ToStatusError(tc.err)
			if tc.wantNil {
				if got != nil {
					t.Fatalf("ToStatusError(nil) = %v, want nil", got)
				}
				return
			}
			if code := status.Code(got); code != tc.code {
				t.Fatalf("ToStatusError(%v) code = %v, want %v", tc.err, code, tc.code)
			}
		})
	}
}
