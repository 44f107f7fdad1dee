// Package classifier defines the collaborator that maps a telemetry vector to
// recommended corrective actions, plus local and gRPC implementations.
package classifier

import (
	"context"

	"github.com/signalsfoundry/satellite-telemetry-sim/core"
	"github.com/signalsfoundry/satellite-telemetry-sim/model"
)

// Predictor returns an 11-entry flag vector aligned with the action catalog.
type Predictor interface {
	Predict(ctx context.Context, t model.Telemetry) (core.ActionFlags, error)
}

// Func adapts a plain function to Predictor.
type Func func(ctx context.Context, t model.Telemetry) (core.ActionFlags, error)

// Predict calls f.
func (f Func) Predict(ctx context.Context, t model.Telemetry) (core.ActionFlags, error) {
	return f(ctx, t)
}

// Static always recommends the same flags. Each call gets its own copy.
type Static core.ActionFlags

// Predict returns a copy of s.
func (s Static) Predict(ctx context.Context, _ model.Telemetry) (core.ActionFlags, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append(core.ActionFlags(nil), s...), nil
}
