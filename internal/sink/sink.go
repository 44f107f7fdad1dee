// Package sink delivers driver frames to consoles, websockets and InfluxDB.
package sink

import (
	"context"
	"errors"

	"github.com/signalsfoundry/satellite-telemetry-sim/internal/driver"
	"github.com/signalsfoundry/satellite-telemetry-sim/internal/logging"
)

// Multi fans a frame out to every sink in order. All sinks are attempted;
// their errors are joined.
func Multi(sinks ...driver.Sink) driver.Sink {
	flat := make([]driver.Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			flat = append(flat, s)
		}
	}
	return driver.SinkFunc(func(ctx context.Context, f driver.Frame) error {
		var errs []error
		for _, s := range flat {
			if err := s.Emit(ctx, f); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

// BestEffort wraps s so its failures are logged and never end a session.
func BestEffort(s driver.Sink, name string, log logging.Logger) driver.Sink {
	if log == nil {
		log = logging.Noop()
	}
	return driver.SinkFunc(func(ctx context.Context, f driver.Frame) error {
		if err := s.Emit(ctx, f); err != nil {
			log.Warn(ctx, "sink write failed",
				logging.String("sink", name),
				logging.String("session_id", f.Session),
				logging.Int("tick", f.Tick),
				logging.Err(err),
			)
		}
		return nil
	})
}
