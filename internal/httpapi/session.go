package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/signalsfoundry/satellite-telemetry-sim/internal/driver"
	"github.com/signalsfoundry/satellite-telemetry-sim/internal/logging"
	"github.com/signalsfoundry/satellite-telemetry-sim/internal/sim/state"
	"github.com/signalsfoundry/satellite-telemetry-sim/internal/sink"
)

var (
	// ErrTooManySessions is returned when MaxSessions are already streaming.
	ErrTooManySessions = errors.New("too many active sessions")
	// ErrRateLimited is returned when sessions are opened faster than allowed.
	ErrRateLimited = errors.New("session rate limit exceeded")
	// ErrShuttingDown is returned once Close was called.
	ErrShuttingDown = errors.New("server shutting down")
)

// handleSession upgrades the request and streams one telemetry session until
// the client leaves, a write fails or the server shuts down.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if s.baseCtx.Err() != nil {
		writeError(w, http.StatusServiceUnavailable, ErrShuttingDown)
		return
	}

	envelope := s.deps.Simulation.Envelope
	if v := r.URL.Query().Get("envelope"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("envelope: %w", err))
			return
		}
		envelope = b
	}
	var seed uint64
	if v := r.URL.Query().Get("seed"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("seed: %w", err))
			return
		}
		seed = n
	} else if s.deps.Simulation.Seed != 0 {
		seed = s.deps.Simulation.Seed + s.seq.Add(1) - 1
	}

	if !s.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, ErrRateLimited)
		return
	}

	// The slot is reserved before the upgrade so concurrent handshakes cannot
	// overshoot MaxSessions.
	id := logging.NewID()
	ctx, log := logging.WithSessionLogger(r.Context(), loggerFrom(r.Context(), s.log), id)
	err := s.deps.Registry.OpenIfBelow(id, r.RemoteAddr, time.Now().UTC(), s.deps.Server.MaxSessions)
	switch {
	case errors.Is(err, state.ErrRegistryFull):
		writeError(w, http.StatusServiceUnavailable, ErrTooManySessions)
		return
	case err != nil:
		log.Error(ctx, "register session", logging.Err(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	defer func() {
		if err := s.deps.Registry.Close(id); err != nil {
			log.Warn(ctx, "deregister session", logging.Err(err))
		}
	}()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		log.Warn(ctx, "websocket upgrade failed", logging.Err(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopOnShutdown := context.AfterFunc(s.baseCtx, cancel)
	defer stopOnShutdown()

	// The client never sends data; reading only surfaces its close frame.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ws := sink.NewWebSocket(conn, envelope, s.deps.Server.WriteTimeout)
	var out driver.Sink = ws
	if s.deps.Extra != nil {
		out = sink.Multi(ws, sink.BestEffort(s.deps.Extra, "extra", log))
	}

	opts := []driver.Option{
		driver.WithSink(out),
		driver.WithObserver(s.deps.Registry),
		driver.WithLogger(log),
		driver.WithMetrics(s.deps.Metrics),
		driver.WithTracer(s.deps.Tracer),
	}
	if s.deps.Predictor != nil {
		opts = append(opts, driver.WithPredictor(s.deps.Predictor))
	}
	d, err := driver.New(driver.Config{
		Session:           id,
		Tick:              s.deps.Simulation.Tick,
		Mode:              s.mode,
		ClassifierTimeout: s.deps.Simulation.ClassifierTimeout,
		MaxTicks:          s.deps.Simulation.MaxTicks,
		Seed:              seed,
	}, opts...)
	if err != nil {
		log.Error(ctx, "create driver", logging.Err(err))
		_ = ws.Close("internal error")
		return
	}

	// The driver logs the session lifecycle; only the close frame is sent here.
	log.Debug(ctx, "streaming", logging.Bool("envelope", envelope))
	switch err := d.Run(ctx); {
	case err == nil:
		_ = ws.Close("session finished")
	case errors.Is(err, context.Canceled):
		_ = ws.Close("session closed")
	}
}
