// Package driver runs the per-session tick loop: draw an event, apply it,
// optionally classify and fix, then emit a frame.
package driver

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/signalsfoundry/satellite-telemetry-sim/core"
	"github.com/signalsfoundry/satellite-telemetry-sim/internal/classifier"
	"github.com/signalsfoundry/satellite-telemetry-sim/internal/logging"
	"github.com/signalsfoundry/satellite-telemetry-sim/model"
	"github.com/signalsfoundry/satellite-telemetry-sim/timectrl"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/signalsfoundry/satellite-telemetry-sim/internal/driver"

const (
	// DefaultTick is the pause between ticks when Config.Tick is unset.
	DefaultTick = time.Second
	// DefaultClassifierTimeout bounds each Predict call when unset.
	DefaultClassifierTimeout = 250 * time.Millisecond
)

// ErrNoSink is returned by New when no sink was supplied.
var ErrNoSink = errors.New("driver: no sink configured")

// Frame is what one tick emits.
type Frame struct {
	Session   string          `json:"session"`
	Tick      int             `json:"tick"`
	Time      time.Time       `json:"time"`
	Event     string          `json:"event"`
	Actions   []string        `json:"actions"`
	Telemetry model.Telemetry `json:"telemetry"`
}

// Sink receives frames. An error ends the session.
type Sink interface {
	Emit(ctx context.Context, f Frame) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, f Frame) error

// Emit calls fn.
func (fn SinkFunc) Emit(ctx context.Context, f Frame) error { return fn(ctx, f) }

// FrameObserver is told about every frame after it was emitted.
type FrameObserver interface {
	ObserveFrame(ctx context.Context, f Frame)
}

// MetricsRecorder receives per-tick counters. *observability.SimCollector
// satisfies it.
type MetricsRecorder interface {
	ObserveTick(d time.Duration)
	IncEvent(event string)
	IncAction(action string)
	IncClassifierError()
	SetSessionTelemetry(session string, t model.Telemetry)
}

// Config controls one session.
type Config struct {
	// Session identifies the stream; a random ID is used when empty.
	Session string
	// Tick is the simulated (and, in real-time mode, wall-clock) period.
	Tick time.Duration
	// Mode selects real-time pacing or accelerated replay.
	Mode timectrl.Mode
	// Start is the simulation time of the first frame; defaults to now.
	Start time.Time
	// ClassifierTimeout bounds each Predict call.
	ClassifierTimeout time.Duration
	// MaxTicks stops the loop after that many frames when positive.
	MaxTicks int
	// Seed makes a session reproducible; zero draws a random seed.
	Seed uint64
	// Initial replaces the healthy starting vector when non-nil.
	Initial *model.Telemetry
}

// Option customises a Driver.
type Option func(*Driver)

// WithPredictor attaches a classifier. Without one, fixes are never applied.
func WithPredictor(p classifier.Predictor) Option {
	return func(d *Driver) { d.predictor = p }
}

// WithSink sets the frame sink.
func WithSink(s Sink) Option {
	return func(d *Driver) { d.sink = s }
}

// WithObserver registers a frame observer, such as the session registry.
func WithObserver(o FrameObserver) Option {
	return func(d *Driver) { d.observer = o }
}

// WithLogger sets the base logger.
func WithLogger(l logging.Logger) Option {
	return func(d *Driver) {
		if l != nil {
			d.log = l
		}
	}
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(d *Driver) {
		if m != nil {
			d.metrics = m
		}
	}
}

// WithRand overrides the session's random source.
func WithRand(r core.Rand) Option {
	return func(d *Driver) {
		if r != nil {
			d.rng = r
		}
	}
}

// WithTracer overrides the tracer used for tick spans.
func WithTracer(t trace.Tracer) Option {
	return func(d *Driver) {
		if t != nil {
			d.tracer = t
		}
	}
}

// Driver owns one session's vector and random source. It is not safe for
// concurrent use; run one Driver per goroutine.
type Driver struct {
	cfg       Config
	clock     *timectrl.TimeController
	rng       core.Rand
	predictor classifier.Predictor
	sink      Sink
	observer  FrameObserver
	metrics   MetricsRecorder
	log       logging.Logger
	tracer    trace.Tracer

	state model.Telemetry
}

// New builds a Driver. A sink is required.
func New(cfg Config, opts ...Option) (*Driver, error) {
	if cfg.Session == "" {
		cfg.Session = logging.NewID()
	}
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	if cfg.ClassifierTimeout <= 0 {
		cfg.ClassifierTimeout = DefaultClassifierTimeout
	}
	if cfg.Start.IsZero() {
		cfg.Start = time.Now().UTC()
	}
	if cfg.Seed == 0 {
		cfg.Seed = rand.Uint64()
	}

	d := &Driver{
		cfg:     cfg,
		clock:   timectrl.NewTimeController(cfg.Start, cfg.Tick, cfg.Mode),
		rng:     core.NewRand(cfg.Seed),
		metrics: noopMetrics{},
		log:     logging.Noop(),
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.sink == nil {
		return nil, ErrNoSink
	}

	if cfg.Initial != nil {
		d.state = cfg.Initial.Settle()
	} else {
		d.state = core.Initialize(d.rng)
	}
	return d, nil
}

// Session returns the session ID.
func (d *Driver) Session() string { return d.cfg.Session }

// Telemetry returns the latest vector. Call it only when Run is not active.
func (d *Driver) Telemetry() model.Telemetry { return d.state }

// Run ticks until ctx is done, the sink fails or MaxTicks frames were
// emitted. The first frame is emitted immediately.
func (d *Driver) Run(ctx context.Context) error {
	ctx, log := logging.WithSessionLogger(ctx, d.log, d.cfg.Session)
	defer d.clock.Stop()

	log.Info(ctx, "session started",
		logging.Duration("tick", d.cfg.Tick),
		logging.String("mode", d.cfg.Mode.String()),
		logging.Int("max_ticks", d.cfg.MaxTicks),
		logging.Bool("classifier", d.predictor != nil),
	)

	for {
		tick := d.clock.Ticks() + 1
		if err := d.step(ctx, log, tick); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			log.Warn(ctx, "session ended by sink", logging.Int("tick", tick), logging.Err(err))
			return err
		}
		if d.cfg.MaxTicks > 0 && tick >= d.cfg.MaxTicks {
			log.Info(ctx, "session finished", logging.Int("ticks", tick))
			return nil
		}
		if _, err := d.clock.Next(ctx); err != nil {
			log.Info(ctx, "session cancelled", logging.Int("ticks", tick))
			return err
		}
	}
}

func (d *Driver) step(ctx context.Context, log logging.Logger, tick int) error {
	began := time.Now()
	ctx, span := d.tracer.Start(ctx, "satsim.tick", trace.WithAttributes(
		attribute.String("session", d.cfg.Session),
		attribute.Int("tick", tick),
	))
	defer span.End()

	event := core.RandomEvent(d.rng)
	next, err := core.ApplyEvent(event, d.state)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("apply event: %w", err)
	}
	d.metrics.IncEvent(event.String())

	var applied []core.ActionKind
	if d.predictor != nil {
		fixed, kinds, err := d.fix(ctx, next)
		if err != nil {
			d.metrics.IncClassifierError()
			span.RecordError(err)
			log.Warn(ctx, "classification failed; skipping fixes",
				logging.Int("tick", tick),
				logging.String("event", event.String()),
				logging.Err(err),
			)
		} else {
			next, applied = fixed, kinds
		}
	}
	d.state = next

	actions := make([]string, len(applied))
	for i, k := range applied {
		actions[i] = k.String()
		d.metrics.IncAction(actions[i])
	}
	span.SetAttributes(
		attribute.String("event", event.String()),
		attribute.StringSlice("actions", actions),
	)

	frame := Frame{
		Session:   d.cfg.Session,
		Tick:      tick,
		Time:      d.clock.Now(),
		Event:     event.String(),
		Actions:   actions,
		Telemetry: next,
	}
	if err := d.sink.Emit(ctx, frame); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("emit tick %d: %w", tick, err)
	}
	if d.observer != nil {
		d.observer.ObserveFrame(ctx, frame)
	}

	d.metrics.SetSessionTelemetry(d.cfg.Session, next)
	d.metrics.ObserveTick(time.Since(began))
	log.Debug(ctx, "tick",
		logging.Int("tick", tick),
		logging.String("event", frame.Event),
		logging.Int("actions", len(actions)),
	)
	return nil
}

// fix asks the predictor for flags within the classifier timeout and applies
// them. A malformed flag vector is reported like any other classifier error.
func (d *Driver) fix(ctx context.Context, t model.Telemetry) (model.Telemetry, []core.ActionKind, error) {
	cctx, cancel := context.WithTimeout(ctx, d.cfg.ClassifierTimeout)
	defer cancel()

	flags, err := d.predictor.Predict(cctx, t)
	if err != nil {
		return t, nil, fmt.Errorf("predict: %w", err)
	}
	return core.ApplyFixes(t, flags, d.rng)
}

type noopMetrics struct{}

func (noopMetrics) ObserveTick(time.Duration)                   {}
func (noopMetrics) IncEvent(string)                             {}
func (noopMetrics) IncAction(string)                            {}
func (noopMetrics) IncClassifierError()                         {}
func (noopMetrics) SetSessionTelemetry(string, model.Telemetry) {}
