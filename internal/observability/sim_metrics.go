package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/signalsfoundry/satellite-telemetry-sim/model"
)

// SimCollector exposes tick-loop metrics for telemetry sessions.
type SimCollector struct {
	gatherer prometheus.Gatherer

	TicksTotal            prometheus.Counter
	TickDuration          prometheus.Histogram
	EventsTotal           *prometheus.CounterVec
	ActionsTotal          *prometheus.CounterVec
	ClassifierErrorsTotal prometheus.Counter
	ActiveSessions        prometheus.Gauge
	SessionAttributes     *prometheus.GaugeVec
}

// NewSimCollector registers simulation metrics against the provided registerer.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	ticks, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "satsim_ticks_total",
		Help: "Total number of completed telemetry ticks across all sessions.",
	}), "satsim_ticks_total")
	if err != nil {
		return nil, err
	}

	tickDuration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "satsim_tick_duration_seconds",
		Help:    "Time spent in the event, classify, fix and emit chain of one tick.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
	}), "satsim_tick_duration_seconds")
	if err != nil {
		return nil, err
	}

	events, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "satsim_events_total",
		Help: "Number of applied telemetry events, labeled by event name.",
	}, []string{"event"}), "satsim_events_total")
	if err != nil {
		return nil, err
	}

	actions, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "satsim_actions_total",
		Help: "Number of applied corrective actions, labeled by action name.",
	}, []string{"action"}), "satsim_actions_total")
	if err != nil {
		return nil, err
	}

	classifierErrors, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "satsim_classifier_errors_total",
		Help: "Ticks whose fixes were skipped because the classifier failed.",
	}), "satsim_classifier_errors_total")
	if err != nil {
		return nil, err
	}

	sessions, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "satsim_active_sessions",
		Help: "Number of telemetry sessions currently streaming.",
	}), "satsim_active_sessions")
	if err != nil {
		return nil, err
	}

	attributes, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "satsim_session_attribute",
		Help: "Latest settled telemetry value per session and field.",
	}, []string{"session", "field"}), "satsim_session_attribute")
	if err != nil {
		return nil, err
	}

	return &SimCollector{
		gatherer:              gathererFor(reg),
		TicksTotal:            ticks,
		TickDuration:          tickDuration,
		EventsTotal:           events,
		ActionsTotal:          actions,
		ClassifierErrorsTotal: classifierErrors,
		ActiveSessions:        sessions,
		SessionAttributes:     attributes,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *SimCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SimCollector) Handler() http.Handler {
	if c == nil {
		return handlerFor(nil)
	}
	return handlerFor(c.gatherer)
}

// ObserveTick records one completed tick and its duration.
func (c *SimCollector) ObserveTick(d time.Duration) {
	if c == nil {
		return
	}
	if c.TicksTotal != nil {
		c.TicksTotal.Inc()
	}
	if c.TickDuration != nil {
		c.TickDuration.Observe(d.Seconds())
	}
}

// IncEvent counts one applied event.
func (c *SimCollector) IncEvent(event string) {
	if c == nil || c.EventsTotal == nil {
		return
	}
	c.EventsTotal.WithLabelValues(event).Inc()
}

// IncAction counts one applied corrective action.
func (c *SimCollector) IncAction(action string) {
	if c == nil || c.ActionsTotal == nil {
		return
	}
	c.ActionsTotal.WithLabelValues(action).Inc()
}

// IncClassifierError counts one failed classification.
func (c *SimCollector) IncClassifierError() {
	if c == nil || c.ClassifierErrorsTotal == nil {
		return
	}
	c.ClassifierErrorsTotal.Inc()
}

// SetActiveSessions satisfies the session registry's metrics recorder.
func (c *SimCollector) SetActiveSessions(n int) {
	if c == nil || c.ActiveSessions == nil {
		return
	}
	c.ActiveSessions.Set(float64(n))
}

// SetSessionTelemetry publishes the latest vector of a session.
func (c *SimCollector) SetSessionTelemetry(session string, t model.Telemetry) {
	if c == nil || c.SessionAttributes == nil {
		return
	}
	for _, f := range model.Fields() {
		c.SessionAttributes.WithLabelValues(session, f.String()).Set(t.Get(f))
	}
}

// DeleteSession drops the per-session gauges of a finished session.
func (c *SimCollector) DeleteSession(session string) {
	if c == nil || c.SessionAttributes == nil {
		return
	}
	c.SessionAttributes.DeletePartialMatch(prometheus.Labels{"session": session})
}
