package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/signalsfoundry/satellite-telemetry-sim/model"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestUnaryInterceptorRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewRPCCollector(reg)
	if err != nil {
		t.Fatalf("NewRPCCollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/satsim.classifier.v1.Classifier/Predict"}

	_, err = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("interceptor handler returned error: %v", err)
	}

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("Classifier", "Predict", "OK")); got != 1 {
		t.Fatalf("classifier_requests_total = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "classifier_request_duration_seconds", map[string]string{
		"service": "Classifier",
		"method":  "Predict",
	}); count != 1 {
		t.Fatalf("classifier_request_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestUnaryInterceptorRecordsErrorCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewRPCCollector(reg)
	if err != nil {
		t.Fatalf("NewRPCCollector: %v", err)
	}

	info := &grpc.UnaryServerInfo{FullMethod: "/satsim.classifier.v1.Classifier/Predict"}
	_, _ = collector.UnaryServerInterceptor()(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.InvalidArgument, "boom")
	})

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("Classifier", "Predict", "InvalidArgument")); got != 1 {
		t.Fatalf("classifier_requests_total error label = %v, want 1", got)
	}
}

func TestCollectorsShareRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}
	second, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("second NewSimCollector: %v", err)
	}
	first.IncEvent("Overheating")
	second.IncEvent("Overheating")
	if got := testutil.ToFloat64(first.EventsTotal.WithLabelValues("Overheating")); got != 2 {
		t.Fatalf("satsim_events_total = %v, want 2 from shared collector", got)
	}
}

func TestSimCollectorTickMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}

	c.ObserveTick(3 * time.Millisecond)
	c.ObserveTick(5 * time.Millisecond)
	c.IncAction("Delete unnecessary data")
	c.IncClassifierError()
	c.SetActiveSessions(2)

	if got := testutil.ToFloat64(c.TicksTotal); got != 2 {
		t.Fatalf("satsim_ticks_total = %v, want 2", got)
	}
	if count := histogramSampleCount(t, reg, "satsim_tick_duration_seconds", nil); count != 2 {
		t.Fatalf("satsim_tick_duration_seconds sample_count = %d, want 2", count)
	}
	if got := testutil.ToFloat64(c.ActionsTotal.WithLabelValues("Delete unnecessary data")); got != 1 {
		t.Fatalf("satsim_actions_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.ClassifierErrorsTotal); got != 1 {
		t.Fatalf("satsim_classifier_errors_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.ActiveSessions); got != 2 {
		t.Fatalf("satsim_active_sessions = %v, want 2", got)
	}
}

func TestSimCollectorSessionAttributes(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}

	c.SetSessionTelemetry("a", model.Telemetry{BatteryLevel: 77, Temperature: -4})
	c.SetSessionTelemetry("b", model.Telemetry{BatteryLevel: 12})

	if got := testutil.ToFloat64(c.SessionAttributes.WithLabelValues("a", "Battery_Level")); got != 77 {
		t.Fatalf("Battery_Level gauge = %v, want 77", got)
	}
	if got := testutil.ToFloat64(c.SessionAttributes.WithLabelValues("a", "Temperature")); got != -4 {
		t.Fatalf("Temperature gauge = %v, want -4", got)
	}
	if got := testutil.CollectAndCount(c.SessionAttributes); got != 2*model.NumFields {
		t.Fatalf("series = %d, want %d", got, 2*model.NumFields)
	}

	c.DeleteSession("a")
	if got := testutil.CollectAndCount(c.SessionAttributes); got != model.NumFields {
		t.Fatalf("series after delete = %d, want %d", got, model.NumFields)
	}
}

func TestNilSimCollectorIsSafe(t *testing.T) {
	var c *SimCollector
	c.ObserveTick(time.Millisecond)
	c.IncEvent("x")
	c.IncAction("y")
	c.IncClassifierError()
	c.SetActiveSessions(1)
	c.SetSessionTelemetry("s", model.Telemetry{})
	c.DeleteSession("s")
	if c.Gatherer() != nil {
		t.Fatalf("nil collector returned a gatherer")
	}
}

func TestMetricsHandlerExposesSimMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	sim, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}
	rpc, err := NewRPCCollector(reg)
	if err != nil {
		t.Fatalf("NewRPCCollector: %v", err)
	}
	sim.ObserveTick(time.Millisecond)
	sim.SetActiveSessions(3)
	rpc.RPCRequests.WithLabelValues("Classifier", "Predict", "OK").Inc()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	sim.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"satsim_ticks_total",
		"satsim_tick_duration_seconds",
		"satsim_active_sessions 3",
		"classifier_requests_total",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}
}

func TestSplitMethod(t *testing.T) {
	cases := map[string][2]string{
		"/satsim.classifier.v1.Classifier/Predict": {"Classifier", "Predict"},
		"":        {"unknown", "unknown"},
		"Predict": {"unknown", "unknown"},
	}
	for in, want := range cases {
		svc, m := SplitMethod(in)
		if svc != want[0] || m != want[1] {
			t.Fatalf("SplitMethod(%q) = %q, %q; want %q, %q", in, svc, m, want[0], want[1])
		}
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
