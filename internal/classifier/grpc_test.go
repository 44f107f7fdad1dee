package classifier

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/signalsfoundry/satellite-telemetry-sim/core"
	"github.com/signalsfoundry/satellite-telemetry-sim/internal/logging"
	"github.com/signalsfoundry/satellite-telemetry-sim/internal/observability"
	"github.com/signalsfoundry/satellite-telemetry-sim/model"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

type classifierTestEnv struct {
	ctx     context.Context
	client  *Client
	conn    *grpc.ClientConn
	metrics *observability.RPCCollector
}

func newClassifierTestEnv(t *testing.T, p Predictor) *classifierTestEnv {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)

	metrics, err := observability.NewRPCCollector(prometheus.NewRegistry())
	if err != nil {
		cancel()
		t.Fatalf("NewRPCCollector: %v", err)
	}

	lis := bufconn.Listen(1 << 20)
	srv := NewGRPCServer(p, logging.Noop(), metrics)
	go func() {
		_ = srv.Serve(lis)
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		cancel()
		t.Fatalf("grpc.NewClient: %v", err)
	}

	t.Cleanup(func() {
		_ = conn.Close()
		srv.GracefulStop()
		cancel()
	})

	return &classifierTestEnv{ctx: ctx, client: NewClient(conn), conn: conn, metrics: metrics}
}

func TestPredictRoundTrip(t *testing.T) {
	env := newClassifierTestEnv(t, Rules{})

	in := nominal()
	in.Temperature = 88
	in.DataStorageUsed = 91

	got, err := env.client.Predict(env.ctx, in)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if want := (Rules{}).Label(in); got.String() != want.String() {
		t.Fatalf("remote flags = %s, local = %s", got, want)
	}
	if n := testutil.ToFloat64(env.metrics.RPCRequests.WithLabelValues("Classifier", "Predict", "OK")); n != 1 {
		t.Fatalf("classifier_requests_total = %v, want 1", n)
	}
}

func TestPredictRejectsPartialVector(t *testing.T) {
	env := newClassifierTestEnv(t, Rules{})

	req, err := structpb.NewStruct(map[string]interface{}{"Battery_Level": 50.0})
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	err = env.conn.Invoke(env.ctx, PredictMethod, req, new(structpb.ListValue))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("status = %v, want InvalidArgument", status.Code(err))
	}
}

func TestPredictAcceptsEnvelope(t *testing.T) {
	env := newClassifierTestEnv(t, Rules{})

	req := &structpb.Struct{Fields: map[string]*structpb.Value{
		"telemetry": structpb.NewStructValue(EncodeTelemetry(nominal())),
	}}
	out := new(structpb.ListValue)
	if err := env.conn.Invoke(env.ctx, PredictMethod, req, out); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if len(out.GetValues()) != core.NumActions {
		t.Fatalf("response has %d entries, want %d", len(out.GetValues()), core.NumActions)
	}
}

func TestPredictMapsPredictorErrors(t *testing.T) {
	short := Func(func(context.Context, model.Telemetry) (core.ActionFlags, error) {
		return core.ActionFlags{1, 0}, nil
	})
	env := newClassifierTestEnv(t, short)
	_, err := env.client.Predict(env.ctx, nominal())
	if status.Code(err) != codes.Internal {
		t.Fatalf("short vector status = %v, want Internal", status.Code(err))
	}

	nonBinary := Func(func(context.Context, model.Telemetry) (core.ActionFlags, error) {
		flags := make(core.ActionFlags, core.NumActions)
		flags[2] = 7
		return flags, nil
	})
	env = newClassifierTestEnv(t, nonBinary)
	_, err = env.client.Predict(env.ctx, nominal())
	if status.Code(err) != codes.Internal {
		t.Fatalf("non-binary vector status = %v, want Internal", status.Code(err))
	}
	if n := testutil.ToFloat64(env.metrics.RPCRequests.WithLabelValues("Classifier", "Predict", "Internal")); n != 1 {
		t.Fatalf("classifier_requests_total{code=Internal} = %v, want 1", n)
	}

	broken := Func(func(context.Context, model.Telemetry) (core.ActionFlags, error) {
		return nil, errors.New("model offline")
	})
	env = newClassifierTestEnv(t, broken)
	_, err = env.client.Predict(env.ctx, nominal())
	if status.Code(err) != codes.Internal {
		t.Fatalf("predictor failure status = %v, want Internal", status.Code(err))
	}
}

func TestRequestIDReachesServer(t *testing.T) {
	seen := make(chan string, 1)
	p := Func(func(ctx context.Context, _ model.Telemetry) (core.ActionFlags, error) {
		seen <- logging.RequestIDFromContext(ctx)
		return make(core.ActionFlags, core.NumActions), nil
	})
	env := newClassifierTestEnv(t, p)

	ctx := logging.ContextWithRequestID(env.ctx, "req-42")
	if _, err := env.client.Predict(ctx, nominal()); err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if got := <-seen; got != "req-42" {
		t.Fatalf("server request_id = %q, want req-42", got)
	}
}

func TestDecodeFlagsRejectsNonBinary(t *testing.T) {
	l := EncodeFlags(core.FlagsFor(core.ActionDeleteData))
	l.Values[0] = structpb.NewNumberValue(0.5)
	if _, err := DecodeFlags(l); !errors.Is(err, core.ErrInvalidActionVector) {
		t.Fatalf("DecodeFlags error = %v, want ErrInvalidActionVector", err)
	}
	l.Values[0] = structpb.NewStringValue("1")
	if _, err := DecodeFlags(l); !errors.Is(err, core.ErrInvalidActionVector) {
		t.Fatalf("DecodeFlags error = %v, want ErrInvalidActionVector", err)
	}
}

func TestDecodeTelemetryRoundTrip(t *testing.T) {
	in := nominal()
	got, err := DecodeTelemetry(EncodeTelemetry(in))
	if err != nil {
		t.Fatalf("DecodeTelemetry: %v", err)
	}
	if got != in {
		t.Fatalf("DecodeTelemetry = %+v, want %+v", got, in)
	}

	bad := EncodeTelemetry(in)
	bad.Fields["Warp_Core"] = structpb.NewNumberValue(1)
	if _, err := DecodeTelemetry(bad); !errors.Is(err, model.ErrUnknownField) || !errors.Is(err, ErrMalformedRequest) {
		t.Fatalf("unknown field error = %v", err)
	}
}
