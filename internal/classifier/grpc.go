package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/signalsfoundry/satellite-telemetry-sim/core"
	"github.com/signalsfoundry/satellite-telemetry-sim/internal/logging"
	"github.com/signalsfoundry/satellite-telemetry-sim/model"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// ServiceName is the fully-qualified gRPC service name.
	ServiceName = "satsim.classifier.v1.Classifier"
	// PredictMethod is the full method path of the Predict RPC.
	PredictMethod = "/" + ServiceName + "/Predict"

	requestIDMetadataKey = "x-request-id"
	envelopeKey          = "telemetry"
)

// classifierServer is the handler contract for ServiceDesc. Requests carry the
// flat field map as a Struct; responses are an 11-number ListValue.
type classifierServer interface {
	Predict(ctx context.Context, req *structpb.Struct) (*structpb.ListValue, error)
}

// ServiceDesc describes the Classifier service against the protobuf
// well-known types so no generated stubs are needed.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*classifierServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Predict",
			Handler:    predictHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "satsim/classifier/v1/classifier.proto",
}

func predictHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(classifierServer).Predict(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: PredictMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(classifierServer).Predict(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// EncodeTelemetry renders t as the flat field map used on the wire.
func EncodeTelemetry(t model.Telemetry) *structpb.Struct {
	fields := make(map[string]*structpb.Value, model.NumFields)
	for _, f := range model.Fields() {
		fields[f.String()] = structpb.NewNumberValue(t.Get(f))
	}
	return &structpb.Struct{Fields: fields}
}

// DecodeTelemetry reads a flat field map, or one wrapped under a "telemetry"
// key. Every field must be present and numeric.
func DecodeTelemetry(s *structpb.Struct) (model.Telemetry, error) {
	if s == nil {
		return model.Telemetry{}, fmt.Errorf("%w: empty request", ErrMalformedRequest)
	}
	fields := s.GetFields()
	if inner := fields[envelopeKey].GetStructValue(); inner != nil && len(fields) == 1 {
		fields = inner.GetFields()
	}

	values := make(map[string]float64, len(fields))
	for name, v := range fields {
		num, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return model.Telemetry{}, fmt.Errorf("%w: field %q is not a number", ErrMalformedRequest, name)
		}
		values[name] = num.NumberValue
	}
	t, err := model.FromMap(values)
	if err != nil {
		return model.Telemetry{}, fmt.Errorf("%w: %w", ErrMalformedRequest, err)
	}
	return t, nil
}

// EncodeFlags renders flags as a list of numbers.
func EncodeFlags(flags core.ActionFlags) *structpb.ListValue {
	values := make([]*structpb.Value, len(flags))
	for i, v := range flags {
		values[i] = structpb.NewNumberValue(float64(v))
	}
	return &structpb.ListValue{Values: values}
}

// DecodeFlags reads a list of 0/1 numbers and validates it against the
// action catalog.
func DecodeFlags(l *structpb.ListValue) (core.ActionFlags, error) {
	values := l.GetValues()
	flags := make(core.ActionFlags, len(values))
	for i, v := range values {
		num, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok || num.NumberValue != math.Trunc(num.NumberValue) {
			return nil, fmt.Errorf("%w: entry %d is not an integer", core.ErrInvalidActionVector, i)
		}
		flags[i] = int(num.NumberValue)
	}
	if err := flags.Validate(); err != nil {
		return nil, err
	}
	return flags, nil
}

// Server exposes a Predictor over gRPC.
type Server struct {
	predictor Predictor
	log       logging.Logger
}

// NewServer wraps p. A nil predictor serves the default rule table.
func NewServer(p Predictor, log logging.Logger) *Server {
	if p == nil {
		p = Rules{}
	}
	if log == nil {
		log = logging.Noop()
	}
	return &Server{predictor: p, log: log}
}

// Register attaches the service to a gRPC server.
func (s *Server) Register(reg grpc.ServiceRegistrar) {
	reg.RegisterService(&ServiceDesc, s)
}

// Predict implements the Classifier RPC.
func (s *Server) Predict(ctx context.Context, req *structpb.Struct) (*structpb.ListValue, error) {
	log := logging.LoggerFromContext(ctx)
	if log == nil {
		log = s.log
	}

	t, err := DecodeTelemetry(req)
	if err != nil {
		log.Warn(ctx, "rejecting classifier request", logging.Err(err))
		return nil, ToStatusError(err)
	}

	flags, err := s.predictor.Predict(ctx, t)
	if err == nil {
		err = flags.Validate()
	}
	if errors.Is(err, core.ErrInvalidActionVector) {
		// The request was fine; the predictor produced the bad vector.
		err = fmt.Errorf("%w: %w", ErrInvalidPrediction, err)
	}
	if err != nil {
		log.Error(ctx, "prediction failed", logging.Err(err))
		return nil, ToStatusError(err)
	}

	log.Debug(ctx, "prediction served", logging.String("flags", flags.String()))
	return EncodeFlags(flags), nil
}

// Client calls a remote Classifier service. It satisfies Predictor.
type Client struct {
	cc    grpc.ClientConnInterface
	close func() error
}

// Dial connects to target with insecure transport credentials and an
// OpenTelemetry client stats handler. Extra options are appended.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}
	conn, err := grpc.NewClient(target, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("dial classifier %s: %w", target, err)
	}
	return &Client{cc: conn, close: conn.Close}, nil
}

// NewClient wraps an existing connection. Close leaves cc open.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Predict sends t and validates the returned flag vector. A request ID on ctx
// is forwarded as x-request-id metadata.
func (c *Client) Predict(ctx context.Context, t model.Telemetry) (core.ActionFlags, error) {
	if id := logging.RequestIDFromContext(ctx); id != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, requestIDMetadataKey, id)
	}
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, PredictMethod, EncodeTelemetry(t), out); err != nil {
		return nil, err
	}
	return DecodeFlags(out)
}

// Close releases a connection opened by Dial.
func (c *Client) Close() error {
	if c == nil || c.close == nil {
		return nil
	}
	return c.close()
}
