// Package httpapi serves telemetry sessions over websocket plus a small JSON
// API for inspecting the engine.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/signalsfoundry/satellite-telemetry-sim/internal/classifier"
	"github.com/signalsfoundry/satellite-telemetry-sim/internal/config"
	"github.com/signalsfoundry/satellite-telemetry-sim/internal/driver"
	"github.com/signalsfoundry/satellite-telemetry-sim/internal/logging"
	"github.com/signalsfoundry/satellite-telemetry-sim/internal/observability"
	"github.com/signalsfoundry/satellite-telemetry-sim/internal/sim/state"
	"github.com/signalsfoundry/satellite-telemetry-sim/timectrl"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// Deps wires the server to the rest of the process.
type Deps struct {
	Server     config.ServerConfig
	Simulation config.SimulationConfig

	// Predictor is shared by every session; nil disables fixes.
	Predictor classifier.Predictor
	// Extra is an optional sink that receives every session's frames in
	// addition to the websocket, e.g. InfluxDB. Its failures are logged only.
	Extra driver.Sink

	Registry *state.SessionRegistry
	Metrics  *observability.SimCollector
	Logger   logging.Logger
	Tracer   trace.Tracer
}

// Server owns the router and the lifetime of websocket sessions.
type Server struct {
	deps     Deps
	log      logging.Logger
	limiter  *rate.Limiter
	upgrader websocket.Upgrader
	mode     timectrl.Mode
	router   chi.Router
	seq      atomic.Uint64

	// sessions outlive their HTTP request once hijacked, so shutdown is
	// signalled through this context instead.
	baseCtx context.Context
	stop    context.CancelFunc
}

// New builds the router.
func New(deps Deps) (*Server, error) {
	mode, err := timectrl.ParseMode(deps.Simulation.Mode)
	if err != nil {
		return nil, err
	}
	if deps.Logger == nil {
		deps.Logger = logging.Noop()
	}
	if deps.Registry == nil {
		deps.Registry = state.NewSessionRegistry(deps.Logger, state.WithMetricsRecorder(deps.Metrics))
	}

	limit := rate.Inf
	if deps.Server.SessionRate > 0 {
		limit = rate.Limit(deps.Server.SessionRate)
	}
	burst := deps.Server.SessionBurst
	if burst <= 0 {
		burst = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		deps:    deps,
		log:     deps.Logger,
		limiter: rate.NewLimiter(limit, burst),
		mode:    mode,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin:      originChecker(deps.Server.CORSOrigins),
		},
		baseCtx: ctx,
		stop:    cancel,
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(s.requestLogger)
	if len(s.deps.Server.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.deps.Server.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
			MaxAge:         300,
		}))
	}

	r.Get("/ws", s.handleSession)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": s.deps.Registry.Len()})
	})
	if s.deps.Server.Metrics {
		r.Method(http.MethodGet, "/metrics", s.deps.Metrics.Handler())
	}

	r.Route("/api", func(ar chi.Router) {
		ar.Get("/catalog", s.handleCatalog)
		ar.Get("/sessions", s.handleSessions)
		ar.Get("/sessions/{id}", s.handleSessionByID)
		ar.Post("/recalculate", s.handleRecalculate)
		ar.Post("/fixes", s.handleFixes)
		ar.Post("/classify", s.handleClassify)
	})
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Registry returns the session registry backing /api/sessions.
func (s *Server) Registry() *state.SessionRegistry { return s.deps.Registry }

// Close ends every running session. New sessions are refused afterwards.
func (s *Server) Close() { s.stop() }

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := middleware.GetReqID(ctx); id != "" {
			ctx = logging.ContextWithRequestID(ctx, id)
		}
		ctx, log := logging.WithRequestLogger(ctx, s.log)
		ctx = logging.ContextWithLogger(ctx, log)

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))
		log.Debug(ctx, "http request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", ww.Status()),
			logging.Duration("duration", time.Since(start)),
		)
	})
}

func originChecker(origins []string) func(*http.Request) bool {
	allowAll := len(origins) == 0
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return allowAll || origin == "" || allowed[origin]
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func loggerFrom(ctx context.Context, fallback logging.Logger) logging.Logger {
	if l := logging.LoggerFromContext(ctx); l != nil {
		return l
	}
	return fallback
}
