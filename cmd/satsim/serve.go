package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/signalsfoundry/satellite-telemetry-sim/internal/config"
	"github.com/signalsfoundry/satellite-telemetry-sim/internal/driver"
	"github.com/signalsfoundry/satellite-telemetry-sim/internal/httpapi"
	"github.com/signalsfoundry/satellite-telemetry-sim/internal/logging"
	"github.com/signalsfoundry/satellite-telemetry-sim/internal/observability"
	"github.com/signalsfoundry/satellite-telemetry-sim/internal/sim/state"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var (
		addr, mode, classifierMode, classifierAddr string
		tick                                       time.Duration
		maxSessions                                int
		envelope                                   bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve telemetry sessions over websocket",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := cmd.Flags()
			cfg, log, err := a.load(cmd, func(c *config.Config) {
				if f.Changed("addr") {
					c.Server.Addr = addr
				}
				if f.Changed("tick") {
					c.Simulation.Tick = tick
				}
				if f.Changed("mode") {
					c.Simulation.Mode = mode
				}
				if f.Changed("envelope") {
					c.Simulation.Envelope = envelope
				}
				if f.Changed("max-sessions") {
					c.Server.MaxSessions = maxSessions
				}
				if f.Changed("classifier") {
					c.Classifier.Mode = classifierMode
				}
				if f.Changed("classifier-addr") {
					c.Classifier.Addr = classifierAddr
				}
			})
			if err != nil {
				return err
			}

			lis, err := net.Listen("tcp", cfg.Server.Addr)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, log, lis)
		},
	}

	f := cmd.Flags()
	f.StringVar(&addr, "addr", "", "HTTP listen address")
	f.DurationVar(&tick, "tick", 0, "tick period")
	f.StringVar(&mode, "mode", "", "clock mode: realtime or accelerated")
	f.BoolVar(&envelope, "envelope", false, "send full frames instead of the flat telemetry map")
	f.IntVar(&maxSessions, "max-sessions", 0, "maximum concurrent sessions (0 means unlimited)")
	f.StringVar(&classifierMode, "classifier", "", "classifier: none, rules or remote")
	f.StringVar(&classifierAddr, "classifier-addr", "", "gRPC address of a remote classifier")
	return cmd
}

// runServe serves HTTP on lis until ctx is cancelled.
func runServe(ctx context.Context, cfg config.Config, log logging.Logger, lis net.Listener) error {
	tracing, err := observability.InitTracing(ctx, cfg.Tracing, log)
	if err != nil {
		return err
	}
	defer tracing.Shutdown(context.Background())

	metrics, err := observability.NewSimCollector(nil)
	if err != nil {
		return err
	}

	predictor, release, err := buildPredictor(cfg.Classifier)
	if err != nil {
		return err
	}
	defer release()

	var extra driver.Sink
	if influx := buildInflux(cfg.Influx); influx != nil {
		defer influx.Close()
		extra = influx
		log.Info(ctx, "writing frames to influxdb",
			logging.String("url", cfg.Influx.URL),
			logging.String("bucket", cfg.Influx.Bucket),
		)
	}

	api, err := httpapi.New(httpapi.Deps{
		Server:     cfg.Server,
		Simulation: cfg.Simulation,
		Predictor:  predictor,
		Extra:      extra,
		Registry:   state.NewSessionRegistry(log, state.WithMetricsRecorder(metrics)),
		Metrics:    metrics,
		Logger:     log,
		Tracer:     tracing.Tracer("satsim/driver"),
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           api,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info(ctx, "serving telemetry",
			logging.String("addr", lis.Addr().String()),
			logging.String("classifier", cfg.Classifier.Mode),
			logging.String("mode", cfg.Simulation.Mode),
			logging.Duration("tick", cfg.Simulation.Tick),
		)
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info(context.Background(), "shutting down", logging.Int("sessions", api.Registry().Len()))
		api.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
