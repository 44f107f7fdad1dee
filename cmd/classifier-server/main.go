// Command classifier-server hosts the rule classifier behind the
// satsim.classifier.v1.Classifier gRPC service.
package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/signalsfoundry/satellite-telemetry-sim/internal/classifier"
	"github.com/signalsfoundry/satellite-telemetry-sim/internal/config"
	"github.com/signalsfoundry/satellite-telemetry-sim/internal/logging"
	"github.com/signalsfoundry/satellite-telemetry-sim/internal/observability"
)

// Config holds the server settings.
type Config struct {
	ListenAddress  string
	MetricsAddress string
	LogLevel       string
	LogFormat      string
	Thresholds     classifier.Thresholds
	Tracing        config.TracingConfig
}

// tracingFromEnv reads the shared SATSIM_TRACING_* settings, naming the
// service after this binary unless overridden.
func tracingFromEnv(lookup func(string) (string, bool)) (config.TracingConfig, error) {
	settings := config.Default()
	settings.Tracing.Service = "satsim-classifier"
	if err := settings.ApplyEnv(lookup); err != nil {
		return config.TracingConfig{}, err
	}
	if err := settings.Validate(); err != nil {
		return config.TracingConfig{}, err
	}
	return settings.Tracing, nil
}

func main() {
	cfg := Config{Thresholds: classifier.DefaultThresholds}
	flag.StringVar(&cfg.ListenAddress, "grpc-addr", ":50051", "TCP address the classifier gRPC server listens on")
	flag.StringVar(&cfg.MetricsAddress, "metrics-addr", ":9090", "HTTP address for Prometheus /metrics (empty disables)")
	flag.StringVar(&cfg.LogLevel, "log-level", envOr("LOG_LEVEL", "info"), "log level")
	flag.StringVar(&cfg.LogFormat, "log-format", envOr("LOG_FORMAT", "text"), "log format: text or json")
	flag.Float64Var(&cfg.Thresholds.LowBatteryLevel, "battery-low", cfg.Thresholds.LowBatteryLevel, "Battery_Level below which power is rerouted")
	flag.Float64Var(&cfg.Thresholds.HighTemperature, "temp-high", cfg.Thresholds.HighTemperature, "Temperature above which cooling is increased")
	flag.Parse()

	log := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, AddSource: true})

	tracing, err := tracingFromEnv(os.LookupEnv)
	if err != nil {
		log.Error(context.Background(), "invalid tracing settings", logging.Err(err))
		os.Exit(1)
	}
	cfg.Tracing = tracing

	lis, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		log.Error(context.Background(), "failed to listen for gRPC", logging.String("addr", cfg.ListenAddress), logging.Err(err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, log, lis); err != nil {
		log.Error(ctx, "classifier server failed", logging.Err(err))
		os.Exit(1)
	}
}

// run serves on lis until ctx is cancelled, then stops gracefully.
func run(ctx context.Context, cfg Config, log logging.Logger, lis net.Listener) error {
	tracing, err := observability.InitTracing(ctx, cfg.Tracing, log)
	if err != nil {
		return err
	}
	defer tracing.Shutdown(context.Background())

	collector, err := observability.NewRPCCollector(nil)
	if err != nil {
		return err
	}
	metricsSrv := serveMetrics(cfg.MetricsAddress, collector, log)

	server := classifier.NewGRPCServer(classifier.NewRules(cfg.Thresholds), log, collector)

	errCh := make(chan error, 1)
	log.Info(ctx, "starting classifier gRPC server", logging.String("addr", lis.Addr().String()))
	go func() {
		errCh <- server.Serve(lis)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			log.Error(ctx, "gRPC server exited", logging.Err(err))
		}
		return err
	}

	log.Info(context.Background(), "shutting down classifier server")
	server.GracefulStop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return nil
}

func serveMetrics(addr string, collector *observability.RPCCollector, log logging.Logger) *http.Server {
	if addr == "" || collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
