package main

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/signalsfoundry/satellite-telemetry-sim/core"
	"github.com/signalsfoundry/satellite-telemetry-sim/internal/classifier"
	"github.com/signalsfoundry/satellite-telemetry-sim/internal/config"
	"github.com/signalsfoundry/satellite-telemetry-sim/internal/logging"
	"github.com/signalsfoundry/satellite-telemetry-sim/model"
)

func TestClassifierServerStartupSmoke(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}

	cfg := Config{
		ListenAddress:  lis.Addr().String(),
		MetricsAddress: "",
		LogLevel:       "warn",
		LogFormat:      "text",
		Thresholds:     classifier.DefaultThresholds,
		Tracing:        config.Default().Tracing,
	}
	cfg.Thresholds.LowBatteryLevel = 60

	log := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, cfg, log, lis)
	}()

	client, err := classifier.Dial(cfg.ListenAddress)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	in := model.Telemetry{
		BatteryLevel: 50, BatteryHealth: 90, SignalStrength: 80, PowerConsumptionRate: 5,
		ComponentHealth: 90, CPUGPUUsage: 12.5, SolarPanelEfficiency: 85, Temperature: 25,
		DataStorageUsed: 20, DebrisRiskLevel: 2,
	}
	flags, err := client.Predict(ctx, in)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	kinds := flags.Kinds()
	if len(kinds) != 1 || kinds[0] != core.ActionReroutePower {
		t.Fatalf("Predict = %v, want only reroute power with the raised battery threshold", kinds)
	}

	cancel()

	if err := <-errCh; err != nil {
		t.Fatalf("server returned error: %v", err)
	}
}

func TestTracingFromEnv(t *testing.T) {
	env := map[string]string{}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	cfg, err := tracingFromEnv(lookup)
	if err != nil {
		t.Fatalf("tracingFromEnv: %v", err)
	}
	if cfg.Enabled || cfg.Service != "satsim-classifier" || cfg.Exporter != "stdout" {
		t.Fatalf("default classifier tracing = %+v", cfg)
	}

	env["SATSIM_TRACING_ENABLED"] = "true"
	env["SATSIM_TRACING_EXPORTER"] = "otlp"
	env["SATSIM_TRACING_ENDPOINT"] = "collector:4317"
	if cfg, err = tracingFromEnv(lookup); err != nil || !cfg.Enabled || cfg.Endpoint != "collector:4317" {
		t.Fatalf("tracingFromEnv = %+v, %v", cfg, err)
	}

	env["SATSIM_TRACING_SAMPLE_RATIO"] = "2"
	if _, err := tracingFromEnv(lookup); !errors.Is(err, config.ErrInvalidConfig) {
		t.Fatalf("out-of-range ratio error = %v, want ErrInvalidConfig", err)
	}
}
