package main

import (
	"fmt"
	"io"
	"os"

	"github.com/signalsfoundry/satellite-telemetry-sim/internal/classifier"
	"github.com/signalsfoundry/satellite-telemetry-sim/internal/config"
	"github.com/signalsfoundry/satellite-telemetry-sim/internal/logging"
	"github.com/signalsfoundry/satellite-telemetry-sim/internal/sink"
	"github.com/spf13/cobra"
)

type app struct {
	configPath string
	logLevel   string
	logFormat  string
	logOutput  io.Writer
}

func newRootCmd() *cobra.Command {
	a := &app{logOutput: os.Stderr}
	root := &cobra.Command{
		Use:           "satsim",
		Short:         "Satellite telemetry state simulator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", os.Getenv("SATSIM_CONFIG"), "path to a YAML config file")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&a.logFormat, "log-format", "", "log format: text or json")

	root.AddCommand(newServeCmd(a), newRunCmd(a), newDatasetCmd(a))
	return root
}

// load resolves configuration in order: defaults, file, SATSIM_* env,
// global flags, then command flags via override.
func (a *app) load(cmd *cobra.Command, override func(*config.Config)) (config.Config, logging.Logger, error) {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return cfg, nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, nil, err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = a.logLevel
	}
	if cmd.Flags().Changed("log-format") {
		cfg.Log.Format = a.logFormat
	}
	if override != nil {
		override(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, nil, err
	}

	log := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: a.logOutput,
	})
	return cfg, log, nil
}

// buildPredictor returns the configured classifier and a release func.
// Mode "none" yields a nil predictor.
func buildPredictor(cfg config.ClassifierConfig) (classifier.Predictor, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Mode {
	case "none":
		return nil, noop, nil
	case "rules", "":
		return classifier.Rules{}, noop, nil
	case "remote":
		client, err := classifier.Dial(cfg.Addr)
		if err != nil {
			return nil, noop, fmt.Errorf("dial classifier %s: %w", cfg.Addr, err)
		}
		return client, client.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown classifier mode %q", cfg.Mode)
	}
}

// buildInflux returns the InfluxDB sink, or nil when disabled.
func buildInflux(cfg config.InfluxConfig) *sink.Influx {
	if !cfg.Enabled {
		return nil
	}
	return sink.NewInflux(sink.InfluxConfig{
		URL:          cfg.URL,
		Token:        cfg.Token,
		Org:          cfg.Org,
		Bucket:       cfg.Bucket,
		Measurement:  cfg.Measurement,
		WriteTimeout: cfg.WriteTimeout,
	})
}
