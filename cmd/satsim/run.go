package main

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/signalsfoundry/satellite-telemetry-sim/internal/config"
	"github.com/signalsfoundry/satellite-telemetry-sim/internal/driver"
	"github.com/signalsfoundry/satellite-telemetry-sim/internal/logging"
	"github.com/signalsfoundry/satellite-telemetry-sim/internal/sink"
	"github.com/signalsfoundry/satellite-telemetry-sim/timectrl"
	"github.com/spf13/cobra"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		mode, format, classifierMode, classifierAddr string
		tick                                         time.Duration
		ticks                                        int
		seed                                         uint64
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one session and print frames to stdout",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := cmd.Flags()
			cfg, log, err := a.load(cmd, func(c *config.Config) {
				if f.Changed("ticks") {
					c.Simulation.MaxTicks = ticks
				}
				if f.Changed("tick") {
					c.Simulation.Tick = tick
				}
				if f.Changed("mode") {
					c.Simulation.Mode = mode
				}
				if f.Changed("format") {
					c.Simulation.ConsoleFormat = format
				}
				if f.Changed("seed") {
					c.Simulation.Seed = seed
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
			return runConsole(cmd.Context(), cfg, log, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.IntVar(&ticks, "ticks", 0, "stop after this many ticks (0 runs until interrupted)")
	f.DurationVar(&tick, "tick", 0, "tick period")
	f.StringVar(&mode, "mode", "", "clock mode: realtime or accelerated")
	f.StringVar(&format, "format", "", "output format: flat, envelope or text")
	f.Uint64Var(&seed, "seed", 0, "random seed (0 picks one)")
	f.StringVar(&classifierMode, "classifier", "", "classifier: none, rules or remote")
	f.StringVar(&classifierAddr, "classifier-addr", "", "gRPC address of a remote classifier")
	return cmd
}

// runConsole drives a single session into out. An interrupt ends it cleanly.
func runConsole(ctx context.Context, cfg config.Config, log logging.Logger, out io.Writer) error {
	mode, err := timectrl.ParseMode(cfg.Simulation.Mode)
	if err != nil {
		return err
	}
	predictor, release, err := buildPredictor(cfg.Classifier)
	if err != nil {
		return err
	}
	defer release()

	var target driver.Sink = sink.NewConsole(out, cfg.Simulation.ConsoleFormat)
	if influx := buildInflux(cfg.Influx); influx != nil {
		defer influx.Close()
		target = sink.Multi(target, sink.BestEffort(influx, "influx", log))
	}

	opts := []driver.Option{driver.WithSink(target), driver.WithLogger(log)}
	if predictor != nil {
		opts = append(opts, driver.WithPredictor(predictor))
	}
	d, err := driver.New(driver.Config{
		Tick:              cfg.Simulation.Tick,
		Mode:              mode,
		ClassifierTimeout: cfg.Simulation.ClassifierTimeout,
		MaxTicks:          cfg.Simulation.MaxTicks,
		Seed:              cfg.Simulation.Seed,
	}, opts...)
	if err != nil {
		return err
	}

	if err := d.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
