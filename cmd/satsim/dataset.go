package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/signalsfoundry/satellite-telemetry-sim/internal/config"
	"github.com/signalsfoundry/satellite-telemetry-sim/internal/dataset"
	"github.com/signalsfoundry/satellite-telemetry-sim/internal/logging"
	"github.com/spf13/cobra"
)

func newDatasetCmd(a *app) *cobra.Command {
	var (
		rows, spanDays, shards int
		seed                   uint64
		output, format         string
	)
	cmd := &cobra.Command{
		Use:   "dataset",
		Short: "Generate a labelled training dataset",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := cmd.Flags()
			cfg, log, err := a.load(cmd, func(c *config.Config) {
				if f.Changed("rows") {
					c.Dataset.Rows = rows
				}
				if f.Changed("span-days") {
					c.Dataset.SpanDays = spanDays
				}
				if f.Changed("shards") {
					c.Dataset.Shards = shards
				}
				if f.Changed("seed") {
					c.Dataset.Seed = seed
				}
				if f.Changed("output") {
					c.Dataset.Output = output
				}
				if f.Changed("format") {
					c.Dataset.Format = format
				}
			})
			if err != nil {
				return err
			}
			return runDataset(cmd.Context(), cfg.Dataset, log, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.IntVar(&rows, "rows", 0, "number of rows")
	f.IntVar(&spanDays, "span-days", 0, "timestamp span in days")
	f.IntVar(&shards, "shards", 0, "parallel generator shards")
	f.Uint64Var(&seed, "seed", 0, "random seed")
	f.StringVar(&output, "output", "", "output file")
	f.StringVar(&format, "format", "", "output format: csv or sqlite")
	return cmd
}

// runDataset generates rows, writes them and prints a JSON summary to out.
func runDataset(ctx context.Context, cfg config.DatasetConfig, log logging.Logger, out io.Writer) error {
	start := time.Now()
	samples, err := dataset.Generate(ctx, dataset.Options{
		Rows:     cfg.Rows,
		SpanDays: cfg.SpanDays,
		Seed:     cfg.Seed,
		Shards:   cfg.Shards,
	})
	if err != nil {
		return err
	}

	switch cfg.Format {
	case "sqlite":
		w, err := dataset.OpenSQLite(ctx, cfg.Output)
		if err != nil {
			return err
		}
		defer w.Close()
		if err := w.Write(ctx, samples); err != nil {
			return err
		}
	default:
		if err := writeCSV(ctx, cfg.Output, samples); err != nil {
			return err
		}
	}

	log.Info(ctx, "dataset written",
		logging.String("output", cfg.Output),
		logging.String("format", cfg.Format),
		logging.Int("rows", len(samples)),
		logging.Duration("elapsed", time.Since(start)),
	)

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(dataset.Summarize(samples))
}

func writeCSV(ctx context.Context, path string, samples []dataset.Sample) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()
	return dataset.NewCSVWriter(f).Write(ctx, samples)
}
