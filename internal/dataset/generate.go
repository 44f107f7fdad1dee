// Package dataset generates labelled synthetic telemetry for classifier
// training and writes it as CSV or SQLite.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/signalsfoundry/satellite-telemetry-sim/core"
	"github.com/signalsfoundry/satellite-telemetry-sim/internal/classifier"
	"github.com/signalsfoundry/satellite-telemetry-sim/model"
	"golang.org/x/sync/errgroup"
)

// ErrInvalidOptions is returned for unusable generation options.
var ErrInvalidOptions = errors.New("invalid dataset options")

// DefaultStart is the first possible sample timestamp.
var DefaultStart = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

// sampling ranges per field, independent of the field's clamp range
var sampleRanges = [model.NumFields]model.Range{
	model.FieldBatteryLevel:         {Min: 0, Max: 100},
	model.FieldBatteryHealth:        {Min: 20, Max: 100},
	model.FieldSignalStrength:       {Min: 0, Max: 100},
	model.FieldPowerConsumptionRate: {Min: 0, Max: 100},
	model.FieldComponentHealth:      {Min: 40, Max: 100},
	model.FieldCPUGPUUsage:          {Min: 0, Max: 100},
	model.FieldSolarPanelEfficiency: {Min: 0, Max: 100},
	model.FieldTemperature:          {Min: -30, Max: 90},
	model.FieldDataStorageUsed:      {Min: 0, Max: 100},
	model.FieldDebrisRiskLevel:      {Min: 0, Max: 10},
}

// Labeler maps a vector to action flags. classifier.Rules satisfies it.
type Labeler interface {
	Label(t model.Telemetry) core.ActionFlags
}

// Options controls Generate.
type Options struct {
	Rows     int
	SpanDays int
	Seed     uint64
	// Shards splits generation across goroutines. Output is reproducible
	// for a fixed Seed and Shards.
	Shards int
	// Start defaults to DefaultStart.
	Start time.Time
	// Labeler defaults to the rule classifier.
	Labeler Labeler
}

// Sample is one labelled row.
type Sample struct {
	Timestamp      time.Time
	DaysSinceStart int
	Telemetry      model.Telemetry
	Labels         core.ActionFlags
}

// Actions lists the labelled actions in catalog order.
func (s Sample) Actions() []core.ActionKind { return s.Labels.Kinds() }

// Generate draws opts.Rows samples sorted by timestamp. Values are rounded
// to two decimals before labelling so labels match the stored values.
func Generate(ctx context.Context, opts Options) ([]Sample, error) {
	if opts.Rows <= 0 {
		return nil, fmt.Errorf("%w: rows must be positive, got %d", ErrInvalidOptions, opts.Rows)
	}
	if opts.SpanDays <= 0 {
		return nil, fmt.Errorf("%w: span must be positive, got %d days", ErrInvalidOptions, opts.SpanDays)
	}
	if opts.Shards <= 0 {
		opts.Shards = 1
	}
	if opts.Shards > opts.Rows {
		opts.Shards = opts.Rows
	}
	if opts.Start.IsZero() {
		opts.Start = DefaultStart
	}
	if opts.Labeler == nil {
		opts.Labeler = classifier.Rules{}
	}

	samples := make([]Sample, opts.Rows)
	g, gctx := errgroup.WithContext(ctx)
	for shard := 0; shard < opts.Shards; shard++ {
		lo := shard * opts.Rows / opts.Shards
		hi := (shard + 1) * opts.Rows / opts.Shards
		r := core.NewRand(opts.Seed + uint64(shard))
		g.Go(func() error {
			return fill(gctx, samples[lo:hi], r, opts)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].Timestamp.Before(samples[j].Timestamp)
	})
	return samples, nil
}

func fill(ctx context.Context, out []Sample, r core.Rand, opts Options) error {
	span := float64(opts.SpanDays) * float64(day)
	for i := range out {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		offset := time.Duration(r.Float64() * span)
		var t model.Telemetry
		for _, f := range model.Fields() {
			rng := sampleRanges[f]
			t = t.With(f, rng.Min+r.Float64()*(rng.Max-rng.Min))
		}
		t = t.Round()

		out[i] = Sample{
			Timestamp:      opts.Start.Add(offset),
			DaysSinceStart: int(offset / day),
			Telemetry:      t,
			Labels:         opts.Labeler.Label(t),
		}
	}
	return nil
}

// Summary reports label frequencies.
type Summary struct {
	Rows         int            `json:"rows"`
	NoAction     int            `json:"no_action"`
	ActionCounts map[string]int `json:"action_counts"`
}

// Summarize counts how often each action was labelled.
func Summarize(samples []Sample) Summary {
	s := Summary{Rows: len(samples), ActionCounts: make(map[string]int, core.NumActions)}
	for _, a := range core.Actions() {
		s.ActionCounts[a.String()] = 0
	}
	for _, sample := range samples {
		kinds := sample.Actions()
		if len(kinds) == 0 {
			s.NoAction++
		}
		for _, k := range kinds {
			s.ActionCounts[k.String()]++
		}
	}
	return s
}
