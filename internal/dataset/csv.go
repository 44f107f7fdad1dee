package dataset

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/signalsfoundry/satellite-telemetry-sim/core"
	"github.com/signalsfoundry/satellite-telemetry-sim/model"
)

// TimestampLayout is the timestamp format used in CSV output.
const TimestampLayout = "2006-01-02 15:04:05.000000"

// Header returns the CSV column names: timestamp columns, the ten fields in
// canonical order, the joined action list, then one 0/1 column per action.
func Header() []string {
	cols := []string{"Timestamp", "Days_Since_Start"}
	for _, f := range model.Fields() {
		cols = append(cols, f.String())
	}
	cols = append(cols, "Recommended_Actions")
	for _, a := range core.Actions() {
		cols = append(cols, a.String())
	}
	return cols
}

// CSVWriter writes samples with a header row.
type CSVWriter struct {
	w *csv.Writer
}

// NewCSVWriter wraps w.
func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{w: csv.NewWriter(w)}
}

// Write emits the header and every sample, then flushes.
func (c *CSVWriter) Write(ctx context.Context, samples []Sample) error {
	if err := c.w.Write(Header()); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	row := make([]string, 0, 3+model.NumFields+core.NumActions)
	for i, s := range samples {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		row = row[:0]
		row = append(row, s.Timestamp.Format(TimestampLayout), strconv.Itoa(s.DaysSinceStart))
		for _, v := range s.Telemetry.Values() {
			row = append(row, strconv.FormatFloat(v, 'f', -1, 64))
		}
		row = append(row, joinActions(s.Actions()))
		for _, flag := range s.Labels {
			row = append(row, strconv.Itoa(flag))
		}
		if err := c.w.Write(row); err != nil {
			return fmt.Errorf("write csv row %d: %w", i, err)
		}
	}

	c.w.Flush()
	return c.w.Error()
}

func joinActions(kinds []core.ActionKind) string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	return strings.Join(names, "; ")
}
