package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/signalsfoundry/satellite-telemetry-sim/internal/driver"
	"github.com/signalsfoundry/satellite-telemetry-sim/model"
)

// Console output formats.
const (
	FormatFlat     = "flat"     // one flat telemetry object per line
	FormatEnvelope = "envelope" // one full frame object per line
	FormatText     = "text"     // human readable line
)

// Console writes frames to an io.Writer, one line per tick.
type Console struct {
	mu     sync.Mutex
	w      io.Writer
	format string
}

// NewConsole returns a console sink. Unknown formats fall back to flat.
func NewConsole(w io.Writer, format string) *Console {
	switch format {
	case FormatEnvelope, FormatText:
	default:
		format = FormatFlat
	}
	return &Console{w: w, format: format}
}

// Emit writes f.
func (c *Console) Emit(_ context.Context, f driver.Frame) error {
	var line []byte
	switch c.format {
	case FormatText:
		line = []byte(textLine(f))
	case FormatEnvelope:
		b, err := json.Marshal(f)
		if err != nil {
			return fmt.Errorf("encode frame: %w", err)
		}
		line = b
	default:
		b, err := json.Marshal(f.Telemetry)
		if err != nil {
			return fmt.Errorf("encode telemetry: %w", err)
		}
		line = b
	}
	line = append(line, '\n')

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.w.Write(line); err != nil {
		return fmt.Errorf("console write: %w", err)
	}
	return nil
}

func textLine(f driver.Frame) string {
	var b strings.Builder
	fmt.Fprintf(&b, "tick=%d event=%q", f.Tick, f.Event)
	if len(f.Actions) > 0 {
		fmt.Fprintf(&b, " actions=%q", strings.Join(f.Actions, "; "))
	}
	for _, field := range model.Fields() {
		fmt.Fprintf(&b, " %s=%.2f", field, f.Telemetry.Get(field))
	}
	return b.String()
}
