package sink

import (
	"context"
	"fmt"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/signalsfoundry/satellite-telemetry-sim/internal/driver"
	"github.com/signalsfoundry/satellite-telemetry-sim/model"
)

const (
	// DefaultMeasurement is the InfluxDB measurement frames are written to.
	DefaultMeasurement = "satellite_telemetry"
	// DefaultWriteTimeout bounds one point write when none is configured.
	DefaultWriteTimeout = 2 * time.Second
)

// PointWriter is the subset of api.WriteAPIBlocking the sink needs.
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// InfluxConfig locates an InfluxDB v2 bucket.
type InfluxConfig struct {
	URL         string
	Token       string
	Org         string
	Bucket      string
	Measurement string
	// WriteTimeout bounds each write; zero uses DefaultWriteTimeout.
	WriteTimeout time.Duration
}

// Influx writes one point per frame, tagged with session and event.
type Influx struct {
	client      influxdb2.Client
	writer      PointWriter
	measurement string
	timeout     time.Duration
}

// NewInflux connects a blocking write API for cfg.
func NewInflux(cfg InfluxConfig) *Influx {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	s := NewInfluxWriter(client.WriteAPIBlocking(cfg.Org, cfg.Bucket), cfg.Measurement, cfg.WriteTimeout)
	s.client = client
	return s
}

// NewInfluxWriter builds the sink on an existing writer.
func NewInfluxWriter(w PointWriter, measurement string, timeout time.Duration) *Influx {
	if measurement == "" {
		measurement = DefaultMeasurement
	}
	if timeout <= 0 {
		timeout = DefaultWriteTimeout
	}
	return &Influx{writer: w, measurement: measurement, timeout: timeout}
}

// Emit writes f as a point stamped with the frame's simulation time. A write
// that outlives the timeout fails with context.DeadlineExceeded.
func (s *Influx) Emit(ctx context.Context, f driver.Frame) error {
	wctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.writer.WritePoint(wctx, s.point(f)); err != nil {
		return fmt.Errorf("influx write: %w", err)
	}
	return nil
}

func (s *Influx) point(f driver.Frame) *write.Point {
	fields := make(map[string]interface{}, model.NumFields+2)
	for name, v := range f.Telemetry.Map() {
		fields[name] = v
	}
	fields["tick"] = f.Tick
	fields["actions"] = strings.Join(f.Actions, ";")

	return influxdb2.NewPoint(
		s.measurement,
		map[string]string{
			"session": f.Session,
			"event":   f.Event,
		},
		fields,
		f.Time,
	)
}

// Close releases the underlying client, if this sink created it.
func (s *Influx) Close() {
	if s != nil && s.client != nil {
		s.client.Close()
	}
}
