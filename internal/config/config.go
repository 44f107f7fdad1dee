// Package config loads satsim settings from defaults, a YAML file and
// SATSIM_* environment variables, then validates the result.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the full satsim configuration.
type Config struct {
	Log        LogConfig        `yaml:"log"`
	Server     ServerConfig     `yaml:"server"`
	Simulation SimulationConfig `yaml:"simulation"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Influx     InfluxConfig     `yaml:"influx"`
	Dataset    DatasetConfig    `yaml:"dataset"`
	Tracing    TracingConfig    `yaml:"tracing"`
}

// LogConfig mirrors logging.Config.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json text"`
}

// ServerConfig controls the HTTP and websocket surface.
type ServerConfig struct {
	Addr         string        `yaml:"addr" validate:"required"`
	Metrics      bool          `yaml:"metrics"`
	CORSOrigins  []string      `yaml:"cors_origins"`
	MaxSessions  int           `yaml:"max_sessions" validate:"gte=0"`
	SessionRate  float64       `yaml:"session_rate" validate:"gte=0"`
	SessionBurst int           `yaml:"session_burst" validate:"gte=0"`
	WriteTimeout time.Duration `yaml:"write_timeout" validate:"gt=0"`
}

// SimulationConfig controls the tick loop.
type SimulationConfig struct {
	Tick              time.Duration `yaml:"tick" validate:"gt=0"`
	Mode              string        `yaml:"mode" validate:"oneof=realtime accelerated"`
	ClassifierTimeout time.Duration `yaml:"classifier_timeout" validate:"gt=0"`
	MaxTicks          int           `yaml:"max_ticks" validate:"gte=0"`
	Seed              uint64        `yaml:"seed"`
	Envelope          bool          `yaml:"envelope"`
	ConsoleFormat     string        `yaml:"console_format" validate:"oneof=flat envelope text"`
}

// ClassifierConfig selects where action recommendations come from.
type ClassifierConfig struct {
	Mode string `yaml:"mode" validate:"oneof=none rules remote"`
	Addr string `yaml:"addr" validate:"required_if=Mode remote"`
}

// InfluxConfig enables the optional InfluxDB frame sink.
type InfluxConfig struct {
	Enabled     bool   `yaml:"enabled"`
	URL         string `yaml:"url" validate:"required_if=Enabled true,omitempty,url"`
	Token       string `yaml:"token"`
	Org         string `yaml:"org" validate:"required_if=Enabled true"`
	Bucket      string `yaml:"bucket" validate:"required_if=Enabled true"`
	Measurement string `yaml:"measurement"`
	// WriteTimeout bounds each point write.
	WriteTimeout time.Duration `yaml:"write_timeout" validate:"gt=0"`
}

// DatasetConfig controls synthetic dataset export.
type DatasetConfig struct {
	Rows     int    `yaml:"rows" validate:"gt=0"`
	SpanDays int    `yaml:"span_days" validate:"gt=0"`
	Seed     uint64 `yaml:"seed"`
	Shards   int    `yaml:"shards" validate:"gte=1,lte=64"`
	Output   string `yaml:"output" validate:"required"`
	Format   string `yaml:"format" validate:"oneof=csv sqlite"`
}

// TracingConfig controls the OpenTelemetry tracer provider. Disabled tracing
// installs a no-op provider.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter" validate:"oneof=stdout otlp"`
	Service     string  `yaml:"service" validate:"required"`
	SampleRatio float64 `yaml:"sample_ratio" validate:"gte=0,lte=1"`
	// Endpoint is the OTLP gRPC collector; empty means localhost:4317.
	Endpoint string `yaml:"endpoint" validate:"omitempty,hostname_port"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Server: ServerConfig{
			Addr:         ":8080",
			Metrics:      true,
			CORSOrigins:  []string{"*"},
			MaxSessions:  64,
			SessionRate:  5,
			SessionBurst: 10,
			WriteTimeout: 5 * time.Second,
		},
		Simulation: SimulationConfig{
			Tick:              time.Second,
			Mode:              "realtime",
			ClassifierTimeout: 250 * time.Millisecond,
			ConsoleFormat:     "flat",
		},
		Classifier: ClassifierConfig{Mode: "rules"},
		Influx: InfluxConfig{
			Measurement:  "satellite_telemetry",
			WriteTimeout: 2 * time.Second,
		},
		Dataset: DatasetConfig{
			Rows:     10000,
			SpanDays: 365,
			Seed:     42,
			Shards:   4,
			Output:   "satellite_dataset.csv",
			Format:   "csv",
		},
		Tracing: TracingConfig{
			Exporter:    "stdout",
			Service:     "satsim",
			SampleRatio: 1,
		},
	}
}

// Load reads a YAML file on top of Default. Unknown keys are rejected. An
// empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config %s: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from SATSIM_* variables found by lookup
// (os.LookupEnv in production).
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	var errs []error
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	unsigned := func(key string, dst *uint64) {
		if v, ok := lookup(key); ok {
			n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := lookup(key); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("SATSIM_LOG_LEVEL", &c.Log.Level)
	str("SATSIM_LOG_FORMAT", &c.Log.Format)

	str("SATSIM_SERVER_ADDR", &c.Server.Addr)
	boolean("SATSIM_SERVER_METRICS", &c.Server.Metrics)
	integer("SATSIM_SERVER_MAX_SESSIONS", &c.Server.MaxSessions)
	dur("SATSIM_SERVER_WRITE_TIMEOUT", &c.Server.WriteTimeout)
	if v, ok := lookup("SATSIM_SERVER_CORS_ORIGINS"); ok {
		c.Server.CORSOrigins = splitList(v)
	}

	dur("SATSIM_SIM_TICK", &c.Simulation.Tick)
	str("SATSIM_SIM_MODE", &c.Simulation.Mode)
	dur("SATSIM_SIM_CLASSIFIER_TIMEOUT", &c.Simulation.ClassifierTimeout)
	integer("SATSIM_SIM_MAX_TICKS", &c.Simulation.MaxTicks)
	unsigned("SATSIM_SIM_SEED", &c.Simulation.Seed)
	boolean("SATSIM_SIM_ENVELOPE", &c.Simulation.Envelope)
	str("SATSIM_SIM_CONSOLE_FORMAT", &c.Simulation.ConsoleFormat)

	str("SATSIM_CLASSIFIER_MODE", &c.Classifier.Mode)
	str("SATSIM_CLASSIFIER_ADDR", &c.Classifier.Addr)

	boolean("SATSIM_INFLUX_ENABLED", &c.Influx.Enabled)
	str("SATSIM_INFLUX_URL", &c.Influx.URL)
	str("SATSIM_INFLUX_TOKEN", &c.Influx.Token)
	str("SATSIM_INFLUX_ORG", &c.Influx.Org)
	str("SATSIM_INFLUX_BUCKET", &c.Influx.Bucket)
	str("SATSIM_INFLUX_MEASUREMENT", &c.Influx.Measurement)
	dur("SATSIM_INFLUX_WRITE_TIMEOUT", &c.Influx.WriteTimeout)

	integer("SATSIM_DATASET_ROWS", &c.Dataset.Rows)
	integer("SATSIM_DATASET_SPAN_DAYS", &c.Dataset.SpanDays)
	unsigned("SATSIM_DATASET_SEED", &c.Dataset.Seed)
	integer("SATSIM_DATASET_SHARDS", &c.Dataset.Shards)
	str("SATSIM_DATASET_OUTPUT", &c.Dataset.Output)
	str("SATSIM_DATASET_FORMAT", &c.Dataset.Format)

	boolean("SATSIM_TRACING_ENABLED", &c.Tracing.Enabled)
	str("SATSIM_TRACING_EXPORTER", &c.Tracing.Exporter)
	str("SATSIM_TRACING_SERVICE", &c.Tracing.Service)
	float("SATSIM_TRACING_SAMPLE_RATIO", &c.Tracing.SampleRatio)
	str("SATSIM_TRACING_ENDPOINT", &c.Tracing.Endpoint)

	return errors.Join(errs...)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every section and reports all failing fields.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
