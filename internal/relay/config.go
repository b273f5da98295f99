package relay

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/influxpipe/influxpipe/internal/definitions"
	"github.com/influxpipe/influxpipe/internal/dispatch"
	"github.com/influxpipe/influxpipe/internal/ingest"
	"github.com/influxpipe/influxpipe/internal/pipeline"
	"github.com/influxpipe/influxpipe/internal/telemetry"
)

// Config is the top-level configuration for the influxpipe daemon.
type Config struct {
	// LogLevel sets the logging verbosity (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`

	// Definitions configures the metric definitions service.
	Definitions definitions.Config `yaml:"definitions"`

	// Influx configures the InfluxDB write target. An empty url or
	// database runs the pipeline disabled.
	Influx dispatch.Config `yaml:"influx"`

	// Pipeline configures grouping table housekeeping.
	Pipeline pipeline.Config `yaml:"pipeline"`

	// Ingest configures the sample ingestion HTTP server.
	Ingest ingest.Config `yaml:"ingest"`

	// Health configures the Prometheus health metrics server.
	Health telemetry.Config `yaml:"health"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Influx: dispatch.Config{
			Database: "openmotics",
		},
		Ingest: ingest.Config{
			Addr: ":8089",
		},
		Health: telemetry.Config{
			Addr: ":9090",
		},
	}
}

// LoadConfig reads and parses a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	cfg := DefaultConfig()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Definitions.Endpoint == "" {
		return fmt.Errorf("definitions.endpoint is required")
	}

	if err := c.Influx.Validate(); err != nil {
		return fmt.Errorf("influx: %w", err)
	}

	return nil
}
