package dispatch

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Compression type constants.
const (
	CompressionNone = "none"
	CompressionGzip = "gzip"
)

// Config configures the batch sender. An empty URL or database leaves
// the pipeline disabled: ingestion silently no-ops and nothing is
// posted. That is a valid state, not a validation error.
type Config struct {
	// URL is the InfluxDB HTTP endpoint, e.g. http://1.2.3.4:8086.
	URL string `yaml:"url"`

	// Username for optional basic authentication.
	Username string `yaml:"username"`

	// Password for optional basic authentication.
	Password string `yaml:"password"`

	// Database is the InfluxDB database to write to.
	Database string `yaml:"database"`

	// BatchSize is the maximum number of entries per write request.
	// Defaults to 10.
	BatchSize int `yaml:"batch_size"`

	// Compression for the request body: none or gzip.
	// Defaults to none.
	Compression string `yaml:"compression"`

	// Timeout is the HTTP client timeout for write requests.
	// Defaults to 30s.
	Timeout time.Duration `yaml:"timeout"`
}

// Enabled reports whether dispatch is configured.
func (c Config) Enabled() bool {
	return c.URL != "" && c.Database != ""
}

// WriteEndpoint returns the write URL for the configured database.
func (c Config) WriteEndpoint() string {
	return fmt.Sprintf("%s/write?db=%s", c.URL, url.QueryEscape(c.Database))
}

// ApplyDefaults applies default values to unset fields.
func (c *Config) ApplyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}

	if c.Compression == "" {
		c.Compression = CompressionNone
	}

	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.BatchSize < 0 {
		return errors.New("batch_size must not be negative")
	}

	switch c.Compression {
	case "", CompressionNone, CompressionGzip:
		// Valid.
	default:
		return errors.New("invalid compression type: " + c.Compression)
	}

	return nil
}
