package definitions

import "time"

// Config configures the definitions service client and loader.
type Config struct {
	// Endpoint is the definitions service URL.
	Endpoint string `yaml:"endpoint"`

	// Timeout is the per-request timeout. Defaults to 10s.
	Timeout time.Duration `yaml:"timeout"`

	// RetryInterval is the fixed delay between fetch attempts.
	// Defaults to 5s.
	RetryInterval time.Duration `yaml:"retry_interval"`
}

// ApplyDefaults applies default values to unset fields.
func (c *Config) ApplyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}

	if c.RetryInterval <= 0 {
		c.RetryInterval = 5 * time.Second
	}
}
