package definitions

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Response is the definitions service payload.
type Response struct {
	Success     bool     `json:"success"`
	Definitions Snapshot `json:"definitions"`
}

// Client defines the interface for fetching metric definitions.
type Client interface {
	// FetchDefinitions retrieves the full definitions snapshot.
	FetchDefinitions(ctx context.Context) (*Response, error)
}

type client struct {
	endpoint string
	http     *http.Client
}

// NewClient creates a definitions service client.
func NewClient(cfg Config) Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &client{
		endpoint: cfg.Endpoint,
		http: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *client) FetchDefinitions(ctx context.Context) (*Response, error) {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, c.endpoint, nil,
	)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching definitions: %w", err)
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)

		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var result Response
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding definitions: %w", err)
	}

	return &result, nil
}
