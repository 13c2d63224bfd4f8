package bird

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultTimeout = 10 * time.Second

	// Well above any real BIRD status document.
	maxResponseBytes = 16 * 1024 * 1024
)

// Fetcher retrieves the session table from a single status endpoint.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (SessionTable, error)
}

// ClientConfig holds configuration for Client.
type ClientConfig struct {
	RequestTimeout time.Duration
}

// Client fetches BIRD status documents over HTTP.
type Client struct {
	http *http.Client
}

// NewClient constructs a Client with the configured per-request timeout.
func NewClient(cfg ClientConfig) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultTimeout
	}
	return &Client{
		http: &http.Client{Timeout: cfg.RequestTimeout},
	}
}

// Fetch issues a single GET against the endpoint URL and decodes the
// session table. Any failure (unreachable endpoint, non-2xx status,
// undecodable body) returns an error; a partial table is never returned.
func (c *Client) Fetch(ctx context.Context, url string) (SessionTable, error) {
	if url == "" {
		return nil, fmt.Errorf("endpoint URL is not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var status StatusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("decode status document: %w", err)
	}

	return status.Protocols, nil
}
