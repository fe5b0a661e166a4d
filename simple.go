package fetch

import (
	"context"
	"time"
)

// SimpleHTTPClient is a reduced facade over Downloader for fire-and-forget
// GET operations where only body bytes matter, such as fetching a robots
// policy file. It delegates entirely to the Downloader and adds no retry
// or limiting logic of its own, keeping a single source of truth for
// those policies.
type SimpleHTTPClient struct {
	d *Downloader
}

// NewSimpleHTTPClient creates a facade over d.
func NewSimpleHTTPClient(d *Downloader) *SimpleHTTPClient {
	return &SimpleHTTPClient{d: d}
}

// Get fetches the URL and returns the response body. Headers and status
// are discarded; failures surface with the downloader's usual error
// vocabulary.
func (c *SimpleHTTPClient) Get(ctx context.Context, rawURL string) ([]byte, error) {
	resp, err := c.d.Download(ctx, Request{URL: rawURL})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// GetWithTimeout is Get with a per-attempt timeout override.
func (c *SimpleHTTPClient) GetWithTimeout(ctx context.Context, rawURL string, timeout time.Duration) ([]byte, error) {
	resp, err := c.d.Download(ctx, Request{URL: rawURL, Timeout: timeout})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}
