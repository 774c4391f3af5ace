// internal/common/http/client.go
package http

import (
	"context"
	"net/http"
	"time"
)

// Doer is satisfied by *http.Client and by the Telegram library's HTTPClient.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is an outbound HTTP client with a fixed per-request timeout.
type Client struct {
	httpClient *http.Client
}

func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// NewClientWithTransport builds a client that sends through rt.
func NewClientWithTransport(timeout time.Duration, rt http.RoundTripper) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: rt,
		},
	}
}

func (c *Client) Timeout() time.Duration {
	return c.httpClient.Timeout
}

func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.httpClient.Do(req)
}

func (c *Client) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)
	return c.httpClient.Do(req)
}

// Bind returns a Doer that attaches ctx to every request it sends. It lets
// libraries without context support honor request cancellation.
func (c *Client) Bind(ctx context.Context) Doer {
	return &boundClient{ctx: ctx, client: c}
}

type boundClient struct {
	ctx    context.Context
	client *Client
}

func (b *boundClient) Do(req *http.Request) (*http.Response, error) {
	return b.client.DoWithContext(b.ctx, req)
}
