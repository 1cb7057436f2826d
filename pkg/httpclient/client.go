// Package httpclient wraps resty for fetchers and publishers.
package httpclient

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client performs HTTP requests on behalf of fetchers and publishers.
type Client interface {
	Get(ctx context.Context, url string, headers map[string]string) (*resty.Response, error)
	Do(ctx context.Context, method, url string, headers map[string]string, body any) (*resty.Response, error)
}

type restyClient struct {
	client *resty.Client
}

// NewRestyClient builds a Client with the given request timeout.
func NewRestyClient(timeout time.Duration) Client {
	c := resty.New().
		SetTimeout(timeout).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))
	return &restyClient{client: c}
}

// Get issues a GET request. Non-2xx responses are returned without error.
func (c *restyClient) Get(ctx context.Context, url string, headers map[string]string) (*resty.Response, error) {
	return c.Do(ctx, resty.MethodGet, url, headers, nil)
}

// Do issues a request with the given method; body, when set, is encoded as JSON.
func (c *restyClient) Do(ctx context.Context, method, url string, headers map[string]string, body any) (*resty.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	req := c.client.R().SetContext(ctx)
	if len(headers) > 0 {
		req.SetHeaders(headers)
	}
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, url)
	if err != nil {
		return resp, fmt.Errorf("%s %s: %w", method, url, err)
	}
	return resp, nil
}
