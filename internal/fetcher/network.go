package fetcher

import (
	"context"
	"net/http"
	"time"

	"github.com/Adda-Baaj/taja-khobor/internal/logger"
	"github.com/Adda-Baaj/taja-khobor/pkg/httpclient"
	"github.com/Adda-Baaj/taja-khobor/pkg/providers"
)

const defaultTimeout = 15 * time.Second

// Network fetches pages over plain HTTP through resty.
type Network struct {
	providerID string
	client     httpclient.Client
	headers    map[string]string
	throttle   *Throttle
	retry      RetryPolicy
	log        logger.Logger
}

// NewNetwork builds the network client for a descriptor.
func NewNetwork(p providers.Provider, opts Options) *Network {
	client := opts.HTTP
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = httpclient.NewRestyClient(timeout)
	}

	headers := providers.Headers(p)
	if opts.UserAgent != "" {
		if headers == nil {
			headers = make(map[string]string, 1)
		}
		if _, ok := headers["User-Agent"]; !ok {
			headers["User-Agent"] = opts.UserAgent
		}
	}

	return &Network{
		providerID: p.ID,
		client:     client,
		headers:    headers,
		throttle:   NewThrottle(p.Concurrency, p.RateLimitDelay()),
		retry:      opts.Retry,
		log:        logger.Ensure(opts.Log),
	}
}

// Kind returns the client kind.
func (n *Network) Kind() string { return providers.ClientNetwork }

// Close is a no-op for the network client.
func (n *Network) Close() error { return nil }

// Fetch retrieves url, retrying transient failures per the retry policy.
func (n *Network) Fetch(ctx context.Context, url string) ([]byte, error) {
	return n.retry.Do(ctx, func(ctx context.Context) ([]byte, *Error) {
		return n.once(ctx, url)
	})
}

func (n *Network) once(ctx context.Context, url string) ([]byte, *Error) {
	release, err := n.throttle.Acquire(ctx)
	if err != nil {
		return nil, classify(ctx, url, err)
	}
	defer release()

	n.log.DebugObj("fetching page", "fetch_start", map[string]any{
		"provider_id": n.providerID,
		"url":         url,
	})

	resp, err := n.client.Get(ctx, url, n.headers)
	if err != nil {
		ferr := classify(ctx, url, err)
		n.log.DebugObj("page fetch failed", "fetch_error", map[string]any{
			"provider_id": n.providerID,
			"url":         url,
			"kind":        string(ferr.Kind),
			"error":       err.Error(),
		})
		return nil, ferr
	}

	if status := resp.StatusCode(); status < http.StatusOK || status >= http.StatusMultipleChoices {
		n.log.DebugObj("page returned non-2xx status", "fetch_status", map[string]any{
			"provider_id": n.providerID,
			"url":         url,
			"status":      status,
			"body":        responseSnippet(resp.Body()),
		})
		return nil, &Error{Kind: KindHTTP, Status: status, URL: url}
	}

	body := resp.Body()
	if len(body) > maxBodyBytes {
		n.log.InfoObj("html body truncated", "truncation", map[string]any{
			"provider_id": n.providerID,
			"url":         url,
			"original":    len(body),
			"kept":        maxBodyBytes,
		})
		body = body[:maxBodyBytes]
	}
	return body, nil
}
