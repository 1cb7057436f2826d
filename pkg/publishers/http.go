package publishers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Adda-Baaj/taja-khobor/pkg/httpclient"
)

// httpPublisher delivers events as JSON to an HTTP endpoint.
type httpPublisher struct {
	id      string
	typ     string
	cfg     HTTPConfig
	client  httpclient.Client
	log     Logger
	headers map[string]string
}

func newHTTPPublisher(_ context.Context, cfg PublisherConfig, log Logger) (Publisher, error) {
	if cfg.HTTP == nil {
		return nil, fmt.Errorf("publisher %q missing http configuration", cfg.ID)
	}
	timeout := time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second
	return newHTTPPublisherWithClient(cfg, httpclient.NewRestyClient(timeout), log), nil
}

func newHTTPPublisherWithClient(cfg PublisherConfig, client httpclient.Client, log Logger) *httpPublisher {
	headers := map[string]string{"Content-Type": "application/json"}
	for k, v := range cfg.HTTP.Headers {
		headers[k] = v
	}
	return &httpPublisher{
		id:      cfg.ID,
		typ:     cfg.Type,
		cfg:     *cfg.HTTP,
		client:  client,
		log:     ensureLogger(log),
		headers: headers,
	}
}

func (p *httpPublisher) ID() string   { return p.id }
func (p *httpPublisher) Type() string { return p.typ }

// Publish sends the event; any non-2xx response is an error.
func (p *httpPublisher) Publish(ctx context.Context, evt Event) error {
	headers := make(map[string]string, len(p.headers)+1)
	for k, v := range p.headers {
		headers[k] = v
	}
	headers["X-Event-Type"] = evt.Type

	resp, err := p.client.Do(ctx, p.cfg.Method, p.cfg.URL, headers, evt)
	if err != nil {
		return fmt.Errorf("http publish: %w", err)
	}
	if !resp.IsSuccess() {
		snippet := strings.TrimSpace(resp.String())
		if len(snippet) > 256 {
			snippet = snippet[:256]
		}
		return fmt.Errorf("http publish: status %d body: %s", resp.StatusCode(), snippet)
	}

	p.log.DebugObj("http publisher delivered event", "publisher_http_delivery", map[string]any{
		"publisher_id": p.id,
		"event_type":   evt.Type,
		"status":       resp.StatusCode(),
	})
	return nil
}
