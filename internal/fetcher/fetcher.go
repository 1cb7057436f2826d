// Package fetcher retrieves page bodies for a site under its backpressure
// policy: a cap on in-flight requests, spacing between request starts and a
// bounded retry policy for transient failures.
package fetcher

import (
	"context"
	"fmt"
	"time"

	"github.com/Adda-Baaj/taja-khobor/internal/domain"
	"github.com/Adda-Baaj/taja-khobor/internal/logger"
	"github.com/Adda-Baaj/taja-khobor/internal/session"
	"github.com/Adda-Baaj/taja-khobor/pkg/httpclient"
	"github.com/Adda-Baaj/taja-khobor/pkg/providers"
)

const maxBodyBytes = 8 << 20 // 8 MiB

// Fetcher returns the raw body of a page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
	// Close releases client resources; the browser client saves its session here.
	Close() error
	// Kind returns the client kind ("network" or "browser").
	Kind() string
}

// Options are engine-level settings shared by every site's client.
type Options struct {
	Timeout   time.Duration
	UserAgent string
	Retry     RetryPolicy

	// HTTP overrides the network transport; nil builds a resty client.
	HTTP httpclient.Client

	// Browser settings, used when the descriptor selects the browser client.
	Headless    bool
	BrowserWait time.Duration
	Sessions    *session.Store

	Log logger.Logger
}

// New selects the client named by the descriptor. The selection is static:
// there is no runtime fallback from one client to the other.
func New(ctx context.Context, p providers.Provider, opts Options) (Fetcher, error) {
	switch p.ClientKind {
	case providers.ClientNetwork, "":
		return NewNetwork(p, opts), nil
	case providers.ClientBrowser:
		return NewBrowser(ctx, p, opts)
	default:
		return nil, fmt.Errorf("%w: provider %q has unknown client_kind %q", domain.ErrFatalConfig, p.ID, p.ClientKind)
	}
}
