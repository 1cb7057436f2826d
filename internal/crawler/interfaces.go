package crawler

import (
	"context"
	"time"

	"github.com/Adda-Baaj/taja-khobor/internal/domain"
	"github.com/Adda-Baaj/taja-khobor/internal/fetcher"
	"github.com/Adda-Baaj/taja-khobor/pkg/providers"
	"github.com/Adda-Baaj/taja-khobor/pkg/publishers"
)

// ArticleExtractor reads article fields from a fetched page.
type ArticleExtractor interface {
	Extract(body []byte, p providers.Provider, th domain.Thumbnail, retrievedAt time.Time) (domain.RawArticle, error)
}

// EventPublisher publishes harvester events downstream.
type EventPublisher interface {
	Publish(ctx context.Context, evt publishers.Event) error
}

// FetcherFactory builds the fetch client a site's descriptor selects.
type FetcherFactory func(ctx context.Context, p providers.Provider) (fetcher.Fetcher, error)
