// Package listing discovers article thumbnails from a site's index pages.
//
// Strategies form a closed set of tagged variants (pagination, archive,
// category, search, sitemap, feed) behind one interface. Discover returns a
// lazy, finite sequence; ranging over it again starts a fresh walk.
package listing

import (
	"context"
	"fmt"
	"iter"

	"github.com/Adda-Baaj/taja-khobor/internal/domain"
	"github.com/Adda-Baaj/taja-khobor/pkg/providers"
)

// Fetcher is the page retrieval contract strategies depend on.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Strategy produces thumbnails for a site.
type Strategy interface {
	// Kind returns the listing kind this strategy serves.
	Kind() string
	// Discover walks the site's listing pages. Page failures are yielded as
	// *PageError values and never end the sequence on their own.
	Discover(ctx context.Context, p providers.Provider, f Fetcher) iter.Seq2[domain.Thumbnail, error]
}

// PageError reports a listing page that could not be fetched or parsed.
type PageError struct {
	URL       string
	PageIndex int
	Err       error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("listing page %d (%s): %v", e.PageIndex, e.URL, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }
