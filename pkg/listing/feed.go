package listing

import (
	"bytes"
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/Adda-Baaj/taja-khobor/internal/domain"
	"github.com/Adda-Baaj/taja-khobor/internal/logger"
	"github.com/Adda-Baaj/taja-khobor/pkg/providers"
	"github.com/mmcdole/gofeed"
)

// Feed discovers thumbnails from RSS, Atom or JSON feeds. When the template
// carries {page} the feed is walked like a paginated listing.
type Feed struct {
	log logger.Logger
}

// NewFeed constructs the feed strategy.
func NewFeed(log logger.Logger) *Feed {
	return &Feed{log: logger.Ensure(log)}
}

func (s *Feed) Kind() string { return providers.ListingFeed }

func (s *Feed) Discover(ctx context.Context, p providers.Provider, f Fetcher) iter.Seq2[domain.Thumbnail, error] {
	return func(yield func(domain.Thumbnail, error) bool) {
		l := p.Listing
		next := pagedRequests(l, nil)
		if !hasPlaceholder(l.URLTemplate, "page") {
			next = func(pos int) (pageRequest, bool) {
				if pos > 0 {
					return pageRequest{}, false
				}
				return pageRequest{url: l.URLTemplate, index: l.FirstPage()}, true
			}
		}

		w := walker{
			fetch:     f,
			parse:     parseFeed,
			window:    pageWindow(p),
			tolerance: emptyTolerance(l),
			log:       s.log,
			logFields: map[string]any{"provider_id": p.ID},
		}
		w.run(ctx, next, yield)
	}
}

func parseFeed(body []byte, req pageRequest) ([]domain.Thumbnail, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	thumbs := make([]domain.Thumbnail, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		t := domain.Thumbnail{
			URL:       resolveURL(item.Link, req.url),
			Title:     collapse(item.Title),
			PageIndex: req.index,
		}
		switch {
		case item.PublishedParsed != nil:
			t.ApproximateDate = *item.PublishedParsed
		case item.UpdatedParsed != nil:
			t.ApproximateDate = *item.UpdatedParsed
		}
		thumbs = append(thumbs, t)
	}
	return thumbs, nil
}

func hasPlaceholder(tmpl, key string) bool {
	return strings.Contains(tmpl, "{"+key+"}")
}
