package listing

import (
	"context"
	"iter"
	"net/url"
	"strconv"

	"github.com/Adda-Baaj/taja-khobor/internal/domain"
	"github.com/Adda-Baaj/taja-khobor/internal/logger"
	"github.com/Adda-Baaj/taja-khobor/pkg/providers"
)

// Pagination walks numbered listing pages: {page} in the url template is
// replaced by first_page, first_page+1, and so on.
//
// The walk ends right after the first empty page only when max_pages is set
// and pages are requested one at a time. Without a page count one more empty
// page is fetched before stopping. With a window above one (concurrency or
// listing batch_size) the whole window holding the stop page is requested, so
// pages past it may be fetched and discarded.
type Pagination struct {
	log logger.Logger
}

// NewPagination constructs the pagination strategy.
func NewPagination(log logger.Logger) *Pagination {
	return &Pagination{log: logger.Ensure(log)}
}

func (s *Pagination) Kind() string { return providers.ListingPagination }

// Discover walks pages until max_pages is reached or the listing runs dry.
func (s *Pagination) Discover(ctx context.Context, p providers.Provider, f Fetcher) iter.Seq2[domain.Thumbnail, error] {
	return func(yield func(domain.Thumbnail, error) bool) {
		w := newPageWalker(p, f, s.log, map[string]any{"provider_id": p.ID})
		w.run(ctx, pagedRequests(p.Listing, nil), yield)
	}
}

// Category runs one paginated walk per configured category.
type Category struct {
	log logger.Logger
}

// NewCategory constructs the category strategy.
func NewCategory(log logger.Logger) *Category {
	return &Category{log: logger.Ensure(log)}
}

func (s *Category) Kind() string { return providers.ListingCategory }

// Discover walks each category in order. A thumbnail listed under several
// categories is yielded once.
func (s *Category) Discover(ctx context.Context, p providers.Provider, f Fetcher) iter.Seq2[domain.Thumbnail, error] {
	return func(yield func(domain.Thumbnail, error) bool) {
		once := dedupe(yield)
		for _, cat := range p.Listing.Categories {
			if ctx.Err() != nil {
				return
			}
			w := newPageWalker(p, f, s.log, map[string]any{"provider_id": p.ID, "category": cat})
			if !w.run(ctx, pagedRequests(p.Listing, map[string]string{"category": cat}), once) {
				return
			}
		}
	}
}

// Search runs one paginated walk per configured query.
type Search struct {
	log logger.Logger
}

// NewSearch constructs the search strategy.
func NewSearch(log logger.Logger) *Search {
	return &Search{log: logger.Ensure(log)}
}

func (s *Search) Kind() string { return providers.ListingSearch }

// Discover walks the result pages of every query; {query} is substituted
// query-escaped. A thumbnail matched by several queries is yielded once.
func (s *Search) Discover(ctx context.Context, p providers.Provider, f Fetcher) iter.Seq2[domain.Thumbnail, error] {
	return func(yield func(domain.Thumbnail, error) bool) {
		once := dedupe(yield)
		for _, q := range p.Listing.Queries {
			if ctx.Err() != nil {
				return
			}
			w := newPageWalker(p, f, s.log, map[string]any{"provider_id": p.ID, "query": q})
			if !w.run(ctx, pagedRequests(p.Listing, map[string]string{"query": url.QueryEscape(q)}), once) {
				return
			}
		}
	}
}

// newPageWalker builds a walker over html listing pages for p.
func newPageWalker(p providers.Provider, f Fetcher, log logger.Logger, fields map[string]any) walker {
	l := p.Listing
	return walker{
		fetch: f,
		parse: func(body []byte, req pageRequest) ([]domain.Thumbnail, error) {
			return ParseThumbnails(body, req.url, l, req.index)
		},
		window:    pageWindow(p),
		tolerance: emptyTolerance(l),
		log:       log,
		logFields: fields,
	}
}

// pagedRequests maps walk positions to page urls, honouring max_pages.
func pagedRequests(l providers.Listing, vars map[string]string) func(pos int) (pageRequest, bool) {
	first := l.FirstPage()
	return func(pos int) (pageRequest, bool) {
		if l.MaxPages > 0 && pos >= l.MaxPages {
			return pageRequest{}, false
		}
		idx := first + pos
		all := map[string]string{"page": strconv.Itoa(idx)}
		for k, v := range vars {
			all[k] = v
		}
		return pageRequest{url: expandTemplate(l.URLTemplate, all), index: idx}, true
	}
}

// pageWindow is the number of listing pages requested together.
func pageWindow(p providers.Provider) int {
	if p.Listing.BatchSize > 0 {
		return p.Listing.BatchSize
	}
	return max(p.Concurrency, 1)
}

// emptyTolerance is the number of consecutive empty pages that ends a walk.
// With a known page count the first empty page is final; otherwise one
// empty page is tolerated so a transient gap does not end the walk early.
func emptyTolerance(l providers.Listing) int {
	switch {
	case l.EmptyPageTolerance > 0:
		return l.EmptyPageTolerance
	case l.MaxPages > 0:
		return 1
	default:
		return 2
	}
}

// dedupe drops thumbnails whose url was already yielded. Errors and
// url-less thumbnails pass through.
func dedupe(yield func(domain.Thumbnail, error) bool) func(domain.Thumbnail, error) bool {
	seen := make(map[string]struct{})
	return func(t domain.Thumbnail, err error) bool {
		if err == nil && t.URL != "" {
			if _, ok := seen[t.URL]; ok {
				return true
			}
			seen[t.URL] = struct{}{}
		}
		return yield(t, err)
	}
}
