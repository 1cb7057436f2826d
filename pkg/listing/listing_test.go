package listing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Adda-Baaj/taja-khobor/internal/domain"
	"github.com/Adda-Baaj/taja-khobor/internal/fetcher"
	"github.com/Adda-Baaj/taja-khobor/internal/logger"
	"github.com/Adda-Baaj/taja-khobor/pkg/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	mu       sync.Mutex
	pages    map[string]string
	fallback func(url string) (string, bool)
	failures map[string]int
	requests []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{pages: map[string]string{}, failures: map[string]int{}}
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, url)
	if status, ok := f.failures[url]; ok {
		return nil, &fetcher.Error{Kind: fetcher.KindHTTP, Status: status, URL: url}
	}
	if body, ok := f.pages[url]; ok {
		return []byte(body), nil
	}
	if f.fallback != nil {
		if body, ok := f.fallback(url); ok {
			return []byte(body), nil
		}
	}
	return nil, &fetcher.Error{Kind: fetcher.KindHTTP, Status: http.StatusNotFound, URL: url}
}

func (f *fakeFetcher) Requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

func listPage(paths ...string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, p := range paths {
		fmt.Fprintf(&b, `<article class="story"><a href="%s">Story %s</a><time datetime="2024-03-01T10:00:00Z">1 Mar</time></article>`, p, p)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func pagedProvider(maxPages int) providers.Provider {
	return providers.Provider{
		ID:          "example",
		BaseURL:     "https://example.com",
		Concurrency: 1,
		Listing: providers.Listing{
			Kind:        providers.ListingPagination,
			URLTemplate: "https://example.com/news?page={page}",
			MaxPages:    maxPages,
			Item:        "article.story",
		},
	}
}

func collect(t *testing.T, seq func(func(domain.Thumbnail, error) bool)) ([]domain.Thumbnail, []error) {
	t.Helper()
	var thumbs []domain.Thumbnail
	var errs []error
	seq(func(th domain.Thumbnail, err error) bool {
		if err != nil {
			errs = append(errs, err)
			return true
		}
		thumbs = append(thumbs, th)
		return true
	})
	return thumbs, errs
}

func urls(thumbs []domain.Thumbnail) []string {
	out := make([]string, 0, len(thumbs))
	for _, th := range thumbs {
		out = append(out, th.URL)
	}
	return out
}

func TestPaginationStopsAtFirstEmptyPageWhenMaxPagesKnown(t *testing.T) {
	f := newFakeFetcher()
	f.pages["https://example.com/news?page=1"] = listPage("/a", "/b")
	f.pages["https://example.com/news?page=2"] = listPage("/c", "/d")
	f.pages["https://example.com/news?page=3"] = listPage("/e", "/f")
	f.pages["https://example.com/news?page=4"] = listPage()

	thumbs, errs := collect(t, NewPagination(logger.NopLogger{}).Discover(context.Background(), pagedProvider(10), f))
	require.Empty(t, errs)
	assert.Len(t, thumbs, 6)
	assert.Equal(t, "https://example.com/a", thumbs[0].URL)
	assert.Equal(t, "Story /a", thumbs[0].Title)
	assert.Equal(t, 1, thumbs[0].PageIndex)
	assert.Equal(t, 3, thumbs[5].PageIndex)

	reqs := f.Requests()
	assert.Len(t, reqs, 4)
	assert.NotContains(t, reqs, "https://example.com/news?page=5")
}

func TestPaginationHonoursMaxPages(t *testing.T) {
	f := newFakeFetcher()
	f.fallback = func(url string) (string, bool) { return listPage(url[len(url)-1:]), true }

	thumbs, _ := collect(t, NewPagination(nil).Discover(context.Background(), pagedProvider(3), f))
	assert.Len(t, thumbs, 3)
	assert.Len(t, f.Requests(), 3)
}

func TestPaginationToleratesOneGapWithoutMaxPages(t *testing.T) {
	f := newFakeFetcher()
	f.pages["https://example.com/news?page=1"] = listPage("/a")
	f.pages["https://example.com/news?page=2"] = listPage()
	f.pages["https://example.com/news?page=3"] = listPage("/c")

	thumbs, errs := collect(t, NewPagination(nil).Discover(context.Background(), pagedProvider(0), f))
	require.Empty(t, errs)
	assert.Equal(t, []string{"https://example.com/a", "https://example.com/c"}, urls(thumbs))
	// pages 4 and 5 are missing and end the walk
	assert.Len(t, f.Requests(), 5)
}

func TestPaginationStopsWhenSiteRepeatsLastPage(t *testing.T) {
	f := newFakeFetcher()
	f.pages["https://example.com/news?page=1"] = listPage("/a", "/b")
	f.fallback = func(string) (string, bool) { return listPage("/c", "/d"), true }

	thumbs, errs := collect(t, NewPagination(nil).Discover(context.Background(), pagedProvider(0), f))
	require.Empty(t, errs)
	assert.Len(t, thumbs, 4)
	assert.Len(t, f.Requests(), 4)
}

func TestPaginationReportsFailedPagesAndContinues(t *testing.T) {
	f := newFakeFetcher()
	f.pages["https://example.com/news?page=1"] = listPage("/a")
	f.failures["https://example.com/news?page=2"] = http.StatusInternalServerError
	f.pages["https://example.com/news?page=3"] = listPage("/c")

	p := pagedProvider(0)
	thumbs, errs := collect(t, NewPagination(nil).Discover(context.Background(), p, f))
	assert.Equal(t, []string{"https://example.com/a", "https://example.com/c"}, urls(thumbs))
	require.Len(t, errs, 1)

	var pe *PageError
	require.True(t, errors.As(errs[0], &pe))
	assert.Equal(t, 2, pe.PageIndex)
	assert.Equal(t, http.StatusInternalServerError, fetcher.StatusOf(pe))
}

func TestPaginationWindowFetchesPagesConcurrently(t *testing.T) {
	f := newFakeFetcher()
	for i := 1; i <= 5; i++ {
		f.pages[fmt.Sprintf("https://example.com/news?page=%d", i)] = listPage(fmt.Sprintf("/p%d", i))
	}
	p := pagedProvider(6)
	p.Concurrency = 3

	thumbs, errs := collect(t, NewPagination(nil).Discover(context.Background(), p, f))
	require.Empty(t, errs)
	// results are yielded in page order regardless of completion order
	assert.Equal(t, []string{
		"https://example.com/p1", "https://example.com/p2", "https://example.com/p3",
		"https://example.com/p4", "https://example.com/p5",
	}, urls(thumbs))
	assert.Len(t, f.Requests(), 6)
}

func TestPaginationRequestsPastStopPage(t *testing.T) {
	tests := []struct {
		name        string
		maxPages    int
		concurrency int
		want        int
	}{
		{name: "known count serial", maxPages: 10, concurrency: 1, want: 4},
		{name: "unknown count serial", maxPages: 0, concurrency: 1, want: 5},
		{name: "known count windowed", maxPages: 10, concurrency: 3, want: 6},
		{name: "unknown count windowed", maxPages: 0, concurrency: 3, want: 6},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFakeFetcher()
			for i := 1; i <= 3; i++ {
				f.pages[fmt.Sprintf("https://example.com/news?page=%d", i)] = listPage(fmt.Sprintf("/p%d", i))
			}
			p := pagedProvider(tc.maxPages)
			p.Concurrency = tc.concurrency

			thumbs, errs := collect(t, NewPagination(nil).Discover(context.Background(), p, f))
			require.Empty(t, errs)
			assert.Len(t, thumbs, 3)
			assert.Len(t, f.Requests(), tc.want)
		})
	}
}

func TestDiscoverStopsWhenConsumerBreaks(t *testing.T) {
	f := newFakeFetcher()
	f.fallback = func(url string) (string, bool) { return listPage("/x" + url[len(url)-1:]), true }

	n := 0
	for _, err := range NewPagination(nil).Discover(context.Background(), pagedProvider(0), f) {
		require.NoError(t, err)
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
	assert.Len(t, f.Requests(), 2)
}

func TestDiscoverStopsOnCancel(t *testing.T) {
	f := newFakeFetcher()
	f.fallback = func(url string) (string, bool) { return listPage("/x" + url[len(url)-1:]), true }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	thumbs, errs := collect(t, NewPagination(nil).Discover(ctx, pagedProvider(0), f))
	assert.Empty(t, thumbs)
	assert.Empty(t, errs)
}

func TestCategoryDedupesAcrossCategories(t *testing.T) {
	f := newFakeFetcher()
	f.pages["https://example.com/world/1"] = listPage("/a", "/b")
	f.pages["https://example.com/sport/1"] = listPage("/b", "/c")

	p := pagedProvider(1)
	p.Listing.Kind = providers.ListingCategory
	p.Listing.URLTemplate = "https://example.com/{category}/{page}"
	p.Listing.Categories = []string{"world", "sport"}

	thumbs, errs := collect(t, NewCategory(nil).Discover(context.Background(), p, f))
	require.Empty(t, errs)
	assert.Equal(t, []string{"https://example.com/a", "https://example.com/b", "https://example.com/c"}, urls(thumbs))
}

func TestSearchEscapesQueries(t *testing.T) {
	f := newFakeFetcher()
	f.pages["https://example.com/search?q=climate+change&p=1"] = listPage("/a")

	p := pagedProvider(1)
	p.Listing.Kind = providers.ListingSearch
	p.Listing.URLTemplate = "https://example.com/search?q={query}&p={page}"
	p.Listing.Queries = []string{"climate change"}

	thumbs, errs := collect(t, NewSearch(nil).Discover(context.Background(), p, f))
	require.Empty(t, errs)
	assert.Equal(t, []string{"https://example.com/a"}, urls(thumbs))
}

func archiveProvider() providers.Provider {
	p := pagedProvider(0)
	p.Listing.Kind = providers.ListingArchive
	p.Listing.URLTemplate = "https://example.com/archive/{date}"
	p.Listing.MaxConsecutiveEmpty = 2
	return p
}

func TestArchiveWalksBackwardUntilEmptyDays(t *testing.T) {
	now := func() time.Time { return time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC) }
	f := newFakeFetcher()
	f.pages["https://example.com/archive/2024/03/10"] = `<html><body><article class="story"><a href="/a">A</a></article></body></html>`
	f.pages["https://example.com/archive/2024/03/09"] = listPage("/b")

	thumbs, errs := collect(t, NewArchive(nil, now).Discover(context.Background(), archiveProvider(), f))
	require.Empty(t, errs)
	require.Len(t, thumbs, 2)
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), thumbs[0].ApproximateDate)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), thumbs[1].ApproximateDate)
	assert.Equal(t, []string{
		"https://example.com/archive/2024/03/10",
		"https://example.com/archive/2024/03/09",
		"https://example.com/archive/2024/03/08",
		"https://example.com/archive/2024/03/07",
	}, f.Requests())
}

func TestArchiveRespectsDateBounds(t *testing.T) {
	f := newFakeFetcher()
	f.fallback = func(url string) (string, bool) { return listPage("/" + url[len(url)-10:]), true }

	p := archiveProvider()
	p.Listing.DateFormat = "2006-01-02"
	p.Listing.StartDate = "2024-01-03"
	p.Listing.EarliestDate = "2024-01-01"

	thumbs, errs := collect(t, NewArchive(nil, time.Now).Discover(context.Background(), p, f))
	require.Empty(t, errs)
	assert.Len(t, thumbs, 3)
	assert.Equal(t, []string{
		"https://example.com/archive/2024-01-03",
		"https://example.com/archive/2024-01-02",
		"https://example.com/archive/2024-01-01",
	}, f.Requests())
}

const sitemapIndexXML = `<?xml version="1.0" encoding="UTF-8"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>https://example.com/sitemap-1.xml</loc></sitemap>
  <sitemap><loc>https://example.com/sitemap-2.xml</loc></sitemap>
  <sitemap><loc>https://example.com/sitemap-1.xml</loc></sitemap>
</sitemapindex>`

const newsSitemapXML = `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9" xmlns:news="http://www.google.com/schemas/sitemap-news/0.9">
  <url>
    <loc>https://example.com/story-1</loc>
    <news:news>
      <news:publication_date>2024-03-01T08:30:00+05:30</news:publication_date>
      <news:title> First   story </news:title>
    </news:news>
  </url>
  <url>
    <loc>https://example.com/story-2</loc>
    <lastmod>2024-03-02</lastmod>
  </url>
  <url><loc></loc></url>
</urlset>`

func TestSitemapFollowsIndexAndReportsBrokenChildren(t *testing.T) {
	f := newFakeFetcher()
	f.pages["https://example.com/sitemap.xml"] = sitemapIndexXML
	f.pages["https://example.com/sitemap-1.xml"] = newsSitemapXML
	f.failures["https://example.com/sitemap-2.xml"] = http.StatusBadGateway

	p := pagedProvider(0)
	p.Listing.Kind = providers.ListingSitemap
	p.Listing.URLTemplate = "https://example.com/sitemap.xml"

	thumbs, errs := collect(t, NewSitemap(nil).Discover(context.Background(), p, f))
	require.Len(t, thumbs, 2)
	assert.Equal(t, "https://example.com/story-1", thumbs[0].URL)
	assert.Equal(t, "First story", thumbs[0].Title)
	assert.Equal(t, "2024-03-01T03:00:00Z", thumbs[0].ApproximateDate.UTC().Format(time.RFC3339))
	assert.Equal(t, 2024, thumbs[1].ApproximateDate.Year())

	require.Len(t, errs, 1)
	var pe *PageError
	require.True(t, errors.As(errs[0], &pe))
	assert.Equal(t, "https://example.com/sitemap-2.xml", pe.URL)
	assert.Len(t, f.Requests(), 3)
}

func TestSitemapRejectsUnknownDocument(t *testing.T) {
	_, err := parseSitemap([]byte(`<rss><channel></channel></rss>`))
	require.Error(t, err)
}

const rssFeed = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Example</title>
  <item><title>One</title><link>https://example.com/one</link><pubDate>Fri, 01 Mar 2024 10:00:00 GMT</pubDate></item>
  <item><title>Two</title><link>/two</link></item>
</channel></rss>`

func TestFeedParsesItems(t *testing.T) {
	f := newFakeFetcher()
	f.pages["https://example.com/feed.xml"] = rssFeed

	p := pagedProvider(0)
	p.Listing.Kind = providers.ListingFeed
	p.Listing.URLTemplate = "https://example.com/feed.xml"

	thumbs, errs := collect(t, NewFeed(nil).Discover(context.Background(), p, f))
	require.Empty(t, errs)
	assert.Equal(t, []string{"https://example.com/one", "https://example.com/two"}, urls(thumbs))
	assert.Equal(t, "One", thumbs[0].Title)
	assert.Equal(t, 2024, thumbs[0].ApproximateDate.Year())
	assert.True(t, thumbs[1].ApproximateDate.IsZero())
	assert.Len(t, f.Requests(), 1)
}

func TestParseThumbnailsKeepsLinklessItems(t *testing.T) {
	body := []byte(`<html><body>
<div class="card"><h2><a href="/world/1">  World
  news </a></h2></div>
<div class="card"><h2>No link here</h2></div>
<a class="card" href="https://other.example.com/x">Direct</a>
</body></html>`)
	l := providers.Listing{Item: ".card", Title: providers.Rule{Selector: "h2"}}

	thumbs, err := ParseThumbnails(body, "https://example.com/news?page=1", l, 1)
	require.NoError(t, err)
	require.Len(t, thumbs, 3)
	assert.Equal(t, "https://example.com/world/1", thumbs[0].URL)
	assert.Equal(t, "World news", thumbs[0].Title)
	assert.Empty(t, thumbs[1].URL)
	assert.Equal(t, "No link here", thumbs[1].Title)
	assert.Equal(t, "https://other.example.com/x", thumbs[2].URL)
}

func TestRegistrySelectsStrategyByKind(t *testing.T) {
	reg := DefaultRegistry(nil)

	s, err := reg.StrategyFor(providers.Provider{ID: "x", Listing: providers.Listing{Kind: "Archive"}})
	require.NoError(t, err)
	assert.Equal(t, providers.ListingArchive, s.Kind())

	_, err = reg.StrategyFor(providers.Provider{ID: "x", Listing: providers.Listing{Kind: "scroll"}})
	assert.ErrorIs(t, err, domain.ErrFatalConfig)
}
