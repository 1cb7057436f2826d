package listing

import (
	"context"
	"encoding/xml"
	"fmt"
	"iter"

	"github.com/Adda-Baaj/taja-khobor/internal/domain"
	"github.com/Adda-Baaj/taja-khobor/internal/logger"
	"github.com/Adda-Baaj/taja-khobor/pkg/providers"
)

// maxSitemapDocs bounds an index walk when max_pages is unset.
const maxSitemapDocs = 500

// Sitemap discovers thumbnails from an XML sitemap, following nested
// sitemap index files. Google News sitemap extensions supply title and
// publication date.
type Sitemap struct {
	log logger.Logger
}

// NewSitemap constructs the sitemap strategy.
func NewSitemap(log logger.Logger) *Sitemap {
	return &Sitemap{log: logger.Ensure(log)}
}

func (s *Sitemap) Kind() string { return providers.ListingSitemap }

type sitemapDoc struct {
	XMLName  xml.Name
	URLs     []sitemapURL        `xml:"url"`
	Sitemaps []sitemapIndexEntry `xml:"sitemap"`
}

type sitemapURL struct {
	Loc     string     `xml:"loc"`
	LastMod string     `xml:"lastmod"`
	News    newsDetail `xml:"news"`
}

type sitemapIndexEntry struct {
	Loc string `xml:"loc"`
}

type newsDetail struct {
	PublicationDate string `xml:"publication_date"`
	Title           string `xml:"title"`
}

// parseSitemap decodes either a urlset or a sitemapindex document.
func parseSitemap(data []byte) (sitemapDoc, error) {
	var doc sitemapDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return sitemapDoc{}, fmt.Errorf("parse sitemap: %w", err)
	}
	switch doc.XMLName.Local {
	case "urlset", "sitemapindex":
		return doc, nil
	default:
		return sitemapDoc{}, fmt.Errorf("parse sitemap: unexpected root element %q", doc.XMLName.Local)
	}
}

// Discover fetches the root sitemap and walks nested indexes depth first.
// A nested sitemap that fails is reported and skipped.
func (s *Sitemap) Discover(ctx context.Context, p providers.Provider, f Fetcher) iter.Seq2[domain.Thumbnail, error] {
	return func(yield func(domain.Thumbnail, error) bool) {
		limit := p.Listing.MaxPages
		if limit <= 0 {
			limit = maxSitemapDocs
		}

		root := expandTemplate(p.Listing.URLTemplate, map[string]string{"page": "1"})
		stack := []string{root}
		visited := make(map[string]struct{})
		seen := make(map[string]struct{})
		docs := 0

		for len(stack) > 0 && docs < limit {
			if ctx.Err() != nil {
				return
			}
			loc := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if _, ok := visited[loc]; ok {
				continue
			}
			visited[loc] = struct{}{}
			idx := docs
			docs++

			body, err := f.Fetch(ctx, loc)
			if err == nil {
				var doc sitemapDoc
				if doc, err = parseSitemap(body); err == nil {
					// Push in reverse so nested sitemaps are visited in document order.
					for i := len(doc.Sitemaps) - 1; i >= 0; i-- {
						if next := resolveURL(doc.Sitemaps[i].Loc, loc); next != "" {
							stack = append(stack, next)
						}
					}
					s.log.DebugObj("sitemap parsed", "sitemap_parsed", map[string]any{
						"provider_id": p.ID,
						"url":         loc,
						"urls":        len(doc.URLs),
						"sitemaps":    len(doc.Sitemaps),
					})
					for _, t := range buildSitemapThumbnails(doc.URLs, loc, idx) {
						if _, dup := seen[t.URL]; dup {
							continue
						}
						seen[t.URL] = struct{}{}
						if !yield(t, nil) {
							return
						}
					}
					continue
				}
			}
			if !yield(domain.Thumbnail{}, &PageError{URL: loc, PageIndex: idx, Err: err}) {
				return
			}
		}
	}
}

// buildSitemapThumbnails maps sitemap entries to thumbnails, skipping
// entries without a location.
func buildSitemapThumbnails(urls []sitemapURL, base string, pageIndex int) []domain.Thumbnail {
	thumbs := make([]domain.Thumbnail, 0, len(urls))
	for _, entry := range urls {
		loc := resolveURL(entry.Loc, base)
		if loc == "" {
			continue
		}
		date := parseLooseDate(entry.News.PublicationDate)
		if date.IsZero() {
			date = parseLooseDate(entry.LastMod)
		}
		thumbs = append(thumbs, domain.Thumbnail{
			URL:             loc,
			Title:           collapse(entry.News.Title),
			ApproximateDate: date,
			PageIndex:       pageIndex,
		})
	}
	return thumbs
}
