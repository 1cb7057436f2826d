package crawler

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/Adda-Baaj/taja-khobor/internal/domain"
	"github.com/Adda-Baaj/taja-khobor/pkg/providers"

	"github.com/PuerkitoBio/goquery"
)

// ExtractionError reports an article page whose required fields could not be read.
type ExtractionError struct {
	URL    string
	Reason string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %s", e.URL, e.Reason)
}

// Extractor reads article fields from a page using the descriptor's
// selectors, falling back to page metadata when a selector finds nothing.
type Extractor struct{}

// Extract parses body into a raw article for th.
func (Extractor) Extract(body []byte, p providers.Provider, th domain.Thumbnail, retrievedAt time.Time) (domain.RawArticle, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return domain.RawArticle{}, &ExtractionError{URL: th.URL, Reason: fmt.Sprintf("parse html: %v", err)}
	}
	root := doc.Selection
	meta := parseMeta(doc)

	raw := domain.RawArticle{
		URL:         th.URL,
		RetrievedAt: retrievedAt,
	}

	raw.Title = firstNonEmpty(
		collapse(rule(p, providers.FieldTitle).Value(root)),
		meta.Title,
		th.Title,
	)

	bodyRule := rule(p, providers.FieldBody)
	raw.Body = strings.Join(bodyRule.Values(root), "\n\n")
	if raw.Body == "" && bodyRule.IsZero() {
		raw.Body = meta.Description
	}

	raw.PublishedDate = firstNonEmpty(
		rule(p, providers.FieldPublishedDate).Value(root),
		meta.PublishedTime,
	)
	if raw.PublishedDate == "" && !th.ApproximateDate.IsZero() {
		raw.PublishedDate = th.ApproximateDate.Format(time.RFC3339)
	}

	tagRule := rule(p, providers.FieldTags)
	for _, v := range tagRule.Values(root) {
		if tagRule.All {
			raw.Tags = append(raw.Tags, v)
			continue
		}
		raw.Tags = append(raw.Tags, parseKeywords(v)...)
	}
	if len(raw.Tags) == 0 {
		raw.Tags = meta.Keywords
	}

	for _, field := range p.RequiredFields {
		if fieldEmpty(raw, field) {
			reason := fmt.Sprintf("required field %q is empty", field)
			if r := rule(p, field); !r.IsZero() {
				reason = fmt.Sprintf("required field %q: selector %q matched nothing", field, r.Selector)
			}
			return domain.RawArticle{}, &ExtractionError{URL: th.URL, Reason: reason}
		}
	}
	return raw, nil
}

func rule(p providers.Provider, field string) providers.Rule {
	return p.Selectors[field]
}

func fieldEmpty(raw domain.RawArticle, field string) bool {
	switch field {
	case providers.FieldTitle:
		return raw.Title == ""
	case providers.FieldBody:
		return raw.Body == ""
	case providers.FieldPublishedDate:
		return raw.PublishedDate == ""
	case providers.FieldTags:
		return len(raw.Tags) == 0
	}
	return false
}

// pageMeta holds metadata extracted from an HTML page.
type pageMeta struct {
	Title         string
	Description   string
	PublishedTime string
	Keywords      []string
}

// parseMeta extracts page metadata from the document head.
func parseMeta(doc *goquery.Document) pageMeta {
	extract := func(sel string) string {
		if node := doc.Find(sel).First(); node.Length() > 0 {
			if val, ok := node.Attr("content"); ok {
				return strings.TrimSpace(val)
			}
		}
		return ""
	}

	pm := pageMeta{}
	pm.Title = firstNonEmpty(
		extract(`meta[property="og:title"]`),
		collapse(doc.Find("title").First().Text()),
	)
	pm.Description = firstNonEmpty(
		extract(`meta[property="og:description"]`),
		extract(`meta[name="description"]`),
	)
	pm.PublishedTime = firstNonEmpty(
		extract(`meta[property="article:published_time"]`),
		extract(`meta[itemprop="datePublished"]`),
	)
	if pm.PublishedTime == "" {
		if v, ok := doc.Find("time[datetime]").First().Attr("datetime"); ok {
			pm.PublishedTime = strings.TrimSpace(v)
		}
	}

	pm.Keywords = parseKeywords(firstNonEmpty(
		extract(`meta[name="news_keywords"]`),
		extract(`meta[name="keywords"]`),
	))
	if len(pm.Keywords) == 0 {
		doc.Find(`meta[property="article:tag"]`).Each(func(_ int, s *goquery.Selection) {
			if v, ok := s.Attr("content"); ok && strings.TrimSpace(v) != "" {
				pm.Keywords = append(pm.Keywords, strings.TrimSpace(v))
			}
		})
	}
	return pm
}

// parseKeywords splits a comma-separated string of keywords into a slice of trimmed strings.
func parseKeywords(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	keywords := make([]string, 0, len(parts))
	for _, part := range parts {
		if kw := strings.TrimSpace(part); kw != "" {
			keywords = append(keywords, kw)
		}
	}
	if len(keywords) == 0 {
		return nil
	}
	return keywords
}

// firstNonEmpty returns the first non-empty string from the given values.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
