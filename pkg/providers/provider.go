// Package providers holds site descriptors: the declarative, per-site record
// that drives listing discovery, fetching, extraction and cleaning.
package providers

import (
	"time"
)

const (
	// Supported fetch clients.
	ClientNetwork = "network"
	ClientBrowser = "browser"

	// Supported listing strategies.
	ListingPagination = "pagination"
	ListingArchive    = "archive"
	ListingCategory   = "category"
	ListingSearch     = "search"
	ListingSitemap    = "sitemap"
	ListingFeed       = "feed"

	// Article fields addressable by selectors and cleaning hooks.
	FieldTitle         = "title"
	FieldBody          = "body"
	FieldPublishedDate = "published_date"
	FieldTags          = "tags"
)

// Provider is the site descriptor. It is immutable once loaded.
type Provider struct {
	ID               string              `json:"id" yaml:"id" validate:"required"`
	Name             string              `json:"name" yaml:"name"`
	Country          string              `json:"country" yaml:"country"`
	BaseURL          string              `json:"base_url" yaml:"base_url" validate:"required,url"`
	ClientKind       string              `json:"client_kind" yaml:"client_kind" validate:"oneof=network browser"`
	Concurrency      int                 `json:"concurrency" yaml:"concurrency" validate:"gte=1,lte=64"`
	RateLimitDelayMS int                 `json:"rate_limit_delay_ms" yaml:"rate_limit_delay_ms" validate:"gte=0"`
	Headers          map[string]string   `json:"headers" yaml:"headers"`
	Enabled          *bool               `json:"enabled" yaml:"enabled"`
	NullableDate     bool                `json:"nullable_date" yaml:"nullable_date"`
	RequiredFields   []string            `json:"required_fields" yaml:"required_fields" validate:"dive,oneof=title body published_date tags"`
	Listing          Listing             `json:"listing" yaml:"listing"`
	Selectors        map[string]Rule     `json:"selectors" yaml:"selectors"`
	CleaningHooks    map[string][]string `json:"cleaning_hooks" yaml:"cleaning_hooks"`
}

// Listing configures how thumbnails are discovered.
type Listing struct {
	Kind               string   `json:"kind" yaml:"kind" validate:"required,oneof=pagination archive category search sitemap feed"`
	URLTemplate        string   `json:"url_template" yaml:"url_template" validate:"required"`
	StartPage          *int     `json:"start_page" yaml:"start_page"`
	MaxPages           int      `json:"max_pages" yaml:"max_pages" validate:"gte=0"`
	BatchSize          int      `json:"batch_size" yaml:"batch_size" validate:"gte=0"`
	EmptyPageTolerance int      `json:"empty_page_tolerance" yaml:"empty_page_tolerance" validate:"gte=0"`
	Categories         []string `json:"categories" yaml:"categories"`
	Queries            []string `json:"queries" yaml:"queries"`

	// Archive walks dates backward from StartDate (default today) to EarliestDate.
	DateFormat          string `json:"date_format" yaml:"date_format"`
	StartDate           string `json:"start_date" yaml:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EarliestDate        string `json:"earliest_date" yaml:"earliest_date" validate:"omitempty,datetime=2006-01-02"`
	MaxConsecutiveEmpty int    `json:"max_consecutive_empty" yaml:"max_consecutive_empty" validate:"gte=0"`

	Item  string `json:"item" yaml:"item"`
	Link  Rule   `json:"link" yaml:"link"`
	Title Rule   `json:"title" yaml:"title"`
	Date  Rule   `json:"date" yaml:"date"`
}

// RateLimitDelay returns the minimum spacing between request starts.
func (p Provider) RateLimitDelay() time.Duration {
	if p.RateLimitDelayMS <= 0 {
		return 0
	}
	return time.Duration(p.RateLimitDelayMS) * time.Millisecond
}

// EnabledValue returns the enabled flag defaulting to true.
func (p Provider) EnabledValue() bool {
	if p.Enabled == nil {
		return true
	}
	return *p.Enabled
}

// DisplayName returns the human name, falling back to the id.
func (p Provider) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}

// IsRequired reports whether an extracted field must be non-empty.
func (p Provider) IsRequired(field string) bool {
	for _, f := range p.RequiredFields {
		if f == field {
			return true
		}
	}
	return false
}

// FirstPage returns the first page index of a paginated listing.
func (l Listing) FirstPage() int {
	if l.StartPage == nil {
		return 1
	}
	return *l.StartPage
}

// Headers returns a copy of the provider's request headers.
func Headers(p Provider) map[string]string {
	if len(p.Headers) == 0 {
		return nil
	}
	out := make(map[string]string, len(p.Headers))
	for k, v := range p.Headers {
		out[k] = v
	}
	return out
}
