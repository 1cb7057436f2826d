// Package validate classifies extracted records as accepted or rejected.
// Validation never fails with an error: every input yields an Outcome.
package validate

import (
	"strings"
	"time"

	"github.com/Adda-Baaj/taja-khobor/internal/domain"
	"github.com/Adda-Baaj/taja-khobor/pkg/providers"
	"github.com/araddon/dateparse"
)

// Outcome is either Ok(Record) or Rejected(Reason).
type Outcome[T any] struct {
	Record T
	OK     bool
	Reason string
}

func ok[T any](rec T) Outcome[T] { return Outcome[T]{Record: rec, OK: true} }

func rejected[T any](reason string) Outcome[T] { return Outcome[T]{Reason: reason} }

// Thumbnail checks a listing reference before it is scheduled for extraction.
func Thumbnail(t domain.Thumbnail) Outcome[domain.Thumbnail] {
	t.URL = strings.TrimSpace(t.URL)
	t.Title = strings.TrimSpace(t.Title)
	switch {
	case t.URL == "":
		return rejected[domain.Thumbnail]("empty url")
	case t.Title == "":
		return rejected[domain.Thumbnail]("empty title")
	}
	return ok(t)
}

// Article turns a cleaned raw record into an Article for the site.
func Article(raw domain.RawArticle, p providers.Provider) Outcome[domain.Article] {
	a := domain.Article{
		URL:         strings.TrimSpace(raw.URL),
		Title:       strings.TrimSpace(raw.Title),
		Body:        strings.TrimSpace(raw.Body),
		Tags:        Tags(raw.Tags),
		Country:     p.Country,
		SourceName:  p.DisplayName(),
		RetrievedAt: raw.RetrievedAt.UTC(),
	}

	switch {
	case a.URL == "":
		return rejected[domain.Article]("empty url")
	case a.Title == "":
		return rejected[domain.Article]("empty title")
	case p.IsRequired(providers.FieldBody) && a.Body == "":
		return rejected[domain.Article]("empty body")
	case p.IsRequired(providers.FieldTags) && len(a.Tags) == 0:
		return rejected[domain.Article]("no tags")
	}

	rawDate := strings.TrimSpace(raw.PublishedDate)
	if rawDate == "" {
		if p.IsRequired(providers.FieldPublishedDate) || !p.NullableDate {
			return rejected[domain.Article]("missing published_date")
		}
		return ok(a)
	}

	day, parsed := ParseDate(rawDate)
	if !parsed {
		if !p.NullableDate {
			return rejected[domain.Article]("unparseable published_date " + quote(rawDate))
		}
		return ok(a)
	}
	a.PublishedDate = day
	return ok(a)
}

// Tags coerces tags to an ordered sequence of trimmed, non-empty strings.
func Tags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

var dateLayouts = []string{"2006-01-02", time.RFC3339, time.RFC1123Z, time.RFC1123}

// ParseDate normalizes a date string to a calendar day at UTC midnight.
func ParseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	var (
		t   time.Time
		err error
	)
	for _, layout := range dateLayouts {
		if t, err = time.Parse(layout, raw); err == nil {
			return calendarDay(t), true
		}
	}
	if t, err = dateparse.ParseAny(raw); err == nil {
		return calendarDay(t), true
	}
	return time.Time{}, false
}

// calendarDay keeps the day as written in the source's own offset.
func calendarDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func quote(s string) string {
	const maxLen = 64
	if len(s) > maxLen {
		s = s[:maxLen] + "..."
	}
	return `"` + s + `"`
}
