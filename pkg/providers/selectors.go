package providers

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Values evaluates the rule below s and returns the non-empty matches:
// every match when All is set, otherwise at most the first one.
func (r Rule) Values(s *goquery.Selection) []string {
	if r.IsZero() || s == nil {
		return nil
	}
	matches := s.Find(r.Selector)
	if !r.All {
		matches = matches.First()
	}

	var out []string
	matches.Each(func(_ int, m *goquery.Selection) {
		if v := r.read(m); v != "" {
			out = append(out, v)
		}
	})
	return out
}

// Value returns the first non-empty match of the rule below s.
func (r Rule) Value(s *goquery.Selection) string {
	if r.IsZero() || s == nil {
		return ""
	}
	var out string
	s.Find(r.Selector).EachWithBreak(func(_ int, m *goquery.Selection) bool {
		out = r.read(m)
		return out == ""
	})
	return out
}

// ReadSelf applies the rule's attr to s itself, ignoring the selector.
func (r Rule) ReadSelf(s *goquery.Selection) string {
	return r.read(s)
}

func (r Rule) read(m *goquery.Selection) string {
	switch r.Attr {
	case AttrText:
		return strings.TrimSpace(m.Text())
	case AttrHTML:
		html, err := m.Html()
		if err != nil {
			return ""
		}
		return strings.TrimSpace(html)
	default:
		v, _ := m.Attr(r.Attr)
		return strings.TrimSpace(v)
	}
}
