package cleaner

import (
	"html"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/araddon/dateparse"
	"github.com/microcosm-cc/bluemonday"
)

// Built-in hook names.
const (
	HookTrim               = "trim"
	HookCollapseWhitespace = "collapse_whitespace"
	HookLowercase          = "lowercase"
	HookUnescapeHTML       = "unescape_html"
	HookStripHTML          = "strip_html"
	HookMarkdown           = "markdown"
	HookNormalizeDate      = "normalize_date"
)

var strictPolicy = bluemonday.StrictPolicy()

func builtins() map[string]Hook {
	return map[string]Hook{
		HookTrim:               strings.TrimSpace,
		HookCollapseWhitespace: collapseWhitespace,
		HookLowercase:          strings.ToLower,
		HookUnescapeHTML:       html.UnescapeString,
		HookStripHTML:          stripHTML,
		HookMarkdown:           toMarkdown,
		HookNormalizeDate:      normalizeDate,
	}
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// stripHTML drops every tag, keeping text content with entities decoded.
func stripHTML(s string) string {
	return strings.TrimSpace(html.UnescapeString(strictPolicy.Sanitize(s)))
}

// toMarkdown converts an html fragment to markdown, leaving s unchanged
// when conversion fails.
func toMarkdown(s string) string {
	md, err := htmltomarkdown.ConvertString(s)
	if err != nil {
		return s
	}
	return strings.TrimSpace(md)
}

// normalizeDate rewrites a date in any recognised layout as YYYY-MM-DD.
// Unparseable input is returned trimmed so validation can reject it.
func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return s
	}
	return t.Format("2006-01-02")
}
