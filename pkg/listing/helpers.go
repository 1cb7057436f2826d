package listing

import (
	"crypto/sha1" //nolint:gosec // non-cryptographic page signatures
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/Adda-Baaj/taja-khobor/internal/domain"
	"github.com/araddon/dateparse"
)

// hashURL generates a SHA-1 hash of the given string.
func hashURL(u string) string {
	sum := sha1.Sum([]byte(u))
	return hex.EncodeToString(sum[:])
}

// pageSignature fingerprints a page by its sorted thumbnail URLs. Sites that
// clamp out-of-range page numbers to their last page repeat a signature.
func pageSignature(thumbs []domain.Thumbnail) string {
	if len(thumbs) == 0 {
		return ""
	}
	urls := make([]string, 0, len(thumbs))
	for _, t := range thumbs {
		urls = append(urls, t.URL)
	}
	sort.Strings(urls)
	return hashURL(strings.Join(urls, "\n"))
}

// expandTemplate substitutes {key} placeholders.
func expandTemplate(tmpl string, vars map[string]string) string {
	if len(vars) == 0 {
		return tmpl
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// resolveURL resolves a possibly relative URL against a base URL.
func resolveURL(raw, base string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if parsed.IsAbs() {
		return parsed.String()
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return raw
	}
	return baseURL.ResolveReference(parsed).String()
}

// collapse normalizes internal whitespace.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// parseLooseDate parses a listing date in any common layout; zero when unparseable.
func parseLooseDate(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}
	if t, err := dateparse.ParseAny(raw); err == nil {
		return t
	}
	return time.Time{}
}
