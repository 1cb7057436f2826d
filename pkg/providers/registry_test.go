package providers

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Adda-Baaj/taja-khobor/internal/domain"
	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const providersYAML = `
providers:
  - id: " TheHindu "
    name: The Hindu
    country: IN
    base_url: https://www.thehindu.com
    concurrency: 4
    rate_limit_delay_ms: 250
    headers:
      Accept-Language: en
      X-Token: ${HINDU_TOKEN}
      Empty: "  "
    listing:
      kind: Pagination
      url_template: https://www.thehindu.com/latest-news/?page={page}
      item: div.element
      link: h3 a
      title:
        selector: h3 a
    selectors:
      title: h1.title
      body:
        selector: div.articlebodycontent p
        all: true
      tags:
        selector: meta[name=keywords]
        attr: content
    cleaning_hooks:
      body: [Trim, " collapse_whitespace "]
  - id: archive-site
    base_url: https://example.org
    enabled: false
    client_kind: BROWSER
    required_fields: [title, body, published_date]
    listing:
      kind: archive
      url_template: https://example.org/archive/{date}
      item: li
      start_date: 2024-03-10
`

func TestLoadRegistrySanitizesAndExpandsEnv(t *testing.T) {
	t.Setenv("HINDU_TOKEN", "secret")
	path := filepath.Join(t.TempDir(), "providers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(providersYAML), 0o600))

	reg, err := LoadRegistry(path)
	require.NoError(t, err)
	require.Len(t, reg.All(), 2)

	p, ok := reg.ByID("THEHINDU")
	require.True(t, ok)
	assert.Equal(t, "thehindu", p.ID)
	assert.Equal(t, ClientNetwork, p.ClientKind)
	assert.Equal(t, 4, p.Concurrency)
	assert.Equal(t, int64(250), p.RateLimitDelay().Milliseconds())
	assert.Equal(t, map[string]string{"Accept-Language": "en", "X-Token": "secret"}, p.Headers)
	assert.Equal(t, []string{FieldTitle, FieldBody}, p.RequiredFields)
	assert.Equal(t, ListingPagination, p.Listing.Kind)
	assert.Equal(t, 1, p.Listing.FirstPage())
	assert.Equal(t, Rule{Selector: "h3 a"}, p.Listing.Link)
	assert.Equal(t, Rule{Selector: "h3 a"}, p.Listing.Title)
	assert.Equal(t, Rule{Selector: "h1.title"}, p.Selectors[FieldTitle])
	assert.Equal(t, Rule{Selector: "div.articlebodycontent p", All: true}, p.Selectors[FieldBody])
	assert.Equal(t, Rule{Selector: "meta[name=keywords]", Attr: "content"}, p.Selectors[FieldTags])
	assert.Equal(t, []string{"trim", "collapse_whitespace"}, p.CleaningHooks[FieldBody])
	assert.Equal(t, "The Hindu", p.DisplayName())

	archive, ok := reg.ByID("archive-site")
	require.True(t, ok)
	assert.Equal(t, ClientBrowser, archive.ClientKind)
	assert.True(t, archive.IsRequired(FieldPublishedDate))
	assert.Equal(t, "archive-site", archive.DisplayName())

	enabled := reg.Enabled()
	require.Len(t, enabled, 1)
	assert.Equal(t, "thehindu", enabled[0].ID)
}

func TestParseRegistryJSON(t *testing.T) {
	data := `{"providers":[{"id":"feedsite","base_url":"https://example.com","listing":{"kind":"feed","url_template":"https://example.com/rss"},"selectors":{"body":{"selector":"article","attr":"HTML"}}}]}`
	reg, err := ParseRegistry([]byte(data), ".json")
	require.NoError(t, err)
	p, ok := reg.ByID("feedsite")
	require.True(t, ok)
	assert.Equal(t, AttrHTML, p.Selectors[FieldBody].Attr)
}

func TestParseRegistryRejectsInvalidDescriptors(t *testing.T) {
	base := func(listing string) string {
		return "providers:\n  - id: site\n    base_url: https://example.com\n" + listing
	}
	tests := []struct {
		name string
		data string
		want string
	}{
		{name: "no providers", data: "providers: []\n", want: "no providers"},
		{name: "missing id", data: "providers:\n  - base_url: https://example.com\n    listing: {kind: feed, url_template: x}\n", want: "ID"},
		{name: "bad base url", data: "providers:\n  - id: a\n    base_url: nope\n    listing: {kind: feed, url_template: x}\n", want: "BaseURL"},
		{name: "unknown kind", data: base("    listing: {kind: infinite, url_template: x}\n"), want: "Kind"},
		{name: "unknown client", data: base("    client_kind: curl\n    listing: {kind: feed, url_template: x}\n"), want: "ClientKind"},
		{name: "pagination without item", data: base("    listing: {kind: pagination, url_template: x}\n"), want: "listing.item"},
		{name: "category without categories", data: base("    listing: {kind: category, url_template: x, item: li}\n"), want: "categories"},
		{name: "search without queries", data: base("    listing: {kind: search, url_template: x, item: li}\n"), want: "queries"},
		{name: "archive without date", data: base("    listing: {kind: archive, url_template: x, item: li}\n"), want: "{date}"},
		{name: "bad start date", data: base("    listing: {kind: archive, url_template: \"x/{date}\", item: li, start_date: 10/03/2024}\n"), want: "StartDate"},
		{name: "bad earliest date", data: base("    listing:\n      kind: archive\n      url_template: x/{date}\n      item: li\n      earliest_date: 2024/03/01\n"), want: "EarliestDate"},
		{name: "unknown selector field", data: base("    listing: {kind: feed, url_template: x}\n    selectors: {author: span}\n"), want: "author"},
		{name: "unknown required field", data: base("    listing: {kind: feed, url_template: x}\n    required_fields: [author]\n"), want: "RequiredFields"},
		{name: "duplicate id", data: "providers:\n  - {id: a, base_url: https://a.com, listing: {kind: feed, url_template: x}}\n  - {id: A, base_url: https://a.com, listing: {kind: feed, url_template: x}}\n", want: "duplicate"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseRegistry([]byte(tc.data), ".yaml")
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrFatalConfig)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadRegistryMissingFile(t *testing.T) {
	_, err := LoadRegistry(filepath.Join(t.TempDir(), "none.yaml"))
	assert.ErrorIs(t, err, domain.ErrFatalConfig)
	_, err = LoadRegistry(" ")
	assert.ErrorIs(t, err, domain.ErrFatalConfig)
}

func TestRuleReadsTextAttrAndHTML(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<div>
<p class="a"> first </p><p class="a"></p><p class="a">third <b>bold</b></p>
<a href="/x">link</a></div>`))
	require.NoError(t, err)
	root := doc.Selection

	assert.Equal(t, "first", Rule{Selector: "p.a"}.Value(root))
	assert.Equal(t, []string{"first"}, Rule{Selector: "p.a"}.Values(root))
	assert.Equal(t, []string{"first", "third bold"}, Rule{Selector: "p.a", All: true}.Values(root))
	assert.Equal(t, "/x", Rule{Selector: "a", Attr: "href"}.Value(root))
	assert.Equal(t, "bold", Rule{Selector: "p.a b"}.Value(root))
	assert.Equal(t, "third <b>bold</b>", Rule{Selector: "p.a", Attr: AttrHTML, All: true}.Values(root)[1])
	assert.Empty(t, Rule{}.Value(root))
	assert.Equal(t, Rule{Selector: "h1"}, Rule{}.Or(Rule{Selector: "h1"}))
}
