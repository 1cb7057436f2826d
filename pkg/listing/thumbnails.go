package listing

import (
	"bytes"
	"fmt"

	"github.com/Adda-Baaj/taja-khobor/internal/domain"
	"github.com/Adda-Baaj/taja-khobor/pkg/providers"
	"github.com/PuerkitoBio/goquery"
)

var (
	defaultLinkRule = providers.Rule{Selector: "a", Attr: "href"}
	hrefRule        = providers.Rule{Attr: "href"}
)

// ParseThumbnails extracts thumbnails from a listing page. Items without a
// link are kept with an empty URL so the validator can reject them.
func ParseThumbnails(body []byte, pageURL string, l providers.Listing, pageIndex int) ([]domain.Thumbnail, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse listing html: %w", err)
	}

	link := l.Link.Or(defaultLinkRule)
	if link.Attr == providers.AttrText {
		link.Attr = "href"
	}

	var thumbs []domain.Thumbnail
	doc.Find(l.Item).Each(func(_ int, item *goquery.Selection) {
		href := link.Value(item)
		if href == "" && goquery.NodeName(item) == "a" {
			href = hrefRule.ReadSelf(item)
		}

		title := collapse(l.Title.Value(item))
		if title == "" {
			if l.Link.IsZero() && goquery.NodeName(item) == "a" {
				title = collapse(item.Text())
			} else {
				title = collapse(item.Find(link.Selector).First().Text())
			}
		}

		var date string
		if !l.Date.IsZero() {
			date = l.Date.Value(item)
		} else if node := item.Find("time").First(); node.Length() > 0 {
			if v, ok := node.Attr("datetime"); ok {
				date = v
			} else {
				date = node.Text()
			}
		}

		thumbs = append(thumbs, domain.Thumbnail{
			URL:             resolveURL(href, pageURL),
			Title:           title,
			ApproximateDate: parseLooseDate(date),
			PageIndex:       pageIndex,
		})
	})
	return thumbs, nil
}
