package parser

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Listing page selectors.
const (
	ItemContainerSelector = "div.a-column.a-span12.a-text-center._cDEzb_grid-column_2hIsc"
	ItemLinkSelector      = "a.a-link-normal"
	NextPageSelector      = "li.a-last a"
)

// DetailLinks returns the absolute detail-page URL of every item container on
// a listing page, in page order. Containers without a link are skipped.
func DetailLinks(doc *goquery.Document, base *url.URL) []string {
	if doc == nil {
		return nil
	}
	var links []string
	doc.Find(ItemContainerSelector).Each(func(_ int, container *goquery.Selection) {
		href, ok := container.Find(ItemLinkSelector).First().Attr("href")
		if !ok {
			return
		}
		if abs, ok := resolve(base, href); ok {
			links = append(links, abs)
		}
	})
	return links
}

// NextPage returns the absolute URL behind the "next page" control. ok is
// false on the last page, where the control has no link.
func NextPage(doc *goquery.Document, base *url.URL) (string, bool) {
	if doc == nil {
		return "", false
	}
	href, ok := doc.Find(NextPageSelector).First().Attr("href")
	if !ok {
		return "", false
	}
	return resolve(base, href)
}

func resolve(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	return base.ResolveReference(ref).String(), true
}
