package parser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// detailLinkMarker identifies links to a listing detail page on a search page
const detailLinkMarker = "Details_Annonces_Immobilier.asp"

// ParseSearchResults returns the detail page links found on a search page,
// deduplicated and in page order. Relative links are joined to baseURL.
func ParseSearchResults(htmlContent, baseURL string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse search page: %w", err)
	}

	base := strings.TrimRight(baseURL, "/")
	seen := make(map[string]bool)
	var links []string

	doc.Find("a[href]").Each(func(i int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if !strings.Contains(href, detailLinkMarker) {
			return
		}
		if !strings.HasPrefix(href, "http") {
			href = base + "/" + strings.TrimLeft(href, "/")
		}
		if seen[href] {
			return
		}
		seen[href] = true
		links = append(links, href)
	})

	return links, nil
}
