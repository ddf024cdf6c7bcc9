package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// OG holds the Open Graph metadata of a detail page. Retail platforms
// fill these reliably even when the visible markup is a mess.
type OG struct {
	Title       string
	Description string
	Image       string
	Type        string
}

// Images parses detail-page HTML and returns image URLs resolved
// against the source URL, in document order and deduplicated.
func Images(rawHTML, sourceURL string) []string {
	images := []string{}

	base, err := url.Parse(sourceURL)
	if err != nil {
		return images
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return images
	}

	seen := make(map[string]struct{})
	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		src, exists := s.Attr("src")
		if !exists || src == "" {
			return
		}

		resolved, err := base.Parse(src)
		if err != nil {
			return
		}

		absURL := resolved.String()
		// Skip inline data URIs; they are placeholders, not product shots.
		if resolved.Scheme == "data" {
			return
		}

		if _, ok := seen[absURL]; ok {
			return
		}
		seen[absURL] = struct{}{}

		images = append(images, absURL)
	})

	return images
}

// OpenGraph parses Open Graph meta tags from detail-page HTML.
func OpenGraph(rawHTML string) OG {
	og := OG{}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return og
	}

	doc.Find("meta[property]").Each(func(_ int, s *goquery.Selection) {
		prop, _ := s.Attr("property")
		content, _ := s.Attr("content")
		if content == "" {
			return
		}
		switch prop {
		case "og:title":
			og.Title = content
		case "og:description":
			og.Description = content
		case "og:image":
			og.Image = content
		case "og:type":
			og.Type = content
		}
	})

	return og
}
