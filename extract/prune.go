package extract

import (
	"math"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// pruneScoreThreshold is the minimum weighted score a block element must
// reach to be retained as product content. Blocks scoring at or below it
// are discarded as page chrome (navigation, upsell rails, footers).
const pruneScoreThreshold = 0.0

// Signal weights for the pruning scorer.
const (
	wTextDensity   = 3.0
	wLinkDensity   = -2.0
	wTagWeight     = 1.5
	wClassIDWeight = 1.0
	wTextLength    = 0.5
)

// positiveClassIDPatterns are substrings in class/id attributes that
// mark the product copy on a detail page.
var positiveClassIDPatterns = []string{
	"product", "description", "details", "content", "main",
	"specs", "fabric", "composition", "care",
}

// negativeClassIDPatterns are substrings in class/id attributes that
// mark retail page chrome.
var negativeClassIDPatterns = []string{
	"sidebar", "ad", "widget", "nav", "menu", "footer", "header",
	"banner", "popup", "modal", "cookie", "social", "share",
	"related", "recommend", "promo", "upsell", "carousel",
	"cart", "checkout", "wishlist", "newsletter", "breadcrumb", "review",
}

// Prune strips chrome from a product detail page by scoring the layout
// blocks in <body> on text density, link density, semantic tags, class
// and id signals, and text length, keeping only blocks that score above
// the threshold. It is the fallback when readability finds no article:
// detail pages with thin copy often defeat it, while block scoring still
// separates the details section from navigation and upsell rails.
//
// ok reports whether scoring isolated content of usable length; when it
// is false the input is returned unchanged.
func Prune(rawHTML string) (pruned string, ok bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return rawHTML, false
	}

	scope := doc.Find("body")
	if scope.Length() == 0 {
		return rawHTML, false
	}

	// Framework pages wrap everything in a single root div; descend
	// through lone wrappers so scoring sees the real layout blocks.
	for scope.Children().Length() == 1 {
		only := scope.Children().First()
		if name := goquery.NodeName(only); name != "div" && name != "main" {
			break
		}
		scope = only
	}

	var retained []string
	retainedTextLen := 0
	scope.Children().Each(func(_ int, el *goquery.Selection) {
		if scoreElement(el) <= pruneScoreThreshold {
			return
		}
		if html, err := goquery.OuterHtml(el); err == nil {
			retained = append(retained, html)
			retainedTextLen += len(strings.TrimSpace(el.Text()))
		}
	})

	if len(retained) == 0 || retainedTextLen < minDescriptionLength {
		return rawHTML, false
	}
	return strings.Join(retained, "\n"), true
}

// scoreElement computes a weighted score for a DOM element from its
// content signals.
func scoreElement(el *goquery.Selection) float64 {
	fullHTML, err := goquery.OuterHtml(el)
	if err != nil {
		return 0
	}

	text := strings.TrimSpace(el.Text())
	textLen := len(text)
	totalLen := len(fullHTML)

	// Ratio of visible text to total element size.
	textDensity := 0.0
	if totalLen > 0 {
		textDensity = float64(textLen) / float64(totalLen)
	}

	// Ratio of anchor text to total text. Navigation and product rails
	// are almost all links; a description has few.
	linkTextLen := 0
	el.Find("a").Each(func(_ int, a *goquery.Selection) {
		linkTextLen += len(strings.TrimSpace(a.Text()))
	})
	linkDensity := 0.0
	if textLen > 0 {
		linkDensity = float64(linkTextLen) / float64(textLen)
	}

	// Log-scale bonus for longer text blocks.
	textLenScore := math.Log10(float64(textLen) + 1)

	return textDensity*wTextDensity +
		linkDensity*wLinkDensity +
		tagWeight(el)*wTagWeight +
		classIDWeight(el)*wClassIDWeight +
		textLenScore*wTextLength
}

// tagWeight scores the element's tag name: semantic content tags get a
// boost, known chrome tags a penalty.
func tagWeight(el *goquery.Selection) float64 {
	switch goquery.NodeName(el) {
	case "article", "main", "section":
		return 5.0
	case "nav", "footer", "aside", "header":
		return -5.0
	default:
		return 0.0
	}
}

// classIDWeight scans the element's class and id attributes for
// substrings that indicate product copy vs. chrome.
func classIDWeight(el *goquery.Selection) float64 {
	class, _ := el.Attr("class")
	id, _ := el.Attr("id")
	combined := strings.ToLower(class + " " + id)

	score := 0.0
	for _, pat := range positiveClassIDPatterns {
		if strings.Contains(combined, pat) {
			score += 3.0
			break // count at most once per direction
		}
	}
	for _, pat := range negativeClassIDPatterns {
		if strings.Contains(combined, pat) {
			score -= 3.0
			break
		}
	}
	return score
}
