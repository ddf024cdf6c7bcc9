// Package extract turns product detail pages into catalog fields: a
// markdown description, image URLs and Open Graph metadata. Grid
// adapters use it to enrich items whose listing tiles carry too little.
package extract

import (
	"log/slog"
	nurl "net/url"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	readability "github.com/go-shiori/go-readability"
)

// minDescriptionLength is the minimum plain-text length (in characters)
// for readability output to count as a product description. Below it
// the main content block was probably mis-detected.
const minDescriptionLength = 30

// Extractor converts detail-page HTML into markdown descriptions. The
// underlying converter is goroutine-safe, so one Extractor serves all
// concurrent enrichment fetches.
type Extractor struct {
	conv *converter.Converter
}

// New creates an Extractor with markdown conversion configured for
// product copy:
//
//   - base plugin: strips script, style, iframe, noscript, head, meta
//     and other non-content markup.
//   - commonmark plugin: standard Markdown rendering.
//   - table plugin: keeps size charts and spec tables readable, with
//     minimal cell padding.
func New() *Extractor {
	return &Extractor{
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(
					table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal),
				),
			),
		),
	}
}

// Description extracts the main product copy from a detail page and
// returns it as markdown. The second return value reports whether main
// content was isolated, by readability or by the pruning fallback; when
// it is false the markdown covers the whole page and the caller may
// prefer Open Graph metadata instead.
func (e *Extractor) Description(rawHTML, sourceURL string) (string, bool) {
	content, extracted := readableContent(rawHTML, sourceURL)

	domain := ""
	if u, err := nurl.Parse(sourceURL); err == nil {
		domain = u.Host
	}

	md, err := e.conv.ConvertString(content, converter.WithDomain(domain))
	if err != nil {
		slog.Warn("extract: markdown conversion failed", "url", sourceURL, "error", err)
		return "", false
	}
	return strings.TrimSpace(md), extracted
}

// readableContent runs the Mozilla Readability algorithm and returns
// the main content HTML. Fallback behaviour (enrichment must never fail
// just because readability choked):
//   - URL parsing fails            -> raw HTML, false
//   - readability.FromReader errs  -> block pruning, then raw HTML
//   - extracted text too short     -> block pruning, then raw HTML
func readableContent(rawHTML, sourceURL string) (string, bool) {
	parsedURL, err := nurl.Parse(sourceURL)
	if err != nil {
		slog.Warn("extract: invalid source URL, using raw HTML", "url", sourceURL, "error", err)
		return rawHTML, false
	}

	article, err := readability.FromReader(strings.NewReader(rawHTML), parsedURL)
	if err != nil {
		slog.Warn("extract: readability failed, trying block pruning", "url", sourceURL, "error", err)
		return prunedOrRaw(rawHTML)
	}

	if len(strings.TrimSpace(article.TextContent)) < minDescriptionLength {
		// Routine for sparse product pages; not worth a warning.
		slog.Debug("extract: readability content too short, trying block pruning",
			"url", sourceURL, "length", len(article.TextContent))
		return prunedOrRaw(rawHTML)
	}

	return article.Content, true
}

func prunedOrRaw(rawHTML string) (string, bool) {
	if pruned, ok := Prune(rawHTML); ok {
		return pruned, true
	}
	return rawHTML, false
}
