package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/use-agent/stockroom/catalog"
)

// Compute returns a hex-encoded SHA-256 over a product's content fields.
// ScrapedAt is excluded so re-scraping an unchanged product yields the
// same fingerprint. Prices render through decimal String, which drops
// trailing fraction zeros, so 129.0 and 129.00 hash identically.
func Compute(p *catalog.Product) string {
	var b strings.Builder

	writeField(&b, "brand_slug", p.BrandSlug)
	writeField(&b, "external_id", p.ExternalID)
	writeField(&b, "title", p.Title)
	writeField(&b, "description", p.Description)
	writeField(&b, "price", p.Price.String())
	writeField(&b, "currency", p.Currency)
	writeField(&b, "url", p.URL)

	for i, v := range p.Variants {
		prefix := fmt.Sprintf("variants[%d].", i)
		writeField(&b, prefix+"sku", v.SKU)
		writeField(&b, prefix+"size", v.Size)
		writeField(&b, prefix+"color", v.Color)
		writeField(&b, prefix+"price", v.Price.String())
		writeField(&b, prefix+"available", fmt.Sprintf("%t", v.Available))
	}

	for i, img := range p.Images {
		writeField(&b, fmt.Sprintf("images[%d]", i), img)
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Equal reports whether two fingerprints denote identical content.
func Equal(a, b string) bool {
	return a == b
}

// writeField emits one name=value line. Values are quoted so embedded
// newlines cannot fake a field boundary.
func writeField(b *strings.Builder, name, value string) {
	fmt.Fprintf(b, "%s=%q\n", name, value)
}
