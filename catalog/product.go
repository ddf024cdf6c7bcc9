// Package catalog defines the canonical product model shared by every brand
// adapter and the normalization that maps raw scraped items onto it.
package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the normalized unit of persistence. The pair
// (BrandSlug, ExternalID) is the natural key: it must be stable across
// re-ingestions of the same product, which is what makes upserts idempotent.
type Product struct {
	// BrandSlug matches the adapter registry key, e.g. "reiss".
	BrandSlug string `json:"brand_slug"`

	// ExternalID is the retailer's own SKU / product code, unique within
	// a brand.
	ExternalID string `json:"external_id"`

	// Title is the product display name.
	Title string `json:"title"`

	// Description is an optional markdown product description.
	Description string `json:"description,omitempty"`

	// Price is the listed price. Decimal, never float: repeated
	// ingestions of the same price must compare equal.
	Price decimal.Decimal `json:"price"`

	// Currency is the ISO currency code ("GBP"), or "" when unknown.
	Currency string `json:"currency,omitempty"`

	// URL is the canonical product page URL.
	URL string `json:"url"`

	// Variants are the purchasable variations, in source order.
	Variants []Variant `json:"variants"`

	// Images are absolute image URLs, in source order.
	Images []string `json:"images"`

	// ScrapedAt records when the source catalog page was fetched.
	ScrapedAt time.Time `json:"scraped_at"`
}

// Variant is one purchasable variation of a product.
type Variant struct {
	SKU       string          `json:"sku"`
	Size      string          `json:"size,omitempty"`
	Color     string          `json:"color,omitempty"`
	Price     decimal.Decimal `json:"price"`
	Available bool            `json:"available"`
}

// NaturalKey returns the (brand_slug, external_id) pair.
func (p *Product) NaturalKey() (brandSlug, externalID string) {
	return p.BrandSlug, p.ExternalID
}

// Clone returns a deep copy. Stores hand out clones so callers can never
// mutate persisted state through a shared pointer.
func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	cp := *p
	if p.Variants != nil {
		cp.Variants = make([]Variant, len(p.Variants))
		copy(cp.Variants, p.Variants)
	}
	if p.Images != nil {
		cp.Images = make([]string, len(p.Images))
		copy(cp.Images, p.Images)
	}
	return &cp
}
