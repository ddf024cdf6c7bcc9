package fingerprint

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/use-agent/stockroom/catalog"
)

func sampleProduct() *catalog.Product {
	return &catalog.Product{
		BrandSlug:  "acme",
		ExternalID: "sku-1",
		Title:      "Wool Overcoat",
		Price:      decimal.RequireFromString("129.00"),
		Currency:   "GBP",
		URL:        "https://shop.example.com/coats/sku-1",
		Variants: []catalog.Variant{
			{SKU: "sku-1-m", Size: "M", Price: decimal.RequireFromString("129.00"), Available: true},
			{SKU: "sku-1-l", Size: "L", Price: decimal.RequireFromString("129.00"), Available: false},
		},
		Images:    []string{"https://cdn.example.com/1.jpg"},
		ScrapedAt: time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC),
	}
}

func TestCompute_Deterministic(t *testing.T) {
	a := Compute(sampleProduct())
	b := Compute(sampleProduct())
	if a != b {
		t.Errorf("same product hashed differently: %s vs %s", a, b)
	}
}

func TestCompute_IgnoresScrapedAt(t *testing.T) {
	p := sampleProduct()
	later := sampleProduct()
	later.ScrapedAt = later.ScrapedAt.Add(48 * time.Hour)

	if Compute(p) != Compute(later) {
		t.Error("scrape timestamp should not affect the fingerprint")
	}
}

func TestCompute_PriceScaleInsensitive(t *testing.T) {
	a := sampleProduct()
	a.Price = decimal.New(12900, -2) // 129.00

	b := sampleProduct()
	b.Price = decimal.NewFromInt(129)

	if Compute(a) != Compute(b) {
		t.Error("129.00 and 129 should fingerprint identically")
	}
}

func TestCompute_DetectsTitleChange(t *testing.T) {
	a := sampleProduct()
	b := sampleProduct()
	b.Title = "Wool Overcoat (Sale)"

	if Compute(a) == Compute(b) {
		t.Error("title change should change the fingerprint")
	}
}

func TestCompute_DetectsPriceChange(t *testing.T) {
	a := sampleProduct()
	b := sampleProduct()
	b.Price = decimal.RequireFromString("119.00")

	if Compute(a) == Compute(b) {
		t.Error("price change should change the fingerprint")
	}
}

func TestCompute_DetectsVariantAvailabilityChange(t *testing.T) {
	a := sampleProduct()
	b := sampleProduct()
	b.Variants[1].Available = true

	if Compute(a) == Compute(b) {
		t.Error("variant availability change should change the fingerprint")
	}
}

func TestCompute_VariantOrderMatters(t *testing.T) {
	a := sampleProduct()
	b := sampleProduct()
	b.Variants[0], b.Variants[1] = b.Variants[1], b.Variants[0]

	if Compute(a) == Compute(b) {
		t.Error("reordered variants are different content")
	}
}

func TestCompute_FieldBoundariesDoNotBleed(t *testing.T) {
	a := sampleProduct()
	a.Title = "Coat"
	a.Description = "warm"

	b := sampleProduct()
	b.Title = "Coat\ndescription=\"warm\""
	b.Description = ""

	if Compute(a) == Compute(b) {
		t.Error("a newline inside a field should not fake another field")
	}
}

func TestEqual(t *testing.T) {
	a := Compute(sampleProduct())
	if !Equal(a, a) {
		t.Error("identical fingerprints should compare equal")
	}
	changed := sampleProduct()
	changed.Currency = "EUR"
	if Equal(a, Compute(changed)) {
		t.Error("different content should not compare equal")
	}
}
