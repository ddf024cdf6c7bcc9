// Package fixture generates a deterministic synthetic catalog. It backs
// development setups, pipeline tests and benchmarks without touching a
// real retailer: the same seed always yields byte-identical items, so
// repeat ingestion runs exercise the skip path exactly like a real
// unchanged catalog would.
package fixture

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/use-agent/stockroom/adapter"
	"github.com/use-agent/stockroom/catalog"
	"github.com/use-agent/stockroom/config"
)

const defaultCount = 50

var (
	adjectives = []string{"Alpine", "Coastal", "Field", "Harbor", "Meridian", "Nordic", "Summit", "Trail"}
	nouns      = []string{"Anorak", "Beanie", "Crew", "Duffel", "Henley", "Jacket", "Oxford", "Parka", "Tee", "Vest"}
	colors     = []string{"Black", "Ecru", "Moss", "Navy", "Rust"}
	sizes      = []string{"S", "M", "L"}
	centsTable = []int{0, 50, 90, 95}
)

// Adapter streams a synthetic catalog derived from a seed.
type Adapter struct {
	cfg            config.BrandConfig
	count          int
	seed           int64
	malformedEvery int
}

// New creates a fixture adapter for one brand.
func New(cfg config.BrandConfig) *Adapter {
	a := &Adapter{
		cfg:            cfg,
		count:          cfg.Fixture.Count,
		seed:           cfg.Fixture.Seed,
		malformedEvery: cfg.Fixture.MalformedEvery,
	}
	if a.count <= 0 {
		a.count = defaultCount
	}
	return a
}

func (a *Adapter) Name() string { return a.cfg.Name }

// FetchItems generates the catalog. The url argument is ignored; a
// fixture brand has no real source.
func (a *Adapter) FetchItems(ctx context.Context, url string) adapter.Items {
	items := make([]catalog.Item, 0, a.count)
	for i := 1; i <= a.count; i++ {
		if a.malformedEvery > 0 && i%a.malformedEvery == 0 {
			// Missing title and URL; normalization rejects it.
			items = append(items, catalog.Item{
				"external_id": fmt.Sprintf("%s-%04d", a.cfg.Slug, i),
			})
			continue
		}
		items = append(items, a.item(i))
	}
	return adapter.SliceItems(items)
}

func (a *Adapter) item(i int) catalog.Item {
	id := fmt.Sprintf("%s-%04d", a.cfg.Slug, i)
	title := fmt.Sprintf("%s %s",
		pick(adjectives, a.roll(i, "adj")), pick(nouns, a.roll(i, "noun")))
	color := pick(colors, a.roll(i, "color"))

	dollars := 24 + a.roll(i, "dollars")%176
	cents := centsTable[a.roll(i, "cents")%uint64(len(centsTable))]
	price := fmt.Sprintf("%d.%02d", dollars, cents)

	currency := a.cfg.Currency
	if currency == "" {
		currency = "USD"
	}

	variantCount := 1 + int(a.roll(i, "variants")%uint64(len(sizes)))
	variants := make([]any, 0, variantCount)
	for v := 0; v < variantCount; v++ {
		variants = append(variants, map[string]any{
			"sku":       fmt.Sprintf("%s-%s", id, sizes[v]),
			"size":      sizes[v],
			"color":     color,
			"price":     price,
			"available": a.roll(i, "avail")>>uint(v)&1 == 1,
		})
	}

	return catalog.Item{
		"external_id": id,
		"title":       title,
		"description": fmt.Sprintf("The %s in %s. Cut for layering, built to last.", title, color),
		"price":       price,
		"currency":    currency,
		"url":         fmt.Sprintf("https://%s.example.com/products/%s", a.cfg.Slug, id),
		"variants":    variants,
		"images": []string{
			fmt.Sprintf("https://%s.example.com/img/%s-front.jpg", a.cfg.Slug, id),
			fmt.Sprintf("https://%s.example.com/img/%s-back.jpg", a.cfg.Slug, id),
		},
	}
}

// roll derives a stable pseudo-random value from the seed, the item
// index and a field label.
func (a *Adapter) roll(i int, field string) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d|%d|%s", a.seed, i, field)
	return h.Sum64()
}

func pick(list []string, roll uint64) string {
	return list[roll%uint64(len(list))]
}
