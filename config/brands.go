package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/use-agent/stockroom/catalog"
)

// Adapter kinds a brand entry may declare.
const (
	KindJSONFeed = "jsonfeed"
	KindHTMLGrid = "htmlgrid"
	KindFixture  = "fixture"
)

// BrandConfig describes one brand's catalog source: which adapter kind
// reads it and the knobs that adapter needs. Loaded from the brands
// YAML file at startup.
type BrandConfig struct {
	// Slug identifies the brand in URLs and the store. Derived from
	// Name when empty.
	Slug string `yaml:"slug"`

	// Name is the human-readable brand name.
	Name string `yaml:"name"`

	// Kind selects the adapter: "jsonfeed", "htmlgrid" or "fixture".
	Kind string `yaml:"kind"`

	// Currency is the fallback ISO code for prices that carry none.
	Currency string `yaml:"currency"`

	// RatePerSecond throttles page fetches against this brand's site.
	// 0 means no throttling.
	RatePerSecond float64 `yaml:"rate_per_second"`

	// Burst is the rate limiter burst size. Defaults to 1 when a rate
	// is set.
	Burst int `yaml:"burst"`

	// MaxPages caps pagination for this brand. 0 falls back to the
	// service-wide ingest default.
	MaxPages int `yaml:"max_pages"`

	// FetchTimeout overrides the service-wide per-page fetch deadline.
	FetchTimeout time.Duration `yaml:"fetch_timeout"`

	// Stealth asks the browser engine to apply evasions on this brand.
	Stealth bool `yaml:"stealth"`

	// Headers are sent with every page fetch (API keys, shop tokens).
	Headers map[string]string `yaml:"headers"`

	Feed    FeedConfig    `yaml:"feed"`
	Grid    GridConfig    `yaml:"grid"`
	Fixture FixtureConfig `yaml:"fixture"`
}

// FeedConfig drives the jsonfeed adapter.
type FeedConfig struct {
	// ItemsPath is the dot path to the item array ("products",
	// "data.items"). Empty means the document root is the array.
	ItemsPath string `yaml:"items_path"`

	// NextPath is the dot path to the next page URL. Feeds without one
	// paginate by PageParam instead.
	NextPath string `yaml:"next_path"`

	// PageParam is the query parameter for page-number pagination.
	PageParam string `yaml:"page_param"`

	// Fields maps canonical item fields (external_id, title, price, ...)
	// to dot paths inside one feed item. Unmapped fields are read from
	// the item under their canonical name.
	Fields map[string]string `yaml:"fields"`
}

// GridConfig drives the htmlgrid adapter. All selectors are CSS and are
// compiled when the registry is built, so typos fail startup.
type GridConfig struct {
	// Tile selects one product tile on the listing page.
	Tile string `yaml:"tile"`

	// Title, Price and Image select within a tile. Image reads src.
	Title string `yaml:"title"`
	Price string `yaml:"price"`
	Image string `yaml:"image"`

	// Link selects the product link within a tile; its href becomes the
	// product URL. Empty uses the first <a> in the tile.
	Link string `yaml:"link"`

	// ExternalIDAttr names a tile attribute carrying the product ID.
	// Empty derives the ID from the product URL's last path segment.
	ExternalIDAttr string `yaml:"external_id_attr"`

	// NextPage selects the next page link on the listing page. Empty
	// falls back to PageParam pagination.
	NextPage string `yaml:"next_page"`

	// PageParam is the query parameter for page-number pagination.
	PageParam string `yaml:"page_param"`

	// ScrollPages scrolls the rendered listing down that many viewports
	// before reading tiles, for grids that lazy-load on scroll. Only the
	// browser engine honors it.
	ScrollPages int `yaml:"scroll_pages"`

	// Enrich fetches each product's detail page to fill description and
	// images. Slower; per-brand politeness applies.
	Enrich bool `yaml:"enrich"`
}

// FixtureConfig drives the fixture adapter.
type FixtureConfig struct {
	// Count is the number of synthetic products. Default 50.
	Count int `yaml:"count"`

	// Seed keys the deterministic catalog. The same seed always
	// produces the same products.
	Seed int64 `yaml:"seed"`

	// MalformedEvery makes every Nth item unparseable. 0 disables.
	MalformedEvery int `yaml:"malformed_every"`
}

// LoadBrands parses the brands YAML file. Brands without a slug get one
// derived from their name.
func LoadBrands(path string) ([]BrandConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read brands file: %w", err)
	}

	var doc struct {
		Brands []BrandConfig `yaml:"brands"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	for i := range doc.Brands {
		b := &doc.Brands[i]
		if b.Name == "" {
			return nil, fmt.Errorf("config: brand entry %d has no name", i)
		}
		if b.Slug == "" {
			b.Slug = catalog.Slugify(b.Name)
		}
	}
	return doc.Brands, nil
}
