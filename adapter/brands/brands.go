// Package brands builds the adapter registry out of brand configuration.
package brands

import (
	"fmt"

	"github.com/use-agent/stockroom/adapter"
	"github.com/use-agent/stockroom/adapter/fixture"
	"github.com/use-agent/stockroom/adapter/htmlgrid"
	"github.com/use-agent/stockroom/adapter/jsonfeed"
	"github.com/use-agent/stockroom/config"
)

// BuildRegistry constructs one adapter per brand entry and registers
// them all. Unknown kinds, invalid selectors and duplicate slugs fail
// here so a bad brands file stops startup instead of the first run.
func BuildRegistry(cfgs []config.BrandConfig, fetcher adapter.Fetcher) (*adapter.Registry, error) {
	reg := adapter.NewRegistry()
	for _, cfg := range cfgs {
		ad, err := buildAdapter(cfg, fetcher)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(cfg.Slug, cfg.Name, ad); err != nil {
			return nil, fmt.Errorf("brands: %w", err)
		}
	}
	return reg, nil
}

func buildAdapter(cfg config.BrandConfig, fetcher adapter.Fetcher) (adapter.Adapter, error) {
	switch cfg.Kind {
	case config.KindJSONFeed:
		return jsonfeed.New(cfg, fetcher), nil
	case config.KindHTMLGrid:
		return htmlgrid.New(cfg, fetcher)
	case config.KindFixture:
		return fixture.New(cfg), nil
	default:
		return nil, fmt.Errorf("brands: %s: unknown adapter kind %q", cfg.Slug, cfg.Kind)
	}
}
