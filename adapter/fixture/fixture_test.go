package fixture

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/use-agent/stockroom/catalog"
	"github.com/use-agent/stockroom/config"
)

func fixtureConfig(count int, seed int64, malformedEvery int) config.BrandConfig {
	return config.BrandConfig{
		Slug: "demo", Name: "Demo Brand", Kind: config.KindFixture,
		Currency: "USD",
		Fixture:  config.FixtureConfig{Count: count, Seed: seed, MalformedEvery: malformedEvery},
	}
}

func collect(t *testing.T, a *Adapter) []catalog.Item {
	t.Helper()
	stream := a.FetchItems(context.Background(), "")
	var items []catalog.Item
	for stream.Next() {
		items = append(items, stream.Item())
	}
	if stream.Err() != nil {
		t.Fatalf("Err = %v", stream.Err())
	}
	return items
}

func TestAdapter_Deterministic(t *testing.T) {
	first := collect(t, New(fixtureConfig(20, 7, 0)))
	second := collect(t, New(fixtureConfig(20, 7, 0)))

	if len(first) != 20 {
		t.Fatalf("got %d items, want 20", len(first))
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("same seed produced different catalogs")
	}
}

func TestAdapter_SeedChangesCatalog(t *testing.T) {
	first := collect(t, New(fixtureConfig(20, 7, 0)))
	other := collect(t, New(fixtureConfig(20, 8, 0)))

	if reflect.DeepEqual(first, other) {
		t.Error("different seeds produced identical catalogs")
	}
	// Natural keys stay positional regardless of seed.
	if first[0]["external_id"] != other[0]["external_id"] {
		t.Errorf("external_id depends on seed: %v vs %v",
			first[0]["external_id"], other[0]["external_id"])
	}
}

func TestAdapter_ItemsNormalize(t *testing.T) {
	items := collect(t, New(fixtureConfig(30, 3, 0)))

	for i, item := range items {
		p, err := catalog.Normalize(item, "demo", time.Now().UTC())
		if err != nil {
			t.Fatalf("item %d failed normalization: %v", i, err)
		}
		if p.Price.IsZero() {
			t.Errorf("item %d has zero price", i)
		}
		if len(p.Variants) == 0 {
			t.Errorf("item %d has no variants", i)
		}
	}
}

func TestAdapter_MalformedEveryNth(t *testing.T) {
	items := collect(t, New(fixtureConfig(10, 1, 3)))
	if len(items) != 10 {
		t.Fatalf("got %d items, want 10 (malformed ones still stream)", len(items))
	}

	var failed int
	for _, item := range items {
		if _, err := catalog.Normalize(item, "demo", time.Now().UTC()); err != nil {
			var ne *catalog.NormalizationError
			if !errors.As(err, &ne) {
				t.Fatalf("unexpected error type: %v", err)
			}
			failed++
		}
	}
	// Items 3, 6 and 9 of 10.
	if failed != 3 {
		t.Errorf("%d malformed items, want 3", failed)
	}
}

func TestAdapter_DefaultCount(t *testing.T) {
	items := collect(t, New(fixtureConfig(0, 1, 0)))
	if len(items) != 50 {
		t.Errorf("got %d items, want the default 50", len(items))
	}
}
