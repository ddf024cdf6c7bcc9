package adapter

import (
	"errors"
	"testing"

	"github.com/use-agent/stockroom/catalog"
)

func TestSliceItems_YieldsInOrder(t *testing.T) {
	items := SliceItems([]catalog.Item{
		{"external_id": "sku-1"},
		{"external_id": "sku-2"},
		{"external_id": "sku-3"},
	})

	var got []string
	for items.Next() {
		got = append(got, items.Item()["external_id"].(string))
	}
	if err := items.Err(); err != nil {
		t.Fatalf("Err() = %v, want nil", err)
	}

	want := []string{"sku-1", "sku-2", "sku-3"}
	if len(got) != len(want) {
		t.Fatalf("yielded %d items, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("item[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSliceItems_Empty(t *testing.T) {
	items := SliceItems(nil)
	if items.Next() {
		t.Error("empty stream should not yield")
	}
	if err := items.Err(); err != nil {
		t.Errorf("Err() = %v, want nil", err)
	}
}

func TestErrorItems(t *testing.T) {
	cause := errors.New("connection refused")
	items := ErrorItems(&FetchError{Brand: "acme", URL: "https://shop.example.com", Err: cause})

	if items.Next() {
		t.Error("error stream should not yield")
	}

	var ferr *FetchError
	if !errors.As(items.Err(), &ferr) {
		t.Fatalf("Err() = %v, want *FetchError", items.Err())
	}
	if ferr.Brand != "acme" {
		t.Errorf("Brand = %q, want acme", ferr.Brand)
	}
	if !errors.Is(items.Err(), cause) {
		t.Error("FetchError should unwrap to its cause")
	}
}
