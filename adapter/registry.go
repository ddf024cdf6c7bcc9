package adapter

import (
	"fmt"
	"sort"
	"sync"
)

// Registration pairs a brand with its adapter.
type Registration struct {
	// Slug is the registry key, e.g. "acme-outfitters".
	Slug string

	// Name is the human-readable brand name, e.g. "Acme Outfitters".
	Name string

	Adapter Adapter
}

// UnknownBrandError is returned when resolving a slug nothing was
// registered for. It fails an ingestion before any fetch happens.
type UnknownBrandError struct {
	Slug string
}

func (e *UnknownBrandError) Error() string {
	return fmt.Sprintf("no adapter registered for brand %q", e.Slug)
}

// DuplicateBrandError is returned when registering a slug twice.
type DuplicateBrandError struct {
	Slug string
}

func (e *DuplicateBrandError) Error() string {
	return fmt.Sprintf("brand %q already registered", e.Slug)
}

// Registry routes brand slugs to adapters. Registration happens at
// startup; lookups are safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	brands map[string]Registration
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{brands: make(map[string]Registration)}
}

// Register binds a brand slug to an adapter.
func (r *Registry) Register(slug, name string, ad Adapter) error {
	if slug == "" {
		return fmt.Errorf("brand slug is empty")
	}
	if ad == nil {
		return fmt.Errorf("adapter for brand %q is nil", slug)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.brands[slug]; exists {
		return &DuplicateBrandError{Slug: slug}
	}
	r.brands[slug] = Registration{Slug: slug, Name: name, Adapter: ad}
	return nil
}

// Resolve returns the registration for a brand slug.
func (r *Registry) Resolve(slug string) (Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.brands[slug]
	if !ok {
		return Registration{}, &UnknownBrandError{Slug: slug}
	}
	return reg, nil
}

// Brands returns every registration, sorted by slug.
func (r *Registry) Brands() []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Registration, 0, len(r.brands))
	for _, reg := range r.brands {
		out = append(out, reg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}
