package store

import (
	"context"
	"sort"
	"sync"

	"github.com/use-agent/stockroom/catalog"
	"github.com/use-agent/stockroom/fingerprint"
)

type naturalKey struct {
	brandSlug  string
	externalID string
}

type memoryRecord struct {
	product     *catalog.Product
	fingerprint string
}

// Memory is an in-process Store guarded by a single mutex, which makes
// every Write trivially atomic. It backs tests and STOCKROOM_STORE=memory
// deployments where persistence across restarts is not needed.
type Memory struct {
	mu      sync.RWMutex
	records map[naturalKey]memoryRecord
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{records: make(map[naturalKey]memoryRecord)}
}

func (m *Memory) FindByNaturalKey(_ context.Context, brandSlug, externalID string) (*catalog.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[naturalKey{brandSlug, externalID}]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.product.Clone(), nil
}

func (m *Memory) Write(_ context.Context, p *catalog.Product) (Decision, error) {
	fp := fingerprint.Compute(p)
	key := naturalKey{p.BrandSlug, p.ExternalID}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.records[key]
	if ok && fingerprint.Equal(existing.fingerprint, fp) {
		return DecisionSkipped, nil
	}

	m.records[key] = memoryRecord{product: p.Clone(), fingerprint: fp}
	if ok {
		return DecisionUpdated, nil
	}
	return DecisionCreated, nil
}

func (m *Memory) ListByBrand(_ context.Context, brandSlug string, limit, offset int) ([]*catalog.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*catalog.Product
	for key, rec := range m.records {
		if key.brandSlug == brandSlug {
			out = append(out, rec.product.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExternalID < out[j].ExternalID })

	if offset > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) CountByBrand(_ context.Context, brandSlug string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for key := range m.records {
		if key.brandSlug == brandSlug {
			n++
		}
	}
	return n, nil
}

// Len reports how many products are stored, across all brands.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func (m *Memory) Ping(_ context.Context) error { return nil }

func (m *Memory) Close() {}
