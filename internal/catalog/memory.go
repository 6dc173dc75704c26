package catalog

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryLookup is an in-process catalog used for local runs seeded from a
// file and for tests.
type MemoryLookup struct {
	mu       sync.RWMutex
	products map[string]Product
}

var _ Lookup = (*MemoryLookup)(nil)

func NewMemoryLookup(products ...Product) *MemoryLookup {
	m := &MemoryLookup{products: make(map[string]Product)}
	m.Put(products...)
	return m
}

// Put inserts or replaces products by id.
func (m *MemoryLookup) Put(products ...Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range products {
		m.products[p.ID] = p
	}
}

func (m *MemoryLookup) FindActiveByTenant(_ context.Context, tenantID string) ([]Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Product
	for _, p := range m.products {
		if p.TenantID == tenantID && p.Active {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

func (m *MemoryLookup) FindByID(_ context.Context, id string) (*Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}
