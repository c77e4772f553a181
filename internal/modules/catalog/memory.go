package catalog

import (
	"context"
	"sort"
	"sync"

	"github.com/georgemunganga/printa-storefront/internal/kit/errs"
)

type memoryRepo struct {
	mu       sync.RWMutex
	products map[string]*Product
}

// NewMemoryRepository returns a Repository over a fixed product list.
func NewMemoryRepository(products []*Product) Repository {
	r := &memoryRepo{products: make(map[string]*Product, len(products))}
	for _, p := range products {
		cp := *p
		r.products[NormaliseSKU(p.SKU)] = &cp
	}
	return r
}

func (r *memoryRepo) List(ctx context.Context, category string, activeOnly bool) ([]*Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Product
	for _, p := range r.products {
		if category != "" && p.Category != category {
			continue
		}
		if activeOnly && !p.IsActive {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out, nil
}

func (r *memoryRepo) GetBySKU(ctx context.Context, sku string) (*Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.products[NormaliseSKU(sku)]
	if !ok {
		return nil, errs.Newf(errs.ErrNotFound, "product %s not found", sku)
	}
	cp := *p
	return &cp, nil
}
