package catalog

import "context"

// Repository defines read access to the product catalogue.
type Repository interface {
	// List returns products ordered by SKU, optionally filtered by category.
	List(ctx context.Context, category string, activeOnly bool) ([]*Product, error)
	// GetBySKU fails with errs.ErrNotFound for an unknown SKU.
	GetBySKU(ctx context.Context, sku string) (*Product, error)
}
