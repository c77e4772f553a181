package catalog

import (
	"context"
	"fmt"

	"github.com/georgemunganga/printa-storefront/internal/kit/errs"
	"github.com/georgemunganga/printa-storefront/internal/modules/order"
	"github.com/shopspring/decimal"
)

// PricedLine is an order line resolved against the catalogue.
type PricedLine struct {
	Product  *Product
	Quantity int
	Amount   decimal.Decimal
}

// Service defines catalogue business logic.
type Service interface {
	ListProducts(ctx context.Context, category string, activeOnly bool) ([]*Product, error)
	GetProduct(ctx context.Context, sku string) (*Product, error)
	// Price resolves every line to an active product and returns the priced lines and
	// their subtotal. Unknown or inactive products fail with errs.ErrValidation.
	Price(ctx context.Context, items []order.LineItem) ([]PricedLine, decimal.Decimal, error)
}

type service struct{ repo Repository }

func NewService(repo Repository) Service { return &service{repo: repo} }

func (s *service) ListProducts(ctx context.Context, category string, activeOnly bool) ([]*Product, error) {
	return s.repo.List(ctx, category, activeOnly)
}

func (s *service) GetProduct(ctx context.Context, sku string) (*Product, error) {
	return s.repo.GetBySKU(ctx, sku)
}

func (s *service) Price(ctx context.Context, items []order.LineItem) ([]PricedLine, decimal.Decimal, error) {
	subtotal := decimal.Zero
	lines := make([]PricedLine, 0, len(items))
	for _, it := range items {
		if it.Quantity <= 0 {
			return nil, decimal.Zero, errs.Newf(errs.ErrValidation, "quantity must be > 0 for product %s", it.ProductID)
		}
		p, err := s.repo.GetBySKU(ctx, it.ProductID)
		if errs.IsNotFound(err) {
			return nil, decimal.Zero, errs.Newf(errs.ErrValidation, "unknown product %s", it.ProductID)
		}
		if err != nil {
			return nil, decimal.Zero, fmt.Errorf("price %s: %w", it.ProductID, err)
		}
		if !p.IsActive {
			return nil, decimal.Zero, errs.Newf(errs.ErrValidation, "product %s is not available", it.ProductID)
		}
		amount := p.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
		subtotal = subtotal.Add(amount)
		lines = append(lines, PricedLine{Product: p, Quantity: it.Quantity, Amount: amount})
	}
	return lines, subtotal, nil
}
