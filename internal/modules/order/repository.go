package order

import (
	"context"
	"fmt"
	"strings"

	"github.com/georgemunganga/printa-storefront/internal/kit/errs"
)

// Repository creates and reads orders on the backend. It performs no retries; retry
// policy belongs to the caller.
type Repository interface {
	// CreateOrder places a new order. Fails with errs.ErrValidation for an empty cart or a
	// blank address, errs.ErrAuth without a valid session and errs.ErrTransport on
	// network or server failure.
	CreateOrder(ctx context.Context, req CreateRequest) (*Order, error)

	// GetOrder fetches an order by id. Fails with errs.ErrNotFound when unknown.
	GetOrder(ctx context.Context, id string) (*Order, error)
}

// Validate checks what the caller is responsible for before any request is sent.
func (r CreateRequest) Validate() error {
	if len(r.Items) == 0 {
		return errs.New(errs.ErrValidation, "order must contain at least one item")
	}
	for _, it := range r.Items {
		if strings.TrimSpace(it.ProductID) == "" {
			return errs.New(errs.ErrValidation, "product_id is required for every item")
		}
		if it.Quantity <= 0 {
			return errs.New(errs.ErrValidation, fmt.Sprintf("quantity must be > 0 for product %s", it.ProductID))
		}
	}
	if strings.TrimSpace(r.Delivery.Address) == "" {
		return errs.New(errs.ErrValidation, "delivery address is required")
	}
	switch r.PaymentMethod {
	case MethodCash, MethodPushPayment:
	default:
		return errs.New(errs.ErrValidation, fmt.Sprintf("unsupported payment method %q", r.PaymentMethod))
	}
	return nil
}
