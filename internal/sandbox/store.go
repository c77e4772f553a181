package sandbox

import (
	"context"

	"github.com/georgemunganga/printa-storefront/internal/modules/order"
	"github.com/google/uuid"
)

// Store persists orders and payment transactions. Lookups of unknown records fail
// with errs.ErrNotFound.
type Store interface {
	CreateOrder(ctx context.Context, o *order.Order) error
	GetOrder(ctx context.Context, id uuid.UUID) (*order.Order, error)
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, status order.Status) error

	CreatePayment(ctx context.Context, tx *Transaction) error
	GetPayment(ctx context.Context, id uuid.UUID) (*Transaction, error)
	GetPaymentByIdempotencyKey(ctx context.Context, key string) (*Transaction, error)
	GetPaymentByProviderRef(ctx context.Context, provider Provider, ref string) (*Transaction, error)
	ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]*Transaction, error)
	UpdatePayment(ctx context.Context, tx *Transaction) error
}
