package checkout

import (
	"context"

	"github.com/georgemunganga/printa-storefront/internal/modules/order"
	"github.com/georgemunganga/printa-storefront/internal/modules/realtime"
	"github.com/shopspring/decimal"
)

// Events is the part of the realtime channel a checkout uses. *realtime.Channel
// satisfies it.
type Events interface {
	Connect(ctx context.Context) error
	Subscribe(event realtime.EventType, correlationID string, h realtime.Handler) realtime.Unsubscribe
	OnFailure(fn func(error)) realtime.Unsubscribe
}

// Cart is the shopping cart being checked out. *cart.Cart satisfies it.
type Cart interface {
	Lines() []order.LineItem
	Total() decimal.Decimal
	Clear()
}

// Selection is what the customer picked on the payment screen.
type Selection struct {
	Method order.PaymentMethod
	Phone  string
}
