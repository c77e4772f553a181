package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// EventType names a server push.
type EventType string

const (
	EventPaymentConfirmed     EventType = "payment.confirmed"
	EventPaymentFailed        EventType = "payment.failed"
	EventOrderStatusChanged   EventType = "order.status_changed"
	EventRiderLocationUpdated EventType = "rider.location_updated"
)

// Event is a server → client frame. CorrelationID is the order or transaction the event
// is about.
type Event struct {
	Type          EventType       `json:"event"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data,omitempty"`
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("event %s has no payload", e.Type)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

// NewEvent builds an event with a JSON payload.
func NewEvent(t EventType, correlationID string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", t, err)
	}
	return Event{Type: t, CorrelationID: correlationID, Data: data}, nil
}

const (
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
)

// Command is a client → server frame telling the backend which streams to route to
// this connection.
type Command struct {
	Op            string    `json:"op"`
	Event         EventType `json:"event"`
	CorrelationID string    `json:"correlation_id"`
}

// ── Payloads ──────────────────────────────────────────────────────────────────

// PaymentConfirmed is pushed when the payer approved the prompt and funds settled.
type PaymentConfirmed struct {
	OrderID       string          `json:"order_id"`
	TransactionID string          `json:"transaction_id"`
	ReceiptID     string          `json:"receipt_id"`
	Amount        decimal.Decimal `json:"amount"`
}

// PaymentFailed is pushed when the payer declined, the PIN was wrong, or the provider
// gave up. TransactionID is optional on the wire.
type PaymentFailed struct {
	OrderID       string `json:"order_id"`
	TransactionID string `json:"transaction_id,omitempty"`
	Reason        string `json:"reason"`
}

// OrderStatusChanged is pushed by the delivery flow.
type OrderStatusChanged struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// RiderLocationUpdated is pushed while an order is in transit.
type RiderLocationUpdated struct {
	OrderID string  `json:"order_id"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
}
