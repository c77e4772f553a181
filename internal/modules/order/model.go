package order

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status represents the lifecycle state of an order. Only the backend moves it.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusInTransit Status = "in_transit"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// statusRank orders the forward path. Cancelled sits outside it.
var statusRank = map[Status]int{
	StatusPending:   1,
	StatusApproved:  2,
	StatusInTransit: 3,
	StatusDelivered: 4,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := statusRank[s]
	return ok || s == StatusCancelled
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// CanAdvance reports whether a status pushed by the backend may replace s. The path is
// pending → approved → in_transit → delivered (skipping forward is fine when an event was
// missed), and cancelled is reachable from any state before delivered.
func (s Status) CanAdvance(to Status) bool {
	if !to.Valid() || s.Terminal() {
		return false
	}
	if to == StatusCancelled {
		return true
	}
	return statusRank[to] > statusRank[s]
}

// PaymentMethod is how the customer settles the order.
type PaymentMethod string

const (
	MethodCash        PaymentMethod = "cash"
	MethodPushPayment PaymentMethod = "push_payment"
)

// ParsePaymentMethod accepts the wire names plus the short forms the CLI uses.
func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cash":
		return MethodCash, true
	case "push_payment", "push", "momo", "mobile_money":
		return MethodPushPayment, true
	default:
		return "", false
	}
}

// Delivery is where and how the order is handed over.
type Delivery struct {
	Address string `json:"address"`
	Notes   string `json:"notes,omitempty"`
}

// LineItem is one product reference in an order.
type LineItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Order is the server's record of a checkout. Identifier, number and total are always
// assigned by the backend.
type Order struct {
	ID            uuid.UUID       `json:"id"`
	CustomerID    uuid.UUID       `json:"customer_id"`
	OrderNumber   string          `json:"order_number"`
	Items         []LineItem      `json:"items"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	Delivery      Delivery        `json:"delivery"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Tax           decimal.Decimal `json:"tax"`
	Total         decimal.Decimal `json:"total"`
	Currency      string          `json:"currency"`
	Status        Status          `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// CreateRequest is the payload for creating a new order.
type CreateRequest struct {
	CustomerID    string        `json:"customer_id,omitempty"`
	Items         []LineItem    `json:"items"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	Delivery      Delivery      `json:"delivery"`
}

// UpdateStatusRequest is the payload the backend's dispatch flow uses to advance an order.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}
