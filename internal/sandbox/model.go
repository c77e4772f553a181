package sandbox

import (
	"time"

	"github.com/georgemunganga/printa-storefront/internal/modules/payment"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Provider names a mobile-money network.
type Provider string

const (
	ProviderMTNMomo Provider = "MTN_MOMO"
	ProviderAirtel  Provider = "AIRTEL_MONEY"
	ProviderZamtel  Provider = "ZAMTEL_KWACHA"
)

// Transaction is the backend record of one push-payment attempt. Its ID is the
// transaction id the storefront sees.
type Transaction struct {
	ID             uuid.UUID        `json:"id"`
	OrderID        uuid.UUID        `json:"order_id"`
	CustomerID     uuid.UUID        `json:"customer_id"`
	Provider       Provider         `json:"provider"`
	ProviderRef    string           `json:"provider_ref,omitempty"`
	ProviderStatus string           `json:"provider_status,omitempty"`
	Status         payment.TxStatus `json:"status"`
	Amount         decimal.Decimal  `json:"amount"`
	Currency       string           `json:"currency"`
	PhoneNumber    string           `json:"phone_number"`
	IdempotencyKey string           `json:"idempotency_key,omitempty"`
	ReceiptID      string           `json:"receipt_id,omitempty"`
	LastError      string           `json:"last_error,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// Result renders the transaction as the status endpoint reports it.
func (t *Transaction) Result() *payment.StatusResult {
	return &payment.StatusResult{
		TransactionID: t.ID.String(),
		Status:        t.Status,
		ReceiptID:     t.ReceiptID,
		Reason:        t.LastError,
	}
}

// ── Provider DTOs ─────────────────────────────────────────────────────────────

// ProviderRequest is what the backend sends a provider to prompt a payer.
type ProviderRequest struct {
	Reference   string
	PhoneNumber string
	Amount      decimal.Decimal
	Currency    string
}

// ProviderResponse is what a gateway adapter returns after initiating or verifying.
type ProviderResponse struct {
	ProviderRef    string `json:"provider_ref"`
	ProviderStatus string `json:"provider_status"`
	Message        string `json:"message,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

// WebhookPayload is the inbound callback from a provider.
type WebhookPayload struct {
	ExternalRef string                 `json:"external_ref"`
	Status      string                 `json:"status"`
	Reason      string                 `json:"reason,omitempty"`
	RawPayload  map[string]interface{} `json:"raw_payload,omitempty"`
}

// ── Admin DTOs ────────────────────────────────────────────────────────────────

// SettleRequest forces the outcome of a pending payment.
type SettleRequest struct {
	Outcome string `json:"outcome"` // approve | decline
	Reason  string `json:"reason,omitempty"`
}

// RiderLocation is a rider position pushed for an order in transit.
type RiderLocation struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}
