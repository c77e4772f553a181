package payment

import (
	"github.com/shopspring/decimal"
)

// TxStatus is the status of a push-payment transaction as reported by the status endpoint.
type TxStatus string

const (
	TxPending   TxStatus = "pending"
	TxSuccess   TxStatus = "success"
	TxFailed    TxStatus = "failed"
	TxCancelled TxStatus = "cancelled"
)

// Terminal reports whether the payer can no longer change the outcome.
func (s TxStatus) Terminal() bool {
	return s == TxSuccess || s == TxFailed || s == TxCancelled
}

// ── Request/Response DTOs ─────────────────────────────────────────────────────

// InitiateRequest is the payload to start a push payment for an order.
type InitiateRequest struct {
	OrderID        string          `json:"order_id"`
	PhoneNumber    string          `json:"phone_number"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency,omitempty"` // defaults to ZMW
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

// Initiation is returned once the prompt has been dispatched to the payer's handset.
type Initiation struct {
	TransactionID string   `json:"transaction_id"`
	Status        TxStatus `json:"status"`
	Message       string   `json:"message,omitempty"`
}

// StatusResult is the answer of a status poll.
type StatusResult struct {
	TransactionID string   `json:"transaction_id"`
	Status        TxStatus `json:"status"`
	ReceiptID     string   `json:"receipt_id,omitempty"`
	Reason        string   `json:"reason,omitempty"`
}
