package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/georgemunganga/printa-storefront/internal/kit/errs"
	"github.com/georgemunganga/printa-storefront/internal/kit/httpx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Gateway is the client side of the push-payment API.
type Gateway interface {
	// Initiate asks the provider to prompt the payer. It returns as soon as the prompt
	// is dispatched and does not wait for the payer to approve or deny it. A provider
	// rejection comes back as an errs.ErrGateway error carrying the provider's reason.
	Initiate(ctx context.Context, orderID, phone string, amount decimal.Decimal) (*Initiation, error)
	// PollStatus queries the current status of a transaction.
	PollStatus(ctx context.Context, transactionID string) (*StatusResult, error)
}

type httpGateway struct {
	client   *httpx.Client
	plan     PhonePlan
	currency string
}

// NewHTTPGateway returns a Gateway backed by the storefront API. client must carry the
// bearer credential.
func NewHTTPGateway(client *httpx.Client, plan PhonePlan, currency string) Gateway {
	if currency == "" {
		currency = "ZMW"
	}
	return &httpGateway{client: client, plan: plan, currency: currency}
}

func (g *httpGateway) Initiate(ctx context.Context, orderID, phone string, amount decimal.Decimal) (*Initiation, error) {
	if orderID == "" {
		return nil, errs.New(errs.ErrValidation, "order_id is required")
	}
	canonical := g.plan.Normalize(phone)
	if !g.plan.Validate(canonical) {
		return nil, errs.Newf(errs.ErrValidation, "%q is not a valid mobile money number", phone)
	}

	req := InitiateRequest{
		OrderID:        orderID,
		PhoneNumber:    canonical,
		Amount:         amount,
		Currency:       g.currency,
		IdempotencyKey: uuid.NewString(),
	}
	resp := &Initiation{}
	if err := g.client.Do(ctx, http.MethodPost, "/api/v1/payments", req, resp); err != nil {
		return nil, gatewayError(err)
	}
	if resp.TransactionID == "" {
		return nil, errs.New(errs.ErrGateway, "provider did not return a transaction id")
	}
	return resp, nil
}

func (g *httpGateway) PollStatus(ctx context.Context, transactionID string) (*StatusResult, error) {
	if transactionID == "" {
		return nil, errs.New(errs.ErrValidation, "transaction id is required")
	}
	res := &StatusResult{}
	if err := g.client.Do(ctx, http.MethodGet, "/api/v1/payments/"+url.PathEscape(transactionID), nil, res); err != nil {
		return nil, fmt.Errorf("poll payment %s: %w", transactionID, err)
	}
	return res, nil
}

// gatewayError maps provider-side failures of the initiate endpoint to errs.ErrGateway.
// 402 is a provider rejection and 502/503 mean the provider could not be reached.
func gatewayError(err error) error {
	if errors.Is(err, errs.ErrGateway) {
		return err
	}
	switch httpx.StatusCode(err) {
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		return errs.Wrap(errs.ErrGateway, errs.Reason(err), err)
	}
	return fmt.Errorf("initiate payment: %w", err)
}
