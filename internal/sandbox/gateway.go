package sandbox

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/facebookgo/clock"
	"github.com/georgemunganga/printa-storefront/internal/kit/errs"
	"github.com/georgemunganga/printa-storefront/internal/modules/payment"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Gateway is the provider-agnostic interface every payment adapter implements.
type Gateway interface {
	// Initiate sends a collection request to the provider and returns its reference.
	Initiate(ctx context.Context, req ProviderRequest) (*ProviderResponse, error)
	// Verify queries the provider for the current status of a transaction.
	Verify(ctx context.Context, providerRef string) (*ProviderResponse, error)
}

// GatewayRegistry maps provider names to their Gateway implementations.
type GatewayRegistry map[Provider]Gateway

// ErrInsufficientFloat is the provider's answer when the collection account cannot
// take the amount.
var ErrInsufficientFloat = errs.New(errs.ErrGateway, "insufficient float")

// ledger is the simulated provider-side state shared by the stub adapters. Settle moves a
// reference to its final provider status.
type ledger struct {
	clock      clock.Clock
	floatLimit decimal.Decimal

	mu       sync.Mutex
	statuses map[string]providerState
}

type providerState struct {
	status string
	reason string
}

func newLedger(clk clock.Clock, floatLimit decimal.Decimal) *ledger {
	return &ledger{clock: clk, floatLimit: floatLimit, statuses: map[string]providerState{}}
}

func (l *ledger) open(prefix string, req ProviderRequest, pending string) (string, error) {
	if req.PhoneNumber == "" {
		return "", errs.New(errs.ErrValidation, "phone_number is required")
	}
	if !req.Amount.IsPositive() {
		return "", errs.New(errs.ErrValidation, "amount must be greater than 0")
	}
	if l.floatLimit.IsPositive() && req.Amount.GreaterThan(l.floatLimit) {
		return "", ErrInsufficientFloat
	}
	ref := fmt.Sprintf("%s-%s-%s", prefix, l.clock.Now().UTC().Format("20060102150405"),
		strings.ToUpper(uuid.NewString()[:4]))

	l.mu.Lock()
	defer l.mu.Unlock()
	l.statuses[ref] = providerState{status: pending}
	return ref, nil
}

func (l *ledger) state(ref string) (providerState, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.statuses[ref]
	return st, ok
}

// settle records a final provider status. It reports false when ref is unknown or
// already final.
func (l *ledger) settle(ref, status, reason string, pending string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.statuses[ref]
	if !ok || st.status != pending {
		return false
	}
	l.statuses[ref] = providerState{status: status, reason: reason}
	return true
}

// ── MTN Mobile Money Adapter ──────────────────────────────────────────────────
// Statuses follow the MoMo Collections API: PENDING, SUCCESSFUL, FAILED.

type mtnMomoGateway struct{ ledger *ledger }

func (g *mtnMomoGateway) simulated() {}

func (g *mtnMomoGateway) Initiate(ctx context.Context, req ProviderRequest) (*ProviderResponse, error) {
	ref, err := g.ledger.open("MTN", req, "PENDING")
	if err != nil {
		return nil, err
	}
	return &ProviderResponse{
		ProviderRef:    ref,
		ProviderStatus: "PENDING",
		Message:        fmt.Sprintf("Payment request sent to %s. Awaiting customer approval.", req.PhoneNumber),
	}, nil
}

func (g *mtnMomoGateway) Verify(ctx context.Context, providerRef string) (*ProviderResponse, error) {
	st, ok := g.ledger.state(providerRef)
	if !ok {
		return nil, errs.Newf(errs.ErrNotFound, "unknown MTN reference %s", providerRef)
	}
	return &ProviderResponse{ProviderRef: providerRef, ProviderStatus: st.status, Reason: st.reason}, nil
}

// ── Airtel Money Adapter ──────────────────────────────────────────────────────
// Statuses follow Airtel's codes: DP (debit pending), TS (successful), TF (failed).

type airtelMoneyGateway struct{ ledger *ledger }

func (g *airtelMoneyGateway) simulated() {}

func (g *airtelMoneyGateway) Initiate(ctx context.Context, req ProviderRequest) (*ProviderResponse, error) {
	ref, err := g.ledger.open("ATL", req, "DP")
	if err != nil {
		return nil, err
	}
	return &ProviderResponse{
		ProviderRef:    ref,
		ProviderStatus: "DP",
		Message:        fmt.Sprintf("Airtel Money request sent to %s. Awaiting PIN confirmation.", req.PhoneNumber),
	}, nil
}

func (g *airtelMoneyGateway) Verify(ctx context.Context, providerRef string) (*ProviderResponse, error) {
	st, ok := g.ledger.state(providerRef)
	if !ok {
		return nil, errs.Newf(errs.ErrNotFound, "unknown Airtel reference %s", providerRef)
	}
	return &ProviderResponse{ProviderRef: providerRef, ProviderStatus: st.status, Reason: st.reason}, nil
}

// providerCodes are the pending, success and failure statuses of each provider.
var providerCodes = map[Provider][3]string{
	ProviderMTNMomo: {"PENDING", "SUCCESSFUL", "FAILED"},
	ProviderAirtel:  {"DP", "TS", "TF"},
}

// ProviderFor picks the provider serving a canonical payer number.
func ProviderFor(canonical string) (Provider, bool) {
	p := Provider(payment.Carrier(canonical))
	return p, p != ""
}

// ── Status Normaliser ─────────────────────────────────────────────────────────
// Maps provider-specific status strings to the status the storefront sees.

func NormaliseStatus(provider Provider, providerStatus string) payment.TxStatus {
	s := strings.ToUpper(providerStatus)
	switch provider {
	case ProviderMTNMomo:
		switch s {
		case "SUCCESSFUL":
			return payment.TxSuccess
		case "FAILED", "REJECTED":
			return payment.TxFailed
		default:
			return payment.TxPending
		}
	case ProviderAirtel:
		switch s {
		case "TS": // Transaction Successful
			return payment.TxSuccess
		case "TF": // Transaction Failed
			return payment.TxFailed
		default:
			return payment.TxPending
		}
	default:
		return payment.TxPending
	}
}
