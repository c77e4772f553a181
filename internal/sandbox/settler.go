package sandbox

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/facebookgo/clock"
	"github.com/georgemunganga/printa-storefront/internal/kit/errs"
	"github.com/google/uuid"
)

// Outcome is how a simulated payer answers the prompt.
type Outcome string

const (
	OutcomeApprove Outcome = "approve"
	OutcomeDecline Outcome = "decline"
	// OutcomeIgnore never settles, so the storefront's deadline expires.
	OutcomeIgnore Outcome = "ignore"
)

// ParseOutcome accepts approve, decline and ignore.
func ParseOutcome(s string) (Outcome, bool) {
	switch o := Outcome(strings.ToLower(strings.TrimSpace(s))); o {
	case OutcomeApprove, OutcomeDecline, OutcomeIgnore:
		return o, true
	}
	return "", false
}

// OutcomeFor applies the test-number conventions: numbers ending in 0000 decline and
// numbers ending in 9999 never answer. Everything else gets fallback.
func OutcomeFor(phone string, fallback Outcome) Outcome {
	switch {
	case strings.HasSuffix(phone, "0000"):
		return OutcomeDecline
	case strings.HasSuffix(phone, "9999"):
		return OutcomeIgnore
	}
	return fallback
}

// WebhookFunc delivers a provider callback to the backend.
type WebhookFunc func(ctx context.Context, provider Provider, payload WebhookPayload) error

// Settler plays the payer and the provider: after a delay it settles the provider-side
// status of each initiated payment and calls the backend webhook, the way a real
// provider would.
type Settler struct {
	clock   clock.Clock
	ledger  *ledger
	after   time.Duration
	outcome Outcome
	deliver WebhookFunc
	logger  *slog.Logger

	mu     sync.Mutex
	timers map[uuid.UUID]*clock.Timer
	closed bool
}

func newSettler(clk clock.Clock, l *ledger, after time.Duration, outcome Outcome, deliver WebhookFunc, logger *slog.Logger) *Settler {
	return &Settler{
		clock:   clk,
		ledger:  l,
		after:   after,
		outcome: outcome,
		deliver: deliver,
		logger:  logger,
		timers:  map[uuid.UUID]*clock.Timer{},
	}
}

// Schedule arranges the settlement of a freshly initiated transaction.
func (s *Settler) Schedule(tx *Transaction) {
	outcome := OutcomeFor(tx.PhoneNumber, s.outcome)
	if outcome == OutcomeIgnore {
		s.logger.Info("payment will not be settled", "transaction_id", tx.ID, "phone", tx.PhoneNumber)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	id, provider, ref := tx.ID, tx.Provider, tx.ProviderRef
	s.timers[id] = s.clock.AfterFunc(s.after, func() {
		s.mu.Lock()
		delete(s.timers, id)
		s.mu.Unlock()
		if err := s.settle(context.Background(), provider, ref, outcome, ""); err != nil {
			s.logger.Warn("scheduled settlement failed", "transaction_id", id, "error", err)
		}
	})
}

// Settle forces the outcome of a pending transaction now.
func (s *Settler) Settle(ctx context.Context, tx *Transaction, outcome Outcome, reason string) error {
	if outcome == OutcomeIgnore {
		return errs.New(errs.ErrValidation, "outcome must be approve or decline")
	}
	s.mu.Lock()
	if t, ok := s.timers[tx.ID]; ok {
		t.Stop()
		delete(s.timers, tx.ID)
	}
	s.mu.Unlock()
	return s.settle(ctx, tx.Provider, tx.ProviderRef, outcome, reason)
}

func (s *Settler) settle(ctx context.Context, provider Provider, ref string, outcome Outcome, reason string) error {
	codes, ok := providerCodes[provider]
	if !ok {
		return errs.Newf(errs.ErrValidation, "provider %s cannot be settled", provider)
	}
	status := codes[1]
	if outcome == OutcomeDecline {
		status = codes[2]
		if reason == "" {
			reason = "The payer declined the request"
		}
	}
	if !s.ledger.settle(ref, status, reason, codes[0]) {
		return errs.Newf(errs.ErrValidation, "%s is not pending", ref)
	}
	s.logger.Info("provider settled payment", "provider", provider, "provider_ref", ref, "status", status)
	return s.deliver(ctx, provider, WebhookPayload{ExternalRef: ref, Status: status, Reason: reason})
}

// Pending reports how many settlements are still scheduled.
func (s *Settler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels every scheduled settlement.
func (s *Settler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}
