package payment

import (
	"context"
	"log/slog"
	"time"

	"github.com/georgemunganga/printa-storefront/internal/kit/errs"
	"golang.org/x/time/rate"
)

// StatusChecker is the part of Gateway the poller needs.
type StatusChecker interface {
	PollStatus(ctx context.Context, transactionID string) (*StatusResult, error)
}

// Poller is the request/response fallback for learning a payment's outcome when the
// realtime channel is down.
type Poller struct {
	checker  StatusChecker
	interval time.Duration
	logger   *slog.Logger
}

// NewPoller creates a poller that queries at most once per interval.
func NewPoller(checker StatusChecker, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{checker: checker, interval: interval, logger: logger}
}

// Await polls until the transaction reaches a terminal status or ctx ends. Transport
// failures are retried at the polling pace; auth and not-found failures end the wait.
func (p *Poller) Await(ctx context.Context, transactionID string) (*StatusResult, error) {
	limiter := rate.NewLimiter(rate.Every(p.interval), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}

		res, err := p.checker.PollStatus(ctx, transactionID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errs.IsAuth(err) || errs.IsNotFound(err) {
				return nil, err
			}
			p.logger.Warn("payment status poll failed", "transaction_id", transactionID, "error", err)
			continue
		}
		if res.Status.Terminal() {
			return res, nil
		}
		p.logger.Debug("payment still pending", "transaction_id", transactionID, "status", res.Status)
	}
}
