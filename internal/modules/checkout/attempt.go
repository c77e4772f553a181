package checkout

import (
	"context"
	"sync"
	"time"

	"github.com/facebookgo/clock"
	"github.com/georgemunganga/printa-storefront/internal/modules/realtime"
	"github.com/shopspring/decimal"
)

// AttemptStatus is the outcome of one push-payment attempt.
type AttemptStatus string

const (
	AttemptInitiated AttemptStatus = "initiated"
	AttemptConfirmed AttemptStatus = "confirmed"
	AttemptFailed    AttemptStatus = "failed"
	AttemptTimedOut  AttemptStatus = "timed_out"
	AttemptCancelled AttemptStatus = "cancelled"
)

// Attempt is one push payment for an order. A retry never reuses an attempt.
type Attempt struct {
	Token         uint64
	OrderID       string
	TransactionID string
	Phone         string
	Amount        decimal.Decimal
	Status        AttemptStatus
	ReceiptID     string
	Deadline      time.Time

	subs     []realtime.Unsubscribe
	timer    *clock.Timer
	ticker   *clock.Ticker
	stopPoll context.CancelFunc
	// cancels the background channel connect
	stopConnect context.CancelFunc
	// an earlier attempt on the same order may still emit failures without a
	// transaction id; those are not trusted for this one
	supersedes bool
	// set when the channel failed before the transaction id was known
	pollWanted bool
	early      []outcome
	remaining  time.Duration

	once sync.Once
	done chan struct{}
}

func newAttempt(token uint64, orderID, phone string, amount decimal.Decimal) *Attempt {
	return &Attempt{
		Token:   token,
		OrderID: orderID,
		Phone:   phone,
		Amount:  amount,
		Status:  AttemptInitiated,
		done:    make(chan struct{}),
	}
}

// teardown releases everything the attempt holds. Safe to call any number of times.
func (a *Attempt) teardown() {
	a.once.Do(func() {
		for _, unsub := range a.subs {
			unsub()
		}
		if a.timer != nil {
			a.timer.Stop()
		}
		if a.ticker != nil {
			a.ticker.Stop()
		}
		if a.stopPoll != nil {
			a.stopPoll()
		}
		if a.stopConnect != nil {
			a.stopConnect()
		}
		close(a.done)
	})
}

// outcome is a candidate resolution coming from an event, the poller or the deadline.
type outcome struct {
	status        AttemptStatus
	transactionID string
	receiptID     string
	reason        string
	source        string
}
