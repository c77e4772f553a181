package checkout

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/facebookgo/clock"
	"github.com/georgemunganga/printa-storefront/internal/kit/errs"
	"github.com/georgemunganga/printa-storefront/internal/kit/observability"
	"github.com/georgemunganga/printa-storefront/internal/modules/order"
	"github.com/georgemunganga/printa-storefront/internal/modules/payment"
	"github.com/georgemunganga/printa-storefront/internal/modules/realtime"
)

const (
	// DefaultDeadline is how long the payer has to approve the prompt.
	DefaultDeadline = 120 * time.Second
	// DefaultTick is how often watchers get a fresh countdown.
	DefaultTick = time.Second
	// DefaultPollInterval paces status polling once the realtime channel is down.
	DefaultPollInterval = 5 * time.Second
)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock sets the clock behind the deadline and countdown.
func WithClock(c clock.Clock) Option { return func(o *Orchestrator) { o.clock = c } }

// WithDeadline overrides DefaultDeadline.
func WithDeadline(d time.Duration) Option { return func(o *Orchestrator) { o.deadline = d } }

// WithTick overrides DefaultTick.
func WithTick(d time.Duration) Option { return func(o *Orchestrator) { o.tick = d } }

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) Option { return func(o *Orchestrator) { o.pollInterval = d } }

// WithPhonePlan sets the numbering plan used to normalise and validate the payer's
// number. Zambia by default.
func WithPhonePlan(p payment.PhonePlan) Option { return func(o *Orchestrator) { o.plan = p } }

// WithLogger sets the logger. slog.Default() otherwise.
func WithLogger(l *slog.Logger) Option { return func(o *Orchestrator) { o.logger = l } }

// WithMetrics sets the counters the checkout reports to.
func WithMetrics(m *observability.Metrics) Option { return func(o *Orchestrator) { o.metrics = m } }

// Orchestrator drives one checkout from review to a paid (or cash) order. All state
// lives behind mu; event, timer and poller callbacks carry the token of the attempt
// they were started for and are dropped once that attempt is no longer active.
type Orchestrator struct {
	orders  order.Repository
	gateway payment.Gateway
	events  Events
	cart    Cart

	clock        clock.Clock
	deadline     time.Duration
	tick         time.Duration
	pollInterval time.Duration
	plan         payment.PhonePlan
	poller       *payment.Poller
	logger       *slog.Logger
	metrics      *observability.Metrics

	mu           sync.Mutex
	state        State
	reason       string
	notice       string
	delivery     order.Delivery
	order        *order.Order
	orderMethod  order.PaymentMethod
	seq          uint64
	active       uint64
	busy         bool
	cancelSubmit context.CancelFunc
	attempt      *Attempt
	last         *Attempt
	cartCleared  bool

	watchMu  sync.Mutex
	watchSeq uint64
	watchers map[uint64]func(View)
}

// New creates a checkout in the review state.
func New(orders order.Repository, gateway payment.Gateway, events Events, cart Cart, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		orders:       orders,
		gateway:      gateway,
		events:       events,
		cart:         cart,
		clock:        clock.New(),
		deadline:     DefaultDeadline,
		tick:         DefaultTick,
		pollInterval: DefaultPollInterval,
		plan:         payment.Zambia,
		state:        StateReview,
		watchers:     make(map[uint64]func(View)),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.metrics == nil {
		o.metrics = observability.NewMetrics()
	}
	o.poller = payment.NewPoller(gateway, o.pollInterval, o.logger)
	return o
}

// ── Transitions ───────────────────────────────────────────────────────────────

// ProceedToPayment confirms the delivery details and moves to the payment screen.
// A blank address keeps the checkout in review with a notice.
func (o *Orchestrator) ProceedToPayment(delivery order.Delivery) error {
	o.mu.Lock()
	if o.state != StateReview {
		state := o.state
		o.mu.Unlock()
		return errs.Newf(errs.ErrValidation, "cannot proceed to payment from %s", state)
	}
	delivery.Address = strings.TrimSpace(delivery.Address)
	var err error
	switch {
	case delivery.Address == "":
		err = errs.New(errs.ErrValidation, "Enter a delivery address")
	case len(o.cart.Lines()) == 0:
		err = errs.New(errs.ErrValidation, "Your cart is empty")
	}
	if err != nil {
		o.notice = errs.Reason(err)
		o.mu.Unlock()
		o.notify()
		return err
	}
	o.delivery = delivery
	o.notice = ""
	o.transitionLocked(StatePaymentSelection)
	o.mu.Unlock()
	o.notify()
	return nil
}

// Submit places the order and, for push payments, prompts the payer's handset. It
// returns once the checkout is in success (cash), processing (push) or error, or
// with an inline validation error while staying on the payment screen.
func (o *Orchestrator) Submit(ctx context.Context, sel Selection) error {
	o.mu.Lock()
	if o.state != StatePaymentSelection {
		state := o.state
		o.mu.Unlock()
		return errs.Newf(errs.ErrValidation, "cannot submit payment from %s", state)
	}
	if o.busy {
		o.mu.Unlock()
		return errs.New(errs.ErrValidation, "a payment is already being submitted")
	}

	var phone string
	var invalid error
	switch sel.Method {
	case order.MethodCash:
	case order.MethodPushPayment:
		phone = o.plan.Normalize(sel.Phone)
		if !o.plan.Validate(phone) {
			invalid = errs.New(errs.ErrValidation, "Enter a valid mobile money number")
		}
	default:
		invalid = errs.New(errs.ErrValidation, "Choose a payment method")
	}
	if invalid != nil {
		o.notice = errs.Reason(invalid)
		o.mu.Unlock()
		o.notify()
		return invalid
	}

	o.seq++
	token := o.seq
	o.active = token
	o.busy = true
	o.notice = ""
	submitCtx, cancel := context.WithCancel(ctx)
	o.cancelSubmit = cancel
	existing := o.order
	if existing != nil && o.orderMethod != sel.Method {
		existing = nil
	}
	delivery := o.delivery
	o.mu.Unlock()
	o.notify()
	defer cancel()

	ord := existing
	if ord == nil {
		created, err := o.orders.CreateOrder(submitCtx, order.CreateRequest{
			Items:         o.cart.Lines(),
			PaymentMethod: sel.Method,
			Delivery:      delivery,
		})
		if err != nil {
			return o.fail(token, err)
		}
		o.metrics.OrdersCreated.Add(1)
		o.logger.Info("order created", "order_id", created.ID, "order_number", created.OrderNumber, "method", sel.Method)

		o.mu.Lock()
		if o.active != token {
			o.mu.Unlock()
			return context.Canceled
		}
		o.order = created
		o.orderMethod = sel.Method
		o.mu.Unlock()
		ord = created
	}

	if sel.Method == order.MethodCash {
		o.complete(token)
		return nil
	}
	return o.pushPayment(submitCtx, token, ord, phone, existing != nil)
}

func (o *Orchestrator) pushPayment(ctx context.Context, token uint64, ord *order.Order, phone string, retried bool) error {
	orderID := ord.ID.String()
	att := newAttempt(token, orderID, phone, ord.Total)
	att.supersedes = retried

	o.mu.Lock()
	if o.active != token {
		o.mu.Unlock()
		return context.Canceled
	}
	o.attempt = att
	o.mu.Unlock()

	// Subscriptions are replayed by the channel once it connects, so the prompt is
	// never held back by a slow or failing connection.
	subs := []realtime.Unsubscribe{
		o.events.Subscribe(realtime.EventPaymentConfirmed, orderID, func(ev realtime.Event) { o.onEvent(token, ev) }),
		o.events.Subscribe(realtime.EventPaymentFailed, orderID, func(ev realtime.Event) { o.onEvent(token, ev) }),
		o.events.OnFailure(func(err error) { o.onChannelFailure(token, err) }),
	}
	connectCtx, stopConnect := context.WithCancel(context.Background())
	o.mu.Lock()
	if o.attempt != att {
		// cancelled while subscribing; the attempt was already torn down without these
		o.mu.Unlock()
		stopConnect()
		for _, unsub := range subs {
			unsub()
		}
		return context.Canceled
	}
	att.subs = subs
	att.stopConnect = stopConnect
	o.mu.Unlock()
	go o.connect(connectCtx, token, orderID)

	init, err := o.gateway.Initiate(ctx, orderID, phone, ord.Total)

	o.mu.Lock()
	if o.active != token || o.attempt != att {
		o.mu.Unlock()
		att.teardown()
		if err != nil {
			return err
		}
		return context.Canceled
	}
	if err != nil {
		att.Status = AttemptFailed
		o.attempt = nil
		o.last = att
		o.busy = false
		o.cancelSubmit = nil
		o.reason = userReason(err)
		o.transitionLocked(StateError)
		o.mu.Unlock()
		att.teardown()
		o.metrics.PaymentsFailed.Add(1)
		o.logger.Warn("payment initiation failed", "order_id", orderID, "error", err)
		o.notify()
		return err
	}

	att.TransactionID = init.TransactionID
	att.Deadline = o.clock.Now().Add(o.deadline)
	att.remaining = o.deadline
	att.timer = o.clock.AfterFunc(o.deadline, func() {
		o.resolve(token, outcome{status: AttemptTimedOut, source: "deadline"})
	})
	att.ticker = o.clock.Ticker(o.tick)
	go o.countdown(att)
	if att.pollWanted {
		o.startPollingLocked(att)
	}
	early := att.early
	att.early = nil
	o.busy = false
	o.cancelSubmit = nil
	o.transitionLocked(StateProcessing)
	o.mu.Unlock()

	o.metrics.PaymentsInitiated.Add(1)
	o.logger.Info("payment prompt dispatched", "order_id", orderID, "transaction_id", init.TransactionID, "deadline", o.deadline)
	o.notify()

	for _, out := range early {
		o.resolve(token, out)
	}
	return nil
}

// Retry goes back to the payment screen after an error. The next Submit starts a
// fresh attempt with a fresh deadline and transaction.
func (o *Orchestrator) Retry() error {
	o.mu.Lock()
	if o.state != StateError {
		state := o.state
		o.mu.Unlock()
		return errs.Newf(errs.ErrValidation, "cannot retry from %s", state)
	}
	o.reason = ""
	o.last = nil
	o.transitionLocked(StatePaymentSelection)
	o.mu.Unlock()
	o.notify()
	return nil
}

// Cancel abandons the current payment and returns to review. It also aborts a
// submission still in flight and steps back from the payment screen. The order stays
// on the server; the next submission creates a new one.
func (o *Orchestrator) Cancel() error {
	o.mu.Lock()
	switch o.state {
	case StateProcessing, StateError, StatePaymentSelection:
	default:
		state := o.state
		o.mu.Unlock()
		return errs.Newf(errs.ErrValidation, "cannot cancel from %s", state)
	}

	att := o.attempt
	wasProcessing := o.state == StateProcessing
	o.attempt = nil
	o.active = 0
	if o.cancelSubmit != nil {
		o.cancelSubmit()
		o.cancelSubmit = nil
	}
	o.busy = false
	if att != nil {
		att.Status = AttemptCancelled
		o.last = att
	}
	o.order = nil
	o.reason = ""
	o.notice = ""
	o.transitionLocked(StateReview)
	o.mu.Unlock()

	if att != nil {
		att.teardown()
	}
	if wasProcessing {
		o.metrics.PaymentsCancelled.Add(1)
		o.logger.Info("payment cancelled", "order_id", att.OrderID, "transaction_id", att.TransactionID)
	}
	o.notify()
	return nil
}

// Resume re-checks the deadline, typically after the host app returns from the
// background where timers may not have fired.
func (o *Orchestrator) Resume() {
	o.mu.Lock()
	att := o.attempt
	if o.state != StateProcessing || att == nil {
		o.mu.Unlock()
		return
	}
	expired := o.remainingLocked(att) <= 0
	o.mu.Unlock()

	if expired {
		o.resolve(att.Token, outcome{status: AttemptTimedOut, source: "resume"})
		return
	}
	o.notify()
}

// RefreshOrder reloads the placed order from the backend.
func (o *Orchestrator) RefreshOrder(ctx context.Context) (*order.Order, error) {
	o.mu.Lock()
	cur := o.order
	o.mu.Unlock()
	if cur == nil {
		return nil, errs.New(errs.ErrNotFound, "no order placed yet")
	}

	fresh, err := o.orders.GetOrder(ctx, cur.ID.String())
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	if o.order != nil && o.order.ID == fresh.ID {
		o.order = fresh
	}
	o.mu.Unlock()
	return fresh, nil
}

// ── Resolution ────────────────────────────────────────────────────────────────

func (o *Orchestrator) onEvent(token uint64, ev realtime.Event) {
	switch ev.Type {
	case realtime.EventPaymentConfirmed:
		var p realtime.PaymentConfirmed
		if err := ev.Decode(&p); err != nil {
			o.logger.Warn("malformed payment confirmation", "error", err)
			return
		}
		o.resolve(token, outcome{status: AttemptConfirmed, transactionID: p.TransactionID, receiptID: p.ReceiptID, source: "realtime"})
	case realtime.EventPaymentFailed:
		var p realtime.PaymentFailed
		if err := ev.Decode(&p); err != nil {
			o.logger.Warn("malformed payment failure", "error", err)
			return
		}
		o.resolve(token, outcome{status: AttemptFailed, transactionID: p.TransactionID, reason: p.Reason, source: "realtime"})
	}
}

// connect opens the realtime channel for an attempt in the background. Giving up
// switches the attempt to polling.
func (o *Orchestrator) connect(ctx context.Context, token uint64, orderID string) {
	err := o.events.Connect(ctx)
	if err == nil || ctx.Err() != nil {
		return
	}
	o.logger.Warn("realtime channel unavailable", "order_id", orderID, "error", err)
	o.onChannelFailure(token, err)
}

func (o *Orchestrator) onChannelFailure(token uint64, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	att := o.attempt
	if att == nil || att.Token != token {
		return
	}
	o.logger.Warn("realtime channel down during payment, polling for status", "order_id", att.OrderID, "error", err)
	if att.TransactionID == "" {
		att.pollWanted = true
		return
	}
	o.startPollingLocked(att)
}

// resolve applies the first outcome of the active attempt. Anything for another
// attempt, for another transaction, or after the attempt ended is dropped.
func (o *Orchestrator) resolve(token uint64, out outcome) {
	o.mu.Lock()
	att := o.attempt
	if att == nil || att.Token != token || o.active != token {
		o.mu.Unlock()
		o.logger.Debug("stale payment outcome ignored", "status", out.status, "source", out.source, "transaction_id", out.transactionID)
		return
	}
	if att.TransactionID == "" {
		// prompt not dispatched yet; replayed once Initiate returns
		att.early = append(att.early, out)
		o.mu.Unlock()
		return
	}
	switch out.status {
	case AttemptConfirmed:
		if out.transactionID != att.TransactionID {
			o.mu.Unlock()
			o.logger.Debug("confirmation for another transaction ignored", "transaction_id", out.transactionID, "active", att.TransactionID)
			return
		}
	case AttemptFailed:
		if out.transactionID == "" && att.supersedes {
			o.mu.Unlock()
			o.logger.Debug("failure without transaction id ignored on a retried order", "order_id", att.OrderID, "active", att.TransactionID)
			return
		}
		if out.transactionID != "" && out.transactionID != att.TransactionID {
			o.mu.Unlock()
			o.logger.Debug("failure for another transaction ignored", "transaction_id", out.transactionID, "active", att.TransactionID)
			return
		}
	}

	o.attempt = nil
	o.last = att
	att.Status = out.status
	clearCart := false
	switch out.status {
	case AttemptConfirmed:
		att.ReceiptID = out.receiptID
		clearCart = o.markCartClearedLocked()
		o.transitionLocked(StateSuccess)
	case AttemptFailed:
		o.reason = out.reason
		if o.reason == "" {
			o.reason = "The payment was declined"
		}
		o.transitionLocked(StateError)
	case AttemptTimedOut:
		o.reason = "The payment timed out before it was approved"
		o.transitionLocked(StateError)
	}
	o.mu.Unlock()

	att.teardown()
	if clearCart {
		o.cart.Clear()
	}
	switch out.status {
	case AttemptConfirmed:
		o.metrics.PaymentsConfirmed.Add(1)
		o.logger.Info("payment confirmed", "order_id", att.OrderID, "transaction_id", att.TransactionID, "receipt_id", att.ReceiptID, "source", out.source)
	case AttemptFailed:
		o.metrics.PaymentsFailed.Add(1)
		o.logger.Warn("payment failed", "order_id", att.OrderID, "transaction_id", att.TransactionID, "reason", out.reason, "source", out.source)
	case AttemptTimedOut:
		o.metrics.PaymentsTimedOut.Add(1)
		o.logger.Warn("payment timed out", "order_id", att.OrderID, "transaction_id", att.TransactionID)
	}
	o.notify()
}

// complete finishes a cash checkout.
func (o *Orchestrator) complete(token uint64) {
	o.mu.Lock()
	if o.active != token {
		o.mu.Unlock()
		return
	}
	o.busy = false
	o.cancelSubmit = nil
	clearCart := o.markCartClearedLocked()
	o.transitionLocked(StateSuccess)
	o.mu.Unlock()

	if clearCart {
		o.cart.Clear()
	}
	o.notify()
}

// fail ends a submission that broke before a payment was initiated.
func (o *Orchestrator) fail(token uint64, err error) error {
	o.mu.Lock()
	if o.active != token {
		o.mu.Unlock()
		return err
	}
	o.busy = false
	o.cancelSubmit = nil
	if errs.IsValidation(err) {
		o.notice = errs.Reason(err)
	} else {
		o.reason = userReason(err)
		o.transitionLocked(StateError)
	}
	o.mu.Unlock()

	o.logger.Warn("order creation failed", "error", err)
	o.notify()
	return err
}

// countdown refreshes watchers every tick. Expiry itself belongs to the deadline timer
// and to Resume.
func (o *Orchestrator) countdown(att *Attempt) {
	for {
		select {
		case <-att.done:
			return
		case <-att.ticker.C:
			o.mu.Lock()
			current := o.attempt == att
			o.mu.Unlock()
			if !current {
				return
			}
			o.notify()
		}
	}
}

func (o *Orchestrator) startPollingLocked(att *Attempt) {
	if att.stopPoll != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	att.stopPoll = cancel
	o.metrics.PollFallbacks.Add(1)

	token, txID := att.Token, att.TransactionID
	go func() {
		res, err := o.poller.Await(ctx, txID)
		if err != nil {
			if ctx.Err() == nil {
				o.logger.Warn("payment status polling stopped", "transaction_id", txID, "error", err)
			}
			return
		}
		switch res.Status {
		case payment.TxSuccess:
			o.resolve(token, outcome{status: AttemptConfirmed, transactionID: txID, receiptID: res.ReceiptID, source: "poll"})
		case payment.TxFailed, payment.TxCancelled:
			o.resolve(token, outcome{status: AttemptFailed, transactionID: txID, reason: res.Reason, source: "poll"})
		}
	}()
}

// remainingLocked derives the time left from the absolute deadline. It never grows,
// even if the wall clock is set back.
func (o *Orchestrator) remainingLocked(att *Attempt) time.Duration {
	left := att.Deadline.Sub(o.clock.Now())
	if left < 0 {
		left = 0
	}
	if left > att.remaining {
		left = att.remaining
	}
	att.remaining = left
	return left
}

func (o *Orchestrator) markCartClearedLocked() bool {
	if o.cartCleared {
		return false
	}
	o.cartCleared = true
	return true
}

func (o *Orchestrator) transitionLocked(to State) {
	if o.state == to {
		return
	}
	if !o.state.CanTransition(to) {
		o.logger.Error("illegal checkout transition", "from", o.state, "to", to)
		return
	}
	o.logger.Debug("checkout transition", "from", o.state, "to", to)
	o.state = to
}

// userReason turns a failure into the message shown on the error screen.
func userReason(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "The request was interrupted. Try again."
	case errs.IsAuth(err):
		return "Your session has expired. Sign in again."
	case errs.IsTransport(err):
		return "Could not reach the store. Check your connection and try again."
	default:
		return errs.Reason(err)
	}
}
