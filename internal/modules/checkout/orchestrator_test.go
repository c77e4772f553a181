package checkout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/facebookgo/clock"
	"github.com/georgemunganga/printa-storefront/internal/kit/errs"
	"github.com/georgemunganga/printa-storefront/internal/kit/observability"
	"github.com/georgemunganga/printa-storefront/internal/modules/order"
	"github.com/georgemunganga/printa-storefront/internal/modules/payment"
	"github.com/georgemunganga/printa-storefront/internal/modules/realtime"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	testPhone     = "0971234567"
	testCanonical = "260971234567"
)

type harness struct {
	t       *testing.T
	clk     *clock.Mock
	orders  *OrderRepositoryMock
	gateway *GatewayMock
	events  *fakeEvents
	cart    *fakeCart
	metrics *observability.Metrics
	o       *Orchestrator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		clk:     clock.NewMock(),
		orders:  new(OrderRepositoryMock),
		gateway: new(GatewayMock),
		events:  newFakeEvents(),
		cart:    newFakeCart(),
		metrics: observability.NewMetrics(),
	}
	h.o = New(h.orders, h.gateway, h.events, h.cart,
		WithClock(h.clk),
		WithLogger(observability.Discard()),
		WithMetrics(h.metrics),
		WithPollInterval(5*time.Millisecond),
	)
	return h
}

func newOrder(method order.PaymentMethod) *order.Order {
	return &order.Order{
		ID:            uuid.New(),
		OrderNumber:   "ORD-20261017-0001",
		PaymentMethod: method,
		Total:         decimal.RequireFromString("58.00"),
		Currency:      "ZMW",
		Status:        order.StatusPending,
	}
}

func (h *harness) toPaymentSelection() {
	h.t.Helper()
	require.NoError(h.t, h.o.ProceedToPayment(order.Delivery{Address: "Plot 12, Cairo Rd, Lusaka"}))
	require.Equal(h.t, StatePaymentSelection, h.o.State())
}

func (h *harness) expectInitiate(ord *order.Order, txID string) {
	h.gateway.On("Initiate", mock.Anything, ord.ID.String(), testCanonical, mock.Anything).
		Return(&payment.Initiation{TransactionID: txID, Status: payment.TxPending}, nil).Once()
}

// startPush drives a fresh checkout into processing for ord with transaction txID.
func (h *harness) startPush(ord *order.Order, txID string) {
	h.t.Helper()
	h.orders.On("CreateOrder", mock.Anything, mock.Anything).Return(ord, nil).Once()
	h.expectInitiate(ord, txID)
	h.toPaymentSelection()
	require.NoError(h.t, h.o.Submit(context.Background(), Selection{Method: order.MethodPushPayment, Phone: testPhone}))
	require.Equal(h.t, StateProcessing, h.o.State())
}

func (h *harness) confirm(ord *order.Order, txID string) {
	h.events.emit(realtime.EventPaymentConfirmed, ord.ID.String(), realtime.PaymentConfirmed{
		OrderID: ord.ID.String(), TransactionID: txID, ReceiptID: "RCPT-" + txID, Amount: ord.Total,
	})
}

func (h *harness) decline(ord *order.Order, txID, reason string) {
	h.events.emit(realtime.EventPaymentFailed, ord.ID.String(), realtime.PaymentFailed{
		OrderID: ord.ID.String(), TransactionID: txID, Reason: reason,
	})
}

// ── Scenarios ─────────────────────────────────────────────────────────────────

func TestOrchestrator_CashOrder(t *testing.T) {
	h := newHarness(t)
	ord := newOrder(order.MethodCash)
	h.orders.On("CreateOrder", mock.Anything, mock.MatchedBy(func(r order.CreateRequest) bool {
		return r.PaymentMethod == order.MethodCash && len(r.Items) == 1 && r.Delivery.Address != ""
	})).Return(ord, nil).Once()

	h.toPaymentSelection()
	require.NoError(t, h.o.Submit(context.Background(), Selection{Method: order.MethodCash}))

	v := h.o.Snapshot()
	assert.Equal(t, StateSuccess, v.State)
	assert.Equal(t, ord.ID.String(), v.OrderID)
	assert.Equal(t, 1, h.cart.clearCount())
	assert.Equal(t, 0, h.events.connectCount())
	h.gateway.AssertNotCalled(t, "Initiate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	h.orders.AssertExpectations(t)
}

func TestOrchestrator_PushConfirmedAfterFiveSeconds(t *testing.T) {
	h := newHarness(t)
	ord := newOrder(order.MethodPushPayment)
	h.startPush(ord, "T1")

	v := h.o.Snapshot()
	assert.Equal(t, 120*time.Second, v.Remaining)
	assert.Equal(t, "T1", v.TransactionID)
	assert.Equal(t, 3, h.events.live())

	h.clk.Add(5 * time.Second)
	assert.Equal(t, 115*time.Second, h.o.Snapshot().Remaining)

	h.confirm(ord, "T1")
	v = h.o.Snapshot()
	assert.Equal(t, StateSuccess, v.State)
	assert.Equal(t, "RCPT-T1", v.ReceiptID)
	assert.Equal(t, AttemptConfirmed, v.Attempt)
	assert.Equal(t, ord.ID.String(), v.OrderID)
	assert.Equal(t, 1, h.cart.clearCount())
	assert.Equal(t, 0, h.events.live())

	// the deadline timer is gone
	h.clk.Add(200 * time.Second)
	assert.Equal(t, StateSuccess, h.o.State())
	assert.EqualValues(t, 0, h.metrics.PaymentsTimedOut.Load())
	assert.EqualValues(t, 1, h.metrics.PaymentsConfirmed.Load())
}

func TestOrchestrator_TimeoutThenRetry(t *testing.T) {
	h := newHarness(t)
	ord := newOrder(order.MethodPushPayment)
	h.startPush(ord, "T1")

	h.clk.Add(120 * time.Second)
	v := h.o.Snapshot()
	require.Equal(t, StateError, v.State)
	assert.Contains(t, v.Reason, "timed out")
	assert.True(t, v.CanRetry)
	assert.True(t, v.CanCancel)
	assert.Equal(t, AttemptTimedOut, v.Attempt)
	assert.Equal(t, 0, h.events.live())
	assert.EqualValues(t, 1, h.metrics.PaymentsTimedOut.Load())

	// late confirmation of the abandoned attempt
	h.confirm(ord, "T1")
	assert.Equal(t, StateError, h.o.State())

	require.NoError(t, h.o.Retry())
	v = h.o.Snapshot()
	assert.Equal(t, StatePaymentSelection, v.State)
	assert.Empty(t, v.TransactionID)
	assert.Empty(t, v.Attempt)
	assert.Empty(t, v.Reason)

	h.expectInitiate(ord, "T2")
	require.NoError(t, h.o.Submit(context.Background(), Selection{Method: order.MethodPushPayment, Phone: testPhone}))
	v = h.o.Snapshot()
	require.Equal(t, StateProcessing, v.State)
	assert.Equal(t, "T2", v.TransactionID)
	assert.Equal(t, 120*time.Second, v.Remaining)

	h.confirm(ord, "T1")
	assert.Equal(t, StateProcessing, h.o.State())

	h.confirm(ord, "T2")
	v = h.o.Snapshot()
	assert.Equal(t, StateSuccess, v.State)
	assert.Equal(t, "RCPT-T2", v.ReceiptID)
	assert.Equal(t, 1, h.cart.clearCount())

	// the order was reused for the retry
	h.orders.AssertNumberOfCalls(t, "CreateOrder", 1)
	h.gateway.AssertNumberOfCalls(t, "Initiate", 2)
}

func TestOrchestrator_GatewayRejection(t *testing.T) {
	h := newHarness(t)
	ord := newOrder(order.MethodPushPayment)
	h.orders.On("CreateOrder", mock.Anything, mock.Anything).Return(ord, nil).Once()
	h.gateway.On("Initiate", mock.Anything, ord.ID.String(), testCanonical, mock.Anything).
		Return(nil, errs.New(errs.ErrGateway, "insufficient float")).Once()

	h.toPaymentSelection()
	err := h.o.Submit(context.Background(), Selection{Method: order.MethodPushPayment, Phone: testPhone})
	require.ErrorIs(t, err, errs.ErrGateway)

	v := h.o.Snapshot()
	assert.Equal(t, StateError, v.State)
	assert.Equal(t, "insufficient float", v.Reason)
	assert.Zero(t, v.Remaining)
	assert.Equal(t, 0, h.events.live())

	h.clk.Add(200 * time.Second)
	assert.Equal(t, StateError, h.o.State())
	assert.EqualValues(t, 0, h.metrics.PaymentsTimedOut.Load())
	assert.EqualValues(t, 0, h.metrics.PaymentsInitiated.Load())
	assert.Equal(t, 0, h.cart.clearCount())
}

func TestOrchestrator_PaymentDeclined(t *testing.T) {
	h := newHarness(t)
	ord := newOrder(order.MethodPushPayment)
	h.startPush(ord, "T1")

	h.decline(ord, "", "Wrong PIN entered")
	v := h.o.Snapshot()
	assert.Equal(t, StateError, v.State)
	assert.Equal(t, "Wrong PIN entered", v.Reason)
	assert.Equal(t, 0, h.cart.clearCount())
	assert.Equal(t, 0, h.events.live())
}

// ── Properties ────────────────────────────────────────────────────────────────

func TestOrchestrator_ResolvesAtMostOnce(t *testing.T) {
	h := newHarness(t)
	ord := newOrder(order.MethodPushPayment)
	h.startPush(ord, "T1")

	var terminal int
	var mu sync.Mutex
	h.o.Watch(func(v View) {
		if v.State == StateSuccess || v.State == StateError {
			mu.Lock()
			terminal++
			mu.Unlock()
		}
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); h.confirm(ord, "T1") }()
		go func() { defer wg.Done(); h.decline(ord, "T1", "declined") }()
	}
	wg.Wait()
	h.clk.Add(121 * time.Second)

	resolved := h.metrics.PaymentsConfirmed.Load() + h.metrics.PaymentsFailed.Load() + h.metrics.PaymentsTimedOut.Load()
	assert.EqualValues(t, 1, resolved)
	mu.Lock()
	assert.Equal(t, 1, terminal)
	mu.Unlock()
	assert.LessOrEqual(t, h.cart.clearCount(), 1)
}

func TestOrchestrator_DuplicateConfirmation(t *testing.T) {
	h := newHarness(t)
	ord := newOrder(order.MethodPushPayment)
	h.startPush(ord, "T1")

	h.confirm(ord, "T1")
	h.confirm(ord, "T1")
	h.decline(ord, "T1", "too late")

	assert.Equal(t, StateSuccess, h.o.State())
	assert.Equal(t, 1, h.cart.clearCount())
	assert.EqualValues(t, 1, h.metrics.PaymentsConfirmed.Load())
	assert.EqualValues(t, 0, h.metrics.PaymentsFailed.Load())
}

func TestOrchestrator_ConfirmationForOtherTransactionIgnored(t *testing.T) {
	h := newHarness(t)
	ord := newOrder(order.MethodPushPayment)
	h.startPush(ord, "T1")

	h.confirm(ord, "T-other")
	h.decline(ord, "T-other", "nope")
	assert.Equal(t, StateProcessing, h.o.State())
}

func TestOrchestrator_RemainingNeverIncreases(t *testing.T) {
	h := newHarness(t)
	ord := newOrder(order.MethodPushPayment)
	h.startPush(ord, "T1")

	prev := h.o.Snapshot().Remaining
	for i := 0; i < 10; i++ {
		h.clk.Add(7 * time.Second)
		h.o.Resume()
		cur := h.o.Snapshot().Remaining
		assert.LessOrEqual(t, cur, prev)
		prev = cur
	}
	assert.Equal(t, 50*time.Second, prev)

	// a wall clock set back does not hand time back to the payer
	att := &Attempt{Deadline: h.clk.Now().Add(100 * time.Second), remaining: 40 * time.Second}
	h.o.mu.Lock()
	assert.Equal(t, 40*time.Second, h.o.remainingLocked(att))
	h.o.mu.Unlock()
}

func TestOrchestrator_CountdownTicks(t *testing.T) {
	h := newHarness(t)
	ord := newOrder(order.MethodPushPayment)
	h.startPush(ord, "T1")

	ticks := make(chan time.Duration, 16)
	h.o.Watch(func(v View) {
		if v.State == StateProcessing {
			select {
			case ticks <- v.Remaining:
			default:
			}
		}
	})

	h.clk.Add(time.Second)
	select {
	case rem := <-ticks:
		assert.Equal(t, 119*time.Second, rem)
	case <-time.After(time.Second):
		t.Fatal("no countdown update")
	}
}

func TestOrchestrator_ValidationGating(t *testing.T) {
	var tests = []struct {
		name string
		sel  Selection
	}{
		{name: "foreign number", sel: Selection{Method: order.MethodPushPayment, Phone: "+27 82 123 4567"}},
		{name: "too short", sel: Selection{Method: order.MethodPushPayment, Phone: "09712"}},
		{name: "empty phone", sel: Selection{Method: order.MethodPushPayment}},
		{name: "no method", sel: Selection{Phone: testPhone}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.toPaymentSelection()

			err := h.o.Submit(context.Background(), tt.sel)
			require.ErrorIs(t, err, errs.ErrValidation)
			v := h.o.Snapshot()
			assert.Equal(t, StatePaymentSelection, v.State)
			assert.NotEmpty(t, v.Notice)
			h.orders.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
			h.gateway.AssertNotCalled(t, "Initiate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestOrchestrator_ProceedRequiresAddress(t *testing.T) {
	h := newHarness(t)
	err := h.o.ProceedToPayment(order.Delivery{Address: "   "})
	require.ErrorIs(t, err, errs.ErrValidation)
	v := h.o.Snapshot()
	assert.Equal(t, StateReview, v.State)
	assert.Equal(t, "Enter a delivery address", v.Notice)

	h.cart.Clear()
	err = h.o.ProceedToPayment(order.Delivery{Address: "Plot 12"})
	require.ErrorIs(t, err, errs.ErrValidation)
	assert.Equal(t, StateReview, h.o.State())
}

func TestOrchestrator_OrderCreationFailures(t *testing.T) {
	var tests = []struct {
		name   string
		err    error
		state  State
		reason string
	}{
		{name: "network", err: errs.New(errs.ErrTransport, "dial tcp: refused"), state: StateError, reason: "Could not reach the store"},
		{name: "session expired", err: errs.New(errs.ErrAuth, "token expired"), state: StateError, reason: "Sign in again"},
		{name: "rejected by server", err: errs.New(errs.ErrValidation, "unknown product"), state: StatePaymentSelection},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.orders.On("CreateOrder", mock.Anything, mock.Anything).Return(nil, tt.err).Once()
			h.toPaymentSelection()

			err := h.o.Submit(context.Background(), Selection{Method: order.MethodPushPayment, Phone: testPhone})
			require.ErrorIs(t, err, tt.err)
			v := h.o.Snapshot()
			assert.Equal(t, tt.state, v.State)
			if tt.reason != "" {
				assert.Contains(t, v.Reason, tt.reason)
			}
			assert.False(t, v.Busy)
			h.gateway.AssertNotCalled(t, "Initiate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestOrchestrator_CancelDuringProcessing(t *testing.T) {
	h := newHarness(t)
	ord := newOrder(order.MethodPushPayment)
	h.startPush(ord, "T1")

	require.NoError(t, h.o.Cancel())
	v := h.o.Snapshot()
	assert.Equal(t, StateReview, v.State)
	assert.Equal(t, AttemptCancelled, v.Attempt)
	assert.Empty(t, v.OrderID)
	assert.Equal(t, 0, h.events.live())
	assert.EqualValues(t, 1, h.metrics.PaymentsCancelled.Load())

	h.confirm(ord, "T1")
	h.clk.Add(200 * time.Second)
	assert.Equal(t, StateReview, h.o.State())
	assert.Equal(t, 0, h.cart.clearCount())

	// a new submission places a new order
	second := newOrder(order.MethodPushPayment)
	h.orders.On("CreateOrder", mock.Anything, mock.Anything).Return(second, nil).Once()
	h.expectInitiate(second, "T2")
	h.toPaymentSelection()
	require.NoError(t, h.o.Submit(context.Background(), Selection{Method: order.MethodPushPayment, Phone: testPhone}))
	assert.Equal(t, second.ID.String(), h.o.Snapshot().OrderID)
	h.orders.AssertNumberOfCalls(t, "CreateOrder", 2)
}

func TestOrchestrator_CancelFromError(t *testing.T) {
	h := newHarness(t)
	ord := newOrder(order.MethodPushPayment)
	h.startPush(ord, "T1")
	h.decline(ord, "T1", "declined")
	require.Equal(t, StateError, h.o.State())

	require.NoError(t, h.o.Cancel())
	assert.Equal(t, StateReview, h.o.State())
	assert.EqualValues(t, 0, h.metrics.PaymentsCancelled.Load())
}

func TestOrchestrator_CancelWhileInitiating(t *testing.T) {
	h := newHarness(t)
	ord := newOrder(order.MethodPushPayment)
	h.orders.On("CreateOrder", mock.Anything, mock.Anything).Return(ord, nil).Once()

	entered := make(chan struct{})
	h.gateway.On("Initiate", mock.Anything, ord.ID.String(), testCanonical, mock.Anything).
		Run(func(args mock.Arguments) {
			close(entered)
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.Canceled).Once()

	h.toPaymentSelection()
	done := make(chan error, 1)
	go func() {
		done <- h.o.Submit(context.Background(), Selection{Method: order.MethodPushPayment, Phone: testPhone})
	}()

	<-entered
	v := h.o.Snapshot()
	assert.True(t, v.Busy)
	assert.True(t, v.CanCancel)
	err := h.o.Submit(context.Background(), Selection{Method: order.MethodPushPayment, Phone: testPhone})
	require.ErrorIs(t, err, errs.ErrValidation)

	require.NoError(t, h.o.Cancel())
	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("submission did not stop")
	}
	assert.Equal(t, StateReview, h.o.State())
	assert.Equal(t, 0, h.events.live())
}

func TestOrchestrator_EventBeforeInitiateReturns(t *testing.T) {
	h := newHarness(t)
	ord := newOrder(order.MethodPushPayment)
	h.orders.On("CreateOrder", mock.Anything, mock.Anything).Return(ord, nil).Once()
	h.gateway.On("Initiate", mock.Anything, ord.ID.String(), testCanonical, mock.Anything).
		Run(func(args mock.Arguments) { h.confirm(ord, "T1") }).
		Return(&payment.Initiation{TransactionID: "T1", Status: payment.TxPending}, nil).Once()

	h.toPaymentSelection()
	require.NoError(t, h.o.Submit(context.Background(), Selection{Method: order.MethodPushPayment, Phone: testPhone}))

	v := h.o.Snapshot()
	assert.Equal(t, StateSuccess, v.State)
	assert.Equal(t, "RCPT-T1", v.ReceiptID)
	assert.Equal(t, 1, h.cart.clearCount())
}

func TestOrchestrator_PollsWhenChannelUnavailable(t *testing.T) {
	h := newHarness(t)
	h.events.connectErr = errs.New(errs.ErrChannel, "retries exhausted")
	ord := newOrder(order.MethodPushPayment)
	h.gateway.On("PollStatus", mock.Anything, "T1").Return(&payment.StatusResult{TransactionID: "T1", Status: payment.TxPending}, nil).Once()
	h.gateway.On("PollStatus", mock.Anything, "T1").Return(&payment.StatusResult{TransactionID: "T1", Status: payment.TxSuccess, ReceiptID: "RCPT-POLL"}, nil)
	h.startPush(ord, "T1")

	require.Eventually(t, func() bool { return h.o.State() == StateSuccess }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "RCPT-POLL", h.o.Snapshot().ReceiptID)
	assert.EqualValues(t, 1, h.metrics.PollFallbacks.Load())
	assert.Equal(t, 1, h.cart.clearCount())
}

func TestOrchestrator_PromptNotHeldBySlowChannel(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	h.events.connectGate = gate
	h.events.connectErr = errs.New(errs.ErrChannel, "retries exhausted")
	ord := newOrder(order.MethodPushPayment)
	h.gateway.On("PollStatus", mock.Anything, "T1").Return(&payment.StatusResult{TransactionID: "T1", Status: payment.TxSuccess, ReceiptID: "RCPT-POLL"}, nil)

	// Submit returns in processing while the channel is still dialling
	h.startPush(ord, "T1")
	v := h.o.Snapshot()
	assert.Equal(t, 120*time.Second, v.Remaining)
	assert.False(t, v.Busy)
	require.Eventually(t, func() bool { return h.events.connectCount() == 1 }, time.Second, time.Millisecond)
	assert.EqualValues(t, 0, h.metrics.PollFallbacks.Load())

	close(gate)
	require.Eventually(t, func() bool { return h.o.State() == StateSuccess }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "RCPT-POLL", h.o.Snapshot().ReceiptID)
	assert.EqualValues(t, 1, h.metrics.PollFallbacks.Load())
}

func TestOrchestrator_ConnectStopsWithAttempt(t *testing.T) {
	h := newHarness(t)
	h.events.connectGate = make(chan struct{})
	ord := newOrder(order.MethodPushPayment)
	h.startPush(ord, "T1")

	// the subscriptions are in place before the channel is up
	h.confirm(ord, "T1")
	assert.Equal(t, StateSuccess, h.o.State())

	// teardown cancelled the pending connect, so no fallback kicks in
	h.clk.Add(200 * time.Second)
	assert.EqualValues(t, 0, h.metrics.PollFallbacks.Load())
	h.gateway.AssertNotCalled(t, "PollStatus", mock.Anything, mock.Anything)
}

func TestOrchestrator_RetriedAttemptNeedsTransactionID(t *testing.T) {
	h := newHarness(t)
	ord := newOrder(order.MethodPushPayment)
	h.startPush(ord, "T1")
	h.clk.Add(120 * time.Second)
	require.Equal(t, StateError, h.o.State())
	require.NoError(t, h.o.Retry())

	h.expectInitiate(ord, "T2")
	require.NoError(t, h.o.Submit(context.Background(), Selection{Method: order.MethodPushPayment, Phone: testPhone}))
	require.Equal(t, StateProcessing, h.o.State())

	// could be the late failure of T1; it carries only the order id
	h.decline(ord, "", "Request expired")
	assert.Equal(t, StateProcessing, h.o.State())

	h.decline(ord, "T2", "Wrong PIN entered")
	v := h.o.Snapshot()
	assert.Equal(t, StateError, v.State)
	assert.Equal(t, "Wrong PIN entered", v.Reason)
	assert.Equal(t, "T2", v.TransactionID)
}

func TestOrchestrator_PollsAfterChannelLost(t *testing.T) {
	h := newHarness(t)
	ord := newOrder(order.MethodPushPayment)
	h.gateway.On("PollStatus", mock.Anything, "T1").Return(&payment.StatusResult{TransactionID: "T1", Status: payment.TxFailed, Reason: "Payer declined"}, nil)
	h.startPush(ord, "T1")
	h.gateway.AssertNotCalled(t, "PollStatus", mock.Anything, mock.Anything)

	h.events.fail(errs.New(errs.ErrChannel, "reconnect exhausted"))
	require.Eventually(t, func() bool { return h.o.State() == StateError }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "Payer declined", h.o.Snapshot().Reason)
	assert.EqualValues(t, 1, h.metrics.PollFallbacks.Load())
}

func TestOrchestrator_ResumeAfterDeadline(t *testing.T) {
	h := newHarness(t)
	ord := newOrder(order.MethodPushPayment)
	h.startPush(ord, "T1")

	// simulate a timer that never fired while the app was suspended
	h.o.mu.Lock()
	h.o.attempt.Deadline = h.clk.Now().Add(-time.Second)
	h.o.mu.Unlock()

	h.o.Resume()
	v := h.o.Snapshot()
	assert.Equal(t, StateError, v.State)
	assert.Equal(t, AttemptTimedOut, v.Attempt)
}

func TestOrchestrator_IllegalOperations(t *testing.T) {
	h := newHarness(t)
	require.ErrorIs(t, h.o.Submit(context.Background(), Selection{Method: order.MethodCash}), errs.ErrValidation)
	require.ErrorIs(t, h.o.Retry(), errs.ErrValidation)
	require.ErrorIs(t, h.o.Cancel(), errs.ErrValidation)

	ord := newOrder(order.MethodCash)
	h.orders.On("CreateOrder", mock.Anything, mock.Anything).Return(ord, nil).Once()
	h.toPaymentSelection()
	require.NoError(t, h.o.Submit(context.Background(), Selection{Method: order.MethodCash}))

	require.ErrorIs(t, h.o.Cancel(), errs.ErrValidation)
	require.ErrorIs(t, h.o.Retry(), errs.ErrValidation)
	require.ErrorIs(t, h.o.ProceedToPayment(order.Delivery{Address: "x"}), errs.ErrValidation)
	assert.Equal(t, StateSuccess, h.o.State())
}

func TestOrchestrator_RefreshOrder(t *testing.T) {
	h := newHarness(t)
	_, err := h.o.RefreshOrder(context.Background())
	require.ErrorIs(t, err, errs.ErrNotFound)

	ord := newOrder(order.MethodCash)
	h.orders.On("CreateOrder", mock.Anything, mock.Anything).Return(ord, nil).Once()
	h.toPaymentSelection()
	require.NoError(t, h.o.Submit(context.Background(), Selection{Method: order.MethodCash}))

	fresh := *ord
	fresh.Status = order.StatusApproved
	h.orders.On("GetOrder", mock.Anything, ord.ID.String()).Return(&fresh, nil).Once()
	got, err := h.o.RefreshOrder(context.Background())
	require.NoError(t, err)
	assert.Equal(t, order.StatusApproved, got.Status)
}

func TestState_CanTransition(t *testing.T) {
	assert.True(t, StateReview.CanTransition(StatePaymentSelection))
	assert.True(t, StateError.CanTransition(StatePaymentSelection))
	assert.True(t, StateProcessing.CanTransition(StateReview))
	assert.False(t, StateReview.CanTransition(StateProcessing))
	assert.False(t, StateSuccess.CanTransition(StateReview))
	assert.True(t, StateSuccess.Terminal())
}
