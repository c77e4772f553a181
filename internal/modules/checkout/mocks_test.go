package checkout

import (
	"context"
	"sync"

	"github.com/georgemunganga/printa-storefront/internal/modules/order"
	"github.com/georgemunganga/printa-storefront/internal/modules/payment"
	"github.com/georgemunganga/printa-storefront/internal/modules/realtime"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

type OrderRepositoryMock struct {
	mock.Mock
}

func (m *OrderRepositoryMock) CreateOrder(ctx context.Context, req order.CreateRequest) (*order.Order, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *OrderRepositoryMock) GetOrder(ctx context.Context, id string) (*order.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

type GatewayMock struct {
	mock.Mock
}

func (m *GatewayMock) Initiate(ctx context.Context, orderID, phone string, amount decimal.Decimal) (*payment.Initiation, error) {
	args := m.Called(ctx, orderID, phone, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Initiation), args.Error(1)
}

func (m *GatewayMock) PollStatus(ctx context.Context, transactionID string) (*payment.StatusResult, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.StatusResult), args.Error(1)
}

// fakeEvents delivers events synchronously on the caller's goroutine.
type fakeEvents struct {
	mu         sync.Mutex
	connectErr error
	// when set, Connect blocks until it is closed or the caller gives up
	connectGate chan struct{}
	connects    int
	seq         int
	handlers    map[int]fakeSub
	watchers    map[int]func(error)
}

type fakeSub struct {
	event         realtime.EventType
	correlationID string
	h             realtime.Handler
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{handlers: make(map[int]fakeSub), watchers: make(map[int]func(error))}
}

func (f *fakeEvents) Connect(ctx context.Context) error {
	f.mu.Lock()
	f.connects++
	gate := f.connectGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connectErr
}

func (f *fakeEvents) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

func (f *fakeEvents) Subscribe(event realtime.EventType, correlationID string, h realtime.Handler) realtime.Unsubscribe {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	id := f.seq
	f.handlers[id] = fakeSub{event: event, correlationID: correlationID, h: h}
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.handlers, id)
	}
}

func (f *fakeEvents) OnFailure(fn func(error)) realtime.Unsubscribe {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	id := f.seq
	f.watchers[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.watchers, id)
	}
}

func (f *fakeEvents) emit(t realtime.EventType, correlationID string, payload any) {
	ev, err := realtime.NewEvent(t, correlationID, payload)
	if err != nil {
		panic(err)
	}
	f.mu.Lock()
	var hs []realtime.Handler
	for _, s := range f.handlers {
		if s.event == t && s.correlationID == correlationID {
			hs = append(hs, s.h)
		}
	}
	f.mu.Unlock()
	for _, h := range hs {
		h(ev)
	}
}

func (f *fakeEvents) fail(err error) {
	f.mu.Lock()
	var fns []func(error)
	for _, fn := range f.watchers {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(err)
	}
}

// live counts subscriptions and failure watchers still registered.
func (f *fakeEvents) live() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers) + len(f.watchers)
}

type fakeCart struct {
	mu     sync.Mutex
	lines  []order.LineItem
	total  decimal.Decimal
	clears int
}

func newFakeCart() *fakeCart {
	return &fakeCart{
		lines: []order.LineItem{{ProductID: "PRN-A4-COL", Quantity: 10}},
		total: decimal.RequireFromString("50.00"),
	}
}

func (c *fakeCart) Lines() []order.LineItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]order.LineItem(nil), c.lines...)
}

func (c *fakeCart) Total() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

func (c *fakeCart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clears++
	c.lines = nil
	c.total = decimal.Zero
}

func (c *fakeCart) clearCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clears
}
