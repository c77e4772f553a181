package sandbox

import (
	"context"
	"sort"
	"sync"

	"github.com/facebookgo/clock"
	"github.com/georgemunganga/printa-storefront/internal/kit/errs"
	"github.com/georgemunganga/printa-storefront/internal/modules/order"
	"github.com/google/uuid"
)

type memoryStore struct {
	clock clock.Clock

	mu       sync.RWMutex
	orders   map[uuid.UUID]*order.Order
	payments map[uuid.UUID]*Transaction
}

// NewMemoryStore returns a Store that keeps everything in process.
func NewMemoryStore(clk clock.Clock) Store {
	if clk == nil {
		clk = clock.New()
	}
	return &memoryStore{
		clock:    clk,
		orders:   map[uuid.UUID]*order.Order{},
		payments: map[uuid.UUID]*Transaction{},
	}
}

func copyOrder(o *order.Order) *order.Order {
	cp := *o
	cp.Items = append([]order.LineItem(nil), o.Items...)
	return &cp
}

func (s *memoryStore) CreateOrder(ctx context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now
	s.orders[o.ID] = copyOrder(o)
	return nil
}

func (s *memoryStore) GetOrder(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, errs.New(errs.ErrNotFound, "order not found")
	}
	return copyOrder(o), nil
}

func (s *memoryStore) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status order.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return errs.New(errs.ErrNotFound, "order not found")
	}
	o.Status = status
	o.UpdatedAt = s.clock.Now().UTC()
	return nil
}

func (s *memoryStore) CreatePayment(ctx context.Context, tx *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tx.IdempotencyKey != "" {
		for _, existing := range s.payments {
			if existing.IdempotencyKey == tx.IdempotencyKey {
				return errs.New(errs.ErrValidation, "duplicate payment request (idempotency key already used)")
			}
		}
	}
	now := s.clock.Now().UTC()
	tx.CreatedAt, tx.UpdatedAt = now, now
	cp := *tx
	s.payments[tx.ID] = &cp
	return nil
}

func (s *memoryStore) GetPayment(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.payments[id]
	if !ok {
		return nil, errs.New(errs.ErrNotFound, "payment transaction not found")
	}
	cp := *tx
	return &cp, nil
}

func (s *memoryStore) find(match func(*Transaction) bool) (*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, tx := range s.payments {
		if match(tx) {
			cp := *tx
			return &cp, nil
		}
	}
	return nil, errs.New(errs.ErrNotFound, "payment transaction not found")
}

func (s *memoryStore) GetPaymentByIdempotencyKey(ctx context.Context, key string) (*Transaction, error) {
	return s.find(func(tx *Transaction) bool { return key != "" && tx.IdempotencyKey == key })
}

func (s *memoryStore) GetPaymentByProviderRef(ctx context.Context, provider Provider, ref string) (*Transaction, error) {
	return s.find(func(tx *Transaction) bool { return tx.Provider == provider && tx.ProviderRef == ref })
}

func (s *memoryStore) ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Transaction
	for _, tx := range s.payments {
		if tx.OrderID == orderID {
			cp := *tx
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memoryStore) UpdatePayment(ctx context.Context, tx *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payments[tx.ID]; !ok {
		return errs.New(errs.ErrNotFound, "payment transaction not found")
	}
	tx.UpdatedAt = s.clock.Now().UTC()
	cp := *tx
	s.payments[tx.ID] = &cp
	return nil
}
