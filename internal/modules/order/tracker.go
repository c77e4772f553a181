package order

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// StatusEvent is the payload of an order status push.
type StatusEvent struct {
	OrderID string `json:"order_id"`
	Status  Status `json:"status"`
}

// Tracker keeps the client-visible status of one order. It only ever holds a status the
// backend sent, and ignores pushes that would move it backwards.
type Tracker struct {
	mu       sync.Mutex
	orderID  string
	status   Status
	onChange func(Status)
	logger   *slog.Logger
}

// NewTracker starts tracking o from its last known status.
func NewTracker(o *Order, logger *slog.Logger, onChange func(Status)) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{orderID: o.ID.String(), status: o.Status, onChange: onChange, logger: logger}
}

// Status returns the last accepted status.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Apply accepts a status pushed by the backend. It returns false when the push is for
// another order, unknown, or not a forward move.
func (t *Tracker) Apply(ev StatusEvent) bool {
	t.mu.Lock()
	if ev.OrderID != t.orderID || !t.status.CanAdvance(ev.Status) {
		from := t.status
		t.mu.Unlock()
		t.logger.Debug("order status push ignored", "order_id", ev.OrderID, "from", from, "to", ev.Status)
		return false
	}
	t.status = ev.Status
	cb := t.onChange
	t.mu.Unlock()

	if cb != nil {
		cb(ev.Status)
	}
	return true
}

// ApplyRaw decodes a realtime payload and applies it.
func (t *Tracker) ApplyRaw(data json.RawMessage) bool {
	var ev StatusEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		t.logger.Warn("malformed order status payload", "error", err)
		return false
	}
	return t.Apply(ev)
}
