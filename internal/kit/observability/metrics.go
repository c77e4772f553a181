package observability

import "sync/atomic"

type Metrics struct {
	OrdersCreated      atomic.Int64
	PaymentsInitiated  atomic.Int64
	PaymentsConfirmed  atomic.Int64
	PaymentsFailed     atomic.Int64
	PaymentsTimedOut   atomic.Int64
	PaymentsCancelled  atomic.Int64
	PollFallbacks      atomic.Int64
	RealtimeReconnects atomic.Int64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

// Snapshot returns the counters keyed by their exported metric name.
func (m *Metrics) Snapshot() map[string]int64 {
	if m == nil {
		return map[string]int64{}
	}
	return map[string]int64{
		"orders_created":      m.OrdersCreated.Load(),
		"payments_initiated":  m.PaymentsInitiated.Load(),
		"payments_confirmed":  m.PaymentsConfirmed.Load(),
		"payments_failed":     m.PaymentsFailed.Load(),
		"payments_timed_out":  m.PaymentsTimedOut.Load(),
		"payments_cancelled":  m.PaymentsCancelled.Load(),
		"poll_fallbacks":      m.PollFallbacks.Load(),
		"realtime_reconnects": m.RealtimeReconnects.Load(),
	}
}
