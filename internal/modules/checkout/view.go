package checkout

import "time"

// View is what a screen needs to render the checkout.
type View struct {
	State         State
	Reason        string
	Notice        string
	OrderID       string
	OrderNumber   string
	TransactionID string
	ReceiptID     string
	Attempt       AttemptStatus
	Remaining     time.Duration
	Busy          bool
	CanRetry      bool
	CanCancel     bool
}

// Snapshot returns the current view.
func (o *Orchestrator) Snapshot() View {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.viewLocked()
}

// State returns the current step.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Watch calls fn with a fresh view after every change, until the returned func is
// called. fn runs outside the orchestrator lock and may call back into it.
func (o *Orchestrator) Watch(fn func(View)) func() {
	o.watchMu.Lock()
	o.watchSeq++
	id := o.watchSeq
	o.watchers[id] = fn
	o.watchMu.Unlock()

	return func() {
		o.watchMu.Lock()
		delete(o.watchers, id)
		o.watchMu.Unlock()
	}
}

func (o *Orchestrator) notify() {
	o.watchMu.Lock()
	if len(o.watchers) == 0 {
		o.watchMu.Unlock()
		return
	}
	fns := make([]func(View), 0, len(o.watchers))
	for _, fn := range o.watchers {
		fns = append(fns, fn)
	}
	o.watchMu.Unlock()

	v := o.Snapshot()
	for _, fn := range fns {
		fn(v)
	}
}

func (o *Orchestrator) viewLocked() View {
	v := View{
		State:     o.state,
		Reason:    o.reason,
		Notice:    o.notice,
		Busy:      o.busy,
		CanRetry:  o.state == StateError,
		CanCancel: o.state == StateProcessing || o.state == StateError || o.busy,
	}
	if o.order != nil {
		v.OrderID = o.order.ID.String()
		v.OrderNumber = o.order.OrderNumber
	}
	att := o.attempt
	if att == nil {
		att = o.last
	}
	if att != nil {
		v.TransactionID = att.TransactionID
		v.ReceiptID = att.ReceiptID
		v.Attempt = att.Status
	}
	if o.attempt != nil && o.state == StateProcessing {
		v.Remaining = o.remainingLocked(o.attempt)
	}
	return v
}
