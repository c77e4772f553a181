package realtime

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Handler receives matching events. Handlers run on the channel's reader goroutine and
// must not block.
type Handler func(Event)

// Unsubscribe releases a subscription. Calling it more than once is a no-op.
type Unsubscribe func()

type key struct {
	event         EventType
	correlationID string
}

type subscription struct {
	id      uuid.UUID
	key     key
	handler Handler
}

// registry maps (event type, correlation id) to handlers. It survives reconnects.
type registry struct {
	mu   sync.RWMutex
	subs map[key][]*subscription
}

func newRegistry() *registry {
	return &registry{subs: make(map[key][]*subscription)}
}

// add registers h and reports whether it is the first handler for k.
func (r *registry) add(k key, h Handler) (*subscription, bool) {
	sub := &subscription{id: uuid.New(), key: k, handler: h}
	r.mu.Lock()
	defer r.mu.Unlock()
	first := len(r.subs[k]) == 0
	r.subs[k] = append(r.subs[k], sub)
	return sub, first
}

// remove drops sub and reports whether no handler is left for its key.
func (r *registry) remove(sub *subscription) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	hs := r.subs[sub.key]
	for i, s := range hs {
		if s.id == sub.id {
			hs = append(hs[:i:i], hs[i+1:]...)
			break
		}
	}
	if len(hs) == 0 {
		delete(r.subs, sub.key)
		return true
	}
	r.subs[sub.key] = hs
	return false
}

// keys lists every key with at least one live subscription.
func (r *registry) keys() []key {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ks := make([]key, 0, len(r.subs))
	for k := range r.subs {
		ks = append(ks, k)
	}
	return ks
}

func (r *registry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, hs := range r.subs {
		n += len(hs)
	}
	return n
}

// dispatch delivers ev to a snapshot of its handlers, so a handler may unsubscribe
// itself or others while running. A panicking handler does not stop delivery.
func (r *registry) dispatch(ev Event, logger *slog.Logger) {
	r.mu.RLock()
	hs := append([]*subscription(nil), r.subs[key{event: ev.Type, correlationID: ev.CorrelationID}]...)
	r.mu.RUnlock()

	for i, s := range hs {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("realtime handler panic", "event", ev.Type, "handler_index", i, "panic", rec)
				}
			}()
			s.handler(ev)
		}()
	}
}
