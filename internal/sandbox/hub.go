package sandbox

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/georgemunganga/printa-storefront/internal/kit/httpx"
	"github.com/georgemunganga/printa-storefront/internal/modules/realtime"
	"github.com/gorilla/websocket"
)

const (
	hubWriteWait  = 10 * time.Second
	hubSendBuffer = 64
)

// TokenVerifier resolves a bearer token to the customer it was issued to.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// SubscriptionGuard decides whether a customer may follow the events correlated
// by correlationID.
type SubscriptionGuard func(ctx context.Context, customerID, correlationID string) bool

type subKey struct {
	event         realtime.EventType
	correlationID string
}

// Hub is the server side of the realtime channel. Each connection declares the
// (event, correlation id) streams it wants; Publish routes an event only to those.
type Hub struct {
	upgrader     websocket.Upgrader
	verifier     TokenVerifier
	guard        SubscriptionGuard
	logger       *slog.Logger
	pingInterval time.Duration

	mu      sync.Mutex
	clients map[*hubClient]struct{}
	closed  bool
}

type hubClient struct {
	conn       *websocket.Conn
	customerID string
	send       chan realtime.Event

	mu   sync.Mutex
	subs map[subKey]struct{}

	once sync.Once
	done chan struct{}
}

// NewHub creates a hub that authenticates connections with verifier. A nil guard
// lets every customer follow every stream.
func NewHub(verifier TokenVerifier, guard SubscriptionGuard, logger *slog.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		verifier:     verifier,
		guard:        guard,
		logger:       logger,
		pingInterval: 25 * time.Second,
		clients:      map[*hubClient]struct{}{},
	}
}

// ServeHTTP authenticates and upgrades the request, then serves the connection until
// either side closes it.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	customerID, err := h.verifier.Verify(token)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		httpx.Respond(w, http.StatusServiceUnavailable, map[string]string{"error": "realtime hub is shutting down"})
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	c := &hubClient{
		conn:       conn,
		customerID: customerID,
		send:       make(chan realtime.Event, hubSendBuffer),
		subs:       map[subKey]struct{}{},
		done:       make(chan struct{}),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Info("realtime client connected", "customer_id", customerID)

	go h.writePump(c)
	h.readPump(r.Context(), c)

	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
	h.logger.Info("realtime client disconnected", "customer_id", customerID)
}

func (h *Hub) readPump(ctx context.Context, c *hubClient) {
	c.conn.SetReadLimit(4096)
	for {
		var cmd realtime.Command
		if err := c.conn.ReadJSON(&cmd); err != nil {
			if _, ok := err.(*websocket.CloseError); !ok {
				h.logger.Debug("realtime read ended", "customer_id", c.customerID, "error", err)
			}
			return
		}
		key := subKey{event: cmd.Event, correlationID: cmd.CorrelationID}
		if cmd.Op == realtime.OpSubscribe && h.guard != nil && !h.guard(ctx, c.customerID, cmd.CorrelationID) {
			h.logger.Warn("realtime subscription refused", "customer_id", c.customerID, "event", cmd.Event, "correlation_id", cmd.CorrelationID)
			continue
		}
		c.mu.Lock()
		switch cmd.Op {
		case realtime.OpSubscribe:
			c.subs[key] = struct{}{}
		case realtime.OpUnsubscribe:
			delete(c.subs, key)
		default:
			h.logger.Debug("ignoring unknown realtime op", "op", cmd.Op)
		}
		c.mu.Unlock()
	}
}

func (h *Hub) writePump(c *hubClient) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case ev := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(hubWriteWait)); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *hubClient) subscribed(k subKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subs[k]
	return ok
}

func (c *hubClient) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// Publish queues ev for every connection subscribed to its stream. A connection whose
// queue is full is dropped; its client reconnects and resubscribes.
func (h *Hub) Publish(ev realtime.Event) {
	key := subKey{event: ev.Type, correlationID: ev.CorrelationID}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if !c.subscribed(key) {
			continue
		}
		select {
		case c.send <- ev:
		default:
			h.logger.Warn("dropping slow realtime client", "customer_id", c.customerID)
			c.close()
		}
	}
}

// Subscribers counts the connections subscribed to a stream.
func (h *Hub) Subscribers(event realtime.EventType, correlationID string) int {
	key := subKey{event: event, correlationID: correlationID}
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for c := range h.clients {
		if c.subscribed(key) {
			n++
		}
	}
	return n
}

// Connections counts the open connections.
func (h *Hub) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// DropAll closes every connection without a close handshake, the way a network
// failure would.
func (h *Hub) DropAll() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := len(h.clients)
	for c := range h.clients {
		c.close()
	}
	return n
}

// Close drops every connection and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	h.DropAll()
}
