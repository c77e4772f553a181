package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/georgemunganga/printa-storefront/internal/kit/errs"
	"github.com/georgemunganga/printa-storefront/internal/kit/observability"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pushServer is a minimal push backend: it records subscribe commands and forwards
// published events to every connection subscribed to the key.
type pushServer struct {
	t          *testing.T
	srv        *httptest.Server
	upgrader   websocket.Upgrader
	reject     atomic.Int32
	handshakes atomic.Int32

	mu    sync.Mutex
	conns map[*websocket.Conn]map[key]bool
	subCh chan Command
}

func newPushServer(t *testing.T) *pushServer {
	t.Helper()
	ps := &pushServer{
		t:     t,
		conns: make(map[*websocket.Conn]map[key]bool),
		subCh: make(chan Command, 64),
	}
	ps.srv = httptest.NewServer(http.HandlerFunc(ps.serve))
	t.Cleanup(ps.srv.Close)
	return ps
}

func (ps *pushServer) url() string {
	return "ws" + strings.TrimPrefix(ps.srv.URL, "http")
}

func (ps *pushServer) serve(w http.ResponseWriter, r *http.Request) {
	ps.handshakes.Add(1)
	if code := ps.reject.Load(); code != 0 {
		http.Error(w, "nope", int(code))
		return
	}
	if r.Header.Get("Authorization") != "Bearer tok" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	conn, err := ps.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	ps.mu.Lock()
	ps.conns[conn] = make(map[key]bool)
	ps.mu.Unlock()

	defer func() {
		ps.mu.Lock()
		delete(ps.conns, conn)
		ps.mu.Unlock()
		conn.Close()
	}()
	for {
		var cmd Command
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		k := key{event: cmd.Event, correlationID: cmd.CorrelationID}
		ps.mu.Lock()
		if cmd.Op == OpSubscribe {
			ps.conns[conn][k] = true
		} else {
			delete(ps.conns[conn], k)
		}
		ps.mu.Unlock()
		ps.subCh <- cmd
	}
}

func (ps *pushServer) publish(ev Event) {
	k := key{event: ev.Type, correlationID: ev.CorrelationID}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	for conn, keys := range ps.conns {
		if keys[k] {
			require.NoError(ps.t, conn.WriteJSON(ev))
		}
	}
}

func (ps *pushServer) dropAll() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	for conn := range ps.conns {
		conn.Close()
	}
}

func (ps *pushServer) awaitCommand(t *testing.T, op string) Command {
	t.Helper()
	for {
		select {
		case cmd := <-ps.subCh:
			if cmd.Op == op {
				return cmd
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("no %s command received", op)
			return Command{}
		}
	}
}

func newTestChannel(url string, retries uint64) *Channel {
	cfg := Config{
		URL:              url,
		MaxRetries:       retries,
		InitialBackoff:   5 * time.Millisecond,
		MaxBackoff:       20 * time.Millisecond,
		HandshakeTimeout: time.Second,
		PingInterval:     time.Second,
	}
	return NewChannel(cfg, func() (string, error) { return "tok", nil }, observability.Discard(), nil)
}

func TestChannel_ConcurrentConnectDialsOnce(t *testing.T) {
	ps := newPushServer(t)
	ch := newTestChannel(ps.url(), 3)
	defer ch.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, ch.Connect(context.Background()))
		}()
	}
	wg.Wait()

	assert.True(t, ch.Connected())
	assert.EqualValues(t, 1, ps.handshakes.Load())

	require.NoError(t, ch.Connect(context.Background()))
	assert.EqualValues(t, 1, ps.handshakes.Load())
}

func TestChannel_DeliversInOrder(t *testing.T) {
	ps := newPushServer(t)
	ch := newTestChannel(ps.url(), 3)
	defer ch.Close()
	require.NoError(t, ch.Connect(context.Background()))

	got := make(chan string, 3)
	ch.Subscribe(EventOrderStatusChanged, "o-1", func(ev Event) {
		var p OrderStatusChanged
		if assert.NoError(t, ev.Decode(&p)) {
			got <- p.Status
		}
	})
	ps.awaitCommand(t, OpSubscribe)

	for _, s := range []string{"approved", "in_transit", "delivered"} {
		ev, err := NewEvent(EventOrderStatusChanged, "o-1", OrderStatusChanged{OrderID: "o-1", Status: s})
		require.NoError(t, err)
		ps.publish(ev)
	}

	for _, want := range []string{"approved", "in_transit", "delivered"} {
		select {
		case s := <-got:
			assert.Equal(t, want, s)
		case <-time.After(2 * time.Second):
			t.Fatalf("missing %s", want)
		}
	}
}

func TestChannel_IndependentSubscriptions(t *testing.T) {
	ps := newPushServer(t)
	ch := newTestChannel(ps.url(), 3)
	defer ch.Close()
	require.NoError(t, ch.Connect(context.Background()))

	var a, b atomic.Int32
	unsubA := ch.Subscribe(EventPaymentConfirmed, "o-1", func(Event) { a.Add(1) })
	ch.Subscribe(EventPaymentConfirmed, "o-1", func(Event) { b.Add(1) })
	ps.awaitCommand(t, OpSubscribe)
	assert.Equal(t, 2, ch.Subscriptions())

	ps.publish(Event{Type: EventPaymentConfirmed, CorrelationID: "o-1", Data: []byte(`{}`)})
	require.Eventually(t, func() bool { return a.Load() == 1 && b.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	unsubA()
	unsubA()
	assert.Equal(t, 1, ch.Subscriptions())

	ps.publish(Event{Type: EventPaymentConfirmed, CorrelationID: "o-1", Data: []byte(`{}`)})
	require.Eventually(t, func() bool { return b.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 1, a.Load())
}

func TestChannel_LastUnsubscribeTellsServer(t *testing.T) {
	ps := newPushServer(t)
	ch := newTestChannel(ps.url(), 3)
	defer ch.Close()
	require.NoError(t, ch.Connect(context.Background()))

	unsub := ch.Subscribe(EventPaymentFailed, "o-9", func(Event) {})
	ps.awaitCommand(t, OpSubscribe)
	unsub()

	cmd := ps.awaitCommand(t, OpUnsubscribe)
	assert.Equal(t, EventPaymentFailed, cmd.Event)
	assert.Equal(t, "o-9", cmd.CorrelationID)
	assert.Equal(t, 0, ch.Subscriptions())
}

func TestChannel_ResubscribesAfterDrop(t *testing.T) {
	ps := newPushServer(t)
	metrics := observability.NewMetrics()
	ch := newTestChannel(ps.url(), 5)
	ch.metrics = metrics
	defer ch.Close()
	require.NoError(t, ch.Connect(context.Background()))

	got := make(chan struct{}, 1)
	ch.Subscribe(EventPaymentConfirmed, "o-1", func(Event) { got <- struct{}{} })
	ps.awaitCommand(t, OpSubscribe)

	ps.dropAll()

	// the replayed subscribe on the fresh connection
	ps.awaitCommand(t, OpSubscribe)
	require.Eventually(t, ch.Connected, 2*time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 2, ps.handshakes.Load())
	assert.EqualValues(t, 1, metrics.RealtimeReconnects.Load())

	ps.publish(Event{Type: EventPaymentConfirmed, CorrelationID: "o-1", Data: []byte(`{}`)})
	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered after reconnect")
	}
}

func TestChannel_RetriesExhausted(t *testing.T) {
	ps := newPushServer(t)
	ps.reject.Store(http.StatusServiceUnavailable)
	ch := newTestChannel(ps.url(), 2)
	defer ch.Close()

	err := ch.Connect(context.Background())
	require.ErrorIs(t, err, errs.ErrChannel)
	assert.False(t, ch.Connected())
	assert.EqualValues(t, 3, ps.handshakes.Load())
}

func TestChannel_AuthRejectedIsNotRetried(t *testing.T) {
	ps := newPushServer(t)
	ps.reject.Store(http.StatusUnauthorized)
	ch := newTestChannel(ps.url(), 5)
	defer ch.Close()

	err := ch.Connect(context.Background())
	require.ErrorIs(t, err, errs.ErrChannel)
	require.ErrorIs(t, err, errs.ErrAuth)
	assert.EqualValues(t, 1, ps.handshakes.Load())
}

func TestChannel_OnFailureAfterLostConnection(t *testing.T) {
	ps := newPushServer(t)
	ch := newTestChannel(ps.url(), 1)
	defer ch.Close()
	require.NoError(t, ch.Connect(context.Background()))

	failed := make(chan error, 1)
	ch.OnFailure(func(err error) { failed <- err })

	ps.reject.Store(http.StatusServiceUnavailable)
	ps.dropAll()

	select {
	case err := <-failed:
		assert.ErrorIs(t, err, errs.ErrChannel)
	case <-time.After(2 * time.Second):
		t.Fatal("failure watcher not called")
	}
}

func TestChannel_ReleaseClosesOnLastUser(t *testing.T) {
	ps := newPushServer(t)
	ch := newTestChannel(ps.url(), 1)
	ch.Acquire()
	ch.Acquire()
	require.NoError(t, ch.Connect(context.Background()))

	ch.Release()
	assert.True(t, ch.Connected())
	ch.Release()
	assert.False(t, ch.Connected())

	err := ch.Connect(context.Background())
	require.ErrorIs(t, err, errs.ErrChannel)
}

func TestChannel_UnmatchedReleaseKeepsChannelOpen(t *testing.T) {
	ps := newPushServer(t)
	ch := newTestChannel(ps.url(), 1)
	require.NoError(t, ch.Connect(context.Background()))

	ch.Release()
	assert.True(t, ch.Connected())

	ch.Acquire()
	ch.Release()
	assert.False(t, ch.Connected())
}
