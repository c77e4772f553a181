package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/georgemunganga/printa-storefront/internal/kit/errs"
	"github.com/georgemunganga/printa-storefront/internal/kit/observability"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/singleflight"
)

// TokenSource returns the bearer credential presented at every handshake.
type TokenSource func() (string, error)

// Config is the reconnection policy of the channel.
type Config struct {
	URL              string
	MaxRetries       uint64
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
}

// link is one physical connection. The channel outlives many of them.
type link struct {
	conn *websocket.Conn
	done chan struct{}
	once sync.Once
}

func (l *link) close() {
	l.once.Do(func() {
		close(l.done)
		_ = l.conn.Close()
	})
}

// Channel is the app-wide realtime connection. It is dialed lazily, shared by every
// feature through Acquire/Release, and keeps subscriptions across reconnects.
type Channel struct {
	cfg     Config
	token   TokenSource
	dialer  *websocket.Dialer
	logger  *slog.Logger
	metrics *observability.Metrics
	subs    *registry
	flight  singleflight.Group

	// subMu orders registry changes with the frames that announce them.
	subMu   sync.Mutex
	writeMu sync.Mutex

	mu       sync.Mutex
	link     *link
	refs     int
	closed   bool
	watchers map[uuid.UUID]func(error)
}

// NewChannel creates an unconnected channel.
func NewChannel(cfg Config, token TokenSource, logger *slog.Logger, metrics *observability.Metrics) *Channel {
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 25 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NewMetrics()
	}
	return &Channel{
		cfg:      cfg,
		token:    token,
		dialer:   &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout, Proxy: http.ProxyFromEnvironment},
		logger:   logger,
		metrics:  metrics,
		subs:     newRegistry(),
		watchers: make(map[uuid.UUID]func(error)),
	}
}

// Connect makes sure the channel is connected. It returns immediately when it already
// is; concurrent callers share a single in-flight dial. Exhausting the retry budget
// yields an errs.ErrChannel error.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return errs.New(errs.ErrChannel, "realtime channel closed")
	case c.link != nil:
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	// The dial is detached from ctx so one impatient caller does not fail the others.
	res := c.flight.DoChan("connect", func() (any, error) {
		return nil, c.dial()
	})
	select {
	case r := <-res:
		return r.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connected reports whether a connection is currently up.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.link != nil
}

func (c *Channel) dial() error {
	c.mu.Lock()
	if c.link != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialBackoff
	b.MaxInterval = c.cfg.MaxBackoff
	b.MaxElapsedTime = 0
	b.Reset()
	policy := backoff.WithMaxRetries(b, c.cfg.MaxRetries)

	var conn *websocket.Conn
	attempt := func() error {
		if c.isClosed() {
			return backoff.Permanent(errs.New(errs.ErrChannel, "realtime channel closed"))
		}
		token, err := c.token()
		if err != nil {
			return backoff.Permanent(err)
		}
		header := http.Header{}
		header.Set("Authorization", "Bearer "+token)

		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.HandshakeTimeout)
		defer cancel()
		ws, resp, err := c.dialer.DialContext(ctx, c.cfg.URL, header)
		if err != nil {
			if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
				return backoff.Permanent(errs.Wrap(errs.ErrAuth, "realtime handshake rejected", err))
			}
			return err
		}
		conn = ws
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("realtime dial failed", "url", c.cfg.URL, "error", err, "retry_in", wait)
	}
	if err := backoff.RetryNotify(attempt, policy, notify); err != nil {
		return errs.Wrap(errs.ErrChannel, "realtime connection failed", err)
	}

	l := &link{conn: conn, done: make(chan struct{})}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		l.close()
		return errs.New(errs.ErrChannel, "realtime channel closed")
	}
	c.link = l
	c.mu.Unlock()
	c.logger.Info("realtime connected", "url", c.cfg.URL)

	c.subMu.Lock()
	for _, k := range c.subs.keys() {
		c.write(l, Command{Op: OpSubscribe, Event: k.event, CorrelationID: k.correlationID})
	}
	c.subMu.Unlock()

	go c.readLoop(l)
	go c.keepAlive(l)
	return nil
}

// Subscribe registers h for events of type event about correlationID. Several
// subscriptions to the same key are delivered independently. The subscription
// survives disconnects until the returned func is called.
func (c *Channel) Subscribe(event EventType, correlationID string, h Handler) Unsubscribe {
	k := key{event: event, correlationID: correlationID}

	c.subMu.Lock()
	sub, first := c.subs.add(k, h)
	if first {
		c.send(Command{Op: OpSubscribe, Event: event, CorrelationID: correlationID})
	}
	c.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subMu.Lock()
			defer c.subMu.Unlock()
			if last := c.subs.remove(sub); last {
				c.send(Command{Op: OpUnsubscribe, Event: event, CorrelationID: correlationID})
			}
		})
	}
}

// Subscriptions returns the number of live subscriptions.
func (c *Channel) Subscriptions() int {
	return c.subs.count()
}

// OnFailure registers fn to be told when the channel lost its connection and could not
// get it back within the retry budget.
func (c *Channel) OnFailure(fn func(error)) Unsubscribe {
	id := uuid.New()
	c.mu.Lock()
	c.watchers[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.watchers, id)
			c.mu.Unlock()
		})
	}
}

// Acquire registers one more user of the shared connection.
func (c *Channel) Acquire() {
	c.mu.Lock()
	c.refs++
	c.mu.Unlock()
}

// Release drops a user. The last release closes the channel; a release without a
// matching Acquire is ignored.
func (c *Channel) Release() {
	c.mu.Lock()
	if c.refs == 0 {
		c.mu.Unlock()
		c.logger.Warn("realtime channel released without a matching acquire")
		return
	}
	c.refs--
	last := c.refs == 0
	c.mu.Unlock()
	if last {
		c.Close()
	}
}

// Close shuts the connection down for good. Subscriptions are kept but will never fire.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	l := c.link
	c.link = nil
	c.mu.Unlock()

	if l != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = l.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		l.close()
	}
	return nil
}

// ── connection internals ──────────────────────────────────────────────────────

func (c *Channel) readLoop(l *link) {
	wait := 2 * c.cfg.PingInterval
	_ = l.conn.SetReadDeadline(time.Now().Add(wait))
	l.conn.SetPongHandler(func(string) error {
		return l.conn.SetReadDeadline(time.Now().Add(wait))
	})

	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			c.lost(l, err)
			return
		}
		_ = l.conn.SetReadDeadline(time.Now().Add(wait))

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil || ev.Type == "" {
			c.logger.Warn("realtime frame dropped", "error", err, "bytes", len(data))
			continue
		}
		c.subs.dispatch(ev, c.logger)
	}
}

func (c *Channel) keepAlive(l *link) {
	t := time.NewTicker(c.cfg.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-t.C:
			if err := l.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.HandshakeTimeout)); err != nil {
				c.logger.Debug("realtime ping failed", "error", err)
				return
			}
		}
	}
}

// lost runs on the reader goroutine of a dead link and tries to bring the channel back.
func (c *Channel) lost(l *link, cause error) {
	l.close()
	c.mu.Lock()
	if c.link == l {
		c.link = nil
	}
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}

	c.logger.Warn("realtime connection lost, reconnecting", "error", cause)
	c.metrics.RealtimeReconnects.Add(1)
	if err := c.Connect(context.Background()); err != nil {
		c.logger.Error("realtime reconnection exhausted", "error", err)
		c.notifyFailure(err)
	}
}

func (c *Channel) notifyFailure(err error) {
	c.mu.Lock()
	fns := make([]func(error), 0, len(c.watchers))
	for _, fn := range c.watchers {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(err)
	}
}

func (c *Channel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// send writes cmd on the current link, if any. Without a link the command is implied
// by the registry and replayed on the next connect.
func (c *Channel) send(cmd Command) {
	c.mu.Lock()
	l := c.link
	c.mu.Unlock()
	if l != nil {
		c.write(l, cmd)
	}
}

func (c *Channel) write(l *link, cmd Command) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = l.conn.SetWriteDeadline(time.Now().Add(c.cfg.HandshakeTimeout))
	if err := l.conn.WriteJSON(cmd); err != nil {
		c.logger.Warn("realtime write failed", "op", cmd.Op, "event", cmd.Event, "error", err)
	}
}
