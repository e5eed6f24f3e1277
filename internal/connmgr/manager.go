// Package connmgr fans exchange events out to subscriber connections. It
// batches the outbound queue on a fixed tick, coalesces superseded payloads
// per connection, rate-limits each connection on a sliding window, and sweeps
// idle connections. The manager knows nothing about WebSockets: it writes to
// a Transport and the server layer supplies one per connection.
package connmgr

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mememarket/exchange/internal/domain"
)

// Transport is one subscriber's write side. Send must be safe for calls from
// the manager's loops; implementations surface domain.ErrConnClosed once the
// peer is gone.
type Transport interface {
	Send(payload []byte) error
	Close() error
}

// ConnCounter mirrors the live connection count into an external store,
// satisfied by the redis quote cache. Best-effort; errors are ignored.
type ConnCounter interface {
	SetConnectionCount(ctx context.Context, n int) error
}

// Config tunes the fan-out loops. Zero values take the defaults below.
type Config struct {
	BatchInterval time.Duration // queue drain tick
	BatchMaxSize  int           // max queue items per drain
	RateLimit     int           // messages per connection per window
	RateWindow    time.Duration // sliding rate-limit window
	SweepInterval time.Duration // idle-connection sweep tick
	IdleTimeout   time.Duration // disconnect after this much silence
}

func (c Config) withDefaults() Config {
	if c.BatchInterval <= 0 {
		c.BatchInterval = 100 * time.Millisecond
	}
	if c.BatchMaxSize <= 0 {
		c.BatchMaxSize = 100
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 10
	}
	if c.RateWindow <= 0 {
		c.RateWindow = time.Second
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 30 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 5 * time.Minute
	}
	return c
}

// Stats is a point-in-time snapshot of the manager's counters.
type Stats struct {
	ActiveConnections  int   `json:"active_connections"`
	TotalSubscriptions int   `json:"total_subscriptions"`
	QueueDepth         int   `json:"queue_depth"`
	MessagesSent       int64 `json:"messages_sent"`
	MessagesCoalesced  int64 `json:"messages_coalesced"`
	MessagesDropped    int64 `json:"messages_dropped"`
	SendErrors         int64 `json:"send_errors"`
	Disconnects        int64 `json:"disconnects"`

	// MarketSubscribers maps market id to current subscriber count.
	MarketSubscribers map[string]int `json:"market_subscribers"`
}

type conn struct {
	id         string
	transport  Transport
	subs       map[string]struct{} // market ids
	limiter    *slidingWindow
	lastActive time.Time
}

// queued is one pending outbound message. Messages with the same (conn, key)
// supersede each other within a batch; later payloads win.
type queued struct {
	connID  string
	key     string
	payload []byte
}

// Manager is the connection and subscription registry plus the outbound
// queue. All maps are guarded by mu; the loops only hold it long enough to
// snapshot what they need and never across a Transport call.
type Manager struct {
	cfg     Config
	logger  *slog.Logger
	counter ConnCounter // may be nil

	mu    sync.Mutex
	conns map[string]*conn
	subs  map[string]map[string]*conn // market id -> conn id -> conn
	queue []queued

	sent       int64
	coalesced  int64
	dropped    int64
	sendErrors int64
	closed     int64
}

func New(cfg Config, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:    cfg.withDefaults(),
		logger: logger.With(slog.String("component", "connmgr")),
		conns:  make(map[string]*conn),
		subs:   make(map[string]map[string]*conn),
	}
}

// SetConnCounter attaches the external connection-count mirror. Call before
// the manager starts accepting connections.
func (m *Manager) SetConnCounter(c ConnCounter) {
	m.counter = c
}

// publishCount mirrors the current connection count. Never called under m.mu.
func (m *Manager) publishCount(n int) {
	if m.counter == nil {
		return
	}
	_ = m.counter.SetConnectionCount(context.Background(), n)
}

// Register adds a transport and returns its connection id.
func (m *Manager) Register(t Transport) string {
	c := &conn{
		id:         uuid.NewString(),
		transport:  t,
		subs:       make(map[string]struct{}),
		limiter:    newSlidingWindow(m.cfg.RateLimit, m.cfg.RateWindow),
		lastActive: time.Now(),
	}

	m.mu.Lock()
	m.conns[c.id] = c
	total := len(m.conns)
	m.mu.Unlock()

	m.logger.Info("connection registered",
		slog.String("conn_id", c.id),
		slog.Int("active", total),
	)
	m.publishCount(total)
	return c.id
}

// Unregister removes the connection, drops its subscriptions, and closes its
// transport.
func (m *Manager) Unregister(connID string) {
	m.mu.Lock()
	c, ok := m.conns[connID]
	if ok {
		m.dropLocked(c)
	}
	total := len(m.conns)
	m.mu.Unlock()

	if ok {
		_ = c.transport.Close()
		m.logger.Info("connection unregistered", slog.String("conn_id", connID))
		m.publishCount(total)
	}
}

// dropLocked removes the connection from both the registry and the
// subscription graph. Caller holds m.mu and closes the transport afterwards.
func (m *Manager) dropLocked(c *conn) {
	delete(m.conns, c.id)
	for marketID := range c.subs {
		if set, ok := m.subs[marketID]; ok {
			delete(set, c.id)
			if len(set) == 0 {
				delete(m.subs, marketID)
			}
		}
	}
	m.closed++
}

// Subscribe adds the connection to a market's subscriber set.
func (m *Manager) Subscribe(connID, marketID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conns[connID]
	if !ok {
		return domain.ErrNotFound
	}
	c.subs[marketID] = struct{}{}
	c.lastActive = time.Now()

	set, ok := m.subs[marketID]
	if !ok {
		set = make(map[string]*conn)
		m.subs[marketID] = set
	}
	set[connID] = c
	return nil
}

// Unsubscribe removes the connection from a market's subscriber set.
func (m *Manager) Unsubscribe(connID, marketID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conns[connID]
	if !ok {
		return domain.ErrNotFound
	}
	delete(c.subs, marketID)
	c.lastActive = time.Now()

	if set, ok := m.subs[marketID]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(m.subs, marketID)
		}
	}
	return nil
}

// Touch records inbound activity so the sweep loop keeps the connection.
func (m *Manager) Touch(connID string) {
	m.mu.Lock()
	if c, ok := m.conns[connID]; ok {
		c.lastActive = time.Now()
	}
	m.mu.Unlock()
}

// Publish enqueues payload for every subscriber of the market. The key
// identifies the message stream: payloads sharing a key coalesce within one
// batch, so use distinct keys for streams where every message matters.
func (m *Manager) Publish(marketID, key string, payload []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.subs[marketID]
	if !ok {
		return
	}
	for connID := range set {
		m.queue = append(m.queue, queued{connID: connID, key: key, payload: payload})
	}
}

// SendDirect writes to one connection immediately, bypassing the batch queue.
// Used for subscription acks and error replies.
func (m *Manager) SendDirect(connID string, payload []byte) error {
	m.mu.Lock()
	c, ok := m.conns[connID]
	m.mu.Unlock()
	if !ok {
		return domain.ErrNotFound
	}

	if err := c.transport.Send(payload); err != nil {
		m.handleSendError(c.id, err)
		return err
	}

	m.mu.Lock()
	m.sent++
	m.mu.Unlock()
	return nil
}

// handleSendError applies the send-failure policy: a closed transport means
// the connection is gone and gets unregistered; any other error is counted
// and the connection is left intact for the next attempt.
func (m *Manager) handleSendError(connID string, err error) {
	if errors.Is(err, domain.ErrConnClosed) {
		m.logger.Warn("send failed on closed transport, dropping connection",
			slog.String("conn_id", connID),
		)
		m.Unregister(connID)
		return
	}
	m.logger.Warn("send failed, keeping connection",
		slog.String("conn_id", connID),
		slog.String("error", err.Error()),
	)
	m.mu.Lock()
	m.sendErrors++
	m.mu.Unlock()
}

// RunBatchLoop drains the queue on every batch tick until ctx is cancelled.
func (m *Manager) RunBatchLoop(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.BatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.drainBatch()
		}
	}
}

// drainBatch takes up to BatchMaxSize items off the queue in FIFO order,
// coalesces per (connection, key), and delivers what the per-connection rate
// limits allow.
func (m *Manager) drainBatch() {
	type slot struct {
		c       *conn
		payload []byte
	}

	m.mu.Lock()
	n := len(m.queue)
	if n == 0 {
		m.mu.Unlock()
		return
	}
	if n > m.cfg.BatchMaxSize {
		n = m.cfg.BatchMaxSize
	}
	batch := m.queue[:n]

	// Coalesce: latest payload wins per (conn, key); delivery keeps the
	// order of each slot's first appearance.
	order := make([]string, 0, n)
	slots := make(map[string]*slot, n)
	for _, q := range batch {
		c, ok := m.conns[q.connID]
		if !ok {
			continue
		}
		id := q.connID + "\x00" + q.key
		if s, ok := slots[id]; ok {
			s.payload = q.payload
			m.coalesced++
			continue
		}
		slots[id] = &slot{c: c, payload: q.payload}
		order = append(order, id)
	}

	m.queue = m.queue[n:]
	if len(m.queue) == 0 {
		m.queue = nil
	}

	now := time.Now()
	deliver := make([]*slot, 0, len(order))
	for _, id := range order {
		s := slots[id]
		if !s.c.limiter.allow(now) {
			m.dropped++
			continue
		}
		deliver = append(deliver, s)
	}
	m.mu.Unlock()

	for _, s := range deliver {
		if err := s.c.transport.Send(s.payload); err != nil {
			m.handleSendError(s.c.id, err)
			continue
		}
		m.mu.Lock()
		m.sent++
		m.mu.Unlock()
	}
}

// RunSweepLoop disconnects idle connections until ctx is cancelled.
func (m *Manager) RunSweepLoop(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.sweepIdle(time.Now())
		}
	}
}

func (m *Manager) sweepIdle(now time.Time) {
	m.mu.Lock()
	var stale []*conn
	for _, c := range m.conns {
		if now.Sub(c.lastActive) > m.cfg.IdleTimeout {
			stale = append(stale, c)
			m.dropLocked(c)
		}
	}
	total := len(m.conns)
	m.mu.Unlock()

	for _, c := range stale {
		_ = c.transport.Close()
		m.logger.Info("idle connection swept", slog.String("conn_id", c.id))
	}
	if len(stale) > 0 {
		m.publishCount(total)
	}
}

// Stats returns a snapshot of the manager's counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := 0
	for _, c := range m.conns {
		total += len(c.subs)
	}
	perMarket := make(map[string]int, len(m.subs))
	for marketID, conns := range m.subs {
		perMarket[marketID] = len(conns)
	}
	return Stats{
		ActiveConnections:  len(m.conns),
		TotalSubscriptions: total,
		QueueDepth:         len(m.queue),
		MessagesSent:       m.sent,
		MessagesCoalesced:  m.coalesced,
		MessagesDropped:    m.dropped,
		SendErrors:         m.sendErrors,
		Disconnects:        m.closed,
		MarketSubscribers:  perMarket,
	}
}
