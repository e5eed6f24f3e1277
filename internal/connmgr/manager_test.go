package connmgr

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mememarket/exchange/internal/domain"
)

// fakeTransport records sent payloads and can be told to fail.
type fakeTransport struct {
	mu      sync.Mutex
	sent    [][]byte
	closed  bool
	fail    bool
	sendErr error // returned once per Send while set
}

func (f *fakeTransport) Send(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	if f.fail || f.closed {
		return domain.ErrConnClosed
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	f.sent = append(f.sent, cp)
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) payloads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, p := range f.sent {
		out[i] = string(p)
	}
	return out
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(cfg Config) *Manager {
	return New(cfg, testLogger())
}

func TestRegisterSubscribePublish(t *testing.T) {
	m := newTestManager(Config{})
	ft := &fakeTransport{}
	id := m.Register(ft)

	if err := m.Subscribe(id, "mkt-1"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	m.Publish("mkt-1", "price_update", []byte(`{"p":1}`))
	m.Publish("mkt-2", "price_update", []byte(`{"p":2}`)) // no subscribers

	stats := m.Stats()
	if stats.ActiveConnections != 1 || stats.TotalSubscriptions != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.QueueDepth != 1 {
		t.Fatalf("queue depth = %d, want 1", stats.QueueDepth)
	}

	m.drainBatch()
	got := ft.payloads()
	if len(got) != 1 || got[0] != `{"p":1}` {
		t.Fatalf("delivered = %v", got)
	}
}

func TestSubscribeUnknownConnection(t *testing.T) {
	m := newTestManager(Config{})
	if err := m.Subscribe("ghost", "mkt-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if err := m.Unsubscribe("ghost", "mkt-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	m := newTestManager(Config{})
	ft := &fakeTransport{}
	id := m.Register(ft)

	if err := m.Subscribe(id, "mkt-1"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := m.Unsubscribe(id, "mkt-1"); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}

	m.Publish("mkt-1", "price_update", []byte(`{"p":1}`))
	m.drainBatch()

	if got := ft.payloads(); len(got) != 0 {
		t.Fatalf("delivered after unsubscribe: %v", got)
	}
}

func TestCoalescingKeepsLatestPayload(t *testing.T) {
	m := newTestManager(Config{})
	ft := &fakeTransport{}
	id := m.Register(ft)
	if err := m.Subscribe(id, "mkt-1"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	m.Publish("mkt-1", "price_update", []byte(`{"seq":1}`))
	m.Publish("mkt-1", "price_update", []byte(`{"seq":2}`))
	m.Publish("mkt-1", "price_update", []byte(`{"seq":3}`))
	m.Publish("mkt-1", "trade", []byte(`{"t":1}`))
	m.drainBatch()

	got := ft.payloads()
	if len(got) != 2 {
		t.Fatalf("delivered %d messages, want 2: %v", len(got), got)
	}
	if got[0] != `{"seq":3}` {
		t.Fatalf("coalesced payload = %s, want latest", got[0])
	}
	if got[1] != `{"t":1}` {
		t.Fatalf("distinct key payload = %s", got[1])
	}

	stats := m.Stats()
	if stats.MessagesCoalesced != 2 {
		t.Fatalf("coalesced counter = %d, want 2", stats.MessagesCoalesced)
	}
	if stats.MessagesSent != 2 {
		t.Fatalf("sent counter = %d, want 2", stats.MessagesSent)
	}
}

func TestBatchMaxSizeLeavesRemainder(t *testing.T) {
	m := newTestManager(Config{BatchMaxSize: 2})
	ft := &fakeTransport{}
	id := m.Register(ft)
	if err := m.Subscribe(id, "mkt-1"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	for i := 0; i < 5; i++ {
		m.Publish("mkt-1", "trade", []byte{byte('0' + i)})
	}

	m.drainBatch()
	if depth := m.Stats().QueueDepth; depth != 3 {
		t.Fatalf("queue depth after drain = %d, want 3", depth)
	}
}

func TestRateLimitDropsExcess(t *testing.T) {
	m := newTestManager(Config{RateLimit: 3, RateWindow: time.Second})
	ft := &fakeTransport{}
	id := m.Register(ft)
	if err := m.Subscribe(id, "mkt-1"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	// Distinct keys so coalescing cannot shrink the batch below the limit.
	for i := 0; i < 6; i++ {
		m.Publish("mkt-1", string(rune('a'+i)), []byte(`x`))
	}
	m.drainBatch()

	if got := len(ft.payloads()); got != 3 {
		t.Fatalf("delivered %d messages, want 3", got)
	}
	if dropped := m.Stats().MessagesDropped; dropped != 3 {
		t.Fatalf("dropped counter = %d, want 3", dropped)
	}
}

func TestSendFailureDisconnects(t *testing.T) {
	m := newTestManager(Config{})
	ft := &fakeTransport{fail: true}
	id := m.Register(ft)
	if err := m.Subscribe(id, "mkt-1"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	m.Publish("mkt-1", "trade", []byte(`x`))
	m.drainBatch()

	stats := m.Stats()
	if stats.ActiveConnections != 0 {
		t.Fatalf("dead connection still registered: %+v", stats)
	}
	if !ft.isClosed() {
		t.Fatal("transport not closed after send failure")
	}
	if stats.Disconnects != 1 {
		t.Fatalf("disconnects = %d, want 1", stats.Disconnects)
	}
}

type fakeCounter struct {
	mu     sync.Mutex
	counts []int
}

func (f *fakeCounter) SetConnectionCount(_ context.Context, n int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts = append(f.counts, n)
	return nil
}

func TestConnCounterMirrorsRegistry(t *testing.T) {
	m := newTestManager(Config{})
	counter := &fakeCounter{}
	m.SetConnCounter(counter)

	a := m.Register(&fakeTransport{})
	b := m.Register(&fakeTransport{})
	m.Unregister(a)
	m.Unregister(b)

	counter.mu.Lock()
	defer counter.mu.Unlock()
	want := []int{1, 2, 1, 0}
	if len(counter.counts) != len(want) {
		t.Fatalf("counts = %v, want %v", counter.counts, want)
	}
	for i, n := range want {
		if counter.counts[i] != n {
			t.Fatalf("counts = %v, want %v", counter.counts, want)
		}
	}
}

func TestTransientSendErrorKeepsConnection(t *testing.T) {
	m := newTestManager(Config{})
	ft := &fakeTransport{sendErr: errors.New("temporary write error")}
	id := m.Register(ft)
	if err := m.Subscribe(id, "mkt-1"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	m.Publish("mkt-1", "trade", []byte(`x`))
	m.drainBatch()

	stats := m.Stats()
	if stats.ActiveConnections != 1 {
		t.Fatalf("connection dropped on a transient error: %+v", stats)
	}
	if ft.isClosed() {
		t.Fatal("transport closed on a transient error")
	}
	if stats.SendErrors != 1 {
		t.Fatalf("send errors = %d, want 1", stats.SendErrors)
	}
	if stats.Disconnects != 0 {
		t.Fatalf("disconnects = %d, want 0", stats.Disconnects)
	}

	// Once the transport recovers, delivery resumes on the next tick.
	ft.mu.Lock()
	ft.sendErr = nil
	ft.mu.Unlock()

	m.Publish("mkt-1", "trade", []byte(`y`))
	m.drainBatch()

	if got := ft.payloads(); len(got) != 1 || got[0] != "y" {
		t.Fatalf("payloads after recovery = %v", got)
	}
}

func TestSendDirectTransientErrorKeepsConnection(t *testing.T) {
	m := newTestManager(Config{})
	ft := &fakeTransport{sendErr: errors.New("temporary write error")}
	id := m.Register(ft)

	if err := m.SendDirect(id, []byte(`ack`)); err == nil {
		t.Fatal("expected send error to surface")
	}

	stats := m.Stats()
	if stats.ActiveConnections != 1 || stats.SendErrors != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if ft.isClosed() {
		t.Fatal("transport closed on a transient error")
	}
}

func TestSendDirect(t *testing.T) {
	m := newTestManager(Config{})
	ft := &fakeTransport{}
	id := m.Register(ft)

	if err := m.SendDirect(id, []byte(`ack`)); err != nil {
		t.Fatalf("send direct: %v", err)
	}
	if got := ft.payloads(); len(got) != 1 || got[0] != "ack" {
		t.Fatalf("delivered = %v", got)
	}
	if err := m.SendDirect("ghost", []byte(`x`)); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestSweepDisconnectsIdle(t *testing.T) {
	m := newTestManager(Config{IdleTimeout: time.Minute})
	idle := &fakeTransport{}
	fresh := &fakeTransport{}
	idleID := m.Register(idle)
	freshID := m.Register(fresh)

	// Age the idle connection past the timeout, keep the other fresh.
	m.mu.Lock()
	m.conns[idleID].lastActive = time.Now().Add(-2 * time.Minute)
	m.mu.Unlock()
	m.Touch(freshID)

	m.sweepIdle(time.Now())

	if !idle.isClosed() {
		t.Fatal("idle connection not swept")
	}
	if fresh.isClosed() {
		t.Fatal("fresh connection swept")
	}
	if got := m.Stats().ActiveConnections; got != 1 {
		t.Fatalf("active = %d, want 1", got)
	}
}

func TestUnregisterCleansSubscriptionGraph(t *testing.T) {
	m := newTestManager(Config{})
	ft := &fakeTransport{}
	id := m.Register(ft)
	if err := m.Subscribe(id, "mkt-1"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	m.Unregister(id)

	m.Publish("mkt-1", "trade", []byte(`x`))
	if depth := m.Stats().QueueDepth; depth != 0 {
		t.Fatalf("queue depth = %d after unregister", depth)
	}
	if !ft.isClosed() {
		t.Fatal("transport not closed on unregister")
	}
}

func TestSlidingWindowRefills(t *testing.T) {
	w := newSlidingWindow(2, time.Second)
	base := time.Now()

	if !w.allow(base) || !w.allow(base) {
		t.Fatal("window rejected events under the limit")
	}
	if w.allow(base.Add(100 * time.Millisecond)) {
		t.Fatal("window admitted event over the limit")
	}
	if !w.allow(base.Add(1100 * time.Millisecond)) {
		t.Fatal("window did not refill after the window elapsed")
	}
}
