// Package ws bridges WebSocket connections to the fan-out manager. Each
// accepted connection becomes a connmgr.Transport with its own write pump;
// the read pump handles the subscribe/unsubscribe protocol and feeds
// activity back so the idle sweep keeps live connections.
package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mememarket/exchange/internal/connmgr"
	"github.com/mememarket/exchange/internal/domain"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 4096

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 256
)

// upgrader configures the WebSocket upgrade parameters.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Browsers connect from arbitrary frontend origins.
		return true
	},
}

// clientMsg is the JSON protocol clients speak: subscribe and unsubscribe
// carry a market id.
type clientMsg struct {
	Type     string `json:"type"`
	MarketID string `json:"market_id"`
}

// Endpoint accepts WebSocket upgrades and hands connections to the manager.
type Endpoint struct {
	mgr    *connmgr.Manager
	logger *slog.Logger
}

// NewEndpoint creates the WebSocket endpoint.
func NewEndpoint(mgr *connmgr.Manager, logger *slog.Logger) *Endpoint {
	return &Endpoint{
		mgr:    mgr,
		logger: logger.With(slog.String("component", "ws")),
	}
}

// transport adapts one gorilla connection to connmgr.Transport. Send only
// enqueues; the write pump owns the connection's write side.
type transport struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

var _ connmgr.Transport = (*transport)(nil)

func (t *transport) Send(payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return domain.ErrConnClosed
	}
	select {
	case t.send <- payload:
		return nil
	default:
		// Buffer full means the peer stopped reading.
		return domain.ErrConnClosed
	}
}

func (t *transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.send)
	return nil
}

// HandleWS upgrades the request and runs the connection until either side
// goes away.
// GET /ws
func (e *Endpoint) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		e.logger.Error("upgrade failed", slog.String("error", err.Error()))
		return
	}

	t := &transport{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
	connID := e.mgr.Register(t)

	go e.writePump(t)
	e.readPump(connID, t)
}

// readPump processes inbound frames until the connection drops, then
// unregisters it.
func (e *Endpoint) readPump(connID string, t *transport) {
	defer func() {
		e.mgr.Unregister(connID)
		t.conn.Close()
	}()

	t.conn.SetReadLimit(maxMessageSize)
	t.conn.SetReadDeadline(time.Now().Add(pongWait))
	t.conn.SetPongHandler(func(string) error {
		t.conn.SetReadDeadline(time.Now().Add(pongWait))
		e.mgr.Touch(connID)
		return nil
	})

	for {
		_, message, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				e.logger.Warn("unexpected close",
					slog.String("conn_id", connID),
					slog.String("error", err.Error()),
				)
			}
			return
		}
		e.mgr.Touch(connID)
		e.handleMessage(connID, message)
	}
}

// handleMessage dispatches one client frame.
func (e *Endpoint) handleMessage(connID string, message []byte) {
	var msg clientMsg
	if err := json.Unmarshal(message, &msg); err != nil {
		e.reply(connID, map[string]string{"type": "error", "message": "invalid JSON"})
		return
	}

	switch msg.Type {
	case "subscribe":
		if msg.MarketID == "" {
			e.reply(connID, map[string]string{"type": "error", "message": "market_id required"})
			return
		}
		if err := e.mgr.Subscribe(connID, msg.MarketID); err != nil {
			return
		}
		e.reply(connID, map[string]string{"type": "subscribed", "market_id": msg.MarketID})

	case "unsubscribe":
		if msg.MarketID == "" {
			e.reply(connID, map[string]string{"type": "error", "message": "market_id required"})
			return
		}
		if err := e.mgr.Unsubscribe(connID, msg.MarketID); err != nil {
			return
		}
		e.reply(connID, map[string]string{"type": "unsubscribed", "market_id": msg.MarketID})

	case "ping":
		e.reply(connID, map[string]string{"type": "pong"})

	default:
		e.reply(connID, map[string]string{"type": "error", "message": "unknown message type"})
	}
}

// reply sends a control response directly, bypassing the batch queue.
func (e *Endpoint) reply(connID string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := e.mgr.SendDirect(connID, data); err != nil {
		e.logger.Debug("reply failed",
			slog.String("conn_id", connID),
			slog.String("error", err.Error()),
		)
	}
}

// writePump drains the transport's send channel onto the wire and keeps the
// connection alive with pings.
func (e *Endpoint) writePump(t *transport) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		t.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-t.send:
			t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				t.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := t.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := t.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
