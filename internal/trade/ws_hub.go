// WebSocket hub for real-time quote broadcasting.
package trade

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/atmx/binary-exchange/internal/events"
	"github.com/atmx/binary-exchange/internal/metrics"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 64
)

// ErrBroadcastDropped is returned by Publish when the hub is saturated.
var ErrBroadcastDropped = errors.New("ws: broadcast buffer full, message dropped")

// WSMessage is a JSON message sent to WebSocket clients. Only public market
// data is broadcast; order events stay private to their owner.
type WSMessage struct {
	Type     string    `json:"type"`
	MarketID string    `json:"market_id"`
	Status   string    `json:"status,omitempty"`
	YesPrice string    `json:"yes_price,omitempty"`
	NoPrice  string    `json:"no_price,omitempty"`
	Outcome  string    `json:"outcome,omitempty"`
	Side     string    `json:"side,omitempty"`
	Amount   string    `json:"amount,omitempty"`
	At       time.Time `json:"at"`
}

// MessageFor converts a ledger event to its broadcast form. ok is false for
// events that are not broadcast.
func MessageFor(e events.Event) (WSMessage, bool) {
	msg := WSMessage{Type: "quote_updated", MarketID: e.MarketID, At: e.At}
	switch e.Type {
	case events.TypeTrade:
		msg.Outcome = e.Outcome
		msg.Side = e.Side
		if e.Amount != nil {
			msg.Amount = e.Amount.String()
		}
	case events.TypeMarketCreated:
		msg.Status = e.Status
	case events.TypeMarketStatus:
		msg.Type = "market_status"
		msg.Status = e.Status
		msg.Outcome = e.Outcome
	default:
		return WSMessage{}, false
	}
	if e.YesPrice != nil {
		msg.YesPrice = e.YesPrice.String()
	}
	if e.NoPrice != nil {
		msg.NoPrice = e.NoPrice.String()
	}
	return msg, true
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// WSHub manages WebSocket connections and broadcasts quote changes to all
// connected clients. Each client has its own writer goroutine; the hub
// never writes to a connection itself.
type WSHub struct {
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	done       chan struct{}
	mu         sync.RWMutex
	logger     *slog.Logger
}

// NewWSHub creates a new WebSocket hub.
func NewWSHub(logger *slog.Logger) *WSHub {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run starts the hub's event loop and returns when ctx is done, closing
// every client.
func (h *WSHub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				h.drop(c)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Inc()
			h.logger.Info("ws client connected", "total", n)

		case c := <-h.unregister:
			h.mu.Lock()
			if h.clients[c] {
				h.drop(c)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// Slow client; its writer closes the connection.
					h.drop(c)
				}
			}
			h.mu.Unlock()
		}
	}
}

// drop removes c. Callers hold h.mu.
func (h *WSHub) drop(c *client) {
	delete(h.clients, c)
	close(c.send)
	metrics.WebSocketClients.Dec()
}

// Clients returns the number of connected clients.
func (h *WSHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish queues a broadcast for public events. It never blocks.
func (h *WSHub) Publish(_ context.Context, e events.Event) error {
	msg, ok := MessageFor(e)
	if !ok {
		return nil
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- data:
		return nil
	default:
		return ErrBroadcastDropped
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true // Allow all origins during development.
	},
}

// HandleWS handles WebSocket upgrade requests at GET /api/v1/ws.
func (h *WSHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws upgrade failed", "err", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go h.writePump(c)
	go h.readPump(c)
}

// readPump discards client messages and detects disconnects.
func (h *WSHub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump is the only writer of c.conn. It exits when the hub closes
// c.send.
func (h *WSHub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
