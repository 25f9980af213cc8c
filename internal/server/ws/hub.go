// Package ws streams publish events to WebSocket clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/openoracle/internal/domain"
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
	sendBufferSize = 64
)

// upgrader configures the WebSocket upgrade parameters. Origin checks are
// left to the CORS and auth middleware in front of the hub.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// client represents a single WebSocket connection. An empty key set means
// the client receives every event.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	keys map[string]bool
	mu   sync.RWMutex
}

// subscribeMsg is the JSON message a client sends to narrow or widen the keys
// it receives, e.g. {"action":"subscribe","keys":["OKX:BTC","Coinbase:*"]}.
type subscribeMsg struct {
	Action string   `json:"action"` // "subscribe" or "unsubscribe"
	Keys   []string `json:"keys"`
}

// eventKey is the part of a publish event the hub routes on.
type eventKey struct {
	Key string `json:"key"`
}

// Hub manages a set of connected WebSocket clients and forwards publish
// events from the event bus to the clients subscribed to their key.
type Hub struct {
	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	sub        domain.EventSubscriber
	mu         sync.RWMutex
	logger     *slog.Logger
	mode       string
	startedAt  time.Time
}

// Config captures runtime metadata sent to WebSocket clients on connect.
type Config struct {
	Mode      string
	StartedAt time.Time
}

// NewHub creates a hub that relays domain.PublishChannel to clients.
func NewHub(sub domain.EventSubscriber, logger *slog.Logger, cfg Config) *Hub {
	mode := strings.TrimSpace(strings.ToLower(cfg.Mode))
	if mode == "" {
		mode = "unknown"
	}
	startedAt := cfg.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}

	return &Hub{
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		sub:        sub,
		logger:     logger.With(slog.String("component", "ws_hub")),
		mode:       mode,
		startedAt:  startedAt,
	}
}

// Run starts the hub's main event loop. It handles client registration,
// unregistration and broadcasting, and exits when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	events, err := h.sub.Subscribe(ctx, domain.PublishChannel)
	if err != nil {
		h.logger.ErrorContext(ctx, "ws: failed to subscribe to publish events",
			slog.String("channel", domain.PublishChannel),
			slog.String("error", err.Error()),
		)
		events = nil
	}

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.Info("ws: client connected",
				slog.Int("total_clients", h.clientCount()),
			)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Info("ws: client disconnected",
				slog.Int("total_clients", h.clientCount()),
			)

		case data, ok := <-events:
			if !ok {
				h.logger.Warn("ws: publish event subscription closed")
				events = nil
				continue
			}
			h.deliver(data)
		}
	}
}

func (h *Hub) deliver(data []byte) {
	var ek eventKey
	if err := json.Unmarshal(data, &ek); err != nil {
		h.logger.Warn("ws: dropping undecodable event", slog.String("error", err.Error()))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.isSubscribed(ek.Key) {
			continue
		}
		select {
		case c.send <- data:
		default:
			// Client's send buffer is full; drop the message.
			h.logger.Warn("ws: dropping message for slow client")
		}
	}
}

// HandleWS upgrades an HTTP request to a WebSocket connection and registers
// the client with the hub.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		keys: make(map[string]bool),
	}

	h.register <- c
	c.sendInitialStatus()

	// Start read and write pumps in separate goroutines.
	go c.writePump()
	go c.readPump()
}

// clientCount returns the number of currently connected clients.
func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// readPump reads subscription requests from the WebSocket connection.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close error",
					slog.String("error", err.Error()),
				)
			}
			return
		}

		var sub subscribeMsg
		if jsonErr := json.Unmarshal(message, &sub); jsonErr == nil && sub.Action != "" {
			c.handleSubscription(sub)
		}
	}
}

// handleSubscription processes subscribe/unsubscribe requests from the client.
func (c *client) handleSubscription(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch msg.Action {
	case "subscribe":
		for _, k := range msg.Keys {
			c.keys[k] = true
		}
	case "unsubscribe":
		for _, k := range msg.Keys {
			delete(c.keys, k)
		}
	}
}

// sendInitialStatus pushes a small JSON envelope so clients can mark the
// connection as healthy before the next cycle publishes anything.
func (c *client) sendInitialStatus() {
	uptime := int64(time.Since(c.hub.startedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}

	msg, err := json.Marshal(map[string]any{
		"event":          "hello",
		"mode":           c.hub.mode,
		"uptime_seconds": uptime,
	})
	if err != nil {
		return
	}

	select {
	case c.send <- msg:
	default:
	}
}

// isSubscribed checks whether the client wants events for key. "OKX:*"
// matches every OKX key.
func (c *client) isSubscribed(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.keys) == 0 || c.keys[key] {
		return true
	}
	for sub := range c.keys {
		if prefix, ok := strings.CutSuffix(sub, "*"); ok && strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

// writePump pumps messages from the hub to the WebSocket connection as text
// frames and sends periodic pings for keepalive.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
