package refapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pulseboard/feedmirror/internal/realtime"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type streamClient struct {
	conn     *websocket.Conn
	send     chan []byte
	channels map[string]struct{}
}

type subscribeRequest struct {
	Action  string `json:"action"`
	Channel string `json:"channel"`
}

// Hub fans mutation envelopes out to stream subscribers. Delivery is
// at-least-once from the consumer's point of view because clients
// re-subscribe after reconnecting and may see an event again.
type Hub struct {
	mu      sync.Mutex
	clients map[*streamClient]struct{}
	closed  bool
}

// NewHub ...
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*streamClient]struct{}),
	}
}

// Serve upgrades the request and pumps envelopes until the peer goes away.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Debug("failed to upgrade stream request")
		return
	}

	c := &streamClient{
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		channels: make(map[string]struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writePump(c)
	h.readPump(c)
}

// Broadcast sends env to every client subscribed to its channel. A client
// that cannot keep up is dropped rather than allowed to stall the rest.
func (h *Hub) Broadcast(env realtime.Envelope) {
	body, err := json.Marshal(env)
	if err != nil {
		log.WithError(err).Error("failed to marshal envelope")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		if _, ok := c.channels[env.Channel]; !ok {
			continue
		}

		select {
		case c.send <- body:
		default:
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true

	for c := range h.clients {
		close(c.send)
	}
	h.clients = nil
}

func (h *Hub) readPump(c *streamClient) {
	defer h.drop(c)

	c.conn.SetReadLimit(1024)
	c.conn.SetReadDeadline(time.Now().Add(pongWait)) // nolint:errcheck
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var req subscribeRequest
		if err := c.conn.ReadJSON(&req); err != nil {
			return
		}

		if req.Channel == "" {
			continue
		}

		h.mu.Lock()
		switch req.Action {
		case "subscribe":
			c.channels[req.Channel] = struct{}{}
		case "unsubscribe":
			delete(c.channels, req.Channel)
		}
		h.mu.Unlock()
	}
}

func (h *Hub) writePump(c *streamClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case body, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) // nolint:errcheck
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) // nolint:errcheck
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, body); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) // nolint:errcheck
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) drop(c *streamClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()

	c.conn.Close()
}
