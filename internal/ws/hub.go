package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sweeney/blink-morse/internal/ear"
	"github.com/sweeney/blink-morse/internal/logic"
)

const (
	sendBuffer   = 64
	maxInbound   = 64 << 10
	writeTimeout = 5 * time.Second
)

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// Hub owns the websocket clients. Inbound samples and reset requests are
// forwarded to channels drained by the daemon loop; the hub never touches
// the decoder directly.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*client]bool
	upgrader websocket.Upgrader

	samples chan<- ear.Sample
	resets  chan<- struct{}
	now     func() time.Time
	dropped int
	closed  bool
}

// NewHub creates a hub forwarding into samples and resets. A nil samples
// channel makes the hub output-only.
func NewHub(samples chan<- ear.Sample, resets chan<- struct{}, now func() time.Time) *Hub {
	return &Hub{
		clients: make(map[*client]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		samples: samples,
		resets:  resets,
		now:     now,
	}
}

// ServeWS upgrades the request and serves the connection until it closes.
// hello, if non-nil, is sent first (typically a status snapshot).
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, hello []byte) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws: upgrade failed: %v", err)
		return
	}

	c := newClient(conn)
	if hello != nil {
		c.send <- hello
	}
	h.mu.Lock()
	if h.closed {
		// Upgraded after Close: flush hello and hang up.
		h.mu.Unlock()
		close(c.send)
		return
	}
	h.clients[c] = true
	h.mu.Unlock()

	h.readPump(c)
	h.removeClient(c)
}

func (h *Hub) readPump(c *client) {
	c.conn.SetReadLimit(maxInbound)
	for {
		var msg InboundMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws: read error: %v", err)
			}
			return
		}
		h.dispatch(msg)
	}
}

// dispatch stamps samples on arrival so the decoder sees one monotonic clock
// regardless of which client produced them.
func (h *Hub) dispatch(msg InboundMessage) {
	if msg.Type == MsgReset {
		select {
		case h.resets <- struct{}{}:
		default:
			// A reset is already queued.
		}
		return
	}

	if h.samples == nil {
		return
	}
	v, ok := msg.Ratio()
	if !ok {
		return
	}
	select {
	case h.samples <- ear.Sample{EAR: v, Time: h.now()}:
	default:
		h.mu.Lock()
		h.dropped++
		if h.dropped == 1 || h.dropped%100 == 0 {
			log.Printf("ws: sample queue full, %d samples dropped", h.dropped)
		}
		h.mu.Unlock()
	}
}

func (h *Hub) removeClient(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast sends a decoder event to every client.
func (h *Hub) Broadcast(ev logic.Event) {
	h.broadcast(WSMessage{Type: MsgEvent, Payload: NewEventPayload(ev)})
}

// BroadcastRaw sends a pre-encoded message to every client.
func (h *Hub) BroadcastRaw(msgType string, payload json.RawMessage) {
	h.broadcast(WSMessage{Type: msgType, Payload: payload})
}

func (h *Hub) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("ws: broadcast marshal error: %v", err)
		return
	}

	// Sends happen under the read lock so removeClient cannot close a
	// channel mid-send.
	var slow []*client
	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		log.Printf("ws: client too slow, disconnecting")
		h.removeClient(c)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects all clients. Connections upgraded afterwards are closed
// immediately.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
