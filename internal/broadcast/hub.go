// Package broadcast pushes session progress to live observers over
// WebSocket so a UI can follow a deliberation while it runs.
package broadcast

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dyike/CrewGo/models"
)

// Publisher receives progress events as a session runs. Publishing
// never blocks the deliberation.
type Publisher interface {
	Publish(event models.ProgressEvent)
}

// LogPublisher writes events to the process log. It is the default
// when no WebSocket observers are wanted.
type LogPublisher struct{}

func (LogPublisher) Publish(event models.ProgressEvent) {
	log.Printf("[%s] session=%s", event.Type, event.SessionID)
}

const clientSendBuffer = 64

// Hub fans every published event out to the connected WebSocket
// clients. A client whose send buffer stays full is dropped rather
// than allowed to stall the session.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan models.ProgressEvent
	once sync.Once
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and streams events until the client
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan models.ProgressEvent, clientSendBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	log.Printf("Observer connected from %s", r.RemoteAddr)

	go h.writeLoop(c)
	h.readLoop(c)
}

// Publish sends the event to every connected client. Full clients are
// disconnected.
func (h *Hub) Publish(event models.ProgressEvent) {
	h.mu.RLock()
	stale := make([]*client, 0)
	for c := range h.clients {
		select {
		case c.send <- event:
		default:
			stale = append(stale, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range stale {
		log.Printf("Dropping slow observer")
		h.remove(c)
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

// ClientCount reports how many observers are connected.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		c.close()
	}
}

func (h *Hub) writeLoop(c *client) {
	for event := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteJSON(event); err != nil {
			h.remove(c)
			return
		}
	}
}

// readLoop drains control frames and detects disconnects. Inbound
// data frames are ignored.
func (h *Hub) readLoop(c *client) {
	defer h.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.send)
		c.conn.Close()
	})
}

var _ Publisher = (*Hub)(nil)
var _ Publisher = LogPublisher{}
