package realtime

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Conn is one live client connection. A user on two devices holds two
// Conns; presence tracks all of them.
type Conn struct {
	ID     string
	UserID int64
	Role   string

	ws     *websocket.Conn
	send   chan []byte
	topics map[string]struct{}

	closeOnce sync.Once
}

// NewConn wraps a websocket connection for hub bookkeeping. ws may be
// nil in tests; messages then accumulate on the send channel.
func NewConn(userID int64, role string, ws *websocket.Conn) *Conn {
	return &Conn{
		ID:     uuid.NewString(),
		UserID: userID,
		Role:   role,
		ws:     ws,
		send:   make(chan []byte, 256),
		topics: make(map[string]struct{}),
	}
}

func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// Hub is the room/topic router plus the presence registry. It is an
// injected service object constructed at process start, not a package
// singleton, so tests can run several independent instances.
type Hub struct {
	mu       sync.RWMutex
	topics   map[string]map[*Conn]struct{}
	presence map[int64]map[*Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{
		topics:   make(map[string]map[*Conn]struct{}),
		presence: make(map[int64]map[*Conn]struct{}),
	}
}

// Register records presence for the connection's user and
// auto-subscribes it to its user topic.
func (h *Hub) Register(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.presence[c.UserID] == nil {
		h.presence[c.UserID] = make(map[*Conn]struct{})
	}
	h.presence[c.UserID][c] = struct{}{}
	h.subscribeLocked(c, UserTopic(c.UserID))
}

// Subscribe joins the connection to a topic. Idempotent.
func (h *Hub) Subscribe(c *Conn, topic string) {
	if topic == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribeLocked(c, topic)
}

func (h *Hub) subscribeLocked(c *Conn, topic string) {
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[*Conn]struct{})
	}
	h.topics[topic][c] = struct{}{}
	c.topics[topic] = struct{}{}
}

// UnsubscribeAll removes the connection from every topic it joined.
func (h *Hub) UnsubscribeAll(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribeAllLocked(c)
}

func (h *Hub) unsubscribeAllLocked(c *Conn) {
	for topic := range c.topics {
		if set, ok := h.topics[topic]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(h.topics, topic)
			}
		}
	}
	c.topics = make(map[string]struct{})
}

// Remove tears the connection fully down: topic subscriptions,
// presence entries, send channel. Called on disconnect.
func (h *Hub) Remove(c *Conn) {
	h.mu.Lock()
	h.unsubscribeAllLocked(c)
	if set, ok := h.presence[c.UserID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.presence, c.UserID)
		}
	}
	h.mu.Unlock()

	c.close()
}

// Resolve returns one live connection for the user, or nil. Best
// effort only: callers that need multi-device correctness should
// publish to the user topic instead.
func (h *Hub) Resolve(userID int64) *Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.presence[userID] {
		return c
	}
	return nil
}

func (h *Hub) IsOnline(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.presence[userID]) > 0
}

func (h *Hub) OnlineCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.presence)
}

// Publish fans an event out to every connection subscribed to the
// topic. Per connection the send channel preserves publish order; a
// connection with a full buffer misses the event rather than stalling
// the rest (durable notifications are the recovery path).
func (h *Hub) Publish(topic, event string, data any) {
	raw, err := json.Marshal(Event{Event: event, Data: data})
	if err != nil {
		log.Printf("realtime: marshal event=%s topic=%s error=%v", event, topic, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.topics[topic] {
		select {
		case c.send <- raw:
		default:
			// client too slow, skip
		}
	}
}

// Send addresses a single connection directly (errors, pongs).
func (h *Hub) Send(c *Conn, event string, data any) {
	raw, err := json.Marshal(Event{Event: event, Data: data})
	if err != nil {
		return
	}
	select {
	case c.send <- raw:
	default:
	}
}

// Close drops every connection. Used at shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for userID, set := range h.presence {
		for c := range set {
			c.close()
			if c.ws != nil {
				_ = c.ws.Close()
			}
		}
		delete(h.presence, userID)
	}
	h.topics = make(map[string]map[*Conn]struct{})
}

// WritePump drains the send channel onto the socket and keeps the
// connection alive with pings. One goroutine per connection; the
// transport layer starts it right after the upgrade.
func (c *Conn) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
