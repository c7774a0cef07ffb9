package realtime

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"crypto-price-alerts/internal/types"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

const (
	TopicPrices = "prices"

	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
	sendBuffer   = 16
	maxReadBytes = 512
)

// Notifier publishes a payload to every subscriber of a topic. Delivery is
// at-most-once: nothing is kept for clients that are not connected.
type Notifier interface {
	Broadcast(topic string, payload any)
}

// AlertTopic is the per-owner topic carrying triggered alerts
func AlertTopic(ownerID int64) string {
	return fmt.Sprintf("alert-%d", ownerID)
}

// Envelope is the frame written to clients
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type client struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	topics map[string]struct{}
	once   sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	gauge   prometheus.Gauge
}

var _ Notifier = (*Hub)(nil)

// NewHub creates an empty hub. gauge may be nil.
func NewHub(gauge prometheus.Gauge) *Hub {
	return &Hub{clients: make(map[*client]struct{}), gauge: gauge}
}

// Serve runs a connected client until it goes away. Every client hears
// "prices"; an authenticated one also hears its own alert topic. greeting,
// when set, is queued before any broadcast.
func (h *Hub) Serve(conn *websocket.Conn, principal *types.Principal, greeting *Envelope) {
	c := &client{
		id:     uuid.NewString(),
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		topics: map[string]struct{}{TopicPrices: {}},
	}
	if principal != nil {
		c.topics[AlertTopic(principal.OwnerID)] = struct{}{}
	}
	if greeting != nil {
		if data, err := json.Marshal(greeting); err == nil {
			c.send <- data
		}
	}

	h.add(c)
	entry := log.WithField("client_id", c.id)
	entry.Debugf("Client connected, topics: %d", len(c.topics))

	go h.writePump(c)
	h.readPump(c)

	h.remove(c)
	entry.Debug("Client disconnected")
}

func (h *Hub) Broadcast(topic string, payload any) {
	data, err := json.Marshal(Envelope{Event: topic, Data: payload})
	if err != nil {
		log.Errorf("Failed to encode %s event: %v", topic, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if _, ok := c.topics[topic]; !ok {
			continue
		}
		select {
		case c.send <- data:
		default:
			log.WithField("client_id", c.id).Warnf("Client send buffer is full, dropping %s event", topic)
		}
	}
}

// Count returns the number of connected clients
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		_ = c.conn.Close()
	}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.setGauge(n)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		c.close()
		_ = c.conn.Close()
		h.setGauge(n)
	}
}

func (h *Hub) setGauge(n int) {
	if h.gauge != nil {
		h.gauge.Set(float64(n))
	}
}

func (h *Hub) readPump(c *client) {
	c.conn.SetReadLimit(maxReadBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		// clients only listen; anything they send is discarded
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				_ = c.conn.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.conn.Close()
				return
			}
		}
	}
}
