// Package realtime keeps the per-connection channel subscriptions of this
// process and pushes bus events to the matching connections.
//
// Interest is held in memory only; a connection's subscriptions vanish when
// it is unregistered and nothing is replayed to late subscribers.
package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/util"
)

// Conn is the write side of a client connection
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// Message is what a subscribed connection receives
type Message struct {
	Type      string          `json:"type"`
	Channels  []string        `json:"channels"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// Client is one registered connection
type Client struct {
	ID   string
	conn Conn

	// guards writes to conn; the hub lock guards channels
	writeMu  sync.Mutex
	channels map[string]struct{}
}

// Send writes v to the connection, serialized with hub deliveries
func (c *Client) Send(v any) error {
	return c.send(v)
}

func (c *Client) send(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

// Hub indexes clients by channel
type Hub struct {
	mu        sync.RWMutex
	clients   map[*Client]struct{}
	byChannel map[string]map[*Client]struct{}
	logger    *zap.Logger
}

func NewHub() *Hub {
	return &Hub{
		clients:   make(map[*Client]struct{}),
		byChannel: make(map[string]map[*Client]struct{}),
		logger:    util.GetLogger(),
	}
}

// Register adds a connection, subscribed to channels from the start
func (h *Hub) Register(conn Conn, channels []string) *Client {
	c := &Client{
		ID:       uuid.New().String(),
		conn:     conn,
		channels: make(map[string]struct{}),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.subscribeLocked(c, channels)
	h.mu.Unlock()

	util.RealtimeConnections.Inc()
	h.logger.Debug("Realtime client registered", zap.String("client_id", c.ID), zap.Strings("channels", channels))
	return c
}

// Unregister drops the connection and every subscription it held
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	for ch := range c.channels {
		h.removeLocked(c, ch)
	}
	h.mu.Unlock()

	util.RealtimeConnections.Dec()
	_ = c.conn.Close()
}

// Subscribe adds channels to the client's interest and returns its current
// subscription count
func (h *Hub) Subscribe(c *Client, channels []string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return 0
	}
	h.subscribeLocked(c, channels)
	return len(c.channels)
}

// Unsubscribe removes channels from the client's interest and returns its
// current subscription count
func (h *Hub) Unsubscribe(c *Client, channels []string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range channels {
		if _, ok := c.channels[ch]; ok {
			h.removeLocked(c, ch)
		}
	}
	return len(c.channels)
}

// Channels returns the client's current interest
func (h *Hub) Channels(c *Client) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]string, 0, len(c.channels))
	for ch := range c.channels {
		out = append(out, ch)
	}
	return out
}

// Count returns the number of registered clients
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Deliver sends msg once to every client subscribed to at least one of
// msg.Channels and returns how many sends succeeded. Send failures are
// logged and skipped.
func (h *Hub) Deliver(msg Message) int {
	h.mu.RLock()
	targets := make(map[*Client]struct{})
	for _, ch := range msg.Channels {
		for c := range h.byChannel[ch] {
			targets[c] = struct{}{}
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for c := range targets {
		if err := c.send(msg); err != nil {
			util.RealtimeSendFailuresTotal.Inc()
			h.logger.Debug("Realtime send failed", zap.String("client_id", c.ID), zap.Error(err))
			continue
		}
		delivered++
	}
	util.RealtimeDeliveriesTotal.Add(float64(delivered))
	return delivered
}

func (h *Hub) subscribeLocked(c *Client, channels []string) {
	for _, ch := range channels {
		if ch == "" {
			continue
		}
		if _, ok := c.channels[ch]; ok {
			continue
		}
		c.channels[ch] = struct{}{}
		set, ok := h.byChannel[ch]
		if !ok {
			set = make(map[*Client]struct{})
			h.byChannel[ch] = set
		}
		set[c] = struct{}{}
	}
}

func (h *Hub) removeLocked(c *Client, ch string) {
	delete(c.channels, ch)
	if set, ok := h.byChannel[ch]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.byChannel, ch)
		}
	}
}
