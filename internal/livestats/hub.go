package livestats

import (
	"context"
	"sync"

	"finiex/internal/core"
)

// client is one websocket subscriber. Its send channel is buffered; a
// full channel marks the client as slow and it gets unregistered.
type client struct {
	id     string
	send   chan Message
	mu     sync.Mutex
	closed bool
}

func newClient(id string) *client {
	return &client{
		id:   id,
		send: make(chan Message, 256),
	}
}

// trySend enqueues a message without blocking.
func (c *client) trySend(msg Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Hub fans queue messages out to all connected display clients.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan Message
	register   chan *client
	unregister chan *client
	mu         sync.RWMutex
	logger     core.Logger
}

// NewHub creates a display hub.
func NewHub(logger core.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		logger:     logger.WithField("component", "livestats_hub"),
	}
}

// Run drives the hub until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				c.close()
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("Display client connected", "client_id", c.id, "total_clients", total)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				c.close()
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("Display client disconnected", "client_id", c.id, "total_clients", total)

		case msg := <-h.broadcast:
			h.mu.RLock()
			targets := make([]*client, 0, len(h.clients))
			for c := range h.clients {
				targets = append(targets, c)
			}
			h.mu.RUnlock()

			for _, c := range targets {
				if !c.trySend(msg) {
					select {
					case h.unregister <- c:
					default:
					}
				}
			}
		}
	}
}

// Subscribe registers a consumer and returns its message channel plus a
// cancel function. Cancelling unregisters the consumer and closes the
// channel; the hub also closes it when its context ends.
func (h *Hub) Subscribe(id string) (<-chan Message, func()) {
	c := newClient(id)
	h.register <- c
	cancel := func() {
		select {
		case h.unregister <- c:
		default:
			// Hub busy or stopped; close directly and let the broadcast
			// path drop the dead client.
			c.close()
		}
	}
	return c.send, cancel
}

// Broadcast hands a message to the hub without blocking; a full broadcast
// channel drops the message.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("Broadcast channel full, dropping message", "type", msg.Type)
	}
}

// ClientCount returns the number of connected display clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
