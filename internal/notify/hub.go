// internal/notify/hub.go
package notify

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Hub fans events out to connected dashboard clients. Events for a
// principal go to that principal's connections plus any admin
// connections watching the firehose.
type Hub struct {
	// Registered clients by principal ID
	clients map[int64]map[*Client]bool
	mu      sync.RWMutex

	register   chan *Client
	unregister chan *Client
	events     chan Event

	// done is closed by shutdown so clients registering or detaching
	// after the hub stopped do not block on channels nobody services.
	done chan struct{}

	logger *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[int64]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		events:     make(chan Event, 256),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Publish implements Sink. Non-blocking: if the hub is saturated the
// event is dropped, the decision it reports has already been made.
func (h *Hub) Publish(event Event) {
	select {
	case h.events <- event:
	default:
		h.logger.Warn("notification hub saturated, dropping event",
			zap.String("type", string(event.Type)),
			zap.Int64("principal_id", event.PrincipalID),
		)
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case event := <-h.events:
			h.deliver(event)
		}
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[c.principalID] == nil {
		h.clients[c.principalID] = make(map[*Client]bool)
	}
	h.clients[c.principalID][c] = true

	h.logger.Debug("notification client connected", zap.Int64("principal_id", c.principalID))
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.clients[c.principalID]; ok {
		if conns[c] {
			delete(conns, c)
			close(c.send)
			if len(conns) == 0 {
				delete(h.clients, c.principalID)
			}
		}
	}
}

func (h *Hub) deliver(event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to marshal event", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients[event.PrincipalID] {
		select {
		case c.send <- payload:
		default:
			// Slow consumer, skip rather than block the hub.
		}
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	close(h.done)
	for _, conns := range h.clients {
		for c := range conns {
			close(c.send)
		}
	}
	h.clients = make(map[int64]map[*Client]bool)
}
