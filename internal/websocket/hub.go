package websocket

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/financetracker/backend/internal/logger"
	"github.com/financetracker/backend/internal/metrics"
)

const (
	broadcastBuffer      = 256
	metricsEventsDropped = metrics.CounterEventsDropped
)

// Hub maintains the set of active clients and routes events to them by user.
type Hub struct {
	// Registered clients by user ID
	clients map[uuid.UUID]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *Event
	done       chan struct{}

	log     *logger.Logger
	metrics *metrics.Metrics

	mu sync.RWMutex
}

// NewHub creates a new Hub instance.
func NewHub(log *logger.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Event, broadcastBuffer),
		done:       make(chan struct{}),
		log:        log.WithComponent("websocket"),
		metrics:    m,
	}
}

// Run is the hub's main loop. It returns when ctx is done, closing every
// client's send channel.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for userID, clients := range h.clients {
				for client := range clients {
					h.drop(userID, client)
				}
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.userID] == nil {
				h.clients[client.userID] = make(map[*Client]bool)
			}
			h.clients[client.userID][client] = true
			h.metrics.IncWSConnections()
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			h.drop(client.userID, client)
			h.mu.Unlock()

		case evt := <-h.broadcast:
			h.deliver(ctx, evt)
		}
	}
}

func (h *Hub) deliver(ctx context.Context, evt *Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := h.clients[evt.UserID]
	if len(clients) == 0 {
		return
	}

	msg, err := evt.encode()
	if err != nil {
		h.log.Error(ctx, "encode event", err, map[string]any{"type": evt.Type})
		return
	}

	for client := range clients {
		select {
		case client.send <- msg:
		default:
			// Slow consumer; its write pump closes the connection.
			h.drop(evt.UserID, client)
		}
	}
}

// Register hands a new client to the hub. It reports false once the hub
// has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// drop must be called with mu held.
func (h *Hub) drop(userID uuid.UUID, client *Client) {
	clients, ok := h.clients[userID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.clients, userID)
	}
	h.metrics.DecWSConnections()
}

// ClientCount returns the number of connected clients for a user.
func (h *Hub) ClientCount(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// TotalClients returns the total number of connected clients.
func (h *Hub) TotalClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	count := 0
	for _, clients := range h.clients {
		count += len(clients)
	}
	return count
}
