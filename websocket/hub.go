package websocket

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mzeidan/adboard_notifications/logging"
	"github.com/mzeidan/adboard_notifications/models"
)

// Client represents a connected WebSocket client
type Client struct {
	UserID string
	Role   string
	Conn   *websocket.Conn

	writeMu sync.Mutex
}

// WriteEnvelope writes one envelope to the connection. gorilla/websocket
// allows only one concurrent writer per connection.
func (c *Client) WriteEnvelope(env models.Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.Conn.WriteJSON(env)
}

// Hub maintains the set of active clients and broadcasts notification
// events to them. Broadcasts are role-scoped: every connection whose role
// is in the event's role list receives the full payload, and user-level
// filtering happens on the receiving client.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run starts the hub's event loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			logging.Logger.Infof("WebSocket client registered: user=%s role=%s", client.UserID, client.Role)
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Conn.Close()
			}
			h.mu.Unlock()
			logging.Logger.Infof("WebSocket client unregistered: user=%s", client.UserID)
		}
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub and closes its connection
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// BroadcastToRoles sends a receive-user-notification event to every
// connected client whose role appears in the payload's role list
func (h *Hub) BroadcastToRoles(payload models.BroadcastPayload) {
	env := models.Envelope{
		Event:   models.EventReceiveUserNotification,
		EventID: uuid.NewString(),
		Payload: payload,
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		if roleMatches(client.Role, payload.Role) {
			targets = append(targets, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range targets {
		if err := client.WriteEnvelope(env); err != nil {
			logging.Logger.Errorf("Error broadcasting to user %s: %v", client.UserID, err)
		}
	}
}

// ConnectedCount returns the number of registered clients
func (h *Hub) ConnectedCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func roleMatches(role string, roles []string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
