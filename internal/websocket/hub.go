package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/game-lobby/internal/config"
	"github.com/game-lobby/internal/domain"
)

// Message types
const (
	MessageTypeJoin        = "join"
	MessageTypeLeave       = "leave"
	MessageTypeStartGame   = "start-game"
	MessageTypeGameStarted = domain.EventGameStarted
	MessageTypeJoined      = "joined"
	MessageTypeLeft        = "left"
	MessageTypePing        = "ping"
	MessageTypePong        = "pong"
	MessageTypeError       = "error"
)

// Message represents a control message sent to a single client
type Message struct {
	Type      string         `json:"type"`
	RoomID    domain.RoomKey `json:"roomId,omitempty"`
	Data      interface{}    `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// PublishResult reports what happened to a game-started event.
type PublishResult struct {
	Relayed   bool `json:"relayed"`
	Delivered int  `json:"delivered"`
}

// Stats is a snapshot of the hub's connections
type Stats struct {
	Connections int `json:"connections"`
	Rooms       int `json:"rooms"`
}

// Hub maintains the set of active clients and the rooms they are subscribed to
type Hub struct {
	// Subscribed clients by room
	rooms map[domain.RoomKey]map[*Client]struct{}

	// All connected clients with the rooms each one joined
	clients map[*Client]map[domain.RoomKey]struct{}

	mu sync.RWMutex

	relay  Relay
	cfg    config.RealtimeConfig
	logger *slog.Logger
}

// NewHub creates a new Hub
func NewHub(cfg *config.RealtimeConfig, logger *slog.Logger) *Hub {
	c := *cfg
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 4096
	}
	return &Hub{
		rooms:   make(map[domain.RoomKey]map[*Client]struct{}),
		clients: make(map[*Client]map[domain.RoomKey]struct{}),
		cfg:     c,
		logger:  logger,
	}
}

// SetRelay routes StartGame through r instead of broadcasting locally.
func (h *Hub) SetRelay(r Relay) {
	h.mu.Lock()
	h.relay = r
	h.mu.Unlock()
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.clients[client] = make(map[domain.RoomKey]struct{})
	}
	h.mu.Unlock()
	h.logger.Debug("client registered", "client_id", client.id)
}

// Unregister removes a client from every room and closes its send queue.
// Calling it again for the same client is a no-op.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	ok := h.unregisterLocked(client)
	h.mu.Unlock()
	if ok {
		h.logger.Debug("client unregistered", "client_id", client.id)
	}
}

func (h *Hub) unregisterLocked(client *Client) bool {
	joined, ok := h.clients[client]
	if !ok {
		return false
	}
	for key := range joined {
		h.removeFromRoomLocked(client, key)
	}
	delete(h.clients, client)
	close(client.send)
	return true
}

func (h *Hub) removeFromRoomLocked(client *Client, key domain.RoomKey) {
	if subscribers, ok := h.rooms[key]; ok {
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(h.rooms, key)
		}
	}
}

// Subscribe adds a client to a room. Subscribing twice has no further effect.
func (h *Hub) Subscribe(client *Client, key domain.RoomKey) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	joined, ok := h.clients[client]
	if !ok {
		return false
	}
	joined[key] = struct{}{}
	if _, ok := h.rooms[key]; !ok {
		h.rooms[key] = make(map[*Client]struct{})
	}
	h.rooms[key][client] = struct{}{}
	h.logger.Debug("client subscribed", "client_id", client.id, "room_id", key)
	return true
}

// Unsubscribe removes a client from a room
func (h *Hub) Unsubscribe(client *Client, key domain.RoomKey) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if joined, ok := h.clients[client]; ok {
		delete(joined, key)
	}
	h.removeFromRoomLocked(client, key)
	h.logger.Debug("client unsubscribed", "client_id", client.id, "room_id", key)
}

// StartGame publishes a game-started event. With a relay configured the event goes through it
// and is delivered when it comes back; if the relay fails the event is delivered locally.
func (h *Hub) StartGame(ctx context.Context, evt domain.GameStarted) PublishResult {
	h.mu.RLock()
	relay := h.relay
	h.mu.RUnlock()

	if relay != nil {
		err := relay.Publish(ctx, evt)
		if err == nil {
			return PublishResult{Relayed: true}
		}
		h.logger.Warn("relay publish failed, delivering locally", "room_id", evt.RoomID, "error", err)
	}
	return PublishResult{Delivered: h.Deliver(evt)}
}

// Deliver broadcasts a game-started event to this instance's subscribers of its room.
func (h *Hub) Deliver(evt domain.GameStarted) int {
	data, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error("failed to marshal event", "error", err)
		return 0
	}
	delivered := h.Broadcast(evt.RoomID, data)
	h.logger.Info("game started", "room_id", evt.RoomID, "game", evt.Game, "duration", evt.Duration, "delivered", delivered)
	return delivered
}

// Broadcast queues data for every client subscribed to the room and returns how many accepted it.
// A client whose queue is full is dropped from the hub.
func (h *Hub) Broadcast(key domain.RoomKey, data []byte) int {
	var (
		delivered int
		dropped   []*Client
	)

	h.mu.RLock()
	for client := range h.rooms[key] {
		select {
		case client.send <- data:
			delivered++
		default:
			dropped = append(dropped, client)
		}
	}
	h.mu.RUnlock()

	if len(dropped) > 0 {
		h.mu.Lock()
		for _, client := range dropped {
			if h.unregisterLocked(client) {
				h.logger.Warn("client buffer full, dropping connection", "client_id", client.id, "room_id", key)
			}
		}
		h.mu.Unlock()
	}
	return delivered
}

// send queues data for one registered client without blocking.
func (h *Hub) send(client *Client, data []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.clients[client]; !ok {
		return false
	}
	select {
	case client.send <- data:
		return true
	default:
		return false
	}
}

// GetSubscriberCount returns the number of subscribers for a room
func (h *Hub) GetSubscriberCount(key domain.RoomKey) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[key])
}

// GetTotalConnections returns the total number of connected clients
func (h *Hub) GetTotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats returns connection and room counts
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Stats{Connections: len(h.clients), Rooms: len(h.rooms)}
}

// Stop disconnects every client
func (h *Hub) Stop() {
	h.mu.Lock()
	n := 0
	for client := range h.clients {
		if h.unregisterLocked(client) {
			n++
		}
	}
	h.mu.Unlock()
	h.logger.Info("WebSocket hub stopped", "disconnected", n)
}
