package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// Publisher publishes events to Redis for cross-instance fan-out.
type Publisher interface {
	PublishGlobal(event string, payload []byte) error
	PublishQuestion(questionID uuid.UUID, event string, payload []byte) error
}

// Subscriber subscribes to Redis channels and invokes handler for incoming
// events.
type Subscriber interface {
	SubscribeGlobal(handler func(event string, payload []byte)) (cancel func(), err error)
	SubscribeQuestion(questionID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

// Hub tracks every connected client plus per-question rooms and delivers
// named events to them. Events published through Publish* go via Redis so
// each instance (this one included) broadcasts exactly once; without Redis
// they fall back to a direct local broadcast.
type Hub struct {
	clients   map[string]*Client                  // sessionID -> client
	rooms     map[uuid.UUID]map[string]*Client    // questionID -> room members
	roomSubs  map[uuid.UUID]func()                // cancel Redis subscription per room
	globalSub func()
	mu        sync.RWMutex
	logger    *zap.Logger
	pub       Publisher
	sub       Subscriber
}

// NewHub creates a hub and, when a subscriber is given, opens the global
// Redis subscription.
func NewHub(logger *zap.Logger, pub Publisher, sub Subscriber) *Hub {
	h := &Hub{
		clients:  make(map[string]*Client),
		rooms:    make(map[uuid.UUID]map[string]*Client),
		roomSubs: make(map[uuid.UUID]func()),
		logger:   logger,
		pub:      pub,
		sub:      sub,
	}
	if sub != nil {
		cancel, err := sub.SubscribeGlobal(func(event string, payload []byte) {
			h.BroadcastAll(event, json.RawMessage(payload))
		})
		if err == nil {
			h.globalSub = cancel
		} else {
			logger.Warn("global subscription failed", zap.Error(err))
		}
	}
	return h
}

// Register adds a connected client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("client connected", zap.String("session_id", c.ID))
}

// Unregister removes a client from the hub and every room it joined.
// Room Redis subscriptions are cancelled when the last member leaves.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.ID)
	for questionID, room := range h.rooms {
		delete(room, c.ID)
		if len(room) == 0 {
			delete(h.rooms, questionID)
			if cancel, ok := h.roomSubs[questionID]; ok {
				cancel()
				delete(h.roomSubs, questionID)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("client disconnected", zap.String("session_id", c.ID))
}

// JoinRoom subscribes a client to one question's update broadcasts. Starts
// the room's Redis subscription when the first member joins.
func (h *Hub) JoinRoom(c *Client, questionID uuid.UUID) {
	h.mu.Lock()
	if h.rooms[questionID] == nil {
		h.rooms[questionID] = make(map[string]*Client)
		if h.sub != nil {
			cancel, err := h.sub.SubscribeQuestion(questionID, func(event string, payload []byte) {
				h.BroadcastToQuestion(questionID, event, json.RawMessage(payload))
			})
			if err == nil {
				h.roomSubs[questionID] = cancel
			}
		}
	}
	h.rooms[questionID][c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("client joined question room",
		zap.String("session_id", c.ID), zap.String("question_id", questionID.String()))
}

// BroadcastAll sends an event to every connected client (local only).
func (h *Hub) BroadcastAll(event string, payload interface{}) {
	msg := WSMessage{Event: event, Data: marshalPayload(payload)}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// BroadcastToQuestion sends an event to one question room (local only).
func (h *Hub) BroadcastToQuestion(questionID uuid.UUID, event string, payload interface{}) {
	msg := WSMessage{Event: event, Data: marshalPayload(payload)}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.rooms[questionID] {
		select {
		case c.send <- msg:
		default:
		}
	}
}

// PublishAll delivers an event to every client on every instance. The
// Redis subscriber callback performs the single local broadcast; without
// Redis the broadcast happens directly.
func (h *Hub) PublishAll(event string, payload interface{}) {
	if h.pub != nil {
		_ = h.pub.PublishGlobal(event, marshalPayload(payload))
		return
	}
	h.BroadcastAll(event, payload)
}

// PublishToQuestion delivers an event to one question room on every
// instance.
func (h *Hub) PublishToQuestion(questionID uuid.UUID, event string, payload interface{}) {
	if h.pub != nil {
		_ = h.pub.PublishQuestion(questionID, event, marshalPayload(payload))
		return
	}
	h.BroadcastToQuestion(questionID, event, payload)
}

// SendToClient sends an event to a single client (vote_error,
// question_created, question_results).
func (h *Hub) SendToClient(sessionID, event string, payload interface{}) {
	msg := WSMessage{Event: event, Data: marshalPayload(payload)}
	h.mu.RLock()
	c, ok := h.clients[sessionID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close cancels all Redis subscriptions.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.globalSub != nil {
		h.globalSub()
		h.globalSub = nil
	}
	for id, cancel := range h.roomSubs {
		cancel()
		delete(h.roomSubs, id)
	}
}

func marshalPayload(payload interface{}) json.RawMessage {
	switch v := payload.(type) {
	case []byte:
		return v
	case json.RawMessage:
		return v
	default:
		data, _ := json.Marshal(payload)
		return data
	}
}
