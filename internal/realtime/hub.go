package realtime

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Heartbeat intervals in seconds.
const (
	PingInterval = 30
	PongWait     = 60
)

// Publisher publishes rig events to Redis for cross-instance broadcast.
type Publisher interface {
	PublishRigEvent(event string, payload []byte) error
}

// Subscriber subscribes to the rig channel and invokes handler for incoming events.
type Subscriber interface {
	SubscribeRig(handler func(event string, payload []byte)) (cancel func(), err error)
}

// Hub maintains the set of connected monitor clients and broadcasts rig
// events (session state, catalog snapshots) to them. There is a single room:
// the rig. Redis pub/sub fans events out across instances.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  *zap.Logger
	pub     Publisher
	sub     Subscriber
	cancel  func()
}

// NewHub creates a rig event hub. pub and sub may be nil for single-instance
// deployments.
func NewHub(logger *zap.Logger, pub Publisher, sub Subscriber) *Hub {
	h := &Hub{
		clients: make(map[string]*Client),
		logger:  logger,
		pub:     pub,
		sub:     sub,
	}
	if sub != nil {
		if cancel, err := sub.SubscribeRig(func(event string, payload []byte) {
			h.broadcastLocal(event, json.RawMessage(payload))
		}); err == nil {
			h.cancel = cancel
		} else {
			logger.Warn("rig channel subscribe failed", zap.Error(err))
		}
	}
	return h
}

// Register adds a monitor client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("monitor connected", zap.String("client_id", c.ID), zap.Int("monitors", n))
}

// Unregister removes a monitor client.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; ok {
		delete(h.clients, c.ID)
		close(c.send)
	}
	h.mu.Unlock()
	h.logger.Debug("monitor disconnected", zap.String("client_id", c.ID))
}

// Broadcast sends an event to local clients and publishes it to Redis so
// monitors on other instances see it too.
func (h *Hub) Broadcast(event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Warn("marshal rig event failed", zap.String("event", event), zap.Error(err))
		return
	}
	h.broadcastLocal(event, json.RawMessage(data))
	if h.pub != nil {
		if err := h.pub.PublishRigEvent(event, data); err != nil {
			h.logger.Warn("publish rig event failed", zap.String("event", event), zap.Error(err))
		}
	}
}

func (h *Hub) broadcastLocal(event string, data json.RawMessage) {
	msg := WSMessage{Event: event, Data: data}
	h.mu.RLock()
	for _, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			// slow consumer; drop rather than block the broadcaster
		}
	}
	h.mu.RUnlock()
}

// Close stops the Redis subscription.
func (h *Hub) Close() {
	if h.cancel != nil {
		h.cancel()
	}
}
