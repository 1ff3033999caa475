package hub

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Server→client and client→server message types
const (
	TypeConnectionEstablished = "connection-established"
	TypeSubscribe             = "subscribe"
	TypeSubscribed            = "subscribed"
	TypeUnsubscribe           = "unsubscribe"
	TypeUnsubscribed          = "unsubscribed"
	TypePing                  = "ping"
	TypePong                  = "pong"
	TypeGetActiveOrders       = "get-active-orders"
	TypeActiveOrders          = "active-orders"
	TypeError                 = "error"
)

// Envelope is the wire format for every realtime message
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope builds an envelope with a marshalled payload. A nil
// payload is omitted.
func NewEnvelope(typ string, payload interface{}) Envelope {
	env := Envelope{Type: typ}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err == nil {
			env.Payload = data
		}
	}
	return env
}

type channelPayload struct {
	Channel string `json:"channel"`
}

type connectedPayload struct {
	ClientID string `json:"clientId"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// Conn is the connection surface the hub needs. *websocket.Conn
// satisfies it; tests use fakes.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// ActiveOrderSource answers get-active-orders queries
type ActiveOrderSource interface {
	ActiveOrders(ctx context.Context) (interface{}, error)
}

// client is one connected realtime display. subs and lastPong are
// guarded by the hub mutex; sendMu serializes writes to the socket.
type client struct {
	id       string
	conn     Conn
	sendMu   sync.Mutex
	subs     map[string]struct{}
	lastPong time.Time
}

func (c *client) send(env Envelope) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.conn.WriteJSON(env)
}

// Hub is the registry of connected realtime clients. It delivers
// broadcasts, answers protocol messages, and reaps half-open
// connections through the heartbeat sweep. All delivery is
// best-effort; a client whose socket fails is dropped silently.
type Hub struct {
	logger *slog.Logger
	orders ActiveOrderSource

	// Heartbeat tuning; set before RunHeartbeat is started. Tests
	// override Now for a controllable clock.
	PingInterval time.Duration
	PongTimeout  time.Duration
	Now          func() time.Time

	mu      sync.RWMutex
	clients map[string]*client
}

// New creates a hub. orders may be nil, in which case
// get-active-orders queries are answered with an error message.
func New(logger *slog.Logger, orders ActiveOrderSource) *Hub {
	return &Hub{
		logger:       logger,
		orders:       orders,
		PingInterval: 10 * time.Second,
		PongTimeout:  30 * time.Second,
		Now:          time.Now,
		clients:      make(map[string]*client),
	}
}

// Connect registers a connection and sends connection-established with
// the assigned client id.
func (h *Hub) Connect(conn Conn) string {
	c := &client{
		id:       uuid.NewString(),
		conn:     conn,
		subs:     make(map[string]struct{}),
		lastPong: h.Now(),
	}

	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()

	h.logger.Info("realtime client connected", "client_id", c.id)

	if err := c.send(NewEnvelope(TypeConnectionEstablished, connectedPayload{ClientID: c.id})); err != nil {
		h.Disconnect(c.id)
	}
	return c.id
}

// Disconnect closes and deregisters a client
func (h *Hub) Disconnect(id string) {
	h.mu.Lock()
	c, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
	}
	h.mu.Unlock()

	if !ok {
		return
	}
	c.conn.Close()
	h.logger.Info("realtime client disconnected", "client_id", id)
}

// ClientCount returns the number of registered clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Subscriptions returns the channels a client is subscribed to
func (h *Hub) Subscriptions(id string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[id]
	if !ok {
		return nil
	}
	channels := make([]string, 0, len(c.subs))
	for ch := range c.subs {
		channels = append(channels, ch)
	}
	return channels
}

// HandleMessage processes one inbound message from a client. An
// unrecognized type is answered with an error envelope; the
// connection stays open.
func (h *Hub) HandleMessage(ctx context.Context, id string, env Envelope) {
	h.mu.RLock()
	c, ok := h.clients[id]
	h.mu.RUnlock()
	if !ok {
		return
	}

	switch env.Type {
	case TypeSubscribe:
		channel, err := decodeChannel(env.Payload)
		if err != nil {
			h.sendError(c, "subscribe requires a channel")
			return
		}
		h.mu.Lock()
		c.subs[channel] = struct{}{}
		h.mu.Unlock()
		h.reply(c, NewEnvelope(TypeSubscribed, channelPayload{Channel: channel}))
		h.logger.Info("client subscribed", "client_id", id, "channel", channel)

	case TypeUnsubscribe:
		channel, err := decodeChannel(env.Payload)
		if err != nil {
			h.sendError(c, "unsubscribe requires a channel")
			return
		}
		h.mu.Lock()
		delete(c.subs, channel)
		h.mu.Unlock()
		h.reply(c, NewEnvelope(TypeUnsubscribed, channelPayload{Channel: channel}))

	case TypePing:
		h.reply(c, NewEnvelope(TypePong, nil))

	case TypePong:
		h.mu.Lock()
		c.lastPong = h.Now()
		h.mu.Unlock()

	case TypeGetActiveOrders:
		if h.orders == nil {
			h.sendError(c, "active orders unavailable")
			return
		}
		payload, err := h.orders.ActiveOrders(ctx)
		if err != nil {
			h.logger.Warn("failed to fetch active orders", "client_id", id, "error", err)
			h.sendError(c, "failed to fetch active orders")
			return
		}
		h.reply(c, NewEnvelope(TypeActiveOrders, payload))

	default:
		h.sendError(c, "unknown message type: "+env.Type)
	}
}

// Broadcast delivers env to every client subscribed to channel, or to
// every client when channel is empty. Delivery is fire-and-forget: a
// client whose send fails is dropped.
func (h *Hub) Broadcast(env Envelope, channel string) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		if channel == "" {
			targets = append(targets, c)
			continue
		}
		if _, ok := c.subs[channel]; ok {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.send(env); err != nil {
			h.logger.Warn("broadcast send failed, dropping client", "client_id", c.id, "error", err)
			h.Disconnect(c.id)
		}
	}
}

// Sweep runs one heartbeat pass: clients silent longer than
// PongTimeout are closed and deregistered, everyone else is pinged.
// This is the only mechanism that detects half-open connections.
func (h *Hub) Sweep() {
	now := h.Now()

	h.mu.RLock()
	live := make([]*client, 0, len(h.clients))
	stale := make([]string, 0)
	for _, c := range h.clients {
		if now.Sub(c.lastPong) > h.PongTimeout {
			stale = append(stale, c.id)
		} else {
			live = append(live, c)
		}
	}
	h.mu.RUnlock()

	for _, id := range stale {
		h.logger.Info("heartbeat timeout, closing client", "client_id", id)
		h.Disconnect(id)
	}

	ping := NewEnvelope(TypePing, nil)
	for _, c := range live {
		if err := c.send(ping); err != nil {
			h.Disconnect(c.id)
		}
	}
}

// RunHeartbeat runs the sweep on a ticker until ctx is cancelled.
func (h *Hub) RunHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(h.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Sweep()
		}
	}
}

func (h *Hub) reply(c *client, env Envelope) {
	if err := c.send(env); err != nil {
		h.Disconnect(c.id)
	}
}

func (h *Hub) sendError(c *client, message string) {
	h.reply(c, NewEnvelope(TypeError, errorPayload{Message: message}))
}

func decodeChannel(payload json.RawMessage) (string, error) {
	var p channelPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return "", err
	}
	if p.Channel == "" {
		return "", errMissingChannel
	}
	return p.Channel, nil
}

var errMissingChannel = errors.New("missing channel")
