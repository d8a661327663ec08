// Package ws pushes opportunities and cycle summaries to dashboard clients
// over WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

// Topics every client receives until it changes its subscriptions.
const (
	TopicOpportunity = "opportunity"
	TopicCycle       = "cycle"
	TopicStatus      = "status"
)

var defaultTopics = []string{TopicOpportunity, TopicCycle, TopicStatus}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Envelope is the message clients receive. In binary mode the same shape is
// sent as a protobuf google.protobuf.Struct.
type Envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
	SentAt  string `json:"sent_at"`
}

// frame is one encoded message in both wire formats.
type frame struct {
	topic  string
	text   []byte
	binary []byte
}

type client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan frame
	binary bool

	mu   sync.RWMutex
	subs map[string]bool
}

type subscribeMsg struct {
	Action string   `json:"action"` // "subscribe" or "unsubscribe"
	Topics []string `json:"topics"`
}

// BridgeConfig forwards messages from the signal bus to clients. It is used
// when the scanner runs in another process.
type BridgeConfig struct {
	Bus     domain.SignalBus
	Channel string
	Topic   string
}

// Config carries the metadata sent to clients on connect.
type Config struct {
	Mode      string
	StartedAt time.Time
	Bridge    *BridgeConfig
}

// Hub tracks connected clients and fans messages out to them.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan frame
	register   chan *client
	unregister chan *client
	done       chan struct{}
	cfg        Config
	logger     *slog.Logger

	mu sync.RWMutex
}

// NewHub creates a Hub. Call Run before serving connections.
func NewHub(cfg Config, logger *slog.Logger) *Hub {
	cfg.Mode = strings.ToLower(strings.TrimSpace(cfg.Mode))
	if cfg.Mode == "" {
		cfg.Mode = "unknown"
	}
	if cfg.StartedAt.IsZero() {
		cfg.StartedAt = time.Now().UTC()
	}
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan frame, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "ws_hub")),
	}
}

// Run is the hub's event loop. It returns when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	if b := h.cfg.Bridge; b != nil && b.Bus != nil {
		go h.bridge(ctx, *b)
	}

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client connected", slog.Int("total_clients", n), slog.Bool("binary", c.binary))

		case c := <-h.unregister:
			h.mu.Lock()
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client disconnected", slog.Int("total_clients", n))

		case f := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if !c.isSubscribed(f.topic) {
					continue
				}
				select {
				case c.send <- f:
				default:
					h.logger.Warn("dropping message for slow client", slog.String("topic", f.topic))
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast encodes payload once per format and queues it for every client
// subscribed to topic. It never blocks; when the queue is full the message
// is dropped.
func (h *Hub) Broadcast(topic string, payload any) {
	f, err := encode(topic, payload, time.Now().UTC())
	if err != nil {
		h.logger.Warn("encode broadcast failed", slog.String("topic", topic), slog.String("error", err.Error()))
		return
	}
	select {
	case h.broadcast <- f:
	case <-h.done:
	default:
		h.logger.Warn("broadcast queue full", slog.String("topic", topic))
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// bridge relays raw JSON payloads from the bus.
func (h *Hub) bridge(ctx context.Context, b BridgeConfig) {
	msgs, err := b.Bus.Subscribe(ctx, b.Channel)
	if err != nil {
		h.logger.Error("bus subscribe failed", slog.String("channel", b.Channel), slog.String("error", err.Error()))
		return
	}
	topic := b.Topic
	if topic == "" {
		topic = TopicOpportunity
	}
	h.logger.Info("bridging bus channel", slog.String("channel", b.Channel), slog.String("topic", topic))

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgs:
			if !ok {
				h.logger.Warn("bus subscription closed", slog.String("channel", b.Channel))
				return
			}
			h.Broadcast(topic, json.RawMessage(data))
		}
	}
}

// HandleWS upgrades the request and registers the client. Clients that pass
// ?format=proto receive binary protobuf frames instead of JSON text.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:    h,
		conn:   conn,
		send:   make(chan frame, sendBufferSize),
		binary: strings.EqualFold(r.URL.Query().Get("format"), "proto"),
		subs:   make(map[string]bool, len(defaultTopics)),
	}
	for _, t := range defaultTopics {
		c.subs[t] = true
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}
	c.sendStatus()

	go c.writePump()
	go c.readPump()
}

func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("unexpected close", slog.String("error", err.Error()))
			}
			return
		}
		var sub subscribeMsg
		if json.Unmarshal(message, &sub) == nil && sub.Action != "" {
			c.handleSubscription(sub)
		}
	}
}

func (c *client) handleSubscription(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range msg.Topics {
		switch msg.Action {
		case "subscribe":
			c.subs[t] = true
		case "unsubscribe":
			delete(c.subs, t)
		}
	}
}

func (c *client) isSubscribed(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subs[topic] || c.subs["*"]
}

// sendStatus queues the connect-time status message ahead of any broadcast.
func (c *client) sendStatus() {
	f, err := encode(TopicStatus, map[string]any{
		"mode":           c.hub.cfg.Mode,
		"uptime_seconds": int64(max(time.Since(c.hub.cfg.StartedAt), 0).Seconds()),
	}, time.Now().UTC())
	if err != nil {
		return
	}
	select {
	case c.send <- f:
	default:
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case f, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			msgType, data := websocket.TextMessage, f.text
			if c.binary {
				msgType, data = websocket.BinaryMessage, f.binary
			}
			if err := c.conn.WriteMessage(msgType, data); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// encode renders an envelope as JSON and as a protobuf Struct. The Struct
// is built from the JSON form so both carry identical field names.
func encode(topic string, payload any, at time.Time) (frame, error) {
	text, err := json.Marshal(Envelope{Type: topic, Payload: payload, SentAt: at.Format(time.RFC3339Nano)})
	if err != nil {
		return frame{}, fmt.Errorf("ws: marshal %s: %w", topic, err)
	}
	var generic map[string]any
	if err := json.Unmarshal(text, &generic); err != nil {
		return frame{}, fmt.Errorf("ws: reshape %s: %w", topic, err)
	}
	st, err := structpb.NewStruct(generic)
	if err != nil {
		return frame{}, fmt.Errorf("ws: struct %s: %w", topic, err)
	}
	bin, err := proto.Marshal(st)
	if err != nil {
		return frame{}, fmt.Errorf("ws: proto marshal %s: %w", topic, err)
	}
	return frame{topic: topic, text: text, binary: bin}, nil
}
