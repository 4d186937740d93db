package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stagebrawl/stagebrawl/internal/auth"
)

// WSMessage is the envelope for all WebSocket communication.
type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client represents one connected player. One connection, one username:
// the ticket checked at upgrade time is the only identity a connection
// ever acts as.
type Client struct {
	Username string
	RoomID   string
	conn     *websocket.Conn
	send     chan WSMessage
}

// Hub manages all WebSocket clients and room-level broadcasting.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[string]*Client

	handler      MessageHandler
	onDisconnect func(c *Client)
	secret       string
	readLimit    int64
	pingInterval time.Duration
	metrics      *Metrics
	logger       *slog.Logger
}

// MessageHandler processes inbound messages from a client.
type MessageHandler interface {
	HandleMessage(ctx context.Context, client *Client, msg WSMessage)
}

func NewHub(secret string, handler MessageHandler, logger *slog.Logger) *Hub {
	return &Hub{
		clients:      make(map[string]*Client),
		rooms:        make(map[string]map[string]*Client),
		handler:      handler,
		secret:       secret,
		readLimit:    4096,
		pingInterval: 30 * time.Second,
		logger:       logger,
	}
}

// SetHandler sets the inbound message handler (used to break circular init).
func (h *Hub) SetHandler(handler MessageHandler) {
	h.handler = handler
}

// SetOnDisconnect registers a hook invoked after a client's connection is
// torn down, so abandoned sessions get cleaned out of their room.
func (h *Hub) SetOnDisconnect(fn func(c *Client)) {
	h.onDisconnect = fn
}

func (h *Hub) SetMetrics(m *Metrics) {
	h.metrics = m
}

func (h *Hub) SetLimits(readLimit int64, pingInterval time.Duration) {
	h.readLimit = readLimit
	h.pingInterval = pingInterval
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ticket := r.URL.Query().Get("ticket")
	username, err := auth.VerifyTicket(h.secret, ticket, time.Now())
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	h.mu.RLock()
	_, connected := h.clients[username]
	h.mu.RUnlock()
	if connected {
		http.Error(w, "username already connected", http.StatusConflict)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Error("ws accept", "err", err)
		return
	}
	conn.SetReadLimit(h.readLimit)

	client := &Client{
		Username: username,
		conn:     conn,
		send:     make(chan WSMessage, 64),
	}

	// The pre-upgrade check above is only a fast path; register is the
	// authoritative check-and-insert, so two racing upgrades for one
	// username cannot both win.
	if !h.register(client) {
		conn.Close(websocket.StatusPolicyViolation, "username already connected")
		return
	}
	defer h.unregister(client)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go h.writePump(ctx, client)
	h.readPump(ctx, client)
}

// register claims the username for c. It reports false when another
// connection already holds it.
func (h *Hub) register(c *Client) bool {
	h.mu.Lock()
	if _, ok := h.clients[c.Username]; ok {
		h.mu.Unlock()
		return false
	}
	h.clients[c.Username] = c
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.IncrWSConn()
	}
	return true
}

// unregister releases c's username and room membership. Only the
// connection holding the entry may release it.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if cur, ok := h.clients[c.Username]; !ok || cur != c {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.Username)
	close(c.send)
	if c.RoomID != "" {
		if members, ok := h.rooms[c.RoomID]; ok {
			delete(members, c.Username)
			if len(members) == 0 {
				delete(h.rooms, c.RoomID)
			}
		}
	}
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.DecrWSConn()
	}
	if h.onDisconnect != nil {
		h.onDisconnect(c)
	}
}

// JoinRoom adds a client to a room broadcast group.
func (h *Hub) JoinRoom(username, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[username]
	if !ok {
		return
	}
	if c.RoomID != "" && c.RoomID != roomID {
		if members, ok := h.rooms[c.RoomID]; ok {
			delete(members, c.Username)
		}
	}
	c.RoomID = roomID
	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[string]*Client)
	}
	h.rooms[roomID][c.Username] = c
}

// LeaveRoom detaches a client from its room broadcast group.
func (h *Hub) LeaveRoom(username string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[username]
	if !ok || c.RoomID == "" {
		return
	}
	if members, ok := h.rooms[c.RoomID]; ok {
		delete(members, c.Username)
		if len(members) == 0 {
			delete(h.rooms, c.RoomID)
		}
	}
	c.RoomID = ""
}

// BroadcastRoom sends a message to every client in a room.
func (h *Hub) BroadcastRoom(roomID string, msg WSMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	members, ok := h.rooms[roomID]
	if !ok {
		return
	}
	for _, c := range members {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("client send buffer full", "client", c.Username)
		}
	}
}

// SendTo sends a message to a specific client.
func (h *Hub) SendTo(username string, msg WSMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[username]
	if !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// SendError delivers an error event to a single client, never the room.
func (h *Hub) SendError(username, message string) {
	payload, _ := json.Marshal(map[string]string{"message": message})
	h.SendTo(username, WSMessage{Type: "error", Payload: payload})
}

func (h *Hub) readPump(ctx context.Context, c *Client) {
	defer func() {
		if err := c.conn.CloseNow(); err != nil {
			h.logger.Debug("close conn", "err", err)
		}
	}()
	for {
		var msg WSMessage
		if err := wsjson.Read(ctx, c.conn, &msg); err != nil {
			return
		}
		if h.handler != nil {
			h.handler.HandleMessage(ctx, c, msg)
		}
	}
}

func (h *Hub) writePump(ctx context.Context, c *Client) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			if err := wsjson.Write(ctx, c.conn, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
