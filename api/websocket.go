package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/devquest/collab/internal/slogging"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// HubConfig tunes the realtime connection handling
type HubConfig struct {
	ReadLimit    int64
	PongWait     time.Duration
	PingInterval time.Duration
	WriteWait    time.Duration
	SendBuffer   int
}

// DefaultHubConfig returns the connection tuning used when none is supplied
func DefaultHubConfig() HubConfig {
	return HubConfig{
		ReadLimit:    512 * 1024,
		PongWait:     60 * time.Second,
		PingInterval: 30 * time.Second,
		WriteWait:    10 * time.Second,
		SendBuffer:   256,
	}
}

// Hub is the session room registry and event router. It maps session
// tokens to rooms of live connections, keeps the reverse index so a
// connection belongs to at most one room, and dispatches inbound events to
// their handlers. It is an injected service with an explicit lifecycle.
type Hub struct {
	cfg       HubConfig
	store     SessionStore
	presence  *PresenceTracker
	validator TokenValidator
	executor  CodeExecutor
	metrics   *Metrics

	mu         sync.RWMutex
	rooms      map[string]*SessionRoom
	clientRoom map[*Client]*SessionRoom
	shutdown   bool

	handlers map[MessageType]MessageHandler
}

// SessionRoom is the set of live connections attached to one session
type SessionRoom struct {
	Token string

	mu      sync.RWMutex
	clients map[*Client]bool
}

// Client represents one WebSocket connection. Identity is nil until the
// authenticate message succeeds and never changes afterwards.
type Client struct {
	ID   string
	hub  *Hub
	conn *websocket.Conn
	// Buffered channel of outbound frames
	Send chan []byte

	mu       sync.RWMutex
	identity *Identity
	closed   bool
}

// Identity returns the resolved identity, or nil before authentication
func (c *Client) Identity() *Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity
}

func (c *Client) setIdentity(id *Identity) {
	c.mu.Lock()
	c.identity = id
	c.mu.Unlock()
}

// closeSend marks the client closed and closes the send channel. trySend
// takes the same lock, so no send can race the close. Idempotent.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}

// trySend queues a frame without blocking. Returns false when the client is
// closed or its buffer is full.
func (c *Client) trySend(data []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// Upgrader upgrades HTTP connections to WebSocket
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow all origins for development; restrict in production
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewHub creates the hub and registers the event handlers
func NewHub(cfg HubConfig, store SessionStore, presence *PresenceTracker, validator TokenValidator, executor CodeExecutor, metrics *Metrics) *Hub {
	if cfg.SendBuffer <= 0 {
		cfg = DefaultHubConfig()
	}
	h := &Hub{
		cfg:        cfg,
		store:      store,
		presence:   presence,
		validator:  validator,
		executor:   executor,
		metrics:    metrics,
		rooms:      make(map[string]*SessionRoom),
		clientRoom: make(map[*Client]*SessionRoom),
		handlers:   make(map[MessageType]MessageHandler),
	}
	h.registerHandlers()
	return h
}

// Shutdown closes every connection and clears all hub state
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.shutdown = true
	for client := range h.clientRoom {
		client.closeSend()
	}
	h.rooms = make(map[string]*SessionRoom)
	h.clientRoom = make(map[*Client]*SessionRoom)
}

// RoomCount returns the number of rooms with at least one connection
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// Room returns the live room for a session token, or nil
func (h *Hub) Room(token string) *SessionRoom {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms[token]
}

// roomFor returns the room the client is currently attached to, or nil
func (h *Hub) roomFor(client *Client) *SessionRoom {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clientRoom[client]
}

// attach adds the client to the token's room, detaching it from any
// previous room first. A connection is a member of one room at a time.
func (h *Hub) attach(client *Client, token string) *SessionRoom {
	h.mu.Lock()
	if prev, ok := h.clientRoom[client]; ok && prev.Token != token {
		h.mu.Unlock()
		h.detach(client)
		h.mu.Lock()
	}
	room, ok := h.rooms[token]
	if !ok {
		room = &SessionRoom{Token: token, clients: make(map[*Client]bool)}
		h.rooms[token] = room
	}
	h.clientRoom[client] = room
	h.mu.Unlock()

	room.mu.Lock()
	room.clients[client] = true
	room.mu.Unlock()

	h.metrics.ActiveRooms.Set(float64(h.RoomCount()))
	return room
}

// detach removes the client from its room, dropping the room when empty.
// Returns the room the client was in, or nil. Idempotent.
func (h *Hub) detach(client *Client) *SessionRoom {
	h.mu.Lock()
	room, ok := h.clientRoom[client]
	if !ok {
		h.mu.Unlock()
		return nil
	}
	delete(h.clientRoom, client)

	room.mu.Lock()
	delete(room.clients, client)
	empty := len(room.clients) == 0
	room.mu.Unlock()

	if empty {
		delete(h.rooms, room.Token)
	}
	h.mu.Unlock()

	h.metrics.ActiveRooms.Set(float64(h.RoomCount()))
	return room
}

// Members returns the clients currently in the room
func (r *SessionRoom) Members() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		members = append(members, c)
	}
	return members
}

// Broadcast fans a message out to every room member except exclude.
// Sends are fire-and-forget: a member with a full send buffer is dropped
// from the room rather than blocking the event.
func (h *Hub) Broadcast(room *SessionRoom, payload any, exclude *Client) {
	if room == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slogging.Get().Error("Failed to marshal broadcast for session %s: %v", room.Token, err)
		return
	}

	room.mu.Lock()
	for client := range room.clients {
		if client == exclude {
			continue
		}
		if !client.trySend(data) {
			delete(room.clients, client)
			client.closeSend()
		}
	}
	room.mu.Unlock()
}

// sendTo delivers a message to a single connection
func (h *Hub) sendTo(client *Client, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slogging.Get().Error("Failed to marshal message for client %s: %v", client.ID, err)
		return
	}
	if !client.trySend(data) {
		slogging.Get().Warn("Dropping message to client %s: send buffer full or closed", client.ID)
	}
}

// sendError sends a scoped error event to the originating connection only
func (h *Hub) sendError(client *Client, code, message string) {
	h.metrics.EventErrorsTotal.WithLabelValues(code).Inc()
	h.sendTo(client, ErrorMessage{
		MessageType: MessageTypeError,
		Code:        code,
		Message:     message,
	})
}

// HandleWS upgrades the HTTP request and starts the connection pumps.
// The connection is unauthenticated until its first authenticate message.
func (h *Hub) HandleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slogging.Get().Error("Failed to upgrade connection: %v", err)
		return
	}

	client := &Client{
		ID:   uuid.New().String(),
		hub:  h,
		conn: conn,
		Send: make(chan []byte, h.cfg.SendBuffer),
	}

	h.metrics.ConnectedClients.Inc()
	slogging.Get().Debug("WebSocket connection %s opened", client.ID)

	go client.readPump()
	go client.writePump()
}

// handleDisconnect runs the full disconnect path for a closing connection
func (h *Hub) handleDisconnect(client *Client) {
	ctx := context.Background()
	h.processLeave(ctx, client)

	if id := client.Identity(); id != nil {
		h.presence.ConnectionClosed(ctx, id.UserID, client.ID)
		h.metrics.OnlineUsers.Set(float64(h.presence.OnlineCount()))
	}
	h.metrics.ConnectedClients.Dec()
	client.closeSend()
	slogging.Get().Debug("WebSocket connection %s closed", client.ID)
}

// readPump pumps inbound frames from the socket to the event router
func (c *Client) readPump() {
	defer func() {
		c.hub.handleDisconnect(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(c.hub.cfg.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.PongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slogging.Get().Warn("WebSocket read error on %s: %v", c.ID, err)
			}
			break
		}
		c.hub.route(context.Background(), c, message)
	}
}

// writePump pumps outbound frames and keeps the connection alive with pings
func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
