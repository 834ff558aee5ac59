// Package realtime delivers events to connected users over websockets.
// Each user has a private room holding all of their connections.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Envelope is the wire format of every event sent to clients.
type Envelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// HubConfig holds configuration for the hub.
type HubConfig struct {
	// AllowedOrigins restricts websocket upgrades by Origin header.
	// Empty allows any origin.
	AllowedOrigins []string

	// SendBuffer is the per-connection outbound queue length. Default: 64
	SendBuffer int

	Logger zerolog.Logger
}

// Hub tracks connections per user and fans events out to them.
type Hub struct {
	mu       sync.RWMutex
	rooms    map[string]map[*Client]struct{}
	closed   bool
	upgrader websocket.Upgrader
	buffer   int
	logger   zerolog.Logger
}

// NewHub creates a new hub.
func NewHub(cfg HubConfig) *Hub {
	buffer := cfg.SendBuffer
	if buffer <= 0 {
		buffer = 64
	}

	h := &Hub{
		rooms:  make(map[string]map[*Client]struct{}),
		buffer: buffer,
		logger: cfg.Logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// ServeWS upgrades the request and joins the connection to userID's room.
// The caller must have authenticated userID.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		h.logger.Debug().Err(err).Str("user_id", userID).Msg("websocket upgrade failed")
		return
	}

	c := &Client{
		hub:    h,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, h.buffer),
	}
	if !h.register(c) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func (h *Hub) register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	room, ok := h.rooms[c.userID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[c.userID] = room
	}
	room[c] = struct{}{}

	h.logger.Debug().
		Str("user_id", c.userID).
		Int("connections", len(room)).
		Msg("websocket client joined")
	return true
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *Client) {
	room, ok := h.rooms[c.userID]
	if !ok {
		return
	}
	if _, ok := room[c]; !ok {
		return
	}
	delete(room, c)
	close(c.send)
	if len(room) == 0 {
		delete(h.rooms, c.userID)
	}
}

// Deliver queues an encoded message on every local connection of userID
// and returns how many connections received it. Connections whose queue
// is full are dropped.
func (h *Hub) Deliver(userID string, message []byte) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := 0
	for c := range h.rooms[userID] {
		select {
		case c.send <- message:
			delivered++
		default:
			h.logger.Warn().Str("user_id", userID).Msg("websocket client too slow, dropping")
			h.removeLocked(c)
		}
	}
	return delivered
}

// PushToUser sends event to every local connection of userID. Offline users
// miss the event.
func (h *Hub) PushToUser(_ context.Context, userID, event string, payload any) error {
	msg, err := Encode(event, payload)
	if err != nil {
		return err
	}
	h.Deliver(userID, msg)
	return nil
}

// ClientCount returns the number of local connections for userID.
func (h *Hub) ClientCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[userID])
}

// Stats summarizes the connections held by this process.
type Stats struct {
	Users       int
	Connections int
}

// Stats returns the current connection counts.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	st := Stats{Users: len(h.rooms)}
	for _, room := range h.rooms {
		st.Connections += len(room)
	}
	return st
}

// Close disconnects every client and rejects new connections.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for _, room := range h.rooms {
		for c := range room {
			h.removeLocked(c)
		}
	}
}

// Encode renders an event envelope.
func Encode(event string, payload any) ([]byte, error) {
	msg, err := json.Marshal(Envelope{Event: event, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("encoding %s event: %w", event, err)
	}
	return msg, nil
}
