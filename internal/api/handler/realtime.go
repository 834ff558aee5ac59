package handler

import (
	"net/http"
)

// SocketServer upgrades a request into a websocket joined to a user's room.
type SocketServer interface {
	ServeWS(w http.ResponseWriter, r *http.Request, userID string)
}

// RealtimeHandler handles the websocket endpoint.
type RealtimeHandler struct {
	sockets SocketServer
}

// NewRealtimeHandler creates a new RealtimeHandler.
func NewRealtimeHandler(sockets SocketServer) *RealtimeHandler {
	return &RealtimeHandler{sockets: sockets}
}

// Connect handles GET /v1/realtime - the caller joins their own room only.
func (h *RealtimeHandler) Connect(w http.ResponseWriter, r *http.Request) {
	h.sockets.ServeWS(w, r, GetUserID(r.Context()))
}
