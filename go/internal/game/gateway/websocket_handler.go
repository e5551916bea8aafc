package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles WebSocket upgrade requests for room event streams
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	hub               *Hub
}

func NewWebSocketHandler(cm *ConnectionManager, hub *Hub) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		hub:               hub,
	}
}

// HandleRoomConnection streams a room's events to one of its members.
func (h *WebSocketHandler) HandleRoomConnection(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("room_code")
	if code == "" {
		http.Error(w, "room_code is required", http.StatusBadRequest)
		return
	}
	playerID := r.URL.Query().Get("player_id")
	if playerID == "" {
		http.Error(w, "player_id is required", http.StatusBadRequest)
		return
	}

	if err := h.connectionManager.Serve(w, r, code, playerID); err != nil {
		log.Warn().
			Err(err).
			Str("room_code", code).
			Str("player_id", playerID).
			Msg("room event stream refused")
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	stats := h.hub.Stats()
	stats["connections"] = h.connectionManager.Count()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		log.Error().Err(err).Msg("failed to write connection stats")
	}
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/room", h.HandleRoomConnection)
	mux.HandleFunc("GET /ws/stats", h.HandleConnectionStats)
}
