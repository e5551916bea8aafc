package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mcdev12/turingroom/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Presence is told when a member gains or loses their last live connection.
type Presence interface {
	SetOnline(code, playerID string, online bool) error
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// ConnectionManager bridges hub subscriptions onto WebSocket connections.
type ConnectionManager struct {
	hub      *Hub
	presence Presence
	upgrader websocket.Upgrader
	config   ConnectionConfig

	mu    sync.Mutex
	conns map[*Connection]struct{}
}

// Connection is one client's WebSocket carrying one room subscription.
type Connection struct {
	Sub         *Subscription
	Conn        *websocket.Conn
	Manager     *ConnectionManager
	ConnectedAt time.Time

	done      chan struct{}
	closeOnce sync.Once
}

func NewConnectionManager(hub *Hub, presence Presence, config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		hub:      hub,
		presence: presence,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
		conns:  make(map[*Connection]struct{}),
	}
}

// Serve subscribes the player to the room and, on success, upgrades the request to a
// WebSocket that streams the subscription. Subscription errors are written as plain HTTP
// errors before the upgrade.
func (cm *ConnectionManager) Serve(w http.ResponseWriter, r *http.Request, code, playerID string) error {
	sub, err := cm.hub.Subscribe(code, playerID)
	if err != nil {
		http.Error(w, err.Error(), subscribeStatus(err))
		return err
	}

	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		cm.hub.Unsubscribe(sub)
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	c := &Connection{
		Sub:         sub,
		Conn:        conn,
		Manager:     cm,
		ConnectedAt: time.Now(),
		done:        make(chan struct{}),
	}
	cm.mu.Lock()
	cm.conns[c] = struct{}{}
	cm.mu.Unlock()

	if err := cm.presence.SetOnline(sub.RoomCode, playerID, true); err != nil {
		log.Debug().Err(err).Str("room_code", sub.RoomCode).Msg("failed to mark player online")
	}

	go c.writePump()
	go c.readPump()

	log.Info().
		Str("subscription_id", sub.ID).
		Str("player_id", playerID).
		Str("room_code", sub.RoomCode).
		Msg("WebSocket connection established")
	return nil
}

// Count returns the number of open connections.
func (cm *ConnectionManager) Count() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return len(cm.conns)
}

// close tears the connection down once: unsubscribes, closes the socket and updates presence.
func (c *Connection) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		cm := c.Manager
		cm.hub.Unsubscribe(c.Sub)
		c.Conn.Close()

		cm.mu.Lock()
		delete(cm.conns, c)
		cm.mu.Unlock()

		if !cm.hub.Online(c.Sub.RoomCode, c.Sub.PlayerID) {
			// The room may already be gone.
			_ = cm.presence.SetOnline(c.Sub.RoomCode, c.Sub.PlayerID, false)
		}

		log.Info().
			Str("subscription_id", c.Sub.ID).
			Str("player_id", c.Sub.PlayerID).
			Str("room_code", c.Sub.RoomCode).
			Msg("connection closed")
	})
}

// writePump handles sending events and pings to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case ev, ok := <-c.Sub.Events():
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				reason := "room closed"
				if errors.Is(c.Sub.Err(), ErrSubscriptionDropped) {
					reason = "resync required"
				}
				c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, reason))
				return
			}

			data, err := json.Marshal(ev)
			if err != nil {
				log.Error().Err(err).Str("event_type", string(ev.Type)).Msg("failed to marshal event")
				continue
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().
					Err(err).
					Str("subscription_id", c.Sub.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("subscription_id", c.Sub.ID).
					Msg("failed to send ping")
				return
			}

		case <-c.done:
			return
		}
	}
}

// readPump keeps the read deadline fresh and notices when the client goes away. Clients
// act through the HTTP API; anything they send here is ignored.
func (c *Connection) readPump() {
	defer c.close()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("subscription_id", c.Sub.ID).
					Msg("unexpected WebSocket close error")
			}
			return
		}

		log.Debug().
			Str("subscription_id", c.Sub.ID).
			Int("bytes", len(message)).
			Msg("ignoring client message")
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

func subscribeStatus(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
