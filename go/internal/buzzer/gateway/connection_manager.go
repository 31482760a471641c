package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/buzzer/go/internal/buzzer/config"
	"github.com/mcdev12/buzzer/go/internal/buzzer/session"
	"github.com/mcdev12/buzzer/go/internal/buzzer/wire"
	"github.com/rs/zerolog/log"
)

// SessionSender is the part of a session a connection talks to
type SessionSender interface {
	Send(in session.Intent) error
}

// ConnectionManager upgrades participant connections and tracks them per session
type ConnectionManager struct {
	// Connection pools organized by session ID
	sessionConnections map[session.ID]map[*Connection]bool
	mu                 sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
}

// Connection is one participant's websocket. It implements session.Handle.
type Connection struct {
	ID        string
	SessionID session.ID
	Conn      *websocket.Conn
	Manager   *ConnectionManager

	session SessionSender

	send   chan []byte
	mu     sync.Mutex
	closed bool

	participantID atomic.Uint64
	joined        atomic.Bool
	leaveOnce     sync.Once

	ConnectedAt time.Time
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int

	// MaxNameLength drops renames longer than this; zero disables the check
	MaxNameLength int
	CheckOrigin   func(r *http.Request) bool
}

// ConnectionStats is a point-in-time count of live connections
type ConnectionStats struct {
	TotalConnections   int            `json:"total_connections"`
	ActiveSessions     int            `json:"active_sessions"`
	SessionConnections map[string]int `json:"session_connections"`
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	defaults := config.Default()
	return NewConnectionConfig(defaults.WebSocket, defaults.Session.MaxNameLength, nil)
}

// NewConnectionConfig builds the connection settings from loaded configuration.
// An empty origin list or one containing "*" allows every origin.
func NewConnectionConfig(ws config.WebSocketConfig, maxNameLength int, allowedOrigins []string) ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    ws.WriteTimeout,
		ReadTimeout:     ws.ReadTimeout,
		PingInterval:    ws.PingInterval,
		MaxMessageSize:  ws.MaxMessageSize,
		ReadBufferSize:  ws.ReadBufferSize,
		WriteBufferSize: ws.WriteBufferSize,
		SendBufferSize:  ws.SendBufferSize,
		MaxNameLength:   maxNameLength,
		CheckOrigin:     originChecker(allowedOrigins),
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(r *http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		sessionConnections: make(map[session.ID]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and attaches it to a session.
// The participant joins once the client sends Connect.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, sessionID session.ID, sess SessionSender) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		SessionID:   sessionID,
		Conn:        conn,
		Manager:     cm,
		session:     sess,
		send:        make(chan []byte, cm.config.SendBufferSize),
		ConnectedAt: time.Now(),
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("session_id", sessionID.String()).
		Str("remote_addr", r.RemoteAddr).
		Msg("WebSocket connection established")

	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.sessionConnections[conn.SessionID] == nil {
		cm.sessionConnections[conn.SessionID] = make(map[*Connection]bool)
	}
	cm.sessionConnections[conn.SessionID][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("session_id", conn.SessionID.String()).
		Int("total_connections", len(cm.sessionConnections[conn.SessionID])).
		Msg("connection registered")
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	connections, exists := cm.sessionConnections[conn.SessionID]
	if !exists || !connections[conn] {
		return
	}
	delete(connections, conn)

	// Clean up empty session connection pools
	if len(connections) == 0 {
		delete(cm.sessionConnections, conn.SessionID)
	}

	log.Info().
		Str("connection_id", conn.ID).
		Uint64("participant_id", conn.participantID.Load()).
		Str("session_id", conn.SessionID.String()).
		Msg("connection unregistered")
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{
		ActiveSessions:     len(cm.sessionConnections),
		SessionConnections: make(map[string]int, len(cm.sessionConnections)),
	}
	for sessionID, connections := range cm.sessionConnections {
		stats.TotalConnections += len(connections)
		stats.SessionConnections[sessionID.String()] = len(connections)
	}
	return stats
}

// ParticipantID is the id the session assigned, or zero before ConnectionSuccess
func (c *Connection) ParticipantID() uint64 {
	return c.participantID.Load()
}

// Deliver queues one notification for the client. It never blocks: a full
// buffer marks the client as dead and closes the connection.
func (c *Connection) Deliver(n wire.Notification) {
	if cs, ok := n.(wire.ConnectionSuccess); ok {
		c.participantID.Store(cs.ID)
	}

	data, err := wire.EncodeNotification(n)
	if err != nil {
		log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to encode notification")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	select {
	case c.send <- data:
	default:
		log.Warn().
			Str("connection_id", c.ID).
			Uint64("participant_id", c.participantID.Load()).
			Msg("connection send buffer full, closing connection")
		c.closeLocked()
		return
	}

	// the session is gone; flush Closed and hang up
	if _, ok := n.(wire.Closed); ok {
		c.closeLocked()
	}
}

// close stops outbound delivery; the write pump flushes what is queued and hangs up
func (c *Connection) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Connection) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// leave reports the departure to the session once. Connections that never
// joined have nothing to report.
func (c *Connection) leave() {
	c.leaveOnce.Do(func() {
		if !c.joined.Load() {
			return
		}
		c.forward(wire.Disconnect{})
	})
}

func (c *Connection) forward(msg wire.ClientMessage) {
	err := c.session.Send(session.Intent{
		From:    c.participantID.Load(),
		Handle:  c,
		Message: msg,
	})
	if err != nil {
		if errors.Is(err, session.ErrSessionClosed) {
			log.Debug().Str("connection_id", c.ID).Msg("session already closed")
			return
		}
		log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to forward intent")
	}
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				// Channel was closed
				c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection. Any read
// failure counts as the participant disconnecting.
func (c *Connection) readPump() {
	defer func() {
		c.leave()
		c.close()
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		messageType, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			return
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))

		if messageType != websocket.TextMessage {
			log.Warn().Str("connection_id", c.ID).Int("message_type", messageType).Msg("unexpected non-text frame")
			continue
		}
		if !c.handleClientMessage(message) {
			return
		}
	}
}

// handleClientMessage decodes one frame and forwards it to the session.
// It returns false when the client asked to leave.
func (c *Connection) handleClientMessage(message []byte) bool {
	msg, err := wire.DecodeClientMessage(message)
	if err != nil {
		log.Warn().
			Err(err).
			Str("connection_id", c.ID).
			Msg("received faulty message")
		return true
	}

	switch m := msg.(type) {
	case wire.ChangeName:
		if !c.nameAllowed(m.Name) {
			return true
		}
		c.forward(msg)
	case wire.ChangeSession:
		if !c.nameAllowed(m.Name) {
			return true
		}
		c.forward(msg)
	case wire.Connect:
		if !c.joined.CompareAndSwap(false, true) {
			log.Debug().Str("connection_id", c.ID).Msg("ignoring duplicate connect")
			return true
		}
		c.forward(msg)
	case wire.Disconnect:
		c.leave()
		return false
	default:
		c.forward(msg)
	}
	return true
}

func (c *Connection) nameAllowed(name string) bool {
	limit := c.Manager.config.MaxNameLength
	if limit > 0 && len(name) > limit {
		log.Warn().
			Str("connection_id", c.ID).
			Int("length", len(name)).
			Msg("dropping rename over the length limit")
		return false
	}
	return true
}
