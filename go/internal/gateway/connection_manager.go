package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ConnectionManager manages viewer WebSocket connections.
//
// A single loop in Start handles registrations and broadcasts in order, so a
// new viewer gets its initial burst before any later broadcast, and every
// broadcast is built from state read at delivery time.
//
// Broadcast requests are coalesced per event type: a type requested again
// before the loop picks it up is sent once, with the state current at that
// point. No category is ever dropped.
type ConnectionManager struct {
	connections map[*Connection]bool
	mu          sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	provider StateProvider
	mirror   EventMirror

	registerCh chan *Connection

	pendingMu sync.Mutex
	pending   []EventType // distinct, in request order
	wake      chan struct{}
}

// Connection represents a WebSocket connection to a viewer
type Connection struct {
	ID      string
	View    string // "admin", "main" or empty
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

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
	CheckOrigin     func(r *http.Request) bool
}

// EventMirror receives a copy of every broadcast after local delivery
type EventMirror interface {
	Publish(t EventType, data []byte) error
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
		SendBufferSize:  64,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig, provider StateProvider) *ConnectionManager {
	// the initial burst must fit without blocking the manager loop
	if config.SendBufferSize <= len(InitialEventTypes) {
		config.SendBufferSize = len(InitialEventTypes) + 1
	}
	return &ConnectionManager{
		connections: make(map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:     config,
		provider:   provider,
		registerCh: make(chan *Connection, 64),
		wake:       make(chan struct{}, 1),
	}
}

// SetMirror installs a mirror for broadcast events. Call before Start.
func (cm *ConnectionManager) SetMirror(mirror EventMirror) {
	cm.mirror = mirror
}

// Start processes registrations and broadcasts until ctx is done
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			cm.closeAll()
			log.Info().Msg("connection manager shutting down")
			return
		case conn := <-cm.registerCh:
			cm.registerConnection(conn)
		case <-cm.wake:
			for _, eventType := range cm.takePending() {
				cm.handleBroadcast(eventType)
			}
		}
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and queues it
// for registration
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, view string) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		View:        view,
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		ConnectedAt: time.Now(),
	}

	select {
	case cm.registerCh <- connection:
	case <-r.Context().Done():
		conn.Close()
		return r.Context().Err()
	}

	log.Info().
		Str("connection_id", connection.ID).
		Str("view", view).
		Msg("WebSocket connection established")

	return nil
}

// Broadcast queues a broadcast of the current state of one category. It
// never blocks. Repeated requests for a type still pending are merged.
func (cm *ConnectionManager) Broadcast(eventType EventType) {
	cm.pendingMu.Lock()
	if !slices.Contains(cm.pending, eventType) {
		cm.pending = append(cm.pending, eventType)
	}
	cm.pendingMu.Unlock()

	select {
	case cm.wake <- struct{}{}:
	default:
		// loop already signalled
	}
}

// takePending returns the queued event types and clears the queue
func (cm *ConnectionManager) takePending() []EventType {
	cm.pendingMu.Lock()
	defer cm.pendingMu.Unlock()

	types := cm.pending
	cm.pending = nil
	return types
}

// registerConnection queues the initial burst, adds the connection and
// starts its pumps
func (cm *ConnectionManager) registerConnection(conn *Connection) {
	for _, t := range InitialEventTypes {
		data, err := cm.encode(t)
		if err != nil {
			log.Error().Err(err).Str("event_type", string(t)).Msg("failed to build initial event")
			continue
		}
		conn.Send <- data // fresh buffer, sized for the burst
	}

	cm.mu.Lock()
	cm.connections[conn] = true
	total := len(cm.connections)
	cm.mu.Unlock()

	go conn.writePump()
	go conn.readPump()

	log.Debug().
		Str("connection_id", conn.ID).
		Int("total_connections", total).
		Msg("connection registered")
}

// unregisterConnection removes a connection from the manager
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if _, exists := cm.connections[conn]; exists {
		delete(cm.connections, conn)
		close(conn.Send)

		log.Info().
			Str("connection_id", conn.ID).
			Str("view", conn.View).
			Msg("connection unregistered")
	}
}

// handleBroadcast builds the event once and hands it to every connection
func (cm *ConnectionManager) handleBroadcast(eventType EventType) {
	data, err := cm.encode(eventType)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to build event for broadcast")
		return
	}

	// sends never block; the read lock keeps Send channels open meanwhile
	var slow []*Connection
	cm.mu.RLock()
	delivered := len(cm.connections)
	for conn := range cm.connections {
		select {
		case conn.Send <- data:
		default:
			slow = append(slow, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}

	if cm.mirror != nil {
		if err := cm.mirror.Publish(eventType, data); err != nil {
			log.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to mirror event")
		}
	}

	log.Debug().
		Str("event_type", string(eventType)).
		Int("connections", delivered-len(slow)).
		Msg("event broadcasted")
}

func (cm *ConnectionManager) encode(eventType EventType) ([]byte, error) {
	event, err := BuildEvent(cm.provider, eventType)
	if err != nil {
		return nil, err
	}
	return json.Marshal(event)
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.RLock()
	targets := make([]*Connection, 0, len(cm.connections))
	for conn := range cm.connections {
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	for _, conn := range targets {
		cm.unregisterConnection(conn)
	}
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() map[string]interface{} {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	views := make(map[string]int)
	var oldest time.Time
	for conn := range cm.connections {
		if oldest.IsZero() || conn.ConnectedAt.Before(oldest) {
			oldest = conn.ConnectedAt
		}
		view := conn.View
		if view == "" {
			view = "unknown"
		}
		views[view]++
	}

	var oldestAge float64
	if !oldest.IsZero() {
		oldestAge = time.Since(oldest).Seconds()
	}

	return map[string]interface{}{
		"total_connections":         len(cm.connections),
		"views":                     views,
		"oldest_connection_seconds": oldestAge,
	}
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
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

// readPump drains the connection so pongs and close frames are processed.
// Viewers do not send commands.
func (c *Connection) readPump() {
	defer func() {
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
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		log.Debug().
			Str("connection_id", c.ID).
			Int("bytes", len(message)).
			Msg("ignoring client message")
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
