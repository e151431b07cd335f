package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"stega_backend/metrics"
)

// Event types sent on /ws.
const (
	EventOperation     = "operation"
	EventServingStatus = "serving_status"
	EventSystemStatus  = "system_status"
)

// Event is the envelope of every websocket message.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// NewEvent stamps an event with the current time.
func NewEvent(eventType string, data any) Event {
	return Event{Type: eventType, Timestamp: time.Now(), Data: data}
}

// BroadcasterConfig configures an EventBroadcaster.
type BroadcasterConfig struct {
	PingInterval         time.Duration
	PongWait             time.Duration
	WriteWait            time.Duration
	MaxMessageSize       int64
	BroadcastBufferSize  int
	ClientSendBufferSize int
}

// DefaultBroadcasterConfig returns the default configuration.
func DefaultBroadcasterConfig() BroadcasterConfig {
	return BroadcasterConfig{
		PingInterval:         30 * time.Second,
		PongWait:             60 * time.Second,
		WriteWait:            10 * time.Second,
		MaxMessageSize:       512,
		BroadcastBufferSize:  256,
		ClientSendBufferSize: 64,
	}
}

type client struct {
	remoteAddr string
	send       chan []byte
}

// EventBroadcaster fans events out to websocket clients. Clients only
// listen; anything they send is discarded.
type EventBroadcaster struct {
	config   BroadcasterConfig
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*websocket.Conn]*client

	broadcast  chan Event
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
}

// NewEventBroadcaster creates a broadcaster. Call Run to start it.
func NewEventBroadcaster(config BroadcasterConfig, logger *zap.Logger) *EventBroadcaster {
	return &EventBroadcaster{
		config:  config,
		logger:  logger,
		clients: make(map[*websocket.Conn]*client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		broadcast:  make(chan Event, config.BroadcastBufferSize),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
	}
}

// Run processes registrations and broadcasts until ctx is done, then
// disconnects every client.
func (b *EventBroadcaster) Run(ctx context.Context) {
	ping := time.NewTicker(b.config.PingInterval)
	defer ping.Stop()
	defer close(b.done)

	for {
		select {
		case <-ctx.Done():
			b.closeAll()
			return
		case conn := <-b.register:
			b.add(conn)
		case conn := <-b.unregister:
			b.remove(conn)
		case event := <-b.broadcast:
			b.sendAll(event)
		case <-ping.C:
			b.pingAll()
		}
	}
}

// HandleConnection upgrades the request and registers the client.
func (b *EventBroadcaster) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("WebSocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	conn.SetReadLimit(b.config.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(b.config.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(b.config.PongWait))
	})

	select {
	case b.register <- conn:
	case <-b.done:
		conn.Close()
		return
	}
	go b.readPump(conn)
}

// Publish queues an event. It never blocks; when the queue is full the
// event is dropped.
func (b *EventBroadcaster) Publish(event Event) {
	select {
	case b.broadcast <- event:
	default:
		b.logger.Warn("Event queue full, dropping event", zap.String("type", event.Type))
	}
}

// PublishOperation announces a finished encode or decode.
func (b *EventBroadcaster) PublishOperation(rec metrics.OperationRecord) {
	b.Publish(NewEvent(EventOperation, rec))
}

// PublishServingStatus announces a model server probe result.
func (b *EventBroadcaster) PublishServingStatus(status metrics.ServingStatus) {
	b.Publish(NewEvent(EventServingStatus, status))
}

// PublishSystemStatus announces a health change.
func (b *EventBroadcaster) PublishSystemStatus(status metrics.SystemStatus) {
	b.Publish(NewEvent(EventSystemStatus, status))
}

// ClientCount returns the number of connected clients.
func (b *EventBroadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

func (b *EventBroadcaster) add(conn *websocket.Conn) {
	c := &client{
		remoteAddr: conn.RemoteAddr().String(),
		send:       make(chan []byte, b.config.ClientSendBufferSize),
	}

	b.mu.Lock()
	b.clients[conn] = c
	total := len(b.clients)
	b.mu.Unlock()

	go b.writePump(conn, c.send)
	b.logger.Debug("WebSocket client connected",
		zap.String("remote_addr", c.remoteAddr),
		zap.Int("clients", total),
	)
}

func (b *EventBroadcaster) remove(conn *websocket.Conn) {
	b.mu.Lock()
	c, ok := b.clients[conn]
	if ok {
		delete(b.clients, conn)
		close(c.send)
	}
	total := len(b.clients)
	b.mu.Unlock()

	if ok {
		b.logger.Debug("WebSocket client disconnected",
			zap.String("remote_addr", c.remoteAddr),
			zap.Int("clients", total),
		)
	}
}

func (b *EventBroadcaster) sendAll(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("Failed to marshal event", zap.String("type", event.Type), zap.Error(err))
		return
	}

	b.mu.RLock()
	var slow []*websocket.Conn
	for conn, c := range b.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, conn)
		}
	}
	b.mu.RUnlock()

	for _, conn := range slow {
		b.logger.Warn("WebSocket client too slow, disconnecting", zap.String("remote_addr", conn.RemoteAddr().String()))
		b.remove(conn)
	}
}

func (b *EventBroadcaster) pingAll() {
	b.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(b.clients))
	for conn := range b.clients {
		conns = append(conns, conn)
	}
	b.mu.RUnlock()

	deadline := time.Now().Add(b.config.WriteWait)
	for _, conn := range conns {
		if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
			b.remove(conn)
		}
	}
}

func (b *EventBroadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for conn, c := range b.clients {
		close(c.send)
		delete(b.clients, conn)
	}
}

func (b *EventBroadcaster) readPump(conn *websocket.Conn) {
	defer func() {
		select {
		case b.unregister <- conn:
		case <-b.done:
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				b.logger.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}
	}
}

// writePump owns all data writes to conn and closes it when send closes.
func (b *EventBroadcaster) writePump(conn *websocket.Conn, send <-chan []byte) {
	defer conn.Close()

	for message := range send {
		conn.SetWriteDeadline(time.Now().Add(b.config.WriteWait))
		if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}

	conn.SetWriteDeadline(time.Now().Add(b.config.WriteWait))
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
}
