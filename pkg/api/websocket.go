package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tcmartin/agentflow/pkg/executor"
	"github.com/tcmartin/agentflow/pkg/logging"
)

// subscriptionMessage is what clients send over the socket
type subscriptionMessage struct {
	// Type is "subscribe", "unsubscribe" or "ping"
	Type string `json:"type"`

	// SessionID scopes subscribe/unsubscribe; empty means all sessions
	SessionID string `json:"session_id,omitempty"`
}

// wsClient is one connected WebSocket with its subscriptions
type wsClient struct {
	conn *websocket.Conn

	// send buffers outbound events; the hub drops events for clients
	// whose buffer is full rather than blocking the executor
	send chan executor.Event

	mu sync.Mutex

	// sessions the client subscribed to; nil means all
	sessions map[string]bool
}

// wantsEvent reports whether the client subscribed to the event's session
func (c *wsClient) wantsEvent(event executor.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessions == nil {
		return true
	}
	return c.sessions[event.SessionID]
}

// EventHub fans execution events out to WebSocket clients. It implements
// executor.EventSink; Publish never blocks the executor.
type EventHub struct {
	upgrader websocket.Upgrader
	clients  map[*wsClient]bool
	mu       sync.RWMutex
	logger   zerolog.Logger
}

// NewEventHub creates an empty hub
func NewEventHub() *EventHub {
	return &EventHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients: make(map[*wsClient]bool),
		logger:  logging.Component("events"),
	}
}

// Publish sends an event to every subscribed client. Slow clients lose
// events instead of stalling the run.
func (h *EventHub) Publish(event executor.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if !client.wantsEvent(event) {
			continue
		}
		select {
		case client.send <- event:
		default:
			h.logger.Warn().Str("session_id", event.SessionID).Msg("Dropping event for slow WebSocket client")
		}
	}
}

// ClientCount returns the number of connected clients
func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket upgrades the connection and streams execution events
// until the client disconnects. Clients start subscribed to all sessions
// and can narrow with subscribe messages.
func (h *EventHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan executor.Event, 64),
	}

	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()

	h.logger.Debug().Str("remote", conn.RemoteAddr().String()).Msg("WebSocket client connected")

	go h.writeLoop(client)
	h.readLoop(client)

	// Closing under the write lock means no Publish can be mid-send on
	// this channel
	h.mu.Lock()
	delete(h.clients, client)
	close(client.send)
	h.mu.Unlock()

	conn.Close()
	h.logger.Debug().Str("remote", conn.RemoteAddr().String()).Msg("WebSocket client disconnected")
}

// readLoop consumes subscription messages until the connection errors
func (h *EventHub) readLoop(client *wsClient) {
	for {
		var msg subscriptionMessage
		if err := client.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Msg("WebSocket read error")
			}
			return
		}

		switch msg.Type {
		case "subscribe":
			client.mu.Lock()
			if client.sessions == nil {
				client.sessions = make(map[string]bool)
			}
			client.sessions[msg.SessionID] = true
			client.mu.Unlock()
		case "unsubscribe":
			client.mu.Lock()
			if client.sessions != nil {
				delete(client.sessions, msg.SessionID)
			}
			client.mu.Unlock()
		case "ping":
			// Read-side keepalive; the write loop's ping ticker covers
			// the other direction
		}
	}
}

// writeLoop pushes buffered events and periodic pings to the client
func (h *EventHub) writeLoop(client *wsClient) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-client.send:
			if !ok {
				return
			}
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
