// WebSocket bridge for the desktop shell: broadcasts store changes and
// sync lifecycle events to the UI over localhost.
package main

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/keepsakehq/keepsake-client/internal/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Desktop shell only; never exposed off the machine.
		return strings.HasPrefix(r.Host, "localhost") || strings.HasPrefix(r.Host, "127.0.0.1")
	},
}

// Event types pushed to the shell. sync.* events pass through from the
// engine listener with their names unchanged.
const (
	EventRecordChanged = "record.changed"
)

// Envelope wraps every message on the wire.
type Envelope struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data"`
	Timestamp int64                  `json:"timestamp"`
}

// Client is one connected shell window.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// Hub maintains active connections and fans events out to them.
type Hub struct {
	clients    map[string]*Client
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a hub and starts its dispatch loop.
func NewHub() *Hub {
	hub := &Hub{
		clients:    make(map[string]*Client),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
	go hub.run()
	return hub
}

func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			total := len(h.clients)
			h.mu.Unlock()
			logging.Debug("shell connected", map[string]interface{}{
				"client_id": client.id, "total": total,
			})

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.send)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for id, client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Send buffer full; drop the connection.
					close(client.send)
					delete(h.clients, id)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast sends one enveloped event to every connected shell.
func (h *Hub) Broadcast(eventType string, data map[string]interface{}) {
	envelope := Envelope{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	bytes, err := json.Marshal(envelope)
	if err != nil {
		logging.Error("failed to marshal event", err,
			map[string]interface{}{"type": eventType})
		return
	}

	select {
	case h.broadcast <- bytes:
	default:
		logging.Warn("event dropped, broadcast queue full",
			map[string]interface{}{"type": eventType})
	}
}

// handleWS upgrades a shell connection and starts its pumps.
func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error("websocket upgrade failed", err)
		return
	}

	client := &Client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, 64),
		hub:  h,
	}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound frames; the bridge is one-way. It exists to
// notice closes and answer pings.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
