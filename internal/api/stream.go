package api

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Hub fans DashboardEvents out to every connected admin dashboard, scoped
// per adminId so one admin's WebSocket feed never observes another
// admin's orders or ledger lines — the same authorization-scope
// invariant spec.md §8 requires of the REST surface ("all admin reads/
// writes filter by adminId; cross-admin access returns NotFound").
type Hub struct {
	clients    map[*DashboardClient]bool
	register   chan *DashboardClient
	unregister chan *DashboardClient
	broadcast  chan scopedMessage
	mu         sync.RWMutex
	logger     *slog.Logger
}

// scopedMessage is a marshalled DashboardEvent plus the adminId it is
// scoped to; adminId zero means every connected dashboard receives it
// (used for events with no single-admin owner, e.g. a symbol-wide quote).
type scopedMessage struct {
	adminID uint
	data    []byte
}

// DashboardClient is one admin's open WebSocket connection to the
// dashboard feed.
type DashboardClient struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	adminID uint
}

// NewHub creates the dashboard event hub. Run it in a goroutine before any
// client connects.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*DashboardClient]bool),
		register:   make(chan *DashboardClient),
		unregister: make(chan *DashboardClient),
		broadcast:  make(chan scopedMessage, 256),
		logger:     logger.With("component", "dashboard-hub"),
	}
}

// Run is the hub's single-goroutine event loop: register/unregister
// clients and fan out broadcast messages to whichever clients are
// scoped to see them.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Info("dashboard client connected", "adminId", client.adminID, "count", len(h.clients))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("dashboard client disconnected", "adminId", client.adminID, "count", len(h.clients))

		case msg := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				if msg.adminID != 0 && client.adminID != msg.adminID {
					continue
				}
				select {
				case client.send <- msg.data:
				default:
					h.logger.Warn("dashboard client send buffer full, disconnecting", "adminId", client.adminID)
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// BroadcastEvent marshals evt and queues it for delivery to every client
// scoped to evt.AdminID (or every connected client if AdminID is zero).
func (h *Hub) BroadcastEvent(evt DashboardEvent) {
	data, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error("failed to marshal dashboard event", "error", err)
		return
	}

	select {
	case h.broadcast <- scopedMessage{adminID: evt.AdminID, data: data}:
	default:
		h.logger.Warn("broadcast queue full, dropping event", "type", evt.Type, "adminId", evt.AdminID)
	}
}

// BroadcastSnapshot wraps snapshot in a "snapshot" DashboardEvent scoped to
// adminID and queues it for delivery.
func (h *Hub) BroadcastSnapshot(adminID uint, snapshot DashboardSnapshot) {
	h.BroadcastEvent(DashboardEvent{Type: "snapshot", Timestamp: time.Now(), AdminID: adminID, Data: snapshot})
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024 // dashboard clients never send large payloads
)

// writePump drains queued events to the socket and keepalive-pings on
// pingPeriod; it owns the connection's writes, so it alone closes conn.
func (c *DashboardClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// hub closed this client's channel on unregister
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only watches for the client going away — the admin dashboard
// never sends anything over this connection, it only listens.
func (c *DashboardClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error("dashboard websocket closed unexpectedly", "adminId", c.adminID, "error", err)
			}
			return
		}
	}
}

// NewClient registers a dashboard WebSocket connection scoped to adminID
// and starts its read/write pumps.
func NewClient(hub *Hub, conn *websocket.Conn, adminID uint) *DashboardClient {
	client := &DashboardClient{
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, 256),
		adminID: adminID,
	}

	client.hub.register <- client

	go client.writePump()
	go client.readPump()

	return client
}
