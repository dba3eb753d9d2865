// Package hub fans typed events out to connected viewers over
// websockets and feeds their inbound commands to a single handler.
package hub

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/agentbrowser/viewer/pkg/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Same-origin trust: the dashboard is a local single-operator tool.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ConnectFunc runs once per new viewer, before any other traffic, to
// replay current state.
type ConnectFunc func(c *Client)

// MessageFunc handles one inbound viewer message.
type MessageFunc func(c *Client, msg models.WireMessage)

// Hub tracks connected viewers and broadcasts events to all of them.
type Hub struct {
	mu        sync.RWMutex
	clients   map[*Client]bool
	onConnect ConnectFunc
	onMessage MessageFunc
	log       *zap.SugaredLogger
}

// New creates an empty hub.
func New(log *zap.SugaredLogger) *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		log:     log,
	}
}

// SetHandlers wires the connect/message callbacks. Must be called before
// ServeWS accepts connections; split from New to break the construction
// cycle with the coordinator.
func (h *Hub) SetHandlers(onConnect ConnectFunc, onMessage MessageFunc) {
	h.onConnect = onConnect
	h.onMessage = onMessage
}

// ServeWS upgrades an HTTP request into a viewer connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnw("websocket upgrade failed", "error", err)
		return
	}

	client := newClient(h, conn)

	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()
	h.log.Infow("viewer connected", "client", client.ID)

	go client.writePump()

	if h.onConnect != nil {
		h.onConnect(client)
	}
	client.readPump()
}

// Broadcast sends one typed event to every connected viewer. The payload
// is marshaled once; slow viewers drop rather than block.
func (h *Hub) Broadcast(event string, data any) {
	payload, err := encodeEvent(event, data)
	if err != nil {
		h.log.Warnw("failed to encode broadcast", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- payload:
		default:
			h.log.Warnw("dropping broadcast for slow viewer", "client", client.ID, "event", event)
		}
	}
}

// ClientCount returns the number of connected viewers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	h.log.Infow("viewer disconnected", "client", c.ID)
}
