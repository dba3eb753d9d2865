package hub

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/agentbrowser/viewer/pkg/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Inbound frames are small command envelopes; outbound screenshots
	// are what need room, and those only ever go server->client.
	maxInboundSize = 1 * 1024 * 1024

	sendBuffer = 64
)

// Client is one connected viewer.
type Client struct {
	ID   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func newClient(h *Hub, conn *websocket.Conn) *Client {
	return &Client{
		ID:   uuid.New().String(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
}

// Send queues one typed event for this viewer only. Events for a slow
// viewer whose buffer is full are dropped rather than blocking the
// emitter.
func (c *Client) Send(event string, data any) {
	payload, err := encodeEvent(event, data)
	if err != nil {
		c.hub.log.Warnw("failed to encode event", "event", event, "error", err)
		return
	}
	select {
	case c.send <- payload:
	default:
		c.hub.log.Warnw("dropping event for slow viewer", "client", c.ID, "event", event)
	}
}

// readPump delivers inbound messages to the hub's handler in arrival
// order for this connection, then unregisters on any read failure.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxInboundSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Debugw("viewer read error", "client", c.ID, "error", err)
			}
			return
		}

		var msg models.WireMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.hub.log.Debugw("malformed viewer message", "client", c.ID, "error", err)
			continue
		}
		if c.hub.onMessage != nil {
			c.hub.onMessage(c, msg)
		}
	}
}

// writePump drains the send channel onto the connection and keeps the
// connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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

func encodeEvent(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(models.WireMessage{Event: event, Data: raw})
}
