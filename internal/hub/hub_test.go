package hub

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentbrowser/viewer/internal/logger"
	"github.com/agentbrowser/viewer/pkg/models"
)

func httpHandlerAdapter(h *Hub) http.Handler {
	return http.HandlerFunc(h.ServeWS)
}

func TestEncodeEventEnvelope(t *testing.T) {
	raw, err := encodeEvent(models.EventStatus, models.StatusEvent{IsOpen: true})
	require.NoError(t, err)

	var msg models.WireMessage
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, models.EventStatus, msg.Event)

	var status models.StatusEvent
	require.NoError(t, json.Unmarshal(msg.Data, &status))
	assert.True(t, status.IsOpen)
}

func TestBroadcastReachesConnectedViewers(t *testing.T) {
	h := New(logger.Nop())
	srv := httptest.NewServer(httpHandlerAdapter(h))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	first, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { first.Close() })
	second, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { second.Close() })

	waitForClients(t, h, 2)

	h.Broadcast(models.EventStatus, models.StatusEvent{IsOpen: true})

	for _, conn := range []*websocket.Conn{first, second} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)

		var msg models.WireMessage
		require.NoError(t, json.Unmarshal(raw, &msg))
		assert.Equal(t, models.EventStatus, msg.Event)
	}
}

func TestConnectCallbackRunsBeforeTraffic(t *testing.T) {
	h := New(logger.Nop())
	h.SetHandlers(func(c *Client) {
		c.Send(models.EventStatus, models.StatusEvent{IsOpen: false})
	}, nil)

	srv := httptest.NewServer(httpHandlerAdapter(h))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg models.WireMessage
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, models.EventStatus, msg.Event)
}

func TestInboundMessagesDispatchInOrder(t *testing.T) {
	received := make(chan models.WireMessage, 8)

	h := New(logger.Nop())
	h.SetHandlers(nil, func(_ *Client, msg models.WireMessage) {
		received <- msg
	})

	srv := httptest.NewServer(httpHandlerAdapter(h))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	for _, command := range []string{"open https://example.com", "click @e1"} {
		payload, err := json.Marshal(models.CommandPayload{Command: command})
		require.NoError(t, err)
		raw, err := json.Marshal(models.WireMessage{Event: models.EventCommand, Data: payload})
		require.NoError(t, err)
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))
	}

	for _, want := range []string{"open https://example.com", "click @e1"} {
		select {
		case msg := <-received:
			assert.Equal(t, models.EventCommand, msg.Event)
			var payload models.CommandPayload
			require.NoError(t, json.Unmarshal(msg.Data, &payload))
			assert.Equal(t, want, payload.Command)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for inbound message")
		}
	}
}

func TestMalformedInboundMessageIsIgnored(t *testing.T) {
	received := make(chan models.WireMessage, 1)

	h := New(logger.Nop())
	h.SetHandlers(nil, func(_ *Client, msg models.WireMessage) {
		received <- msg
	})

	srv := httptest.NewServer(httpHandlerAdapter(h))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	payload, err := json.Marshal(models.CommandPayload{Command: "reload"})
	require.NoError(t, err)
	raw, err := json.Marshal(models.WireMessage{Event: models.EventCommand, Data: payload})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))

	select {
	case msg := <-received:
		// The malformed frame was skipped; the next valid one arrives.
		assert.Equal(t, models.EventCommand, msg.Event)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for inbound message")
	}
}

func TestDisconnectUnregisters(t *testing.T) {
	h := New(logger.Nop())
	srv := httptest.NewServer(httpHandlerAdapter(h))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	waitForClients(t, h, 1)
	conn.Close()
	waitForClients(t, h, 0)
}

func waitForClients(t *testing.T, h *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.ClientCount() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected %d clients, have %d", want, h.ClientCount())
}
