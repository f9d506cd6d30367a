package functions

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// socketIOServer speaks just enough Engine.IO v4 over websocket to accept a
// namespace connect and record emitted events.
type socketIOServer struct {
	*httptest.Server
	events chan string
}

func newSocketIOServer(t *testing.T) *socketIOServer {
	t.Helper()
	s := &socketIOServer{events: make(chan string, 8)}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.TrimSuffix(r.URL.Path, "/") != "/socket.io" || r.URL.Query().Get("EIO") != "4" {
			http.Error(w, "unsupported", http.StatusBadRequest)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		open := `0{"sid":"eio1","upgrades":[],"pingInterval":25000,"pingTimeout":20000,"maxPayload":1000000}`
		if err := conn.WriteMessage(websocket.TextMessage, []byte(open)); err != nil {
			return
		}
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			packet := string(msg)
			switch {
			case packet == "2":
				_ = conn.WriteMessage(websocket.TextMessage, []byte("3"))
			case strings.HasPrefix(packet, "40"):
				nsp := namespacePrefix(packet[2:])
				_ = conn.WriteMessage(websocket.TextMessage, []byte("40"+nsp+`{"sid":"sio1"}`))
			case strings.HasPrefix(packet, "42"):
				s.events <- packet[2:]
			}
		}
	}))
	t.Cleanup(s.Close)
	return s
}

// namespacePrefix returns the "/nsp," head of a socket.io packet body, if any.
func namespacePrefix(body string) string {
	if !strings.HasPrefix(body, "/") {
		return ""
	}
	if i := strings.Index(body, ","); i >= 0 {
		return body[:i+1]
	}
	return body + ","
}

func (s *socketIOServer) next(t *testing.T) (string, string, map[string]any) {
	t.Helper()
	select {
	case packet := <-s.events:
		nsp := strings.TrimSuffix(namespacePrefix(packet), ",")
		var frame []json.RawMessage
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(packet, namespacePrefix(packet))), &frame))
		require.Len(t, frame, 2)
		var name string
		require.NoError(t, json.Unmarshal(frame[0], &name))
		var payload map[string]any
		require.NoError(t, json.Unmarshal(frame[1], &payload))
		return nsp, name, payload
	case <-time.After(5 * time.Second):
		t.Fatal("no event received")
		return "", "", nil
	}
}

func TestSocketIOBroadcaster_EmitsUpdates(t *testing.T) {
	// --- Arrange ---
	srv := newSocketIOServer(t)
	ctx := context.Background()
	b, err := DialSocketIO(ctx, SocketIOOptions{URL: srv.URL, Timeout: 5 * time.Second})
	require.NoError(t, err)
	defer b.Close()
	u := Update{
		TwinID:   "thermostat67",
		Property: "Temperature",
		Value:    25.5,
		Source:   "iothub",
		Time:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}

	// --- Act ---
	err = b.Broadcast(ctx, u)

	// --- Assert ---
	require.NoError(t, err)
	nsp, event, payload := srv.next(t)
	assert.Equal(t, "", nsp)
	assert.Equal(t, "twin-update", event)
	assert.Equal(t, "thermostat67", payload["twinId"])
	assert.Equal(t, "Temperature", payload["property"])
	assert.Equal(t, 25.5, payload["value"])
	assert.Equal(t, "iothub", payload["source"])
	assert.Equal(t, "2024-05-01T12:00:00Z", payload["time"])
}

func TestSocketIOBroadcaster_CustomNamespaceAndEvent(t *testing.T) {
	// --- Arrange ---
	srv := newSocketIOServer(t)
	ctx := context.Background()
	b, err := DialSocketIO(ctx, SocketIOOptions{
		URL:       srv.URL,
		Namespace: "/twins",
		Event:     "temperature",
		Timeout:   5 * time.Second,
	})
	require.NoError(t, err)
	defer b.Close()

	// --- Act ---
	err = b.Broadcast(ctx, Update{TwinID: "room21", Property: "Temperature", Value: 21.0})

	// --- Assert ---
	require.NoError(t, err)
	nsp, event, payload := srv.next(t)
	assert.Equal(t, "/twins", nsp)
	assert.Equal(t, "temperature", event)
	assert.Equal(t, "room21", payload["twinId"])
}

func TestSocketIOBroadcaster_ClosedClientRefusesBroadcast(t *testing.T) {
	srv := newSocketIOServer(t)
	b, err := DialSocketIO(context.Background(), SocketIOOptions{URL: srv.URL, Timeout: 5 * time.Second})
	require.NoError(t, err)

	require.NoError(t, b.Close())

	assert.ErrorContains(t, b.Broadcast(context.Background(), Update{TwinID: "t1"}), "not connected")
}
