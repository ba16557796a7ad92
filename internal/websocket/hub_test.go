package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestBroadcastReachesClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub(nil)
	go hub.Run(ctx)

	srv := httptest.NewServer(httpHandler(hub))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.clientCount(ctx) == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Broadcast("view", map[string]int{"readings": 3})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]int `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(data, &msg))
	require.Equal(t, "view", msg.Type)
	require.Equal(t, 3, msg.Payload["readings"])
}

func TestClientsAfterShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(nil)
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped
	require.Zero(t, hub.clientCount(context.Background()))
}

func httpHandler(h *Hub) http.Handler {
	return http.HandlerFunc(h.ServeWS)
}
