package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/game-lobby/internal/domain"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg map[string]any
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestClient_JoinAndStartGameOverSocket(t *testing.T) {
	req := require.New(t)
	hub := newTestHub()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, hub.logger, w, r)
	}))
	defer srv.Close()
	defer hub.Stop()

	player := dial(t, srv)
	host := dial(t, srv)
	other := dial(t, srv)

	// Given two connections in room 5 (one joining by number, one by string) and one in room 6
	req.NoError(player.WriteJSON(map[string]any{"type": "join", "roomId": 5}))
	req.Equal("joined", readJSON(t, player)["type"])
	req.NoError(host.WriteJSON(map[string]any{"type": "join", "roomId": "5"}))
	req.Equal("joined", readJSON(t, host)["type"])
	req.NoError(other.WriteJSON(map[string]any{"type": "join", "roomId": 6}))
	req.Equal("joined", readJSON(t, other)["type"])

	// When the host starts a game
	req.NoError(host.WriteJSON(map[string]any{"type": "start-game", "roomId": 5, "game": "quiz", "duration": 60}))

	// Then both room 5 connections receive it
	for _, conn := range []*websocket.Conn{player, host} {
		msg := readJSON(t, conn)
		req.Equal(domain.EventGameStarted, msg["type"])
		req.EqualValues(5, msg["roomId"])
		req.Equal("quiz", msg["game"])
		req.EqualValues(60, msg["duration"])
	}

	// And room 6 only sees its own traffic
	req.NoError(other.WriteJSON(map[string]any{"type": "ping"}))
	req.Equal("pong", readJSON(t, other)["type"])
}

func TestClient_RejectsBadMessages(t *testing.T) {
	req := require.New(t)
	hub := newTestHub()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, hub.logger, w, r)
	}))
	defer srv.Close()
	defer hub.Stop()

	conn := dial(t, srv)

	req.NoError(conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	req.Equal("error", readJSON(t, conn)["type"])

	req.NoError(conn.WriteJSON(map[string]any{"type": "join"}))
	req.Equal("error", readJSON(t, conn)["type"])

	req.NoError(conn.WriteJSON(map[string]any{"type": "dance"}))
	req.Equal("error", readJSON(t, conn)["type"])
}

func TestClient_CloseUnsubscribes(t *testing.T) {
	req := require.New(t)
	hub := newTestHub()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, hub.logger, w, r)
	}))
	defer srv.Close()

	conn := dial(t, srv)
	req.NoError(conn.WriteJSON(map[string]any{"type": "join", "roomId": 9}))
	req.Equal("joined", readJSON(t, conn)["type"])
	req.Equal(1, hub.GetSubscriberCount("9"))

	conn.Close()

	req.Eventually(func() bool {
		return hub.GetTotalConnections() == 0 && hub.GetSubscriberCount("9") == 0
	}, 2*time.Second, 10*time.Millisecond)
}
