package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/game-lobby/internal/config"
	"github.com/game-lobby/internal/domain"
	"github.com/game-lobby/internal/memory"
	"github.com/game-lobby/internal/room"
	"github.com/game-lobby/internal/store"
	"github.com/game-lobby/internal/websocket"
)

type testAPI struct {
	t      *testing.T
	router http.Handler
	hub    *websocket.Hub
}

func newTestAPI(t *testing.T, st store.Store) *testAPI {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := room.NewRegistry(st, &config.RegistryConfig{StoreTimeout: time.Second}, logger)
	hub := websocket.NewHub(&config.RealtimeConfig{SendBuffer: 8}, logger)
	t.Cleanup(hub.Stop)
	return &testAPI{t: t, router: NewHandler(registry, hub, logger).Router(), hub: hub}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (a *testAPI) do(method, path string, body interface{}) (int, envelope) {
	a.t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	var env envelope
	require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func (a *testAPI) createRoom(name, userID string, password *string) int64 {
	a.t.Helper()
	code, env := a.do(http.MethodPost, "/api/rooms", domain.CreateRoomRequest{
		RoomName: name, UserID: userID, UserName: "name-" + userID, Password: password,
	})
	require.Equal(a.t, http.StatusCreated, code, env.Error)
	var res domain.CreateRoomResult
	require.NoError(a.t, json.Unmarshal(env.Data, &res))
	return res.RoomID
}

func TestHandler_RoomLifecycle(t *testing.T) {
	req := require.New(t)
	api := newTestAPI(t, memory.New())
	secret := "abc"

	roomID := api.createRoom("lobby", "alice", &secret)
	base := fmt.Sprintf("/api/rooms/%d", roomID)

	// Password is hidden from listings
	code, env := api.do(http.MethodGet, "/api/rooms", nil)
	req.Equal(http.StatusOK, code)
	req.JSONEq(fmt.Sprintf(`[{"id":%d,"roomName":"lobby","hasPassword":true}]`, roomID), string(env.Data))

	code, env = api.do(http.MethodPost, base+"/join", map[string]string{"userId": "bob", "userName": "Bob", "password": "xyz"})
	req.Equal(http.StatusForbidden, code)
	req.False(env.Success)

	code, env = api.do(http.MethodPost, base+"/join", map[string]string{"userId": "bob", "userName": "Bob", "password": "abc"})
	req.Equal(http.StatusOK, code)
	req.JSONEq(fmt.Sprintf(`{"roomId":%d,"userId":"bob","userName":"Bob","isLeader":false}`, roomID), string(env.Data))

	code, _ = api.do(http.MethodPost, base+"/ready", map[string]interface{}{"userId": "bob", "isReady": true})
	req.Equal(http.StatusOK, code)

	code, _ = api.do(http.MethodPost, base+"/transfer-leadership", map[string]string{"currentLeaderId": "alice", "newLeaderId": "bob"})
	req.Equal(http.StatusOK, code)

	code, env = api.do(http.MethodGet, base+"/participants", nil)
	req.Equal(http.StatusOK, code)
	req.JSONEq(`[
		{"userId":"alice","userName":"name-alice","isLeader":false,"isReady":false},
		{"userId":"bob","userName":"Bob","isLeader":true,"isReady":true}
	]`, string(env.Data))

	code, _ = api.do(http.MethodPost, base+"/leave", map[string]string{"userId": "alice"})
	req.Equal(http.StatusOK, code)
	code, env = api.do(http.MethodPost, base+"/leave", map[string]string{"userId": "bob"})
	req.Equal(http.StatusOK, code)
	req.Contains(string(env.Data), `"roomDeleted":true`)

	code, _ = api.do(http.MethodGet, base+"/settings", nil)
	req.Equal(http.StatusNotFound, code)
}

func TestHandler_ScoresAndRankings(t *testing.T) {
	req := require.New(t)
	api := newTestAPI(t, memory.New())

	code, env := api.do(http.MethodPost, "/login", map[string]string{"userId": "alice", "userName": "Alice"})
	req.Equal(http.StatusCreated, code)
	req.Contains(string(env.Data), `"registered"`)
	code, env = api.do(http.MethodPost, "/login", map[string]string{"userId": "alice", "userName": "Alice"})
	req.Equal(http.StatusOK, code)
	req.Contains(string(env.Data), `"loggedIn"`)

	roomID := api.createRoom("lobby", "alice", nil)
	base := fmt.Sprintf("/api/rooms/%d", roomID)

	code, env = api.do(http.MethodPost, base+"/score", map[string]interface{}{"userId": "alice", "score": 50, "gameName": "quiz", "duration": 60})
	req.Equal(http.StatusOK, code, env.Error)
	req.Contains(string(env.Data), `"inserted"`)
	code, env = api.do(http.MethodPost, base+"/score", map[string]interface{}{"userId": "alice", "score": 30, "gameName": "quiz", "duration": 60})
	req.Equal(http.StatusOK, code)
	req.Contains(string(env.Data), `"unchanged"`)

	code, env = api.do(http.MethodGet, base+"/scores?gameName=quiz&duration=60", nil)
	req.Equal(http.StatusOK, code)
	req.JSONEq(`[{"userName":"Alice","score":30,"gameName":"quiz","duration":60}]`, string(env.Data))

	code, env = api.do(http.MethodGet, "/api/users/alice/high-scores", nil)
	req.Equal(http.StatusOK, code)
	req.JSONEq(`[{"gameName":"quiz","duration":60,"highScore":50}]`, string(env.Data))

	code, env = api.do(http.MethodGet, "/api/rankings", nil)
	req.Equal(http.StatusOK, code)
	req.JSONEq(`[{"userName":"Alice","gameName":"quiz","duration":60,"highScore":50}]`, string(env.Data))

	code, _ = api.do(http.MethodPost, base+"/score", map[string]interface{}{"userId": "alice", "gameName": "quiz"})
	req.Equal(http.StatusBadRequest, code)

	code, _ = api.do(http.MethodGet, base+"/scores?gameName=quiz", nil)
	req.Equal(http.StatusBadRequest, code)
}

func TestHandler_StartGameBroadcastsSettings(t *testing.T) {
	req := require.New(t)
	api := newTestAPI(t, memory.New())
	roomID := api.createRoom("lobby", "alice", nil)
	base := fmt.Sprintf("/api/rooms/%d", roomID)

	code, env := api.do(http.MethodGet, base+"/settings", nil)
	req.Equal(http.StatusOK, code)
	req.JSONEq(`{"game":null,"duration":null}`, string(env.Data))

	code, _ = api.do(http.MethodPost, base+"/settings", map[string]interface{}{"game": "quiz", "duration": 60})
	req.Equal(http.StatusOK, code)

	code, _ = api.do(http.MethodPost, base+"/join", map[string]string{"userId": "bob", "userName": "Bob"})
	req.Equal(http.StatusOK, code)

	code, _ = api.do(http.MethodPost, base+"/start-game", map[string]string{"userId": "bob"})
	req.Equal(http.StatusForbidden, code)

	// No body means no leader check
	code, env = api.do(http.MethodPost, base+"/start-game", nil)
	req.Equal(http.StatusOK, code, env.Error)
	req.JSONEq(fmt.Sprintf(`{
		"event":{"type":"game-started","roomId":%d,"game":"quiz","duration":60},
		"relayed":false,
		"delivered":0
	}`, roomID), string(env.Data))

	code, env = api.do(http.MethodGet, "/api/ws/stats", nil)
	req.Equal(http.StatusOK, code)
	req.JSONEq(`{"connections":0,"rooms":0}`, string(env.Data))
}

func TestHandler_ErrorMapping(t *testing.T) {
	req := require.New(t)
	api := newTestAPI(t, memory.New())

	code, env := api.do(http.MethodPost, "/api/rooms", map[string]string{"roomName": "lobby"})
	req.Equal(http.StatusBadRequest, code)
	req.Contains(env.Error, "userId")

	code, _ = api.do(http.MethodPost, "/api/rooms/abc/join", map[string]string{"userId": "a", "userName": "A"})
	req.Equal(http.StatusBadRequest, code)

	code, _ = api.do(http.MethodPost, "/api/rooms/77/join", map[string]string{"userId": "a", "userName": "A"})
	req.Equal(http.StatusNotFound, code)

	code, _ = api.do(http.MethodDelete, "/api/rooms/77", nil)
	req.Equal(http.StatusNotFound, code)

	code, _ = api.do(http.MethodPost, "/api/rooms/77/leave", map[string]string{"userId": "a"})
	req.Equal(http.StatusNotFound, code)

	code, env = api.do(http.MethodGet, "/health", nil)
	req.Equal(http.StatusOK, code)
	req.True(env.Success)

	code, _ = api.do(http.MethodGet, "/ready", nil)
	req.Equal(http.StatusOK, code)
}

// brokenStore fails every call the way an unreachable database would.
type brokenStore struct {
	store.Store
}

func (brokenStore) ListRooms(context.Context) ([]domain.Room, error) {
	return nil, fmt.Errorf("dial tcp 10.0.0.5:5432: connection refused")
}

func (brokenStore) Ping(context.Context) error {
	return fmt.Errorf("dial tcp 10.0.0.5:5432: connection refused")
}

func (brokenStore) InTx(ctx context.Context, _ func(q store.Querier) error) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestHandler_StoreFailuresHideDetails(t *testing.T) {
	req := require.New(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := room.NewRegistry(brokenStore{Store: memory.New()}, &config.RegistryConfig{StoreTimeout: 20 * time.Millisecond}, logger)
	hub := websocket.NewHub(&config.RealtimeConfig{}, logger)
	api := &testAPI{t: t, router: NewHandler(registry, hub, logger).Router(), hub: hub}

	code, env := api.do(http.MethodGet, "/api/rooms", nil)
	req.Equal(http.StatusInternalServerError, code)
	req.Equal(domain.ErrInternalError.Error(), env.Error)

	code, env = api.do(http.MethodPost, "/api/rooms", map[string]string{"roomName": "lobby", "userId": "a", "userName": "A"})
	req.Equal(http.StatusGatewayTimeout, code)
	req.NotContains(env.Error, "context")

	code, _ = api.do(http.MethodGet, "/ready", nil)
	req.Equal(http.StatusServiceUnavailable, code)
}
