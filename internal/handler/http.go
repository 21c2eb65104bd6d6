package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/game-lobby/internal/domain"
	"github.com/game-lobby/internal/room"
	"github.com/game-lobby/internal/websocket"
)

// Handler provides HTTP handlers for the lobby API
type Handler struct {
	registry *room.Registry
	hub      *websocket.Hub
	logger   *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(registry *room.Registry, hub *websocket.Hub, logger *slog.Logger) *Handler {
	return &Handler{
		registry: registry,
		hub:      hub,
		logger:   logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type readyRequest struct {
	UserID  string `json:"userId"`
	IsReady bool   `json:"isReady"`
}

type transferRequest struct {
	CurrentLeaderID string `json:"currentLeaderId"`
	NewLeaderID     string `json:"newLeaderId"`
}

type leaveRequest struct {
	UserID string `json:"userId"`
}

type settingsRequest struct {
	Game     string `json:"game"`
	Duration int    `json:"duration"`
}

type startGameRequest struct {
	UserID string `json:"userId,omitempty"`
}

type startGameResponse struct {
	Event domain.GameStarted `json:"event"`
	websocket.PublishResult
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	// WebSocket endpoint
	r.Get("/ws", h.HandleWebSocket)

	r.Post("/login", h.Login)

	r.Route("/api", func(r chi.Router) {
		r.Route("/rooms", func(r chi.Router) {
			r.Post("/", h.CreateRoom)
			r.Get("/", h.ListRooms)

			r.Route("/{roomID}", func(r chi.Router) {
				r.Delete("/", h.DeleteRoom)
				r.Post("/join", h.JoinRoom)
				r.Post("/ready", h.SetReady)
				r.Post("/transfer-leadership", h.TransferLeadership)
				r.Get("/participants", h.ListParticipants)
				r.Post("/leave", h.LeaveRoom)
				r.Post("/start-game", h.StartGame)
				r.Post("/score", h.SaveScore)
				r.Get("/scores", h.GetScores)
				r.Post("/settings", h.UpdateSettings)
				r.Get("/settings", h.GetSettings)
			})
		})

		r.Get("/users/{userID}/high-scores", h.GetHighScores)
		r.Get("/rankings", h.GetRankings)

		// WebSocket info endpoint
		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// writeFailure maps a registry error to its status code. Store failures and timeouts are
// reported with a generic message; their cause is in the log.
func (h *Handler) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	switch domain.Kind(err) {
	case domain.ErrValidation:
		h.writeError(w, http.StatusBadRequest, err)
	case domain.ErrNotFound:
		h.writeError(w, http.StatusNotFound, err)
	case domain.ErrForbidden:
		h.writeError(w, http.StatusForbidden, err)
	case domain.ErrTimeout:
		h.writeError(w, http.StatusGatewayTimeout, domain.ErrTimeout)
	case domain.ErrStore:
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
	default:
		h.logger.Error("unexpected error", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
	}
}

// decode reads a JSON body. An empty body is accepted when optional is set.
func decode(r *http.Request, v interface{}, optional bool) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return nil
	}
	return domain.ErrInvalidRequest
}

func roomIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "roomID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: room id must be a positive integer", domain.ErrValidation)
	}
	return id, nil
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, h.hub.Stats())
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck reports whether the store is reachable
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Ping(r.Context()); err != nil {
		h.writeError(w, http.StatusServiceUnavailable, errors.New("store unavailable"))
		return
	}
	h.writeSuccess(w, map[string]string{"status": "ready"})
}

// Login registers a user on first sight
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var user domain.User
	if err := decode(r, &user, false); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.registry.Login(r.Context(), user)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}

	status := http.StatusOK
	if result.Status == domain.LoginRegistered {
		status = http.StatusCreated
	}
	h.writeJSON(w, status, APIResponse{Success: true, Data: result})
}

// CreateRoom handles room creation
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateRoomRequest
	if err := decode(r, &req, false); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.registry.CreateRoom(r.Context(), req)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Data:    result,
	})
}

// ListRooms returns all rooms
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.registry.ListRooms(r.Context())
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	h.writeSuccess(w, rooms)
}

// DeleteRoom removes a room with its participants and scores
func (h *Handler) DeleteRoom(w http.ResponseWriter, r *http.Request) {
	roomID, err := roomIDParam(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := h.registry.DeleteRoom(r.Context(), roomID); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	h.writeSuccess(w, map[string]interface{}{"roomId": roomID, "status": "deleted"})
}

// JoinRoom adds the caller to a room
func (h *Handler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	roomID, err := roomIDParam(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	var req domain.JoinRoomRequest
	if err := decode(r, &req, false); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.registry.JoinRoom(r.Context(), roomID, req)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	h.writeSuccess(w, result)
}

// SetReady sets a participant's ready flag
func (h *Handler) SetReady(w http.ResponseWriter, r *http.Request) {
	roomID, err := roomIDParam(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	var req readyRequest
	if err := decode(r, &req, false); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := h.registry.SetReady(r.Context(), roomID, req.UserID, req.IsReady); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	h.writeSuccess(w, req)
}

// TransferLeadership hands leadership to another participant
func (h *Handler) TransferLeadership(w http.ResponseWriter, r *http.Request) {
	roomID, err := roomIDParam(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	var req transferRequest
	if err := decode(r, &req, false); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := h.registry.TransferLeadership(r.Context(), roomID, req.CurrentLeaderID, req.NewLeaderID); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	h.writeSuccess(w, map[string]interface{}{"roomId": roomID, "leaderId": req.NewLeaderID})
}

// ListParticipants returns a room's participants
func (h *Handler) ListParticipants(w http.ResponseWriter, r *http.Request) {
	roomID, err := roomIDParam(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	participants, err := h.registry.ListParticipants(r.Context(), roomID)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	h.writeSuccess(w, participants)
}

// LeaveRoom removes the caller from a room
func (h *Handler) LeaveRoom(w http.ResponseWriter, r *http.Request) {
	roomID, err := roomIDParam(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	var req leaveRequest
	if err := decode(r, &req, false); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.registry.LeaveRoom(r.Context(), roomID, req.UserID)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	h.writeSuccess(w, result)
}

// StartGame broadcasts the room's settings to its realtime subscribers
func (h *Handler) StartGame(w http.ResponseWriter, r *http.Request) {
	roomID, err := roomIDParam(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	var req startGameRequest
	if err := decode(r, &req, true); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	evt, err := h.registry.StartGame(r.Context(), roomID, req.UserID)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}

	result := h.hub.StartGame(r.Context(), *evt)
	h.writeSuccess(w, startGameResponse{Event: *evt, PublishResult: result})
}

// SaveScore stores a score for the room
func (h *Handler) SaveScore(w http.ResponseWriter, r *http.Request) {
	roomID, err := roomIDParam(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	var sub domain.ScoreSubmission
	if err := decode(r, &sub, false); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	sub.RoomID = roomID

	result, err := h.registry.SaveScore(r.Context(), sub)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	h.writeSuccess(w, result)
}

// GetScores returns the room's score board for one game and duration
func (h *Handler) GetScores(w http.ResponseWriter, r *http.Request) {
	roomID, err := roomIDParam(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	duration, err := strconv.Atoi(r.URL.Query().Get("duration"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("%w: duration must be an integer", domain.ErrValidation))
		return
	}

	scores, err := h.registry.GetScores(r.Context(), roomID, r.URL.Query().Get("gameName"), duration)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	h.writeSuccess(w, scores)
}

// UpdateSettings selects the room's game and duration
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	roomID, err := roomIDParam(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	var req settingsRequest
	if err := decode(r, &req, false); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := h.registry.UpdateSettings(r.Context(), roomID, req.Game, req.Duration); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	h.writeSuccess(w, domain.Settings{Game: &req.Game, Duration: &req.Duration})
}

// GetSettings returns the room's game and duration
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	roomID, err := roomIDParam(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	settings, err := h.registry.GetSettings(r.Context(), roomID)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	h.writeSuccess(w, settings)
}

// GetHighScores returns a user's best scores
func (h *Handler) GetHighScores(w http.ResponseWriter, r *http.Request) {
	scores, err := h.registry.GetHighScores(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	h.writeSuccess(w, scores)
}

// GetRankings returns the global ranking table
func (h *Handler) GetRankings(w http.ResponseWriter, r *http.Request) {
	rankings, err := h.registry.GetRankings(r.Context())
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	h.writeSuccess(w, rankings)
}
