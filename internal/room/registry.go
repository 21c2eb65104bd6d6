// Package room implements the room registry: the component that keeps membership, leadership,
// readiness, settings and scores consistent while requests for the same room run concurrently.
//
// Every operation that reads a room's state and then writes depending on it holds the room's
// in-process lock and runs inside one store transaction, where the room row is locked again so
// several server instances sharing a database serialize too. Store calls are bounded by the
// configured deadline.
package room

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"github.com/game-lobby/internal/config"
	"github.com/game-lobby/internal/domain"
	"github.com/game-lobby/internal/store"
)

// Registry provides the room, participant and score operations
type Registry struct {
	store    store.Store
	timeout  time.Duration
	locks    *keyedMutex
	validate *validator.Validate
	logger   *slog.Logger
}

// NewRegistry creates a new room registry
func NewRegistry(st store.Store, cfg *config.RegistryConfig, logger *slog.Logger) *Registry {
	return &Registry{
		store:    st,
		timeout:  cfg.StoreTimeout,
		locks:    newKeyedMutex(),
		validate: newValidator(),
		logger:   logger,
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// check validates a request struct against its validate tags.
func (r *Registry) check(req any) error {
	err := r.validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		fields := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			fields = append(fields, fe.Field())
		}
		return fmt.Errorf("%w: invalid or missing fields %v", domain.ErrValidation, fields)
	}
	return fmt.Errorf("%w: %v", domain.ErrValidation, err)
}

func (r *Registry) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

// fail maps a store-level error onto the error taxonomy. Domain errors pass through.
// A cancelled caller is reported with the timeout kind and still matches context.Canceled.
func (r *Registry) fail(ctx context.Context, op string, err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrForbidden):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		r.logger.Warn("store call timed out", "op", op, "timeout", r.timeout, "error", err)
		return fmt.Errorf("%s: %w", op, domain.ErrTimeout)
	case errors.Is(err, context.Canceled), errors.Is(ctx.Err(), context.Canceled):
		// The caller went away; nothing is wrong with the store
		r.logger.Debug("store call cancelled", "op", op, "error", err)
		return fmt.Errorf("%s: %w: %w", op, domain.ErrTimeout, context.Canceled)
	default:
		r.logger.Error("store call failed", "op", op, "error", err)
		return fmt.Errorf("%s: %w: %w", op, domain.ErrStore, err)
	}
}

func passwordMatches(stored string, supplied *string) bool {
	if supplied == nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(*supplied)) == 1
}

// Login registers the user on first sight.
func (r *Registry) Login(ctx context.Context, user domain.User) (*domain.LoginResult, error) {
	if err := r.check(user); err != nil {
		return nil, err
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	created, err := r.store.UpsertUser(ctx, user)
	if err != nil {
		return nil, r.fail(ctx, "login", err)
	}

	status := domain.LoginLoggedIn
	if created {
		status = domain.LoginRegistered
		r.logger.Info("user registered", "user_id", user.ID)
	}
	return &domain.LoginResult{Status: status, UserID: user.ID, UserName: user.Name}, nil
}

// CreateRoom creates a room with its creator as leader in one transaction.
func (r *Registry) CreateRoom(ctx context.Context, req domain.CreateRoomRequest) (*domain.CreateRoomResult, error) {
	if err := r.check(req); err != nil {
		return nil, err
	}
	password := req.Password
	if password != nil && *password == "" {
		password = nil
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var roomID int64
	err := r.store.InTx(ctx, func(q store.Querier) error {
		id, err := q.InsertRoom(ctx, req.RoomName, password)
		if err != nil {
			return err
		}
		roomID = id
		return q.InsertParticipant(ctx, domain.Participant{
			RoomID:   id,
			UserID:   req.UserID,
			UserName: req.UserName,
			IsLeader: true,
		})
	})
	if err != nil {
		return nil, r.fail(ctx, "create room", err)
	}

	r.logger.Info("room created", "room_id", roomID, "leader", req.UserID, "protected", password != nil)
	return &domain.CreateRoomResult{RoomID: roomID, RoomName: req.RoomName}, nil
}

// JoinRoom adds a user to a room. The joiner becomes leader only if the room has none.
// Joining a room one is already in returns the current membership unchanged.
func (r *Registry) JoinRoom(ctx context.Context, roomID int64, req domain.JoinRoomRequest) (*domain.JoinResult, error) {
	if err := r.check(req); err != nil {
		return nil, err
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	unlock, err := r.locks.Lock(ctx, roomLockKey(roomID))
	if err != nil {
		return nil, r.fail(ctx, "join room", err)
	}
	defer unlock()

	result := &domain.JoinResult{RoomID: roomID, UserID: req.UserID, UserName: req.UserName}
	err = r.store.InTx(ctx, func(q store.Querier) error {
		room, err := q.LockRoom(ctx, roomID)
		if err != nil {
			return err
		}
		if room.HasPassword() && !passwordMatches(*room.Password, req.Password) {
			return domain.ErrWrongPassword
		}

		existing, err := q.GetParticipant(ctx, roomID, req.UserID)
		switch {
		case err == nil:
			result.UserName = existing.UserName
			result.IsLeader = existing.IsLeader
			return nil
		case !errors.Is(err, domain.ErrParticipantNotFound):
			return err
		}

		_, hasLeader, err := q.GetLeader(ctx, roomID)
		if err != nil {
			return err
		}
		result.IsLeader = !hasLeader

		return q.InsertParticipant(ctx, domain.Participant{
			RoomID:   roomID,
			UserID:   req.UserID,
			UserName: req.UserName,
			IsLeader: result.IsLeader,
		})
	})
	if err != nil {
		return nil, r.fail(ctx, "join room", err)
	}

	r.logger.Info("user joined room", "room_id", roomID, "user_id", req.UserID, "leader", result.IsLeader)
	return result, nil
}

// SetReady sets a participant's ready flag. Unknown participants are not an error.
func (r *Registry) SetReady(ctx context.Context, roomID int64, userID string, ready bool) error {
	if userID == "" {
		return domain.MissingField("userId")
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	n, err := r.store.SetReady(ctx, roomID, userID, ready)
	if err != nil {
		return r.fail(ctx, "set ready", err)
	}
	if n == 0 {
		r.logger.Debug("ready flag for unknown participant", "room_id", roomID, "user_id", userID)
	}
	return nil
}

// TransferLeadership revokes leadership and grants it to newLeaderID atomically.
// Every leader flag in the room is cleared first, so the room ends with exactly one leader.
func (r *Registry) TransferLeadership(ctx context.Context, roomID int64, currentLeaderID, newLeaderID string) error {
	var missing []string
	if currentLeaderID == "" {
		missing = append(missing, "currentLeaderId")
	}
	if newLeaderID == "" {
		missing = append(missing, "newLeaderId")
	}
	if len(missing) > 0 {
		return domain.MissingField(missing...)
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	unlock, err := r.locks.Lock(ctx, roomLockKey(roomID))
	if err != nil {
		return r.fail(ctx, "transfer leadership", err)
	}
	defer unlock()

	err = r.store.InTx(ctx, func(q store.Querier) error {
		if _, err := q.LockRoom(ctx, roomID); err != nil {
			return err
		}
		if _, err := q.SetLeader(ctx, roomID, currentLeaderID, false); err != nil {
			return err
		}
		if _, err := q.ClearLeaders(ctx, roomID); err != nil {
			return err
		}
		n, err := q.SetLeader(ctx, roomID, newLeaderID, true)
		if err != nil {
			return err
		}
		if n == 0 {
			return domain.ErrParticipantNotFound
		}
		return nil
	})
	if err != nil {
		return r.fail(ctx, "transfer leadership", err)
	}

	r.logger.Info("leadership transferred", "room_id", roomID, "from", currentLeaderID, "to", newLeaderID)
	return nil
}

// ListRooms returns every room without exposing passwords
func (r *Registry) ListRooms(ctx context.Context) ([]domain.RoomSummary, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rooms, err := r.store.ListRooms(ctx)
	if err != nil {
		return nil, r.fail(ctx, "list rooms", err)
	}

	return lo.Map(rooms, func(room domain.Room, _ int) domain.RoomSummary {
		return domain.RoomSummary{ID: room.ID, Name: room.Name, HasPassword: room.HasPassword()}
	}), nil
}

// DeleteRoom removes a room together with its participants and scores.
func (r *Registry) DeleteRoom(ctx context.Context, roomID int64) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	unlock, err := r.locks.Lock(ctx, roomLockKey(roomID))
	if err != nil {
		return r.fail(ctx, "delete room", err)
	}
	defer unlock()

	err = r.store.InTx(ctx, func(q store.Querier) error {
		if _, err := q.DeleteParticipants(ctx, roomID); err != nil {
			return err
		}
		return deleteRoomRows(ctx, q, roomID)
	})
	if err != nil {
		return r.fail(ctx, "delete room", err)
	}

	r.logger.Info("room deleted", "room_id", roomID)
	return nil
}

// deleteRoomRows deletes scores and then the room row, which must exist.
func deleteRoomRows(ctx context.Context, q store.Querier, roomID int64) error {
	if _, err := q.DeleteScores(ctx, roomID); err != nil {
		return err
	}
	n, err := q.DeleteRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrRoomNotFound
	}
	return nil
}

// ListParticipants returns the room's participants in join order
func (r *Registry) ListParticipants(ctx context.Context, roomID int64) ([]domain.Participant, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	participants, err := r.store.ListParticipants(ctx, roomID)
	if err != nil {
		return nil, r.fail(ctx, "list participants", err)
	}
	return participants, nil
}

// LeaveRoom removes a participant and deletes the room when it becomes empty.
// Leadership is not handed over: a leader leaving a non-empty room leaves it leaderless.
func (r *Registry) LeaveRoom(ctx context.Context, roomID int64, userID string) (*domain.LeaveResult, error) {
	if userID == "" {
		return nil, domain.MissingField("userId")
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	unlock, err := r.locks.Lock(ctx, roomLockKey(roomID))
	if err != nil {
		return nil, r.fail(ctx, "leave room", err)
	}
	defer unlock()

	result := &domain.LeaveResult{RoomID: roomID, UserID: userID}
	err = r.store.InTx(ctx, func(q store.Querier) error {
		if _, err := q.LockRoom(ctx, roomID); err != nil {
			if errors.Is(err, domain.ErrRoomNotFound) {
				return domain.ErrParticipantNotFound
			}
			return err
		}
		n, err := q.DeleteParticipant(ctx, roomID, userID)
		if err != nil {
			return err
		}
		if n == 0 {
			return domain.ErrParticipantNotFound
		}

		remaining, err := q.CountParticipants(ctx, roomID)
		if err != nil {
			return err
		}
		if remaining > 0 {
			return nil
		}
		result.RoomDeleted = true
		return deleteRoomRows(ctx, q, roomID)
	})
	if err != nil {
		return nil, r.fail(ctx, "leave room", err)
	}

	r.logger.Info("user left room", "room_id", roomID, "user_id", userID, "room_deleted", result.RoomDeleted)
	return result, nil
}

// UpdateSettings stores the game and duration selected for a room
func (r *Registry) UpdateSettings(ctx context.Context, roomID int64, game string, duration int) error {
	if game == "" {
		return domain.MissingField("game")
	}
	if duration <= 0 {
		return fmt.Errorf("%w: duration must be positive", domain.ErrValidation)
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	n, err := r.store.UpdateRoomSettings(ctx, roomID, game, duration)
	if err != nil {
		return r.fail(ctx, "update settings", err)
	}
	if n == 0 {
		return domain.ErrRoomNotFound
	}
	return nil
}

// GetSettings returns the game and duration selected for a room
func (r *Registry) GetSettings(ctx context.Context, roomID int64) (*domain.Settings, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	room, err := r.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, r.fail(ctx, "get settings", err)
	}
	return &domain.Settings{Game: room.Game, Duration: room.Duration}, nil
}

// StartGame builds the game-started event for a room from its stored settings.
// When userID is set it must be the room's leader.
func (r *Registry) StartGame(ctx context.Context, roomID int64, userID string) (*domain.GameStarted, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	room, err := r.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, r.fail(ctx, "start game", err)
	}

	if userID != "" {
		leader, ok, err := r.store.GetLeader(ctx, roomID)
		if err != nil {
			return nil, r.fail(ctx, "start game", err)
		}
		if !ok || leader != userID {
			return nil, domain.ErrNotLeader
		}
	}

	if room.Game == nil || room.Duration == nil {
		return nil, fmt.Errorf("%w: room %d has no game selected", domain.ErrValidation, roomID)
	}

	evt := domain.NewGameStarted(domain.RoomKeyFromID(roomID), *room.Game, *room.Duration)
	return &evt, nil
}

// errSkip aborts a transaction without reporting a failure.
var errSkip = errors.New("skip")

// PruneEmptyRooms deletes rooms that have no participants left and returns how many went.
func (r *Registry) PruneEmptyRooms(ctx context.Context) (int, error) {
	listCtx, cancel := r.withTimeout(ctx)
	ids, err := r.store.ListEmptyRoomIDs(listCtx)
	cancel()
	if err != nil {
		return 0, r.fail(listCtx, "list empty rooms", err)
	}

	pruned := 0
	for _, id := range ids {
		deleted, err := r.pruneRoom(ctx, id)
		if err != nil {
			return pruned, err
		}
		if deleted {
			pruned++
		}
	}
	return pruned, nil
}

func (r *Registry) pruneRoom(ctx context.Context, roomID int64) (bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	unlock, err := r.locks.Lock(ctx, roomLockKey(roomID))
	if err != nil {
		return false, r.fail(ctx, "prune room", err)
	}
	defer unlock()

	err = r.store.InTx(ctx, func(q store.Querier) error {
		if _, err := q.LockRoom(ctx, roomID); err != nil {
			return err
		}
		// Someone may have joined since the room was listed
		n, err := q.CountParticipants(ctx, roomID)
		if err != nil {
			return err
		}
		if n > 0 {
			return errSkip
		}
		return deleteRoomRows(ctx, q, roomID)
	})
	switch {
	case err == nil:
		r.logger.Info("empty room pruned", "room_id", roomID)
		return true, nil
	case errors.Is(err, errSkip), errors.Is(err, domain.ErrRoomNotFound):
		return false, nil
	default:
		return false, r.fail(ctx, "prune room", err)
	}
}

// Ping checks that the store answers within the deadline
func (r *Registry) Ping(ctx context.Context) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if err := r.store.Ping(ctx); err != nil {
		return r.fail(ctx, "ping", err)
	}
	return nil
}
