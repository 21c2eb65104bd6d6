// Package memory is an in-process implementation of store.Store.
//
// It keeps the same relational rules as the Postgres schema (composite keys, room foreign keys,
// at most one leader per room) so registry behaviour does not depend on which driver is used.
// Transactions work on a copy of the whole state that replaces the original on commit.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/game-lobby/internal/domain"
	"github.com/game-lobby/internal/store"
)

// ErrConstraint is returned when a write would break a key or foreign-key rule.
var ErrConstraint = errors.New("memory store: constraint violation")

type participantKey struct {
	roomID int64
	userID string
}

type scoreKey struct {
	roomID   int64
	userID   string
	gameName string
	duration int
}

type highScoreKey struct {
	userID   string
	gameName string
	duration int
}

type participantRow struct {
	domain.Participant
	seq int64
}

// Store holds all relations in maps guarded by a single mutex.
type Store struct {
	// mu is nil on transaction copies; the owning Store's mutex is already held.
	mu *sync.Mutex

	nextRoomID   int64
	nextSeq      int64
	users        map[string]domain.User
	rooms        map[int64]domain.Room
	participants map[participantKey]participantRow
	scores       map[scoreKey]int64
	highScores   map[highScoreKey]int64
	now          func() time.Time
}

var _ store.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		mu:           &sync.Mutex{},
		users:        make(map[string]domain.User),
		rooms:        make(map[int64]domain.Room),
		participants: make(map[participantKey]participantRow),
		scores:       make(map[scoreKey]int64),
		highScores:   make(map[highScoreKey]int64),
		now:          time.Now,
	}
}

func (s *Store) lock() func() {
	if s.mu == nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) clone() *Store {
	c := &Store{
		nextRoomID:   s.nextRoomID,
		nextSeq:      s.nextSeq,
		users:        make(map[string]domain.User, len(s.users)),
		rooms:        make(map[int64]domain.Room, len(s.rooms)),
		participants: make(map[participantKey]participantRow, len(s.participants)),
		scores:       make(map[scoreKey]int64, len(s.scores)),
		highScores:   make(map[highScoreKey]int64, len(s.highScores)),
		now:          s.now,
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.rooms {
		c.rooms[k] = v
	}
	for k, v := range s.participants {
		c.participants[k] = v
	}
	for k, v := range s.scores {
		c.scores[k] = v
	}
	for k, v := range s.highScores {
		c.highScores[k] = v
	}
	return c
}

// InTx runs fn on a private copy of the state and publishes the copy if fn succeeds.
func (s *Store) InTx(ctx context.Context, fn func(q store.Querier) error) error {
	defer s.lock()()
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := s.clone()
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.nextRoomID = tx.nextRoomID
	s.nextSeq = tx.nextSeq
	s.users = tx.users
	s.rooms = tx.rooms
	s.participants = tx.participants
	s.scores = tx.scores
	s.highScores = tx.highScores
	return nil
}

// Ping always succeeds unless ctx is done.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close is a no-op.
func (s *Store) Close() {}

// UpsertUser inserts the user if absent and reports whether it was created.
func (s *Store) UpsertUser(ctx context.Context, user domain.User) (bool, error) {
	defer s.lock()()
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if _, ok := s.users[user.ID]; ok {
		return false, nil
	}
	s.users[user.ID] = user
	return true, nil
}

// InsertRoom creates a room and returns its id.
func (s *Store) InsertRoom(ctx context.Context, name string, password *string) (int64, error) {
	defer s.lock()()
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.nextRoomID++
	s.rooms[s.nextRoomID] = domain.Room{
		ID:        s.nextRoomID,
		Name:      name,
		Password:  password,
		CreatedAt: s.now(),
	}
	return s.nextRoomID, nil
}

// GetRoom returns a room or domain.ErrRoomNotFound.
func (s *Store) GetRoom(ctx context.Context, roomID int64) (*domain.Room, error) {
	defer s.lock()()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	room, ok := s.rooms[roomID]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return &room, nil
}

// LockRoom is GetRoom; the store mutex already serializes transactions.
func (s *Store) LockRoom(ctx context.Context, roomID int64) (*domain.Room, error) {
	return s.GetRoom(ctx, roomID)
}

// ListRooms returns every room ordered by id.
func (s *Store) ListRooms(ctx context.Context) ([]domain.Room, error) {
	defer s.lock()()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rooms := make([]domain.Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		rooms = append(rooms, room)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })
	return rooms, nil
}

// ListEmptyRoomIDs returns the ids of rooms without participants.
func (s *Store) ListEmptyRoomIDs(ctx context.Context) ([]int64, error) {
	defer s.lock()()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	occupied := make(map[int64]bool)
	for key := range s.participants {
		occupied[key.roomID] = true
	}
	var ids []int64
	for id := range s.rooms {
		if !occupied[id] {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// UpdateRoomSettings stores the selected game and duration.
func (s *Store) UpdateRoomSettings(ctx context.Context, roomID int64, game string, duration int) (int64, error) {
	defer s.lock()()
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	room, ok := s.rooms[roomID]
	if !ok {
		return 0, nil
	}
	room.Game = &game
	room.Duration = &duration
	s.rooms[roomID] = room
	return 1, nil
}

// DeleteRoom removes a room that no participant or score refers to.
func (s *Store) DeleteRoom(ctx context.Context, roomID int64) (int64, error) {
	defer s.lock()()
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if _, ok := s.rooms[roomID]; !ok {
		return 0, nil
	}
	for key := range s.participants {
		if key.roomID == roomID {
			return 0, fmt.Errorf("deleting room %d with participants: %w", roomID, ErrConstraint)
		}
	}
	for key := range s.scores {
		if key.roomID == roomID {
			return 0, fmt.Errorf("deleting room %d with scores: %w", roomID, ErrConstraint)
		}
	}
	delete(s.rooms, roomID)
	return 1, nil
}

// InsertParticipant adds a participant, enforcing the room key and single leadership.
func (s *Store) InsertParticipant(ctx context.Context, p domain.Participant) error {
	defer s.lock()()
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := s.rooms[p.RoomID]; !ok {
		return fmt.Errorf("participant for unknown room %d: %w", p.RoomID, ErrConstraint)
	}
	key := participantKey{roomID: p.RoomID, userID: p.UserID}
	if _, ok := s.participants[key]; ok {
		return fmt.Errorf("duplicate participant %s in room %d: %w", p.UserID, p.RoomID, ErrConstraint)
	}
	if p.IsLeader && s.hasLeader(p.RoomID, "") {
		return fmt.Errorf("second leader in room %d: %w", p.RoomID, ErrConstraint)
	}
	s.nextSeq++
	if p.JoinedAt.IsZero() {
		p.JoinedAt = s.now()
	}
	s.participants[key] = participantRow{Participant: p, seq: s.nextSeq}
	return nil
}

func (s *Store) hasLeader(roomID int64, except string) bool {
	for key, row := range s.participants {
		if key.roomID == roomID && row.IsLeader && key.userID != except {
			return true
		}
	}
	return false
}

// GetParticipant returns a participant or domain.ErrParticipantNotFound.
func (s *Store) GetParticipant(ctx context.Context, roomID int64, userID string) (*domain.Participant, error) {
	defer s.lock()()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	row, ok := s.participants[participantKey{roomID: roomID, userID: userID}]
	if !ok {
		return nil, domain.ErrParticipantNotFound
	}
	p := row.Participant
	return &p, nil
}

// GetLeader returns the room leader's user id, if any.
func (s *Store) GetLeader(ctx context.Context, roomID int64) (string, bool, error) {
	defer s.lock()()
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	for _, row := range s.roomParticipants(roomID) {
		if row.IsLeader {
			return row.UserID, true, nil
		}
	}
	return "", false, nil
}

// roomParticipants returns the room's rows in join order.
func (s *Store) roomParticipants(roomID int64) []participantRow {
	var rows []participantRow
	for key, row := range s.participants {
		if key.roomID == roomID {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })
	return rows
}

// ListParticipants returns the room's participants in join order.
func (s *Store) ListParticipants(ctx context.Context, roomID int64) ([]domain.Participant, error) {
	defer s.lock()()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows := s.roomParticipants(roomID)
	participants := make([]domain.Participant, 0, len(rows))
	for _, row := range rows {
		participants = append(participants, row.Participant)
	}
	return participants, nil
}

// CountParticipants returns the number of participants in a room.
func (s *Store) CountParticipants(ctx context.Context, roomID int64) (int, error) {
	defer s.lock()()
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return len(s.roomParticipants(roomID)), nil
}

// SetReady updates a participant's ready flag.
func (s *Store) SetReady(ctx context.Context, roomID int64, userID string, ready bool) (int64, error) {
	defer s.lock()()
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	key := participantKey{roomID: roomID, userID: userID}
	row, ok := s.participants[key]
	if !ok {
		return 0, nil
	}
	row.IsReady = ready
	s.participants[key] = row
	return 1, nil
}

// SetLeader updates a participant's leader flag.
func (s *Store) SetLeader(ctx context.Context, roomID int64, userID string, leader bool) (int64, error) {
	defer s.lock()()
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	key := participantKey{roomID: roomID, userID: userID}
	row, ok := s.participants[key]
	if !ok {
		return 0, nil
	}
	if leader && s.hasLeader(roomID, userID) {
		return 0, fmt.Errorf("second leader in room %d: %w", roomID, ErrConstraint)
	}
	row.IsLeader = leader
	s.participants[key] = row
	return 1, nil
}

// ClearLeaders revokes leadership from everyone in the room.
func (s *Store) ClearLeaders(ctx context.Context, roomID int64) (int64, error) {
	defer s.lock()()
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int64
	for key, row := range s.participants {
		if key.roomID == roomID && row.IsLeader {
			row.IsLeader = false
			s.participants[key] = row
			n++
		}
	}
	return n, nil
}

// DeleteParticipant removes one participant.
func (s *Store) DeleteParticipant(ctx context.Context, roomID int64, userID string) (int64, error) {
	defer s.lock()()
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	key := participantKey{roomID: roomID, userID: userID}
	if _, ok := s.participants[key]; !ok {
		return 0, nil
	}
	delete(s.participants, key)
	return 1, nil
}

// DeleteParticipants removes every participant of a room.
func (s *Store) DeleteParticipants(ctx context.Context, roomID int64) (int64, error) {
	defer s.lock()()
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int64
	for key := range s.participants {
		if key.roomID == roomID {
			delete(s.participants, key)
			n++
		}
	}
	return n, nil
}

// UpsertScore stores or overwrites a room score.
func (s *Store) UpsertScore(ctx context.Context, score domain.Score) error {
	defer s.lock()()
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := s.rooms[score.RoomID]; !ok {
		return fmt.Errorf("score for unknown room %d: %w", score.RoomID, ErrConstraint)
	}
	key := scoreKey{roomID: score.RoomID, userID: score.UserID, gameName: score.GameName, duration: score.Duration}
	s.scores[key] = score.Score
	return nil
}

// DeleteScores removes every score of a room.
func (s *Store) DeleteScores(ctx context.Context, roomID int64) (int64, error) {
	defer s.lock()()
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int64
	for key := range s.scores {
		if key.roomID == roomID {
			delete(s.scores, key)
			n++
		}
	}
	return n, nil
}

// ListRoomScores joins scores with users, so scores of never-registered users are not listed.
func (s *Store) ListRoomScores(ctx context.Context, roomID int64, gameName string, duration int) ([]domain.RoomScore, error) {
	defer s.lock()()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	scores := []domain.RoomScore{}
	for key, score := range s.scores {
		if key.roomID != roomID || key.gameName != gameName || key.duration != duration {
			continue
		}
		user, ok := s.users[key.userID]
		if !ok {
			continue
		}
		scores = append(scores, domain.RoomScore{
			UserName: user.Name,
			Score:    score,
			GameName: key.gameName,
			Duration: key.duration,
		})
	}
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].UserName < scores[j].UserName
	})
	return scores, nil
}

// GetHighScore returns the user's best score for a game and duration.
func (s *Store) GetHighScore(ctx context.Context, userID, gameName string, duration int) (int64, bool, error) {
	defer s.lock()()
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	score, ok := s.highScores[highScoreKey{userID: userID, gameName: gameName, duration: duration}]
	return score, ok, nil
}

// InsertHighScore records a first high score.
func (s *Store) InsertHighScore(ctx context.Context, userID, gameName string, duration int, score int64) error {
	defer s.lock()()
	if err := ctx.Err(); err != nil {
		return err
	}
	key := highScoreKey{userID: userID, gameName: gameName, duration: duration}
	if _, ok := s.highScores[key]; ok {
		return fmt.Errorf("duplicate high score for %s: %w", userID, ErrConstraint)
	}
	s.highScores[key] = score
	return nil
}

// UpdateHighScore replaces an existing high score.
func (s *Store) UpdateHighScore(ctx context.Context, userID, gameName string, duration int, score int64) error {
	defer s.lock()()
	if err := ctx.Err(); err != nil {
		return err
	}
	key := highScoreKey{userID: userID, gameName: gameName, duration: duration}
	if _, ok := s.highScores[key]; ok {
		s.highScores[key] = score
	}
	return nil
}

// ListUserHighScores covers every (game, duration) pair anyone has recorded, defaulting to 0.
func (s *Store) ListUserHighScores(ctx context.Context, userID string) ([]domain.HighScore, error) {
	defer s.lock()()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	type pair struct {
		gameName string
		duration int
	}
	seen := make(map[pair]bool)
	scores := []domain.HighScore{}
	for key := range s.highScores {
		p := pair{gameName: key.gameName, duration: key.duration}
		if seen[p] {
			continue
		}
		seen[p] = true
		scores = append(scores, domain.HighScore{
			GameName:  key.gameName,
			Duration:  key.duration,
			HighScore: s.highScores[highScoreKey{userID: userID, gameName: key.gameName, duration: key.duration}],
		})
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].GameName != scores[j].GameName {
			return scores[i].GameName < scores[j].GameName
		}
		return scores[i].Duration < scores[j].Duration
	})
	return scores, nil
}

// ListRankings returns every high score of a registered user, best first.
func (s *Store) ListRankings(ctx context.Context) ([]domain.Ranking, error) {
	defer s.lock()()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rankings := []domain.Ranking{}
	for key, score := range s.highScores {
		user, ok := s.users[key.userID]
		if !ok {
			continue
		}
		rankings = append(rankings, domain.Ranking{
			UserName:  user.Name,
			GameName:  key.gameName,
			Duration:  key.duration,
			HighScore: score,
		})
	}
	sort.Slice(rankings, func(i, j int) bool {
		a, b := rankings[i], rankings[j]
		if a.HighScore != b.HighScore {
			return a.HighScore > b.HighScore
		}
		if a.UserName != b.UserName {
			return a.UserName < b.UserName
		}
		if a.GameName != b.GameName {
			return a.GameName < b.GameName
		}
		return a.Duration < b.Duration
	})
	return rankings, nil
}
