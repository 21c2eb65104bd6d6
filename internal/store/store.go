// Package store defines the durable-store contract the room registry is written against.
//
// Write operations that may match nothing report the number of affected rows so callers can
// decide whether "nothing happened" is an error. Lookups of a single row return
// domain.ErrRoomNotFound or domain.ErrParticipantNotFound when the row is absent.
package store

import (
	"context"

	"github.com/game-lobby/internal/domain"
)

// Querier is the set of single-statement operations against the five relations.
type Querier interface {
	// UpsertUser inserts the user if absent and reports whether it was created.
	UpsertUser(ctx context.Context, user domain.User) (bool, error)

	InsertRoom(ctx context.Context, name string, password *string) (int64, error)
	GetRoom(ctx context.Context, roomID int64) (*domain.Room, error)
	// LockRoom reads the room and holds a row lock on it until the surrounding transaction ends.
	LockRoom(ctx context.Context, roomID int64) (*domain.Room, error)
	ListRooms(ctx context.Context) ([]domain.Room, error)
	ListEmptyRoomIDs(ctx context.Context) ([]int64, error)
	UpdateRoomSettings(ctx context.Context, roomID int64, game string, duration int) (int64, error)
	DeleteRoom(ctx context.Context, roomID int64) (int64, error)

	InsertParticipant(ctx context.Context, p domain.Participant) error
	GetParticipant(ctx context.Context, roomID int64, userID string) (*domain.Participant, error)
	// GetLeader returns the leader's user id, and false if the room has no leader.
	GetLeader(ctx context.Context, roomID int64) (string, bool, error)
	ListParticipants(ctx context.Context, roomID int64) ([]domain.Participant, error)
	CountParticipants(ctx context.Context, roomID int64) (int, error)
	SetReady(ctx context.Context, roomID int64, userID string, ready bool) (int64, error)
	SetLeader(ctx context.Context, roomID int64, userID string, leader bool) (int64, error)
	ClearLeaders(ctx context.Context, roomID int64) (int64, error)
	DeleteParticipant(ctx context.Context, roomID int64, userID string) (int64, error)
	DeleteParticipants(ctx context.Context, roomID int64) (int64, error)

	UpsertScore(ctx context.Context, score domain.Score) error
	DeleteScores(ctx context.Context, roomID int64) (int64, error)
	ListRoomScores(ctx context.Context, roomID int64, gameName string, duration int) ([]domain.RoomScore, error)

	// GetHighScore returns the stored best score, and false if the user has none for the pair.
	GetHighScore(ctx context.Context, userID, gameName string, duration int) (int64, bool, error)
	InsertHighScore(ctx context.Context, userID, gameName string, duration int, score int64) error
	UpdateHighScore(ctx context.Context, userID, gameName string, duration int, score int64) error
	ListUserHighScores(ctx context.Context, userID string) ([]domain.HighScore, error)
	ListRankings(ctx context.Context) ([]domain.Ranking, error)
}

// Store is a Querier that can also run several operations atomically.
type Store interface {
	Querier

	// InTx runs fn against a transactional Querier. The transaction commits when fn returns
	// nil and rolls back otherwise; fn's error is returned unchanged.
	InTx(ctx context.Context, fn func(q Querier) error) error
	Ping(ctx context.Context) error
	Close()
}
