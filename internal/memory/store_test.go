package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/game-lobby/internal/domain"
	"github.com/game-lobby/internal/store"
)

func TestStore_InTx_CommitsOrDiscards(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := New()
	boom := errors.New("boom")

	// Given a transaction that fails after writing
	err := s.InTx(ctx, func(q store.Querier) error {
		if _, err := q.InsertRoom(ctx, "lost", nil); err != nil {
			return err
		}
		return boom
	})

	// Then nothing it wrote is visible
	req.ErrorIs(err, boom)
	rooms, err := s.ListRooms(ctx)
	req.NoError(err)
	req.Empty(rooms)

	// When a transaction succeeds
	var roomID int64
	req.NoError(s.InTx(ctx, func(q store.Querier) error {
		var err error
		roomID, err = q.InsertRoom(ctx, "kept", nil)
		if err != nil {
			return err
		}
		return q.InsertParticipant(ctx, domain.Participant{RoomID: roomID, UserID: "a", UserName: "A", IsLeader: true})
	}))

	// Then both writes are visible together
	room, err := s.GetRoom(ctx, roomID)
	req.NoError(err)
	req.Equal("kept", room.Name)
	n, err := s.CountParticipants(ctx, roomID)
	req.NoError(err)
	req.Equal(1, n)
}

func TestStore_InTx_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := New().InTx(ctx, func(store.Querier) error {
		called = true
		return nil
	})

	require.ErrorIs(t, err, context.Canceled)
	require.False(t, called)
}

func TestStore_Constraints(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := New()
	roomID, err := s.InsertRoom(ctx, "lobby", nil)
	req.NoError(err)
	req.NoError(s.InsertParticipant(ctx, domain.Participant{RoomID: roomID, UserID: "a", IsLeader: true}))

	err = s.InsertParticipant(ctx, domain.Participant{RoomID: roomID, UserID: "a"})
	req.ErrorIs(err, ErrConstraint)

	err = s.InsertParticipant(ctx, domain.Participant{RoomID: roomID, UserID: "b", IsLeader: true})
	req.ErrorIs(err, ErrConstraint)

	err = s.InsertParticipant(ctx, domain.Participant{RoomID: 99, UserID: "a"})
	req.ErrorIs(err, ErrConstraint)

	req.NoError(s.InsertParticipant(ctx, domain.Participant{RoomID: roomID, UserID: "b"}))
	_, err = s.SetLeader(ctx, roomID, "b", true)
	req.ErrorIs(err, ErrConstraint)

	_, err = s.DeleteRoom(ctx, roomID)
	req.ErrorIs(err, ErrConstraint)

	err = s.UpsertScore(ctx, domain.Score{RoomID: 99, UserID: "a", GameName: "quiz", Score: 1})
	req.ErrorIs(err, ErrConstraint)

	req.NoError(s.InsertHighScore(ctx, "a", "quiz", 60, 10))
	req.ErrorIs(s.InsertHighScore(ctx, "a", "quiz", 60, 20), ErrConstraint)
}

func TestStore_MissingRowsReportZero(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := New()

	_, err := s.GetRoom(ctx, 1)
	req.ErrorIs(err, domain.ErrRoomNotFound)
	_, err = s.GetParticipant(ctx, 1, "a")
	req.ErrorIs(err, domain.ErrParticipantNotFound)

	for _, affected := range []func() (int64, error){
		func() (int64, error) { return s.DeleteRoom(ctx, 1) },
		func() (int64, error) { return s.UpdateRoomSettings(ctx, 1, "quiz", 60) },
		func() (int64, error) { return s.SetReady(ctx, 1, "a", true) },
		func() (int64, error) { return s.SetLeader(ctx, 1, "a", true) },
		func() (int64, error) { return s.DeleteParticipant(ctx, 1, "a") },
	} {
		n, err := affected()
		req.NoError(err)
		req.Zero(n)
	}

	_, ok, err := s.GetLeader(ctx, 1)
	req.NoError(err)
	req.False(ok)
}

func TestStore_ParticipantsInJoinOrder(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := New()
	roomID, err := s.InsertRoom(ctx, "lobby", nil)
	req.NoError(err)

	for _, id := range []string{"zoe", "adam", "mia"} {
		req.NoError(s.InsertParticipant(ctx, domain.Participant{RoomID: roomID, UserID: id}))
	}

	participants, err := s.ListParticipants(ctx, roomID)
	req.NoError(err)
	var ids []string
	for _, p := range participants {
		ids = append(ids, p.UserID)
	}
	req.Equal([]string{"zoe", "adam", "mia"}, ids)

	empty, err := s.ListEmptyRoomIDs(ctx)
	req.NoError(err)
	req.Empty(empty)
}

func TestStore_ScoreBoards(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := New()
	roomID, err := s.InsertRoom(ctx, "lobby", nil)
	req.NoError(err)
	for _, u := range []domain.User{{ID: "a", Name: "Ann"}, {ID: "b", Name: "Ben"}} {
		created, err := s.UpsertUser(ctx, u)
		req.NoError(err)
		req.True(created)
	}

	req.NoError(s.UpsertScore(ctx, domain.Score{RoomID: roomID, UserID: "a", GameName: "quiz", Duration: 60, Score: 10}))
	req.NoError(s.UpsertScore(ctx, domain.Score{RoomID: roomID, UserID: "b", GameName: "quiz", Duration: 60, Score: 40}))
	req.NoError(s.UpsertScore(ctx, domain.Score{RoomID: roomID, UserID: "ghost", GameName: "quiz", Duration: 60, Score: 99}))

	// Unregistered users are left out of the board
	scores, err := s.ListRoomScores(ctx, roomID, "quiz", 60)
	req.NoError(err)
	req.Equal([]domain.RoomScore{
		{UserName: "Ben", Score: 40, GameName: "quiz", Duration: 60},
		{UserName: "Ann", Score: 10, GameName: "quiz", Duration: 60},
	}, scores)

	req.NoError(s.InsertHighScore(ctx, "b", "quiz", 60, 40))
	req.NoError(s.InsertHighScore(ctx, "b", "snake", 30, 7))

	// Pairs the user never played default to zero
	highs, err := s.ListUserHighScores(ctx, "a")
	req.NoError(err)
	req.Equal([]domain.HighScore{
		{GameName: "quiz", Duration: 60, HighScore: 0},
		{GameName: "snake", Duration: 30, HighScore: 0},
	}, highs)

	rankings, err := s.ListRankings(ctx)
	req.NoError(err)
	req.Equal([]domain.Ranking{
		{UserName: "Ben", GameName: "quiz", Duration: 60, HighScore: 40},
		{UserName: "Ben", GameName: "snake", Duration: 30, HighScore: 7},
	}, rankings)
}
