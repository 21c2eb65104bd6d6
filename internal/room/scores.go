package room

import (
	"context"
	"fmt"

	"github.com/game-lobby/internal/domain"
	"github.com/game-lobby/internal/store"
)

// SaveScore stores a room score and raises the user's all-time high score for the same game
// and duration when the new score beats it. Both writes commit together.
func (r *Registry) SaveScore(ctx context.Context, sub domain.ScoreSubmission) (*domain.SaveScoreResult, error) {
	if err := r.check(sub); err != nil {
		return nil, err
	}
	if sub.RoomID <= 0 {
		return nil, domain.MissingField("roomId")
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	// Room before user, always in that order
	unlockRoom, err := r.locks.Lock(ctx, roomLockKey(sub.RoomID))
	if err != nil {
		return nil, r.fail(ctx, "save score", err)
	}
	defer unlockRoom()
	unlockUser, err := r.locks.Lock(ctx, userLockKey(sub.UserID))
	if err != nil {
		return nil, r.fail(ctx, "save score", err)
	}
	defer unlockUser()

	score := *sub.Score
	result := &domain.SaveScoreResult{RoomID: sub.RoomID, UserID: sub.UserID, Score: score}
	err = r.store.InTx(ctx, func(q store.Querier) error {
		if _, err := q.GetRoom(ctx, sub.RoomID); err != nil {
			return err
		}
		err := q.UpsertScore(ctx, domain.Score{
			RoomID:   sub.RoomID,
			UserID:   sub.UserID,
			GameName: sub.GameName,
			Duration: sub.Duration,
			Score:    score,
		})
		if err != nil {
			return err
		}

		best, found, err := q.GetHighScore(ctx, sub.UserID, sub.GameName, sub.Duration)
		if err != nil {
			return err
		}
		switch {
		case !found:
			result.HighScore = domain.HighScoreInserted
			return q.InsertHighScore(ctx, sub.UserID, sub.GameName, sub.Duration, score)
		case score > best:
			result.HighScore = domain.HighScoreUpdated
			return q.UpdateHighScore(ctx, sub.UserID, sub.GameName, sub.Duration, score)
		default:
			result.HighScore = domain.HighScoreUnchanged
			return nil
		}
	})
	if err != nil {
		return nil, r.fail(ctx, "save score", err)
	}

	r.logger.Debug("score saved",
		"room_id", sub.RoomID,
		"user_id", sub.UserID,
		"game", sub.GameName,
		"duration", sub.Duration,
		"score", score,
		"high_score", result.HighScore,
	)
	return result, nil
}

// GetScores returns a room's scores for one game and duration, best first.
func (r *Registry) GetScores(ctx context.Context, roomID int64, gameName string, duration int) ([]domain.RoomScore, error) {
	if gameName == "" {
		return nil, domain.MissingField("gameName")
	}
	if duration <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive", domain.ErrValidation)
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	scores, err := r.store.ListRoomScores(ctx, roomID, gameName, duration)
	if err != nil {
		return nil, r.fail(ctx, "get scores", err)
	}
	return scores, nil
}

// GetHighScores returns the user's best score for every game and duration anyone has played.
// Pairs the user never played report zero.
func (r *Registry) GetHighScores(ctx context.Context, userID string) ([]domain.HighScore, error) {
	if userID == "" {
		return nil, domain.MissingField("userId")
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	scores, err := r.store.ListUserHighScores(ctx, userID)
	if err != nil {
		return nil, r.fail(ctx, "get high scores", err)
	}
	return scores, nil
}

// GetRankings returns every stored high score, highest first.
func (r *Registry) GetRankings(ctx context.Context) ([]domain.Ranking, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rankings, err := r.store.ListRankings(ctx)
	if err != nil {
		return nil, r.fail(ctx, "get rankings", err)
	}
	return rankings, nil
}
