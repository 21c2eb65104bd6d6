//go:generate go run go.uber.org/mock/mockgen -source=recorder.go -destination=../mocks/mock_score_recorder.go -package=mocks
package kafka

import (
	"context"

	"github.com/game-lobby/internal/domain"
)

// ScoreRecorder stores score submissions
type ScoreRecorder interface {
	SaveScore(ctx context.Context, sub domain.ScoreSubmission) (*domain.SaveScoreResult, error)
}
