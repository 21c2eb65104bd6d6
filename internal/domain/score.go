package domain

// ScoreSubmission represents a request to store a player's score for a room.
// It is both the REST body (with RoomID taken from the path) and the Kafka message format.
type ScoreSubmission struct {
	RoomID   int64  `json:"roomId,omitempty"`
	UserID   string `json:"userId" validate:"required"`
	Score    *int64 `json:"score" validate:"required"`
	GameName string `json:"gameName" validate:"required"`
	Duration int    `json:"duration" validate:"gt=0"`
}

// Score is a room-scoped score row.
type Score struct {
	RoomID   int64
	UserID   string
	GameName string
	Duration int
	Score    int64
}

// HighScoreOutcome tells which branch the all-time high score update took.
type HighScoreOutcome string

const (
	HighScoreInserted  HighScoreOutcome = "inserted"
	HighScoreUpdated   HighScoreOutcome = "updated"
	HighScoreUnchanged HighScoreOutcome = "unchanged"
)

// SaveScoreResult is returned after a score was stored.
type SaveScoreResult struct {
	RoomID    int64            `json:"roomId"`
	UserID    string           `json:"userId"`
	Score     int64            `json:"score"`
	HighScore HighScoreOutcome `json:"highScore"`
}

// RoomScore is one line of a room's score board.
type RoomScore struct {
	UserName string `json:"userName"`
	Score    int64  `json:"score"`
	GameName string `json:"gameName"`
	Duration int    `json:"duration"`
}

// HighScore is a user's best score for one game and duration.
type HighScore struct {
	GameName  string `json:"gameName"`
	Duration  int    `json:"duration"`
	HighScore int64  `json:"highScore"`
}

// Ranking is one line of the global ranking table.
type Ranking struct {
	UserName  string `json:"userName"`
	GameName  string `json:"gameName"`
	Duration  int    `json:"duration"`
	HighScore int64  `json:"highScore"`
}
