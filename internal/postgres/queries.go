package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/game-lobby/internal/domain"
	"github.com/game-lobby/internal/store"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries implements store.Querier on top of a pool or a transaction.
type Queries struct {
	db dbtx
}

var _ store.Querier = (*Queries)(nil)

// UpsertUser creates the user on first login
func (q *Queries) UpsertUser(ctx context.Context, user domain.User) (bool, error) {
	query := `
		INSERT INTO users (user_id, user_name)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING
	`
	result, err := q.db.Exec(ctx, query, user.ID, user.Name)
	if err != nil {
		return false, fmt.Errorf("upserting user: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// InsertRoom creates a room and returns its generated id
func (q *Queries) InsertRoom(ctx context.Context, name string, password *string) (int64, error) {
	query := `INSERT INTO rooms (room_name, password) VALUES ($1, $2) RETURNING id`
	var id int64
	if err := q.db.QueryRow(ctx, query, name, password).Scan(&id); err != nil {
		return 0, fmt.Errorf("inserting room: %w", err)
	}
	return id, nil
}

const selectRoom = `SELECT id, room_name, password, game, duration, created_at FROM rooms`

func scanRoom(row pgx.Row) (*domain.Room, error) {
	var room domain.Room
	err := row.Scan(
		&room.ID,
		&room.Name,
		&room.Password,
		&room.Game,
		&room.Duration,
		&room.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// GetRoom retrieves a room by id
func (q *Queries) GetRoom(ctx context.Context, roomID int64) (*domain.Room, error) {
	room, err := scanRoom(q.db.QueryRow(ctx, selectRoom+` WHERE id = $1`, roomID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, fmt.Errorf("getting room: %w", err)
	}
	return room, nil
}

// LockRoom retrieves a room and locks its row until the transaction ends
func (q *Queries) LockRoom(ctx context.Context, roomID int64) (*domain.Room, error) {
	room, err := scanRoom(q.db.QueryRow(ctx, selectRoom+` WHERE id = $1 FOR UPDATE`, roomID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, fmt.Errorf("locking room: %w", err)
	}
	return room, nil
}

// ListRooms retrieves all rooms
func (q *Queries) ListRooms(ctx context.Context) ([]domain.Room, error) {
	rows, err := q.db.Query(ctx, selectRoom+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing rooms: %w", err)
	}
	defer rows.Close()

	var rooms []domain.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning room: %w", err)
		}
		rooms = append(rooms, *room)
	}
	return rooms, rows.Err()
}

// ListEmptyRoomIDs returns rooms nobody participates in
func (q *Queries) ListEmptyRoomIDs(ctx context.Context) ([]int64, error) {
	query := `
		SELECT r.id FROM rooms r
		WHERE NOT EXISTS (SELECT 1 FROM participants p WHERE p.room_id = r.id)
		ORDER BY r.id
	`
	rows, err := q.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing empty rooms: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning room id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateRoomSettings stores the selected game and duration
func (q *Queries) UpdateRoomSettings(ctx context.Context, roomID int64, game string, duration int) (int64, error) {
	result, err := q.db.Exec(ctx, `UPDATE rooms SET game = $1, duration = $2 WHERE id = $3`, game, duration, roomID)
	if err != nil {
		return 0, fmt.Errorf("updating room settings: %w", err)
	}
	return result.RowsAffected(), nil
}

// DeleteRoom removes the room row only; participants and scores must be gone already
func (q *Queries) DeleteRoom(ctx context.Context, roomID int64) (int64, error) {
	result, err := q.db.Exec(ctx, `DELETE FROM rooms WHERE id = $1`, roomID)
	if err != nil {
		return 0, fmt.Errorf("deleting room: %w", err)
	}
	return result.RowsAffected(), nil
}

// InsertParticipant adds a user to a room
func (q *Queries) InsertParticipant(ctx context.Context, p domain.Participant) error {
	query := `
		INSERT INTO participants (room_id, user_id, user_name, is_leader, is_ready)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := q.db.Exec(ctx, query, p.RoomID, p.UserID, p.UserName, p.IsLeader, p.IsReady)
	if err != nil {
		return fmt.Errorf("inserting participant: %w", err)
	}
	return nil
}

const selectParticipant = `SELECT room_id, user_id, user_name, is_leader, is_ready, joined_at FROM participants`

func scanParticipant(row pgx.Row) (*domain.Participant, error) {
	var p domain.Participant
	err := row.Scan(&p.RoomID, &p.UserID, &p.UserName, &p.IsLeader, &p.IsReady, &p.JoinedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetParticipant retrieves one membership row
func (q *Queries) GetParticipant(ctx context.Context, roomID int64, userID string) (*domain.Participant, error) {
	p, err := scanParticipant(q.db.QueryRow(ctx, selectParticipant+` WHERE room_id = $1 AND user_id = $2`, roomID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrParticipantNotFound
		}
		return nil, fmt.Errorf("getting participant: %w", err)
	}
	return p, nil
}

// GetLeader returns the room's leader, if any
func (q *Queries) GetLeader(ctx context.Context, roomID int64) (string, bool, error) {
	var userID string
	err := q.db.QueryRow(ctx, `SELECT user_id FROM participants WHERE room_id = $1 AND is_leader LIMIT 1`, roomID).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("getting leader: %w", err)
	}
	return userID, true, nil
}

// ListParticipants retrieves a room's participants in join order
func (q *Queries) ListParticipants(ctx context.Context, roomID int64) ([]domain.Participant, error) {
	rows, err := q.db.Query(ctx, selectParticipant+` WHERE room_id = $1 ORDER BY joined_at, user_id`, roomID)
	if err != nil {
		return nil, fmt.Errorf("listing participants: %w", err)
	}
	defer rows.Close()

	participants := []domain.Participant{}
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning participant: %w", err)
		}
		participants = append(participants, *p)
	}
	return participants, rows.Err()
}

// CountParticipants returns the number of users in a room
func (q *Queries) CountParticipants(ctx context.Context, roomID int64) (int, error) {
	var count int
	if err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM participants WHERE room_id = $1`, roomID).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting participants: %w", err)
	}
	return count, nil
}

// SetReady updates a participant's ready flag
func (q *Queries) SetReady(ctx context.Context, roomID int64, userID string, ready bool) (int64, error) {
	result, err := q.db.Exec(ctx, `UPDATE participants SET is_ready = $1 WHERE room_id = $2 AND user_id = $3`, ready, roomID, userID)
	if err != nil {
		return 0, fmt.Errorf("setting ready: %w", err)
	}
	return result.RowsAffected(), nil
}

// SetLeader updates a participant's leader flag
func (q *Queries) SetLeader(ctx context.Context, roomID int64, userID string, leader bool) (int64, error) {
	result, err := q.db.Exec(ctx, `UPDATE participants SET is_leader = $1 WHERE room_id = $2 AND user_id = $3`, leader, roomID, userID)
	if err != nil {
		return 0, fmt.Errorf("setting leader: %w", err)
	}
	return result.RowsAffected(), nil
}

// ClearLeaders revokes every leader flag in a room
func (q *Queries) ClearLeaders(ctx context.Context, roomID int64) (int64, error) {
	result, err := q.db.Exec(ctx, `UPDATE participants SET is_leader = FALSE WHERE room_id = $1 AND is_leader`, roomID)
	if err != nil {
		return 0, fmt.Errorf("clearing leaders: %w", err)
	}
	return result.RowsAffected(), nil
}

// DeleteParticipant removes a user from a room
func (q *Queries) DeleteParticipant(ctx context.Context, roomID int64, userID string) (int64, error) {
	result, err := q.db.Exec(ctx, `DELETE FROM participants WHERE room_id = $1 AND user_id = $2`, roomID, userID)
	if err != nil {
		return 0, fmt.Errorf("deleting participant: %w", err)
	}
	return result.RowsAffected(), nil
}

// DeleteParticipants removes every user from a room
func (q *Queries) DeleteParticipants(ctx context.Context, roomID int64) (int64, error) {
	result, err := q.db.Exec(ctx, `DELETE FROM participants WHERE room_id = $1`, roomID)
	if err != nil {
		return 0, fmt.Errorf("deleting participants: %w", err)
	}
	return result.RowsAffected(), nil
}

// UpsertScore inserts or overwrites a room-scoped score
func (q *Queries) UpsertScore(ctx context.Context, score domain.Score) error {
	query := `
		INSERT INTO scores (room_id, user_id, game_name, duration, score, updated_at)
		VALUES ($1, $2, $3, $4, $5, CURRENT_TIMESTAMP)
		ON CONFLICT (room_id, user_id, game_name, duration)
		DO UPDATE SET score = EXCLUDED.score, updated_at = CURRENT_TIMESTAMP
	`
	_, err := q.db.Exec(ctx, query, score.RoomID, score.UserID, score.GameName, score.Duration, score.Score)
	if err != nil {
		return fmt.Errorf("upserting score: %w", err)
	}
	return nil
}

// DeleteScores removes a room's scores
func (q *Queries) DeleteScores(ctx context.Context, roomID int64) (int64, error) {
	result, err := q.db.Exec(ctx, `DELETE FROM scores WHERE room_id = $1`, roomID)
	if err != nil {
		return 0, fmt.Errorf("deleting scores: %w", err)
	}
	return result.RowsAffected(), nil
}

// ListRoomScores returns a room's board for one game and duration, best first
func (q *Queries) ListRoomScores(ctx context.Context, roomID int64, gameName string, duration int) ([]domain.RoomScore, error) {
	query := `
		SELECT u.user_name, s.score, s.game_name, s.duration
		FROM scores s
		JOIN users u ON u.user_id = s.user_id
		WHERE s.room_id = $1 AND s.game_name = $2 AND s.duration = $3
		ORDER BY s.score DESC, u.user_name
	`
	rows, err := q.db.Query(ctx, query, roomID, gameName, duration)
	if err != nil {
		return nil, fmt.Errorf("listing room scores: %w", err)
	}
	defer rows.Close()

	scores := []domain.RoomScore{}
	for rows.Next() {
		var s domain.RoomScore
		if err := rows.Scan(&s.UserName, &s.Score, &s.GameName, &s.Duration); err != nil {
			return nil, fmt.Errorf("scanning score: %w", err)
		}
		scores = append(scores, s)
	}
	return scores, rows.Err()
}

// GetHighScore returns a user's best score for a game and duration
func (q *Queries) GetHighScore(ctx context.Context, userID, gameName string, duration int) (int64, bool, error) {
	query := `SELECT high_score FROM user_high_scores WHERE user_id = $1 AND game_name = $2 AND duration = $3`
	var score int64
	err := q.db.QueryRow(ctx, query, userID, gameName, duration).Scan(&score)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("getting high score: %w", err)
	}
	return score, true, nil
}

// InsertHighScore records a user's first score for a game and duration
func (q *Queries) InsertHighScore(ctx context.Context, userID, gameName string, duration int, score int64) error {
	query := `
		INSERT INTO user_high_scores (user_id, game_name, duration, high_score)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := q.db.Exec(ctx, query, userID, gameName, duration, score); err != nil {
		return fmt.Errorf("inserting high score: %w", err)
	}
	return nil
}

// UpdateHighScore overwrites a user's best score
func (q *Queries) UpdateHighScore(ctx context.Context, userID, gameName string, duration int, score int64) error {
	query := `
		UPDATE user_high_scores SET high_score = $1, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = $2 AND game_name = $3 AND duration = $4
	`
	if _, err := q.db.Exec(ctx, query, score, userID, gameName, duration); err != nil {
		return fmt.Errorf("updating high score: %w", err)
	}
	return nil
}

// ListUserHighScores returns the user's best score for every pair anyone has played
func (q *Queries) ListUserHighScores(ctx context.Context, userID string) ([]domain.HighScore, error) {
	query := `
		SELECT g.game_name, g.duration, COALESCE(h.high_score, 0)
		FROM (SELECT DISTINCT game_name, duration FROM user_high_scores) AS g
		LEFT JOIN user_high_scores AS h
			ON h.game_name = g.game_name
			AND h.duration = g.duration
			AND h.user_id = $1
		ORDER BY g.game_name, g.duration
	`
	rows, err := q.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("listing high scores: %w", err)
	}
	defer rows.Close()

	scores := []domain.HighScore{}
	for rows.Next() {
		var s domain.HighScore
		if err := rows.Scan(&s.GameName, &s.Duration, &s.HighScore); err != nil {
			return nil, fmt.Errorf("scanning high score: %w", err)
		}
		scores = append(scores, s)
	}
	return scores, rows.Err()
}

// ListRankings returns every user's high scores, best first
func (q *Queries) ListRankings(ctx context.Context) ([]domain.Ranking, error) {
	query := `
		SELECT u.user_name, h.game_name, h.duration, h.high_score
		FROM user_high_scores h
		JOIN users u ON u.user_id = h.user_id
		ORDER BY h.high_score DESC, u.user_name, h.game_name, h.duration
	`
	rows, err := q.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing rankings: %w", err)
	}
	defer rows.Close()

	rankings := []domain.Ranking{}
	for rows.Next() {
		var r domain.Ranking
		if err := rows.Scan(&r.UserName, &r.GameName, &r.Duration, &r.HighScore); err != nil {
			return nil, fmt.Errorf("scanning ranking: %w", err)
		}
		rankings = append(rankings, r)
	}
	return rankings, rows.Err()
}
