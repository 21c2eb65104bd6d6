package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/game-lobby/internal/config"
	"github.com/game-lobby/internal/store"
)

// Repository provides PostgreSQL-based data access
type Repository struct {
	*Queries
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ store.Store = (*Repository)(nil)

// NewRepository creates a new PostgreSQL repository
func NewRepository(ctx context.Context, cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	if cfg.MaxConnections > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConnections)
	}
	if cfg.MinConnections > 0 {
		poolConfig.MinConns = int32(cfg.MinConnections)
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}
	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		Queries: &Queries{db: pool},
		pool:    pool,
		logger:  logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Ping checks that the database is reachable
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// InTx runs fn inside a single database transaction.
func (r *Repository) InTx(ctx context.Context, fn func(q store.Querier) error) error {
	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return fn(&Queries{db: tx})
	})
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			user_id VARCHAR(64) PRIMARY KEY,
			user_name VARCHAR(255) NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS rooms (
			id BIGSERIAL PRIMARY KEY,
			room_name VARCHAR(255) NOT NULL,
			password VARCHAR(255),
			game VARCHAR(64),
			duration INT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS participants (
			room_id BIGINT NOT NULL REFERENCES rooms(id),
			user_id VARCHAR(64) NOT NULL,
			user_name VARCHAR(255) NOT NULL,
			is_leader BOOLEAN NOT NULL DEFAULT FALSE,
			is_ready BOOLEAN NOT NULL DEFAULT FALSE,
			joined_at TIMESTAMP NOT NULL DEFAULT clock_timestamp(),
			PRIMARY KEY (room_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS scores (
			room_id BIGINT NOT NULL REFERENCES rooms(id),
			user_id VARCHAR(64) NOT NULL,
			game_name VARCHAR(64) NOT NULL,
			duration INT NOT NULL,
			score BIGINT NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (room_id, user_id, game_name, duration)
		)`,
		`CREATE TABLE IF NOT EXISTS user_high_scores (
			user_id VARCHAR(64) NOT NULL,
			game_name VARCHAR(64) NOT NULL,
			duration INT NOT NULL,
			high_score BIGINT NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, game_name, duration)
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_participants_single_leader ON participants(room_id) WHERE is_leader`,
		`CREATE INDEX IF NOT EXISTS idx_scores_board ON scores(room_id, game_name, duration, score DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_high_scores_rank ON user_high_scores(high_score DESC)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}
