package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/arcade-backend/internal/config"
	"github.com/arcade-backend/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Archive is the durable append-only record of score submissions and
// finished sessions. The key-value store stays authoritative for reads;
// the archive exists for recovery and audit.
type Archive struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewArchive creates a PostgreSQL archive
func NewArchive(cfg *config.PostgresConfig, logger *slog.Logger) (*Archive, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Archive{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (a *Archive) Close() {
	a.pool.Close()
}

// Pool returns the underlying connection pool
func (a *Archive) Pool() *pgxpool.Pool {
	return a.pool
}

// RunMigrations executes database migrations
func (a *Archive) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS score_events (
			id BIGSERIAL PRIMARY KEY,
			game VARCHAR(64) NOT NULL,
			player_id VARCHAR(64) NOT NULL,
			score BIGINT NOT NULL,
			recorded_at BIGINT NOT NULL,
			game_date VARCHAR(64) NOT NULL,
			extra JSONB,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS session_results (
			id BIGSERIAL PRIMARY KEY,
			game_id VARCHAR(64) NOT NULL,
			player_score INT NOT NULL,
			ai_score INT NOT NULL,
			result VARCHAR(20) NOT NULL,
			finished_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_score_events_top ON score_events(game, score DESC, recorded_at ASC)`,
		`CREATE INDEX IF NOT EXISTS idx_session_results_game ON session_results(game_id)`,
	}

	for _, migration := range migrations {
		_, err := a.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	a.logger.Info("database migrations completed")
	return nil
}

// RecordScoreEvent appends one score submission to the archive
func (a *Archive) RecordScoreEvent(ctx context.Context, game string, rec domain.ScoreRecord) error {
	var extraJSON []byte
	var err error
	if rec.Extra != nil {
		extraJSON, err = json.Marshal(rec.Extra)
		if err != nil {
			return fmt.Errorf("marshaling extra fields: %w", err)
		}
	}

	query := `
		INSERT INTO score_events (game, player_id, score, recorded_at, game_date, extra)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = a.pool.Exec(ctx, query,
		game,
		rec.PlayerID,
		rec.Score,
		rec.Timestamp,
		rec.GameDate,
		extraJSON,
	)
	if err != nil {
		return fmt.Errorf("recording score event: %w", err)
	}
	return nil
}

// RecordSessionResult appends one finished session to the archive
func (a *Archive) RecordSessionResult(ctx context.Context, sess domain.Session) error {
	query := `
		INSERT INTO session_results (game_id, player_score, ai_score, result)
		VALUES ($1, $2, $3, $4)
	`
	_, err := a.pool.Exec(ctx, query,
		sess.GameID,
		sess.PlayerScore,
		sess.AIScore,
		string(sess.Result),
	)
	if err != nil {
		return fmt.Errorf("recording session result: %w", err)
	}
	return nil
}

// TopScore returns the archived maximum for a game, ties broken by the
// earliest submission. Returns nil when the game has no archived events.
func (a *Archive) TopScore(ctx context.Context, game string) (*domain.ScoreRecord, error) {
	query := `
		SELECT player_id, score, recorded_at, game_date
		FROM score_events
		WHERE game = $1
		ORDER BY score DESC, recorded_at ASC
		LIMIT 1
	`
	var rec domain.ScoreRecord
	err := a.pool.QueryRow(ctx, query, game).Scan(
		&rec.PlayerID,
		&rec.Score,
		&rec.Timestamp,
		&rec.GameDate,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("getting archived top score: %w", err)
	}
	return &rec, nil
}

// ScoreEventCount returns the number of archived events for a game
func (a *Archive) ScoreEventCount(ctx context.Context, game string) (int64, error) {
	query := `SELECT COUNT(*) FROM score_events WHERE game = $1`
	var count int64
	err := a.pool.QueryRow(ctx, query, game).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting score events: %w", err)
	}
	return count, nil
}
