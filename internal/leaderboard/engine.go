package leaderboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/arcade-backend/internal/domain"
	"github.com/arcade-backend/internal/store"
)

// highScoreTable holds one materialized top-score record per game,
// maintained incrementally on every write so that reads are a single get
// instead of a full scan.
const highScoreTable = "highscores"

// Archiver records score events durably; best effort, failures are logged
// and never fail the request.
type Archiver interface {
	RecordScoreEvent(ctx context.Context, game string, rec domain.ScoreRecord) error
}

// Broadcaster pushes a new high score to live subscribers
type Broadcaster interface {
	BroadcastHighScore(game string, hs domain.HighScore)
}

// Engine persists append-only score records and serves the current
// maximum for each configured game.
type Engine struct {
	store   store.RecordStore
	games   map[string]bool
	archive Archiver
	logger  *slog.Logger

	broadcaster Broadcaster
}

// NewEngine creates a leaderboard engine for the given games. The archive
// is optional.
func NewEngine(st store.RecordStore, games []string, archive Archiver, logger *slog.Logger) *Engine {
	known := make(map[string]bool, len(games))
	for _, g := range games {
		known[g] = true
	}
	return &Engine{
		store:   st,
		games:   known,
		archive: archive,
		logger:  logger,
	}
}

// SetBroadcaster sets the live-update broadcaster
func (e *Engine) SetBroadcaster(b Broadcaster) {
	e.broadcaster = b
}

// Games returns the configured game names
func (e *Engine) Games() []string {
	games := make([]string, 0, len(e.games))
	for g := range e.games {
		games = append(games, g)
	}
	return games
}

// Known reports whether the game has a configured leaderboard
func (e *Engine) Known(game string) bool {
	return e.games[game]
}

func scoreTable(game string) string {
	return "scores:" + game
}

// recordKey keeps score records unique per submission. The zero-padded
// millisecond timestamp leads so keys stay fixed-width.
func recordKey(rec domain.ScoreRecord) string {
	return fmt.Sprintf("%013d:%s", rec.Timestamp, rec.PlayerID)
}

// betterThan decides whether a displaces b as the high score. Ties go to
// the earlier submission, so the first holder of a score keeps it.
func betterThan(a, b domain.ScoreRecord) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Timestamp < b.Timestamp
}

// RecordScore normalizes and persists one score submission, then updates
// the materialized high score when it was beaten.
func (e *Engine) RecordScore(ctx context.Context, game, playerID string, score int, extra map[string]any) (*domain.ScoreRecord, error) {
	if !e.games[game] {
		return nil, domain.ErrUnknownGame
	}

	if playerID == "" {
		playerID = domain.AnonymousPlayer
	}
	if score < 0 {
		score = 0
	}

	now := time.Now().UTC()
	rec := domain.ScoreRecord{
		PlayerID:  playerID,
		Timestamp: now.UnixMilli(),
		Score:     score,
		GameDate:  now.Format(domain.GameDateFormat),
		Extra:     extra,
	}

	value, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshaling score record: %w", err)
	}
	if err := e.store.Put(ctx, scoreTable(game), recordKey(rec), value); err != nil {
		return nil, fmt.Errorf("saving score: %w", err)
	}

	improved, err := e.raiseTop(ctx, game, rec)
	if err != nil {
		// The record itself is durable; the materialized view can be
		// rebuilt from a scan or by the recovery worker.
		e.logger.Warn("failed to update materialized high score", "game", game, "error", err)
	}

	if e.archive != nil {
		if err := e.archive.RecordScoreEvent(ctx, game, rec); err != nil {
			e.logger.Warn("failed to archive score event", "game", game, "error", err)
		}
	}

	if improved && e.broadcaster != nil {
		e.broadcaster.BroadcastHighScore(game, domain.HighScore{
			HighScore: rec.Score,
			PlayerID:  rec.PlayerID,
			GameDate:  rec.GameDate,
		})
	}

	return &rec, nil
}

// raiseTop installs rec as the materialized high score if it beats the
// current one. Returns whether the view changed.
func (e *Engine) raiseTop(ctx context.Context, game string, rec domain.ScoreRecord) (bool, error) {
	changed := false
	err := e.store.Apply(ctx, highScoreTable, game, func(current []byte) ([]byte, error) {
		if current != nil {
			var top domain.ScoreRecord
			if err := json.Unmarshal(current, &top); err != nil {
				return nil, fmt.Errorf("unmarshaling high score: %w", err)
			}
			if !betterThan(rec, top) {
				return nil, store.ErrNoChange
			}
		}
		changed = true
		return json.Marshal(rec)
	})
	return changed, err
}

// HighScore returns the current maximum score for a game, or a zero high
// score with no attribution when no records exist.
func (e *Engine) HighScore(ctx context.Context, game string) (*domain.HighScore, error) {
	if !e.games[game] {
		return nil, domain.ErrUnknownGame
	}

	value, err := e.store.Get(ctx, highScoreTable, game)
	if err == nil {
		var top domain.ScoreRecord
		if err := json.Unmarshal(value, &top); err != nil {
			return nil, fmt.Errorf("unmarshaling high score: %w", err)
		}
		return &domain.HighScore{
			HighScore: top.Score,
			PlayerID:  top.PlayerID,
			GameDate:  top.GameDate,
		}, nil
	}
	if err != store.ErrRecordNotFound {
		return nil, fmt.Errorf("getting high score: %w", err)
	}

	// No materialized record yet; rebuild it from the score table.
	top, err := e.Rebuild(ctx, game)
	if err != nil {
		return nil, err
	}
	if top == nil {
		return &domain.HighScore{HighScore: 0}, nil
	}
	return &domain.HighScore{
		HighScore: top.Score,
		PlayerID:  top.PlayerID,
		GameDate:  top.GameDate,
	}, nil
}

// Rebuild recomputes the materialized high score from a full scan of the
// game's score table. Returns nil when the table is empty.
func (e *Engine) Rebuild(ctx context.Context, game string) (*domain.ScoreRecord, error) {
	records, err := e.store.Scan(ctx, scoreTable(game), 0)
	if err != nil {
		return nil, fmt.Errorf("scanning scores: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	var top domain.ScoreRecord
	found := false
	for _, r := range records {
		var rec domain.ScoreRecord
		if err := json.Unmarshal(r.Value, &rec); err != nil {
			e.logger.Warn("skipping malformed score record", "game", game, "key", r.Key, "error", err)
			continue
		}
		if !found || betterThan(rec, top) {
			top = rec
			found = true
		}
	}
	if !found {
		return nil, nil
	}

	if _, err := e.raiseTop(ctx, game, top); err != nil {
		return nil, fmt.Errorf("restoring high score: %w", err)
	}
	return &top, nil
}

// RestoreTop reinstalls a high score recovered from the durable archive
func (e *Engine) RestoreTop(ctx context.Context, game string, rec domain.ScoreRecord) error {
	if !e.games[game] {
		return domain.ErrUnknownGame
	}
	_, err := e.raiseTop(ctx, game, rec)
	return err
}
