package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/arcade-backend/internal/config"
	"github.com/arcade-backend/internal/domain"
	"github.com/arcade-backend/internal/store"
	"github.com/google/uuid"
)

const sessionTable = "sessions"

// sessionTimeFormat keeps timestamps fixed-width so lexicographic order
// matches chronological order.
const sessionTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Archiver records finished sessions durably; best effort
type Archiver interface {
	RecordSessionResult(ctx context.Context, sess domain.Session) error
}

// Broadcaster pushes session outcomes to live subscribers
type Broadcaster interface {
	BroadcastSession(sess domain.Session)
}

// Machine manages the lifecycle of two-player sessions: created
// IN_PROGRESS with zero scores, updated zero or more times, ending in a
// terminal WIN or LOSS.
type Machine struct {
	store   store.RecordStore
	cfg     config.SessionConfig
	archive Archiver
	logger  *slog.Logger

	broadcaster Broadcaster
}

// NewMachine creates a session state machine. The archive is optional.
func NewMachine(st store.RecordStore, cfg config.SessionConfig, archive Archiver, logger *slog.Logger) *Machine {
	return &Machine{
		store:   st,
		cfg:     cfg,
		archive: archive,
		logger:  logger,
	}
}

// SetBroadcaster sets the live-update broadcaster
func (m *Machine) SetBroadcaster(b Broadcaster) {
	m.broadcaster = b
}

// Create starts a new session and returns it
func (m *Machine) Create(ctx context.Context) (*domain.Session, error) {
	now := time.Now().UTC().Format(sessionTimeFormat)
	sess := domain.Session{
		GameID:      uuid.NewString(),
		CreatedAt:   now,
		UpdatedAt:   now,
		PlayerScore: 0,
		AIScore:     0,
		Result:      domain.ResultInProgress,
	}

	value, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("marshaling session: %w", err)
	}
	if err := m.store.Put(ctx, sessionTable, sess.GameID, value); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	return &sess, nil
}

// UpdateScore replaces the mutable fields of a session. Whether a session
// that already reached WIN or LOSS may be updated again is a configuration
// choice; when disallowed, ErrSessionFinished is returned.
func (m *Machine) UpdateScore(ctx context.Context, gameID string, playerScore, aiScore int, result domain.SessionResult) (*domain.Session, error) {
	if result == "" {
		result = domain.ResultInProgress
	}
	if !result.Valid() {
		return nil, domain.ErrInvalidResult
	}

	var updated domain.Session
	err := m.store.Update(ctx, sessionTable, gameID, func(current []byte) ([]byte, error) {
		var sess domain.Session
		if err := json.Unmarshal(current, &sess); err != nil {
			return nil, fmt.Errorf("unmarshaling session: %w", err)
		}

		if sess.Result.Terminal() && !m.cfg.AllowFinishedUpdate {
			return nil, domain.ErrSessionFinished
		}

		sess.PlayerScore = playerScore
		sess.AIScore = aiScore
		sess.Result = result
		sess.UpdatedAt = time.Now().UTC().Format(sessionTimeFormat)
		updated = sess
		return json.Marshal(sess)
	})
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, err
	}

	if updated.Result.Terminal() {
		if m.archive != nil {
			if err := m.archive.RecordSessionResult(ctx, updated); err != nil {
				m.logger.Warn("failed to archive session result", "game_id", updated.GameID, "error", err)
			}
		}
		if m.broadcaster != nil {
			m.broadcaster.BroadcastSession(updated)
		}
	}

	return &updated, nil
}

// ListRecent returns a best-effort view of recent sessions: a bounded,
// unordered scan sorted by creation time descending. Without a secondary
// index the scan is not guaranteed to contain the newest sessions, only
// some subset.
func (m *Machine) ListRecent(ctx context.Context, limit int) ([]domain.Session, error) {
	if limit <= 0 {
		limit = m.cfg.RecentLimit
	}

	records, err := m.store.Scan(ctx, sessionTable, limit)
	if err != nil {
		return nil, fmt.Errorf("scanning sessions: %w", err)
	}

	sessions := make([]domain.Session, 0, len(records))
	for _, r := range records {
		var sess domain.Session
		if err := json.Unmarshal(r.Value, &sess); err != nil {
			m.logger.Warn("skipping malformed session record", "key", r.Key, "error", err)
			continue
		}
		sessions = append(sessions, sess)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt > sessions[j].CreatedAt
	})
	return sessions, nil
}
