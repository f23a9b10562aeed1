package session

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/arcade-backend/internal/config"
	"github.com/arcade-backend/internal/domain"
	"github.com/arcade-backend/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMachine(t *testing.T, cfg config.SessionConfig) *Machine {
	t.Helper()
	if cfg.RecentLimit == 0 {
		cfg.RecentLimit = 10
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewMachine(store.NewMemoryStore(), cfg, nil, logger)
}

func TestCreate(t *testing.T) {
	m := newTestMachine(t, config.SessionConfig{})

	sess, err := m.Create(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, sess.GameID)
	assert.Equal(t, 0, sess.PlayerScore)
	assert.Equal(t, 0, sess.AIScore)
	assert.Equal(t, domain.ResultInProgress, sess.Result)
	assert.Equal(t, sess.CreatedAt, sess.UpdatedAt)
}

func TestUpdateScore_InProgress(t *testing.T) {
	m := newTestMachine(t, config.SessionConfig{})
	ctx := context.Background()

	sess, err := m.Create(ctx)
	require.NoError(t, err)

	// An empty result means the match is still running.
	updated, err := m.UpdateScore(ctx, sess.GameID, 3, 2, "")
	require.NoError(t, err)
	assert.Equal(t, 3, updated.PlayerScore)
	assert.Equal(t, 2, updated.AIScore)
	assert.Equal(t, domain.ResultInProgress, updated.Result)
}

func TestUpdateScore_ToWin(t *testing.T) {
	m := newTestMachine(t, config.SessionConfig{})
	ctx := context.Background()

	sess, err := m.Create(ctx)
	require.NoError(t, err)

	updated, err := m.UpdateScore(ctx, sess.GameID, 5, 3, domain.ResultWin)
	require.NoError(t, err)
	assert.Equal(t, 5, updated.PlayerScore)
	assert.Equal(t, 3, updated.AIScore)
	assert.Equal(t, domain.ResultWin, updated.Result)
}

func TestUpdateScore_UnknownSession(t *testing.T) {
	m := newTestMachine(t, config.SessionConfig{})

	_, err := m.UpdateScore(context.Background(), "no-such-id", 1, 0, domain.ResultWin)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestUpdateScore_InvalidResult(t *testing.T) {
	m := newTestMachine(t, config.SessionConfig{})
	ctx := context.Background()

	sess, err := m.Create(ctx)
	require.NoError(t, err)

	_, err = m.UpdateScore(ctx, sess.GameID, 1, 0, "DRAW")
	assert.ErrorIs(t, err, domain.ErrInvalidResult)
}

func TestUpdateScore_FinishedSessionLocked(t *testing.T) {
	m := newTestMachine(t, config.SessionConfig{AllowFinishedUpdate: false})
	ctx := context.Background()

	sess, err := m.Create(ctx)
	require.NoError(t, err)
	_, err = m.UpdateScore(ctx, sess.GameID, 5, 3, domain.ResultWin)
	require.NoError(t, err)

	_, err = m.UpdateScore(ctx, sess.GameID, 9, 9, domain.ResultLoss)
	assert.ErrorIs(t, err, domain.ErrSessionFinished)
}

func TestUpdateScore_FinishedSessionRewritable(t *testing.T) {
	m := newTestMachine(t, config.SessionConfig{AllowFinishedUpdate: true})
	ctx := context.Background()

	sess, err := m.Create(ctx)
	require.NoError(t, err)
	_, err = m.UpdateScore(ctx, sess.GameID, 5, 3, domain.ResultWin)
	require.NoError(t, err)

	updated, err := m.UpdateScore(ctx, sess.GameID, 3, 5, domain.ResultLoss)
	require.NoError(t, err)
	assert.Equal(t, domain.ResultLoss, updated.Result)
}

type captureArchive struct {
	sessions []domain.Session
}

func (c *captureArchive) RecordSessionResult(ctx context.Context, sess domain.Session) error {
	c.sessions = append(c.sessions, sess)
	return nil
}

func TestUpdateScore_ArchivesTerminalOnly(t *testing.T) {
	archive := &captureArchive{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := NewMachine(store.NewMemoryStore(), config.SessionConfig{RecentLimit: 10}, archive, logger)
	ctx := context.Background()

	sess, err := m.Create(ctx)
	require.NoError(t, err)

	_, err = m.UpdateScore(ctx, sess.GameID, 2, 1, domain.ResultInProgress)
	require.NoError(t, err)
	assert.Empty(t, archive.sessions)

	_, err = m.UpdateScore(ctx, sess.GameID, 5, 1, domain.ResultLoss)
	require.NoError(t, err)
	require.Len(t, archive.sessions, 1)
	assert.Equal(t, sess.GameID, archive.sessions[0].GameID)
	assert.Equal(t, domain.ResultLoss, archive.sessions[0].Result)
}

func TestListRecent(t *testing.T) {
	m := newTestMachine(t, config.SessionConfig{RecentLimit: 10})
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		sess, err := m.Create(ctx)
		require.NoError(t, err)
		ids = append(ids, sess.GameID)
	}

	sessions, err := m.ListRecent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, sessions, 5)
	assert.ElementsMatch(t, ids, []string{
		sessions[0].GameID, sessions[1].GameID, sessions[2].GameID,
		sessions[3].GameID, sessions[4].GameID,
	})

	// Newest first.
	for i := 1; i < len(sessions); i++ {
		assert.GreaterOrEqual(t, sessions[i-1].CreatedAt, sessions[i].CreatedAt)
	}
}

func TestListRecent_Limit(t *testing.T) {
	m := newTestMachine(t, config.SessionConfig{RecentLimit: 2})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := m.Create(ctx)
		require.NoError(t, err)
	}

	sessions, err := m.ListRecent(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, sessions, 3)

	// Zero falls back to the configured limit.
	sessions, err = m.ListRecent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
}

func TestSessionResultStates(t *testing.T) {
	assert.True(t, domain.ResultWin.Terminal())
	assert.True(t, domain.ResultLoss.Terminal())
	assert.False(t, domain.ResultInProgress.Terminal())

	assert.True(t, domain.ResultInProgress.Valid())
	assert.False(t, domain.SessionResult("DRAW").Valid())
	assert.False(t, domain.SessionResult("").Valid())
}
