package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/arcade-backend/internal/account"
	"github.com/arcade-backend/internal/config"
	"github.com/arcade-backend/internal/leaderboard"
	"github.com/arcade-backend/internal/progress"
	"github.com/arcade-backend/internal/session"
	"github.com/arcade-backend/internal/store"
	"github.com/arcade-backend/internal/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.NewMemoryStore()

	accounts := account.NewService(st, logger)
	gate := progress.NewGate(st, logger)
	sessions := session.NewMachine(st, config.SessionConfig{RecentLimit: 10}, nil, logger)
	leaderboards := leaderboard.NewEngine(st, []string{"snake", "galaga", "pacman", "pong"}, nil, logger)
	hub := websocket.NewHub(logger)

	return NewHandler(accounts, gate, sessions, leaderboards, hub, logger).Router()
}

func doPost(t *testing.T, router http.Handler, path string, body any) (int, map[string]any) {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	return rec.Code, decoded
}

func registerUser(t *testing.T, router http.Handler, username, password string) {
	t.Helper()
	code, _ := doPost(t, router, "/api/v1/auth", map[string]any{
		"action": "register", "username": username, "password": password,
	})
	require.Equal(t, http.StatusOK, code)
}

func TestHealthEndpoints(t *testing.T) {
	router := newTestRouter(t)

	for _, path := range []string{"/health", "/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestAuth_RegisterAndLogin(t *testing.T) {
	router := newTestRouter(t)

	code, body := doPost(t, router, "/api/v1/auth", map[string]any{
		"action": "register", "username": "alice", "password": "secret123",
	})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "alice", body["username"])

	code, body = doPost(t, router, "/api/v1/auth", map[string]any{
		"action": "login", "username": "alice", "password": "secret123",
	})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "alice", body["username"])
	assert.Equal(t, float64(0), body["campaign_progress"])
}

func TestAuth_DuplicateRegistration(t *testing.T) {
	router := newTestRouter(t)
	registerUser(t, router, "alice", "secret123")

	code, body := doPost(t, router, "/api/v1/auth", map[string]any{
		"action": "register", "username": "alice", "password": "other",
	})
	assert.Equal(t, http.StatusConflict, code)
	assert.Contains(t, body, "error")
}

func TestAuth_WrongPassword(t *testing.T) {
	router := newTestRouter(t)
	registerUser(t, router, "alice", "secret123")

	code, body := doPost(t, router, "/api/v1/auth", map[string]any{
		"action": "login", "username": "alice", "password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Contains(t, body, "error")
}

func TestAuth_MissingFields(t *testing.T) {
	router := newTestRouter(t)

	for _, body := range []map[string]any{
		{"action": "register", "username": "alice"},
		{"action": "login", "password": "x"},
		{"username": "alice", "password": "x"},
	} {
		code, resp := doPost(t, router, "/api/v1/auth", body)
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Contains(t, resp, "error")
	}
}

func TestAuth_UnknownAction(t *testing.T) {
	router := newTestRouter(t)

	code, _ := doPost(t, router, "/api/v1/auth", map[string]any{
		"action": "delete", "username": "alice", "password": "x",
	})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAuth_GatewayBodyEnvelope(t *testing.T) {
	router := newTestRouter(t)

	// Proxy gateways deliver the payload string-encoded under "body".
	inner, err := json.Marshal(map[string]any{
		"action": "register", "username": "alice", "password": "secret123",
	})
	require.NoError(t, err)

	code, body := doPost(t, router, "/api/v1/auth", map[string]any{"body": string(inner)})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "alice", body["username"])
}

func TestCampaign_GetProgress(t *testing.T) {
	router := newTestRouter(t)
	registerUser(t, router, "alice", "secret123")

	code, body := doPost(t, router, "/api/v1/campaign", map[string]any{
		"action": "get_progress", "username": "alice",
	})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(0), body["campaign_progress"])
}

func TestCampaign_UnknownUser(t *testing.T) {
	router := newTestRouter(t)

	code, _ := doPost(t, router, "/api/v1/campaign", map[string]any{
		"action": "get_progress", "username": "ghost",
	})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = doPost(t, router, "/api/v1/campaign", map[string]any{
		"action": "update_progress", "username": "ghost", "level": 1,
	})
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCampaign_Progression(t *testing.T) {
	router := newTestRouter(t)
	registerUser(t, router, "alice", "secret123")

	// Advancing one level at a time is accepted.
	code, body := doPost(t, router, "/api/v1/campaign", map[string]any{
		"action": "update_progress", "username": "alice", "level": 1,
	})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Campaign progress updated", body["message"])
	assert.Equal(t, float64(1), body["campaign_progress"])

	// Skipping a level is rejected and reports the stored value.
	code, body = doPost(t, router, "/api/v1/campaign", map[string]any{
		"action": "update_progress", "username": "alice", "level": 3,
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body, "error")
	assert.Equal(t, float64(1), body["current_progress"])

	// Replaying a finished level is an accepted no-op.
	code, body = doPost(t, router, "/api/v1/campaign", map[string]any{
		"action": "update_progress", "username": "alice", "level": 1,
	})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Progress unchanged", body["message"])
	assert.Equal(t, float64(1), body["campaign_progress"])

	code, body = doPost(t, router, "/api/v1/campaign", map[string]any{
		"action": "get_progress", "username": "alice",
	})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["campaign_progress"])
}

func TestCampaign_UpdateEchoesScore(t *testing.T) {
	router := newTestRouter(t)
	registerUser(t, router, "alice", "secret123")

	code, body := doPost(t, router, "/api/v1/campaign", map[string]any{
		"action": "update_progress", "username": "alice", "level": 1, "score": 250,
	})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(250), body["score"])
}

func TestCampaign_MissingLevel(t *testing.T) {
	router := newTestRouter(t)
	registerUser(t, router, "alice", "secret123")

	code, _ := doPost(t, router, "/api/v1/campaign", map[string]any{
		"action": "update_progress", "username": "alice",
	})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestScores_UnknownGame(t *testing.T) {
	router := newTestRouter(t)

	code, _ := doPost(t, router, "/api/v1/scores/tetris", map[string]any{
		"action": "get_high_score",
	})
	assert.Equal(t, http.StatusNotFound, code)
}

func TestScores_HighScoreEmpty(t *testing.T) {
	router := newTestRouter(t)

	code, body := doPost(t, router, "/api/v1/scores/snake", map[string]any{
		"action": "get_high_score",
	})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(0), body["high_score"])
}

func TestScores_SaveAndQuery(t *testing.T) {
	router := newTestRouter(t)

	for _, submission := range []map[string]any{
		{"action": "save_score", "player_id": "alice", "score": 10},
		{"action": "save_score", "player_id": "bob", "score": 50},
		{"action": "save_score", "player_id": "carol", "score": 30},
	} {
		code, body := doPost(t, router, "/api/v1/scores/snake", submission)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "Score saved successfully!", body["message"])
		assert.Equal(t, submission["score"], int(body["score"].(float64)))
		assert.Contains(t, body, "timestamp")
	}

	code, body := doPost(t, router, "/api/v1/scores/snake", map[string]any{
		"action": "get_high_score",
	})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(50), body["high_score"])
	assert.Equal(t, "bob", body["player_id"])
}

func TestScores_AnonymousDefault(t *testing.T) {
	router := newTestRouter(t)

	code, _ := doPost(t, router, "/api/v1/scores/galaga", map[string]any{
		"action": "save_score", "score": 75,
	})
	assert.Equal(t, http.StatusOK, code)

	code, body := doPost(t, router, "/api/v1/scores/galaga", map[string]any{
		"action": "get_high_score",
	})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(75), body["high_score"])
	assert.Equal(t, "anonymous", body["player_id"])
}

func TestScores_GameSpecificFields(t *testing.T) {
	router := newTestRouter(t)

	// Extra fields like snake_length ride along without being validated.
	code, _ := doPost(t, router, "/api/v1/scores/snake", map[string]any{
		"action": "save_score", "player_id": "alice", "score": 20, "snake_length": 14,
	})
	assert.Equal(t, http.StatusOK, code)
}

func TestScores_UnknownAction(t *testing.T) {
	router := newTestRouter(t)

	code, _ := doPost(t, router, "/api/v1/scores/snake", map[string]any{
		"action": "reset",
	})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestPong_Lifecycle(t *testing.T) {
	router := newTestRouter(t)

	code, body := doPost(t, router, "/api/v1/pong", map[string]any{
		"action": "start_game",
	})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Game started", body["message"])
	gameID, ok := body["game_id"].(string)
	require.True(t, ok)
	require.NotEmpty(t, gameID)

	code, body = doPost(t, router, "/api/v1/pong", map[string]any{
		"action": "save_score", "game_id": gameID,
		"player_score": 5, "ai_score": 3, "result": "WIN",
	})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Score updated", body["message"])
	assert.Equal(t, float64(5), body["player_score"])
	assert.Equal(t, float64(3), body["ai_score"])

	// Finished sessions reject further writes.
	code, _ = doPost(t, router, "/api/v1/pong", map[string]any{
		"action": "save_score", "game_id": gameID,
		"player_score": 9, "ai_score": 9, "result": "LOSS",
	})
	assert.Equal(t, http.StatusConflict, code)

	code, body = doPost(t, router, "/api/v1/pong", map[string]any{
		"action": "get_recent_games",
	})
	assert.Equal(t, http.StatusOK, code)
	games, ok := body["games"].([]any)
	require.True(t, ok)
	assert.Len(t, games, 1)
}

func TestPong_SaveScoreMissingFields(t *testing.T) {
	router := newTestRouter(t)

	// Rejected before any session lookup happens.
	for _, body := range []map[string]any{
		{"action": "save_score"},
		{"action": "save_score", "game_id": "abc"},
		{"action": "save_score", "game_id": "abc", "player_score": 1},
		{"action": "save_score", "game_id": "", "player_score": 1, "ai_score": 2},
	} {
		code, resp := doPost(t, router, "/api/v1/pong", body)
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Contains(t, resp, "error")
	}
}

func TestPong_UnknownSession(t *testing.T) {
	router := newTestRouter(t)

	code, _ := doPost(t, router, "/api/v1/pong", map[string]any{
		"action": "save_score", "game_id": "no-such-id",
		"player_score": 1, "ai_score": 0, "result": "WIN",
	})
	assert.Equal(t, http.StatusNotFound, code)
}

func TestPong_InvalidResult(t *testing.T) {
	router := newTestRouter(t)

	code, body := doPost(t, router, "/api/v1/pong", map[string]any{
		"action": "start_game",
	})
	require.Equal(t, http.StatusOK, code)
	gameID := body["game_id"].(string)

	code, _ = doPost(t, router, "/api/v1/pong", map[string]any{
		"action": "save_score", "game_id": gameID,
		"player_score": 1, "ai_score": 0, "result": "DRAW",
	})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestInvalidJSONBody(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebSocketStats(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ws/stats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(0), body["total_connections"])
}
