package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/arcade-backend/internal/account"
	"github.com/arcade-backend/internal/domain"
	"github.com/arcade-backend/internal/leaderboard"
	"github.com/arcade-backend/internal/progress"
	"github.com/arcade-backend/internal/session"
	"github.com/arcade-backend/internal/store"
	"github.com/arcade-backend/internal/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Handler provides the HTTP handlers for the arcade API. Every endpoint
// accepts an action-tagged JSON request and performs a single operation
// against one logical table.
type Handler struct {
	accounts     *account.Service
	gate         *progress.Gate
	sessions     *session.Machine
	leaderboards *leaderboard.Engine
	hub          *websocket.Hub
	logger       *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	accounts *account.Service,
	gate *progress.Gate,
	sessions *session.Machine,
	leaderboards *leaderboard.Engine,
	hub *websocket.Hub,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		accounts:     accounts,
		gate:         gate,
		sessions:     sessions,
		leaderboards: leaderboards,
		hub:          hub,
		logger:       logger,
	}
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	// WebSocket endpoint
	r.Get("/ws", h.HandleWebSocket)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth", h.Auth)
		r.Post("/campaign", h.Campaign)
		r.Post("/scores/{game}", h.Scores)
		r.Post("/pong", h.Pong)

		// WebSocket info endpoint
		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// decodeBody decodes an action-tagged request. Clients behind a proxy
// gateway wrap the real payload in a string-encoded "body" field; it is
// unwrapped before decoding.
func decodeBody(r *http.Request, dst any) error {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}

	var env struct {
		Body string `json:"body"`
	}
	if err := json.Unmarshal(data, &env); err == nil && env.Body != "" {
		data = []byte(env.Body)
	}

	return json.Unmarshal(data, dst)
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeDomainError maps a domain error to a status code; unexpected
// errors are logged and surfaced as a generic 500.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrUserExists),
		errors.Is(err, domain.ErrSessionFinished),
		errors.Is(err, store.ErrWriteConflict):
		h.writeError(w, http.StatusConflict, err)
	case errors.Is(err, domain.ErrInvalidCredentials):
		h.writeError(w, http.StatusUnauthorized, err)
	case domain.IsNotFoundError(err):
		h.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domain.ErrLevelSkip),
		errors.Is(err, domain.ErrMissingFields),
		errors.Is(err, domain.ErrInvalidResult),
		errors.Is(err, domain.ErrInvalidRequest):
		h.writeError(w, http.StatusBadRequest, err)
	default:
		h.logger.Error("request failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
	}
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// ReadyCheck returns service readiness status
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"total_connections": h.hub.GetTotalConnections(),
	})
}

type authRequest struct {
	Action   string `json:"action"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Auth handles account registration and login
func (h *Handler) Auth(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	if req.Action == "" || req.Username == "" || req.Password == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrMissingFields)
		return
	}

	switch req.Action {
	case "register":
		if err := h.accounts.Register(r.Context(), req.Username, req.Password); err != nil {
			h.writeDomainError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]string{
			"message":  "User registered successfully",
			"username": req.Username,
		})

	case "login":
		result, err := h.accounts.Login(r.Context(), req.Username, req.Password)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]any{
			"message":           "Login successful",
			"username":          result.Username,
			"campaign_progress": result.CampaignProgress,
		})

	default:
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
	}
}

type campaignRequest struct {
	Action   string `json:"action"`
	Username string `json:"username"`
	Level    *int   `json:"level"`
	Score    *int   `json:"score"`
}

// Campaign handles campaign progress reads and gated updates
func (h *Handler) Campaign(w http.ResponseWriter, r *http.Request) {
	var req campaignRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	if req.Action == "" || req.Username == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrMissingFields)
		return
	}

	switch req.Action {
	case "get_progress":
		level, err := h.gate.Progress(r.Context(), req.Username)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]any{
			"username":          req.Username,
			"campaign_progress": level,
		})

	case "update_progress":
		if req.Level == nil {
			h.writeError(w, http.StatusBadRequest, domain.ErrMissingFields)
			return
		}
		result, err := h.gate.Advance(r.Context(), req.Username, *req.Level)
		if errors.Is(err, domain.ErrLevelSkip) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":            err.Error(),
				"current_progress": result.CampaignProgress,
			})
			return
		}
		if err != nil {
			h.writeDomainError(w, err)
			return
		}

		body := map[string]any{
			"username":          result.Username,
			"campaign_progress": result.CampaignProgress,
		}
		if result.Accepted {
			body["message"] = "Campaign progress updated"
			if req.Score != nil {
				body["score"] = *req.Score
			}
		} else {
			body["message"] = "Progress unchanged"
		}
		h.writeJSON(w, http.StatusOK, body)

	default:
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
	}
}

// Scores handles per-game score submission and high score queries
func (h *Handler) Scores(w http.ResponseWriter, r *http.Request) {
	game := chi.URLParam(r, "game")
	if !h.leaderboards.Known(game) {
		h.writeError(w, http.StatusNotFound, domain.ErrUnknownGame)
		return
	}

	var req map[string]any
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	action, _ := req["action"].(string)
	switch action {
	case "save_score":
		playerID, _ := req["player_id"].(string)
		score := 0
		if n, ok := req["score"].(float64); ok && n > 0 {
			score = int(n)
		}

		// Any remaining fields are game-specific and carried opaquely.
		extra := make(map[string]any)
		for k, v := range req {
			switch k {
			case "action", "player_id", "score", "body":
			default:
				extra[k] = v
			}
		}
		if len(extra) == 0 {
			extra = nil
		}

		rec, err := h.leaderboards.RecordScore(r.Context(), game, playerID, score, extra)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]any{
			"message":   "Score saved successfully!",
			"score":     rec.Score,
			"timestamp": rec.Timestamp,
		})

	case "get_high_score":
		hs, err := h.leaderboards.HighScore(r.Context(), game)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, hs)

	default:
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
	}
}

type pongRequest struct {
	Action      string  `json:"action"`
	GameID      *string `json:"game_id"`
	PlayerScore *int    `json:"player_score"`
	AIScore     *int    `json:"ai_score"`
	Result      string  `json:"result"`
	Limit       int     `json:"limit"`
}

// Pong handles two-player session lifecycle requests
func (h *Handler) Pong(w http.ResponseWriter, r *http.Request) {
	var req pongRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	switch req.Action {
	case "start_game":
		sess, err := h.sessions.Create(r.Context())
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]string{
			"message": "Game started",
			"game_id": sess.GameID,
		})

	case "save_score":
		// Missing fields are rejected before any store access.
		if req.GameID == nil || *req.GameID == "" || req.PlayerScore == nil || req.AIScore == nil {
			h.writeError(w, http.StatusBadRequest, domain.ErrMissingFields)
			return
		}
		sess, err := h.sessions.UpdateScore(r.Context(), *req.GameID, *req.PlayerScore, *req.AIScore, domain.SessionResult(req.Result))
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]any{
			"message":      "Score updated",
			"game_id":      sess.GameID,
			"player_score": sess.PlayerScore,
			"ai_score":     sess.AIScore,
		})

	case "get_recent_games":
		sessions, err := h.sessions.ListRecent(r.Context(), req.Limit)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]any{"games": sessions})

	default:
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
	}
}
