package domain

// SessionResult represents the outcome of a two-player session
type SessionResult string

const (
	ResultInProgress SessionResult = "IN_PROGRESS"
	ResultWin        SessionResult = "WIN"
	ResultLoss       SessionResult = "LOSS"
)

// Terminal reports whether the result ends the session lifecycle
func (r SessionResult) Terminal() bool {
	return r == ResultWin || r == ResultLoss
}

// Valid reports whether the result is one of the known states
func (r SessionResult) Valid() bool {
	return r == ResultInProgress || r == ResultWin || r == ResultLoss
}

// Session tracks one two-player match from creation to a win/loss outcome.
// Timestamps are RFC 3339 strings so that lexicographic order matches
// chronological order when sorting recent sessions.
type Session struct {
	GameID      string        `json:"game_id"`
	CreatedAt   string        `json:"created_at"`
	UpdatedAt   string        `json:"updated_at"`
	PlayerScore int           `json:"player_score"`
	AIScore     int           `json:"ai_score"`
	Result      SessionResult `json:"result"`
}
