package domain

// GameDateFormat is the human-readable timestamp carried on score records.
// It is derived and non-authoritative; the millisecond Timestamp is the key.
const GameDateFormat = "2006-01-02 15:04:05 +0000"

// AnonymousPlayer is substituted when a score arrives without a player id
const AnonymousPlayer = "anonymous"

// ScoreRecord is one append-only score submission for a single game.
// Extra carries game-specific fields (e.g. snake_length) opaquely.
type ScoreRecord struct {
	PlayerID  string         `json:"player_id"`
	Timestamp int64          `json:"timestamp"`
	Score     int            `json:"score"`
	GameDate  string         `json:"game_date"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// HighScore is the derived maximum-score view over one game's records
type HighScore struct {
	HighScore int    `json:"high_score"`
	PlayerID  string `json:"player_id,omitempty"`
	GameDate  string `json:"game_date,omitempty"`
}

// ScoreSubmission is a request to record a score, from HTTP or Kafka
type ScoreSubmission struct {
	Game     string         `json:"game"`
	PlayerID string         `json:"player_id"`
	Score    int            `json:"score"`
	Extra    map[string]any `json:"extra,omitempty"`
}
