package domain

// Account represents a registered player account
type Account struct {
	Username         string `json:"username"`
	PasswordHash     string `json:"password_hash"`
	CreatedAt        int64  `json:"created_at"`
	LastLogin        int64  `json:"last_login"`
	CampaignProgress int    `json:"campaign_progress"`
	LastUpdated      int64  `json:"last_updated,omitempty"`
}

// LoginResult is returned to a successfully authenticated player
type LoginResult struct {
	Username         string `json:"username"`
	CampaignProgress int    `json:"campaign_progress"`
}

// ProgressResult reports the outcome of a campaign progress update
type ProgressResult struct {
	Username         string `json:"username"`
	CampaignProgress int    `json:"campaign_progress"`
	Accepted         bool   `json:"-"`
}
