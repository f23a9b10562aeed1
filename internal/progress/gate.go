package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/arcade-backend/internal/domain"
	"github.com/arcade-backend/internal/store"
)

const accountTable = "accounts"

// Gate enforces the campaign progression rule: a player advances at most
// one level per update, and the stored level never decreases.
type Gate struct {
	store  store.RecordStore
	logger *slog.Logger
}

// NewGate creates a progression gate over the account table
func NewGate(st store.RecordStore, logger *slog.Logger) *Gate {
	return &Gate{store: st, logger: logger}
}

// Progress returns the stored campaign level for a user
func (g *Gate) Progress(ctx context.Context, username string) (int, error) {
	value, err := g.store.Get(ctx, accountTable, username)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return 0, domain.ErrUserNotFound
		}
		return 0, fmt.Errorf("getting account: %w", err)
	}

	var acct domain.Account
	if err := json.Unmarshal(value, &acct); err != nil {
		return 0, fmt.Errorf("unmarshaling account: %w", err)
	}
	return acct.CampaignProgress, nil
}

// Advance applies a requested campaign level to a user's account.
//
// A request for more than one level beyond the stored value is rejected
// with ErrLevelSkip and no write. A request at or below the stored value
// is an accepted no-op (replaying a finished level is not an error). Only
// a strictly advancing request mutates the record; the write runs under
// the store's version check, so a concurrent advance cannot be clobbered.
func (g *Gate) Advance(ctx context.Context, username string, level int) (*domain.ProgressResult, error) {
	result := &domain.ProgressResult{Username: username}

	err := g.store.Update(ctx, accountTable, username, func(current []byte) ([]byte, error) {
		var acct domain.Account
		if err := json.Unmarshal(current, &acct); err != nil {
			return nil, fmt.Errorf("unmarshaling account: %w", err)
		}

		result.CampaignProgress = acct.CampaignProgress
		result.Accepted = false

		if level > acct.CampaignProgress+1 {
			return nil, domain.ErrLevelSkip
		}
		if level <= acct.CampaignProgress {
			return nil, store.ErrNoChange
		}

		acct.CampaignProgress = level
		acct.LastUpdated = time.Now().Unix()
		result.CampaignProgress = level
		result.Accepted = true
		return json.Marshal(acct)
	})
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		if errors.Is(err, domain.ErrLevelSkip) {
			// The caller reports the stored level alongside the rejection.
			return result, err
		}
		return nil, err
	}
	return result, nil
}
