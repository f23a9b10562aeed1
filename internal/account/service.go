package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/arcade-backend/internal/domain"
	"github.com/arcade-backend/internal/store"
	"golang.org/x/crypto/bcrypt"
)

const accountTable = "accounts"

// Service handles player registration and login. Credentials are stored
// as bcrypt hashes, never as plaintext.
type Service struct {
	store  store.RecordStore
	logger *slog.Logger
}

// NewService creates an account service over the account table
func NewService(st store.RecordStore, logger *slog.Logger) *Service {
	return &Service{store: st, logger: logger}
}

// Register creates a new account with campaign progress 0. A taken
// username yields ErrUserExists.
func (s *Service) Register(ctx context.Context, username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	now := time.Now().Unix()
	acct := domain.Account{
		Username:         username,
		PasswordHash:     string(hash),
		CreatedAt:        now,
		LastLogin:        now,
		CampaignProgress: 0,
	}

	value, err := json.Marshal(acct)
	if err != nil {
		return fmt.Errorf("marshaling account: %w", err)
	}

	if err := s.store.PutIfAbsent(ctx, accountTable, username, value); err != nil {
		if errors.Is(err, store.ErrRecordExists) {
			return domain.ErrUserExists
		}
		return fmt.Errorf("creating account: %w", err)
	}
	return nil
}

// Login verifies credentials and refreshes last_login. An unknown
// username and a wrong password both yield ErrInvalidCredentials so the
// response does not reveal which one was wrong.
func (s *Service) Login(ctx context.Context, username, password string) (*domain.LoginResult, error) {
	value, err := s.store.Get(ctx, accountTable, username)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("getting account: %w", err)
	}

	var acct domain.Account
	if err := json.Unmarshal(value, &acct); err != nil {
		return nil, fmt.Errorf("unmarshaling account: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)) != nil {
		return nil, domain.ErrInvalidCredentials
	}

	err = s.store.Update(ctx, accountTable, username, func(current []byte) ([]byte, error) {
		var cur domain.Account
		if err := json.Unmarshal(current, &cur); err != nil {
			return nil, fmt.Errorf("unmarshaling account: %w", err)
		}
		cur.LastLogin = time.Now().Unix()
		return json.Marshal(cur)
	})
	if err != nil {
		// Login still succeeds; the timestamp is informational.
		s.logger.Warn("failed to update last_login", "username", username, "error", err)
	}

	return &domain.LoginResult{
		Username:         username,
		CampaignProgress: acct.CampaignProgress,
	}, nil
}
