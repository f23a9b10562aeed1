package domain

import "errors"

// Domain errors
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrLevelSkip          = errors.New("cannot skip levels")
	ErrMissingFields      = errors.New("missing required fields")
	ErrSessionNotFound    = errors.New("game session not found")
	ErrSessionFinished    = errors.New("game session already finished")
	ErrInvalidResult      = errors.New("invalid game result")
	ErrUnknownGame        = errors.New("unknown game")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrInternalError      = errors.New("internal server error")
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrUnknownGame)
}
