package domain

import "errors"

// Domain errors - use these for consistent error handling
var (
	ErrUserNotFound    = errors.New("user not found")
	ErrTeamNotFound    = errors.New("team not found")
	ErrUserWithoutTeam = errors.New("user is not part of any team")

	ErrTokenExpired = errors.New("token has expired")
	ErrTokenInvalid = errors.New("invalid token")
)
