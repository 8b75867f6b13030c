package user

import "errors"

// Module errors.
var (
	ErrUserNotFound      = errors.New("User not found")
	ErrEmailConflict     = errors.New("Email already registered")
	ErrPushTokenLimit    = errors.New("Cannot store more than 10 push tokens")
	ErrPushTokenRequired = errors.New("Push token is required")
)
