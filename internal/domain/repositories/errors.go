package repositories

import "errors"

// Domain-specific repository errors
var (
	// ErrUserNotFound is returned when a user cannot be found
	ErrUserNotFound = errors.New("user not found")

	// ErrConflict is returned when a write would break a uniqueness rule:
	// one user per (external id, provider) and one user per email
	ErrConflict = errors.New("user already exists")
)
