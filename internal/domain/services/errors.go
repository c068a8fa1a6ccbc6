package services

import (
	"errors"

	"github.com/devilmonastery/sessiongate/internal/domain/entities"
	"github.com/devilmonastery/sessiongate/internal/domain/repositories"
)

// GetResolutionFailureReason returns a short reason string for a failed resolution.
// This is used for logging and redirect error codes in the transport layer.
func GetResolutionFailureReason(err error) string {
	switch {
	case errors.Is(err, entities.ErrInvalidProfile):
		return "invalid_profile"
	case errors.Is(err, repositories.ErrConflict):
		return "conflict"
	case errors.Is(err, repositories.ErrUserNotFound):
		return "user_not_found"
	default:
		return "resolution_failed"
	}
}

// IsUserNotFound checks if the error indicates user not found.
func IsUserNotFound(err error) bool {
	return errors.Is(err, repositories.ErrUserNotFound)
}
