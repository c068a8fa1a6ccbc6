package repositories

import (
	"context"

	"github.com/devilmonastery/sessiongate/internal/domain/entities"
)

// UserRepository defines the interface for user data access.
// Lookups return ErrUserNotFound when nothing matches.
type UserRepository interface {
	// Create inserts a new user, generating its ID if empty.
	// Returns ErrConflict if the email or a non-empty (external id, provider) pair is taken.
	Create(ctx context.Context, user *entities.User) error

	// GetByID retrieves a user by their ID
	GetByID(ctx context.Context, id string) (*entities.User, error)

	// GetByExternalID retrieves a user by provider subject, matching both fields exactly
	GetByExternalID(ctx context.Context, externalID, provider string) (*entities.User, error)

	// GetByEmail retrieves a user by their email address (exact match)
	GetByEmail(ctx context.Context, email string) (*entities.User, error)

	// Update replaces an existing user by ID. CreatedAt is preserved.
	// Returns ErrUserNotFound if the ID is absent and ErrConflict if the new
	// email or provider identity belongs to another user.
	Update(ctx context.Context, user *entities.User) error

	// List returns all users ordered by creation time
	List(ctx context.Context) ([]*entities.User, error)
}

// HealthChecker defines health check interface for repositories
type HealthChecker interface {
	// HealthCheck performs a health check on the repository
	HealthCheck(ctx context.Context) error
}
