package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/devilmonastery/sessiongate/internal/domain/repositories"
	"github.com/devilmonastery/sessiongate/internal/domain/repositories/repotest"
)

func TestUserRepository(t *testing.T) {
	repotest.RunUserRepository(t, func(t *testing.T) repositories.UserRepository {
		return NewUserRepository()
	})
}

func TestUserRepository_CanceledContext(t *testing.T) {
	repo := NewUserRepository()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.GetByEmail(ctx, "a@x.com")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, repo.HealthCheck(ctx), context.Canceled)
}
