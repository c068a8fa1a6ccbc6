// Package repotest holds behavioral tests shared by every UserRepository implementation.
package repotest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devilmonastery/sessiongate/internal/domain/entities"
	"github.com/devilmonastery/sessiongate/internal/domain/repositories"
)

// Factory returns an empty repository. It is called once per subtest.
type Factory func(t *testing.T) repositories.UserRepository

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newUser(externalID, email string) *entities.User {
	return &entities.User{
		ExternalID:    externalID,
		Email:         email,
		Name:          "Ada Lovelace",
		FirstName:     "Ada",
		LastName:      "Lovelace",
		Company:       entities.StringPtr("Analytical"),
		Locale:        entities.StringPtr("en-GB"),
		EmailVerified: true,
		Provider:      "okta",
		CreatedAt:     baseTime,
		LastLoginAt:   baseTime,
	}
}

// RunUserRepository exercises the UserRepository contract against the repository built by newRepo
func RunUserRepository(t *testing.T, newRepo Factory) {
	ctx := context.Background()

	t.Run("CreateAndLookup", func(t *testing.T) {
		repo := newRepo(t)
		u := newUser("ext-1", "a@x.com")
		require.NoError(t, repo.Create(ctx, u))
		require.NotEmpty(t, u.ID)

		byID, err := repo.GetByID(ctx, u.ID)
		require.NoError(t, err)
		byExt, err := repo.GetByExternalID(ctx, "ext-1", "okta")
		require.NoError(t, err)
		byEmail, err := repo.GetByEmail(ctx, "a@x.com")
		require.NoError(t, err)

		for _, got := range []*entities.User{byID, byExt, byEmail} {
			assert.Equal(t, u.ID, got.ID)
			assert.Equal(t, "ext-1", got.ExternalID)
			assert.Equal(t, "Ada Lovelace", got.Name)
			assert.Equal(t, "Analytical", got.CompanyOrEmpty())
			assert.Equal(t, "en-GB", got.LocaleOrEmpty())
			assert.True(t, got.EmailVerified)
			assert.True(t, baseTime.Equal(got.CreatedAt))
			assert.True(t, baseTime.Equal(got.LastLoginAt))
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.GetByID(ctx, "missing")
		assert.ErrorIs(t, err, repositories.ErrUserNotFound)
		_, err = repo.GetByEmail(ctx, "nobody@x.com")
		assert.ErrorIs(t, err, repositories.ErrUserNotFound)
		_, err = repo.GetByExternalID(ctx, "ext-1", "okta")
		assert.ErrorIs(t, err, repositories.ErrUserNotFound)
		_, err = repo.GetByExternalID(ctx, "", "okta")
		assert.ErrorIs(t, err, repositories.ErrUserNotFound)
	})

	t.Run("ExternalIDMatchesProviderToo", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, newUser("ext-1", "a@x.com")))

		_, err := repo.GetByExternalID(ctx, "ext-1", "google")
		assert.ErrorIs(t, err, repositories.ErrUserNotFound)

		other := newUser("ext-1", "b@x.com")
		other.Provider = "google"
		assert.NoError(t, repo.Create(ctx, other))
	})

	t.Run("EmailMatchIsExact", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, newUser("ext-1", "a@x.com")))
		_, err := repo.GetByEmail(ctx, "A@X.com")
		assert.ErrorIs(t, err, repositories.ErrUserNotFound)
	})

	t.Run("CreateConflicts", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, newUser("ext-1", "a@x.com")))

		err := repo.Create(ctx, newUser("ext-2", "a@x.com"))
		assert.ErrorIs(t, err, repositories.ErrConflict, "duplicate email")

		err = repo.Create(ctx, newUser("ext-1", "other@x.com"))
		assert.ErrorIs(t, err, repositories.ErrConflict, "duplicate provider identity")

		users, err := repo.List(ctx)
		require.NoError(t, err)
		assert.Len(t, users, 1)
	})

	t.Run("FailedCreateLeavesIDUnset", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, newUser("ext-1", "a@x.com")))

		dup := newUser("ext-2", "a@x.com")
		require.ErrorIs(t, repo.Create(ctx, dup), repositories.ErrConflict)
		assert.Empty(t, dup.ID)

		fresh := newUser("ext-3", "c@x.com")
		require.NoError(t, repo.Create(ctx, fresh))
		assert.NotEmpty(t, fresh.ID)
	})

	t.Run("EmailOnlyAccountsDoNotCollide", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, newUser("", "a@x.com")))
		require.NoError(t, repo.Create(ctx, newUser("", "b@x.com")))
	})

	t.Run("UpdateReplacesButKeepsCreatedAt", func(t *testing.T) {
		repo := newRepo(t)
		u := newUser("ext-1", "a@x.com")
		require.NoError(t, repo.Create(ctx, u))

		later := baseTime.Add(time.Hour)
		changed := u.Clone()
		changed.Email = "a2@x.com"
		changed.Name = "A2"
		changed.Company = nil
		changed.LastLoginAt = later
		changed.CreatedAt = later
		require.NoError(t, repo.Update(ctx, changed))
		assert.True(t, baseTime.Equal(changed.CreatedAt))

		got, err := repo.GetByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "a2@x.com", got.Email)
		assert.Equal(t, "A2", got.Name)
		assert.Nil(t, got.Company)
		assert.True(t, later.Equal(got.LastLoginAt))
		assert.True(t, baseTime.Equal(got.CreatedAt))

		_, err = repo.GetByEmail(ctx, "a@x.com")
		assert.ErrorIs(t, err, repositories.ErrUserNotFound, "old email must be released")
		_, err = repo.GetByEmail(ctx, "a2@x.com")
		assert.NoError(t, err)
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		repo := newRepo(t)
		u := newUser("ext-1", "a@x.com")
		u.ID = "does-not-exist"
		assert.ErrorIs(t, repo.Update(ctx, u), repositories.ErrUserNotFound)
	})

	t.Run("UpdateConflicts", func(t *testing.T) {
		repo := newRepo(t)
		a := newUser("ext-1", "a@x.com")
		b := newUser("ext-2", "b@x.com")
		require.NoError(t, repo.Create(ctx, a))
		require.NoError(t, repo.Create(ctx, b))

		stolen := b.Clone()
		stolen.Email = "a@x.com"
		assert.ErrorIs(t, repo.Update(ctx, stolen), repositories.ErrConflict)

		stolen = b.Clone()
		stolen.ExternalID = "ext-1"
		assert.ErrorIs(t, repo.Update(ctx, stolen), repositories.ErrConflict)

		got, err := repo.GetByID(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, "b@x.com", got.Email)
		assert.Equal(t, "ext-2", got.ExternalID)
	})

	t.Run("LinkEmailOnlyAccount", func(t *testing.T) {
		repo := newRepo(t)
		u := newUser("", "a@x.com")
		u.Provider = ""
		require.NoError(t, repo.Create(ctx, u))

		linked := u.Clone()
		linked.ExternalID = "ext-9"
		linked.Provider = "okta"
		require.NoError(t, repo.Update(ctx, linked))

		got, err := repo.GetByExternalID(ctx, "ext-9", "okta")
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
	})

	t.Run("ReturnsCopies", func(t *testing.T) {
		repo := newRepo(t)
		u := newUser("ext-1", "a@x.com")
		require.NoError(t, repo.Create(ctx, u))

		u.Name = "mutated after create"
		got, err := repo.GetByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "Ada Lovelace", got.Name)

		got.Name = "mutated after get"
		*got.Company = "mutated company"
		again, err := repo.GetByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "Ada Lovelace", again.Name)
		assert.Equal(t, "Analytical", again.CompanyOrEmpty())
	})

	t.Run("ProviderTokensStoredServerSide", func(t *testing.T) {
		repo := newRepo(t)
		u := newUser("ext-1", "a@x.com")
		u.ProviderAccessToken = "at"
		u.ProviderRefreshToken = "rt"
		require.NoError(t, repo.Create(ctx, u))

		got, err := repo.GetByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "at", got.ProviderAccessToken)
		assert.Equal(t, "rt", got.ProviderRefreshToken)
	})

	t.Run("ListOrderedByCreation", func(t *testing.T) {
		repo := newRepo(t)
		for i := 2; i >= 0; i-- {
			u := newUser(fmt.Sprintf("ext-%d", i), fmt.Sprintf("u%d@x.com", i))
			u.CreatedAt = baseTime.Add(time.Duration(i) * time.Minute)
			require.NoError(t, repo.Create(ctx, u))
		}

		users, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, users, 3)
		for i, u := range users {
			assert.Equal(t, fmt.Sprintf("u%d@x.com", i), u.Email)
		}
	})

	t.Run("ConcurrentCreateSameEmail", func(t *testing.T) {
		repo := newRepo(t)
		const n = 10

		var wg sync.WaitGroup
		errs := make([]error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = repo.Create(ctx, newUser(fmt.Sprintf("ext-%d", i), "same@x.com"))
			}(i)
		}
		wg.Wait()

		var ok, conflicts int
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case errors.Is(err, repositories.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, ok)
		assert.Equal(t, n-1, conflicts)
	})
}
