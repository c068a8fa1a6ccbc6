// Package memory holds the in-process identity store.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/devilmonastery/sessiongate/internal/domain/entities"
	"github.com/devilmonastery/sessiongate/internal/domain/repositories"
	"github.com/devilmonastery/sessiongate/internal/pkg/idgen"
	"github.com/devilmonastery/sessiongate/internal/pkg/metrics"
)

const repoName = "memory_user"

// UserRepository implements repositories.UserRepository with maps guarded by a RWMutex.
// Records are cloned on the way in and out.
type UserRepository struct {
	mu      sync.RWMutex
	byID    map[string]*entities.User
	byExt   map[string]string // provider+"\x00"+external id -> user id
	byEmail map[string]string // email -> user id
	log     *slog.Logger
}

// NewUserRepository creates an empty in-memory user repository
func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:    make(map[string]*entities.User),
		byExt:   make(map[string]string),
		byEmail: make(map[string]string),
		log:     slog.Default().With(slog.String("repo", repoName)),
	}
}

func extKey(externalID, provider string) string {
	return provider + "\x00" + externalID
}

// checkUnique reports ErrConflict if email or the provider identity is owned by a user other than selfID.
// Caller holds the write lock.
func (r *UserRepository) checkUnique(user *entities.User, selfID string) error {
	if owner, ok := r.byEmail[user.Email]; ok && owner != selfID {
		return fmt.Errorf("email %q: %w", user.Email, repositories.ErrConflict)
	}
	if user.HasExternalIdentity() {
		if owner, ok := r.byExt[extKey(user.ExternalID, user.Provider)]; ok && owner != selfID {
			return fmt.Errorf("identity %s: %w", user.ProviderKey(), repositories.ErrConflict)
		}
	}
	return nil
}

func (r *UserRepository) index(user *entities.User) {
	r.byEmail[user.Email] = user.ID
	if user.HasExternalIdentity() {
		r.byExt[extKey(user.ExternalID, user.Provider)] = user.ID
	}
}

func (r *UserRepository) unindex(user *entities.User) {
	delete(r.byEmail, user.Email)
	if user.HasExternalIdentity() {
		delete(r.byExt, extKey(user.ExternalID, user.Provider))
	}
}

// Create inserts a new user
func (r *UserRepository) Create(ctx context.Context, user *entities.User) error {
	start := time.Now()
	var err error
	defer func() {
		metrics.RecordDBOperation(repoName, "create", time.Since(start), 1, err)
	}()

	if err = ctx.Err(); err != nil {
		return err
	}
	// The caller only sees a generated id once the user is stored
	stored := user.Clone()
	if stored.ID == "" {
		stored.ID = idgen.GenerateID()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[stored.ID]; exists {
		err = fmt.Errorf("id %s: %w", stored.ID, repositories.ErrConflict)
		return err
	}
	if err = r.checkUnique(stored, stored.ID); err != nil {
		return err
	}

	r.byID[stored.ID] = stored
	r.index(stored)
	user.ID = stored.ID
	metrics.StoredUsers.WithLabelValues(repoName).Set(float64(len(r.byID)))

	r.log.Debug("created user",
		slog.String("id", stored.ID),
		slog.String("provider", stored.Provider))
	return nil
}

// GetByID retrieves a user by their ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*entities.User, error) {
	return r.get(ctx, "get_by_id", func() string { return id })
}

// GetByExternalID retrieves a user by provider subject
func (r *UserRepository) GetByExternalID(ctx context.Context, externalID, provider string) (*entities.User, error) {
	return r.get(ctx, "get_by_external_id", func() string {
		if externalID == "" {
			return ""
		}
		return r.byExt[extKey(externalID, provider)]
	})
}

// GetByEmail retrieves a user by email address
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*entities.User, error) {
	return r.get(ctx, "get_by_email", func() string { return r.byEmail[email] })
}

// get resolves an id under the read lock and returns a copy of the record
func (r *UserRepository) get(ctx context.Context, op string, lookup func() string) (*entities.User, error) {
	start := time.Now()
	var err error
	var rowCount int64
	defer func() {
		metrics.RecordDBOperation(repoName, op, time.Since(start), rowCount, err)
	}()

	if err = ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.byID[lookup()]
	if !ok {
		err = repositories.ErrUserNotFound
		return nil, err
	}
	rowCount = 1
	return user.Clone(), nil
}

// Update replaces a stored user
func (r *UserRepository) Update(ctx context.Context, user *entities.User) error {
	start := time.Now()
	var err error
	defer func() {
		metrics.RecordDBOperation(repoName, "update", time.Since(start), 1, err)
	}()

	if err = ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byID[user.ID]
	if !ok {
		err = repositories.ErrUserNotFound
		return err
	}
	if err = r.checkUnique(user, user.ID); err != nil {
		return err
	}

	stored := user.Clone()
	stored.CreatedAt = current.CreatedAt

	r.unindex(current)
	r.byID[stored.ID] = stored
	r.index(stored)

	user.CreatedAt = current.CreatedAt
	return nil
}

// List returns all users ordered by creation time, then id
func (r *UserRepository) List(ctx context.Context) ([]*entities.User, error) {
	start := time.Now()
	var err error
	var rowCount int64
	defer func() {
		metrics.RecordDBOperation(repoName, "list", time.Since(start), rowCount, err)
	}()

	if err = ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	users := make([]*entities.User, 0, len(r.byID))
	for _, u := range r.byID {
		users = append(users, u.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID < users[j].ID
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	rowCount = int64(len(users))
	return users, nil
}

// HealthCheck always succeeds for the in-memory store
func (r *UserRepository) HealthCheck(ctx context.Context) error {
	return ctx.Err()
}

var (
	_ repositories.UserRepository = (*UserRepository)(nil)
	_ repositories.HealthChecker  = (*UserRepository)(nil)
)
