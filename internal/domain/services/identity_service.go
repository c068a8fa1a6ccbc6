package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/devilmonastery/sessiongate/internal/domain/entities"
	"github.com/devilmonastery/sessiongate/internal/domain/repositories"
	"github.com/devilmonastery/sessiongate/internal/pkg/idgen"
	"github.com/devilmonastery/sessiongate/internal/pkg/keylock"
	"github.com/devilmonastery/sessiongate/internal/pkg/logger"
	"github.com/devilmonastery/sessiongate/internal/pkg/metrics"
)

// Resolution outcomes, used as log attributes and metric labels
const (
	OutcomeUpdated = "updated"
	OutcomeLinked  = "linked"
	OutcomeCreated = "created"
	OutcomeFailed  = "failed"
)

// IdentityService maps external logins onto local users
type IdentityService struct {
	userRepo repositories.UserRepository
	locks    *keylock.Locker
	now      func() time.Time
	logger   *slog.Logger
}

// IdentityOption configures an IdentityService
type IdentityOption func(*IdentityService)

// WithClock overrides the time source used for CreatedAt and LastLoginAt
func WithClock(now func() time.Time) IdentityOption {
	return func(s *IdentityService) { s.now = now }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) IdentityOption {
	return func(s *IdentityService) { s.logger = logger }
}

// NewIdentityService creates a new identity service
func NewIdentityService(userRepo repositories.UserRepository, opts ...IdentityOption) *IdentityService {
	s := &IdentityService{
		userRepo: userRepo,
		locks:    keylock.New(),
		now:      time.Now,
		logger:   slog.Default().With(slog.String("service", "identity")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// maxResolveAttempts bounds how often a resolution restarts after a concurrent login moved the matched user
const maxResolveAttempts = 3

// errStaleMatch means the user found by a lookup changed before its lock was taken
var errStaleMatch = errors.New("matched user changed concurrently")

func lockKeys(p *entities.Profile) []string {
	return []string{"ext:" + p.ProviderKey(), "email:" + p.Email}
}

func userLockKey(id string) string {
	return "id:" + id
}

// Resolve finds or creates the user for a normalized provider profile.
//
// Lookup order is (external id, provider), then email, then create. The email
// path links a pre-existing account to the provider identity. Both keys are
// locked for the whole read-modify-write so concurrent callbacks for the same
// person cannot create duplicates. A matched user is additionally locked by id
// and re-read, since another login with different keys can reach the same user.
func (s *IdentityService) Resolve(ctx context.Context, profile *entities.Profile) (*entities.User, error) {
	start := time.Now()
	provider := ""
	if profile != nil {
		provider = profile.Provider
	}

	outcome := OutcomeFailed
	defer func() {
		metrics.RecordResolution(provider, outcome, time.Since(start))
	}()

	if err := profile.Validate(); err != nil {
		s.logger.Warn("rejected identity profile",
			slog.String("provider", provider),
			slog.String("error", err.Error()))
		return nil, err
	}

	unlock := s.locks.Lock(lockKeys(profile)...)
	defer unlock()

	log := logger.WithProvider(s.logger, profile.Provider, profile.ExternalID)

	user, outcome, err := s.resolveLocked(ctx, profile)
	if err != nil {
		outcome = OutcomeFailed
		log.Error("identity resolution failed", slog.String("error", err.Error()))
		return nil, err
	}

	logger.WithUser(log, user.ID).Info("identity resolved", slog.String("outcome", outcome))
	return user, nil
}

func (s *IdentityService) resolveLocked(ctx context.Context, p *entities.Profile) (*entities.User, string, error) {
	for attempt := 1; ; attempt++ {
		user, outcome, err := s.resolveOnce(ctx, p)
		if !errors.Is(err, errStaleMatch) {
			return user, outcome, err
		}
		if attempt == maxResolveAttempts {
			return nil, "", fmt.Errorf("%w: %v", repositories.ErrConflict, err)
		}
		s.logger.Debug("matched user changed, retrying resolution", slog.Int("attempt", attempt))
	}
}

// lockUser takes the per-user lock and reloads the record. It fails with errStaleMatch
// when the stored user no longer satisfies the lookup that found it.
// Callers already hold the profile's key locks; id locks are always taken last.
func (s *IdentityService) lockUser(ctx context.Context, id string, stillMatches func(*entities.User) bool) (*entities.User, func(), error) {
	unlock := s.locks.Lock(userLockKey(id))
	user, err := s.userRepo.GetByID(ctx, id)
	switch {
	case errors.Is(err, repositories.ErrUserNotFound):
		unlock()
		return nil, nil, fmt.Errorf("user %s: %w", id, errStaleMatch)
	case err != nil:
		unlock()
		return nil, nil, fmt.Errorf("failed to reload user %s: %w", id, err)
	case !stillMatches(user):
		unlock()
		return nil, nil, fmt.Errorf("user %s: %w", id, errStaleMatch)
	}
	return user, unlock, nil
}

func (s *IdentityService) resolveOnce(ctx context.Context, p *entities.Profile) (*entities.User, string, error) {
	now := s.now()

	found, err := s.userRepo.GetByExternalID(ctx, p.ExternalID, p.Provider)
	switch {
	case err == nil:
		user, unlock, err := s.lockUser(ctx, found.ID, func(u *entities.User) bool {
			return u.ExternalID == p.ExternalID && u.Provider == p.Provider
		})
		if err != nil {
			return nil, "", err
		}
		defer unlock()

		user.Email = p.Email
		applyProfile(user, p)
		user.LastLoginAt = now
		if err := s.userRepo.Update(ctx, user); err != nil {
			return nil, "", fmt.Errorf("failed to update user %s: %w", user.ID, err)
		}
		return user, OutcomeUpdated, nil
	case !errors.Is(err, repositories.ErrUserNotFound):
		return nil, "", fmt.Errorf("failed to look up user by external id: %w", err)
	}

	found, err = s.userRepo.GetByEmail(ctx, p.Email)
	switch {
	case err == nil:
		user, unlock, err := s.lockUser(ctx, found.ID, func(u *entities.User) bool {
			return u.Email == p.Email
		})
		if err != nil {
			return nil, "", err
		}
		defer unlock()

		s.logger.Info("linking existing account to provider identity",
			slog.String("user_id", user.ID),
			slog.String("previous_provider", user.Provider),
			slog.String("provider", p.Provider))
		user.ExternalID = p.ExternalID
		user.Provider = p.Provider
		applyProfile(user, p)
		user.LastLoginAt = now
		if err := s.userRepo.Update(ctx, user); err != nil {
			return nil, "", fmt.Errorf("failed to link user %s: %w", user.ID, err)
		}
		return user, OutcomeLinked, nil
	case !errors.Is(err, repositories.ErrUserNotFound):
		return nil, "", fmt.Errorf("failed to look up user by email: %w", err)
	}

	user := &entities.User{
		ID:          idgen.GenerateID(),
		ExternalID:  p.ExternalID,
		Email:       p.Email,
		Provider:    p.Provider,
		CreatedAt:   now,
		LastLoginAt: now,
	}
	applyProfile(user, p)
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, "", fmt.Errorf("failed to create user: %w", err)
	}
	return user, OutcomeCreated, nil
}

// applyProfile copies the descriptive fields that every resolution path refreshes
func applyProfile(u *entities.User, p *entities.Profile) {
	u.Name = p.Name
	u.FirstName = p.FirstName
	u.LastName = p.LastName
	u.Company = cloneString(p.Company)
	u.Locale = cloneString(p.Locale)
	u.EmailVerified = p.EmailVerified

	// Only overwrite stored provider credentials when the adapter captured new ones
	if p.AccessToken != "" {
		u.ProviderAccessToken = p.AccessToken
	}
	if p.RefreshToken != "" {
		u.ProviderRefreshToken = p.RefreshToken
	}
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// GetUserByID returns the stored user for a session subject
func (s *IdentityService) GetUserByID(ctx context.Context, id string) (*entities.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// ListUsers returns every stored user
func (s *IdentityService) ListUsers(ctx context.Context) ([]*entities.User, error) {
	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}
