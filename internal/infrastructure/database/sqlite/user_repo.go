package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/devilmonastery/sessiongate/internal/domain/entities"
	"github.com/devilmonastery/sessiongate/internal/domain/repositories"
	"github.com/devilmonastery/sessiongate/internal/pkg/idgen"
	"github.com/devilmonastery/sessiongate/internal/pkg/metrics"
)

const repoName = "sqlite_user"

const userColumns = `id, external_id, email, name, first_name, last_name, company, locale,
	email_verified, provider, provider_access_token, provider_refresh_token,
	created_at, last_login_at`

// UserRepository implements the UserRepository interface for SQLite
type UserRepository struct {
	db  *sqlx.DB
	log *slog.Logger
}

// NewUserRepository creates a new SQLite user repository
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{
		db:  db,
		log: slog.Default().With(slog.String("repo", repoName)),
	}
}

// userRow represents a user as stored in the database
type userRow struct {
	ID                   string         `db:"id"`
	ExternalID           string         `db:"external_id"`
	Email                string         `db:"email"`
	Name                 string         `db:"name"`
	FirstName            string         `db:"first_name"`
	LastName             string         `db:"last_name"`
	Company              sql.NullString `db:"company"`
	Locale               sql.NullString `db:"locale"`
	EmailVerified        bool           `db:"email_verified"`
	Provider             string         `db:"provider"`
	ProviderAccessToken  string         `db:"provider_access_token"`
	ProviderRefreshToken string         `db:"provider_refresh_token"`
	CreatedAt            time.Time      `db:"created_at"`
	LastLoginAt          time.Time      `db:"last_login_at"`
}

// toEntity converts a userRow to a domain entity
func (r *userRow) toEntity() *entities.User {
	user := &entities.User{
		ID:                   r.ID,
		ExternalID:           r.ExternalID,
		Email:                r.Email,
		Name:                 r.Name,
		FirstName:            r.FirstName,
		LastName:             r.LastName,
		EmailVerified:        r.EmailVerified,
		Provider:             r.Provider,
		ProviderAccessToken:  r.ProviderAccessToken,
		ProviderRefreshToken: r.ProviderRefreshToken,
		CreatedAt:            r.CreatedAt.UTC(),
		LastLoginAt:          r.LastLoginAt.UTC(),
	}
	if r.Company.Valid {
		user.Company = &r.Company.String
	}
	if r.Locale.Valid {
		user.Locale = &r.Locale.String
	}
	return user
}

// userRowFromEntity converts a domain entity to a userRow
func userRowFromEntity(user *entities.User) *userRow {
	row := &userRow{
		ID:                   user.ID,
		ExternalID:           user.ExternalID,
		Email:                user.Email,
		Name:                 user.Name,
		FirstName:            user.FirstName,
		LastName:             user.LastName,
		EmailVerified:        user.EmailVerified,
		Provider:             user.Provider,
		ProviderAccessToken:  user.ProviderAccessToken,
		ProviderRefreshToken: user.ProviderRefreshToken,
		CreatedAt:            user.CreatedAt.UTC(),
		LastLoginAt:          user.LastLoginAt.UTC(),
	}
	if user.Company != nil {
		row.Company = sql.NullString{String: *user.Company, Valid: true}
	}
	if user.Locale != nil {
		row.Locale = sql.NullString{String: *user.Locale, Valid: true}
	}
	return row
}

// translateError maps unique index violations onto ErrConflict
func translateError(op string, err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) &&
		(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
		return fmt.Errorf("failed to %s user: %v: %w", op, sqliteErr, repositories.ErrConflict)
	}
	return fmt.Errorf("failed to %s user: %w", op, err)
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *entities.User) error {
	start := time.Now()
	var err error
	defer func() {
		metrics.RecordDBOperation(repoName, "create", time.Since(start), 1, err)
	}()

	row := userRowFromEntity(user)
	if row.ID == "" {
		row.ID = idgen.GenerateID()
	}

	r.log.Debug("creating user",
		slog.String("id", row.ID),
		slog.String("provider", row.Provider))

	query := `INSERT INTO users (` + userColumns + `) VALUES (
			:id, :external_id, :email, :name, :first_name, :last_name, :company, :locale,
			:email_verified, :provider, :provider_access_token, :provider_refresh_token,
			:created_at, :last_login_at
		)`

	if _, err = r.db.NamedExecContext(ctx, query, row); err != nil {
		err = translateError("create", err)
		return err
	}
	user.ID = row.ID
	return nil
}

func (r *UserRepository) getOne(ctx context.Context, op, where string, args ...any) (*entities.User, error) {
	start := time.Now()
	var err error
	var rowCount int64
	defer func() {
		metrics.RecordDBOperation(repoName, op, time.Since(start), rowCount, err)
	}()

	var row userRow
	err = r.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE `+where, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = repositories.ErrUserNotFound
			return nil, err
		}
		err = fmt.Errorf("failed to get user: %w", err)
		return nil, err
	}
	rowCount = 1
	return row.toEntity(), nil
}

// GetByID retrieves a user by their ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*entities.User, error) {
	return r.getOne(ctx, "get_by_id", `id = ?`, id)
}

// GetByExternalID retrieves a user by provider subject
func (r *UserRepository) GetByExternalID(ctx context.Context, externalID, provider string) (*entities.User, error) {
	if externalID == "" {
		metrics.RecordDBOperation(repoName, "get_by_external_id", 0, 0, repositories.ErrUserNotFound)
		return nil, repositories.ErrUserNotFound
	}
	return r.getOne(ctx, "get_by_external_id", `external_id = ? AND provider = ?`, externalID, provider)
}

// GetByEmail retrieves a user by email address
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*entities.User, error) {
	return r.getOne(ctx, "get_by_email", `email = ?`, email)
}

// Update replaces every mutable column of an existing user; created_at is left untouched
func (r *UserRepository) Update(ctx context.Context, user *entities.User) error {
	start := time.Now()
	var err error
	var rowCount int64
	defer func() {
		metrics.RecordDBOperation(repoName, "update", time.Since(start), rowCount, err)
	}()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		err = fmt.Errorf("failed to begin transaction: %w", err)
		return err
	}
	defer tx.Rollback()

	query := `UPDATE users SET
			external_id = :external_id,
			email = :email,
			name = :name,
			first_name = :first_name,
			last_name = :last_name,
			company = :company,
			locale = :locale,
			email_verified = :email_verified,
			provider = :provider,
			provider_access_token = :provider_access_token,
			provider_refresh_token = :provider_refresh_token,
			last_login_at = :last_login_at
		WHERE id = :id`

	result, err := tx.NamedExecContext(ctx, query, userRowFromEntity(user))
	if err != nil {
		err = translateError("update", err)
		return err
	}
	rowCount, err = result.RowsAffected()
	if err != nil {
		err = fmt.Errorf("failed to get rows affected: %w", err)
		return err
	}
	if rowCount == 0 {
		err = repositories.ErrUserNotFound
		return err
	}

	var createdAt time.Time
	if err = tx.GetContext(ctx, &createdAt, `SELECT created_at FROM users WHERE id = ?`, user.ID); err != nil {
		err = fmt.Errorf("failed to read back user: %w", err)
		return err
	}
	if err = tx.Commit(); err != nil {
		err = fmt.Errorf("failed to commit update: %w", err)
		return err
	}

	user.CreatedAt = createdAt.UTC()
	return nil
}

// List returns all users ordered by creation time
func (r *UserRepository) List(ctx context.Context) ([]*entities.User, error) {
	start := time.Now()
	var err error
	var rowCount int64
	defer func() {
		metrics.RecordDBOperation(repoName, "list", time.Since(start), rowCount, err)
	}()

	var rows []userRow
	if err = r.db.SelectContext(ctx, &rows, `SELECT `+userColumns+` FROM users ORDER BY created_at, id`); err != nil {
		err = fmt.Errorf("failed to list users: %w", err)
		return nil, err
	}

	users := make([]*entities.User, len(rows))
	for i := range rows {
		users[i] = rows[i].toEntity()
	}
	rowCount = int64(len(users))
	metrics.StoredUsers.WithLabelValues(repoName).Set(float64(rowCount))
	return users, nil
}

// HealthCheck pings the database
func (r *UserRepository) HealthCheck(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

var (
	_ repositories.UserRepository = (*UserRepository)(nil)
	_ repositories.HealthChecker  = (*UserRepository)(nil)
)
