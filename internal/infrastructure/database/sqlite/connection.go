package sqlite

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Connection manages a SQLite database handle
type Connection struct {
	DB *sqlx.DB
}

// MemoryDSN returns a DSN for a private in-memory database.
// Every call names a fresh database so separate connections never share rows.
func MemoryDSN() string {
	return fmt.Sprintf("file:sessiongate-%s?mode=memory&cache=shared", uuid.NewString())
}

// NewConnection opens a SQLite database. An empty dsn selects a private in-memory database.
func NewConnection(dsn string) (*Connection, error) {
	if dsn == "" {
		dsn = MemoryDSN()
	}

	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// A single connection keeps the in-memory database alive and serializes writers
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Connection{DB: db}, nil
}

// Close closes the database connection
func (c *Connection) Close() error {
	return c.DB.Close()
}

func (c *Connection) migrator(migrationFS embed.FS) (*migrate.Migrate, error) {
	sqliteMigrations, err := fs.Sub(migrationFS, "sqlite")
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite migrations sub-filesystem: %w", err)
	}

	source, err := iofs.New(sqliteMigrations, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(c.DB.DB, &sqlite3.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

// RunMigrations applies every pending migration under the "sqlite" directory of migrationFS
func (c *Connection) RunMigrations(migrationFS embed.FS) error {
	m, err := c.migrator(migrationFS)
	if err != nil {
		return err
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	if dirty {
		// Migrations only create missing objects, so re-running from the previous version is safe
		prev := int(version) - 1
		if prev < 1 {
			prev = database.NilVersion
		}
		if err := m.Force(prev); err != nil {
			return fmt.Errorf("failed to force clean dirty migration: %w", err)
		}
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// ForceMigrationVersion marks the schema as being at version without running anything.
// Used to recover from a dirty migration by hand.
func (c *Connection) ForceMigrationVersion(migrationFS embed.FS, version int) error {
	m, err := c.migrator(migrationFS)
	if err != nil {
		return err
	}
	if err := m.Force(version); err != nil {
		return fmt.Errorf("failed to force migration version %d: %w", version, err)
	}
	return nil
}
