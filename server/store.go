package main

import (
	"fmt"
	"log/slog"

	"github.com/devilmonastery/sessiongate/internal/config"
	"github.com/devilmonastery/sessiongate/internal/domain/repositories"
	"github.com/devilmonastery/sessiongate/internal/infrastructure/database/memory"
	"github.com/devilmonastery/sessiongate/internal/infrastructure/database/sqlite"
	"github.com/devilmonastery/sessiongate/migrations"
)

// store bundles the configured identity store backend
type store struct {
	Users  repositories.UserRepository
	Health repositories.HealthChecker
	close  func() error
}

// Close releases the backend's resources
func (s *store) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// openStore builds the backend named by store.backend, migrating sqlite schemas on open
func openStore(cfg *config.Config) (*store, error) {
	switch cfg.Store.Backend {
	case config.StoreSQLite:
		conn, err := sqlite.NewConnection(cfg.Store.DSN)
		if err != nil {
			return nil, err
		}
		if err := conn.RunMigrations(migrations.FS); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to run sqlite migrations: %w", err)
		}
		repo := sqlite.NewUserRepository(conn.DB)
		slog.Info("Identity store ready", "backend", config.StoreSQLite, "persistent", cfg.Store.DSN != "")
		return &store{Users: repo, Health: repo, close: conn.Close}, nil

	default:
		repo := memory.NewUserRepository()
		slog.Info("Identity store ready", "backend", config.StoreMemory)
		return &store{Users: repo, Health: repo}, nil
	}
}

func forceMigration(cfg *config.Config, version int) error {
	if cfg.Store.Backend != config.StoreSQLite {
		return fmt.Errorf("--force-migration needs store.backend %q", config.StoreSQLite)
	}
	conn, err := sqlite.NewConnection(cfg.Store.DSN)
	if err != nil {
		return err
	}
	defer conn.Close()

	slog.Info("Force setting migration version", "version", version)
	if err := conn.ForceMigrationVersion(migrations.FS, version); err != nil {
		return err
	}
	slog.Info("Migration version forced, exiting", "version", version)
	return nil
}
