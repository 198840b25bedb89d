package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"ticket-drop-alerts/internal/config"
)

// Migrate applies pending schema migrations. A database already at the latest
// version is not an error.
func Migrate(cfg config.DatabaseConfig) error {
	if cfg.DSN == "" {
		return ErrNotConfigured
	}
	if cfg.MigrationsPath == "" {
		return nil
	}

	m, err := migrate.New("file://"+cfg.MigrationsPath, migrateURL(cfg.DSN))
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// migrateURL maps standard postgres URLs onto the registered pgx/v5 driver.
func migrateURL(dsn string) string {
	switch {
	case strings.HasPrefix(dsn, "postgresql://"):
		return "pgx5://" + strings.TrimPrefix(dsn, "postgresql://")
	case strings.HasPrefix(dsn, "postgres://"):
		return "pgx5://" + strings.TrimPrefix(dsn, "postgres://")
	default:
		return dsn
	}
}
