// Package migrations applies the schema migration files shipped under
// migrations/sql to the settings database.
package migrations

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/rs/zerolog"
)

// RunMigrations applies all pending migrations from dir to db. A database
// that is already current is not an error.
func RunMigrations(db *sql.DB, dir string, logger zerolog.Logger) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite3 migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+dir, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("initialize migrations: %w", err)
	}

	logger.Info().Str("migrationsPath", dir).Msg("Running database migrations")

	err = m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		logger.Info().Msg("Database is already up to date")
	case err != nil:
		return fmt.Errorf("apply migrations: %w", err)
	default:
		logger.Info().Msg("Database migrations applied")
	}
	return nil
}
