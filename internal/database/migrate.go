package database

import (
	"database/sql"
	"embed"
	"errors"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/mdobak/go-xerrors"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrate applies every pending migration. The migrate instance is not closed
// because that would close db as well.
func Migrate(db *sql.DB, log *slog.Logger) error {
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return xerrors.New(err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return xerrors.New(err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return xerrors.New(err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info("Database schema is up to date")
			return nil
		}
		return xerrors.New(err)
	}

	version, _, _ := m.Version()
	log.Info("Database migrated", "version", version)
	return nil
}
