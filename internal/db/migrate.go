package db

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/ragyverse/apiserver/config"
	"github.com/ragyverse/apiserver/internal/db/migrations"
)

type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// Migrate applies the embedded migrations for driver in the given direction.
// Running with nothing to do is not an error.
func Migrate(db *sql.DB, driver string, dir Direction) error {
	instance, err := newMigrator(db, driver)
	if err != nil {
		return err
	}

	switch dir {
	case Up:
		err = instance.Up()
	case Down:
		err = instance.Down()
	default:
		return fmt.Errorf("unknown migration direction %q", dir)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate %s: %w", dir, err)
	}
	return nil
}

func newMigrator(db *sql.DB, driver string) (*migrate.Migrate, error) {
	var (
		target database.Driver
		files  fs.FS
		sub    string
		err    error
	)

	switch driver {
	case config.DriverSQLite:
		target, err = sqlite.WithInstance(db, &sqlite.Config{})
		files, sub = migrations.SQLite, "sqlite"
	case config.DriverPostgres, "":
		target, err = postgres.WithInstance(db, &postgres.Config{})
		files, sub = migrations.Postgres, "postgres"
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("init migration driver: %w", err)
	}

	source, err := iofs.New(files, sub)
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}

	instance, err := migrate.NewWithInstance("iofs", source, driver, target)
	if err != nil {
		return nil, fmt.Errorf("init migrator: %w", err)
	}
	return instance, nil
}
