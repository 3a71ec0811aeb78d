// Package migrations applies the embedded PostgreSQL schema.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	sourceName   = "iofs"
	databaseName = "postgres"
	driverName   = "pgx"
	migrationDir = "sql"
)

//go:embed sql/*.sql
var files embed.FS

// Source exposes the embedded migration files.
func Source() (source.Driver, error) {
	return iofs.New(files, migrationDir)
}

// Up applies every pending migration. Applying an up-to-date schema is not an error.
func Up(dsn string) (uint, error) {
	runner, closeRunner, err := open(dsn)
	if err != nil {
		return 0, err
	}
	defer closeRunner()

	if err := runner.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("migrate up: %w", err)
	}
	return currentVersion(runner)
}

// Down rolls back the given number of migrations.
func Down(dsn string, steps int) (uint, error) {
	if steps <= 0 {
		return 0, fmt.Errorf("steps must be positive: %d", steps)
	}
	runner, closeRunner, err := open(dsn)
	if err != nil {
		return 0, err
	}
	defer closeRunner()

	if err := runner.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("migrate down: %w", err)
	}
	return currentVersion(runner)
}

func open(dsn string) (*migrate.Migrate, func(), error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping db: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("init postgres driver: %w", err)
	}
	src, err := Source()
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("iofs source: %w", err)
	}
	runner, err := migrate.NewWithInstance(sourceName, src, databaseName, driver)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migrate instance: %w", err)
	}
	closeRunner := func() {
		_, _ = runner.Close()
	}
	return runner, closeRunner, nil
}

func currentVersion(runner *migrate.Migrate) (uint, error) {
	version, dirty, err := runner.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("migrate version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("schema version %d is dirty", version)
	}
	return version, nil
}
