package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/MarkoPoloResearchLab/bazaar/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/bazaar/internal/store/migrations"
	"github.com/MarkoPoloResearchLab/bazaar/internal/store/pgstore"
	"github.com/MarkoPoloResearchLab/bazaar/pkg/economy"
	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	driverPostgres = "postgres"
	driverSQLite   = "sqlite"
)

// storeHandle is the opened store plus what closes it.
type storeHandle struct {
	store   economy.Store
	cleanup func()
}

func openStore(ctx context.Context, cfg runtimeConfig, logger *zap.Logger) (storeHandle, error) {
	driver, sqlitePath, err := resolveDriver(cfg.DatabaseURL)
	if err != nil {
		return storeHandle{}, err
	}
	if driver == driverPostgres && cfg.AutoMigrate {
		version, err := migrations.Up(cfg.DatabaseURL)
		if err != nil {
			return storeHandle{}, fmt.Errorf("migrate: %w", err)
		}
		logger.Info("schema ready", zap.Uint("version", version))
	}

	if cfg.StoreDriver == storeDriverPgx {
		if driver != driverPostgres {
			return storeHandle{}, fmt.Errorf("store driver %q requires a postgres database url", storeDriverPgx)
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return storeHandle{}, fmt.Errorf("pgx pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return storeHandle{}, fmt.Errorf("pgx ping: %w", err)
		}
		return storeHandle{store: pgstore.New(pool), cleanup: pool.Close}, nil
	}

	gormDB, closeDB, err := openDatabase(ctx, driver, cfg.DatabaseURL, sqlitePath)
	if err != nil {
		return storeHandle{}, fmt.Errorf("database open: %w", err)
	}
	if err := prepareSchema(gormDB, driver); err != nil {
		_ = closeDB()
		return storeHandle{}, err
	}
	cleanup := func() {
		if err := closeDB(); err != nil {
			logger.Warn("database close failed", zap.Error(err))
		}
	}
	return storeHandle{store: gormstore.New(gormDB), cleanup: cleanup}, nil
}

func openDatabase(ctx context.Context, driver string, dsn string, sqlitePath string) (*gorm.DB, func() error, error) {
	var (
		db  *gorm.DB
		err error
	)
	cfg := &gorm.Config{}
	switch driver {
	case driverPostgres:
		db, err = gorm.Open(postgres.Open(dsn), cfg)
	case driverSQLite:
		db, err = gorm.Open(sqlite.Open(sqlitePath), cfg)
	default:
		return nil, nil, fmt.Errorf("unsupported database scheme %q", driver)
	}
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	if driver == driverSQLite {
		// one writer avoids SQLITE_BUSY between the write-behind workers and the log writer
		sqlDB.SetMaxOpenConns(1)
	}
	return db.WithContext(ctx), sqlDB.Close, nil
}

func resolveDriver(dsn string) (string, string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return driverPostgres, "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := u.Path
		if path == "" {
			path = u.Host
		}
		if path == "" || path == "/" {
			path = "bazaar.db"
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return driverSQLite, sqlitePath, err
	}
	// Anything else is a direct sqlite path.
	sqlitePath, err := normalizeSQLitePath(dsn)
	return driverSQLite, sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "/") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	abs := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}

// prepareSchema migrates SQLite in place; PostgreSQL schemas come from the embedded migrations.
func prepareSchema(db *gorm.DB, driver string) error {
	if driver != driverSQLite {
		return nil
	}
	if err := gormstore.AutoMigrate(db); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
