// Package postgres implements the tenant, event and request stores on pgx,
// with goose migrations embedded in the binary.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx driver for database/sql (needed by goose)
	"github.com/pressly/goose/v3"

	"github.com/Strob0t/requestline/internal/config"
)

//go:embed migrations/*.sql
var migrations embed.FS

// NewPool opens the pool and pings it so startup fails fast on a bad DSN.
func NewPool(ctx context.Context, cfg config.Postgres) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.HealthCheckPeriod = cfg.HealthCheck

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return pool, nil
}

// migrationsDir is the embedded directory goose reads from.
const migrationsDir = "migrations"

// withMigrationDB opens a short-lived database/sql handle for goose; the pgx
// pool is not used for schema changes.
func withMigrationDB(dsn string, fn func(db *sql.DB) error) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	db, err := goose.OpenDBWithDriver("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open db for migrations: %w", err)
	}
	defer func() { _ = db.Close() }()
	return fn(db)
}

// RunMigrations brings the schema up to the newest embedded migration.
func RunMigrations(ctx context.Context, dsn string) error {
	return withMigrationDB(dsn, func(db *sql.DB) error {
		if err := goose.UpContext(ctx, db, migrationsDir); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		return nil
	})
}

// MigrationStatus reports the applied schema version and the newest one
// embedded in this binary. applied < latest means the server will migrate
// on its next start.
func MigrationStatus(ctx context.Context, dsn string) (applied, latest int64, err error) {
	err = withMigrationDB(dsn, func(db *sql.DB) error {
		known, err := goose.CollectMigrations(migrationsDir, 0, goose.MaxVersion)
		if err != nil {
			return fmt.Errorf("collect migrations: %w", err)
		}
		if last, err := known.Last(); err == nil {
			latest = last.Version
		}
		applied, err = goose.GetDBVersionContext(ctx, db)
		if err != nil {
			return fmt.Errorf("get version: %w", err)
		}
		return nil
	})
	return applied, latest, err
}
