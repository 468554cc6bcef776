// Package db owns the SQLite credential store: connection setup, embedded
// goose migrations and the queries over the auth_config table.
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joshdurbin/strava-stats/internal/logging"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Open opens the database at path, configures SQLite for a single writer,
// makes sure no other instance holds it and applies pending migrations.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	log := logging.Logger

	log.Info().Str("path", path).Msg("opening database")
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := configureSQLite(sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("configuring SQLite: %w", err)
	}

	if err := checkDatabaseLock(sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}

	if err := Migrate(ctx, sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return sqlDB, nil
}

// Migrate applies the embedded migrations.
func Migrate(ctx context.Context, sqlDB *sql.DB) error {
	log := logging.Logger

	dir, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, sqlDB, dir)
	if err != nil {
		return fmt.Errorf("creating goose provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	for _, r := range results {
		log.Debug().Int64("version", r.Source.Version).Str("path", r.Source.Path).Msg("migration applied")
	}
	log.Debug().Int("applied", len(results)).Msg("database migrations completed")
	return nil
}

// configureSQLite sets up SQLite for a single long-lived process
func configureSQLite(sqlDB *sql.DB) error {
	log := logging.Logger

	pragmas := []struct {
		stmt string
		what string
	}{
		{"PRAGMA journal_mode=WAL", "setting WAL mode"},
		{"PRAGMA busy_timeout=5000", "setting busy timeout"},
		{"PRAGMA synchronous=NORMAL", "setting synchronous mode"},
	}
	for _, p := range pragmas {
		if _, err := sqlDB.Exec(p.stmt); err != nil {
			return fmt.Errorf("%s: %w", p.what, err)
		}
	}

	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	log.Debug().
		Str("journal_mode", "WAL").
		Str("busy_timeout", "5000ms").
		Msg("SQLite configured")
	return nil
}

// checkDatabaseLock verifies no other process has the database locked
func checkDatabaseLock(sqlDB *sql.DB) error {
	if _, err := sqlDB.Exec("PRAGMA locking_mode=EXCLUSIVE"); err != nil {
		return fmt.Errorf("another instance may be running (database locked): %w", err)
	}

	if _, err := sqlDB.Exec("BEGIN EXCLUSIVE"); err != nil {
		if strings.Contains(err.Error(), "locked") || strings.Contains(err.Error(), "busy") {
			return fmt.Errorf("another instance is already running (database is locked)")
		}
		return fmt.Errorf("checking database lock: %w", err)
	}

	if _, err := sqlDB.Exec("COMMIT"); err != nil {
		return fmt.Errorf("releasing lock check: %w", err)
	}

	logging.Logger.Debug().Msg("database lock check passed")
	return nil
}
