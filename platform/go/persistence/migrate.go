package persistence

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver for database/sql, used by goose
	"github.com/pressly/goose/v3"

	sqlassets "github.com/zenGate-Global/palmyra-projects/database"
)

func openMigrator(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("migrations: database url is required")
	}

	goose.SetBaseFS(sqlassets.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, fmt.Errorf("set dialect: %w", err)
	}

	db, err := goose.OpenDBWithDriver("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db for migrations: %w", err)
	}
	return db, nil
}

// Migrate applies every pending migration embedded in the binary.
func Migrate(ctx context.Context, dsn string) error {
	db, err := openMigrator(dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := goose.UpContext(ctx, db, sqlassets.MigrationsDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Rollback reverts the last steps migrations.
func Rollback(ctx context.Context, dsn string, steps int) error {
	db, err := openMigrator(dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	for range steps {
		if err := goose.DownContext(ctx, db, sqlassets.MigrationsDir); err != nil {
			return fmt.Errorf("rollback migration: %w", err)
		}
	}
	return nil
}

// MigrationVersion reports the currently applied schema version.
func MigrationVersion(ctx context.Context, dsn string) (int64, error) {
	db, err := openMigrator(dsn)
	if err != nil {
		return 0, err
	}
	defer func() { _ = db.Close() }()

	version, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}
