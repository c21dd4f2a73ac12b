package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Tables lists the tables the schema declares, in dependency order.
// Route handlers hard-code these names.
var Tables = []string{
	"users",
	"incidents",
	"photos",
	"training_modules",
	"training_progress",
	"documents",
	"audit_logs",
}

// ensureSchema applies all pending migrations. Safe to call on every open:
// applied versions are tracked in goose_db_version, and migration 1 only
// creates objects that do not exist yet.
func ensureSchema(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return &SchemaError{Err: fmt.Errorf("migrations fs: %w", err)}
	}

	// The provider is not closed: Close would close db, which owns the
	// in-memory database.
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return &SchemaError{Err: fmt.Errorf("migration provider: %w", err)}
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return &SchemaError{Err: fmt.Errorf("apply migrations: %w", err)}
	}
	for _, r := range results {
		slog.Info("migration applied",
			"version", r.Source.Version,
			"duration", r.Duration,
		)
	}

	if err := verifyTables(ctx, db); err != nil {
		return &SchemaError{Err: err}
	}
	return nil
}

// verifyTables checks that every declared table exists after migrating.
func verifyTables(ctx context.Context, db *sql.DB) error {
	for _, table := range Tables {
		var name string
		err := db.QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
			table,
		).Scan(&name)
		if err != nil {
			return fmt.Errorf("table %q missing after migrations: %w", table, err)
		}
	}
	return nil
}

// schemaVersion returns the highest applied migration version.
func schemaVersion(ctx context.Context, db *sql.DB) (int64, error) {
	var version int64
	err := db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version_id), 0) FROM goose_db_version WHERE is_applied = 1",
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("schema version: %w", err)
	}
	return version, nil
}
