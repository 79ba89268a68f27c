package db

import (
	"context"
	"database/sql"
	"fmt"

	// Import the libSQL driver, which registers "libsql" with database/sql.
	// Handles remote URLs (libsql://, https://, wss://).
	_ "github.com/tursodatabase/libsql-client-go/libsql"

	// Import the pure-Go SQLite driver for local file: URLs.
	// libsql-client-go delegates file: URLs to this driver.
	_ "modernc.org/sqlite"
)

// driverName is the database/sql driver to use. Package-level so tests can
// force an open failure; production always uses "libsql".
var driverName = "libsql"

// Connect opens a libSQL database connection and verifies it with a ping.
//
// Supported URL schemes:
//
//	Local file:  "file:path/to/expenses.db"
//	Remote Turso: "libsql://[db-name].turso.io?authToken=[token]"
func Connect(ctx context.Context, dbURL string) (*sql.DB, error) {
	if dbURL == "" {
		return nil, fmt.Errorf("database URL must not be empty")
	}

	db, err := sql.Open(driverName, dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open libsql: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// migrations are applied in order; the index+1 is the schema version.
// Append only.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS expenses (
		id          TEXT PRIMARY KEY,
		user_id     TEXT NOT NULL,
		amount      REAL NOT NULL CHECK (amount > 0),
		category    TEXT NOT NULL CHECK (category IN ('food', 'travel', 'bills', 'shopping', 'other')),
		date        TEXT NOT NULL,
		description TEXT,
		created_at  TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_expenses_user_date ON expenses (user_id, date DESC)`,
}

// Migrate brings the schema up to date. It records the applied version in
// schema_migrations and is safe to call on every start.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("migrate: create version table: %w", err)
	}
	var current int
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("migrate: read version: %w", err)
	}
	for i := current; i < len(migrations); i++ {
		if _, err := db.ExecContext(ctx, migrations[i]); err != nil {
			return fmt.Errorf("migrate: step %d: %w", i+1, err)
		}
		if _, err := db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, i+1); err != nil {
			return fmt.Errorf("migrate: record step %d: %w", i+1, err)
		}
	}
	return nil
}

// Version returns the applied schema version.
func Version(ctx context.Context, db *sql.DB) (int, error) {
	var v int
	err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&v)
	return v, err
}
