// Package sqlite implements the repository interfaces on SQLite.
//
// modernc.org/sqlite is a pure Go translation of SQLite with no CGo, so the
// binary cross-compiles anywhere Go runs. Use ":memory:" as the path for
// tests.
package sqlite

import (
	"database/sql"
	"fmt"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and provides the repository methods.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the SQLite database at dbPath and runs migrations.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL allows concurrent reads while a write is in progress; the default
	// journal mode locks the whole file.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the connection pool, flushing the WAL.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. CREATE TABLE IF NOT EXISTS keeps it idempotent.
//
// email is UNIQUE outright: re-registration of an unverified email reuses the
// existing row instead of inserting a second one, so at most one row per
// email ever exists. The partial index makes (oauth_provider, oauth_id)
// unique only for rows that actually have a provider.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id                      TEXT PRIMARY KEY,
			email                   TEXT NOT NULL UNIQUE,
			name                    TEXT NOT NULL,
			profession              TEXT NOT NULL DEFAULT '',
			password_hash           TEXT NOT NULL DEFAULT '',
			oauth_provider          TEXT NOT NULL DEFAULT '',
			oauth_id                TEXT NOT NULL DEFAULT '',
			avatar                  TEXT NOT NULL DEFAULT '',
			is_email_verified       INTEGER NOT NULL DEFAULT 0,
			email_verification_otp  TEXT NOT NULL DEFAULT '',
			otp_expires             DATETIME,
			password_reset_token    TEXT NOT NULL DEFAULT '',
			reset_expires           DATETIME,
			last_login              DATETIME,
			created_at              DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at              DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_oauth
			ON users(oauth_provider, oauth_id)
			WHERE oauth_provider != '';
		CREATE INDEX IF NOT EXISTS idx_users_reset_token
			ON users(password_reset_token)
			WHERE password_reset_token != '';
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	return nil
}
