// Package sqlite implements the repository interfaces on SQLite.
//
// The driver is modernc.org/sqlite — a pure Go translation of the SQLite C
// code, so there's no CGo and cross-compilation stays painless. The blank
// import below registers it with database/sql under the name "sqlite".
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and implements every repository
// interface. One type for all entities keeps the transaction in
// CreateWithCredential trivial — it already owns the connection.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
// Use ":memory:" for tests.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Force an immediate connection so a bad path fails here, not on the
	// first query.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL allows concurrent reads while a write is in flight — required for
	// a web server where every request hits the DB.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Foreign keys are OFF by default in SQLite.
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

// Close closes the connection pool. Always defer this next to New.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates all tables. CREATE TABLE IF NOT EXISTS keeps it safe to
// run on every start.
func (db *DB) migrate() error {
	stmts := []struct {
		name string
		sql  string
	}{
		{"users", `
			CREATE TABLE IF NOT EXISTS users (
				id          TEXT PRIMARY KEY,
				name        TEXT NOT NULL DEFAULT '',
				email       TEXT NOT NULL UNIQUE,
				verified_at DATETIME,
				image       TEXT NOT NULL DEFAULT '',
				created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
		`},
		{"accounts", `
			CREATE TABLE IF NOT EXISTS accounts (
				id                  TEXT PRIMARY KEY,
				user_id             TEXT NOT NULL REFERENCES users(id),
				type                TEXT NOT NULL CHECK (type IN ('credential', 'oauth')),
				provider            TEXT NOT NULL DEFAULT '',
				provider_account_id TEXT NOT NULL DEFAULT '',
				password_hash       TEXT NOT NULL DEFAULT '',
				created_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_provider
				ON accounts(provider, provider_account_id) WHERE type = 'oauth';
			CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_credential
				ON accounts(user_id) WHERE type = 'credential';
		`},
		{"sessions", `
			CREATE TABLE IF NOT EXISTS sessions (
				id         TEXT PRIMARY KEY,
				user_id    TEXT NOT NULL REFERENCES users(id),
				expires    DATETIME NOT NULL,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id);
		`},
		{"verification_tokens", `
			CREATE TABLE IF NOT EXISTS verification_tokens (
				id         TEXT PRIMARY KEY,
				identifier TEXT NOT NULL,
				token_hash TEXT NOT NULL,
				expires    DATETIME NOT NULL,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_verification_tokens_identifier
				ON verification_tokens(identifier);
		`},
		{"discussions", `
			CREATE TABLE IF NOT EXISTS discussions (
				id         TEXT PRIMARY KEY,
				user_id    TEXT NOT NULL REFERENCES users(id),
				title      TEXT NOT NULL,
				body       TEXT NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_discussions_created_at ON discussions(created_at);
		`},
		{"comments", `
			CREATE TABLE IF NOT EXISTS comments (
				id            TEXT PRIMARY KEY,
				discussion_id TEXT NOT NULL REFERENCES discussions(id),
				user_id       TEXT NOT NULL REFERENCES users(id),
				body          TEXT NOT NULL,
				created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_comments_discussion_id ON comments(discussion_id);
		`},
		{"votes", `
			CREATE TABLE IF NOT EXISTS votes (
				user_id     TEXT NOT NULL REFERENCES users(id),
				target_type TEXT NOT NULL CHECK (target_type IN ('discussion', 'comment')),
				target_id   TEXT NOT NULL,
				value       INTEGER NOT NULL CHECK (value IN (-1, 1)),
				created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				PRIMARY KEY (user_id, target_type, target_id)
			);
			CREATE INDEX IF NOT EXISTS idx_votes_target ON votes(target_type, target_id);
		`},
	}

	for _, s := range stmts {
		if _, err := db.conn.Exec(s.sql); err != nil {
			return fmt.Errorf("creating %s table: %w", s.name, err)
		}
	}
	return nil
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint
// failure, optionally on a specific column (e.g. "users.email").
func isUniqueViolation(err error, column string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") {
		return false
	}
	return column == "" || strings.Contains(msg, column)
}
