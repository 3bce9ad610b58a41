// Package sqlite implements the repository interfaces on an embedded SQLite
// database (modernc.org/sqlite — pure Go, no CGo).
//
// Referential integrity does the heavy lifting here: workspace deletion
// cascades to members, repositories and rules, and user deletion cascades to
// integrations and memberships, so the services never orchestrate dependent
// deletes themselves. Two unique indexes carry correctness guarantees the
// services rely on: one default workspace per owner, and one connection per
// (workspace, full_name).
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/rulescraft/cursorrulescraft/internal/repository"
)

// DB wraps a sql.DB connection pool and implements repository.AdminStore and
// repository.ScopedStore. One *DB serves both roles; the compile-time checks
// below keep the interfaces honest.
type DB struct {
	conn *sql.DB
}

var (
	_ repository.AdminStore  = (*DB)(nil)
	_ repository.ScopedStore = (*DB)(nil)
)

// New opens (or creates) the database at dbPath and runs migrations.
// Use ":memory:" in tests.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// One connection: SQLite serializes writers anyway, and a pool of
	// connections to ":memory:" would each see a different database.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL allows concurrent reads during writes; foreign_keys is off by
	// default in SQLite and the cascades depend on it.
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

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id             TEXT PRIMARY KEY,
			email          TEXT NOT NULL DEFAULT '',
			name           TEXT NOT NULL DEFAULT '',
			username       TEXT NOT NULL DEFAULT '',
			picture        TEXT NOT NULL DEFAULT '',
			locale         TEXT NOT NULL DEFAULT '',
			email_verified INTEGER NOT NULL DEFAULT 0,
			provider       TEXT NOT NULL DEFAULT 'email',
			created_at     DATETIME NOT NULL,
			updated_at     DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS workspaces (
			id         TEXT PRIMARY KEY,
			owner_id   TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name       TEXT NOT NULL,
			is_default INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_workspaces_owner ON workspaces(owner_id)`,
		// At most one default workspace per owner. The lifecycle manager
		// relies on this index, not its pre-check, for at-most-once creation
		// under concurrent duplicate webhook delivery.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_workspaces_owner_default
			ON workspaces(owner_id) WHERE is_default = 1`,

		`CREATE TABLE IF NOT EXISTS workspace_members (
			workspace_id TEXT NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
			user_id      TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			role         TEXT NOT NULL,
			created_at   DATETIME NOT NULL,
			PRIMARY KEY (workspace_id, user_id)
		)`,

		`CREATE TABLE IF NOT EXISTS repositories (
			id             TEXT PRIMARY KEY,
			workspace_id   TEXT NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
			name           TEXT NOT NULL,
			full_name      TEXT NOT NULL,
			provider       TEXT NOT NULL DEFAULT 'GITHUB',
			url            TEXT NOT NULL DEFAULT '',
			default_branch TEXT NOT NULL DEFAULT '',
			is_private     INTEGER NOT NULL DEFAULT 0,
			language       TEXT NOT NULL DEFAULT '',
			topics         TEXT NOT NULL DEFAULT '[]',
			stars_count    INTEGER NOT NULL DEFAULT 0,
			forks_count    INTEGER NOT NULL DEFAULT 0,
			last_synced_at DATETIME,
			created_at     DATETIME NOT NULL,
			updated_at     DATETIME NOT NULL
		)`,
		// Connect idempotency: same repo twice in one workspace is a
		// constraint violation, surfaced as apperror.ErrConflict.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_repositories_workspace_full_name
			ON repositories(workspace_id, full_name)`,

		`CREATE TABLE IF NOT EXISTS git_integrations (
			user_id      TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			provider     TEXT NOT NULL,
			access_token TEXT NOT NULL,
			login        TEXT NOT NULL DEFAULT '',
			created_at   DATETIME NOT NULL,
			updated_at   DATETIME NOT NULL,
			PRIMARY KEY (user_id, provider)
		)`,

		`CREATE TABLE IF NOT EXISTS rules (
			id            TEXT PRIMARY KEY,
			repository_id TEXT NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
			name          TEXT NOT NULL,
			description   TEXT NOT NULL DEFAULT '',
			content       TEXT NOT NULL DEFAULT '',
			globs         TEXT NOT NULL DEFAULT '',
			always_apply  INTEGER NOT NULL DEFAULT 0,
			created_at    DATETIME NOT NULL,
			updated_at    DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rules_repository ON rules(repository_id)`,

		// Processed-delivery ledger: the provider reuses the delivery ID on
		// redelivery, so an insert conflict here means "already handled".
		`CREATE TABLE IF NOT EXISTS webhook_deliveries (
			id           TEXT PRIMARY KEY,
			processed_at DATETIME NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.conn.Exec(stmt); err != nil {
			return fmt.Errorf("migrating (%.40s...): %w", stmt, err)
		}
	}
	return nil
}

// isUniqueViolation reports whether err is a SQLite UNIQUE-constraint
// failure. The driver doesn't export a typed error for this, so we match the
// canonical message.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
