package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// migration is a versioned schema change applied exactly once, tracked in
// the schema_migrations table.
type migration struct {
	Version int
	Name    string
	SQL     string
}

var migrations = []migration{
	{
		Version: 1,
		Name:    "create_token_table",
		SQL: `
CREATE TABLE IF NOT EXISTS tokenledger_token (
    id           INTEGER PRIMARY KEY CHECK (id = 1),
    name         TEXT    NOT NULL,
    symbol       TEXT    NOT NULL,
    decimals     INTEGER NOT NULL,
    total_supply TEXT    NOT NULL DEFAULT '0'
);`,
	},
	{
		Version: 2,
		Name:    "create_owner_table",
		SQL: `
CREATE TABLE IF NOT EXISTS tokenledger_owner (
    id       INTEGER PRIMARY KEY CHECK (id = 1),
    identity TEXT    NOT NULL
);`,
	},
	{
		Version: 3,
		Name:    "create_accounts_table",
		SQL: `
CREATE TABLE IF NOT EXISTS tokenledger_accounts (
    id         TEXT PRIMARY KEY,
    identity   TEXT NOT NULL UNIQUE,
    balance    TEXT NOT NULL DEFAULT '0',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);`,
	},
	{
		Version: 4,
		Name:    "create_transfers_table",
		SQL: `
CREATE TABLE IF NOT EXISTS tokenledger_transfers (
    seq           INTEGER PRIMARY KEY,
    id            TEXT NOT NULL UNIQUE,
    kind          TEXT NOT NULL,
    from_identity TEXT NOT NULL DEFAULT '',
    to_identity   TEXT NOT NULL DEFAULT '',
    amount        TEXT NOT NULL,
    timestamp     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tokenledger_transfers_kind
    ON tokenledger_transfers (kind, seq);`,
	},
}

// runMigrations applies pending migrations in version order, each inside its
// own transaction.
func runMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version    INTEGER PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TEXT NOT NULL DEFAULT (datetime('now'))
);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied := make(map[int]bool)
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("read schema_migrations: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return err
		}
		applied[v] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		if err := applyMigration(ctx, db, m); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO schema_migrations (version, name) VALUES (?, ?)`, m.Version, m.Name); err != nil {
		return err
	}
	return tx.Commit()
}
