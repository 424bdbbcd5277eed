package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
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
    id           SMALLINT PRIMARY KEY CHECK (id = 1),
    name         TEXT     NOT NULL,
    symbol       TEXT     NOT NULL,
    decimals     SMALLINT NOT NULL,
    total_supply NUMERIC(39, 0) NOT NULL DEFAULT 0 CHECK (total_supply >= 0)
);`,
	},
	{
		Version: 2,
		Name:    "create_owner_table",
		SQL: `
CREATE TABLE IF NOT EXISTS tokenledger_owner (
    id       SMALLINT PRIMARY KEY CHECK (id = 1),
    identity TEXT     NOT NULL
);`,
	},
	{
		Version: 3,
		Name:    "create_accounts_table",
		SQL: `
CREATE TABLE IF NOT EXISTS tokenledger_accounts (
    id         TEXT PRIMARY KEY,
    identity   TEXT NOT NULL UNIQUE,
    balance    NUMERIC(39, 0) NOT NULL DEFAULT 0 CHECK (balance >= 0),
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Version: 4,
		Name:    "create_transfers_table",
		SQL: `
CREATE TABLE IF NOT EXISTS tokenledger_transfers (
    seq           BIGINT PRIMARY KEY,
    id            TEXT   NOT NULL UNIQUE,
    kind          TEXT   NOT NULL,
    from_identity TEXT   NOT NULL DEFAULT '',
    to_identity   TEXT   NOT NULL DEFAULT '',
    amount        NUMERIC(39, 0) NOT NULL CHECK (amount >= 0),
    ts            TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tokenledger_transfers_kind
    ON tokenledger_transfers (kind, seq);`,
	},
}

// runMigrations applies pending migrations in version order, each inside its
// own transaction.
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version    INTEGER PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied := make(map[int]bool)
	rows, err := pool.Query(ctx, `SELECT version FROM schema_migrations`)
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
		if err := applyMigration(ctx, pool, m); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}

func applyMigration(ctx context.Context, pool *pgxpool.Pool, m migration) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if _, err := tx.Exec(ctx, m.SQL); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
