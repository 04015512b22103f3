package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema is the full DDL for the ledger. Statements are idempotent so the
// migrate command can be re-run safely.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		user_id    TEXT PRIMARY KEY,
		balance    BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS entries (
		id              BIGSERIAL PRIMARY KEY,
		user_id         TEXT NOT NULL REFERENCES accounts(user_id),
		amount          BIGINT NOT NULL CHECK (amount > 0),
		direction       TEXT NOT NULL CHECK (direction IN ('earn', 'spend')),
		reason          TEXT NOT NULL,
		idempotency_key TEXT,
		created_at      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_entries_user_created ON entries (user_id, created_at DESC)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_entries_idempotency_key ON entries (idempotency_key) WHERE idempotency_key IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS idx_accounts_balance ON accounts (balance DESC)`,
}

// Migrate applies the ledger schema to the given database.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}
