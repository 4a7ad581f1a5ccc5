package repository

import (
	"context"
	"fmt"
)

// schema is applied at startup. Statements are idempotent so restarts
// are safe. Balances and amounts are NUMERIC(12,2); they are never
// stored or read as floating point.
const schema = `
CREATE SCHEMA IF NOT EXISTS bank;

CREATE TABLE IF NOT EXISTS bank.holders (
	id            BIGSERIAL PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	email         TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS bank.accounts (
	account_number CHAR(6) PRIMARY KEY,
	holder         TEXT NOT NULL UNIQUE REFERENCES bank.holders (username),
	balance        NUMERIC(12,2) NOT NULL DEFAULT 0,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS bank.transactions (
	id             BIGSERIAL PRIMARY KEY,
	account_number CHAR(6) NOT NULL REFERENCES bank.accounts (account_number) ON DELETE CASCADE,
	type           TEXT NOT NULL,
	amount         NUMERIC(12,2) NOT NULL,
	category       TEXT NOT NULL DEFAULT 'others',
	transfer_id    UUID,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS transactions_account_created_idx
	ON bank.transactions (account_number, created_at DESC);
`

// Migrate creates the schema if it does not exist yet
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
