package postgres

import (
	"context"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	primary_email TEXT NOT NULL UNIQUE,
	secondary_emails JSONB NOT NULL DEFAULT '[]',
	password_hash TEXT NOT NULL,
	password_history JSONB NOT NULL DEFAULT '[]',
	password_changed_at TIMESTAMPTZ NOT NULL,
	failed_login_attempts INT NOT NULL DEFAULT 0,
	lockout_until TIMESTAMPTZ,
	is_blocked BOOLEAN NOT NULL DEFAULT FALSE,
	is_admin BOOLEAN NOT NULL DEFAULT FALSE,
	two_factor_enabled BOOLEAN NOT NULL DEFAULT FALSE,
	two_factor_secret BYTEA,
	backup_codes JSONB NOT NULL DEFAULT '[]',
	refresh_fingerprint TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS accounts_secondary_emails_idx
	ON accounts USING GIN (secondary_emails);
`

// EnsureSchema creates the accounts table and its indexes when missing.
//
// EnsureSchema may return an error when input validation, dependency calls, or security checks fail.
// EnsureSchema does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *AccountStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
