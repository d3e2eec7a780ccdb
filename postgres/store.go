package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	// Registers the pgx driver under database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"

	brewauth "github.com/purebrew/brewauth"
)

const accountColumns = `id, name, primary_email, secondary_emails, password_hash,
	password_history, password_changed_at, failed_login_attempts, lockout_until,
	is_blocked, is_admin, two_factor_enabled, two_factor_secret, backup_codes,
	refresh_fingerprint, created_at, updated_at`

// AccountStore implements brewauth.AccountStore on PostgreSQL through
// database/sql with the pgx driver. Secondary emails, password history,
// and backup-code hashes are JSONB columns on the accounts row.
type AccountStore struct {
	db *sql.DB
}

// Open connects to the database and verifies the connection.
//
// Open may return an error when input validation, dependency calls, or security checks fail.
// Open does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func Open(ctx context.Context, dsn string) (*AccountStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &AccountStore{db: db}, nil
}

// NewAccountStore wraps an existing connection pool.
func NewAccountStore(db *sql.DB) *AccountStore {
	return &AccountStore{db: db}
}

// Close releases the connection pool.
func (s *AccountStore) Close() error {
	return s.db.Close()
}

// GetByEmail describes the getbyemail operation and its observable behavior.
//
// GetByEmail may return an error when input validation, dependency calls, or security checks fail.
// GetByEmail does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *AccountStore) GetByEmail(ctx context.Context, email string) (*brewauth.Account, error) {
	verifiedEntry, err := json.Marshal([]brewauth.SecondaryEmail{{Address: email, Verified: true}})
	if err != nil {
		return nil, fmt.Errorf("encode email filter: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE primary_email = $1 OR secondary_emails @> $2::jsonb
	`, email, verifiedEntry)

	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, brewauth.ErrAccountNotFound
		}
		return nil, fmt.Errorf("query account by email: %w", err)
	}
	return account, nil
}

// GetByID describes the getbyid operation and its observable behavior.
//
// GetByID may return an error when input validation, dependency calls, or security checks fail.
// GetByID does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *AccountStore) GetByID(ctx context.Context, id string) (*brewauth.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id = $1
	`, id)

	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, brewauth.ErrAccountNotFound
		}
		return nil, fmt.Errorf("query account by id: %w", err)
	}
	return account, nil
}

// EmailInUse reports whether the address appears as any account's
// primary email or in any account's secondary set, verified or not.
//
// EmailInUse may return an error when input validation, dependency calls, or security checks fail.
// EmailInUse does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *AccountStore) EmailInUse(ctx context.Context, address string) (bool, error) {
	var inUse bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM accounts
			WHERE primary_email = $1
			   OR EXISTS (
				SELECT 1 FROM jsonb_array_elements(secondary_emails) AS entry
				WHERE entry->>'address' = $1
			   )
		)
	`, address).Scan(&inUse)
	if err != nil {
		return false, fmt.Errorf("query email in use: %w", err)
	}
	return inUse, nil
}

// Create describes the create operation and its observable behavior.
//
// Create may return an error when input validation, dependency calls, or security checks fail.
// Create does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *AccountStore) Create(ctx context.Context, account *brewauth.Account) error {
	secondary, history, backup, err := encodeJSONColumns(account)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`,
		account.ID, account.Name, account.PrimaryEmail, secondary, account.PasswordHash,
		history, account.PasswordChangedAt.UTC(), account.FailedLoginAttempts, nullableTime(account.LockoutUntil),
		account.IsBlocked, account.IsAdmin, account.TwoFactorEnabled, account.TwoFactorSecret, backup,
		account.RefreshFingerprint, account.CreatedAt.UTC(), account.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// Update persists the full account record.
//
// Update may return an error when input validation, dependency calls, or security checks fail.
// Update does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *AccountStore) Update(ctx context.Context, account *brewauth.Account) error {
	secondary, history, backup, err := encodeJSONColumns(account)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts
		SET name = $2,
			primary_email = $3,
			secondary_emails = $4,
			password_hash = $5,
			password_history = $6,
			password_changed_at = $7,
			failed_login_attempts = $8,
			lockout_until = $9,
			is_blocked = $10,
			is_admin = $11,
			two_factor_enabled = $12,
			two_factor_secret = $13,
			backup_codes = $14,
			refresh_fingerprint = $15,
			updated_at = $16
		WHERE id = $1
	`,
		account.ID, account.Name, account.PrimaryEmail, secondary, account.PasswordHash,
		history, account.PasswordChangedAt.UTC(), account.FailedLoginAttempts, nullableTime(account.LockoutUntil),
		account.IsBlocked, account.IsAdmin, account.TwoFactorEnabled, account.TwoFactorSecret, backup,
		account.RefreshFingerprint, account.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update account rows affected: %w", err)
	}
	if affected == 0 {
		return brewauth.ErrAccountNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*brewauth.Account, error) {
	var (
		account      brewauth.Account
		secondary    []byte
		history      []byte
		backup       []byte
		lockoutUntil sql.NullTime
	)

	err := row.Scan(
		&account.ID, &account.Name, &account.PrimaryEmail, &secondary, &account.PasswordHash,
		&history, &account.PasswordChangedAt, &account.FailedLoginAttempts, &lockoutUntil,
		&account.IsBlocked, &account.IsAdmin, &account.TwoFactorEnabled, &account.TwoFactorSecret, &backup,
		&account.RefreshFingerprint, &account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lockoutUntil.Valid {
		account.LockoutUntil = lockoutUntil.Time.UTC()
	}

	if len(secondary) > 0 {
		if err := json.Unmarshal(secondary, &account.SecondaryEmails); err != nil {
			return nil, fmt.Errorf("decode secondary emails: %w", err)
		}
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &account.PasswordHistory); err != nil {
			return nil, fmt.Errorf("decode password history: %w", err)
		}
	}
	if len(backup) > 0 {
		if err := json.Unmarshal(backup, &account.BackupCodes); err != nil {
			return nil, fmt.Errorf("decode backup codes: %w", err)
		}
	}

	return &account, nil
}

func encodeJSONColumns(account *brewauth.Account) (secondary, history, backup []byte, err error) {
	secondary, err = json.Marshal(emptySliceIfNil(account.SecondaryEmails))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encode secondary emails: %w", err)
	}
	history, err = json.Marshal(emptySliceIfNil(account.PasswordHistory))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encode password history: %w", err)
	}
	backup, err = json.Marshal(emptySliceIfNil(account.BackupCodes))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encode backup codes: %w", err)
	}
	return secondary, history, backup, nil
}

func emptySliceIfNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
