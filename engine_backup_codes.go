package brewauth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/purebrew/brewauth/internal"
)

// GenerateBackupCodes mints a fresh pool of one-time codes for the
// account, replacing any prior unused set. The plaintext codes are
// returned exactly once; only their hashes are stored.
//
// GenerateBackupCodes may return an error when input validation, dependency calls, or security checks fail.
// GenerateBackupCodes does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) GenerateBackupCodes(ctx context.Context, accountID string) ([]string, error) {
	account, err := e.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("account lookup: %w", err)
	}

	if !account.TwoFactorEnabled {
		return nil, ErrTwoFactorNotEnabled
	}

	count := e.config.TOTP.BackupCodeCount
	length := e.config.TOTP.BackupCodeLength

	plain := make([]string, 0, count)
	records := make([]BackupCodeRecord, 0, count)
	for i := 0; i < count; i++ {
		code, err := internal.NewBackupCode(length)
		if err != nil {
			return nil, fmt.Errorf("generate backup code: %w", err)
		}
		plain = append(plain, internal.FormatBackupCode(code))
		records = append(records, BackupCodeRecord{
			Hash: internal.BackupCodeHash(account.ID, code),
		})
	}

	account.BackupCodes = records
	account.UpdatedAt = e.clock.Now()
	if err := e.accounts.Update(ctx, account); err != nil {
		return nil, fmt.Errorf("store backup codes: %w", err)
	}

	e.emitAudit(ctx, auditEventBackupCodesGenerated, true, Authenticated(account.ID), nil, nil)
	return plain, nil
}

// BackupCodeCount returns how many unused backup codes remain.
func (e *Engine) BackupCodeCount(ctx context.Context, accountID string) (int, error) {
	account, err := e.accounts.GetByID(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("account lookup: %w", err)
	}
	return len(account.BackupCodes), nil
}

// UseBackupCode completes a pending two-factor login with a one-time
// backup code instead of a TOTP code. The matched entry is removed from
// the pool; the same plaintext cannot be used twice.
//
// UseBackupCode may return an error when input validation, dependency calls, or security checks fail.
// UseBackupCode does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) UseBackupCode(ctx context.Context, accountID, code string) (*LoginResult, error) {
	active, err := e.challenges.Active(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("challenge lookup: %w", err)
	}
	if !active {
		return nil, ErrInvalidCredentials
	}

	account, err := e.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("account lookup: %w", err)
	}

	identity := Authenticated(account.ID)

	if !account.TwoFactorEnabled {
		return nil, ErrTwoFactorNotEnabled
	}
	if account.IsBlocked {
		return nil, ErrAccountBlocked
	}

	if !e.consumeBackupCode(account, code) {
		exhausted, failErr := e.challenges.Fail(ctx, accountID, e.config.TOTP.LoginChallengeTTL)
		if failErr != nil {
			return nil, fmt.Errorf("record challenge failure: %w", failErr)
		}
		e.emitAudit(ctx, auditEventBackupCodeFailed, false, identity, ErrInvalidTwoFactorCode, nil)
		if exhausted {
			return nil, ErrInvalidCredentials
		}
		return nil, ErrInvalidTwoFactorCode
	}

	if err := e.challenges.Close(ctx, accountID); err != nil {
		if errors.Is(err, errChallengeNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("close challenge: %w", err)
	}

	result, err := e.issueTokens(ctx, account, e.clock.Now())
	if err != nil {
		return nil, err
	}

	e.emitAudit(ctx, auditEventBackupCodeUsed, true, identity, nil, nil)
	e.emitAudit(ctx, auditEventLoginSuccess, true, identity, nil, nil)
	return result, nil
}

// consumeBackupCode scans the pool for the candidate and removes the
// single matching entry. No match leaves the pool untouched.
func (e *Engine) consumeBackupCode(account *Account, code string) bool {
	canonical := internal.CanonicalizeBackupCode(code)
	if canonical == "" {
		return false
	}
	candidate := internal.BackupCodeHash(account.ID, canonical)

	for i, record := range account.BackupCodes {
		if subtle.ConstantTimeCompare(record.Hash[:], candidate[:]) == 1 {
			account.BackupCodes = append(account.BackupCodes[:i], account.BackupCodes[i+1:]...)
			return true
		}
	}
	return false
}
