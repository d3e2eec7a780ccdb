package brewauth

import (
	"context"
	"fmt"
)

// BeginTwoFactorSetup generates a fresh shared secret for the account
// and returns the base32 secret plus the otpauth:// provisioning URI.
// The secret is stored immediately but login is not protected until
// [Engine.ConfirmTwoFactorSetup] verifies a code.
//
// BeginTwoFactorSetup may return an error when input validation, dependency calls, or security checks fail.
// BeginTwoFactorSetup does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) BeginTwoFactorSetup(ctx context.Context, accountID string) (*TOTPSetup, error) {
	account, err := e.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("account lookup: %w", err)
	}

	raw, encoded, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, fmt.Errorf("generate totp secret: %w", err)
	}

	account.TwoFactorSecret = raw
	account.TwoFactorEnabled = false
	account.UpdatedAt = e.clock.Now()
	if err := e.accounts.Update(ctx, account); err != nil {
		return nil, fmt.Errorf("store totp secret: %w", err)
	}

	e.emitAudit(ctx, auditEventTwoFactorSetupRequested, true, Authenticated(account.ID), nil, nil)

	return &TOTPSetup{
		SecretBase32: encoded,
		URI:          e.totp.ProvisionURI(encoded, account.PrimaryEmail),
	}, nil
}

// ConfirmTwoFactorSetup verifies a code against the pending secret and,
// on match, enables the second factor. On mismatch the secret is
// retained so the user may retry.
//
// ConfirmTwoFactorSetup may return an error when input validation, dependency calls, or security checks fail.
// ConfirmTwoFactorSetup does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ConfirmTwoFactorSetup(ctx context.Context, accountID, code string) error {
	account, err := e.accounts.GetByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("account lookup: %w", err)
	}

	if account.TwoFactorStateOf() != TwoFactorSetupPending {
		return ErrTwoFactorNotPending
	}

	valid, err := e.totp.VerifyCode(account.TwoFactorSecret, code, e.clock.Now())
	if err != nil {
		return fmt.Errorf("verify totp: %w", err)
	}
	if !valid {
		e.emitAudit(ctx, auditEventTwoFactorFailure, false, Authenticated(account.ID), ErrInvalidTwoFactorCode, nil)
		return ErrInvalidTwoFactorCode
	}

	account.TwoFactorEnabled = true
	account.UpdatedAt = e.clock.Now()
	if err := e.accounts.Update(ctx, account); err != nil {
		return fmt.Errorf("enable two-factor: %w", err)
	}

	e.emitAudit(ctx, auditEventTwoFactorEnabled, true, Authenticated(account.ID), nil, nil)
	return nil
}

// DisableTwoFactor clears the secret, the enabled flag, and any backup
// codes. Any valid session may call this; no re-authentication is
// demanded beyond the session itself.
//
// DisableTwoFactor may return an error when input validation, dependency calls, or security checks fail.
// DisableTwoFactor does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) DisableTwoFactor(ctx context.Context, accountID string) error {
	account, err := e.accounts.GetByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("account lookup: %w", err)
	}

	account.TwoFactorEnabled = false
	account.TwoFactorSecret = nil
	account.BackupCodes = nil
	account.UpdatedAt = e.clock.Now()
	if err := e.accounts.Update(ctx, account); err != nil {
		return fmt.Errorf("disable two-factor: %w", err)
	}

	e.emitAudit(ctx, auditEventTwoFactorDisabled, true, Authenticated(account.ID), nil, nil)
	return nil
}
