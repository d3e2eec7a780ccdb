package brewauth

import (
	"context"
	"fmt"
)

// GetProfile returns the public projection of an account.
//
// GetProfile may return an error when input validation, dependency calls, or security checks fail.
// GetProfile does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) GetProfile(ctx context.Context, accountID string) (*PublicProfile, error) {
	account, err := e.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("account lookup: %w", err)
	}
	profile := account.Profile()
	return &profile, nil
}

// ChangePassword replaces the password of an authenticated account.
// The current password must verify, the candidate must pass strength
// rules, and the candidate must not match the short profile-change
// reuse window.
//
// ChangePassword may return an error when input validation, dependency calls, or security checks fail.
// ChangePassword does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ChangePassword(ctx context.Context, accountID, currentPassword, newPassword string) error {
	account, err := e.accounts.GetByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("account lookup: %w", err)
	}

	identity := Authenticated(account.ID)

	ok, err := e.passwordHash.Verify(currentPassword, account.PasswordHash)
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, identity, ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}

	if err := e.policy.ValidateStrength(newPassword); err != nil {
		return fmt.Errorf("%w: %v", ErrWeakPassword, err)
	}

	reused, err := e.policy.IsReused(newPassword, historyWindow(account, e.config.Policy.ProfileReuseWindow))
	if err != nil {
		return fmt.Errorf("reuse check: %w", err)
	}
	if reused {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, identity, ErrPasswordReused, nil)
		return ErrPasswordReused
	}

	if err := e.applyNewPassword(account, newPassword, e.clock.Now()); err != nil {
		return err
	}

	if err := e.accounts.Update(ctx, account); err != nil {
		return fmt.Errorf("persist new password: %w", err)
	}

	e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, identity, nil, nil)
	return nil
}

// BlockAccount sets the administrative block flag and revokes the
// active refresh token. Blocked accounts are refused at login with a
// distinct message; blocking substitutes for deletion.
//
// BlockAccount may return an error when input validation, dependency calls, or security checks fail.
// BlockAccount does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) BlockAccount(ctx context.Context, accountID string) error {
	account, err := e.accounts.GetByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("account lookup: %w", err)
	}

	account.IsBlocked = true
	account.RefreshFingerprint = ""
	account.UpdatedAt = e.clock.Now()
	if err := e.accounts.Update(ctx, account); err != nil {
		return fmt.Errorf("persist block: %w", err)
	}

	e.emitAudit(ctx, auditEventAccountBlocked, true, IdentityFromContext(ctx),
		nil, map[string]string{"target": account.ID})
	return nil
}

// UnblockAccount clears the administrative block flag.
//
// UnblockAccount may return an error when input validation, dependency calls, or security checks fail.
// UnblockAccount does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) UnblockAccount(ctx context.Context, accountID string) error {
	account, err := e.accounts.GetByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("account lookup: %w", err)
	}

	account.IsBlocked = false
	account.UpdatedAt = e.clock.Now()
	if err := e.accounts.Update(ctx, account); err != nil {
		return fmt.Errorf("persist unblock: %w", err)
	}

	e.emitAudit(ctx, auditEventAccountUnblocked, true, IdentityFromContext(ctx),
		nil, map[string]string{"target": account.ID})
	return nil
}
