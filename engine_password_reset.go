package brewauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/purebrew/brewauth/internal"
)

// ForgotPassword starts the reset flow for the given address. The
// response is identical whether or not an account exists; when one
// does, a single-use token is stored and the plaintext is dispatched
// out-of-band. Issuing a new token invalidates any prior one.
//
// ForgotPassword may return an error when input validation, dependency calls, or security checks fail.
// ForgotPassword does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ForgotPassword(ctx context.Context, email string) error {
	account, err := e.accounts.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil
		}
		return fmt.Errorf("account lookup: %w", err)
	}

	plain, hash, err := internal.NewToken()
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}

	ttl := e.config.PasswordReset.TokenTTL
	record := &resetRecord{
		AccountID: account.ID,
		ExpiresAt: e.clock.Now().Add(ttl).Unix(),
	}
	if err := e.resetStore.Save(ctx, hash, record, ttl); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	if e.mailer != nil {
		if err := e.mailer.SendPasswordReset(ctx, account.PrimaryEmail, plain); err != nil {
			return fmt.Errorf("dispatch reset mail: %w", err)
		}
	}

	e.emitAudit(ctx, auditEventPasswordResetRequest, true, Authenticated(account.ID), nil, nil)
	return nil
}

// ResetPassword consumes a reset token and installs the new password.
// The candidate must pass strength rules and must not match any of the
// retained history window. Success revokes the active refresh token and
// clears lockout state.
//
// ResetPassword may return an error when input validation, dependency calls, or security checks fail.
// ResetPassword does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := e.policy.ValidateStrength(newPassword); err != nil {
		return fmt.Errorf("%w: %v", ErrWeakPassword, err)
	}

	record, err := e.resetStore.Consume(ctx, internal.HashToken(token), e.clock.Now())
	if err != nil {
		if errors.Is(err, errResetNotFound) {
			return ErrTokenInvalid
		}
		return fmt.Errorf("consume reset token: %w", err)
	}

	account, err := e.accounts.GetByID(ctx, record.AccountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrTokenInvalid
		}
		return fmt.Errorf("account lookup: %w", err)
	}

	identity := Authenticated(account.ID)

	reused, err := e.policy.IsReused(newPassword, historyWindow(account, e.config.Policy.ResetReuseWindow))
	if err != nil {
		return fmt.Errorf("reuse check: %w", err)
	}
	if reused {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, identity, ErrPasswordReused, nil)
		return ErrPasswordReused
	}

	now := e.clock.Now()
	if err := e.applyNewPassword(account, newPassword, now); err != nil {
		return err
	}

	// A successful reset ends the active session and any lockout.
	account.RefreshFingerprint = ""
	e.lockout.RecordSuccess(account)

	if err := e.accounts.Update(ctx, account); err != nil {
		return fmt.Errorf("persist new password: %w", err)
	}

	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, identity, nil, nil)
	return nil
}

// applyNewPassword hashes the candidate and rotates it into the bounded
// history, most-recent-first. The current hash always sits at the head
// of the retained list.
func (e *Engine) applyNewPassword(account *Account, newPassword string, now time.Time) error {
	hash, err := e.passwordHash.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	history := append([]string{hash}, account.PasswordHistory...)
	if len(history) > e.config.Policy.HistoryRetained {
		history = history[:e.config.Policy.HistoryRetained]
	}

	account.PasswordHash = hash
	account.PasswordHistory = history
	account.PasswordChangedAt = now
	account.UpdatedAt = now
	return nil
}

func historyWindow(account *Account, window int) []string {
	if window > len(account.PasswordHistory) {
		window = len(account.PasswordHistory)
	}
	return account.PasswordHistory[:window]
}
