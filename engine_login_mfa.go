package brewauth

import (
	"context"
	"errors"
	"fmt"
)

// VerifyTwoFactorLogin completes a login that returned a two-factor
// challenge. It requires an open challenge for the account, so the
// endpoint cannot be used as a password-free login path, and issues the
// same token pair as a direct 2FA login.
//
// VerifyTwoFactorLogin may return an error when input validation, dependency calls, or security checks fail.
// VerifyTwoFactorLogin does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) VerifyTwoFactorLogin(ctx context.Context, accountID, code string) (*LoginResult, error) {
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

	now := e.clock.Now()
	valid, err := e.totp.VerifyCode(account.TwoFactorSecret, code, now)
	if err != nil {
		return nil, fmt.Errorf("verify totp: %w", err)
	}
	if !valid {
		exhausted, failErr := e.challenges.Fail(ctx, accountID, e.config.TOTP.LoginChallengeTTL)
		if failErr != nil {
			return nil, fmt.Errorf("record challenge failure: %w", failErr)
		}
		e.emitAudit(ctx, auditEventTwoFactorFailure, false, identity, ErrInvalidTwoFactorCode, nil)
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

	result, err := e.issueTokens(ctx, account, now)
	if err != nil {
		return nil, err
	}

	e.emitAudit(ctx, auditEventTwoFactorSuccess, true, identity, nil, nil)
	e.emitAudit(ctx, auditEventLoginSuccess, true, identity, nil, nil)
	return result, nil
}
