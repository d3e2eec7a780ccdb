package brewauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/purebrew/brewauth/internal"
)

// AddEmail attaches a secondary address to the account and starts its
// verification. The address must be globally unique across every
// account's primary and secondary sets. Only one verification is in
// flight per account; a new one overwrites any pending one.
//
// AddEmail may return an error when input validation, dependency calls, or security checks fail.
// AddEmail does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AddEmail(ctx context.Context, accountID, address string) error {
	address = normalizeEmail(address)
	if !validEmail(address) {
		return fmt.Errorf("%w: invalid email address", ErrVerificationInvalid)
	}

	account, err := e.accounts.GetByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("account lookup: %w", err)
	}

	taken, err := e.accounts.EmailInUse(ctx, address)
	if err != nil {
		return fmt.Errorf("email lookup: %w", err)
	}
	if taken {
		return ErrEmailTaken
	}

	account.SecondaryEmails = append(account.SecondaryEmails, SecondaryEmail{Address: address})
	account.UpdatedAt = e.clock.Now()
	if err := e.accounts.Update(ctx, account); err != nil {
		return fmt.Errorf("store secondary email: %w", err)
	}

	if err := e.sendVerification(ctx, account.ID, address); err != nil {
		return err
	}

	e.emitAudit(ctx, auditEventEmailVerificationRequest, true, Authenticated(account.ID),
		nil, map[string]string{"address": address})
	return nil
}

// ResendVerification regenerates the token for the account's pending
// verification and dispatches a fresh message to the same address. The
// prior token stops working.
//
// ResendVerification may return an error when input validation, dependency calls, or security checks fail.
// ResendVerification does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ResendVerification(ctx context.Context, accountID string) error {
	pending, err := e.verifyStore.Pending(ctx, accountID, e.clock.Now())
	if err != nil {
		if errors.Is(err, errVerificationNotFound) {
			return ErrVerificationInvalid
		}
		return fmt.Errorf("pending lookup: %w", err)
	}

	if err := e.sendVerification(ctx, accountID, pending.Address); err != nil {
		return err
	}

	e.emitAudit(ctx, auditEventEmailVerificationRequest, true, Authenticated(accountID),
		nil, map[string]string{"address": pending.Address, "resend": "true"})
	return nil
}

func (e *Engine) sendVerification(ctx context.Context, accountID, address string) error {
	plain, hash, err := internal.NewToken()
	if err != nil {
		return fmt.Errorf("generate verification token: %w", err)
	}

	ttl := e.config.EmailVerification.TokenTTL
	record := &verificationRecord{
		AccountID: accountID,
		Address:   address,
		ExpiresAt: e.clock.Now().Add(ttl).Unix(),
	}
	if err := e.verifyStore.Save(ctx, hash, record, ttl); err != nil {
		return fmt.Errorf("store verification token: %w", err)
	}

	if e.mailer != nil {
		if err := e.mailer.SendEmailVerification(ctx, address, plain); err != nil {
			return fmt.Errorf("dispatch verification mail: %w", err)
		}
	}
	return nil
}

// ConfirmEmail consumes a verification token and marks the matching
// secondary address verified. Wrong, reused, and expired tokens all
// produce the same generic error.
//
// ConfirmEmail may return an error when input validation, dependency calls, or security checks fail.
// ConfirmEmail does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ConfirmEmail(ctx context.Context, token string) error {
	record, err := e.verifyStore.Consume(ctx, internal.HashToken(token), e.clock.Now())
	if err != nil {
		if errors.Is(err, errVerificationNotFound) {
			return ErrVerificationInvalid
		}
		return fmt.Errorf("consume verification token: %w", err)
	}

	account, err := e.accounts.GetByID(ctx, record.AccountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrVerificationInvalid
		}
		return fmt.Errorf("account lookup: %w", err)
	}

	marked := false
	for i := range account.SecondaryEmails {
		if account.SecondaryEmails[i].Address == record.Address {
			account.SecondaryEmails[i].Verified = true
			marked = true
			break
		}
	}
	if !marked {
		return ErrVerificationInvalid
	}

	account.UpdatedAt = e.clock.Now()
	if err := e.accounts.Update(ctx, account); err != nil {
		return fmt.Errorf("persist verified email: %w", err)
	}

	e.emitAudit(ctx, auditEventEmailVerificationConfirm, true, Authenticated(account.ID),
		nil, map[string]string{"address": record.Address})
	return nil
}

// RemoveEmail deletes a secondary address outright. The primary address
// is never removable. Removing an address that is not on the account is
// a no-op.
//
// RemoveEmail may return an error when input validation, dependency calls, or security checks fail.
// RemoveEmail does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) RemoveEmail(ctx context.Context, accountID, address string) error {
	address = normalizeEmail(address)

	account, err := e.accounts.GetByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("account lookup: %w", err)
	}

	if address == account.PrimaryEmail {
		return ErrPrimaryEmailImmutable
	}

	kept := account.SecondaryEmails[:0]
	removed := false
	for _, entry := range account.SecondaryEmails {
		if entry.Address == address {
			removed = true
			continue
		}
		kept = append(kept, entry)
	}
	if !removed {
		return nil
	}

	account.SecondaryEmails = kept
	account.UpdatedAt = e.clock.Now()
	if err := e.accounts.Update(ctx, account); err != nil {
		return fmt.Errorf("persist email removal: %w", err)
	}

	e.emitAudit(ctx, auditEventEmailRemoved, true, Authenticated(account.ID),
		nil, map[string]string{"address": address})
	return nil
}
