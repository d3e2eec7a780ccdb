package brewauth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/purebrew/brewauth/internal"
	authjwt "github.com/purebrew/brewauth/jwt"
	"github.com/purebrew/brewauth/password"
)

type clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Engine defines a public type used by brewauth APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config Config

	accounts AccountStore
	mailer   Mailer
	bots     BotChecker

	passwordHash *password.Argon2
	policy       *password.Policy
	jwtManager   *authjwt.Manager
	totp         *totpManager
	lockout      *lockoutTracker

	resetStore  *resetTokenStore
	verifyStore *verificationStore
	challenges  *loginChallengeStore

	audit *auditDispatcher
	clock clock
}

// Close releases background resources. It drains and stops the audit
// dispatcher; the engine must not be used afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// AuditDropped reports how many audit events were discarded because the
// dispatch buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// Register describes the register operation and its observable behavior.
//
// Register may return an error when input validation, dependency calls, or security checks fail.
// Register does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Register(ctx context.Context, input RegisterInput) (*PublicProfile, error) {
	name := strings.TrimSpace(input.Name)
	email := normalizeEmail(input.Email)

	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidCredentials)
	}
	if !validEmail(email) {
		return nil, fmt.Errorf("%w: invalid email address", ErrInvalidCredentials)
	}

	if e.bots != nil {
		if err := e.bots.Verify(ctx, input.BotCheckToken); err != nil {
			e.emitAudit(ctx, auditEventRegisterFailure, false, Anonymous, err, nil)
			return nil, fmt.Errorf("%w: %v", ErrBotCheckFailed, err)
		}
	}

	if err := e.policy.ValidateStrength(input.Password); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWeakPassword, err)
	}

	taken, err := e.accounts.EmailInUse(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("email lookup: %w", err)
	}
	if taken {
		e.emitAudit(ctx, auditEventRegisterFailure, false, Anonymous, ErrEmailTaken, map[string]string{"email": email})
		return nil, ErrEmailTaken
	}

	hash, err := e.passwordHash.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := e.clock.Now()
	account := &Account{
		ID:                uuid.NewString(),
		Name:              name,
		PrimaryEmail:      email,
		PasswordHash:      hash,
		PasswordHistory:   []string{hash},
		PasswordChangedAt: now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := e.accounts.Create(ctx, account); err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}

	e.emitAudit(ctx, auditEventRegisterSuccess, true, Authenticated(account.ID), nil, nil)

	profile := account.Profile()
	return &profile, nil
}

// Login runs the authentication state machine for one attempt:
// lookup, lockout check, block check, password check, expiry check,
// optional second factor, then token issuance. Each step fails fast
// with its specific rejection.
//
// Login may return an error when input validation, dependency calls, or security checks fail.
// Login does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Login(ctx context.Context, email, passwd, twoFactorCode string) (*LoginResult, error) {
	now := e.clock.Now()

	account, err := e.accounts.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.emitAudit(ctx, auditEventLoginFailure, false, Anonymous, ErrInvalidCredentials, nil)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("account lookup: %w", err)
	}

	identity := Authenticated(account.ID)

	if e.lockout.Locked(account, now) {
		lockErr := &LockoutError{Until: account.LockoutUntil}
		e.emitAudit(ctx, auditEventLoginLockout, false, identity, lockErr, nil)
		return nil, lockErr
	}

	if account.IsBlocked {
		e.emitAudit(ctx, auditEventLoginBlocked, false, identity, ErrAccountBlocked, nil)
		return nil, ErrAccountBlocked
	}

	ok, err := e.passwordHash.Verify(passwd, account.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		locked := e.lockout.RecordFailure(account, now)
		account.UpdatedAt = now
		if updateErr := e.accounts.Update(ctx, account); updateErr != nil {
			return nil, fmt.Errorf("record failed attempt: %w", updateErr)
		}
		if locked {
			lockErr := &LockoutError{Until: account.LockoutUntil}
			e.emitAudit(ctx, auditEventLoginLockout, false, identity, lockErr, nil)
			return nil, lockErr
		}
		e.emitAudit(ctx, auditEventLoginFailure, false, identity, ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	}

	if e.passwordExpired(account, now) {
		e.emitAudit(ctx, auditEventLoginFailure, false, identity, ErrPasswordExpired, nil)
		return nil, ErrPasswordExpired
	}

	if account.TwoFactorEnabled {
		if twoFactorCode == "" {
			if err := e.challenges.Open(ctx, account.ID, e.config.TOTP.LoginChallengeTTL); err != nil {
				return nil, fmt.Errorf("open login challenge: %w", err)
			}
			e.emitAudit(ctx, auditEventTwoFactorRequired, false, identity, nil, nil)
			return &LoginResult{TwoFactorRequired: true, AccountID: account.ID}, nil
		}

		valid, err := e.totp.VerifyCode(account.TwoFactorSecret, twoFactorCode, now)
		if err != nil {
			return nil, fmt.Errorf("verify totp: %w", err)
		}
		if !valid {
			e.emitAudit(ctx, auditEventTwoFactorFailure, false, identity, ErrInvalidTwoFactorCode, nil)
			return nil, ErrInvalidTwoFactorCode
		}
		e.emitAudit(ctx, auditEventTwoFactorSuccess, true, identity, nil, nil)
	}

	result, err := e.issueTokens(ctx, account, now)
	if err != nil {
		return nil, err
	}

	e.emitAudit(ctx, auditEventLoginSuccess, true, identity, nil, nil)
	return result, nil
}

// Refresh exchanges a still-valid refresh token for a new access+refresh
// pair. The presented token must match the one fingerprint stored on the
// account exactly; a mismatch after a prior rotation is treated as
// replay and fails closed.
//
// Refresh may return an error when input validation, dependency calls, or security checks fail.
// Refresh does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	claims, err := e.jwtManager.ParseRefresh(refreshToken)
	if err != nil {
		e.emitAudit(ctx, auditEventRefreshInvalid, false, Anonymous, err, nil)
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	account, err := e.accounts.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("account lookup: %w", err)
	}

	identity := Authenticated(account.ID)

	if account.IsBlocked {
		e.emitAudit(ctx, auditEventRefreshInvalid, false, identity, ErrAccountBlocked, nil)
		return nil, ErrAccountBlocked
	}

	fingerprint := internal.FingerprintToken(refreshToken)
	if account.RefreshFingerprint == "" {
		e.emitAudit(ctx, auditEventRefreshInvalid, false, identity, ErrTokenInvalid, nil)
		return nil, ErrTokenInvalid
	}
	if subtle.ConstantTimeCompare([]byte(fingerprint), []byte(account.RefreshFingerprint)) != 1 {
		e.emitAudit(ctx, auditEventRefreshReuseDetected, false, identity, ErrRefreshReuse, nil)
		return nil, ErrRefreshReuse
	}

	result, err := e.issueTokens(ctx, account, e.clock.Now())
	if err != nil {
		return nil, err
	}

	e.emitAudit(ctx, auditEventRefreshSuccess, true, identity, nil, nil)
	return result, nil
}

// Logout invalidates the account's stored refresh fingerprint so the
// presented token cannot be rotated again. An unparseable token is a
// no-op: the caller clears its cookies either way.
//
// Logout may return an error when input validation, dependency calls, or security checks fail.
// Logout does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	claims, err := e.jwtManager.ParseRefresh(refreshToken)
	if err != nil {
		return nil
	}

	account, err := e.accounts.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil
		}
		return fmt.Errorf("account lookup: %w", err)
	}

	account.RefreshFingerprint = ""
	account.UpdatedAt = e.clock.Now()
	if err := e.accounts.Update(ctx, account); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}

	e.emitAudit(ctx, auditEventLogout, true, Authenticated(account.ID), nil, nil)
	return nil
}

// VerifyAccess parses an access token and returns the identity it
// carries. Used by HTTP middleware on every protected request.
func (e *Engine) VerifyAccess(tokenStr string) (Identity, error) {
	claims, err := e.jwtManager.ParseAccess(tokenStr)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Anonymous, ErrTokenExpired
		}
		return Anonymous, ErrTokenInvalid
	}
	return Authenticated(claims.Subject), nil
}

func (e *Engine) issueTokens(ctx context.Context, account *Account, now time.Time) (*LoginResult, error) {
	e.lockout.RecordSuccess(account)

	access, err := e.jwtManager.CreateAccess(account.ID)
	if err != nil {
		return nil, fmt.Errorf("create access token: %w", err)
	}
	refresh, err := e.jwtManager.CreateRefresh(account.ID)
	if err != nil {
		return nil, fmt.Errorf("create refresh token: %w", err)
	}

	account.RefreshFingerprint = internal.FingerprintToken(refresh)
	account.UpdatedAt = now
	if err := e.accounts.Update(ctx, account); err != nil {
		return nil, fmt.Errorf("persist refresh fingerprint: %w", err)
	}

	return &LoginResult{
		AccessToken:  access,
		RefreshToken: refresh,
		Profile:      account.Profile(),
		AccountID:    account.ID,
	}, nil
}

func (e *Engine) passwordExpired(account *Account, now time.Time) bool {
	if e.config.Policy.DisableExpiryChecks {
		return false
	}
	if account.PasswordChangedAt.IsZero() {
		return false
	}
	return now.After(account.PasswordChangedAt.Add(e.config.Policy.ExpiryWindow))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	if email == "" {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}
	return addr.Address == email
}
