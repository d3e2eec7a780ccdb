package brewauth

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials is an exported constant or variable used by the authentication engine.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is an exported constant or variable used by the authentication engine.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountBlocked is an exported constant or variable used by the authentication engine.
	ErrAccountBlocked = errors.New("account blocked, contact support")
	// ErrAccountNotFound is an exported constant or variable used by the authentication engine.
	ErrAccountNotFound = errors.New("account not found")
	// ErrPasswordExpired is an exported constant or variable used by the authentication engine.
	ErrPasswordExpired = errors.New("password expired, reset required")
	// ErrTwoFactorRequired is an exported constant or variable used by the authentication engine.
	ErrTwoFactorRequired = errors.New("two-factor code required")
	// ErrInvalidTwoFactorCode is an exported constant or variable used by the authentication engine.
	ErrInvalidTwoFactorCode = errors.New("invalid two-factor code")
	// ErrTwoFactorNotPending is an exported constant or variable used by the authentication engine.
	ErrTwoFactorNotPending = errors.New("two-factor setup not pending")
	// ErrTwoFactorNotEnabled is an exported constant or variable used by the authentication engine.
	ErrTwoFactorNotEnabled = errors.New("two-factor authentication not enabled")
	// ErrWeakPassword is an exported constant or variable used by the authentication engine.
	ErrWeakPassword = errors.New("password does not meet strength requirements")
	// ErrPasswordReused is an exported constant or variable used by the authentication engine.
	ErrPasswordReused = errors.New("password was used recently")
	// ErrEmailTaken is an exported constant or variable used by the authentication engine.
	ErrEmailTaken = errors.New("email already in use")
	// ErrTokenInvalid is an exported constant or variable used by the authentication engine.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenExpired is an exported constant or variable used by the authentication engine.
	ErrTokenExpired = errors.New("token expired")
	// ErrRefreshReuse is an exported constant or variable used by the authentication engine.
	ErrRefreshReuse = errors.New("refresh token reuse detected")
	// ErrVerificationInvalid is an exported constant or variable used by the authentication engine.
	ErrVerificationInvalid = errors.New("verification token invalid or expired")
	// ErrPrimaryEmailImmutable is an exported constant or variable used by the authentication engine.
	ErrPrimaryEmailImmutable = errors.New("primary email cannot be removed")
	// ErrCSRFInvalid is an exported constant or variable used by the authentication engine.
	ErrCSRFInvalid = errors.New("csrf token invalid")
	// ErrBotCheckFailed is an exported constant or variable used by the authentication engine.
	ErrBotCheckFailed = errors.New("bot check verification failed")
	// ErrNotConfigured is an exported constant or variable used by the authentication engine.
	ErrNotConfigured = errors.New("engine dependency not configured")
	// ErrForbidden is an exported constant or variable used by the authentication engine.
	ErrForbidden = errors.New("insufficient privilege")
)

// LockoutError reports an active lockout together with the remaining
// wait. It matches [ErrAccountLocked] under errors.Is so callers can
// branch without unwrapping.
type LockoutError struct {
	Until time.Time
}

// Error renders the remaining-minutes message shown to the caller.
func (e *LockoutError) Error() string {
	remaining := time.Until(e.Until)
	minutes := int(remaining.Minutes())
	if remaining > 0 && remaining%time.Minute != 0 {
		minutes++
	}
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf("account locked, try again in %d minute(s)", minutes)
}

// Is reports sentinel equivalence with [ErrAccountLocked].
func (e *LockoutError) Is(target error) bool {
	return target == ErrAccountLocked
}
