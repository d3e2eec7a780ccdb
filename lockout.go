package brewauth

import "time"

// lockoutTracker applies the failed-attempt counter and time-boxed
// lockout rules to an account record. It only mutates the in-memory
// record; persisting the change is the caller's job.
type lockoutTracker struct {
	config LockoutConfig
}

func newLockoutTracker(cfg LockoutConfig) *lockoutTracker {
	return &lockoutTracker{config: cfg}
}

// Locked reports whether the account is currently locked out. Expiry is
// implicit: a lockout timestamp in the past is treated as no lockout.
func (t *lockoutTracker) Locked(account *Account, now time.Time) bool {
	return !account.LockoutUntil.IsZero() && now.Before(account.LockoutUntil)
}

// RecordFailure increments the failure counter and, when the attempt
// crosses the threshold, sets the lockout window. It returns true when
// this failure triggered the lockout.
func (t *lockoutTracker) RecordFailure(account *Account, now time.Time) bool {
	account.FailedLoginAttempts++
	if account.FailedLoginAttempts >= t.config.MaxAttempts {
		account.LockoutUntil = now.Add(t.config.Duration)
		return true
	}
	return false
}

// RecordSuccess clears the counter and any expired lockout marker.
func (t *lockoutTracker) RecordSuccess(account *Account) {
	account.FailedLoginAttempts = 0
	account.LockoutUntil = time.Time{}
}
