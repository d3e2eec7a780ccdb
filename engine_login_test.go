package brewauth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRegisterAndLogin(t *testing.T) {
	env := newAuthTestEnv(t, authTestConfig())
	ctx := context.Background()

	profile := env.register(t, "alice@test.com", "Abc12345!")
	if profile.ID == "" {
		t.Fatal("expected account id")
	}
	if profile.Email != "alice@test.com" {
		t.Fatalf("expected primary email, got %s", profile.Email)
	}

	stored := env.store.accounts[profile.ID]
	if stored.PasswordHash == "" || stored.PasswordHash == "Abc12345!" {
		t.Fatal("expected stored password to be hashed")
	}
	if len(stored.PasswordHistory) != 1 || stored.PasswordHistory[0] != stored.PasswordHash {
		t.Fatal("expected history to start with the current hash")
	}

	result, err := env.engine.Login(ctx, "alice@test.com", "Abc12345!", "")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if result.AccessToken == "" || result.RefreshToken == "" {
		t.Fatal("expected both tokens on success")
	}
	if result.TwoFactorRequired {
		t.Fatal("expected no second-factor challenge")
	}
	if result.Profile.ID != profile.ID {
		t.Fatal("expected profile in login result")
	}
}

func TestRegisterDuplicateEmailRejected(t *testing.T) {
	env := newAuthTestEnv(t, authTestConfig())

	env.register(t, "alice@test.com", "Abc12345!")
	_, err := env.engine.Register(context.Background(), RegisterInput{
		Name:     "Other",
		Email:    "Alice@Test.com",
		Password: "Abc12345!",
	})
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestRegisterWeakPasswordRejected(t *testing.T) {
	env := newAuthTestEnv(t, authTestConfig())

	_, err := env.engine.Register(context.Background(), RegisterInput{
		Name:     "Alice",
		Email:    "alice@test.com",
		Password: "short",
	})
	if !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
}

func TestLoginUnknownEmailGeneric(t *testing.T) {
	env := newAuthTestEnv(t, authTestConfig())

	_, err := env.engine.Login(context.Background(), "nobody@test.com", "Abc12345!", "")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginWrongPasswordGeneric(t *testing.T) {
	env := newAuthTestEnv(t, authTestConfig())
	env.register(t, "alice@test.com", "Abc12345!")

	_, err := env.engine.Login(context.Background(), "alice@test.com", "Wrong999!", "")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginLockoutAfterFiveFailures(t *testing.T) {
	env := newAuthTestEnv(t, authTestConfig())
	ctx := context.Background()
	env.register(t, "bob@test.com", "Abc12345!")

	for i := 0; i < 4; i++ {
		_, err := env.engine.Login(ctx, "bob@test.com", "Wrong999!", "")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}

	// Fifth failure trips the lockout.
	_, err := env.engine.Login(ctx, "bob@test.com", "Wrong999!", "")
	var lockout *LockoutError
	if !errors.As(err, &lockout) {
		t.Fatalf("expected LockoutError on fifth failure, got %v", err)
	}
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatal("expected LockoutError to match ErrAccountLocked")
	}
	if !strings.Contains(err.Error(), "minute") {
		t.Fatalf("expected remaining-minutes message, got %q", err.Error())
	}

	// The correct password is still refused while locked.
	_, err = env.engine.Login(ctx, "bob@test.com", "Abc12345!", "")
	if !errors.As(err, &lockout) {
		t.Fatalf("expected LockoutError with correct password while locked, got %v", err)
	}
}

func TestLoginAfterLockoutExpiryClearsState(t *testing.T) {
	env := newAuthTestEnv(t, authTestConfig())
	ctx := context.Background()
	profile := env.register(t, "bob@test.com", "Abc12345!")

	for i := 0; i < 5; i++ {
		_, _ = env.engine.Login(ctx, "bob@test.com", "Wrong999!", "")
	}
	env.clock.Advance(16 * time.Minute)

	result, err := env.engine.Login(ctx, "bob@test.com", "Abc12345!", "")
	if err != nil {
		t.Fatalf("expected login after lockout expiry, got %v", err)
	}
	if result.AccessToken == "" {
		t.Fatal("expected tokens after lockout expiry")
	}

	stored := env.store.accounts[profile.ID]
	if stored.FailedLoginAttempts != 0 || !stored.LockoutUntil.IsZero() {
		t.Fatalf("expected lockout state cleared, got attempts=%d until=%v",
			stored.FailedLoginAttempts, stored.LockoutUntil)
	}
}

func TestLoginBlockedAccountDistinctError(t *testing.T) {
	env := newAuthTestEnv(t, authTestConfig())
	ctx := context.Background()
	profile := env.register(t, "alice@test.com", "Abc12345!")

	if err := env.engine.BlockAccount(ctx, profile.ID); err != nil {
		t.Fatalf("BlockAccount failed: %v", err)
	}

	_, err := env.engine.Login(ctx, "alice@test.com", "Abc12345!", "")
	if !errors.Is(err, ErrAccountBlocked) {
		t.Fatalf("expected ErrAccountBlocked, got %v", err)
	}
	if !strings.Contains(err.Error(), "contact support") {
		t.Fatalf("expected support message, got %q", err.Error())
	}

	if err := env.engine.UnblockAccount(ctx, profile.ID); err != nil {
		t.Fatalf("UnblockAccount failed: %v", err)
	}
	if _, err := env.engine.Login(ctx, "alice@test.com", "Abc12345!", ""); err != nil {
		t.Fatalf("expected login after unblock, got %v", err)
	}
}

func TestLoginExpiredPasswordRejected(t *testing.T) {
	env := newAuthTestEnv(t, authTestConfig())
	ctx := context.Background()
	env.register(t, "alice@test.com", "Abc12345!")

	env.clock.Advance(91 * 24 * time.Hour)

	_, err := env.engine.Login(ctx, "alice@test.com", "Abc12345!", "")
	if !errors.Is(err, ErrPasswordExpired) {
		t.Fatalf("expected ErrPasswordExpired, got %v", err)
	}

	// A wrong password still reports the generic failure, and keeps
	// counting toward lockout, before expiry is ever considered.
	_, err = env.engine.Login(ctx, "alice@test.com", "Wrong999!", "")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestVerifyAccessIdentity(t *testing.T) {
	env := newAuthTestEnv(t, authTestConfig())
	ctx := context.Background()
	profile := env.register(t, "alice@test.com", "Abc12345!")

	result, err := env.engine.Login(ctx, "alice@test.com", "Abc12345!", "")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	identity, err := env.engine.VerifyAccess(result.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess failed: %v", err)
	}
	accountID, ok := identity.AccountID()
	if !ok || accountID != profile.ID {
		t.Fatalf("expected authenticated identity for %s, got %s", profile.ID, identity)
	}

	if _, err := env.engine.VerifyAccess(result.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected refresh token rejected at access check, got %v", err)
	}
}
